package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/types"
)

// LedgerEvent records an immutable usage event tied to a receipt.
type LedgerEvent struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID   uuid.UUID             `gorm:"column:owner_id;type:uuid;not null"`
	ReceiptID uuid.UUID             `gorm:"column:receipt_id;type:uuid;not null"`
	Type      enums.LedgerEventType `gorm:"column:type;type:ledger_event_type_enum;not null"`
	Quantity  int                   `gorm:"column:quantity;not null;default:1"`
	Metadata  types.JSONMap         `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}
