package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/types"
)

// Receipt captures an uploaded receipt document and, once extraction
// completes, the structured fields pulled out of it.
type Receipt struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID            uuid.UUID           `gorm:"column:owner_id;type:uuid;not null;index"`
	FileName           string              `gorm:"column:file_name;not null"`
	MimeType           string              `gorm:"column:mime_type;not null"`
	SizeBytes          int64               `gorm:"column:size_bytes;not null"`
	StorageKey         string              `gorm:"column:storage_key;not null;unique"`
	Status             enums.ReceiptStatus `gorm:"column:status;type:receipt_status_enum;not null;default:'pending'"`
	ExtractionAttempts int                 `gorm:"column:extraction_attempts;not null;default:0"`
	FailureReason      *string             `gorm:"column:failure_reason"`
	MerchantName       *string             `gorm:"column:merchant_name"`
	MerchantAddress    *string             `gorm:"column:merchant_address"`
	MerchantContact    *string             `gorm:"column:merchant_contact"`
	TransactionDate    *string             `gorm:"column:transaction_date"`
	TransactionAmount  *decimal.Decimal    `gorm:"column:transaction_amount;type:numeric(12,2)"`
	Currency           *string             `gorm:"column:currency"`
	ReceiptSummary     *string             `gorm:"column:receipt_summary"`
	Items              types.LineItems     `gorm:"column:items;type:jsonb"`
	UploadedAt         time.Time           `gorm:"column:uploaded_at;autoCreateTime"`
	ProcessedAt        *time.Time          `gorm:"column:processed_at"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
