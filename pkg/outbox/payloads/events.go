package payloads

import (
	"time"

	"github.com/google/uuid"
)

// ReceiptUploadedEvent asks the extraction pipeline to process a stored receipt.
type ReceiptUploadedEvent struct {
	ReceiptID  uuid.UUID `json:"receipt_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	StorageKey string    `json:"storage_key"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ReceiptFileDeleteEvent asks the cleanup consumer to remove a stored object
// after its owning row was deleted.
type ReceiptFileDeleteEvent struct {
	ReceiptID  uuid.UUID `json:"receipt_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	StorageKey string    `json:"storage_key"`
}
