package receipts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omarcastero/receiptscan-backend/pkg/db/models"
	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/types"
)

// ReceiptDTO exposes a receipt record in API responses.
type ReceiptDTO struct {
	ID                 uuid.UUID           `json:"id"`
	FileName           string              `json:"file_name"`
	MimeType           string              `json:"mime_type"`
	SizeBytes          int64               `json:"size_bytes"`
	Status             enums.ReceiptStatus `json:"status"`
	ExtractionAttempts int                 `json:"extraction_attempts"`
	FailureReason      *string             `json:"failure_reason,omitempty"`
	MerchantName       *string             `json:"merchant_name,omitempty"`
	MerchantAddress    *string             `json:"merchant_address,omitempty"`
	MerchantContact    *string             `json:"merchant_contact,omitempty"`
	TransactionDate    *string             `json:"transaction_date,omitempty"`
	TransactionAmount  *decimal.Decimal    `json:"transaction_amount,omitempty"`
	Currency           *string             `json:"currency,omitempty"`
	ReceiptSummary     *string             `json:"receipt_summary,omitempty"`
	Items              types.LineItems     `json:"items,omitempty"`
	UploadedAt         time.Time           `json:"uploaded_at"`
	ProcessedAt        *time.Time          `json:"processed_at,omitempty"`
}

// DownloadURLDTO carries a short-lived signed download link.
type DownloadURLDTO struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FromModel maps the persisted receipt into a DTO.
func FromModel(m *models.Receipt) *ReceiptDTO {
	if m == nil {
		return nil
	}
	return &ReceiptDTO{
		ID:                 m.ID,
		FileName:           m.FileName,
		MimeType:           m.MimeType,
		SizeBytes:          m.SizeBytes,
		Status:             m.Status,
		ExtractionAttempts: m.ExtractionAttempts,
		FailureReason:      m.FailureReason,
		MerchantName:       m.MerchantName,
		MerchantAddress:    m.MerchantAddress,
		MerchantContact:    m.MerchantContact,
		TransactionDate:    m.TransactionDate,
		TransactionAmount:  m.TransactionAmount,
		Currency:           m.Currency,
		ReceiptSummary:     m.ReceiptSummary,
		Items:              m.Items,
		UploadedAt:         m.UploadedAt,
		ProcessedAt:        m.ProcessedAt,
	}
}

// FromModels maps a slice of receipts into DTOs.
func FromModels(rows []models.Receipt) []ReceiptDTO {
	out := make([]ReceiptDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}
