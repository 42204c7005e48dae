package receipts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/omarcastero/receiptscan-backend/pkg/db/models"
	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/types"
)

// Repository exposes receipt persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a receipt repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ExtractedFields carries the validated extraction output applied on success.
type ExtractedFields struct {
	MerchantName      string
	MerchantAddress   string
	MerchantContact   string
	TransactionDate   string
	TransactionAmount decimal.Decimal
	Currency          string
	ReceiptSummary    string
	Items             types.LineItems
}

// CreateTx persists a receipt row inside the supplied transaction.
func (r *Repository) CreateTx(tx *gorm.DB, receipt *models.Receipt) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(receipt).Error
}

// FindByID retrieves a receipt by ID. Returns (nil, nil) when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	var receipt models.Receipt
	err := r.db.WithContext(ctx).First(&receipt, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &receipt, nil
}

// ListByOwner returns the owner's receipts, newest upload first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Receipt
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("uploaded_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, err
}

// DeleteTx removes a receipt row inside the supplied transaction.
func (r *Repository) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Where("id = ?", id).Delete(&models.Receipt{}).Error
}

// IncrementAttempts bumps the extraction attempt counter and returns the new value.
func (r *Repository) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	err := r.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("id = ?", id).
		Update("extraction_attempts", gorm.Expr("extraction_attempts + 1")).Error
	if err != nil {
		return 0, err
	}
	var receipt models.Receipt
	if err := r.db.WithContext(ctx).Select("extraction_attempts").First(&receipt, "id = ?", id).Error; err != nil {
		return 0, err
	}
	return receipt.ExtractionAttempts, nil
}

// PatchExtracted applies the extraction output and flips the row to processed
// in one guarded update. It reports false when the row was not pending, so a
// redelivered event cannot overwrite a settled receipt.
func (r *Repository) PatchExtracted(ctx context.Context, id uuid.UUID, fields ExtractedFields) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("id = ? AND status = ?", id, enums.ReceiptStatusPending).
		Updates(map[string]any{
			"status":             enums.ReceiptStatusProcessed,
			"merchant_name":      fields.MerchantName,
			"merchant_address":   fields.MerchantAddress,
			"merchant_contact":   fields.MerchantContact,
			"transaction_date":   fields.TransactionDate,
			"transaction_amount": fields.TransactionAmount,
			"currency":           fields.Currency,
			"receipt_summary":    fields.ReceiptSummary,
			"items":              fields.Items,
			"failure_reason":     nil,
			"processed_at":       now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkFailed flips a pending receipt to failed with the given reason.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("id = ? AND status = ?", id, enums.ReceiptStatusPending).
		Updates(map[string]any{
			"status":         enums.ReceiptStatusFailed,
			"failure_reason": reason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ExistsByStorageKey reports whether any receipt references the object key.
func (r *Repository) ExistsByStorageKey(ctx context.Context, storageKey string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("storage_key = ?", storageKey).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListStalePending returns pending receipts uploaded before the cutoff.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Receipt, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Receipt
	err := r.db.WithContext(ctx).
		Where("status = ? AND uploaded_at < ?", enums.ReceiptStatusPending, cutoff).
		Order("uploaded_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
