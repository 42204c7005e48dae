package receipts

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/omarcastero/receiptscan-backend/pkg/db/models"
	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	pkgerrors "github.com/omarcastero/receiptscan-backend/pkg/errors"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox/payloads"
)

const pdfMimeType = "application/pdf"

var pdfMagic = []byte("%PDF-")

type receiptsRepository interface {
	CreateTx(tx *gorm.DB, receipt *models.Receipt) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Receipt, error)
	DeleteTx(tx *gorm.DB, id uuid.UUID) error
}

type storageClient interface {
	UploadObject(ctx context.Context, bucket, object, contentType string, payload []byte) error
	DeleteObject(ctx context.Context, bucket, object string) error
	SignedReadURL(bucket, object string, expires time.Duration) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// IngestInput models a direct multipart upload.
type IngestInput struct {
	FileName string
	MimeType string
	Payload  []byte
}

// Service exposes the receipt upload and retrieval semantics.
type Service interface {
	Ingest(ctx context.Context, ownerID uuid.UUID, input IngestInput) (*ReceiptDTO, error)
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]ReceiptDTO, error)
	Get(ctx context.Context, ownerID, receiptID uuid.UUID) (*ReceiptDTO, error)
	DownloadURL(ctx context.Context, ownerID, receiptID uuid.UUID) (*DownloadURLDTO, error)
	Delete(ctx context.Context, ownerID, receiptID uuid.UUID) error
}

type service struct {
	repo           receiptsRepository
	storage        storageClient
	tx             txRunner
	events         outboxEmitter
	bucket         string
	maxUploadBytes int64
	downloadExpiry time.Duration
}

// NewService constructs a receipts service backed by the provided storage and repositories.
func NewService(repo receiptsRepository, storage storageClient, tx txRunner, events outboxEmitter, bucket string, maxUploadBytes int64, downloadExpiry time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("receipts repository required")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage client required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket required")
	}
	if maxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be positive")
	}
	if downloadExpiry <= 0 {
		downloadExpiry = time.Hour
	}
	return &service{
		repo:           repo,
		storage:        storage,
		tx:             tx,
		events:         events,
		bucket:         bucket,
		maxUploadBytes: maxUploadBytes,
		downloadExpiry: downloadExpiry,
	}, nil
}

func (s *service) Ingest(ctx context.Context, ownerID uuid.UUID, input IngestInput) (*ReceiptDTO, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}

	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file_name is required")
	}
	if len(input.Payload) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is empty")
	}
	if int64(len(input.Payload)) > s.maxUploadBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file exceeds %d bytes", s.maxUploadBytes))
	}
	if err := validatePDF(fileName, input.MimeType, input.Payload); err != nil {
		return nil, err
	}

	receiptID := uuid.New()
	storageKey := buildStorageKey(receiptID, fileName)

	if err := s.storage.UploadObject(ctx, s.bucket, storageKey, pdfMimeType, input.Payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store receipt file")
	}

	row := &models.Receipt{
		ID:         receiptID,
		OwnerID:    ownerID,
		FileName:   fileName,
		MimeType:   pdfMimeType,
		SizeBytes:  int64(len(input.Payload)),
		StorageKey: storageKey,
		Status:     enums.ReceiptStatusPending,
		UploadedAt: time.Now().UTC(),
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, row); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReceiptUploaded,
			AggregateType: enums.AggregateReceipt,
			AggregateID:   receiptID,
			Actor:         &outbox.ActorRef{UserID: ownerID},
			Version:       1,
			Data: payloads.ReceiptUploadedEvent{
				ReceiptID:  receiptID,
				OwnerID:    ownerID,
				StorageKey: storageKey,
				FileName:   fileName,
				MimeType:   pdfMimeType,
				SizeBytes:  row.SizeBytes,
				UploadedAt: row.UploadedAt,
			},
		})
	})
	if err != nil {
		// The object must not outlive a failed insert.
		_ = s.storage.DeleteObject(ctx, s.bucket, storageKey)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist receipt row")
	}

	return FromModel(row), nil
}

func (s *service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]ReceiptDTO, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}
	rows, err := s.repo.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list receipts")
	}
	return FromModels(rows), nil
}

func (s *service) Get(ctx context.Context, ownerID, receiptID uuid.UUID) (*ReceiptDTO, error) {
	row, err := s.getOwned(ctx, ownerID, receiptID)
	if err != nil {
		return nil, err
	}
	return FromModel(row), nil
}

func (s *service) DownloadURL(ctx context.Context, ownerID, receiptID uuid.UUID) (*DownloadURLDTO, error) {
	row, err := s.getOwned(ctx, ownerID, receiptID)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(s.downloadExpiry)
	signedURL, err := s.storage.SignedReadURL(s.bucket, row.StorageKey, s.downloadExpiry)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign download url")
	}
	return &DownloadURLDTO{URL: signedURL, ExpiresAt: expiresAt}, nil
}

func (s *service) Delete(ctx context.Context, ownerID, receiptID uuid.UUID) error {
	row, err := s.getOwned(ctx, ownerID, receiptID)
	if err != nil {
		return err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.DeleteTx(tx, row.ID); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReceiptFileDelete,
			AggregateType: enums.AggregateStoredFile,
			AggregateID:   row.ID,
			Actor:         &outbox.ActorRef{UserID: ownerID},
			Version:       1,
			Data: payloads.ReceiptFileDeleteEvent{
				ReceiptID:  row.ID,
				OwnerID:    ownerID,
				StorageKey: row.StorageKey,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete receipt row")
	}
	return nil
}

// getOwned loads the receipt and hides rows the caller does not own.
func (s *service) getOwned(ctx context.Context, ownerID, receiptID uuid.UUID) (*models.Receipt, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}
	if receiptID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt id is required")
	}
	row, err := s.repo.FindByID(ctx, receiptID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load receipt")
	}
	if row == nil || row.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
	}
	return row, nil
}

// validatePDF accepts an upload when either the declared media type mentions
// PDF or the file name carries a .pdf extension. Browsers commonly declare
// application/octet-stream for PDFs, so neither signal alone is trusted to
// reject. The magic-byte sniff then checks the actual content.
func validatePDF(fileName, mimeType string, payload []byte) error {
	declaredPDF := false
	if declared := strings.TrimSpace(mimeType); declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil {
			declaredPDF = strings.Contains(strings.ToLower(parsed), "pdf")
		}
	}
	namedPDF := strings.HasSuffix(strings.ToLower(fileName), ".pdf")
	if !declaredPDF && !namedPDF {
		return pkgerrors.New(pkgerrors.CodeValidation, "only PDF uploads are accepted")
	}
	if !bytes.HasPrefix(payload, pdfMagic) {
		return pkgerrors.New(pkgerrors.CodeValidation, "file is not a valid PDF document")
	}
	return nil
}

func buildStorageKey(id uuid.UUID, fileName string) string {
	cleanName := sanitizeFileName(fileName)
	if cleanName == "" {
		cleanName = id.String() + ".pdf"
	}
	return fmt.Sprintf("receipts/%s/%s", id.String(), cleanName)
}

func sanitizeFileName(name string) string {
	if name == "" {
		return ""
	}
	clean := path.Base(strings.TrimSpace(name))
	if clean == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case r == '/' || r == '\\' || unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	result := strings.Trim(b.String(), "-_.")
	return result
}
