package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/omarcastero/receiptscan-backend/internal/ledger"
	"github.com/omarcastero/receiptscan-backend/internal/receipts"
	"github.com/omarcastero/receiptscan-backend/pkg/db/models"
	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/gemini"
	"github.com/omarcastero/receiptscan-backend/pkg/logger"
	"github.com/omarcastero/receiptscan-backend/pkg/metrics"
	"github.com/omarcastero/receiptscan-backend/pkg/types"
)

const (
	patchRetryBase = 200 * time.Millisecond
	patchRetryMax  = 4

	outcomeProcessed      = "processed"
	outcomeFailed         = "failed"
	outcomeSchemaMismatch = "schema_mismatch"
	outcomeSkipped        = "skipped"
)

type receiptStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
	PatchExtracted(ctx context.Context, id uuid.UUID, fields receipts.ExtractedFields) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
}

type objectStore interface {
	DownloadObject(ctx context.Context, bucket, object string) ([]byte, error)
}

type generator interface {
	GenerateFromPDF(ctx context.Context, instruction string, pdf []byte) (string, error)
}

type meteringService interface {
	RecordEvent(ctx context.Context, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error)
}

// Service drives a single receipt through inference, validation, and the
// final patch. Process is safe to call repeatedly for the same receipt.
type Service struct {
	repo           receiptStore
	storage        objectStore
	model          generator
	metering       meteringService
	logg           *logger.Logger
	stats          *metrics.ExtractionMetrics
	bucket         string
	maxAttempts    int
	requestTimeout time.Duration
	now            func() time.Time
}

func NewService(
	repo receiptStore,
	storage objectStore,
	model generator,
	metering meteringService,
	logg *logger.Logger,
	stats *metrics.ExtractionMetrics,
	bucket string,
	maxAttempts int,
	requestTimeout time.Duration,
) (*Service, error) {
	if repo == nil {
		return nil, errors.New("receipt store is required")
	}
	if storage == nil {
		return nil, errors.New("object store is required")
	}
	if model == nil {
		return nil, errors.New("inference client is required")
	}
	if metering == nil {
		return nil, errors.New("ledger service is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	return &Service{
		repo:           repo,
		storage:        storage,
		model:          model,
		metering:       metering,
		logg:           logg,
		stats:          stats,
		bucket:         bucket,
		maxAttempts:    maxAttempts,
		requestTimeout: requestTimeout,
		now:            time.Now,
	}, nil
}

// Process runs extraction for the given receipt. A nil return means the
// message can be acked: the receipt reached a terminal state or the work was
// a no-op. A non-nil return means the attempt is retryable and the message
// should be redelivered.
func (s *Service) Process(ctx context.Context, receiptID uuid.UUID) error {
	started := s.now()
	logCtx := s.logg.WithReceiptID(ctx, receiptID.String())

	row, err := s.repo.FindByID(ctx, receiptID)
	if err != nil {
		return fmt.Errorf("load receipt: %w", err)
	}
	if row == nil {
		s.logg.Warn(logCtx, "receipt row not found, dropping extraction request")
		return nil
	}
	if row.Status != enums.ReceiptStatusPending {
		s.logg.Info(logCtx, "receipt already settled, skipping extraction")
		s.observe(outcomeSkipped, started)
		return nil
	}

	pdf, err := s.storage.DownloadObject(ctx, s.bucket, row.StorageKey)
	if err != nil {
		s.logg.Error(logCtx, "failed to download receipt object", err)
		return fmt.Errorf("download object: %w", err)
	}

	attempt, err := s.repo.IncrementAttempts(ctx, receiptID)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	logCtx = s.logg.WithField(logCtx, "attempt", attempt)

	inferCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	text, err := s.model.GenerateFromPDF(inferCtx, extractionInstruction, pdf)
	cancel()
	if err != nil {
		return s.handleInferenceError(logCtx, receiptID, attempt, started, err)
	}

	fields, err := ParseDocument(gemini.StripJSONFences(text))
	if err != nil {
		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			s.logg.Error(logCtx, "inference response failed validation", err)
			if _, failErr := s.repo.MarkFailed(ctx, receiptID, schemaErr.Reason); failErr != nil {
				return fmt.Errorf("mark failed: %w", failErr)
			}
			s.observe(outcomeSchemaMismatch, started)
			return nil
		}
		return err
	}

	applied, err := s.patchWithRetry(ctx, receiptID, fields)
	if err != nil {
		s.logg.Error(logCtx, "failed to persist extracted fields", err)
		return fmt.Errorf("patch receipt: %w", err)
	}
	if !applied {
		// Another delivery settled the row first. Do not meter again.
		s.logg.Info(logCtx, "receipt no longer pending, patch skipped")
		s.observe(outcomeSkipped, started)
		return nil
	}

	s.recordMetering(logCtx, row, fields)
	s.logg.Info(logCtx, "receipt extraction completed")
	s.observe(outcomeProcessed, started)
	return nil
}

// handleInferenceError keeps the receipt pending for retryable failures until
// the attempt budget runs out, then settles it as failed.
func (s *Service) handleInferenceError(ctx context.Context, receiptID uuid.UUID, attempt int, started time.Time, err error) error {
	s.logg.Error(ctx, "inference call failed", err)
	if attempt < s.maxAttempts && isRetryableInferenceError(err) {
		return fmt.Errorf("inference attempt %d: %w", attempt, err)
	}
	reason := fmt.Sprintf("extraction failed after %d attempt(s): %v", attempt, err)
	if _, failErr := s.repo.MarkFailed(ctx, receiptID, reason); failErr != nil {
		return fmt.Errorf("mark failed: %w", failErr)
	}
	s.observe(outcomeFailed, started)
	return nil
}

// patchWithRetry retries only the persistence step. Re-running inference is
// far costlier than re-attempting a row update.
func (s *Service) patchWithRetry(ctx context.Context, receiptID uuid.UUID, fields receipts.ExtractedFields) (bool, error) {
	var applied bool
	backoff := retry.WithMaxRetries(patchRetryMax, retry.NewExponential(patchRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, patchErr := s.repo.PatchExtracted(ctx, receiptID, fields)
		if patchErr != nil {
			return retry.RetryableError(patchErr)
		}
		applied = ok
		return nil
	})
	return applied, err
}

// recordMetering emits the usage event after the patch has committed. Metering
// is best effort: a metered-but-unpersisted extraction is forbidden, the
// reverse is tolerated.
func (s *Service) recordMetering(ctx context.Context, row *models.Receipt, fields receipts.ExtractedFields) {
	_, err := s.metering.RecordEvent(ctx, ledger.RecordLedgerEventInput{
		OwnerID:   row.OwnerID,
		ReceiptID: row.ID,
		Type:      enums.LedgerEventTypeReceiptScanned,
		Metadata: types.JSONMap{
			"merchant_name":      fields.MerchantName,
			"transaction_amount": fields.TransactionAmount.String(),
			"currency":           fields.Currency,
		},
	})
	if err != nil {
		s.logg.Error(ctx, "failed to record metering event", err)
	}
}

func (s *Service) observe(outcome string, started time.Time) {
	if s.stats == nil {
		return
	}
	s.stats.Observe(outcome, s.now().Sub(started))
}

func isRetryableInferenceError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *gemini.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// Network-level failures surface as plain wrapped errors, treat them as
	// retryable until the attempt budget runs out.
	return true
}
