package extraction

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarcastero/receiptscan-backend/internal/ledger"
	"github.com/omarcastero/receiptscan-backend/internal/receipts"
	"github.com/omarcastero/receiptscan-backend/pkg/db/models"
	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/gemini"
	"github.com/omarcastero/receiptscan-backend/pkg/logger"
)

type stubReceiptStore struct {
	row          *models.Receipt
	findErr      error
	attempt      int
	patched      []receipts.ExtractedFields
	patchApplied bool
	patchErr     error
	failedReason *string
}

func (s *stubReceiptStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	return s.row, s.findErr
}

func (s *stubReceiptStore) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	s.attempt++
	return s.attempt, nil
}

func (s *stubReceiptStore) PatchExtracted(ctx context.Context, id uuid.UUID, fields receipts.ExtractedFields) (bool, error) {
	if s.patchErr != nil {
		return false, s.patchErr
	}
	s.patched = append(s.patched, fields)
	return s.patchApplied, nil
}

func (s *stubReceiptStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	s.failedReason = &reason
	return true, nil
}

type stubObjectStore struct {
	payload []byte
	err     error
	calls   int
}

func (s *stubObjectStore) DownloadObject(ctx context.Context, bucket, object string) ([]byte, error) {
	s.calls++
	return s.payload, s.err
}

type stubGenerator struct {
	text string
	err  error
}

func (s *stubGenerator) GenerateFromPDF(ctx context.Context, instruction string, pdf []byte) (string, error) {
	return s.text, s.err
}

type stubMetering struct {
	events []ledger.RecordLedgerEventInput
	err    error
}

func (s *stubMetering) RecordEvent(ctx context.Context, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.events = append(s.events, input)
	return &models.LedgerEvent{ID: uuid.New(), OwnerID: input.OwnerID, ReceiptID: input.ReceiptID, Type: input.Type}, nil
}

func pendingReceipt() *models.Receipt {
	return &models.Receipt{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		FileName:   "invoice.pdf",
		StorageKey: "receipts/abc/invoice.pdf",
		Status:     enums.ReceiptStatusPending,
	}
}

func newTestService(t *testing.T, repo *stubReceiptStore, storage *stubObjectStore, model *stubGenerator, metering *stubMetering) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(repo, storage, model, metering, logg, nil, "receipt-bucket", 3, time.Second)
	require.NoError(t, err)
	return svc
}

func TestProcessSuccess(t *testing.T) {
	row := pendingReceipt()
	repo := &stubReceiptStore{row: row, patchApplied: true}
	storage := &stubObjectStore{payload: []byte("%PDF-1.4 data")}
	model := &stubGenerator{text: "```json\n" + validDocument + "\n```"}
	metering := &stubMetering{}

	svc := newTestService(t, repo, storage, model, metering)
	require.NoError(t, svc.Process(context.Background(), row.ID))

	require.Len(t, repo.patched, 1)
	fields := repo.patched[0]
	assert.Equal(t, "Acme Market", fields.MerchantName)
	assert.Equal(t, "USD", fields.Currency)
	assert.True(t, fields.TransactionAmount.Equal(decimal.RequireFromString("42.50")))

	require.Len(t, metering.events, 1)
	event := metering.events[0]
	assert.Equal(t, row.OwnerID, event.OwnerID)
	assert.Equal(t, row.ID, event.ReceiptID)
	assert.Equal(t, enums.LedgerEventTypeReceiptScanned, event.Type)
}

func TestProcessSkipsSettledReceipt(t *testing.T) {
	row := pendingReceipt()
	row.Status = enums.ReceiptStatusProcessed
	repo := &stubReceiptStore{row: row}
	storage := &stubObjectStore{}
	metering := &stubMetering{}

	svc := newTestService(t, repo, storage, &stubGenerator{}, metering)
	require.NoError(t, svc.Process(context.Background(), row.ID))
	assert.Zero(t, storage.calls, "settled receipt should not be downloaded")
	assert.Empty(t, metering.events, "settled receipt must not be metered again")
}

func TestProcessDropsMissingReceipt(t *testing.T) {
	repo := &stubReceiptStore{}
	svc := newTestService(t, repo, &stubObjectStore{}, &stubGenerator{}, &stubMetering{})
	require.NoError(t, svc.Process(context.Background(), uuid.New()), "missing receipt should ack")
}

func TestProcessSchemaMismatchMarksFailed(t *testing.T) {
	row := pendingReceipt()
	repo := &stubReceiptStore{row: row, patchApplied: true}
	storage := &stubObjectStore{payload: []byte("%PDF-")}
	model := &stubGenerator{text: "I could not find a receipt in this document."}
	metering := &stubMetering{}

	svc := newTestService(t, repo, storage, model, metering)
	require.NoError(t, svc.Process(context.Background(), row.ID), "schema mismatch should ack")
	require.NotNil(t, repo.failedReason, "expected receipt to be marked failed")
	assert.Empty(t, repo.patched, "no fields may be written for an invalid response")
	assert.Empty(t, metering.events, "failed extraction must not be metered")
}

func TestProcessRetryableInferenceErrorStaysPending(t *testing.T) {
	row := pendingReceipt()
	repo := &stubReceiptStore{row: row}
	storage := &stubObjectStore{payload: []byte("%PDF-")}
	model := &stubGenerator{err: &gemini.StatusError{StatusCode: 503}}

	svc := newTestService(t, repo, storage, model, &stubMetering{})
	require.Error(t, svc.Process(context.Background(), row.ID), "transient inference failure must surface for redelivery")
	assert.Nil(t, repo.failedReason, "receipt must stay pending while attempts remain")
}

func TestProcessExhaustedAttemptsMarksFailed(t *testing.T) {
	row := pendingReceipt()
	repo := &stubReceiptStore{row: row, attempt: 2}
	storage := &stubObjectStore{payload: []byte("%PDF-")}
	model := &stubGenerator{err: &gemini.StatusError{StatusCode: 503}}

	svc := newTestService(t, repo, storage, model, &stubMetering{})
	require.NoError(t, svc.Process(context.Background(), row.ID), "exhausted budget should ack")
	assert.NotNil(t, repo.failedReason, "expected receipt to be marked failed after budget exhaustion")
}

func TestProcessNonRetryableInferenceErrorFailsFast(t *testing.T) {
	row := pendingReceipt()
	repo := &stubReceiptStore{row: row}
	storage := &stubObjectStore{payload: []byte("%PDF-")}
	model := &stubGenerator{err: &gemini.StatusError{StatusCode: 400, Message: "bad request"}}

	svc := newTestService(t, repo, storage, model, &stubMetering{})
	require.NoError(t, svc.Process(context.Background(), row.ID), "non-retryable failure should ack")
	assert.NotNil(t, repo.failedReason, "expected receipt to be marked failed on first attempt")
}

func TestProcessRedeliveryDoesNotDoubleMeter(t *testing.T) {
	row := pendingReceipt()
	repo := &stubReceiptStore{row: row, patchApplied: false}
	storage := &stubObjectStore{payload: []byte("%PDF-")}
	model := &stubGenerator{text: validDocument}
	metering := &stubMetering{}

	svc := newTestService(t, repo, storage, model, metering)
	require.NoError(t, svc.Process(context.Background(), row.ID))
	assert.Empty(t, metering.events, "a patch that did not apply must not be metered")
}

func TestProcessMeteringFailureDoesNotFailExtraction(t *testing.T) {
	row := pendingReceipt()
	repo := &stubReceiptStore{row: row, patchApplied: true}
	storage := &stubObjectStore{payload: []byte("%PDF-")}
	model := &stubGenerator{text: validDocument}
	metering := &stubMetering{err: errors.New("ledger unavailable")}

	svc := newTestService(t, repo, storage, model, metering)
	require.NoError(t, svc.Process(context.Background(), row.ID), "metering is best effort")
	assert.Len(t, repo.patched, 1, "fields must still be persisted when metering fails")
}
