package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/omarcastero/receiptscan-backend/pkg/db/models"
	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox/payloads"
)

type fakeStaleReceiptRepo struct {
	receipts   []models.Receipt
	lastCutoff time.Time
	err        error
}

func (f *fakeStaleReceiptRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Receipt, error) {
	f.lastCutoff = cutoff
	return f.receipts, f.err
}

type fakeStaleEmitter struct {
	emitted []outbox.DomainEvent
	err     error
}

func (f *fakeStaleEmitter) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if f.err != nil {
		return f.err
	}
	f.emitted = append(f.emitted, event)
	return nil
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

func newStaleJob(t *testing.T, repo *fakeStaleReceiptRepo, emitter *fakeStaleEmitter) *staleReceiptJob {
	t.Helper()
	jobIface, err := NewStaleReceiptJob(StaleReceiptJobParams{
		Logger:     testLogger(),
		DB:         passthroughTxRunner{},
		Repository: repo,
		Events:     emitter,
		PendingAge: 30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewStaleReceiptJob: %v", err)
	}
	job, ok := jobIface.(*staleReceiptJob)
	if !ok {
		t.Fatalf("expected staleReceiptJob, got %T", jobIface)
	}
	return job
}

func TestStaleReceiptJobRequeuesPendingReceipts(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	stale := models.Receipt{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		FileName:   "invoice.pdf",
		MimeType:   "application/pdf",
		SizeBytes:  2048,
		StorageKey: "receipts/abc/invoice.pdf",
		Status:     enums.ReceiptStatusPending,
		UploadedAt: now.Add(-2 * time.Hour),
	}
	repo := &fakeStaleReceiptRepo{receipts: []models.Receipt{stale}}
	emitter := &fakeStaleEmitter{}
	job := newStaleJob(t, repo, emitter)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	expectedCutoff := now.Add(-30 * time.Minute)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
	if len(emitter.emitted) != 1 {
		t.Fatalf("expected one re-emitted event, got %d", len(emitter.emitted))
	}
	event := emitter.emitted[0]
	if event.EventType != enums.EventReceiptUploaded || event.AggregateID != stale.ID {
		t.Fatalf("unexpected event: %+v", event)
	}
	payload, ok := event.Data.(payloads.ReceiptUploadedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", event.Data)
	}
	if payload.StorageKey != stale.StorageKey || payload.OwnerID != stale.OwnerID {
		t.Fatalf("payload does not match receipt: %+v", payload)
	}
}

func TestStaleReceiptJobNoopWhenNothingStale(t *testing.T) {
	repo := &fakeStaleReceiptRepo{}
	emitter := &fakeStaleEmitter{}
	job := newStaleJob(t, repo, emitter)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(emitter.emitted) != 0 {
		t.Fatalf("expected no events, got %d", len(emitter.emitted))
	}
}

func TestStaleReceiptJobPropagatesErrors(t *testing.T) {
	repo := &fakeStaleReceiptRepo{err: errors.New("db down")}
	job := newStaleJob(t, repo, &fakeStaleEmitter{})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected list error")
	}

	repo = &fakeStaleReceiptRepo{receipts: []models.Receipt{{ID: uuid.New()}}}
	emitter := &fakeStaleEmitter{err: errors.New("emit failed")}
	job = newStaleJob(t, repo, emitter)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected emit error")
	}
}
