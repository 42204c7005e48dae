package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/omarcastero/receiptscan-backend/pkg/db/models"
	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/logger"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox/payloads"
)

const (
	defaultStalePendingAge = 30 * time.Minute
	staleReceiptBatchSize  = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type staleReceiptRepo interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Receipt, error)
}

type staleReceiptEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type StaleReceiptJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository staleReceiptRepo
	Events     staleReceiptEmitter
	PendingAge time.Duration
	BatchSize  int
}

// NewStaleReceiptJob builds a job that re-dispatches extraction for receipts
// stuck in pending. A receipt can stall when the worker dies between upload
// and settlement; the record stays inspectable and this job re-queues it.
func NewStaleReceiptJob(params StaleReceiptJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("receipt repository required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	age := params.PendingAge
	if age <= 0 {
		age = defaultStalePendingAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = staleReceiptBatchSize
	}
	return &staleReceiptJob{
		logg:       params.Logger,
		db:         params.DB,
		repo:       params.Repository,
		events:     params.Events,
		pendingAge: age,
		batchSize:  batch,
		now:        time.Now,
	}, nil
}

type staleReceiptJob struct {
	logg       *logger.Logger
	db         txRunner
	repo       staleReceiptRepo
	events     staleReceiptEmitter
	pendingAge time.Duration
	batchSize  int
	now        func() time.Time
}

func (j *staleReceiptJob) Name() string { return "stale-receipt-redispatch" }

func (j *staleReceiptJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.pendingAge)
	stale, err := j.repo.ListStalePending(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list stale receipts: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	requeued := 0
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		for _, receipt := range stale {
			event := outbox.DomainEvent{
				EventType:     enums.EventReceiptUploaded,
				AggregateType: enums.AggregateReceipt,
				AggregateID:   receipt.ID,
				Version:       1,
				Data: payloads.ReceiptUploadedEvent{
					ReceiptID:  receipt.ID,
					OwnerID:    receipt.OwnerID,
					StorageKey: receipt.StorageKey,
					FileName:   receipt.FileName,
					MimeType:   receipt.MimeType,
					SizeBytes:  receipt.SizeBytes,
					UploadedAt: receipt.UploadedAt,
				},
			}
			if err := j.events.EmitIfNotExists(ctx, tx, event); err != nil {
				return fmt.Errorf("re-emit receipt %s: %w", receipt.ID, err)
			}
			requeued++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("stale receipt redispatch: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":      cutoff,
		"stale_found": len(stale),
		"requeued":    requeued,
	})
	j.logg.Info(logCtx, "stale pending receipts requeued")
	return nil
}
