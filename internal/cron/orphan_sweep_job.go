package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/omarcastero/receiptscan-backend/pkg/logger"
	"github.com/omarcastero/receiptscan-backend/pkg/storage/gcs"
)

const (
	defaultOrphanAge   = 24 * time.Hour
	storedObjectPrefix = "receipts/"
)

type objectLister interface {
	ListObjects(ctx context.Context, bucket, prefix string) ([]gcs.ObjectInfo, error)
	DeleteObject(ctx context.Context, bucket, object string) error
}

type storageKeyChecker interface {
	ExistsByStorageKey(ctx context.Context, storageKey string) (bool, error)
}

type OrphanSweepJobParams struct {
	Logger     *logger.Logger
	Storage    objectLister
	Repository storageKeyChecker
	Bucket     string
	OrphanAge  time.Duration
}

// NewOrphanSweepJob builds a job that deletes stored objects no receipt row
// references. The compensating delete in the upload path can itself fail
// (process death between store and insert); this sweep is the backstop.
func NewOrphanSweepJob(params OrphanSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Storage == nil {
		return nil, fmt.Errorf("storage client required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("receipt repository required")
	}
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	age := params.OrphanAge
	if age <= 0 {
		age = defaultOrphanAge
	}
	return &orphanSweepJob{
		logg:      params.Logger,
		storage:   params.Storage,
		repo:      params.Repository,
		bucket:    params.Bucket,
		orphanAge: age,
		now:       time.Now,
	}, nil
}

type orphanSweepJob struct {
	logg      *logger.Logger
	storage   objectLister
	repo      storageKeyChecker
	bucket    string
	orphanAge time.Duration
	now       func() time.Time
}

func (j *orphanSweepJob) Name() string { return "orphan-object-sweep" }

func (j *orphanSweepJob) Run(ctx context.Context) error {
	objects, err := j.storage.ListObjects(ctx, j.bucket, storedObjectPrefix)
	if err != nil {
		return fmt.Errorf("orphan sweep: list objects: %w", err)
	}

	cutoff := j.now().UTC().Add(-j.orphanAge)
	var scanned, deleted int
	for _, object := range objects {
		scanned++
		// Fresh objects may belong to an upload whose row insert has not
		// committed yet. Only objects past the age cutoff are candidates.
		if created, parseErr := time.Parse(time.RFC3339, object.TimeCreated); parseErr != nil || created.After(cutoff) {
			continue
		}

		exists, err := j.repo.ExistsByStorageKey(ctx, object.Name)
		if err != nil {
			return fmt.Errorf("orphan sweep: check %s: %w", object.Name, err)
		}
		if exists {
			continue
		}

		if err := j.storage.DeleteObject(ctx, j.bucket, object.Name); err != nil {
			return fmt.Errorf("orphan sweep: delete %s: %w", object.Name, err)
		}
		deleted++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"objects_scanned": scanned,
		"objects_deleted": deleted,
		"cutoff":          cutoff,
	})
	j.logg.Info(logCtx, "orphan object sweep complete")
	return nil
}
