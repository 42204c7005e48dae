package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omarcastero/receiptscan-backend/pkg/storage/gcs"
)

type fakeObjectLister struct {
	objects []gcs.ObjectInfo
	listErr error
	deleted []string
}

func (f *fakeObjectLister) ListObjects(_ context.Context, _, _ string) ([]gcs.ObjectInfo, error) {
	return f.objects, f.listErr
}

func (f *fakeObjectLister) DeleteObject(_ context.Context, _, object string) error {
	f.deleted = append(f.deleted, object)
	return nil
}

type fakeStorageKeyChecker struct {
	known map[string]bool
	err   error
}

func (f *fakeStorageKeyChecker) ExistsByStorageKey(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.known[key], nil
}

func TestOrphanSweepJobDeletesUnreferencedObjects(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour).Format(time.RFC3339)
	fresh := now.Add(-time.Hour).Format(time.RFC3339)

	storage := &fakeObjectLister{objects: []gcs.ObjectInfo{
		{Name: "receipts/a/orphan.pdf", TimeCreated: old},
		{Name: "receipts/b/live.pdf", TimeCreated: old},
		{Name: "receipts/c/fresh.pdf", TimeCreated: fresh},
	}}
	repo := &fakeStorageKeyChecker{known: map[string]bool{
		"receipts/b/live.pdf": true,
	}}

	jobIface, err := NewOrphanSweepJob(OrphanSweepJobParams{
		Logger:     testLogger(),
		Storage:    storage,
		Repository: repo,
		Bucket:     "receipts-bucket",
	})
	if err != nil {
		t.Fatalf("NewOrphanSweepJob: %v", err)
	}
	job, ok := jobIface.(*orphanSweepJob)
	if !ok {
		t.Fatalf("expected orphanSweepJob, got %T", jobIface)
	}
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(storage.deleted) != 1 || storage.deleted[0] != "receipts/a/orphan.pdf" {
		t.Fatalf("unexpected deletions %v", storage.deleted)
	}
}

func TestOrphanSweepJobSkipsFreshObjects(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	storage := &fakeObjectLister{objects: []gcs.ObjectInfo{
		{Name: "receipts/a/in-flight.pdf", TimeCreated: now.Add(-5 * time.Minute).Format(time.RFC3339)},
	}}
	repo := &fakeStorageKeyChecker{known: map[string]bool{}}

	jobIface, err := NewOrphanSweepJob(OrphanSweepJobParams{
		Logger:     testLogger(),
		Storage:    storage,
		Repository: repo,
		Bucket:     "receipts-bucket",
	})
	if err != nil {
		t.Fatalf("NewOrphanSweepJob: %v", err)
	}
	job, ok := jobIface.(*orphanSweepJob)
	if !ok {
		t.Fatalf("expected orphanSweepJob, got %T", jobIface)
	}
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(storage.deleted) != 0 {
		t.Fatalf("fresh object must not be deleted, got %v", storage.deleted)
	}
}

func TestOrphanSweepJobPropagatesListError(t *testing.T) {
	storage := &fakeObjectLister{listErr: errors.New("list failed")}
	job, err := NewOrphanSweepJob(OrphanSweepJobParams{
		Logger:     testLogger(),
		Storage:    storage,
		Repository: &fakeStorageKeyChecker{},
		Bucket:     "receipts-bucket",
	})
	if err != nil {
		t.Fatalf("NewOrphanSweepJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected list error to propagate")
	}
}
