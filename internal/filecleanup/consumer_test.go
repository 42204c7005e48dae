package filecleanup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/logger"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox/payloads"
)

type stubDeleter struct {
	deleted []string
	err     error
}

func (s *stubDeleter) DeleteObject(ctx context.Context, bucket, object string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, object)
	return nil
}

func buildMessage(t *testing.T, storageKey string) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payloads.ReceiptFileDeleteEvent{
		ReceiptID:  uuid.New(),
		OwnerID:    uuid.New(),
		StorageKey: storageKey,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		Attributes: map[string]string{
			"event_type": string(enums.EventReceiptFileDelete),
		},
		Data: envelope,
	}
}

func newTestConsumer(t *testing.T, storage *stubDeleter) *Consumer {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	consumer, err := NewConsumer(storage, &pubsub.Subscriber{}, logg, "receipt-bucket")
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return consumer
}

func TestConsumerDeletesObject(t *testing.T) {
	t.Parallel()

	storage := &stubDeleter{}
	consumer := newTestConsumer(t, storage)

	result := consumer.process(context.Background(), buildMessage(t, "receipts/abc/invoice.pdf"))
	if !result.ack || result.nack {
		t.Fatal("expected ack result")
	}
	if len(storage.deleted) != 1 || storage.deleted[0] != "receipts/abc/invoice.pdf" {
		t.Fatalf("unexpected deletes: %v", storage.deleted)
	}
}

func TestConsumerNacksOnStorageError(t *testing.T) {
	t.Parallel()

	storage := &stubDeleter{err: errors.New("gcs unavailable")}
	consumer := newTestConsumer(t, storage)

	result := consumer.process(context.Background(), buildMessage(t, "receipts/abc/invoice.pdf"))
	if !result.nack {
		t.Fatal("expected nack on storage failure")
	}
}

func TestConsumerAcksPoisonMessage(t *testing.T) {
	t.Parallel()

	storage := &stubDeleter{}
	consumer := newTestConsumer(t, storage)

	result := consumer.process(context.Background(), &pubsub.Message{Data: []byte("{")})
	if !result.ack {
		t.Fatal("expected undecodable message to be acked")
	}
	if len(storage.deleted) != 0 {
		t.Fatal("poison message must not delete anything")
	}
}

func TestConsumerAcksMissingStorageKey(t *testing.T) {
	t.Parallel()

	storage := &stubDeleter{}
	consumer := newTestConsumer(t, storage)

	result := consumer.process(context.Background(), buildMessage(t, "  "))
	if !result.ack {
		t.Fatal("expected ack for payload without storage key")
	}
	if len(storage.deleted) != 0 {
		t.Fatal("nothing should be deleted without a storage key")
	}
}
