package filecleanup

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/logger"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox/payloads"
)

type objectDeleter interface {
	DeleteObject(ctx context.Context, bucket, object string) error
}

// Consumer removes storage objects for deleted receipts. The delete event is
// emitted in the same transaction that removes the row, so a consumed message
// always refers to an orphaned object.
type Consumer struct {
	storage      objectDeleter
	subscription *pubsub.Subscriber
	logg         *logger.Logger
	bucket       string
}

func NewConsumer(storage objectDeleter, subscription *pubsub.Subscriber, logg *logger.Logger, bucket string) (*Consumer, error) {
	if storage == nil {
		return nil, errors.New("storage client is required")
	}
	if subscription == nil {
		return nil, errors.New("file cleanup subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	return &Consumer{
		storage:      storage,
		subscription: subscription,
		logg:         logg,
		bucket:       bucket,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes["event_type"],
	}
	logCtx := c.logg.WithFields(ctx, fields)

	if eventType := msg.Attributes["event_type"]; eventType != "" && eventType != string(enums.EventReceiptFileDelete) {
		c.logg.Info(logCtx, "skipping unrelated event type")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode event envelope", err)
		return processResult{ack: true}
	}

	var payload payloads.ReceiptFileDeleteEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to decode receipt_file_delete payload", err)
		return processResult{ack: true}
	}
	if strings.TrimSpace(payload.StorageKey) == "" {
		c.logg.Error(logCtx, "payload missing storage key", errors.New("empty storage_key"))
		return processResult{ack: true}
	}

	fields["storage_key"] = payload.StorageKey
	fields["receipt_id"] = payload.ReceiptID.String()
	logCtx = c.logg.WithFields(ctx, fields)

	if err := c.storage.DeleteObject(ctx, c.bucket, payload.StorageKey); err != nil {
		c.logg.Error(logCtx, "failed to delete storage object", err)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "storage object removed")
	return processResult{ack: true}
}
