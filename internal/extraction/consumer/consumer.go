package consumer

import (
	"context"
	"encoding/json"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/logger"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox"
	"github.com/omarcastero/receiptscan-backend/pkg/outbox/payloads"
)

const consumerName = "extraction-worker"

type processor interface {
	Process(ctx context.Context, receiptID uuid.UUID) error
}

type dedupeGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer feeds receipt_uploaded events from Pub/Sub into the extraction
// pipeline.
type Consumer struct {
	pipeline     processor
	dedupe       dedupeGuard
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewConsumer wires the extraction pipeline to the receipts subscription.
func NewConsumer(pipeline processor, dedupe dedupeGuard, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if pipeline == nil {
		return nil, errors.New("extraction pipeline is required")
	}
	if dedupe == nil {
		return nil, errors.New("dedupe guard is required")
	}
	if subscription == nil {
		return nil, errors.New("receipts subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		pipeline:     pipeline,
		dedupe:       dedupe,
		subscription: subscription,
		logg:         logg,
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

	if eventType := msg.Attributes["event_type"]; eventType != "" && eventType != string(enums.EventReceiptUploaded) {
		c.logg.Info(logCtx, "skipping unrelated event type")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode event envelope", err)
		return processResult{ack: true}
	}

	var payload payloads.ReceiptUploadedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to decode receipt_uploaded payload", err)
		return processResult{ack: true}
	}
	if payload.ReceiptID == uuid.Nil {
		c.logg.Error(logCtx, "payload missing receipt id", errors.New("empty receipt_id"))
		return processResult{ack: true}
	}

	fields["receipt_id"] = payload.ReceiptID.String()
	fields["event_id"] = envelope.EventID
	logCtx = c.logg.WithFields(ctx, fields)

	eventID, guarded := c.markProcessed(logCtx, envelope.EventID)
	if guarded && eventID == uuid.Nil {
		c.logg.Info(logCtx, "duplicate delivery skipped")
		return processResult{ack: true}
	}

	if err := c.pipeline.Process(logCtx, payload.ReceiptID); err != nil {
		c.logg.Error(logCtx, "extraction attempt failed, message will be redelivered", err)
		if guarded && eventID != uuid.Nil {
			if delErr := c.dedupe.Delete(ctx, consumerName, eventID); delErr != nil {
				c.logg.Warn(c.logg.WithField(logCtx, "error", delErr.Error()), "failed to clear dedupe marker")
			}
		}
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

// markProcessed applies the dedupe guard when the envelope carries a usable
// event ID. It returns (uuid.Nil, true) for a duplicate, (id, true) for a
// first delivery, and (uuid.Nil, false) when the guard could not be applied.
func (c *Consumer) markProcessed(ctx context.Context, rawEventID string) (uuid.UUID, bool) {
	eventID, err := uuid.Parse(rawEventID)
	if err != nil {
		c.logg.Warn(ctx, "envelope has no usable event id, dedupe guard skipped")
		return uuid.Nil, false
	}
	already, err := c.dedupe.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		// Redis being down must not stall extraction. Process guards
		// against duplicate settlement on its own.
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "dedupe guard unavailable")
		return uuid.Nil, false
	}
	if already {
		return uuid.Nil, true
	}
	return eventID, true
}
