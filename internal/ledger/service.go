package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/omarcastero/receiptscan-backend/pkg/db/models"
	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/types"
)

// Service defines operations that record usage events for billing.
type Service interface {
	RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	HasEvent(ctx context.Context, receiptID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
}

type service struct {
	repo Repository
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
type RecordLedgerEventInput struct {
	OwnerID   uuid.UUID             `json:"owner_id"`
	ReceiptID uuid.UUID             `json:"receipt_id"`
	Type      enums.LedgerEventType `json:"type"`
	Quantity  int                   `json:"quantity"`
	Metadata  types.JSONMap         `json:"metadata"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if input.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("owner id is required")
	}
	if input.ReceiptID == uuid.Nil {
		return nil, fmt.Errorf("receipt id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	event := &models.LedgerEvent{
		OwnerID:   input.OwnerID,
		ReceiptID: input.ReceiptID,
		Type:      input.Type,
		Quantity:  quantity,
		Metadata:  input.Metadata,
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) HasEvent(ctx context.Context, receiptID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if receiptID == uuid.Nil {
		return false, fmt.Errorf("receipt id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}

	events, err := s.repo.ListByReceiptID(ctx, receiptID)
	if err != nil {
		return false, err
	}
	for _, event := range events {
		if event.Type == eventType {
			return true, nil
		}
	}
	return false, nil
}
