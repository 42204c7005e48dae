package enums

import "fmt"

// ReceiptStatus describes the lifecycle state of an uploaded receipt.
// Transitions are monotonic: pending moves to processed or failed and
// never regresses.
type ReceiptStatus string

const (
	ReceiptStatusPending   ReceiptStatus = "pending"
	ReceiptStatusProcessed ReceiptStatus = "processed"
	ReceiptStatusFailed    ReceiptStatus = "failed"
)

var validReceiptStatuses = []ReceiptStatus{
	ReceiptStatusPending,
	ReceiptStatusProcessed,
	ReceiptStatusFailed,
}

// String returns the literal string for the status.
func (s ReceiptStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s ReceiptStatus) IsValid() bool {
	for _, candidate := range validReceiptStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s ReceiptStatus) IsTerminal() bool {
	return s == ReceiptStatusProcessed || s == ReceiptStatusFailed
}

// ParseReceiptStatus converts raw input into a ReceiptStatus.
func ParseReceiptStatus(value string) (ReceiptStatus, error) {
	for _, candidate := range validReceiptStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid receipt status %q", value)
}
