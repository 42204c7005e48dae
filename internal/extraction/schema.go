package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/omarcastero/receiptscan-backend/internal/receipts"
	"github.com/omarcastero/receiptscan-backend/pkg/enums"
	"github.com/omarcastero/receiptscan-backend/pkg/types"
)

// extractionInstruction is the prompt sent alongside the PDF bytes. The model
// must answer with a single JSON object matching receiptDocument.
const extractionInstruction = `Extract the data from the receipt and return it as a single JSON object with exactly these fields:
{
  "merchantName": string,
  "merchantAddress": string,
  "merchantContact": string,
  "transactionDate": string (ISO 8601 date),
  "transactionAmount": number,
  "currency": string (ISO 4217 code),
  "receiptSummary": string,
  "items": [{"name": string, "quantity": number, "unitPrice": number, "totalPrice": number}]
}
Return only the JSON object, with no surrounding prose or markdown fences.`

// receiptDocument mirrors the JSON contract the model is instructed to emit.
// Amounts decode through shopspring decimal so string and numeric forms both
// parse without float drift.
type receiptDocument struct {
	MerchantName      string           `json:"merchantName"`
	MerchantAddress   string           `json:"merchantAddress"`
	MerchantContact   string           `json:"merchantContact"`
	TransactionDate   string           `json:"transactionDate"`
	TransactionAmount *decimal.Decimal `json:"transactionAmount"`
	Currency          string           `json:"currency"`
	ReceiptSummary    string           `json:"receiptSummary"`
	Items             []documentItem   `json:"items"`
}

type documentItem struct {
	Name       string           `json:"name"`
	Quantity   *int             `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unitPrice"`
	TotalPrice *decimal.Decimal `json:"totalPrice"`
}

// SchemaError reports why a model response failed validation. It is terminal
// for the record: the response cannot be salvaged by retrying the same call.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "schema mismatch: " + e.Reason
}

func newSchemaError(format string, args ...any) *SchemaError {
	return &SchemaError{Reason: fmt.Sprintf(format, args...)}
}

// ParseDocument decodes and validates a raw model response into the field set
// applied to the receipt row. The response is untrusted input: every required
// field is checked before anything is persisted.
func ParseDocument(raw string) (receipts.ExtractedFields, error) {
	var zero receipts.ExtractedFields

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return zero, newSchemaError("empty response body")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	var doc receiptDocument
	if err := dec.Decode(&doc); err != nil {
		return zero, newSchemaError("response is not valid JSON: %v", err)
	}

	var verr error
	if strings.TrimSpace(doc.MerchantName) == "" {
		verr = multierr.Append(verr, fmt.Errorf("merchantName is required"))
	}
	if strings.TrimSpace(doc.TransactionDate) == "" {
		verr = multierr.Append(verr, fmt.Errorf("transactionDate is required"))
	}
	if doc.TransactionAmount == nil {
		verr = multierr.Append(verr, fmt.Errorf("transactionAmount is required"))
	} else if doc.TransactionAmount.IsNegative() {
		verr = multierr.Append(verr, fmt.Errorf("transactionAmount must not be negative"))
	}
	currency, err := enums.ParseCurrency(doc.Currency)
	if err != nil {
		verr = multierr.Append(verr, fmt.Errorf("currency: %w", err))
	}

	items := make(types.LineItems, 0, len(doc.Items))
	for i, item := range doc.Items {
		if strings.TrimSpace(item.Name) == "" {
			verr = multierr.Append(verr, fmt.Errorf("items[%d].name is required", i))
		}
		if item.Quantity == nil || *item.Quantity <= 0 {
			verr = multierr.Append(verr, fmt.Errorf("items[%d].quantity must be a positive integer", i))
		}
		if item.UnitPrice == nil {
			verr = multierr.Append(verr, fmt.Errorf("items[%d].unitPrice is required", i))
		} else if item.UnitPrice.IsNegative() {
			verr = multierr.Append(verr, fmt.Errorf("items[%d].unitPrice must not be negative", i))
		}
		if item.TotalPrice == nil {
			verr = multierr.Append(verr, fmt.Errorf("items[%d].totalPrice is required", i))
		} else if item.TotalPrice.IsNegative() {
			verr = multierr.Append(verr, fmt.Errorf("items[%d].totalPrice must not be negative", i))
		}
		if verr != nil {
			continue
		}
		items = append(items, types.LineItem{
			Name:       strings.TrimSpace(item.Name),
			Quantity:   *item.Quantity,
			UnitPrice:  *item.UnitPrice,
			TotalPrice: *item.TotalPrice,
		})
	}

	if verr != nil {
		return zero, newSchemaError("%v", verr)
	}

	return receipts.ExtractedFields{
		MerchantName:      strings.TrimSpace(doc.MerchantName),
		MerchantAddress:   strings.TrimSpace(doc.MerchantAddress),
		MerchantContact:   strings.TrimSpace(doc.MerchantContact),
		TransactionDate:   strings.TrimSpace(doc.TransactionDate),
		TransactionAmount: *doc.TransactionAmount,
		Currency:          string(currency),
		ReceiptSummary:    strings.TrimSpace(doc.ReceiptSummary),
		Items:             items,
	}, nil
}
