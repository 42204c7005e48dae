package extraction

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDocument = `{
  "merchantName": "Acme Market",
  "merchantAddress": "1 Main St, Springfield",
  "merchantContact": "+1 555 0100",
  "transactionDate": "2026-08-12",
  "transactionAmount": 42.50,
  "currency": "USD",
  "receiptSummary": "Groceries",
  "items": [
    {"name": "Widget", "quantity": 1, "unitPrice": 42.50, "totalPrice": 42.50}
  ]
}`

func TestParseDocumentSuccess(t *testing.T) {
	fields, err := ParseDocument(validDocument)
	require.NoError(t, err)

	assert.Equal(t, "Acme Market", fields.MerchantName)
	assert.True(t, fields.TransactionAmount.Equal(decimal.RequireFromString("42.50")))
	assert.Equal(t, "USD", fields.Currency)
	require.Len(t, fields.Items, 1)

	item := fields.Items[0]
	assert.Equal(t, "Widget", item.Name)
	assert.Equal(t, 1, item.Quantity)
	assert.True(t, item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Equal(item.TotalPrice))
}

func TestParseDocumentAcceptsAnyCurrencyCode(t *testing.T) {
	for _, code := range []string{"CHF", "INR", "MXN", "XXX"} {
		t.Run(code, func(t *testing.T) {
			doc := strings.Replace(validDocument, `"USD"`, `"`+code+`"`, 1)
			fields, err := ParseDocument(doc)
			require.NoError(t, err)
			assert.Equal(t, code, fields.Currency)
		})
	}
}

func TestParseDocumentNormalizesCurrencyCase(t *testing.T) {
	doc := strings.Replace(validDocument, `"USD"`, `"chf"`, 1)
	fields, err := ParseDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, "CHF", fields.Currency)
}

func TestParseDocumentAcceptsEmptyItems(t *testing.T) {
	doc := strings.Replace(validDocument, `[
    {"name": "Widget", "quantity": 1, "unitPrice": 42.50, "totalPrice": 42.50}
  ]`, "[]", 1)
	fields, err := ParseDocument(doc)
	require.NoError(t, err)
	assert.Empty(t, fields.Items)
}

func TestParseDocumentAcceptsStringAmounts(t *testing.T) {
	doc := strings.Replace(validDocument, `"transactionAmount": 42.50`, `"transactionAmount": "42.50"`, 1)
	fields, err := ParseDocument(doc)
	require.NoError(t, err)
	assert.True(t, fields.TransactionAmount.Equal(decimal.RequireFromString("42.50")))
}

func TestParseDocumentRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty response", "   "},
		{"not json", "sorry, I could not read the receipt"},
		{"missing merchant", strings.Replace(validDocument, `"Acme Market"`, `""`, 1)},
		{"missing amount", strings.Replace(validDocument, `"transactionAmount": 42.50,`, "", 1)},
		{"negative amount", strings.Replace(validDocument, `"transactionAmount": 42.50`, `"transactionAmount": -1`, 1)},
		{"missing currency", strings.Replace(validDocument, `"USD"`, `""`, 1)},
		{"missing date", strings.Replace(validDocument, `"2026-08-12"`, `""`, 1)},
		{"zero quantity", strings.Replace(validDocument, `"quantity": 1`, `"quantity": 0`, 1)},
		{"unnamed item", strings.Replace(validDocument, `"Widget"`, `""`, 1)},
		{"missing unit price", strings.Replace(validDocument, `"unitPrice": 42.50,`, "", 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDocument(tc.raw)
			require.Error(t, err)
			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
		})
	}
}
