package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the read-only projection of a financial transaction as the
// engine consumes it. The engine never mutates a transaction; it returns a
// Decision that an external persistence step applies.
type Transaction struct {
	Date         time.Time
	ID           string
	TenantID     string
	AccountID    string
	Description  string
	MerchantName string // empty when the source provided none
	Amount       decimal.Decimal
	CategoryID   *int64 // existing category, nil when uncategorized
}

// FieldValue returns the string value of a matchable field, or empty when the
// field is absent or not a string field.
func (t Transaction) FieldValue(field MatchField) string {
	switch field {
	case FieldDescription:
		return t.Description
	case FieldMerchantName:
		return t.MerchantName
	default:
		return ""
	}
}
