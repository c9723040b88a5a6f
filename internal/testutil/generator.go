package testutil

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/thetally/categorize/internal/model"
)

// TransactionGenerator fabricates plausible transactions for tests and
// benchmarks. Seeded, so generated data is reproducible across runs.
type TransactionGenerator struct {
	faker    *gofakeit.Faker
	tenantID string
	next     int
}

// NewTransactionGenerator creates a generator for the given tenant.
func NewTransactionGenerator(seed uint64, tenantID string) *TransactionGenerator {
	return &TransactionGenerator{
		faker:    gofakeit.New(seed),
		tenantID: tenantID,
	}
}

// Generate returns n transactions with sequential IDs, fake merchants and
// amounts between -500.00 and 500.00.
func (g *TransactionGenerator) Generate(n int) []model.Transaction {
	transactions := make([]model.Transaction, 0, n)
	for i := 0; i < n; i++ {
		g.next++
		merchant := g.faker.Company()
		amount := decimal.NewFromFloat(g.faker.Float64Range(-500, 500)).Round(2)

		transactions = append(transactions, model.Transaction{
			ID:           fmt.Sprintf("txn-%04d", g.next),
			TenantID:     g.tenantID,
			AccountID:    "acct-1",
			Date:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, g.next),
			Description:  fmt.Sprintf("%s purchase %d", merchant, g.next),
			MerchantName: merchant,
			Amount:       amount,
		})
	}
	return transactions
}
