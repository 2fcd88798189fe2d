package enrichment

import (
	"strings"

	"github.com/shopspring/decimal"

	"fiscus/internal/domain/canonical"
)

// Transaction kinds assigned by enrichment.
const (
	KindIncome   = "income"
	KindExpense  = "expense"
	KindTransfer = "transfer"
)

// Classification source tiers, highest confidence first.
const (
	SourceMCC      = "mcc"
	SourceMerchant = "merchant"
	SourceCategory = "category"
	SourceDefault  = "default"
)

// Confidence per tier. Strictly decreasing so the classification source is
// always recoverable from the score.
const (
	confidenceMCC      = 0.95
	confidenceMerchant = 0.85
	confidenceCategory = 0.60
	confidenceDefault  = 0.30
)

const categoryUncategorized = "uncategorized"

// EnrichedTransaction is a canonical transaction plus derived tax relevance.
// Purely derived: enriching the same transaction always yields the same
// result, and the embedded transaction is carried unmodified.
type EnrichedTransaction struct {
	Transaction    canonical.Transaction `json:"transaction"`
	TaxCategory    string                `json:"taxCategory"`
	Deductible     bool                  `json:"deductible"`
	DeductiblePct  int                   `json:"deductiblePct"`
	ScheduleRef    string                `json:"scheduleRef,omitempty"`
	Kind           string                `json:"kind"`
	IsTaxPayment   bool                  `json:"isTaxPayment"`
	TaxPaymentType string                `json:"taxPaymentType,omitempty"`
	Confidence     float64               `json:"confidence"`
	Source         string                `json:"source"`
}

// Enrich classifies a single transaction. Deterministic: no clock, no
// randomness, no state. Precedence: MCC table, then merchant patterns, then
// raw category patterns, then uncategorized.
func Enrich(tx canonical.Transaction) EnrichedTransaction {
	e := EnrichedTransaction{
		Transaction: tx,
		Kind:        classifyKind(tx),
	}

	r, source := classify(tx)
	e.TaxCategory = r.Category
	e.Deductible = r.Deductible
	e.DeductiblePct = r.DeductiblePct
	e.ScheduleRef = r.ScheduleRef
	e.Source = source

	switch source {
	case SourceMCC:
		e.Confidence = confidenceMCC
	case SourceMerchant:
		e.Confidence = confidenceMerchant
	case SourceCategory:
		e.Confidence = confidenceCategory
	default:
		e.Confidence = confidenceDefault
	}

	e.IsTaxPayment, e.TaxPaymentType = detectTaxPayment(tx)

	return e
}

// classify walks the tiers in precedence order and returns the first match.
func classify(tx canonical.Transaction) (rule, string) {
	if tx.MCC != "" {
		if r, ok := mccRules[tx.MCC]; ok {
			return r, SourceMCC
		}
	}

	merchant := strings.ToLower(merchantText(tx))
	if merchant != "" {
		for _, p := range merchantRules {
			if strings.Contains(merchant, p.Pattern) {
				return p.Rule, SourceMerchant
			}
		}
	}

	category := strings.ToLower(tx.Category)
	if category != "" {
		for _, p := range categoryRules {
			if strings.Contains(category, p.Pattern) {
				return p.Rule, SourceCategory
			}
		}
	}

	return rule{Category: categoryUncategorized}, SourceDefault
}

// classifyKind partitions a transaction into income, expense or transfer.
// A transaction is a transfer when its direction says so, or when its raw
// category contains "transfer" or exactly equals "payment" (case-insensitive).
func classifyKind(tx canonical.Transaction) string {
	if tx.Direction == canonical.DirectionTransfer {
		return KindTransfer
	}
	category := strings.ToLower(strings.TrimSpace(tx.Category))
	if strings.Contains(category, "transfer") || category == "payment" {
		return KindTransfer
	}
	if tx.Direction == canonical.DirectionCredit {
		return KindIncome
	}
	return KindExpense
}

// detectTaxPayment flags a transaction as a tax payment only on an explicit
// payee or category match against the tax-authority pattern set. Amount is
// never considered.
func detectTaxPayment(tx canonical.Transaction) (bool, string) {
	text := strings.ToLower(merchantText(tx))
	category := strings.ToLower(tx.Category)

	for _, p := range taxAuthorityPatterns {
		if strings.Contains(text, p.Pattern) || strings.Contains(category, p.Pattern) {
			return true, p.PaymentType
		}
	}

	// The tax-payments MCC and a bare "tax"/"taxes" category are explicit
	// matches too, with no authority to attribute.
	if tx.MCC == "9311" || category == "tax" || category == "taxes" {
		return true, "other"
	}

	return false, ""
}

func merchantText(tx canonical.Transaction) string {
	if tx.MerchantName != "" {
		return tx.MerchantName
	}
	return tx.Name
}

// CategoryStat aggregates one enriched category inside a batch.
type CategoryStat struct {
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// Stats are the aggregate figures of an enriched batch. Tax payments are
// tracked separately and excluded from the deductible/non-deductible and
// expense totals; transfers contribute to no total.
type Stats struct {
	TotalTransactions  int                     `json:"totalTransactions"`
	IncomeTotal        decimal.Decimal         `json:"incomeTotal"`
	ExpenseTotal       decimal.Decimal         `json:"expenseTotal"`
	DeductibleTotal    decimal.Decimal         `json:"deductibleTotal"`
	NonDeductibleTotal decimal.Decimal         `json:"nonDeductibleTotal"`
	TaxPaymentTotal    decimal.Decimal         `json:"taxPaymentTotal"`
	ByCategory         map[string]CategoryStat `json:"byCategory"`
}

// Batch is the result of enriching a transaction set.
type Batch struct {
	Transactions []EnrichedTransaction `json:"transactions"`
	Stats        Stats                 `json:"stats"`
}

// EnrichBatch enriches every transaction and computes aggregate statistics.
// No side effects; safe to call on an empty or nil slice.
func EnrichBatch(txs []canonical.Transaction) Batch {
	batch := Batch{
		Transactions: make([]EnrichedTransaction, 0, len(txs)),
		Stats: Stats{
			TotalTransactions: len(txs),
			ByCategory:        make(map[string]CategoryStat),
		},
	}

	for _, tx := range txs {
		e := Enrich(tx)
		batch.Transactions = append(batch.Transactions, e)

		stat := batch.Stats.ByCategory[e.TaxCategory]
		stat.Total = stat.Total.Add(tx.Amount)
		stat.Count++
		batch.Stats.ByCategory[e.TaxCategory] = stat

		if e.Kind == KindTransfer {
			continue
		}

		if e.IsTaxPayment {
			batch.Stats.TaxPaymentTotal = batch.Stats.TaxPaymentTotal.Add(tx.Amount)
			continue
		}

		switch e.Kind {
		case KindIncome:
			batch.Stats.IncomeTotal = batch.Stats.IncomeTotal.Add(tx.Amount)
		case KindExpense:
			batch.Stats.ExpenseTotal = batch.Stats.ExpenseTotal.Add(tx.Amount)
			if e.Deductible {
				pct := decimal.NewFromInt(int64(e.DeductiblePct))
				deductible := tx.Amount.Mul(pct).Div(decimal.NewFromInt(100))
				batch.Stats.DeductibleTotal = batch.Stats.DeductibleTotal.Add(deductible)
				batch.Stats.NonDeductibleTotal = batch.Stats.NonDeductibleTotal.Add(tx.Amount.Sub(deductible))
			} else {
				batch.Stats.NonDeductibleTotal = batch.Stats.NonDeductibleTotal.Add(tx.Amount)
			}
		}
	}

	return batch
}
