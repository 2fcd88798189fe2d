// Package bridge maps canonical and enriched financial data into the
// domain-state patch consumed by the host application. It never merges
// into existing state; callers own merge semantics.
package bridge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fiscus/internal/domain/canonical"
	"fiscus/internal/domain/enrichment"
)

// minTaxLossThreshold is the minimum unrealized loss, in account currency,
// before a position is worth surfacing as a harvesting candidate.
var minTaxLossThreshold = decimal.NewFromInt(50)

// defaultStudentLoanDeductionLimit applies when the provider does not state
// an annual deduction limit on a student loan.
var defaultStudentLoanDeductionLimit = decimal.NewFromInt(2500)

// retirementTypes maps account subtypes to retirement record types.
// Subtypes not listed here fall back to "other".
var retirementTypes = map[string]string{
	"401k":       "401k",
	"roth 401k":  "roth_401k",
	"403b":       "403b",
	"457b":       "457b",
	"ira":        "traditional_ira",
	"roth":       "roth_ira",
	"roth ira":   "roth_ira",
	"sep ira":    "sep_ira",
	"simple ira": "simple_ira",
	"keogh":      "keogh",
	"pension":    "pension",
}

// IncomeStream is one income candidate aggregated per enriched category.
type IncomeStream struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// ExpenseCandidate is one expense candidate aggregated per enriched
// category, carrying the enrichment's deductibility forward.
type ExpenseCandidate struct {
	Category      string          `json:"category"`
	Total         decimal.Decimal `json:"total"`
	Count         int             `json:"count"`
	Deductible    bool            `json:"deductible"`
	DeductiblePct int             `json:"deductiblePct,omitempty"`
	ScheduleRef   string          `json:"scheduleRef,omitempty"`
}

// RetirementAccount is a tax-advantaged account surfaced for retirement
// planning.
type RetirementAccount struct {
	AccountID string          `json:"accountId"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	TaxType   string          `json:"taxType,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
}

// LiabilityRecord is a debt obligation with its deductible interest already
// resolved (capped where the tax code caps it).
type LiabilityRecord struct {
	AccountID          string          `json:"accountId"`
	Type               string          `json:"type"`
	Balance            decimal.Decimal `json:"balance"`
	InterestRate       decimal.Decimal `json:"interestRate"`
	YTDInterestPaid    decimal.Decimal `json:"ytdInterestPaid"`
	DeductibleInterest decimal.Decimal `json:"deductibleInterest"`
}

// TaxLossCandidate is a losing position in a taxable account.
type TaxLossCandidate struct {
	AccountID          string          `json:"accountId"`
	Symbol             string          `json:"symbol"`
	Name               string          `json:"name"`
	Quantity           decimal.Decimal `json:"quantity"`
	CurrentValue       decimal.Decimal `json:"currentValue"`
	UnrealizedGainLoss decimal.Decimal `json:"unrealizedGainLoss"`
}

// Entity is an owner identity attached to the connection.
type Entity struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Emails []string `json:"emails,omitempty"`
	Phones []string `json:"phones,omitempty"`
}

// Patch is a partial domain-state update. Every field is additive; absent
// data simply yields empty slices.
type Patch struct {
	IncomeStreams           []IncomeStream      `json:"incomeStreams"`
	Expenses                []ExpenseCandidate  `json:"expenses"`
	RetirementAccounts      []RetirementAccount `json:"retirementAccounts"`
	Liabilities             []LiabilityRecord   `json:"liabilities"`
	TaxLossCandidates       []TaxLossCandidate  `json:"taxLossCandidates"`
	Entities                []Entity            `json:"entities"`
	TotalDeductibleInterest decimal.Decimal     `json:"totalDeductibleInterest"`
}

// Summary counts what the patch carries, for logs and sync results.
type Summary struct {
	Accounts           int      `json:"accounts"`
	Transactions       int      `json:"transactions"`
	IncomeStreams      int      `json:"incomeStreams"`
	Expenses           int      `json:"expenses"`
	RetirementAccounts int      `json:"retirementAccounts"`
	Liabilities        int      `json:"liabilities"`
	TaxLossCandidates  int      `json:"taxLossCandidates"`
	Warnings           []string `json:"warnings,omitempty"`
}

// String renders the summary as a single log-friendly line.
func (s Summary) String() string {
	line := fmt.Sprintf("bridged %d accounts and %d transactions into %d income streams, %d expense categories, %d retirement accounts, %d liabilities, %d tax-loss candidates",
		s.Accounts, s.Transactions, s.IncomeStreams, s.Expenses, s.RetirementAccounts, s.Liabilities, s.TaxLossCandidates)
	if len(s.Warnings) > 0 {
		line += fmt.Sprintf(" (%d warnings)", len(s.Warnings))
	}
	return line
}

// Result is a patch plus its summary. Produced fresh on every build.
type Result struct {
	Patch   Patch   `json:"patch"`
	Summary Summary `json:"summary"`
}

// Input is everything one sync gathered for a single connection.
type Input struct {
	Accounts      []canonical.Account
	Transactions  []enrichment.EnrichedTransaction
	Holdings      []canonical.Holding
	Liabilities   []canonical.Liability
	IncomeSources []canonical.IncomeSource
	Identity      *canonical.Identity
}

// Build maps the input into a domain patch.
func Build(in Input) *Result {
	result := &Result{
		Patch: Patch{
			IncomeStreams:      []IncomeStream{},
			Expenses:           []ExpenseCandidate{},
			RetirementAccounts: []RetirementAccount{},
			Liabilities:        []LiabilityRecord{},
			TaxLossCandidates:  []TaxLossCandidate{},
			Entities:           []Entity{},
		},
		Summary: Summary{
			Accounts:     len(in.Accounts),
			Transactions: len(in.Transactions),
		},
	}

	result.Patch.RetirementAccounts = buildRetirementAccounts(in.Accounts)
	result.Patch.IncomeStreams, result.Patch.Expenses = buildStreams(in.Transactions)
	result.Patch.TaxLossCandidates = buildTaxLossCandidates(in.Accounts, in.Holdings, &result.Summary)
	result.Patch.Liabilities, result.Patch.TotalDeductibleInterest = buildLiabilities(in.Liabilities)
	result.Patch.Entities = buildEntities(in.Identity, in.IncomeSources)

	result.Summary.IncomeStreams = len(result.Patch.IncomeStreams)
	result.Summary.Expenses = len(result.Patch.Expenses)
	result.Summary.RetirementAccounts = len(result.Patch.RetirementAccounts)
	result.Summary.Liabilities = len(result.Patch.Liabilities)
	result.Summary.TaxLossCandidates = len(result.Patch.TaxLossCandidates)

	return result
}

func buildRetirementAccounts(accounts []canonical.Account) []RetirementAccount {
	records := []RetirementAccount{}
	for _, acc := range accounts {
		if !acc.TaxAdvantaged {
			continue
		}
		records = append(records, RetirementAccount{
			AccountID: acc.ID,
			Name:      acc.Name,
			Type:      retirementType(acc.Subtype),
			TaxType:   acc.TaxType,
			Balance:   acc.Balances.Current,
		})
	}
	return records
}

func retirementType(subtype string) string {
	if rt, ok := retirementTypes[strings.ToLower(strings.TrimSpace(subtype))]; ok {
		return rt
	}
	return "other"
}

// buildStreams partitions transactions into income and expense candidates,
// one per enriched category. Transfers contribute to neither; tax payments
// are kept out of expense candidates because they are surfaced separately
// by the enrichment statistics.
func buildStreams(txs []enrichment.EnrichedTransaction) ([]IncomeStream, []ExpenseCandidate) {
	income := make(map[string]*IncomeStream)
	expenses := make(map[string]*ExpenseCandidate)

	for _, tx := range txs {
		switch tx.Kind {
		case enrichment.KindIncome:
			stream, ok := income[tx.TaxCategory]
			if !ok {
				stream = &IncomeStream{Category: tx.TaxCategory}
				income[tx.TaxCategory] = stream
			}
			stream.Total = stream.Total.Add(tx.Transaction.Amount)
			stream.Count++
		case enrichment.KindExpense:
			if tx.IsTaxPayment {
				continue
			}
			candidate, ok := expenses[tx.TaxCategory]
			if !ok {
				candidate = &ExpenseCandidate{
					Category:      tx.TaxCategory,
					Deductible:    tx.Deductible,
					DeductiblePct: tx.DeductiblePct,
					ScheduleRef:   tx.ScheduleRef,
				}
				expenses[tx.TaxCategory] = candidate
			}
			candidate.Total = candidate.Total.Add(tx.Transaction.Amount)
			candidate.Count++
		}
	}

	streams := make([]IncomeStream, 0, len(income))
	for _, s := range income {
		streams = append(streams, *s)
	}
	sort.Slice(streams, func(i, j int) bool { return streams[i].Category < streams[j].Category })

	candidates := make([]ExpenseCandidate, 0, len(expenses))
	for _, c := range expenses {
		candidates = append(candidates, *c)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Category < candidates[j].Category })

	return streams, candidates
}

// buildTaxLossCandidates keeps losing positions held in taxable accounts,
// largest loss first.
func buildTaxLossCandidates(accounts []canonical.Account, holdings []canonical.Holding, summary *Summary) []TaxLossCandidate {
	advantaged := make(map[string]bool, len(accounts))
	known := make(map[string]bool, len(accounts))
	for _, acc := range accounts {
		known[acc.ID] = true
		advantaged[acc.ID] = acc.TaxAdvantaged
	}

	candidates := []TaxLossCandidate{}
	for _, h := range holdings {
		if !known[h.AccountID] {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("holding %s references unknown account %s", h.SecurityID, h.AccountID))
			continue
		}
		if advantaged[h.AccountID] {
			continue
		}
		if h.UnrealizedGainLoss.GreaterThanOrEqual(minTaxLossThreshold.Neg()) {
			continue
		}
		candidates = append(candidates, TaxLossCandidate{
			AccountID:          h.AccountID,
			Symbol:             h.Symbol,
			Name:               h.Name,
			Quantity:           h.Quantity,
			CurrentValue:       h.CurrentValue,
			UnrealizedGainLoss: h.UnrealizedGainLoss,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UnrealizedGainLoss.LessThan(candidates[j].UnrealizedGainLoss)
	})
	return candidates
}

// buildLiabilities maps liabilities and resolves their deductible interest.
// Student loan interest is capped at the stated annual deduction limit.
// Interest on types other than mortgage and student loan is never
// deductible, whatever the provider flag says.
func buildLiabilities(liabilities []canonical.Liability) ([]LiabilityRecord, decimal.Decimal) {
	records := []LiabilityRecord{}
	total := decimal.Zero

	for _, l := range liabilities {
		record := LiabilityRecord{
			AccountID:       l.AccountID,
			Type:            l.Type,
			Balance:         l.Balance,
			InterestRate:    l.InterestRate,
			YTDInterestPaid: l.YTDInterestPaid,
		}
		record.DeductibleInterest = deductibleInterest(l)
		total = total.Add(record.DeductibleInterest)
		records = append(records, record)
	}

	return records, total
}

func deductibleInterest(l canonical.Liability) decimal.Decimal {
	if !l.DeductibleInterest {
		return decimal.Zero
	}
	switch l.Type {
	case canonical.LiabilityMortgage:
		return l.YTDInterestPaid
	case canonical.LiabilityStudentLoan:
		limit := l.AnnualDeductionLimit
		if limit.IsZero() {
			limit = defaultStudentLoanDeductionLimit
		}
		if l.YTDInterestPaid.GreaterThan(limit) {
			return limit
		}
		return l.YTDInterestPaid
	default:
		return decimal.Zero
	}
}

// buildEntities surfaces the connection owner from the identity record and
// one employer entity per distinct employer name among the income sources.
func buildEntities(identity *canonical.Identity, incomes []canonical.IncomeSource) []Entity {
	entities := []Entity{}

	if identity != nil {
		for _, name := range identity.Names {
			entities = append(entities, Entity{
				Name:   name,
				Type:   "individual",
				Emails: identity.Emails,
				Phones: identity.Phones,
			})
		}
	}

	seen := make(map[string]bool)
	for _, src := range incomes {
		name := strings.TrimSpace(src.EmployerName)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		entities = append(entities, Entity{Name: name, Type: "employer"})
	}

	return entities
}
