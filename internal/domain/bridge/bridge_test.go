package bridge

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"fiscus/internal/domain/canonical"
	"fiscus/internal/domain/enrichment"
)

// investmentAccount builds a profiled account. The explicit flag wins over
// the profile so subtypes outside the profile map can still be marked
// advantaged.
func investmentAccount(id, subtype string, advantaged bool) canonical.Account {
	acc := canonical.Account{
		ID:       id,
		Name:     "Brokerage " + id,
		Type:     canonical.AccountTypeInvestment,
		Subtype:  subtype,
		Balances: canonical.Balances{Current: decimal.NewFromInt(10000), Currency: "USD"},
	}
	canonical.ApplyTaxProfile(&acc)
	acc.TaxAdvantaged = advantaged
	return acc
}

func enriched(kind, category string, amount int64, mutate func(*enrichment.EnrichedTransaction)) enrichment.EnrichedTransaction {
	e := enrichment.EnrichedTransaction{
		Transaction: canonical.Transaction{
			ID:     "tx-" + category,
			Amount: decimal.NewFromInt(amount),
		},
		Kind:        kind,
		TaxCategory: category,
	}
	if mutate != nil {
		mutate(&e)
	}
	return e
}

func TestBuildRetirementAccounts(t *testing.T) {
	tests := []struct {
		name     string
		account  canonical.Account
		want     int
		wantType string
	}{
		{
			name:     "401k maps directly",
			account:  investmentAccount("a1", "401k", true),
			want:     1,
			wantType: "401k",
		},
		{
			name:     "roth ira maps to roth_ira",
			account:  investmentAccount("a2", "Roth IRA", true),
			want:     1,
			wantType: "roth_ira",
		},
		{
			name:     "unmapped subtype falls back to other",
			account:  investmentAccount("a3", "cash balance plan", true),
			want:     1,
			wantType: "other",
		},
		{
			name:    "taxable brokerage is not retirement",
			account: investmentAccount("a4", "brokerage", false),
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Build(Input{Accounts: []canonical.Account{tt.account}})

			if len(result.Patch.RetirementAccounts) != tt.want {
				t.Fatalf("len(RetirementAccounts) = %d, want %d", len(result.Patch.RetirementAccounts), tt.want)
			}
			if tt.want == 1 {
				got := result.Patch.RetirementAccounts[0]
				if got.Type != tt.wantType {
					t.Errorf("Type = %q, want %q", got.Type, tt.wantType)
				}
				if got.AccountID != tt.account.ID {
					t.Errorf("AccountID = %q, want %q", got.AccountID, tt.account.ID)
				}
			}
		})
	}
}

func TestBuildStreams(t *testing.T) {
	txs := []enrichment.EnrichedTransaction{
		enriched(enrichment.KindIncome, "salary_income", 5000, nil),
		enriched(enrichment.KindIncome, "salary_income", 5000, nil),
		enriched(enrichment.KindIncome, "dividend_income", 120, nil),
		enriched(enrichment.KindExpense, "software", 40, func(e *enrichment.EnrichedTransaction) {
			e.Deductible = true
			e.DeductiblePct = 100
			e.ScheduleRef = "Schedule C"
		}),
		enriched(enrichment.KindExpense, "software", 15, func(e *enrichment.EnrichedTransaction) {
			e.Deductible = true
			e.DeductiblePct = 100
			e.ScheduleRef = "Schedule C"
		}),
		enriched(enrichment.KindExpense, "dining", 60, nil),
		// Tax payments never become expense candidates.
		enriched(enrichment.KindExpense, "tax_payment", 1200, func(e *enrichment.EnrichedTransaction) {
			e.IsTaxPayment = true
			e.TaxPaymentType = "federal"
		}),
		// Transfers contribute to neither side.
		enriched(enrichment.KindTransfer, "uncategorized", 900, nil),
	}

	result := Build(Input{Transactions: txs})

	if len(result.Patch.IncomeStreams) != 2 {
		t.Fatalf("len(IncomeStreams) = %d, want 2", len(result.Patch.IncomeStreams))
	}
	// Sorted by category: dividend_income before salary_income.
	if result.Patch.IncomeStreams[0].Category != "dividend_income" {
		t.Errorf("IncomeStreams[0].Category = %q, want dividend_income", result.Patch.IncomeStreams[0].Category)
	}
	salary := result.Patch.IncomeStreams[1]
	if salary.Count != 2 || !salary.Total.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("salary stream = %+v, want count 2 total 10000", salary)
	}

	if len(result.Patch.Expenses) != 2 {
		t.Fatalf("len(Expenses) = %d, want 2", len(result.Patch.Expenses))
	}
	for _, e := range result.Patch.Expenses {
		if e.Category == "tax_payment" {
			t.Error("tax payment surfaced as an expense candidate")
		}
	}
	var software ExpenseCandidate
	for _, e := range result.Patch.Expenses {
		if e.Category == "software" {
			software = e
		}
	}
	if software.Count != 2 || !software.Total.Equal(decimal.NewFromInt(55)) {
		t.Errorf("software candidate = %+v, want count 2 total 55", software)
	}
	if !software.Deductible || software.DeductiblePct != 100 || software.ScheduleRef != "Schedule C" {
		t.Errorf("software deductibility not carried forward: %+v", software)
	}
}

func TestBuildTaxLossCandidates(t *testing.T) {
	accounts := []canonical.Account{
		investmentAccount("taxable", "brokerage", false),
		investmentAccount("roth", "roth ira", true),
	}
	holdings := []canonical.Holding{
		{AccountID: "taxable", SecurityID: "s1", Symbol: "VTI", UnrealizedGainLoss: decimal.NewFromInt(-75)},
		{AccountID: "roth", SecurityID: "s2", Symbol: "VTI", UnrealizedGainLoss: decimal.NewFromInt(-75)},
		{AccountID: "taxable", SecurityID: "s3", Symbol: "BND", UnrealizedGainLoss: decimal.NewFromInt(-30)},
		{AccountID: "taxable", SecurityID: "s4", Symbol: "VXUS", UnrealizedGainLoss: decimal.NewFromInt(-220)},
		{AccountID: "taxable", SecurityID: "s5", Symbol: "QQQ", UnrealizedGainLoss: decimal.NewFromInt(310)},
	}

	result := Build(Input{Accounts: accounts, Holdings: holdings})

	got := result.Patch.TaxLossCandidates
	if len(got) != 2 {
		t.Fatalf("len(TaxLossCandidates) = %d, want 2", len(got))
	}
	// Largest loss first.
	if got[0].Symbol != "VXUS" || got[1].Symbol != "VTI" {
		t.Errorf("candidates = [%s %s], want [VXUS VTI]", got[0].Symbol, got[1].Symbol)
	}
	for _, c := range got {
		if c.AccountID == "roth" {
			t.Error("tax-advantaged holding surfaced as a harvesting candidate")
		}
	}
}

func TestBuildTaxLossCandidateUnknownAccount(t *testing.T) {
	holdings := []canonical.Holding{
		{AccountID: "ghost", SecurityID: "s1", Symbol: "VTI", UnrealizedGainLoss: decimal.NewFromInt(-75)},
	}

	result := Build(Input{Holdings: holdings})

	if len(result.Patch.TaxLossCandidates) != 0 {
		t.Errorf("len(TaxLossCandidates) = %d, want 0", len(result.Patch.TaxLossCandidates))
	}
	if len(result.Summary.Warnings) != 1 {
		t.Fatalf("len(Warnings) = %d, want 1", len(result.Summary.Warnings))
	}
	if !strings.Contains(result.Summary.Warnings[0], "ghost") {
		t.Errorf("warning %q does not name the unknown account", result.Summary.Warnings[0])
	}
}

func TestBuildLiabilities(t *testing.T) {
	tests := []struct {
		name        string
		liabilities []canonical.Liability
		wantTotal   int64
	}{
		{
			name: "mortgage plus capped student loan",
			liabilities: []canonical.Liability{
				{
					AccountID:          "m1",
					Type:               canonical.LiabilityMortgage,
					YTDInterestPaid:    decimal.NewFromInt(9000),
					DeductibleInterest: true,
				},
				{
					AccountID:          "s1",
					Type:               canonical.LiabilityStudentLoan,
					YTDInterestPaid:    decimal.NewFromInt(3400),
					DeductibleInterest: true,
				},
			},
			wantTotal: 11500,
		},
		{
			name: "student loan under the default cap",
			liabilities: []canonical.Liability{
				{
					Type:               canonical.LiabilityStudentLoan,
					YTDInterestPaid:    decimal.NewFromInt(1800),
					DeductibleInterest: true,
				},
			},
			wantTotal: 1800,
		},
		{
			name: "explicit deduction limit overrides the default",
			liabilities: []canonical.Liability{
				{
					Type:                 canonical.LiabilityStudentLoan,
					YTDInterestPaid:      decimal.NewFromInt(3400),
					AnnualDeductionLimit: decimal.NewFromInt(3000),
					DeductibleInterest:   true,
				},
			},
			wantTotal: 3000,
		},
		{
			name: "flag unset surfaces nothing",
			liabilities: []canonical.Liability{
				{
					Type:            canonical.LiabilityMortgage,
					YTDInterestPaid: decimal.NewFromInt(9000),
				},
			},
			wantTotal: 0,
		},
		{
			name: "credit card interest is never deductible",
			liabilities: []canonical.Liability{
				{
					Type:               canonical.LiabilityCreditCard,
					YTDInterestPaid:    decimal.NewFromInt(600),
					DeductibleInterest: true,
				},
			},
			wantTotal: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Build(Input{Liabilities: tt.liabilities})

			if len(result.Patch.Liabilities) != len(tt.liabilities) {
				t.Fatalf("len(Liabilities) = %d, want %d", len(result.Patch.Liabilities), len(tt.liabilities))
			}
			if !result.Patch.TotalDeductibleInterest.Equal(decimal.NewFromInt(tt.wantTotal)) {
				t.Errorf("TotalDeductibleInterest = %s, want %d", result.Patch.TotalDeductibleInterest, tt.wantTotal)
			}
		})
	}
}

func TestBuildEntities(t *testing.T) {
	result := Build(Input{
		Identity: &canonical.Identity{
			Names:  []string{"Ada Lovelace"},
			Emails: []string{"ada@example.com"},
		},
		IncomeSources: []canonical.IncomeSource{
			{EmployerName: "Initech", AnnualAmount: decimal.NewFromInt(95000), Verified: true},
			{EmployerName: "initech", AnnualAmount: decimal.NewFromInt(95000)},
			{EmployerName: ""},
		},
	})

	if len(result.Patch.Entities) != 2 {
		t.Fatalf("len(Entities) = %d, want 2", len(result.Patch.Entities))
	}
	owner := result.Patch.Entities[0]
	if owner.Name != "Ada Lovelace" || owner.Type != "individual" {
		t.Errorf("entity = %+v, want individual Ada Lovelace", owner)
	}
	employer := result.Patch.Entities[1]
	if employer.Name != "Initech" || employer.Type != "employer" {
		t.Errorf("entity = %+v, want employer Initech", employer)
	}

	empty := Build(Input{})
	if len(empty.Patch.Entities) != 0 {
		t.Errorf("len(Entities) without identity = %d, want 0", len(empty.Patch.Entities))
	}
}

func TestSummaryString(t *testing.T) {
	result := Build(Input{
		Accounts: []canonical.Account{investmentAccount("a1", "401k", true)},
		Transactions: []enrichment.EnrichedTransaction{
			enriched(enrichment.KindIncome, "salary_income", 5000, nil),
		},
	})

	line := result.Summary.String()
	if !strings.Contains(line, "1 accounts") || !strings.Contains(line, "1 income streams") {
		t.Errorf("Summary.String() = %q, missing counts", line)
	}

	result.Summary.Warnings = []string{"something"}
	if !strings.Contains(result.Summary.String(), "1 warnings") {
		t.Errorf("Summary.String() = %q, missing warning count", result.Summary.String())
	}
}
