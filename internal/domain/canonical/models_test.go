package canonical

import "testing"

func TestApplyTaxProfile(t *testing.T) {
	tests := []struct {
		name           string
		accountType    string
		subtype        string
		wantAdvantaged bool
		wantTaxType    string
		wantCategory   string
	}{
		{
			name:           "401k is pre-tax retirement",
			accountType:    AccountTypeInvestment,
			subtype:        "401k",
			wantAdvantaged: true,
			wantTaxType:    "pre_tax",
			wantCategory:   "retirement",
		},
		{
			name:           "Roth IRA is roth retirement",
			accountType:    AccountTypeInvestment,
			subtype:        "roth ira",
			wantAdvantaged: true,
			wantTaxType:    "roth",
			wantCategory:   "retirement",
		},
		{
			name:           "Subtype matching is case-insensitive",
			accountType:    AccountTypeInvestment,
			subtype:        "  Roth IRA ",
			wantAdvantaged: true,
			wantTaxType:    "roth",
			wantCategory:   "retirement",
		},
		{
			name:           "HSA maps to health",
			accountType:    AccountTypeInvestment,
			subtype:        "hsa",
			wantAdvantaged: true,
			wantTaxType:    "hsa",
			wantCategory:   "health",
		},
		{
			name:           "Brokerage is taxable investment",
			accountType:    AccountTypeInvestment,
			subtype:        "brokerage",
			wantAdvantaged: false,
			wantCategory:   "investment_taxable",
		},
		{
			name:           "Checking is banking",
			accountType:    AccountTypeDepository,
			subtype:        "checking",
			wantAdvantaged: false,
			wantCategory:   "banking",
		},
		{
			name:           "Credit card is credit",
			accountType:    AccountTypeCredit,
			subtype:        "credit card",
			wantAdvantaged: false,
			wantCategory:   "credit",
		},
		{
			name:           "Unknown type falls back to other",
			accountType:    "mystery",
			subtype:        "",
			wantAdvantaged: false,
			wantCategory:   "other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Account{Type: tt.accountType, Subtype: tt.subtype}
			ApplyTaxProfile(a)

			if a.TaxAdvantaged != tt.wantAdvantaged {
				t.Errorf("TaxAdvantaged = %v, want %v", a.TaxAdvantaged, tt.wantAdvantaged)
			}
			if a.TaxType != tt.wantTaxType {
				t.Errorf("TaxType = %q, want %q", a.TaxType, tt.wantTaxType)
			}
			if a.Category != tt.wantCategory {
				t.Errorf("Category = %q, want %q", a.Category, tt.wantCategory)
			}
		})
	}
}

func TestIsValidAccountType(t *testing.T) {
	valid := []string{AccountTypeDepository, AccountTypeCredit, AccountTypeInvestment, AccountTypeLoan, AccountTypeOther}
	for _, v := range valid {
		if !IsValidAccountType(v) {
			t.Errorf("IsValidAccountType(%q) = false, want true", v)
		}
	}
	for _, v := range []string{"", "DEPOSITORY", "checking"} {
		if IsValidAccountType(v) {
			t.Errorf("IsValidAccountType(%q) = true, want false", v)
		}
	}
}

func TestIsValidDirection(t *testing.T) {
	for _, v := range []string{DirectionCredit, DirectionDebit, DirectionTransfer} {
		if !IsValidDirection(v) {
			t.Errorf("IsValidDirection(%q) = false, want true", v)
		}
	}
	if IsValidDirection("inbound") {
		t.Error("IsValidDirection(\"inbound\") = true, want false")
	}
}
