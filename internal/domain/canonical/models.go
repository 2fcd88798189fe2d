package canonical

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account types every provider payload is normalized into.
const (
	AccountTypeDepository = "depository"
	AccountTypeCredit     = "credit"
	AccountTypeInvestment = "investment"
	AccountTypeLoan       = "loan"
	AccountTypeOther      = "other"
)

// Transaction directions.
const (
	DirectionCredit   = "credit"
	DirectionDebit    = "debit"
	DirectionTransfer = "transfer"
)

var accountTypes = map[string]struct{}{
	AccountTypeDepository: {},
	AccountTypeCredit:     {},
	AccountTypeInvestment: {},
	AccountTypeLoan:       {},
	AccountTypeOther:      {},
}

// Domain errors
var (
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrInvalidDirection   = errors.New("invalid transaction direction")
)

// Balances holds the point-in-time balance snapshot for an account.
// Limit is only meaningful for credit accounts.
type Balances struct {
	Current   decimal.Decimal `json:"current"`
	Available decimal.Decimal `json:"available"`
	Limit     decimal.Decimal `json:"limit"`
	Currency  string          `json:"currency"`
}

// Account is the provider-agnostic account shape. The account list on a
// connection is replaced wholesale on every successful account fetch.
type Account struct {
	ID            string    `json:"id"`
	ConnectionID  string    `json:"connectionId"`
	Provider      string    `json:"provider"`
	Name          string    `json:"name"`
	OfficialName  string    `json:"officialName,omitempty"`
	Type          string    `json:"type"`
	Subtype       string    `json:"subtype"`
	Mask          string    `json:"mask,omitempty"`
	Balances      Balances  `json:"balances"`
	TaxAdvantaged bool      `json:"taxAdvantaged"`
	TaxType       string    `json:"taxType,omitempty"`
	Category      string    `json:"category"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Transaction is the provider-agnostic transaction shape. Amount is always
// positive; Direction carries the sign.
type Transaction struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Direction    string          `json:"direction"`
	Category     string          `json:"category"`
	MCC          string          `json:"mcc,omitempty"`
	MerchantName string          `json:"merchantName,omitempty"`
	Name         string          `json:"name"`
	Pending      bool            `json:"pending"`
	Currency     string          `json:"currency"`
}

// Holding is an investment position within an account.
type Holding struct {
	AccountID          string          `json:"accountId"`
	SecurityID         string          `json:"securityId"`
	Symbol             string          `json:"symbol"`
	Name               string          `json:"name"`
	Quantity           decimal.Decimal `json:"quantity"`
	CostBasis          decimal.Decimal `json:"costBasis"`
	CurrentPrice       decimal.Decimal `json:"currentPrice"`
	CurrentValue       decimal.Decimal `json:"currentValue"`
	UnrealizedGainLoss decimal.Decimal `json:"unrealizedGainLoss"`
}

// Liability types.
const (
	LiabilityMortgage    = "mortgage"
	LiabilityStudentLoan = "student_loan"
	LiabilityCreditCard  = "credit_card"
	LiabilityAuto        = "auto"
	LiabilityOther       = "other"
)

// Liability is a debt obligation tied to an account. AnnualDeductionLimit
// of zero means the provider did not state one.
type Liability struct {
	ID                   string          `json:"id"`
	AccountID            string          `json:"accountId"`
	Type                 string          `json:"type"`
	Balance              decimal.Decimal `json:"balance"`
	InterestRate         decimal.Decimal `json:"interestRate"`
	YTDInterestPaid      decimal.Decimal `json:"ytdInterestPaid"`
	DeductibleInterest   bool            `json:"deductibleInterest"`
	AnnualDeductionLimit decimal.Decimal `json:"annualDeductionLimit"`
	NextPaymentDue       time.Time       `json:"nextPaymentDue"`
}

// Identity carries owner/KYC fields occasionally returned by providers.
type Identity struct {
	Names     []string `json:"names"`
	Emails    []string `json:"emails"`
	Phones    []string `json:"phones"`
	Addresses []string `json:"addresses"`
}

// RecurringStream is a detected recurring inflow or outflow.
type RecurringStream struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"accountId"`
	Description   string          `json:"description"`
	MerchantName  string          `json:"merchantName,omitempty"`
	Frequency     string          `json:"frequency"`
	AverageAmount decimal.Decimal `json:"averageAmount"`
	LastAmount    decimal.Decimal `json:"lastAmount"`
	Direction     string          `json:"direction"` // inflow or outflow
	Category      string          `json:"category"`
	Active        bool            `json:"active"`
}

// IncomeSource is a verified income record from an income-verification fetch.
type IncomeSource struct {
	EmployerName string          `json:"employerName"`
	AnnualAmount decimal.Decimal `json:"annualAmount"`
	Frequency    string          `json:"frequency"`
	Verified     bool            `json:"verified"`
}

// IsValidAccountType checks if the provided account type is recognized.
func IsValidAccountType(t string) bool {
	_, ok := accountTypes[t]
	return ok
}

// IsValidDirection checks if the provided direction is recognized.
func IsValidDirection(d string) bool {
	return d == DirectionCredit || d == DirectionDebit || d == DirectionTransfer
}

// taxProfiles maps investment account subtypes to their tax treatment.
// Subtypes are matched lowercase.
var taxProfiles = map[string]struct {
	taxType  string
	category string
}{
	"401k":       {"pre_tax", "retirement"},
	"403b":       {"pre_tax", "retirement"},
	"457b":       {"pre_tax", "retirement"},
	"ira":        {"pre_tax", "retirement"},
	"sep ira":    {"pre_tax", "retirement"},
	"simple ira": {"pre_tax", "retirement"},
	"keogh":      {"pre_tax", "retirement"},
	"pension":    {"pre_tax", "retirement"},
	"roth":       {"roth", "retirement"},
	"roth ira":   {"roth", "retirement"},
	"roth 401k":  {"roth", "retirement"},
	"hsa":        {"hsa", "health"},
	"529":        {"education", "education"},
}

// ApplyTaxProfile fills the tax-relevance flags on an account from its type
// and subtype. Non-advantaged accounts get a category derived from their type.
func ApplyTaxProfile(a *Account) {
	sub := strings.ToLower(strings.TrimSpace(a.Subtype))
	if p, ok := taxProfiles[sub]; ok {
		a.TaxAdvantaged = true
		a.TaxType = p.taxType
		a.Category = p.category
		return
	}

	a.TaxAdvantaged = false
	a.TaxType = ""
	switch a.Type {
	case AccountTypeInvestment:
		a.Category = "investment_taxable"
	case AccountTypeCredit:
		a.Category = "credit"
	case AccountTypeLoan:
		a.Category = "loan"
	case AccountTypeDepository:
		a.Category = "banking"
	default:
		a.Category = "other"
	}
}
