// Package sandbox provides a deterministic in-memory provider adapter for
// development and scenario testing. Every identifier is derived from the
// access token, so repeated links produce distinct but stable connections
// without talking to any external service.
package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fiscus/internal/domain/canonical"
	"fiscus/internal/domain/provider"
)

const institutionName = "First Platypus Bank (Sandbox)"

// Adapter serves fixture data covering every capability.
type Adapter struct {
	now func() time.Time
}

var (
	_ provider.Adapter           = (*Adapter)(nil)
	_ provider.TransactionSyncer = (*Adapter)(nil)
	_ provider.InvestmentFetcher = (*Adapter)(nil)
	_ provider.LiabilityFetcher  = (*Adapter)(nil)
	_ provider.IncomeFetcher     = (*Adapter)(nil)
	_ provider.RecurringFetcher  = (*Adapter)(nil)
	_ provider.IdentityFetcher   = (*Adapter)(nil)
)

var capabilities = provider.CapabilitySet{
	provider.CapAccounts,
	provider.CapTransactions,
	provider.CapTransactionSync,
	provider.CapInvestments,
	provider.CapLiabilities,
	provider.CapIncome,
	provider.CapRecurring,
	provider.CapIdentity,
}

// New builds the sandbox adapter. It satisfies provider.Factory; the
// configuration is accepted but unused beyond validation.
func New(cfg provider.Config) (provider.Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{now: time.Now}, nil
}

// Name returns the provider identifier this adapter serves.
func (a *Adapter) Name() string {
	return "sandbox"
}

// Capabilities returns the full capability set.
func (a *Adapter) Capabilities() provider.CapabilitySet {
	return capabilities
}

// CreateLinkToken starts a simulated link flow.
func (a *Adapter) CreateLinkToken(_ context.Context, userID string, _ []provider.Capability) (*provider.LinkToken, error) {
	token := fmt.Sprintf("link-sandbox-%s", hashShort(userID))
	return &provider.LinkToken{
		Token:      token,
		Expiration: a.now().Add(30 * time.Minute),
		RequestID:  fmt.Sprintf("req-%s", hashShort(token)),
	}, nil
}

// ExchangePublicToken trades a public token for a deterministic credential.
func (a *Adapter) ExchangePublicToken(_ context.Context, publicToken string) (*provider.Exchange, error) {
	if publicToken == "" {
		return nil, provider.NewError(provider.CodeInvalidInput, "public token is required")
	}
	return &provider.Exchange{
		ConnectionID: fmt.Sprintf("item-%s", hashShort(publicToken)),
		AccessToken:  fmt.Sprintf("access-sandbox-%s", hashShort(publicToken)),
	}, nil
}

// GetAccounts returns the fixture account set: banking, credit, retirement,
// taxable brokerage and two loans.
func (a *Adapter) GetAccounts(_ context.Context, accessToken string) ([]canonical.Account, error) {
	seed := hashShort(accessToken)
	usd := func(current, available float64) canonical.Balances {
		return canonical.Balances{
			Current:   decimal.NewFromFloat(current),
			Available: decimal.NewFromFloat(available),
			Currency:  "USD",
		}
	}

	return []canonical.Account{
		{
			ID:       a.accountID(accessToken, "checking"),
			Name:     "Sandbox Checking",
			Type:     canonical.AccountTypeDepository,
			Subtype:  "checking",
			Mask:     seed[:4],
			Balances: usd(4830.25, 4700.00),
		},
		{
			ID:       a.accountID(accessToken, "savings"),
			Name:     "Sandbox Savings",
			Type:     canonical.AccountTypeDepository,
			Subtype:  "savings",
			Mask:     "1111",
			Balances: usd(21500.00, 21500.00),
		},
		{
			ID:      a.accountID(accessToken, "credit"),
			Name:    "Sandbox Rewards Card",
			Type:    canonical.AccountTypeCredit,
			Subtype: "credit card",
			Mask:    "2222",
			Balances: canonical.Balances{
				Current:  decimal.NewFromFloat(1850.00),
				Limit:    decimal.NewFromInt(12000),
				Currency: "USD",
			},
		},
		{
			ID:       a.accountID(accessToken, "401k"),
			Name:     "Sandbox Employer 401k",
			Type:     canonical.AccountTypeInvestment,
			Subtype:  "401k",
			Balances: usd(88000.00, 88000.00),
		},
		{
			ID:       a.accountID(accessToken, "roth"),
			Name:     "Sandbox Roth IRA",
			Type:     canonical.AccountTypeInvestment,
			Subtype:  "roth ira",
			Balances: usd(31000.00, 31000.00),
		},
		{
			ID:       a.accountID(accessToken, "brokerage"),
			Name:     "Sandbox Brokerage",
			Type:     canonical.AccountTypeInvestment,
			Subtype:  "brokerage",
			Balances: usd(64200.00, 64200.00),
		},
		{
			ID:       a.accountID(accessToken, "mortgage"),
			Name:     "Sandbox Home Loan",
			Type:     canonical.AccountTypeLoan,
			Subtype:  "mortgage",
			Balances: usd(285000.00, 0),
		},
		{
			ID:       a.accountID(accessToken, "student"),
			Name:     "Sandbox Student Loan",
			Type:     canonical.AccountTypeLoan,
			Subtype:  "student",
			Balances: usd(32000.00, 0),
		},
	}, nil
}

// GetTransactions returns the fixture feed filtered to the requested window.
func (a *Adapter) GetTransactions(_ context.Context, accessToken string, opts provider.TransactionOptions) ([]canonical.Transaction, error) {
	all := append(a.pageOne(accessToken), a.pageTwo(accessToken)...)

	var out []canonical.Transaction
	for _, tx := range all {
		if tx.Date.Before(opts.StartDate) || tx.Date.After(opts.EndDate) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

// SyncTransactions serves a two-page cursor feed. The page boundaries are
// deterministic per token; once the feed is drained, further calls return an
// empty page at the same cursor.
func (a *Adapter) SyncTransactions(_ context.Context, accessToken, cursor string) (*provider.SyncPage, error) {
	first := a.cursorFor(accessToken, 1)
	final := a.cursorFor(accessToken, 2)

	switch cursor {
	case "":
		return &provider.SyncPage{
			Added:      a.pageOne(accessToken),
			NextCursor: first,
			HasMore:    true,
		}, nil
	case first:
		return &provider.SyncPage{
			Added:      a.pageTwo(accessToken),
			Modified:   a.pageTwoModified(accessToken),
			Removed:    []string{a.txID(accessToken, "stale")},
			NextCursor: final,
			HasMore:    false,
		}, nil
	case final:
		return &provider.SyncPage{
			NextCursor: final,
			HasMore:    false,
		}, nil
	}
	return nil, provider.Errorf(provider.CodeInvalidInput, "unknown sync cursor %q", cursor)
}

// GetInvestmentHoldings returns fixture positions. The taxable brokerage
// carries two harvestable losses, one below-threshold loss and one gain; the
// Roth IRA carries a loss that must never become a harvest candidate.
func (a *Adapter) GetInvestmentHoldings(_ context.Context, accessToken string) ([]canonical.Holding, error) {
	brokerage := a.accountID(accessToken, "brokerage")
	roth := a.accountID(accessToken, "roth")

	position := func(account, symbol, name string, qty, costBasis, value float64) canonical.Holding {
		q := decimal.NewFromFloat(qty)
		cb := decimal.NewFromFloat(costBasis)
		cv := decimal.NewFromFloat(value)
		return canonical.Holding{
			AccountID:          account,
			SecurityID:         fmt.Sprintf("sec-%s", hashShort(symbol)),
			Symbol:             symbol,
			Name:               name,
			Quantity:           q,
			CostBasis:          cb,
			CurrentPrice:       cv.Div(q),
			CurrentValue:       cv,
			UnrealizedGainLoss: cv.Sub(cb),
		}
	}

	return []canonical.Holding{
		position(brokerage, "VTI", "Vanguard Total Stock Market ETF", 40, 9800, 9580),
		position(brokerage, "VXUS", "Vanguard Total International Stock ETF", 60, 3675, 3600),
		position(brokerage, "AAPL", "Apple Inc", 25, 4100, 4410),
		position(brokerage, "BND", "Vanguard Total Bond Market ETF", 50, 3630, 3600),
		position(roth, "VTI", "Vanguard Total Stock Market ETF", 20, 4900, 4825),
	}, nil
}

// GetLiabilities returns the fixture loan set: a mortgage with $9,000 YTD
// interest, a student loan with $3,400 YTD and no stated cap, and a credit
// card with no deductible interest.
func (a *Adapter) GetLiabilities(_ context.Context, accessToken string) ([]canonical.Liability, error) {
	nextMonth := a.now().AddDate(0, 1, 0)

	return []canonical.Liability{
		{
			ID:                 a.accountID(accessToken, "mortgage"),
			AccountID:          a.accountID(accessToken, "mortgage"),
			Type:               canonical.LiabilityMortgage,
			Balance:            decimal.NewFromInt(285000),
			InterestRate:       decimal.NewFromFloat(6.125),
			YTDInterestPaid:    decimal.NewFromInt(9000),
			DeductibleInterest: true,
			NextPaymentDue:     nextMonth,
		},
		{
			ID:                 a.accountID(accessToken, "student"),
			AccountID:          a.accountID(accessToken, "student"),
			Type:               canonical.LiabilityStudentLoan,
			Balance:            decimal.NewFromInt(32000),
			InterestRate:       decimal.NewFromFloat(5.5),
			YTDInterestPaid:    decimal.NewFromInt(3400),
			DeductibleInterest: true,
			NextPaymentDue:     nextMonth,
		},
		{
			ID:             a.accountID(accessToken, "credit"),
			AccountID:      a.accountID(accessToken, "credit"),
			Type:           canonical.LiabilityCreditCard,
			Balance:        decimal.NewFromFloat(1850.00),
			InterestRate:   decimal.NewFromFloat(24.49),
			NextPaymentDue: nextMonth,
		},
	}, nil
}

// GetIncomeVerification returns one verified payroll stream.
func (a *Adapter) GetIncomeVerification(_ context.Context, _ string) ([]canonical.IncomeSource, error) {
	return []canonical.IncomeSource{
		{
			EmployerName: "Acme Corp",
			AnnualAmount: decimal.NewFromInt(95000),
			Frequency:    "biweekly",
			Verified:     true,
		},
	}, nil
}

// GetRecurringTransactions returns fixture streams.
func (a *Adapter) GetRecurringTransactions(_ context.Context, accessToken string) ([]canonical.RecurringStream, error) {
	return []canonical.RecurringStream{
		{
			ID:            fmt.Sprintf("rs-%s-payroll", hashShort(accessToken)),
			AccountID:     a.accountID(accessToken, "checking"),
			Description:   "ACME CORP PAYROLL",
			Frequency:     "biweekly",
			AverageAmount: decimal.NewFromFloat(3200.00),
			LastAmount:    decimal.NewFromFloat(3200.00),
			Direction:     "inflow",
			Category:      "payroll",
			Active:        true,
		},
		{
			ID:            fmt.Sprintf("rs-%s-netflix", hashShort(accessToken)),
			AccountID:     a.accountID(accessToken, "credit"),
			Description:   "NETFLIX.COM",
			MerchantName:  "Netflix",
			Frequency:     "monthly",
			AverageAmount: decimal.NewFromFloat(15.49),
			LastAmount:    decimal.NewFromFloat(15.49),
			Direction:     "outflow",
			Category:      "subscription",
			Active:        true,
		},
		{
			ID:            fmt.Sprintf("rs-%s-gym", hashShort(accessToken)),
			AccountID:     a.accountID(accessToken, "checking"),
			Description:   "IRON WORKS GYM",
			Frequency:     "monthly",
			AverageAmount: decimal.NewFromFloat(45.00),
			LastAmount:    decimal.NewFromFloat(45.00),
			Direction:     "outflow",
			Category:      "personal care",
			Active:        false,
		},
	}, nil
}

// GetIdentity returns the fixture owner record.
func (a *Adapter) GetIdentity(_ context.Context, _ string) (*canonical.Identity, error) {
	return &canonical.Identity{
		Names:     []string{"Alex Morgan"},
		Emails:    []string{"alex.morgan@example.com"},
		Phones:    []string{"+1 555 010 4477"},
		Addresses: []string{"742 Larkspur Lane Austin TX 78701"},
	}, nil
}

// GetConnectionStatus always reports healthy; sandbox items cannot break.
func (a *Adapter) GetConnectionStatus(_ context.Context, _ string) (provider.ItemStatus, error) {
	return provider.ItemHealthy, nil
}

// RemoveConnection is a no-op; there is nothing to revoke.
func (a *Adapter) RemoveConnection(_ context.Context, _ string) error {
	return nil
}

// pageOne is the first half of the transaction feed: income plus everyday
// spending hitting the MCC and merchant classification tiers.
func (a *Adapter) pageOne(accessToken string) []canonical.Transaction {
	checking := a.accountID(accessToken, "checking")
	credit := a.accountID(accessToken, "credit")

	return []canonical.Transaction{
		{
			ID:        a.txID(accessToken, "payroll-1"),
			AccountID: checking,
			Date:      a.daysAgo(12),
			Amount:    decimal.NewFromFloat(3200.00),
			Direction: canonical.DirectionCredit,
			Category:  "payroll",
			Name:      "ACME CORP PAYROLL",
			Currency:  "USD",
		},
		{
			ID:           a.txID(accessToken, "groceries-1"),
			AccountID:    credit,
			Date:         a.daysAgo(9),
			Amount:       decimal.NewFromFloat(84.12),
			Direction:    canonical.DirectionDebit,
			Category:     "shops",
			MCC:          "5411",
			MerchantName: "Trader Joe's",
			Name:         "TRADER JOES #512",
			Currency:     "USD",
		},
		{
			ID:           a.txID(accessToken, "charity-1"),
			AccountID:    credit,
			Date:         a.daysAgo(7),
			Amount:       decimal.NewFromFloat(200.00),
			Direction:    canonical.DirectionDebit,
			Category:     "shops",
			MCC:          "8398",
			MerchantName: "Goodwill",
			Name:         "GOODWILL DONATION CTR",
			Currency:     "USD",
		},
		{
			ID:           a.txID(accessToken, "dining-1"),
			AccountID:    credit,
			Date:         a.daysAgo(5),
			Amount:       decimal.NewFromFloat(18.40),
			Direction:    canonical.DirectionDebit,
			Category:     "food and drink",
			MerchantName: "Starbucks",
			Name:         "STARBUCKS STORE 1912",
			Currency:     "USD",
		},
	}
}

// pageTwo is the second half: a federal tax payment, an internal transfer
// and two Schedule C expenses.
func (a *Adapter) pageTwo(accessToken string) []canonical.Transaction {
	checking := a.accountID(accessToken, "checking")
	credit := a.accountID(accessToken, "credit")

	return []canonical.Transaction{
		{
			ID:        a.txID(accessToken, "tax-1"),
			AccountID: checking,
			Date:      a.daysAgo(20),
			Amount:    decimal.NewFromFloat(1850.00),
			Direction: canonical.DirectionDebit,
			Category:  "tax",
			Name:      "IRS DIRECT PAY",
			Currency:  "USD",
		},
		{
			ID:        a.txID(accessToken, "transfer-1"),
			AccountID: checking,
			Date:      a.daysAgo(18),
			Amount:    decimal.NewFromFloat(500.00),
			Direction: canonical.DirectionTransfer,
			Category:  "transfer",
			Name:      "TRANSFER TO SANDBOX SAVINGS",
			Currency:  "USD",
		},
		{
			ID:           a.txID(accessToken, "software-1"),
			AccountID:    credit,
			Date:         a.daysAgo(16),
			Amount:       decimal.NewFromFloat(14.00),
			Direction:    canonical.DirectionDebit,
			Category:     "service",
			MerchantName: "GitHub",
			Name:         "GITHUB.COM",
			Currency:     "USD",
		},
		{
			ID:        a.txID(accessToken, "phone-1"),
			AccountID: checking,
			Date:      a.daysAgo(15),
			Amount:    decimal.NewFromFloat(89.99),
			Direction: canonical.DirectionDebit,
			Category:  "service",
			MCC:       "4814",
			Name:      "VERIZON WIRELESS PAYMENT",
			Currency:  "USD",
		},
	}
}

// pageTwoModified carries a correction to a page-one transaction.
func (a *Adapter) pageTwoModified(accessToken string) []canonical.Transaction {
	return []canonical.Transaction{
		{
			ID:           a.txID(accessToken, "groceries-1"),
			AccountID:    a.accountID(accessToken, "credit"),
			Date:         a.daysAgo(9),
			Amount:       decimal.NewFromFloat(86.50),
			Direction:    canonical.DirectionDebit,
			Category:     "shops",
			MCC:          "5411",
			MerchantName: "Trader Joe's",
			Name:         "TRADER JOES #512",
			Currency:     "USD",
		},
	}
}

func (a *Adapter) accountID(accessToken, slug string) string {
	return fmt.Sprintf("acc-%s-%s", hashShort(accessToken), slug)
}

func (a *Adapter) txID(accessToken, slug string) string {
	return fmt.Sprintf("tx-%s-%s", hashShort(accessToken), slug)
}

func (a *Adapter) cursorFor(accessToken string, page int) string {
	return fmt.Sprintf("cursor-%s-%d", hashShort(accessToken), page)
}

func (a *Adapter) daysAgo(n int) time.Time {
	return a.now().UTC().AddDate(0, 0, -n).Truncate(24 * time.Hour)
}

// hashShort returns the first 8 hex characters of a SHA-256 hash.
func hashShort(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:4])
}
