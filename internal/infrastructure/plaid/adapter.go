// Package plaid implements the provider adapter contract against the Plaid
// API. All payloads are converted to the canonical model at this boundary;
// nothing Plaid-shaped leaves the package.
package plaid

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fiscus/internal/domain/canonical"
	"fiscus/internal/domain/provider"
)

const (
	dateLayout = "2006-01-02"

	// Plaid caps /transactions/get pages at 500.
	maxPageCount = 500
)

// Adapter exposes Plaid items through the provider contract.
type Adapter struct {
	client *Client
}

// Compile-time checks that the adapter covers the full contract.
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

// New builds a Plaid adapter from a provider configuration. It satisfies
// provider.Factory.
func New(cfg provider.Config) (provider.Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{client: NewClient(cfg.ClientID, cfg.Secret, cfg.Environment)}, nil
}

// Name returns the provider identifier this adapter serves.
func (a *Adapter) Name() string {
	return "plaid"
}

// Capabilities returns the full capability set of this adapter.
func (a *Adapter) Capabilities() provider.CapabilitySet {
	return capabilities
}

// CreateLinkToken starts a link flow for the given user.
func (a *Adapter) CreateLinkToken(ctx context.Context, userID string, requested []provider.Capability) (*provider.LinkToken, error) {
	resp, err := a.client.CreateLinkToken(ctx, userID, productsFor(requested))
	if err != nil {
		return nil, err
	}
	return &provider.LinkToken{
		Token:      resp.LinkToken,
		Expiration: resp.Expiration,
		RequestID:  resp.RequestID,
	}, nil
}

// ExchangePublicToken trades a public token for an access credential.
func (a *Adapter) ExchangePublicToken(ctx context.Context, publicToken string) (*provider.Exchange, error) {
	resp, err := a.client.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}
	return &provider.Exchange{
		ConnectionID: resp.ItemID,
		AccessToken:  resp.AccessToken,
	}, nil
}

// GetAccounts fetches all accounts reachable with the credential.
func (a *Adapter) GetAccounts(ctx context.Context, accessToken string) ([]canonical.Account, error) {
	resp, err := a.client.GetAccounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	accounts := make([]canonical.Account, 0, len(resp.Accounts))
	for _, acc := range resp.Accounts {
		accounts = append(accounts, mapAccount(acc))
	}
	return accounts, nil
}

// GetTransactions fetches all transactions over a date window, walking the
// offset pagination until the reported total is reached.
func (a *Adapter) GetTransactions(ctx context.Context, accessToken string, opts provider.TransactionOptions) ([]canonical.Transaction, error) {
	count := opts.Count
	if count <= 0 || count > maxPageCount {
		count = maxPageCount
	}
	start := opts.StartDate.Format(dateLayout)
	end := opts.EndDate.Format(dateLayout)

	var all []canonical.Transaction
	for offset := 0; ; {
		resp, err := a.client.GetTransactions(ctx, accessToken, start, end, count, offset)
		if err != nil {
			return nil, err
		}
		for _, tx := range resp.Transactions {
			all = append(all, mapTransaction(tx))
		}

		offset += len(resp.Transactions)
		if offset >= resp.TotalTransactions || len(resp.Transactions) == 0 {
			return all, nil
		}
	}
}

// SyncTransactions fetches one page of the cursor-based incremental feed.
func (a *Adapter) SyncTransactions(ctx context.Context, accessToken, cursor string) (*provider.SyncPage, error) {
	resp, err := a.client.SyncTransactions(ctx, accessToken, cursor, maxPageCount)
	if err != nil {
		return nil, err
	}

	page := &provider.SyncPage{
		Added:      make([]canonical.Transaction, 0, len(resp.Added)),
		Modified:   make([]canonical.Transaction, 0, len(resp.Modified)),
		Removed:    make([]string, 0, len(resp.Removed)),
		NextCursor: resp.NextCursor,
		HasMore:    resp.HasMore,
	}
	for _, tx := range resp.Added {
		page.Added = append(page.Added, mapTransaction(tx))
	}
	for _, tx := range resp.Modified {
		page.Modified = append(page.Modified, mapTransaction(tx))
	}
	for _, rm := range resp.Removed {
		page.Removed = append(page.Removed, rm.TransactionID)
	}
	return page, nil
}

// GetInvestmentHoldings fetches investment positions, joining holdings to
// their securities for symbol and name.
func (a *Adapter) GetInvestmentHoldings(ctx context.Context, accessToken string) ([]canonical.Holding, error) {
	resp, err := a.client.GetHoldings(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	securities := make(map[string]Security, len(resp.Securities))
	for _, sec := range resp.Securities {
		securities[sec.SecurityID] = sec
	}

	holdings := make([]canonical.Holding, 0, len(resp.Holdings))
	for _, h := range resp.Holdings {
		sec := securities[h.SecurityID]

		gainLoss := decimal.Zero
		if !h.CostBasis.IsZero() {
			gainLoss = h.InstitutionValue.Sub(h.CostBasis)
		}

		holdings = append(holdings, canonical.Holding{
			AccountID:          h.AccountID,
			SecurityID:         h.SecurityID,
			Symbol:             sec.TickerSymbol,
			Name:               sec.Name,
			Quantity:           h.Quantity,
			CostBasis:          h.CostBasis,
			CurrentPrice:       h.InstitutionPrice,
			CurrentValue:       h.InstitutionValue,
			UnrealizedGainLoss: gainLoss,
		})
	}
	return holdings, nil
}

// GetLiabilities fetches liability detail. Balances come from the account
// records riding along on the response.
func (a *Adapter) GetLiabilities(ctx context.Context, accessToken string) ([]canonical.Liability, error) {
	resp, err := a.client.GetLiabilities(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	balances := make(map[string]decimal.Decimal, len(resp.Accounts))
	for _, acc := range resp.Accounts {
		balances[acc.AccountID] = acc.Balances.Current
	}

	var liabilities []canonical.Liability
	for _, m := range resp.Liabilities.Mortgage {
		liabilities = append(liabilities, canonical.Liability{
			ID:                 m.AccountID,
			AccountID:          m.AccountID,
			Type:               canonical.LiabilityMortgage,
			Balance:            balances[m.AccountID],
			InterestRate:       m.InterestRate.Percentage,
			YTDInterestPaid:    m.YTDInterestPaid,
			DeductibleInterest: true,
			NextPaymentDue:     parseDate(m.NextPaymentDueDate),
		})
	}
	for _, s := range resp.Liabilities.Student {
		liabilities = append(liabilities, canonical.Liability{
			ID:                 s.AccountID,
			AccountID:          s.AccountID,
			Type:               canonical.LiabilityStudentLoan,
			Balance:            balances[s.AccountID],
			InterestRate:       s.InterestRatePercentage,
			YTDInterestPaid:    s.YTDInterestPaid,
			DeductibleInterest: true,
			NextPaymentDue:     parseDate(s.NextPaymentDueDate),
		})
	}
	for _, c := range resp.Liabilities.Credit {
		liabilities = append(liabilities, canonical.Liability{
			ID:             c.AccountID,
			AccountID:      c.AccountID,
			Type:           canonical.LiabilityCreditCard,
			Balance:        balances[c.AccountID],
			InterestRate:   purchaseAPR(c.APRs),
			NextPaymentDue: parseDate(c.NextPaymentDueDate),
		})
	}
	return liabilities, nil
}

// GetIncomeVerification fetches verified payroll income streams.
func (a *Adapter) GetIncomeVerification(ctx context.Context, accessToken string) ([]canonical.IncomeSource, error) {
	resp, err := a.client.GetPayrollIncome(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	sources := make([]canonical.IncomeSource, 0, len(resp.PayrollIncome))
	for _, inc := range resp.PayrollIncome {
		sources = append(sources, canonical.IncomeSource{
			EmployerName: inc.Employer.Name,
			AnnualAmount: inc.ProjectedAnnualIncome,
			Frequency:    strings.ToLower(inc.PayFrequency),
			Verified:     inc.VerificationStatus == "VERIFIED",
		})
	}
	return sources, nil
}

// GetRecurringTransactions fetches detected recurring streams.
func (a *Adapter) GetRecurringTransactions(ctx context.Context, accessToken string) ([]canonical.RecurringStream, error) {
	resp, err := a.client.GetRecurringTransactions(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	streams := make([]canonical.RecurringStream, 0, len(resp.InflowStreams)+len(resp.OutflowStreams))
	for _, s := range resp.InflowStreams {
		streams = append(streams, mapRecurring(s, "inflow"))
	}
	for _, s := range resp.OutflowStreams {
		streams = append(streams, mapRecurring(s, "outflow"))
	}
	return streams, nil
}

// GetIdentity fetches owner identity, merged across accounts and deduplicated.
func (a *Adapter) GetIdentity(ctx context.Context, accessToken string) (*canonical.Identity, error) {
	resp, err := a.client.GetIdentity(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	identity := &canonical.Identity{}
	seen := make(map[string]bool)
	add := func(dst *[]string, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		key := strings.ToLower(value)
		if seen[key] {
			return
		}
		seen[key] = true
		*dst = append(*dst, value)
	}

	for _, acc := range resp.Accounts {
		for _, owner := range acc.Owners {
			for _, name := range owner.Names {
				add(&identity.Names, name)
			}
			for _, email := range owner.Emails {
				add(&identity.Emails, email.Data)
			}
			for _, phone := range owner.PhoneNumbers {
				add(&identity.Phones, phone.Data)
			}
			for _, addr := range owner.Addresses {
				parts := []string{addr.Data.Street, addr.Data.City, addr.Data.Region, addr.Data.PostalCode}
				joined := strings.TrimSpace(strings.Join(parts, " "))
				add(&identity.Addresses, joined)
			}
		}
	}
	return identity, nil
}

// GetConnectionStatus reports the provider-side health of the item.
func (a *Adapter) GetConnectionStatus(ctx context.Context, accessToken string) (provider.ItemStatus, error) {
	resp, err := a.client.GetItem(ctx, accessToken)
	if err != nil {
		if pe, ok := provider.AsError(err); ok && pe.Code == provider.CodeItemNotFound {
			return provider.ItemDisconnected, nil
		}
		return "", err
	}

	itemErr := resp.Item.Error
	if itemErr == nil || itemErr.ErrorCode == "" {
		return provider.ItemHealthy, nil
	}
	switch itemErr.ErrorCode {
	case "ITEM_LOGIN_REQUIRED", "INVALID_CREDENTIALS", "INVALID_MFA", "ITEM_LOCKED":
		return provider.ItemReauthRequired, nil
	case "ITEM_NOT_FOUND":
		return provider.ItemDisconnected, nil
	}
	return provider.ItemDegraded, nil
}

// RemoveConnection revokes the credential at Plaid.
func (a *Adapter) RemoveConnection(ctx context.Context, accessToken string) error {
	return a.client.RemoveItem(ctx, accessToken)
}

// productsFor translates requested capabilities into Plaid product names.
// Recurring streams ride on the transactions product.
func productsFor(requested []provider.Capability) []string {
	if len(requested) == 0 {
		return []string{"transactions"}
	}

	var products []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			products = append(products, p)
		}
	}
	for _, c := range requested {
		switch c {
		case provider.CapTransactions, provider.CapTransactionSync, provider.CapRecurring:
			add("transactions")
		case provider.CapInvestments:
			add("investments")
		case provider.CapLiabilities:
			add("liabilities")
		case provider.CapIncome:
			add("income_verification")
		case provider.CapIdentity:
			add("identity")
		}
	}
	if len(products) == 0 {
		return []string{"transactions"}
	}
	return products
}

// mapAccount converts a Plaid account into the canonical shape. Connection
// fields are filled by the sync engine.
func mapAccount(acc Account) canonical.Account {
	return canonical.Account{
		ID:           acc.AccountID,
		Name:         acc.Name,
		OfficialName: acc.OfficialName,
		Type:         mapAccountType(acc.Type),
		Subtype:      acc.Subtype,
		Mask:         acc.Mask,
		Balances: canonical.Balances{
			Current:   acc.Balances.Current,
			Available: acc.Balances.Available,
			Limit:     acc.Balances.Limit,
			Currency:  currencyOrDefault(acc.Balances.ISOCurrencyCode),
		},
	}
}

func mapAccountType(t string) string {
	switch t {
	case "depository":
		return canonical.AccountTypeDepository
	case "credit":
		return canonical.AccountTypeCredit
	case "investment", "brokerage":
		return canonical.AccountTypeInvestment
	case "loan":
		return canonical.AccountTypeLoan
	}
	return canonical.AccountTypeOther
}

// mapTransaction converts a Plaid transaction into the canonical shape.
// Plaid amounts are positive for outflows; the canonical model keeps amounts
// positive and moves the sign into Direction.
func mapTransaction(tx Transaction) canonical.Transaction {
	amount := tx.Amount
	direction := canonical.DirectionDebit
	if amount.IsNegative() {
		amount = amount.Neg()
		direction = canonical.DirectionCredit
	}

	category := normalizeCategory(tx.PersonalFinanceCategory, tx.Category)
	if tx.PersonalFinanceCategory != nil && strings.HasPrefix(tx.PersonalFinanceCategory.Primary, "TRANSFER") {
		direction = canonical.DirectionTransfer
	}

	return canonical.Transaction{
		ID:           tx.TransactionID,
		AccountID:    tx.AccountID,
		Date:         parseDate(tx.Date),
		Amount:       amount,
		Direction:    direction,
		Category:     category,
		MerchantName: tx.MerchantName,
		Name:         tx.Name,
		Pending:      tx.Pending,
		Currency:     currencyOrDefault(tx.ISOCurrencyCode),
	}
}

func mapRecurring(s RecurringStream, direction string) canonical.RecurringStream {
	return canonical.RecurringStream{
		ID:            s.StreamID,
		AccountID:     s.AccountID,
		Description:   s.Description,
		MerchantName:  s.MerchantName,
		Frequency:     strings.ToLower(s.Frequency),
		AverageAmount: s.AverageAmount.Amount.Abs(),
		LastAmount:    s.LastAmount.Amount.Abs(),
		Direction:     direction,
		Category:      normalizeCategory(s.PersonalFinanceCategory, nil),
		Active:        s.IsActive,
	}
}

// normalizeCategory flattens Plaid's category taxonomy into the lowercase
// space-separated form the enrichment rules match on.
func normalizeCategory(pfc *PersonalFinanceCategory, legacy []string) string {
	raw := ""
	if pfc != nil && pfc.Primary != "" {
		raw = pfc.Primary
	} else if len(legacy) > 0 {
		raw = legacy[len(legacy)-1]
	}
	if raw == "" {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(raw, "_", " "))
}

// purchaseAPR picks the purchase APR when present, otherwise the first rate.
func purchaseAPR(aprs []APR) decimal.Decimal {
	for _, apr := range aprs {
		if apr.APRType == "purchase_apr" {
			return apr.APRPercentage
		}
	}
	if len(aprs) > 0 {
		return aprs[0].APRPercentage
	}
	return decimal.Zero
}

func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func currencyOrDefault(code string) string {
	if code == "" {
		return "USD"
	}
	return code
}
