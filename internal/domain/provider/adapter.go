package provider

import (
	"context"

	"fiscus/internal/domain/canonical"
)

// Capability identifies one operation an adapter may support beyond the
// core contract. The Sync Engine checks the set before the interface
// assertion: an adapter that does not advertise a capability is skipped
// for that step, never failed.
type Capability string

const (
	CapAccounts        Capability = "accounts"
	CapTransactions    Capability = "transactions"
	CapTransactionSync Capability = "transactions_sync"
	CapInvestments     Capability = "investments"
	CapLiabilities     Capability = "liabilities"
	CapIncome          Capability = "income"
	CapRecurring       Capability = "recurring"
	CapIdentity        Capability = "identity"
)

// CapabilitySet is the list of capabilities an adapter advertises.
type CapabilitySet []Capability

// Has reports whether the set contains the given capability.
func (s CapabilitySet) Has(c Capability) bool {
	for _, v := range s {
		if v == c {
			return true
		}
	}
	return false
}

// Adapter is the core contract every provider integration implements.
// Every method converts transport and provider failures into *Error;
// adapters never panic and never return foreign error types.
type Adapter interface {
	// Name returns the provider identifier this adapter serves.
	Name() string

	// Capabilities returns the full capability set of this adapter.
	Capabilities() CapabilitySet

	// CreateLinkToken starts a link flow for the given user.
	CreateLinkToken(ctx context.Context, userID string, requested []Capability) (*LinkToken, error)

	// ExchangePublicToken trades a public token for an access credential.
	ExchangePublicToken(ctx context.Context, publicToken string) (*Exchange, error)

	// GetAccounts fetches all accounts reachable with the credential.
	GetAccounts(ctx context.Context, accessToken string) ([]canonical.Account, error)

	// GetTransactions fetches transactions over a date window.
	GetTransactions(ctx context.Context, accessToken string, opts TransactionOptions) ([]canonical.Transaction, error)

	// GetConnectionStatus reports the provider-side health of the item.
	GetConnectionStatus(ctx context.Context, accessToken string) (ItemStatus, error)

	// RemoveConnection revokes the credential at the provider.
	RemoveConnection(ctx context.Context, accessToken string) error
}

// TransactionSyncer is implemented by adapters that support cursor-based
// incremental transaction sync (CapTransactionSync).
type TransactionSyncer interface {
	SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncPage, error)
}

// InvestmentFetcher is implemented by adapters that can return investment
// holdings (CapInvestments).
type InvestmentFetcher interface {
	GetInvestmentHoldings(ctx context.Context, accessToken string) ([]canonical.Holding, error)
}

// LiabilityFetcher is implemented by adapters that can return liabilities
// (CapLiabilities).
type LiabilityFetcher interface {
	GetLiabilities(ctx context.Context, accessToken string) ([]canonical.Liability, error)
}

// IncomeFetcher is implemented by adapters that can return verified income
// sources (CapIncome).
type IncomeFetcher interface {
	GetIncomeVerification(ctx context.Context, accessToken string) ([]canonical.IncomeSource, error)
}

// RecurringFetcher is implemented by adapters that can return detected
// recurring streams (CapRecurring).
type RecurringFetcher interface {
	GetRecurringTransactions(ctx context.Context, accessToken string) ([]canonical.RecurringStream, error)
}

// IdentityFetcher is implemented by adapters that can return owner identity
// records (CapIdentity).
type IdentityFetcher interface {
	GetIdentity(ctx context.Context, accessToken string) (*canonical.Identity, error)
}

// Factory builds an adapter from a provider configuration. The manager keeps
// an explicit factory registry; there is no global registration.
type Factory func(cfg Config) (Adapter, error)
