package provider

import (
	"errors"
	"time"

	"fiscus/internal/domain/canonical"
)

// Environments a provider can be registered against.
const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

// Domain errors
var (
	ErrInvalidEnvironment = errors.New("environment must be sandbox or production")
	ErrMissingCredentials = errors.New("provider client ID and secret are required")
)

// Config registers one provider. Immutable after registration; the manager
// owns the map keyed by Provider.
type Config struct {
	Provider    string `json:"provider"`
	ClientID    string `json:"clientId"`
	Secret      string `json:"-"`
	Environment string `json:"environment"`
}

// Validate checks a provider configuration before registration.
func (c Config) Validate() error {
	if c.Provider == "" {
		return errors.New("provider name is required")
	}
	if c.ClientID == "" || c.Secret == "" {
		return ErrMissingCredentials
	}
	if c.Environment != EnvSandbox && c.Environment != EnvProduction {
		return ErrInvalidEnvironment
	}
	return nil
}

// LinkToken is the result of starting a link flow.
type LinkToken struct {
	Token      string    `json:"linkToken"`
	Expiration time.Time `json:"expiration"`
	RequestID  string    `json:"requestId,omitempty"`
}

// Exchange is the result of trading a public token for an access credential.
// ConnectionID is the provider-side item identifier.
type Exchange struct {
	ConnectionID string `json:"connectionId"`
	AccessToken  string `json:"-"`
}

// TransactionOptions bounds a date-window transaction fetch.
type TransactionOptions struct {
	StartDate time.Time
	EndDate   time.Time
	Count     int
}

// SyncPage is one page of a cursor-based incremental sync. NextCursor must be
// persisted verbatim by the caller and only after the full page loop
// completed; it is never interpreted outside the adapter.
type SyncPage struct {
	Added      []canonical.Transaction `json:"added"`
	Modified   []canonical.Transaction `json:"modified"`
	Removed    []string                `json:"removed"`
	NextCursor string                  `json:"nextCursor"`
	HasMore    bool                    `json:"hasMore"`
}

// ItemStatus is the provider-side health of a connection.
type ItemStatus string

const (
	ItemHealthy        ItemStatus = "healthy"
	ItemDegraded       ItemStatus = "degraded"
	ItemReauthRequired ItemStatus = "reauth_required"
	ItemDisconnected   ItemStatus = "disconnected"
)
