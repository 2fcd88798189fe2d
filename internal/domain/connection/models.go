// Package connection owns the provider-connection lifecycle: registration,
// linking, synchronization, webhook handling, and health aggregation.
package connection

import (
	"errors"
	"time"

	"fiscus/internal/domain/bridge"
	"fiscus/internal/domain/canonical"
	"fiscus/internal/domain/provider"
)

var (
	// ErrProviderNotConfigured is returned when an operation names a provider
	// with no registered configuration.
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrUnknownProvider is returned when no adapter factory exists for a
	// provider being configured.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrConnectionNotFound is returned when an operation names a connection
	// the manager does not hold.
	ErrConnectionNotFound = errors.New("connection not found")
)

// Status is the lifecycle state of a connection.
type Status string

const (
	StatusActive        Status = "active"
	StatusDegraded      Status = "degraded"
	StatusError         Status = "error"
	StatusPendingReauth Status = "pending_reauth"
	StatusDisconnected  Status = "disconnected"
)

// NeedsAttention reports whether the status should be surfaced to the user.
func (s Status) NeedsAttention() bool {
	return s == StatusError || s == StatusPendingReauth || s == StatusDegraded
}

// Connection is the public view of a linked institution. It never carries
// credentials.
type Connection struct {
	ID                   string                 `json:"id"`
	Provider             string                 `json:"provider"`
	InstitutionID        string                 `json:"institutionId,omitempty"`
	InstitutionName      string                 `json:"institutionName,omitempty"`
	Status               Status                 `json:"status"`
	AccountIDs           []string               `json:"accountIds"`
	Capabilities         provider.CapabilitySet `json:"capabilities"`
	ErrorCode            string                 `json:"errorCode,omitempty"`
	ErrorDetail          string                 `json:"errorDetail,omitempty"`
	CreatedAt            time.Time              `json:"createdAt"`
	UpdatedAt            time.Time              `json:"updatedAt"`
	LastAttemptedSyncAt  *time.Time             `json:"lastAttemptedSyncAt,omitempty"`
	LastSuccessfulSyncAt *time.Time             `json:"lastSuccessfulSyncAt,omitempty"`
}

// Record is a Connection plus everything the sync engine needs and nothing
// any consumer above it may see. One record per connection, same lifecycle.
type Record struct {
	Connection

	// AccessToken is the provider credential. It is handed to adapter calls
	// and nowhere else.
	AccessToken string `json:"-"`

	// Cursor is the opaque incremental-sync position issued by the provider.
	// Persisted verbatim, never interpreted.
	Cursor string `json:"cursor,omitempty"`

	// Accounts is replaced wholesale on every successful account fetch.
	Accounts []canonical.Account `json:"-"`

	// LastSyncResult is the most recent sync outcome for this connection.
	LastSyncResult *SyncResult `json:"lastSyncResult,omitempty"`
}

// SyncOptions selects which optional data sources a sync should fetch.
type SyncOptions struct {
	IncludeInvestments bool `json:"includeInvestments"`
	IncludeLiabilities bool `json:"includeLiabilities"`
	IncludeIncome      bool `json:"includeIncome"`
	IncludeRecurring   bool `json:"includeRecurring"`

	// TransactionDays is the trailing window for adapters without cursor
	// sync. Zero means the default of 90 days.
	TransactionDays int `json:"transactionDays"`
}

const defaultTransactionDays = 90

func (o SyncOptions) withDefaults() SyncOptions {
	if o.TransactionDays <= 0 {
		o.TransactionDays = defaultTransactionDays
	}
	return o
}

// SyncResult is the outcome of one synchronization pass. A result with
// errors still carries whatever data did succeed.
type SyncResult struct {
	ConnectionID       string         `json:"connectionId"`
	Added              int            `json:"added"`
	Modified           int            `json:"modified"`
	Removed            int            `json:"removed"`
	RemovedIDs         []string       `json:"removedIds,omitempty"`
	AccountsFound      int            `json:"accountsFound"`
	HoldingsFound      int            `json:"holdingsFound"`
	LiabilitiesFound   int            `json:"liabilitiesFound"`
	IncomeSourcesFound int            `json:"incomeSourcesFound"`
	RecurringFound     int            `json:"recurringFound"`
	Bridge             *bridge.Result `json:"bridge,omitempty"`
	Errors             []string       `json:"errors"`
	Duration           time.Duration  `json:"duration"`
	Timestamp          time.Time      `json:"timestamp"`
}

// Success reports whether every step of the sync completed cleanly.
func (r *SyncResult) Success() bool {
	return r != nil && len(r.Errors) == 0
}

// State is the manager snapshot handed to the OnStateChange callback after
// every mutation of connections, configuration, or timers.
type State struct {
	Connections      []Connection  `json:"connections"`
	Providers        []string      `json:"providers"`
	AutoSyncEnabled  bool          `json:"autoSyncEnabled"`
	AutoSyncInterval time.Duration `json:"autoSyncInterval,omitempty"`
	LastSyncAll      *time.Time    `json:"lastSyncAll,omitempty"`
}

// Callbacks are host hooks. Both are optional; nil callbacks are skipped.
type Callbacks struct {
	// OnStateChange receives a state snapshot after every mutation.
	OnStateChange func(State)

	// OnPatch receives the domain patch of every fully successful sync.
	// The host owns merge semantics; the manager never merges.
	OnPatch func(connectionID string, patch bridge.Patch)
}
