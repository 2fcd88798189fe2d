package connection

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"fiscus/internal/domain/bridge"
	"fiscus/internal/domain/canonical"
	"fiscus/internal/domain/enrichment"
	"fiscus/internal/domain/provider"
)

var (
	syncTracer        = otel.Tracer("fiscus.connection")
	syncMeter         = otel.Meter("fiscus.connection")
	syncDuration, _   = syncMeter.Float64Histogram("connection.sync.duration", metric.WithDescription("Single-connection sync duration in seconds"), metric.WithUnit("s"))
	syncTotal, _      = syncMeter.Int64Counter("connection.sync.total", metric.WithDescription("Syncs executed by resulting status"))
	syncStepErrors, _ = syncMeter.Int64Counter("connection.sync.step_errors", metric.WithDescription("Failed sync steps by step name"))
)

const (
	// defaultCallTimeout bounds every individual adapter call. Providers
	// that hang must not wedge a sync slot indefinitely.
	defaultCallTimeout = 30 * time.Second

	// maxSyncPages bounds the cursor loop against adapters that never
	// report hasMore=false.
	maxSyncPages = 25
)

// Engine runs the per-connection synchronization procedure. Each step is
// independently fault-tolerant: a failed step is recorded on the result and
// the remaining steps still run.
type Engine struct {
	callTimeout time.Duration
	maxPages    int
}

// NewEngine creates a sync engine with default call timeout and page bound.
func NewEngine() *Engine {
	return &Engine{
		callTimeout: defaultCallTimeout,
		maxPages:    maxSyncPages,
	}
}

// Outcome is everything one sync produced, separated from the live record
// so the caller can decide whether to apply it. A record removed while its
// sync was in flight simply has its outcome dropped.
type Outcome struct {
	Result *SyncResult

	// Accounts replaces the record's account list when AccountsReplaced is
	// set; a failed account fetch keeps the prior list.
	Accounts         []canonical.Account
	AccountIDs       []string
	AccountsReplaced bool

	// Cursor is applied only when CursorAdvanced is set, which requires the
	// pagination loop to have completed cleanly. A mid-loop failure must not
	// move the stored cursor past unconsumed data.
	Cursor         string
	CursorAdvanced bool

	Status      Status
	ErrorCode   string
	ErrorDetail string

	// AccountsFetched marks step 1 success, which is what advances the
	// last-successful-sync timestamp.
	AccountsFetched bool
}

// Run executes one sync pass against a snapshot of the record. It never
// returns an error: failures land in the result's error list and the
// outcome status.
func (e *Engine) Run(ctx context.Context, rec Record, adapter provider.Adapter, opts SyncOptions) *Outcome {
	opts = opts.withDefaults()
	start := time.Now()

	ctx, span := syncTracer.Start(ctx, "connection.sync",
		trace.WithAttributes(
			attribute.String("connection.id", rec.ID),
			attribute.String("connection.provider", rec.Provider),
		),
	)
	defer span.End()

	result := &SyncResult{
		ConnectionID: rec.ID,
		Errors:       []string{},
		Timestamp:    start,
	}
	out := &Outcome{
		Result: result,
		Cursor: rec.Cursor,
	}

	// Step 1: accounts, replaced wholesale on success.
	accounts, err := e.fetchAccounts(ctx, rec, adapter)
	if err != nil {
		e.recordStepError(ctx, out, "accounts", err)
	} else {
		out.Accounts = accounts
		out.AccountIDs = make([]string, 0, len(accounts))
		for _, acc := range accounts {
			out.AccountIDs = append(out.AccountIDs, acc.ID)
		}
		out.AccountsReplaced = true
		out.AccountsFetched = true
		result.AccountsFound = len(accounts)
	}

	// Step 2: transactions, incremental when the adapter supports it.
	var txs []canonical.Transaction
	if syncer, ok := adapter.(provider.TransactionSyncer); ok && adapter.Capabilities().Has(provider.CapTransactionSync) {
		txs = e.syncTransactions(ctx, rec, syncer, out)
	} else {
		txs = e.fetchTransactionWindow(ctx, rec, adapter, opts, out)
	}

	// Step 3: optional sources, feature-detected and caller-gated.
	var holdings []canonical.Holding
	if opts.IncludeInvestments && adapter.Capabilities().Has(provider.CapInvestments) {
		if fetcher, ok := adapter.(provider.InvestmentFetcher); ok {
			holdings, err = fetchWithTimeout(ctx, e.callTimeout, rec.AccessToken, fetcher.GetInvestmentHoldings)
			if err != nil {
				e.recordStepError(ctx, out, "investments", err)
			} else {
				result.HoldingsFound = len(holdings)
			}
		}
	}

	var liabilities []canonical.Liability
	if opts.IncludeLiabilities && adapter.Capabilities().Has(provider.CapLiabilities) {
		if fetcher, ok := adapter.(provider.LiabilityFetcher); ok {
			liabilities, err = fetchWithTimeout(ctx, e.callTimeout, rec.AccessToken, fetcher.GetLiabilities)
			if err != nil {
				e.recordStepError(ctx, out, "liabilities", err)
			} else {
				result.LiabilitiesFound = len(liabilities)
			}
		}
	}

	var incomes []canonical.IncomeSource
	var identity *canonical.Identity
	if opts.IncludeIncome && adapter.Capabilities().Has(provider.CapIncome) {
		if fetcher, ok := adapter.(provider.IncomeFetcher); ok {
			incomes, err = fetchWithTimeout(ctx, e.callTimeout, rec.AccessToken, fetcher.GetIncomeVerification)
			if err != nil {
				e.recordStepError(ctx, out, "income", err)
			} else {
				result.IncomeSourcesFound = len(incomes)
			}
		}
		// Owner identity rides along with income verification when offered.
		if fetcher, ok := adapter.(provider.IdentityFetcher); ok && adapter.Capabilities().Has(provider.CapIdentity) {
			identity, err = fetchWithTimeout(ctx, e.callTimeout, rec.AccessToken, fetcher.GetIdentity)
			if err != nil {
				e.recordStepError(ctx, out, "identity", err)
			}
		}
	}

	var recurring []canonical.RecurringStream
	if opts.IncludeRecurring && adapter.Capabilities().Has(provider.CapRecurring) {
		if fetcher, ok := adapter.(provider.RecurringFetcher); ok {
			recurring, err = fetchWithTimeout(ctx, e.callTimeout, rec.AccessToken, fetcher.GetRecurringTransactions)
			if err != nil {
				e.recordStepError(ctx, out, "recurring", err)
			} else {
				result.RecurringFound = len(recurring)
			}
		}
	}

	// Steps 4 and 5: enrichment over everything fetched, then the bridge.
	batch := enrichment.EnrichBatch(txs)

	bridgeAccounts := rec.Accounts
	if out.AccountsReplaced {
		bridgeAccounts = out.Accounts
	}
	result.Bridge = bridge.Build(bridge.Input{
		Accounts:      bridgeAccounts,
		Transactions:  batch.Transactions,
		Holdings:      holdings,
		Liabilities:   liabilities,
		IncomeSources: incomes,
		Identity:      identity,
	})

	// Step 6: resulting status. An auth-class failure already parked the
	// outcome in pending_reauth.
	if out.Status != StatusPendingReauth {
		if len(result.Errors) > 0 {
			out.Status = StatusDegraded
		} else {
			out.Status = StatusActive
		}
	}

	result.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("sync.added", result.Added),
		attribute.Int("sync.errors", len(result.Errors)),
		attribute.String("sync.status", string(out.Status)),
	)
	syncDuration.Record(ctx, result.Duration.Seconds(), metric.WithAttributes(attribute.String("provider", rec.Provider)))
	syncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(out.Status))))

	return out
}

func (e *Engine) fetchAccounts(ctx context.Context, rec Record, adapter provider.Adapter) ([]canonical.Account, error) {
	accounts, err := fetchWithTimeout(ctx, e.callTimeout, rec.AccessToken, adapter.GetAccounts)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range accounts {
		accounts[i].ConnectionID = rec.ID
		accounts[i].Provider = rec.Provider
		accounts[i].UpdatedAt = now
		canonical.ApplyTaxProfile(&accounts[i])
	}
	return accounts, nil
}

// syncTransactions walks the cursor feed until the provider reports no more
// pages. The outcome's cursor advances only after a clean walk. A transaction
// appearing on multiple pages collapses to its latest version so downstream
// classification never double-counts it; removals drop it entirely.
func (e *Engine) syncTransactions(ctx context.Context, rec Record, syncer provider.TransactionSyncer, out *Outcome) []canonical.Transaction {
	var order []string
	byID := make(map[string]canonical.Transaction)
	upsert := func(tx canonical.Transaction) {
		if _, ok := byID[tx.ID]; !ok {
			order = append(order, tx.ID)
		}
		byID[tx.ID] = tx
	}
	collapse := func() []canonical.Transaction {
		txs := make([]canonical.Transaction, 0, len(byID))
		for _, id := range order {
			if tx, ok := byID[id]; ok {
				txs = append(txs, tx)
			}
		}
		return txs
	}

	cursor := rec.Cursor
	for page := 0; ; page++ {
		if page >= e.maxPages {
			e.recordStepError(ctx, out, "transactions", fmt.Errorf("aborted after %d pages without completion", e.maxPages))
			return collapse()
		}

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		pg, err := syncer.SyncTransactions(callCtx, rec.AccessToken, cursor)
		cancel()
		if err != nil {
			e.recordStepError(ctx, out, "transactions", err)
			return collapse()
		}

		for _, tx := range pg.Added {
			upsert(tx)
		}
		for _, tx := range pg.Modified {
			upsert(tx)
		}
		for _, id := range pg.Removed {
			delete(byID, id)
		}
		out.Result.Added += len(pg.Added)
		out.Result.Modified += len(pg.Modified)
		out.Result.Removed += len(pg.Removed)
		out.Result.RemovedIDs = append(out.Result.RemovedIDs, pg.Removed...)

		cursor = pg.NextCursor
		if !pg.HasMore {
			out.Cursor = cursor
			out.CursorAdvanced = true
			return collapse()
		}
	}
}

// fetchTransactionWindow is the fallback for adapters without cursor sync:
// a fixed trailing window fetched as a full replacement set.
func (e *Engine) fetchTransactionWindow(ctx context.Context, rec Record, adapter provider.Adapter, opts SyncOptions, out *Outcome) []canonical.Transaction {
	end := time.Now()
	windowOpts := provider.TransactionOptions{
		StartDate: end.AddDate(0, 0, -opts.TransactionDays),
		EndDate:   end,
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	txs, err := adapter.GetTransactions(callCtx, rec.AccessToken, windowOpts)
	if err != nil {
		e.recordStepError(ctx, out, "transactions", err)
		return nil
	}

	out.Result.Added = len(txs)
	return txs
}

// recordStepError appends the failure to the result and classifies it.
// Auth-class provider errors park the connection in pending_reauth.
func (e *Engine) recordStepError(ctx context.Context, out *Outcome, step string, err error) {
	out.Result.Errors = append(out.Result.Errors, fmt.Sprintf("%s: %v", step, err))
	syncStepErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if provider.IsAuthError(err) {
		out.Status = StatusPendingReauth
		if perr, ok := provider.AsError(err); ok {
			out.ErrorCode = perr.Code
			out.ErrorDetail = perr.Message
		} else {
			out.ErrorCode = provider.CodeLoginRequired
			out.ErrorDetail = err.Error()
		}
	}

	log.Printf("Warning: sync step %s failed for connection %s: %v", step, out.Result.ConnectionID, err)
}

// fetchWithTimeout runs one adapter call under the per-call deadline.
func fetchWithTimeout[T any](ctx context.Context, timeout time.Duration, token string, fn func(context.Context, string) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx, token)
}
