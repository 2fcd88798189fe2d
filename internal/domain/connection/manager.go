package connection

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fiscus/internal/domain/canonical"
	"fiscus/internal/domain/provider"
)

// Notifier delivers user-facing alerts when a connection needs attention.
// A nil notifier disables alerts.
type Notifier interface {
	ConnectionAlert(ctx context.Context, conn Connection, detail string) error
}

// EventPublisher emits connection lifecycle events to an external bus.
// A nil publisher disables event emission.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

const (
	// defaultBatchSize caps concurrent in-flight syncs during SyncAll so a
	// full-portfolio sync does not trip provider rate limits.
	defaultBatchSize = 3

	defaultAutoSyncInterval = 6 * time.Hour
)

// Manager is the orchestrator for provider connections. It owns all
// connection state behind its lock; nothing in this package reads or writes
// records outside of it.
type Manager struct {
	mu       sync.RWMutex
	configs  map[string]provider.Config
	adapters map[string]provider.Adapter
	records  map[string]*Record

	factories map[string]provider.Factory
	engine    *Engine
	store     Store
	notifier  Notifier
	events    EventPublisher
	callbacks Callbacks
	syncOpts  SyncOptions
	batchSize int

	autoSyncCancel context.CancelFunc
	autoSyncEvery  time.Duration
	lastSyncAll    *time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager creates a connection manager. The factory map decides which
// providers can be configured; store, notifier, and events may each be nil.
func NewManager(
	factories map[string]provider.Factory,
	store Store,
	notifier Notifier,
	events EventPublisher,
	callbacks Callbacks,
	syncOpts SyncOptions,
) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		configs:    make(map[string]provider.Config),
		adapters:   make(map[string]provider.Adapter),
		records:    make(map[string]*Record),
		factories:  factories,
		engine:     NewEngine(),
		store:      store,
		notifier:   notifier,
		events:     events,
		callbacks:  callbacks,
		syncOpts:   syncOpts,
		batchSize:  defaultBatchSize,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// SetSyncLimits tunes the per-call timeout, the cursor page bound, and the
// SyncAll batch size. Zero values keep the current setting.
func (m *Manager) SetSyncLimits(callTimeout time.Duration, maxPages, batchSize int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if callTimeout > 0 {
		m.engine.callTimeout = callTimeout
	}
	if maxPages > 0 {
		m.engine.maxPages = maxPages
	}
	if batchSize > 0 {
		m.batchSize = batchSize
	}
}

// Restore loads persisted connection records into memory. Call once at
// startup, before serving traffic.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	records, err := m.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load connection records: %w", err)
	}

	m.mu.Lock()
	for i := range records {
		rec := records[i]
		m.records[rec.ID] = &rec
	}
	m.mu.Unlock()

	if len(records) > 0 {
		log.Printf("Restored %d connection records", len(records))
	}
	m.notifyState()
	return nil
}

// ConfigureProvider registers a provider configuration and constructs its
// adapter. Re-registering the same provider replaces both.
func (m *Manager) ConfigureProvider(cfg provider.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	factory, ok := m.factories[cfg.Provider]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	adapter, err := factory(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct %s adapter: %w", cfg.Provider, err)
	}

	m.mu.Lock()
	m.configs[cfg.Provider] = cfg
	m.adapters[cfg.Provider] = adapter
	m.mu.Unlock()

	log.Printf("Configured provider %s (%s environment)", cfg.Provider, cfg.Environment)
	m.notifyState()
	return nil
}

// CreateLink starts a link flow for the given provider and user.
func (m *Manager) CreateLink(ctx context.Context, providerName, userID string, requested []provider.Capability) (*provider.LinkToken, error) {
	adapter, err := m.adapter(providerName)
	if err != nil {
		return nil, err
	}

	token, err := adapter.CreateLinkToken(ctx, userID, requested)
	if err != nil {
		return nil, fmt.Errorf("failed to create link token: %w", err)
	}
	return token, nil
}

// CompleteLink exchanges a public token for a credential and creates the
// connection in active status. The initial sync runs in the background; the
// caller gets the connection back immediately, with an empty account list,
// and observes sync progress through the record's status and last result.
func (m *Manager) CompleteLink(ctx context.Context, providerName, publicToken, institutionID, institutionName string) (*Connection, error) {
	adapter, err := m.adapter(providerName)
	if err != nil {
		return nil, err
	}

	exchange, err := adapter.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange public token: %w", err)
	}

	// Adopt the provider's item identifier so webhook lookups resolve
	// directly. Adapters that issue none get a generated ID.
	id := exchange.ConnectionID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	rec := &Record{
		Connection: Connection{
			ID:              id,
			Provider:        providerName,
			InstitutionID:   institutionID,
			InstitutionName: institutionName,
			Status:          StatusActive,
			AccountIDs:      []string{},
			Capabilities:    adapter.Capabilities(),
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		AccessToken: exchange.AccessToken,
	}

	m.mu.Lock()
	m.records[rec.ID] = rec
	snapshot := *rec
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	m.notifyState()
	m.publish(ctx, "connection.created", rec.ID, snapshot.Connection)
	log.Printf("Connection %s linked to %s via %s", rec.ID, institutionName, providerName)

	m.scheduleSync(rec.ID)

	conn := snapshot.Connection
	return &conn, nil
}

// RemoveConnection deletes a connection from any state. Revocation at the
// provider is best effort; local removal always proceeds.
func (m *Manager) RemoveConnection(ctx context.Context, id string) error {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return ErrConnectionNotFound
	}
	token := rec.AccessToken
	providerName := rec.Provider
	delete(m.records, id)
	m.mu.Unlock()

	if adapter, err := m.adapter(providerName); err == nil {
		if err := adapter.RemoveConnection(ctx, token); err != nil {
			log.Printf("Warning: provider-side removal of connection %s failed: %v", id, err)
		}
	}

	if m.store != nil {
		if err := m.store.Delete(ctx, id); err != nil {
			log.Printf("Warning: failed to delete persisted connection %s: %v", id, err)
		}
	}

	m.publish(ctx, "connection.removed", id, nil)
	m.notifyState()
	log.Printf("Connection %s removed", id)
	return nil
}

// SyncConnection runs one synchronization pass for a single connection. The
// engine works on a snapshot; the outcome is applied only if the record
// still exists when the sync finishes.
func (m *Manager) SyncConnection(ctx context.Context, id string) (*SyncResult, error) {
	m.mu.RLock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.RUnlock()
		return nil, ErrConnectionNotFound
	}
	snapshot := *rec
	opts := m.syncOpts
	m.mu.RUnlock()

	adapter, err := m.adapter(snapshot.Provider)
	if err != nil {
		return nil, err
	}

	out := m.engine.Run(ctx, snapshot, adapter, opts)

	if !m.applyOutcome(ctx, id, out) {
		log.Printf("Connection %s was removed during sync, outcome dropped", id)
	}
	return out.Result, nil
}

// applyOutcome folds a sync outcome into the live record. Returns false if
// the record no longer exists; a removed connection is never resurrected.
func (m *Manager) applyOutcome(ctx context.Context, id string, out *Outcome) bool {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return false
	}

	now := time.Now()
	prev := rec.Status
	rec.LastAttemptedSyncAt = &now
	if out.AccountsFetched {
		rec.LastSuccessfulSyncAt = &now
	}
	if out.AccountsReplaced {
		rec.Accounts = out.Accounts
		rec.AccountIDs = out.AccountIDs
	}
	if out.CursorAdvanced {
		rec.Cursor = out.Cursor
	}
	rec.Status = out.Status
	if out.Status == StatusActive {
		rec.ErrorCode, rec.ErrorDetail = "", ""
	} else if out.ErrorCode != "" {
		rec.ErrorCode = out.ErrorCode
		rec.ErrorDetail = out.ErrorDetail
	}
	rec.LastSyncResult = out.Result
	rec.UpdatedAt = now
	snapshot := *rec
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	m.notifyState()

	if out.Result.Success() && out.Result.Bridge != nil && m.callbacks.OnPatch != nil {
		m.callbacks.OnPatch(id, out.Result.Bridge.Patch)
	}

	if m.notifier != nil && snapshot.Status.NeedsAttention() && snapshot.Status != prev {
		if err := m.notifier.ConnectionAlert(ctx, snapshot.Connection, snapshot.ErrorDetail); err != nil {
			log.Printf("Warning: failed to send connection alert for %s: %v", id, err)
		}
	}

	m.publishStatusChange(ctx, id, prev, snapshot.Status)
	m.publish(ctx, "connection.synced", id, out.Result)
	return true
}

// SyncAll synchronizes every active connection in batches of at most
// batchSize concurrent syncs. One connection's failure never aborts
// another's; every attempted connection yields exactly one result.
func (m *Manager) SyncAll(ctx context.Context) []*SyncResult {
	m.mu.RLock()
	ids := make([]string, 0, len(m.records))
	for id, rec := range m.records {
		if rec.Status == StatusActive {
			ids = append(ids, id)
		}
	}
	batchSize := m.batchSize
	m.mu.RUnlock()
	sort.Strings(ids)

	results := make([]*SyncResult, 0, len(ids))
	var resultsMu sync.Mutex

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		var wg sync.WaitGroup
		for _, id := range ids[start:end] {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()

				result, err := m.SyncConnection(ctx, id)
				if err != nil {
					result = &SyncResult{
						ConnectionID: id,
						Errors:       []string{err.Error()},
						Timestamp:    time.Now(),
					}
				}

				resultsMu.Lock()
				results = append(results, result)
				resultsMu.Unlock()
			}(id)
		}
		wg.Wait()
	}

	now := time.Now()
	m.mu.Lock()
	m.lastSyncAll = &now
	m.mu.Unlock()

	succeeded := 0
	for _, r := range results {
		if r.Success() {
			succeeded++
		}
	}
	log.Printf("Synced %d connections: %d succeeded, %d with errors", len(results), succeeded, len(results)-succeeded)

	m.notifyState()
	m.publish(ctx, "sync.all.completed", "", map[string]int{"total": len(results), "succeeded": succeeded})
	return results
}

// StartAutoSync begins periodic SyncAll runs. Starting while a timer is
// already running replaces it; two auto-sync loops never run at once.
func (m *Manager) StartAutoSync(interval time.Duration) {
	if interval <= 0 {
		interval = defaultAutoSyncInterval
	}

	m.mu.Lock()
	if m.autoSyncCancel != nil {
		m.autoSyncCancel()
	}
	ctx, cancel := context.WithCancel(m.baseCtx)
	m.autoSyncCancel = cancel
	m.autoSyncEvery = interval
	m.mu.Unlock()

	m.wg.Add(1)
	go m.autoSyncLoop(ctx, interval)

	log.Printf("Auto-sync enabled every %s", interval)
	m.notifyState()
}

// StopAutoSync cancels the periodic trigger. An in-flight SyncAll is allowed
// to finish.
func (m *Manager) StopAutoSync() {
	m.mu.Lock()
	running := m.autoSyncCancel != nil
	if running {
		m.autoSyncCancel()
		m.autoSyncCancel = nil
		m.autoSyncEvery = 0
	}
	m.mu.Unlock()

	if running {
		log.Println("Auto-sync disabled")
		m.notifyState()
	}
}

func (m *Manager) autoSyncLoop(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SyncAll(ctx)
		}
	}
}

// scheduleSync runs one connection sync detached from the caller. Completion
// is observable through the record's status and last sync result.
func (m *Manager) scheduleSync(id string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.SyncConnection(m.baseCtx, id); err != nil {
			log.Printf("Warning: background sync for connection %s failed: %v", id, err)
		}
	}()
}

// RefreshConnectionStatus polls the provider for the connection's current
// health and applies the reported state locally.
func (m *Manager) RefreshConnectionStatus(ctx context.Context, id string) (Status, error) {
	m.mu.RLock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.RUnlock()
		return "", ErrConnectionNotFound
	}
	token := rec.AccessToken
	providerName := rec.Provider
	m.mu.RUnlock()

	adapter, err := m.adapter(providerName)
	if err != nil {
		return "", err
	}

	itemStatus, err := adapter.GetConnectionStatus(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to get connection status: %w", err)
	}
	status := statusFromItem(itemStatus)

	m.mu.Lock()
	rec, ok = m.records[id]
	if !ok {
		m.mu.Unlock()
		return "", ErrConnectionNotFound
	}
	prev := rec.Status
	rec.Status = status
	if status == StatusActive {
		rec.ErrorCode, rec.ErrorDetail = "", ""
	}
	rec.UpdatedAt = time.Now()
	snapshot := *rec
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	m.notifyState()
	m.publishStatusChange(ctx, id, prev, status)
	return status, nil
}

func statusFromItem(s provider.ItemStatus) Status {
	switch s {
	case provider.ItemHealthy:
		return StatusActive
	case provider.ItemDegraded:
		return StatusDegraded
	case provider.ItemReauthRequired:
		return StatusPendingReauth
	case provider.ItemDisconnected:
		return StatusDisconnected
	default:
		return StatusDegraded
	}
}

// GetConnection returns the public view of one connection.
func (m *Manager) GetConnection(id string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	conn := rec.Connection
	return &conn, nil
}

// Accounts returns the canonical accounts of one connection.
func (m *Manager) Accounts(id string) ([]canonical.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	accounts := make([]canonical.Account, len(rec.Accounts))
	copy(accounts, rec.Accounts)
	return accounts, nil
}

// LastSyncResult returns the most recent sync outcome of one connection, or
// nil when it has never synced.
func (m *Manager) LastSyncResult(id string) (*SyncResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return rec.LastSyncResult, nil
}

// State returns a snapshot of the manager's public state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	conns := make([]Connection, 0, len(m.records))
	for _, rec := range m.records {
		conns = append(conns, rec.Connection)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })

	providers := make([]string, 0, len(m.configs))
	for name := range m.configs {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	return State{
		Connections:      conns,
		Providers:        providers,
		AutoSyncEnabled:  m.autoSyncCancel != nil,
		AutoSyncInterval: m.autoSyncEvery,
		LastSyncAll:      m.lastSyncAll,
	}
}

// Close stops the auto-sync timer, cancels background syncs, and waits for
// them to drain.
func (m *Manager) Close() {
	m.StopAutoSync()
	m.baseCancel()
	m.wg.Wait()
}

func (m *Manager) adapter(name string) (provider.Adapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	adapter, ok := m.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, name)
	}
	return adapter, nil
}

func (m *Manager) persist(ctx context.Context, rec Record) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, rec); err != nil {
		log.Printf("Warning: failed to persist connection %s: %v", rec.ID, err)
	}
}

func (m *Manager) publish(ctx context.Context, eventType, key string, payload any) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, eventType, key, payload); err != nil {
		log.Printf("Warning: failed to publish %s event: %v", eventType, err)
	}
}

// publishStatusChange emits a status event only when the value actually
// moved. Syncs that keep a connection in the same status stay quiet.
func (m *Manager) publishStatusChange(ctx context.Context, id string, prev, current Status) {
	if prev == current {
		return
	}
	m.publish(ctx, "connection.status_changed", id, map[string]string{
		"previous": string(prev),
		"current":  string(current),
	})
}

func (m *Manager) notifyState() {
	if m.callbacks.OnStateChange == nil {
		return
	}
	m.callbacks.OnStateChange(m.State())
}
