package scheduler

import (
	"context"
	"fmt"
	"log"

	"fiscus/internal/domain/connection"
)

// ConnectionSyncJob implements the Job interface for syncing a single
// connection.
type ConnectionSyncJob struct {
	connectionID string
	manager      *connection.Manager
}

// NewConnectionSyncJob creates a sync job for one connection.
func NewConnectionSyncJob(connectionID string, manager *connection.Manager) *ConnectionSyncJob {
	return &ConnectionSyncJob{
		connectionID: connectionID,
		manager:      manager,
	}
}

// Execute runs the connection sync job.
func (j *ConnectionSyncJob) Execute(ctx context.Context) error {
	log.Printf("Starting sync for connection %s", j.connectionID)

	result, err := j.manager.SyncConnection(ctx, j.connectionID)
	if err != nil {
		log.Printf("Sync failed for connection %s: %v", j.connectionID, err)
		return fmt.Errorf("sync failed: %w", err)
	}

	if len(result.Errors) > 0 {
		log.Printf("Sync for connection %s completed with errors: Added=%d, Modified=%d, Removed=%d, Errors=%d",
			j.connectionID, result.Added, result.Modified, result.Removed, len(result.Errors))
		return fmt.Errorf("sync completed with %d errors", len(result.Errors))
	}

	log.Printf("Sync for connection %s completed successfully: Added=%d, Modified=%d, Removed=%d",
		j.connectionID, result.Added, result.Modified, result.Removed)

	return nil
}

// Target returns the connection ID associated with this job.
func (j *ConnectionSyncJob) Target() string {
	return j.connectionID
}

// Description returns a human-readable description of the job.
func (j *ConnectionSyncJob) Description() string {
	return fmt.Sprintf("Sync for connection %s", j.connectionID)
}

// FullSyncJob implements the Job interface for syncing every connection and
// sending the post-run digest.
type FullSyncJob struct {
	manager *connection.Manager
	digest  func(context.Context, map[string]connection.SyncResult) error
}

// NewFullSyncJob creates a full sync job. The digest callback may be nil.
func NewFullSyncJob(manager *connection.Manager, digest func(context.Context, map[string]connection.SyncResult) error) *FullSyncJob {
	return &FullSyncJob{
		manager: manager,
		digest:  digest,
	}
}

// Execute syncs all connections, then reports the run through the digest
// callback.
func (j *FullSyncJob) Execute(ctx context.Context) error {
	log.Printf("Starting full sync for all connections")

	results := j.manager.SyncAll(ctx)

	failed := 0
	byConnection := make(map[string]connection.SyncResult, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		byConnection[r.ConnectionID] = *r
		if len(r.Errors) > 0 {
			failed++
		}
	}

	if j.digest != nil && len(byConnection) > 0 {
		if err := j.digest(ctx, byConnection); err != nil {
			log.Printf("Warning: failed to send sync digest: %v", err)
		}
	}

	if failed > 0 {
		log.Printf("Full sync completed with failures: Connections=%d, Failed=%d", len(results), failed)
		return fmt.Errorf("full sync completed with %d failed connections", failed)
	}

	log.Printf("Full sync completed successfully: Connections=%d", len(results))
	return nil
}

// Target returns the scope of this job.
func (j *FullSyncJob) Target() string {
	return "all"
}

// Description returns a human-readable description of the job.
func (j *FullSyncJob) Description() string {
	return "Full sync for all connections"
}

// HealthRefreshJob implements the Job interface for re-checking connections
// that are in an attention-needing state.
type HealthRefreshJob struct {
	manager *connection.Manager
}

// NewHealthRefreshJob creates a health refresh job.
func NewHealthRefreshJob(manager *connection.Manager) *HealthRefreshJob {
	return &HealthRefreshJob{manager: manager}
}

// Execute re-checks provider-side status for each connection that currently
// needs attention.
func (j *HealthRefreshJob) Execute(ctx context.Context) error {
	summary := j.manager.HealthSummary()
	if len(summary.NeedsAttention) == 0 {
		return nil
	}

	log.Printf("Refreshing status for %d connections needing attention", len(summary.NeedsAttention))

	failed := 0
	for _, item := range summary.NeedsAttention {
		status, err := j.manager.RefreshConnectionStatus(ctx, item.ConnectionID)
		if err != nil {
			log.Printf("Status refresh failed for connection %s: %v", item.ConnectionID, err)
			failed++
			continue
		}
		if status != item.Status {
			log.Printf("Connection %s status changed: %s -> %s", item.ConnectionID, item.Status, status)
		}
	}

	if failed > 0 {
		return fmt.Errorf("status refresh completed with %d failures", failed)
	}

	return nil
}

// Target returns the scope of this job.
func (j *HealthRefreshJob) Target() string {
	return "attention"
}

// Description returns a human-readable description of the job.
func (j *HealthRefreshJob) Description() string {
	return "Status refresh for connections needing attention"
}
