package connection

import (
	"sort"
	"time"
)

// AttentionItem is one connection the user should look at.
type AttentionItem struct {
	ConnectionID         string     `json:"connectionId"`
	Provider             string     `json:"provider"`
	InstitutionName      string     `json:"institutionName,omitempty"`
	Status               Status     `json:"status"`
	ErrorCode            string     `json:"errorCode,omitempty"`
	ErrorDetail          string     `json:"errorDetail,omitempty"`
	LastSuccessfulSyncAt *time.Time `json:"lastSuccessfulSyncAt,omitempty"`
}

// HealthSummary aggregates connection health for dashboards and the health
// endpoint.
type HealthSummary struct {
	Total           int             `json:"total"`
	ByStatus        map[Status]int  `json:"byStatus"`
	NeedsAttention  []AttentionItem `json:"needsAttention"`
	AutoSyncEnabled bool            `json:"autoSyncEnabled"`
	LastSyncAll     *time.Time      `json:"lastSyncAll,omitempty"`
}

// HealthSummary returns connection counts by status plus the subset of
// connections in error, pending_reauth, or degraded state.
func (m *Manager) HealthSummary() HealthSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := HealthSummary{
		Total:           len(m.records),
		ByStatus:        make(map[Status]int),
		NeedsAttention:  []AttentionItem{},
		AutoSyncEnabled: m.autoSyncCancel != nil,
		LastSyncAll:     m.lastSyncAll,
	}

	for _, rec := range m.records {
		summary.ByStatus[rec.Status]++
		if rec.Status.NeedsAttention() {
			summary.NeedsAttention = append(summary.NeedsAttention, AttentionItem{
				ConnectionID:         rec.ID,
				Provider:             rec.Provider,
				InstitutionName:      rec.InstitutionName,
				Status:               rec.Status,
				ErrorCode:            rec.ErrorCode,
				ErrorDetail:          rec.ErrorDetail,
				LastSuccessfulSyncAt: rec.LastSuccessfulSyncAt,
			})
		}
	}

	sort.Slice(summary.NeedsAttention, func(i, j int) bool {
		return summary.NeedsAttention[i].ConnectionID < summary.NeedsAttention[j].ConnectionID
	})
	return summary
}
