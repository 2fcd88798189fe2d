package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"fiscus/internal/domain/canonical"
	"fiscus/internal/domain/connection"
	"fiscus/internal/domain/provider"
)

const maxRequestBodySize = 1 << 20 // 1 MiB

// ConnectionHandler exposes connection lifecycle and sync operations.
type ConnectionHandler struct {
	manager *connection.Manager
}

// NewConnectionHandler creates a new connection handler.
func NewConnectionHandler(manager *connection.Manager) *ConnectionHandler {
	return &ConnectionHandler{manager: manager}
}

// --- Request/Response types ---

// ConnectionDetailResponse is one connection plus its synced accounts and the
// outcome of its most recent sync.
type ConnectionDetailResponse struct {
	connection.Connection
	Accounts       []canonical.Account    `json:"accounts"`
	LastSyncResult *connection.SyncResult `json:"lastSyncResult,omitempty"`
}

type SyncAllResponse struct {
	Total   int                      `json:"total"`
	Failed  int                      `json:"failed"`
	Results []*connection.SyncResult `json:"results"`
}

type AutoSyncRequest struct {
	IntervalMinutes int `json:"intervalMinutes"`
}

type AutoSyncResponse struct {
	AutoSyncEnabled bool `json:"autoSyncEnabled"`
	IntervalMinutes int  `json:"intervalMinutes,omitempty"`
}

type RefreshStatusResponse struct {
	ConnectionID string            `json:"connectionId"`
	Status       connection.Status `json:"status"`
}

// --- Handlers ---

// HandleConnections handles GET /api/connections (list).
func (h *ConnectionHandler) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := h.manager.State()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state.Connections)
}

// HandleConnectionByID handles GET and DELETE /api/connections/{id}.
func (h *ConnectionHandler) HandleConnectionByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGetConnection(w, r, id)
	case http.MethodDelete:
		h.handleRemoveConnection(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ConnectionHandler) handleGetConnection(w http.ResponseWriter, r *http.Request, id string) {
	conn, err := h.manager.GetConnection(id)
	if err != nil {
		http.Error(w, "Connection not found", http.StatusNotFound)
		return
	}

	accounts, _ := h.manager.Accounts(id)
	if accounts == nil {
		accounts = []canonical.Account{}
	}
	lastResult, _ := h.manager.LastSyncResult(id)

	resp := ConnectionDetailResponse{
		Connection:     *conn,
		Accounts:       accounts,
		LastSyncResult: lastResult,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *ConnectionHandler) handleRemoveConnection(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.manager.RemoveConnection(r.Context(), id); err != nil {
		if errors.Is(err, connection.ErrConnectionNotFound) {
			http.Error(w, "Connection not found", http.StatusNotFound)
			return
		}
		log.Printf("Error removing connection %s: %v", id, err)
		http.Error(w, "Failed to remove connection", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSyncConnection handles POST /api/connections/{id}/sync.
// A completed sync is a 200 even when steps failed; the errors ride inside
// the result.
func (h *ConnectionHandler) HandleSyncConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	result, err := h.manager.SyncConnection(r.Context(), id)
	if err != nil {
		if errors.Is(err, connection.ErrConnectionNotFound) {
			http.Error(w, "Connection not found", http.StatusNotFound)
			return
		}
		log.Printf("Error syncing connection %s: %v", id, err)
		http.Error(w, "Failed to sync connection", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleRefreshStatus handles POST /api/connections/{id}/status/refresh.
func (h *ConnectionHandler) HandleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	status, err := h.manager.RefreshConnectionStatus(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, connection.ErrConnectionNotFound):
			http.Error(w, "Connection not found", http.StatusNotFound)
		case errors.Is(err, connection.ErrProviderNotConfigured):
			http.Error(w, "Provider not configured", http.StatusBadRequest)
		default:
			if _, ok := provider.AsError(err); ok {
				log.Printf("Error refreshing status for connection %s: %v", id, err)
				http.Error(w, "Provider request failed", http.StatusBadGateway)
				return
			}
			log.Printf("Error refreshing status for connection %s: %v", id, err)
			http.Error(w, "Failed to refresh status", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RefreshStatusResponse{ConnectionID: id, Status: status})
}

// HandleSyncAll handles POST /api/sync (sync every active connection).
func (h *ConnectionHandler) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	results := h.manager.SyncAll(r.Context())

	failed := 0
	for _, result := range results {
		if !result.Success() {
			failed++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SyncAllResponse{
		Total:   len(results),
		Failed:  failed,
		Results: results,
	})
}

// HandleAutoSync handles POST (enable) and DELETE (disable) /api/autosync.
func (h *ConnectionHandler) HandleAutoSync(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleEnableAutoSync(w, r)
	case http.MethodDelete:
		h.manager.StopAutoSync()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ConnectionHandler) handleEnableAutoSync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req AutoSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.IntervalMinutes < 0 {
		http.Error(w, "intervalMinutes must not be negative", http.StatusBadRequest)
		return
	}

	// Zero falls back to the manager's default interval.
	h.manager.StartAutoSync(time.Duration(req.IntervalMinutes) * time.Minute)

	state := h.manager.State()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AutoSyncResponse{
		AutoSyncEnabled: state.AutoSyncEnabled,
		IntervalMinutes: int(state.AutoSyncInterval / time.Minute),
	})
}

// HandleConnectionHealth handles GET /api/health/connections.
func (h *ConnectionHandler) HandleConnectionHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary := h.manager.HealthSummary()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
