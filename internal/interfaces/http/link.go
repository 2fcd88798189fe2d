package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"fiscus/internal/domain/connection"
	"fiscus/internal/domain/provider"
)

// LinkHandler exposes provider registration and the account-linking flow.
type LinkHandler struct {
	manager *connection.Manager
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(manager *connection.Manager) *LinkHandler {
	return &LinkHandler{manager: manager}
}

// --- Request/Response types ---

type RegisterProviderRequest struct {
	Provider    string `json:"provider"`
	ClientID    string `json:"clientId"`
	Secret      string `json:"secret"`
	Environment string `json:"environment"`
}

type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

type CreateLinkRequest struct {
	Provider     string   `json:"provider"`
	UserID       string   `json:"userId"`
	Capabilities []string `json:"capabilities"`
}

type ExchangeTokenRequest struct {
	Provider        string `json:"provider"`
	PublicToken     string `json:"publicToken"`
	InstitutionID   string `json:"institutionId"`
	InstitutionName string `json:"institutionName"`
}

// --- Handlers ---

// HandleProviders handles GET (list) and POST (register) /api/providers.
func (h *LinkHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListProviders(w, r)
	case http.MethodPost:
		h.handleRegisterProvider(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *LinkHandler) handleListProviders(w http.ResponseWriter, r *http.Request) {
	state := h.manager.State()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ProvidersResponse{Providers: state.Providers})
}

func (h *LinkHandler) handleRegisterProvider(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req RegisterProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Provider == "" {
		http.Error(w, "Provider is required", http.StatusBadRequest)
		return
	}

	cfg := provider.Config{
		Provider:    req.Provider,
		ClientID:    req.ClientID,
		Secret:      req.Secret,
		Environment: req.Environment,
	}

	if err := h.manager.ConfigureProvider(cfg); err != nil {
		switch {
		case errors.Is(err, connection.ErrUnknownProvider):
			http.Error(w, "Unknown provider", http.StatusBadRequest)
		case errors.Is(err, provider.ErrInvalidEnvironment),
			errors.Is(err, provider.ErrMissingCredentials):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("Error configuring provider %s: %v", req.Provider, err)
			http.Error(w, "Failed to configure provider", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"provider": req.Provider,
	})
}

// HandleCreateLink handles POST /api/links (start a link flow).
func (h *LinkHandler) HandleCreateLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Provider == "" {
		http.Error(w, "Provider is required", http.StatusBadRequest)
		return
	}

	caps := make([]provider.Capability, 0, len(req.Capabilities))
	for _, c := range req.Capabilities {
		caps = append(caps, provider.Capability(c))
	}

	token, err := h.manager.CreateLink(r.Context(), req.Provider, req.UserID, caps)
	if err != nil {
		writeLinkError(w, req.Provider, err, "Failed to create link token")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(token)
}

// HandleExchangeToken handles POST /api/links/exchange (complete a link flow).
func (h *LinkHandler) HandleExchangeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req ExchangeTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Provider == "" {
		http.Error(w, "Provider is required", http.StatusBadRequest)
		return
	}
	if req.PublicToken == "" {
		http.Error(w, "Public token is required", http.StatusBadRequest)
		return
	}

	conn, err := h.manager.CompleteLink(r.Context(), req.Provider, req.PublicToken, req.InstitutionID, req.InstitutionName)
	if err != nil {
		writeLinkError(w, req.Provider, err, "Failed to exchange public token")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conn)
}

// writeLinkError maps link-flow failures to HTTP statuses. Provider-side
// failures surface as 502 so callers can tell them from our own errors.
func writeLinkError(w http.ResponseWriter, providerName string, err error, fallback string) {
	if errors.Is(err, connection.ErrProviderNotConfigured) {
		http.Error(w, "Provider not configured", http.StatusBadRequest)
		return
	}

	if pe, ok := provider.AsError(err); ok {
		if pe.Code == provider.CodeInvalidInput {
			http.Error(w, pe.Message, http.StatusBadRequest)
			return
		}
		log.Printf("Error from provider %s: %v", providerName, err)
		http.Error(w, "Provider request failed", http.StatusBadGateway)
		return
	}

	log.Printf("Error in link flow for provider %s: %v", providerName, err)
	http.Error(w, fallback, http.StatusInternalServerError)
}
