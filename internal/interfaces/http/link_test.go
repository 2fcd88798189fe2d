package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fiscus/internal/domain/connection"
	"fiscus/internal/domain/provider"
)

func TestHandleProviders_List(t *testing.T) {
	m := newTestManager(t)
	handler := NewLinkHandler(m)

	req, _ := http.NewRequest(http.MethodGet, "/api/providers", nil)
	rr := httptest.NewRecorder()
	handler.HandleProviders(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp ProvidersResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Providers) != 1 || resp.Providers[0] != "sandbox" {
		t.Errorf("providers = %v, want [sandbox]", resp.Providers)
	}
}

func TestHandleProviders_Register(t *testing.T) {
	tests := []struct {
		name           string
		body           RegisterProviderRequest
		expectedStatus int
	}{
		{
			name: "Success",
			body: RegisterProviderRequest{
				Provider:    "sandbox",
				ClientID:    "client-2",
				Secret:      "secret-2",
				Environment: provider.EnvSandbox,
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "Unknown Provider",
			body: RegisterProviderRequest{
				Provider:    "acme-bank",
				ClientID:    "client",
				Secret:      "secret",
				Environment: provider.EnvSandbox,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Invalid Environment",
			body: RegisterProviderRequest{
				Provider:    "sandbox",
				ClientID:    "client",
				Secret:      "secret",
				Environment: "staging",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Missing Credentials",
			body: RegisterProviderRequest{
				Provider:    "sandbox",
				Environment: provider.EnvSandbox,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Missing Provider",
			body:           RegisterProviderRequest{},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			handler := NewLinkHandler(m)

			bodyBytes, _ := json.Marshal(tt.body)
			req, _ := http.NewRequest(http.MethodPost, "/api/providers", bytes.NewBuffer(bodyBytes))
			rr := httptest.NewRecorder()
			handler.HandleProviders(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.expectedStatus, rr.Body.String())
			}
		})
	}
}

func TestHandleCreateLink(t *testing.T) {
	m := newTestManager(t)
	handler := NewLinkHandler(m)

	body, _ := json.Marshal(CreateLinkRequest{Provider: "sandbox", UserID: "user-1"})
	req, _ := http.NewRequest(http.MethodPost, "/api/links", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	handler.HandleCreateLink(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var token provider.LinkToken
	if err := json.NewDecoder(rr.Body).Decode(&token); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if token.Token == "" {
		t.Error("expected a non-empty link token")
	}
	if token.Expiration.IsZero() {
		t.Error("expected a link token expiration")
	}
}

func TestHandleCreateLink_ProviderNotConfigured(t *testing.T) {
	m := newTestManager(t)
	handler := NewLinkHandler(m)

	body, _ := json.Marshal(CreateLinkRequest{Provider: "plaid", UserID: "user-1"})
	req, _ := http.NewRequest(http.MethodPost, "/api/links", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	handler.HandleCreateLink(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHandleExchangeToken(t *testing.T) {
	tests := []struct {
		name           string
		body           ExchangeTokenRequest
		expectedStatus int
	}{
		{
			name: "Success",
			body: ExchangeTokenRequest{
				Provider:        "sandbox",
				PublicToken:     "public-token-1",
				InstitutionID:   "ins-1",
				InstitutionName: "First Platypus Bank",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "Missing Public Token",
			body: ExchangeTokenRequest{
				Provider: "sandbox",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Provider Not Configured",
			body: ExchangeTokenRequest{
				Provider:    "plaid",
				PublicToken: "public-token-1",
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			handler := NewLinkHandler(m)

			bodyBytes, _ := json.Marshal(tt.body)
			req, _ := http.NewRequest(http.MethodPost, "/api/links/exchange", bytes.NewBuffer(bodyBytes))
			rr := httptest.NewRecorder()
			handler.HandleExchangeToken(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.expectedStatus, rr.Body.String())
			}

			if tt.expectedStatus == http.StatusCreated {
				var conn connection.Connection
				if err := json.NewDecoder(rr.Body).Decode(&conn); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if conn.ID == "" {
					t.Error("expected a connection ID")
				}
				if conn.Status != connection.StatusActive {
					t.Errorf("status = %s, want %s", conn.Status, connection.StatusActive)
				}
				if conn.InstitutionName != "First Platypus Bank" {
					t.Errorf("institution = %s, want First Platypus Bank", conn.InstitutionName)
				}
			}
		})
	}
}

func TestHandleCreateLink_InvalidBody(t *testing.T) {
	m := newTestManager(t)
	handler := NewLinkHandler(m)

	req, _ := http.NewRequest(http.MethodPost, "/api/links", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	handler.HandleCreateLink(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
