package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"fiscus/internal/domain/connection"
)

var (
	webhookMeter    = otel.Meter("fiscus.webhooks")
	webhookTotal, _ = webhookMeter.Int64Counter("webhook.received.total",
		metric.WithDescription("Webhooks received by provider and resulting action"))
)

// signatureHeader carries the hex HMAC-SHA256 of the raw request body.
const signatureHeader = "X-Webhook-Signature"

// WebhookHandler ingests provider notifications. When a secret is configured,
// unsigned or mis-signed requests are rejected before the body is parsed.
type WebhookHandler struct {
	manager *connection.Manager
	secret  string
}

// NewWebhookHandler creates a new webhook handler. An empty secret disables
// signature verification.
func NewWebhookHandler(manager *connection.Manager, secret string) *WebhookHandler {
	return &WebhookHandler{manager: manager, secret: secret}
}

// webhookPayload accepts both the canonical event shape and the raw Plaid
// webhook shape; whichever fields are present win.
type webhookPayload struct {
	ConnectionID string         `json:"connectionId"`
	Type         string         `json:"type"`
	Data         map[string]any `json:"data"`

	ItemID      string         `json:"item_id"`
	WebhookType string         `json:"webhook_type"`
	WebhookCode string         `json:"webhook_code"`
	Error       map[string]any `json:"error"`
}

// HandleWebhook handles POST /api/webhooks/{provider}. Dispatch never fails;
// unknown connections and unknown event types are acknowledged as ignored.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerName := r.PathValue("provider")
	if providerName == "" {
		http.Error(w, "Provider is required", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if h.secret != "" && !h.verifySignature(body, r.Header.Get(signatureHeader)) {
		log.Printf("Warning: rejected webhook for %s with bad signature", providerName)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	event := normalizeEvent(payload)
	if event.ConnectionID == "" {
		http.Error(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	result := h.manager.ProcessWebhook(r.Context(), event)

	webhookTotal.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("provider", providerName),
		attribute.String("action", result.Action),
	))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// normalizeEvent maps whatever shape the provider sent into the canonical
// webhook event. Plaid's webhook_type/webhook_code pairs are translated;
// payloads already in canonical form pass through.
func normalizeEvent(p webhookPayload) connection.WebhookEvent {
	connectionID := p.ConnectionID
	if connectionID == "" {
		connectionID = p.ItemID
	}

	eventType := p.Type
	if eventType == "" {
		eventType = plaidEventType(p.WebhookType, p.WebhookCode)
	}

	data := p.Data
	if data == nil && p.Error != nil {
		data = map[string]any{}
		if code, ok := p.Error["error_code"].(string); ok {
			data["error_code"] = code
		}
		if message, ok := p.Error["error_message"].(string); ok {
			data["error_message"] = message
		}
	}

	return connection.WebhookEvent{
		ConnectionID: connectionID,
		Type:         eventType,
		Data:         data,
	}
}

// plaidEventType translates a Plaid webhook_type/webhook_code pair. Unmapped
// pairs dispatch as-is and come back acknowledged but unhandled.
func plaidEventType(webhookType, webhookCode string) string {
	switch webhookType {
	case "TRANSACTIONS":
		switch webhookCode {
		case "SYNC_UPDATES_AVAILABLE", "DEFAULT_UPDATE", "INITIAL_UPDATE", "HISTORICAL_UPDATE":
			return connection.EventTransactionsUpdated
		}
	case "ITEM":
		switch webhookCode {
		case "ERROR", "PENDING_EXPIRATION", "PENDING_DISCONNECT":
			return connection.EventConnectionError
		case "LOGIN_REPAIRED":
			return connection.EventConnectionUpdated
		case "USER_PERMISSION_REVOKED", "USER_ACCOUNT_REVOKED":
			return connection.EventConnectionRemoved
		}
	}
	return webhookType + ":" + webhookCode
}
