package connection

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Webhook event types the manager understands. Providers are normalized to
// these by the HTTP layer; anything else is acknowledged as unhandled.
const (
	EventTransactionsUpdated = "transactions.updated"
	EventConnectionError     = "connection.error"
	EventConnectionUpdated   = "connection.updated"
	EventConnectionRemoved   = "connection.removed"
)

// Webhook dispatch actions returned to the caller.
const (
	ActionResyncTriggered          = "resync_triggered"
	ActionErrorRecorded            = "error_recorded"
	ActionReactivated              = "reactivated"
	ActionConnectionRemoved        = "connection_removed"
	ActionIgnoredUnknownConnection = "ignored_unknown_connection"
)

// WebhookEvent is an inbound provider notification. Transient; it triggers
// a transition or a resync and is never stored.
type WebhookEvent struct {
	ConnectionID string         `json:"connectionId"`
	Type         string         `json:"type"`
	Data         map[string]any `json:"data,omitempty"`
}

// WebhookResult tells the caller what the event did.
type WebhookResult struct {
	Action       string `json:"action"`
	ConnectionID string `json:"connectionId,omitempty"`
}

// ProcessWebhook dispatches one inbound event. Every event type maps to
// exactly one transition; unknown connections and unknown types are
// acknowledged without mutating anything. It never fails: the worst case is
// an ignored event.
func (m *Manager) ProcessWebhook(ctx context.Context, event WebhookEvent) WebhookResult {
	m.mu.RLock()
	_, exists := m.records[event.ConnectionID]
	m.mu.RUnlock()

	if !exists {
		log.Printf("Warning: webhook %s for unknown connection %s ignored", event.Type, event.ConnectionID)
		return WebhookResult{Action: ActionIgnoredUnknownConnection}
	}

	switch event.Type {
	case EventTransactionsUpdated:
		m.scheduleSync(event.ConnectionID)
		return WebhookResult{Action: ActionResyncTriggered, ConnectionID: event.ConnectionID}

	case EventConnectionError:
		code, detail := webhookErrorFields(event.Data)
		m.transition(ctx, event.ConnectionID, StatusError, code, detail)
		return WebhookResult{Action: ActionErrorRecorded, ConnectionID: event.ConnectionID}

	case EventConnectionUpdated:
		m.transition(ctx, event.ConnectionID, StatusActive, "", "")
		return WebhookResult{Action: ActionReactivated, ConnectionID: event.ConnectionID}

	case EventConnectionRemoved:
		if err := m.RemoveConnection(ctx, event.ConnectionID); err != nil {
			log.Printf("Warning: webhook-triggered removal of connection %s failed: %v", event.ConnectionID, err)
		}
		return WebhookResult{Action: ActionConnectionRemoved, ConnectionID: event.ConnectionID}

	default:
		return WebhookResult{Action: "unhandled_" + event.Type, ConnectionID: event.ConnectionID}
	}
}

// transition applies a webhook-driven status change to a connection.
func (m *Manager) transition(ctx context.Context, id string, status Status, code, detail string) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	prev := rec.Status
	rec.Status = status
	rec.ErrorCode = code
	rec.ErrorDetail = detail
	rec.UpdatedAt = time.Now()
	snapshot := *rec
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	m.notifyState()
	m.publishStatusChange(ctx, id, prev, status)

	if m.notifier != nil && status.NeedsAttention() && status != prev {
		alertDetail := detail
		if alertDetail == "" {
			alertDetail = code
		}
		if err := m.notifier.ConnectionAlert(ctx, snapshot.Connection, alertDetail); err != nil {
			log.Printf("Warning: failed to send connection alert for %s: %v", id, err)
		}
	}

	log.Printf("Connection %s transitioned %s to %s via webhook", id, prev, status)
}

// webhookErrorFields pulls the error code and message from an event payload.
// Providers are inconsistent about field names, so a few spellings are
// accepted.
func webhookErrorFields(data map[string]any) (code, detail string) {
	code = stringField(data, "error_code", "errorCode", "code")
	detail = stringField(data, "error_message", "errorMessage", "message")
	if code == "" {
		code = "PROVIDER_ERROR"
	}
	if detail == "" {
		detail = fmt.Sprintf("provider reported error %s", code)
	}
	return code, detail
}

func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := data[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
