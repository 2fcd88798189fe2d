package notification

import (
	"context"
	"fmt"
	"log"

	"fiscus/internal/domain/connection"
	"fiscus/internal/shared/messages"
)

// Service contains the business logic for push alert operations. It is the
// connection manager's Notifier and the scheduler's digest sink.
type Service struct {
	repo      Repository
	messenger Messenger
	texts     *messages.Messages
}

var _ connection.Notifier = (*Service)(nil)

// NewService creates a new notification service. A nil texts falls back to
// the built-in message defaults.
func NewService(repo Repository, messenger Messenger, texts *messages.Messages) *Service {
	if texts == nil {
		texts = messages.Defaults()
	}
	return &Service{repo: repo, messenger: messenger, texts: texts}
}

// RegisterDevice registers a device token, reactivating it if it was
// previously deactivated.
func (s *Service) RegisterDevice(ctx context.Context, params RegisterDeviceParams) (*DeviceToken, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.UpsertDeviceToken(ctx, params)
}

// DeactivateDevice marks a token inactive so it is skipped on future sends.
// The FCM client calls this when the platform reports a token unregistered.
func (s *Service) DeactivateDevice(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	return s.repo.DeactivateToken(ctx, token)
}

// ConnectionAlert pushes an alert for a connection whose status needs the
// user's attention. Reauth gets its own wording; everything else reports the
// error detail.
func (s *Service) ConnectionAlert(ctx context.Context, conn connection.Connection, detail string) error {
	name := conn.InstitutionName
	if name == "" {
		name = conn.Provider
	}

	var text messages.MessageText
	var body string
	if conn.Status == connection.StatusPendingReauth {
		text = s.texts.ReauthRequired
		body = fmt.Sprintf(text.Body, name)
	} else {
		text = s.texts.ConnectionError
		if detail == "" {
			detail = string(conn.Status)
		}
		body = fmt.Sprintf(text.Body, name, detail)
	}

	return s.send(ctx, text.Title, body, CategoryConnections, map[string]string{
		"connectionId": conn.ID,
		"status":       string(conn.Status),
	})
}

// SyncDigest pushes a one-line summary after a full portfolio sync. Empty
// result sets send nothing.
func (s *Service) SyncDigest(ctx context.Context, results map[string]connection.SyncResult) error {
	if len(results) == 0 {
		return nil
	}

	var transactions int
	for _, r := range results {
		transactions += r.Added + r.Modified + r.Removed
	}

	body := fmt.Sprintf(s.texts.SyncDigest.Body, len(results), transactions)
	return s.send(ctx, s.texts.SyncDigest.Title, body, CategorySyncs, nil)
}

// send delivers a push to every active device token.
func (s *Service) send(ctx context.Context, title, body, category string, data map[string]string) error {
	if !IsValidCategory(category) {
		return ErrInvalidCategory
	}

	tokens, err := s.repo.GetActiveTokens(ctx)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		log.Printf("Notification skipped: no active device tokens")
		return nil
	}

	if data == nil {
		data = make(map[string]string)
	}
	if _, ok := data["route"]; !ok {
		data["route"] = category
	}

	if s.messenger == nil {
		return nil
	}

	tokenStrings := make([]string, len(tokens))
	for i, t := range tokens {
		tokenStrings[i] = t.Token
	}

	if err := s.messenger.SendMulticast(ctx, tokenStrings, title, body, data); err != nil {
		return fmt.Errorf("failed to send %s notification: %w", category, err)
	}
	return nil
}
