package messages

import (
	"encoding/json"
	"fmt"
	"os"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Messages holds the push notification texts. Bodies are fmt templates;
// the verbs each one expects are documented on the field.
type Messages struct {
	// ReauthRequired expects the institution name.
	ReauthRequired MessageText `json:"reauth_required"`

	// ConnectionError expects the institution name and the error detail.
	ConnectionError MessageText `json:"connection_error"`

	// SyncDigest expects the connection count and the transaction count.
	SyncDigest MessageText `json:"sync_digest"`
}

// Defaults returns the built-in message texts used when no overrides
// file is configured.
func Defaults() *Messages {
	return &Messages{
		ReauthRequired: MessageText{
			Title: "Reconnect your account",
			Body:  "%s needs to be reconnected before it can sync again.",
		},
		ConnectionError: MessageText{
			Title: "Connection needs attention",
			Body:  "We hit a problem syncing %s: %s",
		},
		SyncDigest: MessageText{
			Title: "Accounts refreshed",
			Body:  "Synced %d connections and updated %d transactions.",
		},
	}
}

// Load reads message overrides from a JSON file, filling any text missing
// from the file with the built-in default. An empty path returns the
// defaults unchanged.
func Load(path string) (*Messages, error) {
	m := Defaults()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}

	var overrides Messages
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}

	merge(&m.ReauthRequired, overrides.ReauthRequired)
	merge(&m.ConnectionError, overrides.ConnectionError)
	merge(&m.SyncDigest, overrides.SyncDigest)
	return m, nil
}

func merge(dst *MessageText, src MessageText) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Body != "" {
		dst.Body = src.Body
	}
}
