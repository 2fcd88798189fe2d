package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fiscus/internal/domain/canonical"
	"fiscus/internal/domain/connection"
	"fiscus/internal/infrastructure/crypto"
)

// ConnectionStore persists connection records with the access token and sync
// cursor encrypted at rest. It implements connection.Store.
type ConnectionStore struct {
	db  *DB
	enc *crypto.Encryptor
}

var _ connection.Store = (*ConnectionStore)(nil)

func NewConnectionStore(db *DB, enc *crypto.Encryptor) *ConnectionStore {
	return &ConnectionStore{db: db, enc: enc}
}

// Save inserts or replaces one record keyed by connection ID.
func (s *ConnectionStore) Save(ctx context.Context, rec connection.Record) error {
	accessToken, err := s.enc.Encrypt(rec.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	cursor, err := s.enc.Encrypt(rec.Cursor)
	if err != nil {
		return fmt.Errorf("failed to encrypt sync cursor: %w", err)
	}

	capabilitiesJSON, err := json.Marshal(rec.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}
	accountIDsJSON, err := json.Marshal(emptyToSlice(rec.AccountIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal account ids: %w", err)
	}
	accountsJSON, err := json.Marshal(emptyAccountsToSlice(rec.Accounts))
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}

	var lastResultJSON any
	if rec.LastSyncResult != nil {
		data, err := json.Marshal(rec.LastSyncResult)
		if err != nil {
			return fmt.Errorf("failed to marshal last sync result: %w", err)
		}
		lastResultJSON = data
	}

	query := `
		INSERT INTO connections (
			id, provider, institution_id, institution_name, status,
			error_code, error_detail, access_token, sync_cursor,
			capabilities, account_ids, accounts, last_sync_result,
			last_attempted_sync_at, last_successful_sync_at,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE
			SET status = EXCLUDED.status,
			    error_code = EXCLUDED.error_code,
			    error_detail = EXCLUDED.error_detail,
			    access_token = EXCLUDED.access_token,
			    sync_cursor = EXCLUDED.sync_cursor,
			    capabilities = EXCLUDED.capabilities,
			    account_ids = EXCLUDED.account_ids,
			    accounts = EXCLUDED.accounts,
			    last_sync_result = EXCLUDED.last_sync_result,
			    last_attempted_sync_at = EXCLUDED.last_attempted_sync_at,
			    last_successful_sync_at = EXCLUDED.last_successful_sync_at,
			    updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.Provider, rec.InstitutionID, rec.InstitutionName, string(rec.Status),
		rec.ErrorCode, rec.ErrorDetail, accessToken, cursor,
		capabilitiesJSON, accountIDsJSON, accountsJSON, lastResultJSON,
		nullableTime(rec.LastAttemptedSyncAt), nullableTime(rec.LastSuccessfulSyncAt),
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save connection %s: %w", rec.ID, err)
	}
	return nil
}

// LoadAll returns every persisted record with credentials decrypted.
func (s *ConnectionStore) LoadAll(ctx context.Context) ([]connection.Record, error) {
	query := `
		SELECT id, provider, institution_id, institution_name, status,
		       error_code, error_detail, access_token, sync_cursor,
		       capabilities, account_ids, accounts, last_sync_result,
		       last_attempted_sync_at, last_successful_sync_at,
		       created_at, updated_at
		FROM connections
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load connections: %w", err)
	}
	defer rows.Close()

	var records []connection.Record
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return records, nil
}

// Delete removes one record. Deleting an absent record is not an error.
func (s *ConnectionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete connection %s: %w", id, err)
	}
	return nil
}

func (s *ConnectionStore) scanRecord(rows *sql.Rows) (connection.Record, error) {
	var rec connection.Record
	var status string
	var accessToken, cursor string
	var capabilitiesJSON, accountIDsJSON, accountsJSON []byte
	var lastResultJSON []byte
	var lastAttempted, lastSuccessful sql.NullTime

	err := rows.Scan(
		&rec.ID, &rec.Provider, &rec.InstitutionID, &rec.InstitutionName, &status,
		&rec.ErrorCode, &rec.ErrorDetail, &accessToken, &cursor,
		&capabilitiesJSON, &accountIDsJSON, &accountsJSON, &lastResultJSON,
		&lastAttempted, &lastSuccessful,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return connection.Record{}, fmt.Errorf("failed to scan connection: %w", err)
	}

	rec.Status = connection.Status(status)
	if lastAttempted.Valid {
		rec.LastAttemptedSyncAt = &lastAttempted.Time
	}
	if lastSuccessful.Valid {
		rec.LastSuccessfulSyncAt = &lastSuccessful.Time
	}

	if rec.AccessToken, err = s.enc.Decrypt(accessToken); err != nil {
		return connection.Record{}, fmt.Errorf("failed to decrypt access token for %s: %w", rec.ID, err)
	}
	if rec.Cursor, err = s.enc.Decrypt(cursor); err != nil {
		return connection.Record{}, fmt.Errorf("failed to decrypt sync cursor for %s: %w", rec.ID, err)
	}

	if err := json.Unmarshal(capabilitiesJSON, &rec.Capabilities); err != nil {
		return connection.Record{}, fmt.Errorf("failed to unmarshal capabilities for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal(accountIDsJSON, &rec.AccountIDs); err != nil {
		return connection.Record{}, fmt.Errorf("failed to unmarshal account ids for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal(accountsJSON, &rec.Accounts); err != nil {
		return connection.Record{}, fmt.Errorf("failed to unmarshal accounts for %s: %w", rec.ID, err)
	}
	if len(lastResultJSON) > 0 {
		var result connection.SyncResult
		if err := json.Unmarshal(lastResultJSON, &result); err != nil {
			return connection.Record{}, fmt.Errorf("failed to unmarshal last sync result for %s: %w", rec.ID, err)
		}
		rec.LastSyncResult = &result
	}

	return rec, nil
}

// emptyToSlice keeps nil slices serializing as [] instead of null so the
// JSONB columns always hold arrays.
func emptyToSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyAccountsToSlice(s []canonical.Account) []canonical.Account {
	if s == nil {
		return []canonical.Account{}
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
