package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/tvlink-server/tvlink-server/internal/models"
)

// ========== Credential Methods ==========

const credentialColumns = `address, client_key, transport_mode, display_name, valid, created_at, last_used_at`

func scanCredential(row interface{ Scan(...any) error }) (*models.Credential, error) {
	c := &models.Credential{}
	err := row.Scan(
		&c.Address, &c.ClientKey, &c.TransportMode, &c.DisplayName,
		&c.Valid, &c.CreatedAt, &c.LastUsedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCredential gets the credential record for a device address
func (s *PostgresStore) GetCredential(ctx context.Context, address string) (*models.Credential, error) {
	query := `
        SELECT ` + credentialColumns + `
        FROM tv_credentials
        WHERE address = $1`

	return scanCredential(s.db.QueryRowContext(ctx, query, address))
}

// UpsertCredential inserts or refreshes the record for an address.
// 同一地址重配对会覆盖旧密钥、刷新 last_used 并复位 valid
func (s *PostgresStore) UpsertCredential(ctx context.Context, address, clientKey string, mode models.TransportMode, displayName string) error {
	if address == "" || clientKey == "" {
		return ErrInvalidData
	}

	now := time.Now()
	query := `
        INSERT INTO tv_credentials (
            address, client_key, transport_mode, display_name, valid, created_at, last_used_at
        ) VALUES ($1, $2, $3, $4, TRUE, $5, $5)
        ON CONFLICT (address) DO UPDATE SET
            client_key     = EXCLUDED.client_key,
            transport_mode = EXCLUDED.transport_mode,
            display_name   = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name
                                  ELSE tv_credentials.display_name END,
            valid          = TRUE,
            last_used_at   = EXCLUDED.last_used_at`

	_, err := s.db.ExecContext(ctx, query, address, clientKey, string(mode), displayName, now)
	return err
}

// InvalidateCredential marks a secret as rejected by the device. The key
// is retained for audit but excluded from silent re-authentication.
func (s *PostgresStore) InvalidateCredential(ctx context.Context, address string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tv_credentials SET valid = FALSE WHERE address = $1`, address)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCredential removes the record for an address
func (s *PostgresStore) DeleteCredential(ctx context.Context, address string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tv_credentials WHERE address = $1`, address)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MostRecentValidCredential returns the newest valid record by last-used time
func (s *PostgresStore) MostRecentValidCredential(ctx context.Context) (*models.Credential, error) {
	query := `
        SELECT ` + credentialColumns + `
        FROM tv_credentials
        WHERE valid = TRUE
        ORDER BY last_used_at DESC
        LIMIT 1`

	return scanCredential(s.db.QueryRowContext(ctx, query))
}

// ListCredentials lists all records, newest first
func (s *PostgresStore) ListCredentials(ctx context.Context) ([]*models.Credential, error) {
	query := `
        SELECT ` + credentialColumns + `
        FROM tv_credentials
        ORDER BY last_used_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}
