package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL, for deployments where
// several relay processes share one pairing state.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller closes it.
//
// Schema (created by EnsureSchema):
//
//	CREATE TABLE pairing_requests (
//	    channel    text NOT NULL,
//	    sender_id  text NOT NULL,
//	    code       text NOT NULL,
//	    approved   boolean NOT NULL DEFAULT false,
//	    meta       jsonb NOT NULL DEFAULT '{}'::jsonb,
//	    created_at timestamptz NOT NULL DEFAULT now(),
//	    PRIMARY KEY (channel, sender_id)
//	)
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed pairing Store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("pairing: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the pairing table when absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pairing_requests (
			channel    text NOT NULL,
			sender_id  text NOT NULL,
			code       text NOT NULL,
			approved   boolean NOT NULL DEFAULT false,
			meta       jsonb NOT NULL DEFAULT '{}'::jsonb,
			created_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (channel, sender_id)
		)`)
	if err != nil {
		return fmt.Errorf("pairing: ensure schema: %w", err)
	}
	return nil
}

// Upsert implements Store. ON CONFLICT keeps the existing code and
// metadata, so a repeat sender never generates a second pairing notice.
func (s *PostgresStore) Upsert(ctx context.Context, channel, senderID string, meta map[string]string) (string, bool, error) {
	if channel == "" || senderID == "" {
		return "", false, errors.New("pairing: empty channel or sender")
	}

	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", false, fmt.Errorf("pairing: encode meta: %w", err)
	}

	var code string
	var created bool
	err = s.pool.QueryRow(ctx, `
		INSERT INTO pairing_requests (channel, sender_id, code, meta)
		VALUES (lower($1), lower($2), $3, $4)
		ON CONFLICT (channel, sender_id) DO UPDATE SET code = pairing_requests.code
		RETURNING code, (xmax = 0)`,
		channel, senderID, NewCode(), metaJSON,
	).Scan(&code, &created)
	if err != nil {
		return "", false, fmt.Errorf("pairing: upsert: %w", err)
	}
	return code, created, nil
}

// ReadAllow implements Store.
func (s *PostgresStore) ReadAllow(ctx context.Context, channel string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sender_id FROM pairing_requests
		WHERE channel = lower($1) AND approved
		ORDER BY sender_id`, channel)
	if err != nil {
		return nil, fmt.Errorf("pairing: read allow: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pairing: scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Approve implements Store.
func (s *PostgresStore) Approve(ctx context.Context, channel, code string) (string, error) {
	var senderID string
	err := s.pool.QueryRow(ctx, `
		UPDATE pairing_requests SET approved = true
		WHERE channel = lower($1) AND upper(code) = upper($2)
		RETURNING sender_id`, channel, code,
	).Scan(&senderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errors.New("pairing: unknown code")
	}
	if err != nil {
		return "", fmt.Errorf("pairing: approve: %w", err)
	}
	return senderID, nil
}
