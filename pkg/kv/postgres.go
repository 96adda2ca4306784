package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/StricklySoft/contentflow/pkg/clients/postgres"
	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

// PostgresClient is the part of *postgres.Client that PostgresStore
// needs.
type PostgresClient interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ PostgresClient = (*postgres.Client)(nil)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS kv_entries (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ
)`

	getSQL = `SELECT value FROM kv_entries
WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`

	putSQL = `INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`

	listSQL = `SELECT key FROM kv_entries
WHERE key LIKE $1 ESCAPE '\' AND (expires_at IS NULL OR expires_at > $2)`

	purgeSQL = `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`
)

// PostgresStore keeps every record in the kv_entries table. Expired rows
// are invisible to reads and removed by Purge.
type PostgresStore struct {
	client PostgresClient
	now    func() time.Time
}

// NewPostgresStore returns a Store over client. Call Migrate once before
// first use.
func NewPostgresStore(client PostgresClient) *PostgresStore {
	return &PostgresStore{client: client, now: time.Now}
}

// Migrate creates the kv_entries table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.client.Exec(ctx, createTableSQL)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.client.QueryRow(ctx, getSQL, key, s.now().UTC()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, sserr.Wrapf(err, sserr.CodeInternalDatabase, "kv: get %q failed", key)
	}
	return value, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := s.now().UTC().Add(ttl)
		expiresAt = &t
	}
	_, err := s.client.Exec(ctx, putSQL, key, value, expiresAt)
	return err
}

func (s *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.client.Query(ctx, listSQL, likePrefix(prefix), s.now().UTC())
	if err != nil {
		return nil, err
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "kv: list scan failed")
	}
	return keys, nil
}

// Purge deletes expired rows and returns how many were removed.
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	tag, err := s.client.Exec(ctx, purgeSQL, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// likePrefix escapes LIKE wildcards in prefix and appends %.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
