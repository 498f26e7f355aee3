package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/go-session/pkg/transcript"
)

// PostgresStore persists transcripts in a jsonb column.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgresStore connects a pool and ensures the table exists.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	s := &PostgresStore{DB: db}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) createSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS session_transcripts (
			id         TEXT PRIMARY KEY,
			entries    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, id string, t *transcript.Transcript) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO session_transcripts (id, entries, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET entries = EXCLUDED.entries, updated_at = now();
	`, id, data)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*transcript.Transcript, error) {
	var data []byte
	err := s.DB.QueryRow(ctx,
		`SELECT entries FROM session_transcripts WHERE id = $1;`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t := transcript.New()
	if err := json.Unmarshal(data, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT id FROM session_transcripts ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx,
		`DELETE FROM session_transcripts WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s != nil && s.DB != nil {
		s.DB.Close()
	}
	return nil
}
