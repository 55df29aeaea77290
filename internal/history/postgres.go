package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ladybot_turns (
			id UUID PRIMARY KEY,
			exchange_id UUID NOT NULL,
			role TEXT NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ladybot_turns_created ON ladybot_turns (created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init history schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, t Turn) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ladybot_turns (id, exchange_id, role, source, content, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.ExchangeID, string(t.Role), string(t.Source), t.Content, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, exchange_id, role, source, content, created_at FROM (
			SELECT * FROM ladybot_turns ORDER BY created_at DESC LIMIT $1
		) recent ORDER BY created_at ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, scanTurn)
	if err != nil {
		return nil, fmt.Errorf("scan turns: %w", err)
	}
	return turns, nil
}

func scanTurn(row pgx.CollectableRow) (Turn, error) {
	var (
		t            Turn
		role, source string
	)
	if err := row.Scan(&t.ID, &t.ExchangeID, &role, &source, &t.Content, &t.CreatedAt); err != nil {
		return Turn{}, err
	}
	t.Role, t.Source = Role(role), Source(source)
	return t, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
