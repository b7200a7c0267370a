package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists coaching memory in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
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
		`CREATE TABLE IF NOT EXISTS coach_users (
			user_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			goals JSONB NOT NULL DEFAULT '[]',
			preferences JSONB NOT NULL DEFAULT '{}',
			history JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_coach_users_updated ON coach_users (updated_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, userID, name string, role Role) error {
	state := newUserState(userID, name, role)
	goals, prefs, history, err := marshalStateDocs(state)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO coach_users (user_id, name, role, goals, preferences, history, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, name, string(role), goals, prefs, history, state.CreatedAt, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (UserState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, name, role, goals, preferences, history, created_at, updated_at
		 FROM coach_users WHERE user_id = $1`, userID)
	state, err := scanPGState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserState{}, ErrNotFound
	}
	return state, err
}

func (s *PostgresStore) Merge(ctx context.Context, userID string, patch Patch) (UserState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return UserState{}, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT user_id, name, role, goals, preferences, history, created_at, updated_at
		 FROM coach_users WHERE user_id = $1 FOR UPDATE`, userID)
	state, err := scanPGState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserState{}, ErrNotFound
	}
	if err != nil {
		return UserState{}, err
	}

	state = applyPatch(state, patch)
	goals, prefs, history, err := marshalStateDocs(state)
	if err != nil {
		return UserState{}, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE coach_users SET goals = $2, preferences = $3, history = $4, updated_at = $5
		 WHERE user_id = $1`,
		userID, goals, prefs, history, state.UpdatedAt,
	)
	if err != nil {
		return UserState{}, fmt.Errorf("merge user state: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return UserState{}, fmt.Errorf("commit merge: %w", err)
	}
	return state, nil
}

func (s *PostgresStore) Put(ctx context.Context, userID string, state UserState) error {
	state.UserID = userID
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}
	state.UpdatedAt = time.Now().UTC()
	goals, prefs, history, err := marshalStateDocs(state)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO coach_users (user_id, name, role, goals, preferences, history, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			goals = EXCLUDED.goals,
			preferences = EXCLUDED.preferences,
			history = EXCLUDED.history,
			updated_at = EXCLUDED.updated_at`,
		userID, state.Name, string(state.Role), goals, prefs, history, state.CreatedAt, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put user state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPGState(row pgx.Row) (UserState, error) {
	var (
		state                 UserState
		role                  string
		goals, prefs, history []byte
	)
	if err := row.Scan(&state.UserID, &state.Name, &role, &goals, &prefs, &history, &state.CreatedAt, &state.UpdatedAt); err != nil {
		return UserState{}, err
	}
	state.Role = Role(role)
	if err := json.Unmarshal(goals, &state.Goals); err != nil {
		return UserState{}, fmt.Errorf("unmarshal goals: %w", err)
	}
	if err := json.Unmarshal(prefs, &state.Preferences); err != nil {
		return UserState{}, fmt.Errorf("unmarshal preferences: %w", err)
	}
	if err := json.Unmarshal(history, &state.History); err != nil {
		return UserState{}, fmt.Errorf("unmarshal history: %w", err)
	}
	return state, nil
}
