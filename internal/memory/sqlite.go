package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists coaching memory in a local SQLite file. State is a
// document per user; goals, preferences, and history are JSON columns.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS coach_users (
			user_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			goals TEXT NOT NULL DEFAULT '[]',
			preferences TEXT NOT NULL DEFAULT '{}',
			history TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, userID, name string, role Role) error {
	state := newUserState(userID, name, role)
	goals, prefs, history, err := marshalStateDocs(state)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	var exists int
	row := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM coach_users WHERE user_id = ?`, userID)
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("check existing user: %w", err)
	}
	if exists > 0 {
		return ErrAlreadyExists
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO coach_users (user_id, name, role, goals, preferences, history, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, name, string(role), goals, prefs, history,
		state.CreatedAt.Format(time.RFC3339Nano), state.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID string) (UserState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, role, goals, preferences, history, created_at, updated_at
		 FROM coach_users WHERE user_id = ?`, userID)
	state, err := scanStateRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return UserState{}, ErrNotFound
	}
	return state, err
}

func (s *SQLiteStore) Merge(ctx context.Context, userID string, patch Patch) (UserState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UserState{}, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT user_id, name, role, goals, preferences, history, created_at, updated_at
		 FROM coach_users WHERE user_id = ?`, userID)
	state, err := scanStateRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return UserState{}, ErrNotFound
	}
	if err != nil {
		return UserState{}, err
	}

	state = applyPatch(state, patch)
	if err := upsertState(ctx, tx, userID, state); err != nil {
		return UserState{}, err
	}
	if err := tx.Commit(); err != nil {
		return UserState{}, fmt.Errorf("commit merge: %w", err)
	}
	return state, nil
}

func (s *SQLiteStore) Put(ctx context.Context, userID string, state UserState) error {
	state.UserID = userID
	return upsertState(ctx, s.db, userID, state)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertState(ctx context.Context, db execer, userID string, state UserState) error {
	goals, prefs, history, err := marshalStateDocs(state)
	if err != nil {
		return err
	}
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}
	state.UpdatedAt = time.Now().UTC()
	_, err = db.ExecContext(ctx,
		`INSERT INTO coach_users (user_id, name, role, goals, preferences, history, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			goals = excluded.goals,
			preferences = excluded.preferences,
			history = excluded.history,
			updated_at = excluded.updated_at`,
		userID, state.Name, string(state.Role), goals, prefs, history,
		state.CreatedAt.Format(time.RFC3339Nano), state.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put user state: %w", err)
	}
	return nil
}

func marshalStateDocs(state UserState) (goals, prefs, history string, err error) {
	g, err := json.Marshal(state.Goals)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal goals: %w", err)
	}
	p, err := json.Marshal(state.Preferences)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal preferences: %w", err)
	}
	h, err := json.Marshal(state.History)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal history: %w", err)
	}
	return string(g), string(p), string(h), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStateRow(row rowScanner) (UserState, error) {
	var (
		state                 UserState
		role                  string
		goals, prefs, history string
		createdAt, updatedAt  string
	)
	if err := row.Scan(&state.UserID, &state.Name, &role, &goals, &prefs, &history, &createdAt, &updatedAt); err != nil {
		return UserState{}, err
	}
	state.Role = Role(role)
	if err := json.Unmarshal([]byte(goals), &state.Goals); err != nil {
		return UserState{}, fmt.Errorf("unmarshal goals: %w", err)
	}
	if err := json.Unmarshal([]byte(prefs), &state.Preferences); err != nil {
		return UserState{}, fmt.Errorf("unmarshal preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &state.History); err != nil {
		return UserState{}, fmt.Errorf("unmarshal history: %w", err)
	}
	var err error
	if state.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return UserState{}, fmt.Errorf("parse created_at: %w", err)
	}
	if state.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return UserState{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return state, nil
}
