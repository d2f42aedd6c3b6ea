package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("db: not found")

// User is a terminal operator account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session is one persisted automation instance: the crossover detector
// configuration plus its engine binding.
type Session struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	Period          int       `json:"period"`
	CooldownSeconds float64   `json:"cooldown_seconds"`
	Engine          string    `json:"engine"`
	Params          string    `json:"params"` // JSON-encoded order.Params
	Status          string    `json:"status"` // ACTIVE or STOPPED
	LastError       string    `json:"last_error"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SignalRow is one fired signal, kept for the dashboard's signal log.
type SignalRow struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Average   float64   `json:"average"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUser inserts an operator account.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash)
	return err
}

// GetUserByEmail looks an operator up for login.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := d.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateSession persists a new automation session.
func (d *Database) CreateSession(ctx context.Context, s Session) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO sessions (id, symbol, period, cooldown_seconds, engine, params, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Symbol, s.Period, s.CooldownSeconds, s.Engine, s.Params, s.Status)
	return err
}

// UpdateSession rewrites the mutable columns of a session.
func (d *Database) UpdateSession(ctx context.Context, s Session) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE sessions
		SET symbol = ?, period = ?, cooldown_seconds = ?, engine = ?, params = ?,
		    status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		s.Symbol, s.Period, s.CooldownSeconds, s.Engine, s.Params, s.Status, s.LastError, s.ID)
	return err
}

// SetSessionStatus flips a session's status, optionally recording an error.
func (d *Database) SetSessionStatus(ctx context.Context, id, status, lastError string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE sessions SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, status, lastError, id)
	return err
}

// GetSession fetches one session by id.
func (d *Database) GetSession(ctx context.Context, id string) (*Session, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, symbol, period, cooldown_seconds, engine, params, status, last_error, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	var s Session
	if err := row.Scan(&s.ID, &s.Symbol, &s.Period, &s.CooldownSeconds, &s.Engine,
		&s.Params, &s.Status, &s.LastError, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListSessions returns all sessions, newest first.
func (d *Database) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, period, cooldown_seconds, engine, params, status, last_error, created_at, updated_at
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Period, &s.CooldownSeconds, &s.Engine,
			&s.Params, &s.Status, &s.LastError, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListActiveSessions returns sessions that should resume on boot.
func (d *Database) ListActiveSessions(ctx context.Context) ([]Session, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, period, cooldown_seconds, engine, params, status, last_error, created_at, updated_at
		FROM sessions WHERE status = 'ACTIVE' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Period, &s.CooldownSeconds, &s.Engine,
			&s.Params, &s.Status, &s.LastError, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveSessionState upserts the detector state snapshot for a session.
func (d *Database) SaveSessionState(ctx context.Context, sessionID, stateData string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO session_states (session_id, state_data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET
			state_data = excluded.state_data,
			updated_at = CURRENT_TIMESTAMP`,
		sessionID, stateData)
	return err
}

// GetSessionState loads a persisted detector snapshot.
func (d *Database) GetSessionState(ctx context.Context, sessionID string) (string, error) {
	var state string
	err := d.DB.QueryRowContext(ctx,
		`SELECT state_data FROM session_states WHERE session_id = ?`, sessionID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return state, err
}

// CreateSignal appends a fired signal to the log.
func (d *Database) CreateSignal(ctx context.Context, s SignalRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO signals (id, session_id, symbol, side, price, average, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.SessionID, s.Symbol, s.Side, s.Price, s.Average, s.CreatedAt)
	return err
}

// ListSignals returns the most recent signals for a session, newest first.
func (d *Database) ListSignals(ctx context.Context, sessionID string, limit int) ([]SignalRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, session_id, symbol, side, price, average, created_at
		FROM signals WHERE session_id = ?
		ORDER BY created_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var s SignalRow
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Symbol, &s.Side, &s.Price, &s.Average, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
