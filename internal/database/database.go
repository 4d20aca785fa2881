package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/alsolver/alsolver/internal/consts"
	"github.com/alsolver/alsolver/internal/logger"
)

type DB struct {
	conn *sql.DB
}

const userColumns = `id, telegram_id, username, daily_count, to_char(last_reset, 'YYYY-MM-DD'), language, created_at, updated_at`

// NewDB connects to Postgres and creates the tables if needed.
func NewDB(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, ErrNotConfigured
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initTables(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	logger.InfoMsg("Database connection established successfully")
	return db, nil
}

func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

func (db *DB) initTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		telegram_id BIGINT UNIQUE NOT NULL,
		username VARCHAR(255) NOT NULL DEFAULT '',
		daily_count INTEGER NOT NULL DEFAULT 0,
		last_reset DATE NOT NULL DEFAULT (NOW() AT TIME ZONE 'UTC')::date,
		language VARCHAR(8) NOT NULL DEFAULT 'en',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS request_logs (
		id SERIAL PRIMARY KEY,
		telegram_id BIGINT NOT NULL,
		subject VARCHAR(64),
		source VARCHAR(16) NOT NULL DEFAULT 'photo',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_request_logs_telegram_id ON request_logs(telegram_id);
	`

	_, err := db.conn.ExecContext(ctx, query)
	return err
}

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID, &user.TelegramID, &user.Username, &user.DailyCount,
		&user.LastReset, &user.Language, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser returns nil, nil when the user does not exist.
func (db *DB) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	user, err := scanUser(db.conn.QueryRowContext(ctx, query, telegramID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateUser inserts a user with default quota and language. A concurrent
// insert for the same id returns the existing row.
func (db *DB) CreateUser(ctx context.Context, telegramID int64, username, today string) (*User, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}

	query := `
	INSERT INTO users (telegram_id, username, daily_count, last_reset, language)
	VALUES ($1, $2, 0, $3, $4)
	ON CONFLICT (telegram_id) DO UPDATE SET telegram_id = EXCLUDED.telegram_id
	RETURNING ` + userColumns

	user, err := scanUser(db.conn.QueryRowContext(ctx, query, telegramID, username, today, consts.DefaultLanguage))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.Info("Created new user", map[string]interface{}{
		"user_id":  telegramID,
		"username": username,
	})
	return user, nil
}

// UpdateUsage stores the quota counter. An empty username keeps the stored one.
func (db *DB) UpdateUsage(ctx context.Context, telegramID int64, dailyCount int, lastReset, username string) error {
	if db == nil {
		return ErrNotConfigured
	}

	query := `
	UPDATE users
	SET daily_count = $2, last_reset = $3, username = COALESCE(NULLIF($4, ''), username), updated_at = NOW()
	WHERE telegram_id = $1
	`
	return db.execOne(ctx, "update usage", query, telegramID, dailyCount, lastReset, username)
}

func (db *DB) UpdateLastReset(ctx context.Context, telegramID int64, lastReset string) error {
	if db == nil {
		return ErrNotConfigured
	}

	query := `UPDATE users SET last_reset = $2, updated_at = NOW() WHERE telegram_id = $1`
	return db.execOne(ctx, "update last reset", query, telegramID, lastReset)
}

// IncrementIfBelow admits one request in a single statement: a new day restarts
// the count at 1, otherwise the count is bumped only while below limit. It
// returns the stored count and whether the request was admitted.
func (db *DB) IncrementIfBelow(ctx context.Context, telegramID int64, username, today string, limit int) (int, bool, error) {
	if db == nil {
		return 0, false, ErrNotConfigured
	}

	ensure := `
	INSERT INTO users (telegram_id, username, daily_count, last_reset, language)
	VALUES ($1, $2, 0, $3, $4)
	ON CONFLICT (telegram_id) DO NOTHING
	`
	if _, err := db.conn.ExecContext(ctx, ensure, telegramID, username, today, consts.DefaultLanguage); err != nil {
		return 0, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	query := `
	UPDATE users SET
		daily_count = CASE WHEN last_reset = $3::date THEN daily_count + 1 ELSE 1 END,
		last_reset = $3::date,
		username = COALESCE(NULLIF($2, ''), username),
		updated_at = NOW()
	WHERE telegram_id = $1 AND (last_reset <> $3::date OR daily_count < $4)
	RETURNING daily_count
	`

	var count int
	err := db.conn.QueryRowContext(ctx, query, telegramID, username, today, limit).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return limit, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, true, nil
}

// UpsertLanguage creates the user if needed and sets their language.
func (db *DB) UpsertLanguage(ctx context.Context, telegramID int64, language, today string) error {
	if db == nil {
		return ErrNotConfigured
	}

	query := `
	INSERT INTO users (telegram_id, daily_count, last_reset, language)
	VALUES ($1, 0, $2, $3)
	ON CONFLICT (telegram_id) DO UPDATE SET language = EXCLUDED.language, updated_at = NOW()
	`
	if _, err := db.conn.ExecContext(ctx, query, telegramID, today, language); err != nil {
		return fmt.Errorf("failed to set language: %w", err)
	}
	return nil
}

func (db *DB) InsertRequestLog(ctx context.Context, entry *RequestLog) error {
	if db == nil {
		return ErrNotConfigured
	}

	query := `
	INSERT INTO request_logs (telegram_id, subject, source)
	VALUES ($1, $2, $3)
	RETURNING id, created_at
	`
	var subject sql.NullString
	if entry.Subject != nil {
		subject = sql.NullString{String: *entry.Subject, Valid: true}
	}

	if err := db.conn.QueryRowContext(ctx, query, entry.TelegramID, subject, entry.Source).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert request log: %w", err)
	}
	return nil
}

func (db *DB) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("failed to %s: user not found", op)
	}
	return nil
}
