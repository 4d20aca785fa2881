package database

import (
	"errors"
	"time"
)

// DateLayout is the UTC calendar-day format used for User.LastReset.
const DateLayout = "2006-01-02"

var ErrNotConfigured = errors.New("database not configured")

// User is a Telegram user with their daily quota counter and language choice.
type User struct {
	ID         int       `db:"id" json:"id"`
	TelegramID int64     `db:"telegram_id" json:"telegram_id"`
	Username   string    `db:"username" json:"username"`
	DailyCount int       `db:"daily_count" json:"daily_count"`
	LastReset  string    `db:"last_reset" json:"last_reset"` // YYYY-MM-DD, UTC
	Language   string    `db:"language" json:"language"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// RequestLog records one answered question.
type RequestLog struct {
	ID         int       `db:"id" json:"id"`
	TelegramID int64     `db:"telegram_id" json:"telegram_id"`
	Subject    *string   `db:"subject" json:"subject,omitempty"`
	Source     string    `db:"source" json:"source"` // "photo" or "text"
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Today returns the current UTC calendar day in DateLayout.
func Today(now time.Time) string {
	return now.UTC().Format(DateLayout)
}
