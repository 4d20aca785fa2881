package database

import "context"

// Store is implemented by *DB and *MemoryStore.
type Store interface {
	GetUser(ctx context.Context, telegramID int64) (*User, error)
	CreateUser(ctx context.Context, telegramID int64, username, today string) (*User, error)
	UpdateUsage(ctx context.Context, telegramID int64, dailyCount int, lastReset, username string) error
	UpdateLastReset(ctx context.Context, telegramID int64, lastReset string) error
	IncrementIfBelow(ctx context.Context, telegramID int64, username, today string, limit int) (int, bool, error)
	UpsertLanguage(ctx context.Context, telegramID int64, language, today string) error
	InsertRequestLog(ctx context.Context, entry *RequestLog) error
	Close() error
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*MemoryStore)(nil)
)
