package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alsolver/alsolver/internal/consts"
)

// MemoryStore keeps users and request logs in process memory. It is used
// when no POSTGRE_DSN is configured and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[int64]*User
	logs   []RequestLog
	nextID int
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[int64]*User),
		now:   time.Now,
	}
}

func (m *MemoryStore) GetUser(_ context.Context, telegramID int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[telegramID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, telegramID int64, username, today string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.ensure(telegramID, username, today)
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) UpdateUsage(_ context.Context, telegramID int64, dailyCount int, lastReset, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[telegramID]
	if !ok {
		return fmt.Errorf("failed to update usage: user not found")
	}
	u.DailyCount = dailyCount
	u.LastReset = lastReset
	if username != "" {
		u.Username = username
	}
	u.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) UpdateLastReset(_ context.Context, telegramID int64, lastReset string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[telegramID]
	if !ok {
		return fmt.Errorf("failed to update last reset: user not found")
	}
	u.LastReset = lastReset
	u.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) IncrementIfBelow(_ context.Context, telegramID int64, username, today string, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.ensure(telegramID, username, today)
	if u.LastReset != today {
		u.DailyCount = 0
		u.LastReset = today
	} else if u.DailyCount >= limit {
		return u.DailyCount, false, nil
	}

	u.DailyCount++
	if username != "" {
		u.Username = username
	}
	u.UpdatedAt = m.now()
	return u.DailyCount, true, nil
}

func (m *MemoryStore) UpsertLanguage(_ context.Context, telegramID int64, language, today string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.ensure(telegramID, "", today)
	u.Language = language
	u.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) InsertRequestLog(_ context.Context, entry *RequestLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	entry.ID = m.nextID
	entry.CreatedAt = m.now()

	stored := *entry
	if entry.Subject != nil {
		s := *entry.Subject
		stored.Subject = &s
	}
	m.logs = append(m.logs, stored)
	return nil
}

// RequestLogs returns a copy of every stored log, oldest first.
func (m *MemoryStore) RequestLogs() []RequestLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]RequestLog, len(m.logs))
	copy(out, m.logs)
	return out
}

func (m *MemoryStore) Close() error {
	return nil
}

// ensure returns the stored user, creating it first. Caller holds mu.
func (m *MemoryStore) ensure(telegramID int64, username, today string) *User {
	if u, ok := m.users[telegramID]; ok {
		return u
	}
	now := m.now()
	u := &User{
		ID:         len(m.users) + 1,
		TelegramID: telegramID,
		Username:   username,
		LastReset:  today,
		Language:   consts.DefaultLanguage,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.users[telegramID] = u
	return u
}
