// Package limiter enforces the per-user daily question quota and stores
// each user's explanation language.
package limiter

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alsolver/alsolver/internal/cache"
	"github.com/alsolver/alsolver/internal/consts"
	"github.com/alsolver/alsolver/internal/database"
	"github.com/alsolver/alsolver/internal/logger"
)

const (
	languageCacheSize = 10000
	languageCacheTTL  = 10 * time.Minute
	lockStripes       = 64
)

// Store is the subset of the user store the limiter needs.
type Store interface {
	GetUser(ctx context.Context, telegramID int64) (*database.User, error)
	CreateUser(ctx context.Context, telegramID int64, username, today string) (*database.User, error)
	UpdateUsage(ctx context.Context, telegramID int64, dailyCount int, lastReset, username string) error
	UpdateLastReset(ctx context.Context, telegramID int64, lastReset string) error
	IncrementIfBelow(ctx context.Context, telegramID int64, username, today string, limit int) (int, bool, error)
	UpsertLanguage(ctx context.Context, telegramID int64, language, today string) error
}

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed   bool
	Remaining int
}

type Options struct {
	DailyLimit int
	// Strict serialises check-and-increment per user and uses the store's
	// conditional increment, so concurrent requests cannot overshoot the limit.
	Strict bool
}

type Limiter struct {
	store  Store
	limit  int
	strict bool
	now    func() time.Time

	languages *cache.Cache[string]
	lookups   singleflight.Group
	locks     [lockStripes]sync.Mutex
}

func New(store Store, opts Options) *Limiter {
	limit := opts.DailyLimit
	if limit <= 0 {
		limit = consts.DefaultDailyFreeLimit
	}
	return &Limiter{
		store:     store,
		limit:     limit,
		strict:    opts.Strict,
		now:       time.Now,
		languages: cache.NewWithConfig[string](languageCacheSize, languageCacheTTL, time.Minute),
	}
}

func (l *Limiter) Limit() int {
	return l.limit
}

func (l *Limiter) Close() {
	l.languages.Close()
}

// ResetIfNewDay returns u with a zero count and LastReset set to today when
// the stored reset day is not today.
func ResetIfNewDay(u database.User, today string) database.User {
	if u.LastReset != today {
		u.DailyCount = 0
		u.LastReset = today
	}
	return u
}

// CheckAndIncrement admits the request and counts it when the user is below
// the daily limit. Without Strict, two concurrent calls for the same user may
// both be admitted on the last free slot.
func (l *Limiter) CheckAndIncrement(ctx context.Context, userID int64, displayName string) (Decision, error) {
	today := database.Today(l.now())

	if l.strict {
		return l.checkStrict(ctx, userID, displayName, today)
	}

	user, err := l.getOrCreate(ctx, userID, displayName, today)
	if err != nil {
		return Decision{}, err
	}

	effective := ResetIfNewDay(*user, today)
	if effective.DailyCount >= l.limit {
		if user.LastReset != effective.LastReset {
			if err := l.store.UpdateLastReset(ctx, userID, effective.LastReset); err != nil {
				return Decision{}, fmt.Errorf("failed to correct reset date: %w", err)
			}
		}
		return Decision{Allowed: false, Remaining: 0}, nil
	}

	effective.DailyCount++
	if err := l.store.UpdateUsage(ctx, userID, effective.DailyCount, effective.LastReset, displayName); err != nil {
		return Decision{}, fmt.Errorf("failed to update usage: %w", err)
	}

	return Decision{Allowed: true, Remaining: l.limit - effective.DailyCount}, nil
}

func (l *Limiter) checkStrict(ctx context.Context, userID int64, displayName, today string) (Decision, error) {
	mu := &l.locks[uint64(userID)%lockStripes]
	mu.Lock()
	defer mu.Unlock()

	count, ok, err := l.store.IncrementIfBelow(ctx, userID, displayName, today, l.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to update usage: %w", err)
	}
	if !ok {
		return Decision{Allowed: false, Remaining: 0}, nil
	}
	return Decision{Allowed: true, Remaining: max(l.limit-count, 0)}, nil
}

func (l *Limiter) getOrCreate(ctx context.Context, userID int64, displayName, today string) (*database.User, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user != nil {
		return user, nil
	}

	user, err = l.store.CreateUser(ctx, userID, displayName, today)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetLanguage never fails: a missing user or a store error yields English.
func (l *Limiter) GetLanguage(ctx context.Context, userID int64) string {
	key := strconv.FormatInt(userID, 10)
	if lang, ok := l.languages.Get(key); ok {
		return lang
	}

	v, err, _ := l.lookups.Do(key, func() (interface{}, error) {
		user, err := l.store.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		lang := consts.DefaultLanguage
		if user != nil {
			lang = consts.NormalizeLanguage(user.Language)
		}
		l.languages.Set(key, lang)
		return lang, nil
	})
	if err != nil {
		logger.Warn("Failed to load language preference, using default", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return consts.DefaultLanguage
	}
	return v.(string)
}

// SetLanguage stores the preference; anything other than "si" is stored as "en".
func (l *Limiter) SetLanguage(ctx context.Context, userID int64, language string) error {
	lang := consts.NormalizeLanguage(language)
	if err := l.store.UpsertLanguage(ctx, userID, lang, database.Today(l.now())); err != nil {
		l.languages.Delete(strconv.FormatInt(userID, 10))
		return fmt.Errorf("failed to set language: %w", err)
	}
	l.languages.Set(strconv.FormatInt(userID, 10), lang)
	return nil
}
