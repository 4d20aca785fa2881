package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/alsolver/alsolver/internal/cache"
	"github.com/alsolver/alsolver/internal/consts"
	"github.com/alsolver/alsolver/internal/logger"
	"github.com/alsolver/alsolver/internal/metrics"
)

// RateLimits throttles outbound sends. Telegram allows about 30 msg/s per bot
// and 1 msg/s per chat over a sustained period.
type RateLimits struct {
	Global      rate.Limit
	GlobalBurst int
	PerChat     rate.Limit
	ChatBurst   int
}

func DefaultRateLimits() RateLimits {
	return RateLimits{
		Global:      30,
		GlobalBurst: 30,
		PerChat:     1,
		ChatBurst:   5,
	}
}

// Dispatcher sends messages through a Platform with rate limiting.
type Dispatcher struct {
	platform Platform
	metrics  *metrics.Collector

	globalLimiter *rate.Limiter
	chatLimits    RateLimits
	chatLimiters  *cache.Cache[*rate.Limiter]
	limit         int
}

func NewDispatcher(platform Platform, limits RateLimits, collector *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		platform:      platform,
		metrics:       collector,
		globalLimiter: rate.NewLimiter(limits.Global, limits.GlobalBurst),
		chatLimits:    limits,
		// idle chats drop their limiter after ten minutes
		chatLimiters: cache.NewWithConfig[*rate.Limiter](10000, 10*time.Minute, 5*time.Minute),
		limit:        consts.TelegramMessageLimit,
	}
}

func (d *Dispatcher) Close() {
	d.chatLimiters.Close()
}

func (d *Dispatcher) chatLimiter(chatID int64) *rate.Limiter {
	key := strconv.FormatInt(chatID, 10)
	if l, ok := d.chatLimiters.Get(key); ok {
		return l
	}

	l := rate.NewLimiter(d.chatLimits.PerChat, d.chatLimits.ChatBurst)
	if !d.chatLimiters.SetIfAbsent(key, l) {
		if existing, ok := d.chatLimiters.Get(key); ok {
			return existing
		}
	}
	return l
}

// SendMessage sends one message of at most 4096 characters.
func (d *Dispatcher) SendMessage(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	if err := d.globalLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limiter error: %w", err)
	}
	if err := d.chatLimiter(chatID).Wait(ctx); err != nil {
		return fmt.Errorf("chat rate limiter error: %w", err)
	}

	logger.Debug("Sending rate-limited message", map[string]interface{}{
		"chat_id": chatID,
	})

	err := d.platform.SendMessage(ctx, chatID, text, markup)
	d.metrics.RecordMessageSent(err)
	return err
}

// SendLongMessage sends text in consecutive chunks, waiting for each send
// before the next. Reply controls go on the last chunk. It stops at the first
// failed chunk so the user never sees a gap.
func (d *Dispatcher) SendLongMessage(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	chunks := SplitMessage(text, d.limit)
	for i, chunk := range chunks {
		var m *tgbotapi.InlineKeyboardMarkup
		if i == len(chunks)-1 {
			m = markup
		}
		if err := d.SendMessage(ctx, chatID, chunk, m); err != nil {
			return fmt.Errorf("failed to send chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// SplitMessage cuts text into pieces of at most limit characters, counted in
// UTF-16 code units as Telegram counts them. A surrogate pair is never split.
// Concatenating the pieces gives back text. Empty text yields one empty piece.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		return []string{text}
	}

	var chunks []string
	start, units := 0, 0
	for i, r := range text {
		w := utf16.RuneLen(r)
		if w < 0 {
			// invalid UTF-8 decodes as U+FFFD, one unit
			w = 1
		}
		if units+w > limit {
			chunks = append(chunks, text[start:i])
			start, units = i, 0
		}
		units += w
	}
	chunks = append(chunks, text[start:])

	return chunks
}
