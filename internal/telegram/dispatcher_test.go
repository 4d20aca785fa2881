package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/alsolver/alsolver/internal/metrics"
)

type sentMessage struct {
	chatID int64
	text   string
	markup *tgbotapi.InlineKeyboardMarkup
}

// fakePlatform records outbound calls and serves files from memory.
type fakePlatform struct {
	mu sync.Mutex

	sent      []sentMessage
	callbacks []string
	fileCalls int

	files       map[string][]byte
	contentType string
	getFileErr  error
	downloadErr error
	failSendAt  int // 1-based, 0 never fails
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{files: map[string][]byte{}}
}

func (f *fakePlatform) SendMessage(_ context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSendAt > 0 && len(f.sent)+1 == f.failSendAt {
		f.failSendAt = 0
		return errors.New("telegram: too many requests")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, markup: markup})
	return nil
}

func (f *fakePlatform) GetFilePath(_ context.Context, fileID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileCalls++
	if f.getFileErr != nil {
		return "", f.getFileErr
	}
	return "photos/" + fileID + ".jpg", nil
}

func (f *fakePlatform) DownloadFile(_ context.Context, path string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, "", f.downloadErr
	}
	id := strings.TrimSuffix(strings.TrimPrefix(path, "photos/"), ".jpg")
	return f.files[id], f.contentType, nil
}

func (f *fakePlatform) AnswerCallback(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, id)
	return nil
}

func (f *fakePlatform) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.text
	}
	return out
}

func unlimited() RateLimits {
	return RateLimits{Global: rate.Inf, GlobalBurst: 1, PerChat: rate.Inf, ChatBurst: 1}
}

func TestSplitMessage(t *testing.T) {
	text := strings.Repeat("a", 9000)

	chunks := SplitMessage(text, 4096)
	require.Len(t, chunks, 3)
	assert.Equal(t, 4096, len(chunks[0]))
	assert.Equal(t, 4096, len(chunks[1]))
	assert.Equal(t, 808, len(chunks[2]))
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitMessage_EdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"empty", "", 10, []string{""}},
		{"shorter than limit", "abc", 10, []string{"abc"}},
		{"exactly limit", "abcd", 4, []string{"abcd"}},
		{"one over", "abcde", 4, []string{"abcd", "e"}},
		{"no limit", "abcdef", 0, []string{"abcdef"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitMessage(tt.text, tt.limit))
		})
	}
}

func TestSplitMessage_NeverSplitsRunes(t *testing.T) {
	// Sinhala letters are one UTF-16 unit, the emoji is a surrogate pair.
	text := strings.Repeat("සිංහල😀", 700)

	chunks := SplitMessage(text, 100)
	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.LessOrEqual(t, len(utf16.Encode([]rune(c))), 100)
		assert.True(t, strings.ToValidUTF8(c, "") == c, "chunk must be valid UTF-8")
	}
}

func TestDispatcher_SendLongMessageInOrder(t *testing.T) {
	p := newFakePlatform()
	d := NewDispatcher(p, unlimited(), nil)
	defer d.Close()

	text := strings.Repeat("x", 4096) + strings.Repeat("y", 4096) + strings.Repeat("z", 808)
	require.NoError(t, d.SendLongMessage(context.Background(), 42, text, languageKeyboard()))

	require.Len(t, p.sent, 3)
	assert.Equal(t, strings.Repeat("x", 4096), p.sent[0].text)
	assert.Equal(t, strings.Repeat("y", 4096), p.sent[1].text)
	assert.Equal(t, strings.Repeat("z", 808), p.sent[2].text)
	assert.Nil(t, p.sent[0].markup)
	assert.NotNil(t, p.sent[2].markup, "reply controls go on the last chunk")
	for _, m := range p.sent {
		assert.Equal(t, int64(42), m.chatID)
	}
}

func TestDispatcher_StopsAtFailedChunk(t *testing.T) {
	p := newFakePlatform()
	p.failSendAt = 2
	collector := metrics.NewCollector()
	d := NewDispatcher(p, unlimited(), collector)
	defer d.Close()

	err := d.SendLongMessage(context.Background(), 1, strings.Repeat("a", 9000), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 2/3")
	assert.Len(t, p.sent, 1)
}

func TestDispatcher_ContextCancelledWhileThrottled(t *testing.T) {
	p := newFakePlatform()
	d := NewDispatcher(p, RateLimits{Global: rate.Inf, GlobalBurst: 1, PerChat: rate.Limit(0.001), ChatBurst: 1}, nil)
	defer d.Close()

	require.NoError(t, d.SendMessage(context.Background(), 5, "first", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.SendMessage(ctx, 5, "second", nil)
	assert.Error(t, err)
	assert.Len(t, p.sent, 1)
}

func TestDispatcher_ChatLimiterReused(t *testing.T) {
	d := NewDispatcher(newFakePlatform(), DefaultRateLimits(), nil)
	defer d.Close()

	assert.Same(t, d.chatLimiter(7), d.chatLimiter(7))
	assert.NotSame(t, d.chatLimiter(7), d.chatLimiter(8))
}
