package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alsolver/alsolver/internal/answer"
	"github.com/alsolver/alsolver/internal/cache"
	"github.com/alsolver/alsolver/internal/consts"
	"github.com/alsolver/alsolver/internal/database"
	"github.com/alsolver/alsolver/internal/limiter"
	"github.com/alsolver/alsolver/internal/logger"
	"github.com/alsolver/alsolver/internal/metrics"
	"github.com/alsolver/alsolver/internal/solver"
)

// Outcome is the terminal state reached for one update.
type Outcome string

const (
	OutcomeIgnored           Outcome = "ignored"
	OutcomeWelcome           Outcome = "welcome"
	OutcomeLanguagePrompt    Outcome = "language_prompt"
	OutcomeLanguageSet       Outcome = "language_set"
	OutcomeLanguageError     Outcome = "language_error"
	OutcomeCallbackDuplicate Outcome = "callback_duplicate"
	OutcomeCallbackIgnored   Outcome = "callback_ignored"
	OutcomeFallback          Outcome = "fallback"

	OutcomeAnswered      Outcome = metrics.OutcomeAnswered
	OutcomeQuotaExceeded Outcome = metrics.OutcomeQuotaExceeded
	OutcomeQuotaError    Outcome = metrics.OutcomeQuotaError
	OutcomeNoPhoto       Outcome = metrics.OutcomeNoPhoto
	OutcomeDownloadError Outcome = metrics.OutcomeDownloadError
	OutcomeOCRError      Outcome = metrics.OutcomeOCRError
	OutcomeNoText        Outcome = metrics.OutcomeNoText
	OutcomeModelError    Outcome = metrics.OutcomeModelError
)

const (
	sourceText  = "text"
	sourcePhoto = "photo"

	callbackDedupTTL = 10 * time.Minute
)

// Quota is the per-user limiter and language preference store.
type Quota interface {
	CheckAndIncrement(ctx context.Context, userID int64, displayName string) (limiter.Decision, error)
	GetLanguage(ctx context.Context, userID int64) string
	SetLanguage(ctx context.Context, userID int64, language string) error
}

// AuditLog records answered questions.
type AuditLog interface {
	InsertRequestLog(ctx context.Context, entry *database.RequestLog) error
}

// TextSolver answers typed questions.
type TextSolver interface {
	Solve(ctx context.Context, question, language string) (string, error)
}

// Options wires a Bot to its collaborators. Audit and Metrics may be nil.
type Options struct {
	Platform Platform
	Quota    Quota
	Audit    AuditLog
	Text     TextSolver
	Image    solver.ImageSolver
	Metrics  *metrics.Collector
	Limits   RateLimits

	// LimitTextQuestions applies the daily quota to typed questions too.
	LimitTextQuestions bool
}

// Bot turns webhook updates into replies. It is safe for concurrent use.
type Bot struct {
	platform   Platform
	dispatcher *Dispatcher
	quota      Quota
	audit      AuditLog
	text       TextSolver
	image      solver.ImageSolver
	metrics    *metrics.Collector

	limitText bool
	callbacks *cache.Cache[struct{}]
}

// NewBot validates opts and starts the outbound dispatcher.
func NewBot(opts Options) (*Bot, error) {
	switch {
	case opts.Platform == nil:
		return nil, errors.New("telegram platform is required")
	case opts.Quota == nil:
		return nil, errors.New("quota limiter is required")
	case opts.Text == nil:
		return nil, errors.New("text solver is required")
	case opts.Image == nil:
		return nil, errors.New("image solver is required")
	}

	limits := opts.Limits
	if limits.Global == 0 {
		limits = DefaultRateLimits()
	}

	return &Bot{
		platform:   opts.Platform,
		dispatcher: NewDispatcher(opts.Platform, limits, opts.Metrics),
		quota:      opts.Quota,
		audit:      opts.Audit,
		text:       opts.Text,
		image:      opts.Image,
		metrics:    opts.Metrics,
		limitText:  opts.LimitTextQuestions,
		callbacks:  cache.NewWithConfig[struct{}](10000, callbackDedupTTL, time.Minute),
	}, nil
}

// Close stops the dispatcher and the callback dedup cache.
func (b *Bot) Close() {
	b.dispatcher.Close()
	b.callbacks.Close()
}

// HandleUpdate runs one update to completion. Every failure is turned into a
// message to the user; nothing is returned to the webhook caller.
func (b *Bot) HandleUpdate(ctx context.Context, update *tgbotapi.Update) Outcome {
	if update == nil {
		return OutcomeIgnored
	}

	switch {
	case update.CallbackQuery != nil:
		b.metrics.RecordUpdate("callback")
		return b.handleCallback(ctx, update.CallbackQuery)

	case update.Message != nil && update.Message.Chat != nil:
		msg := update.Message
		name, isCommand := command(msg)
		switch {
		case isCommand:
			b.metrics.RecordUpdate("command")
			return b.handleCommand(ctx, msg, name)
		case len(msg.Photo) > 0:
			b.metrics.RecordUpdate("photo")
			return b.handlePhoto(ctx, msg)
		case strings.TrimSpace(msg.Text) != "":
			b.metrics.RecordUpdate("text")
			return b.handleText(ctx, msg)
		default:
			b.metrics.RecordUpdate("other")
			userID, _ := sender(msg)
			b.send(ctx, msg.Chat.ID, userID, FallbackMessage, nil)
			return OutcomeFallback
		}
	}

	b.metrics.RecordUpdate("unsupported")
	logger.Debug("Ignoring unsupported update", map[string]interface{}{
		"update_id": update.UpdateID,
	})
	return OutcomeIgnored
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, name string) Outcome {
	chatID := msg.Chat.ID
	userID, _ := sender(msg)
	logger.Info("Received command", map[string]interface{}{
		"command": name,
		"chat_id": chatID,
		"user_id": userID,
	})

	switch name {
	case "start", "help":
		b.send(ctx, chatID, userID, WelcomeMessage, languageKeyboard())
		return OutcomeWelcome
	case "language":
		b.send(ctx, chatID, userID, LanguagePromptMessage, languageKeyboard())
		return OutcomeLanguagePrompt
	default:
		b.send(ctx, chatID, userID, FallbackMessage, nil)
		return OutcomeFallback
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) Outcome {
	chatID, userID := callbackUser(cb)
	defer b.answerCallback(ctx, cb.ID, chatID, userID)

	if cb.ID != "" && !b.callbacks.SetIfAbsent(cb.ID, struct{}{}) {
		logger.Debug("Callback already processed", map[string]interface{}{
			"callback_id": cb.ID,
		})
		return OutcomeCallbackDuplicate
	}

	var lang string
	switch cb.Data {
	case consts.CallbackLanguageEnglish:
		lang = consts.LanguageEnglish
	case consts.CallbackLanguageSinhala:
		lang = consts.LanguageSinhala
	default:
		logger.Debug("Unknown callback data", map[string]interface{}{
			"data": cb.Data,
		})
		return OutcomeCallbackIgnored
	}

	if userID == 0 {
		return OutcomeCallbackIgnored
	}

	if err := b.quota.SetLanguage(ctx, userID, lang); err != nil {
		logger.Error("Failed to save language preference", failure("language", chatID, userID, err))
		b.send(ctx, chatID, userID, LanguageSaveFailedMessage, nil)
		return OutcomeLanguageError
	}

	logger.Info("Language preference updated", map[string]interface{}{
		"user_id":  userID,
		"language": lang,
	})
	b.send(ctx, chatID, userID, languageConfirmation(lang), nil)
	return OutcomeLanguageSet
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) Outcome {
	chatID := msg.Chat.ID
	userID, name := sender(msg)

	if b.limitText {
		if outcome, ok := b.checkQuota(ctx, chatID, userID, name); !ok {
			return b.finish(sourceText, chatID, userID, outcome)
		}
	}

	lang := b.quota.GetLanguage(ctx, userID)
	b.send(ctx, chatID, userID, ProcessingTextMessage, nil)

	text, err := b.text.Solve(ctx, msg.Text, lang)
	if err != nil {
		logger.Error("Failed to answer text question", failure("llm", chatID, userID, err))
		b.send(ctx, chatID, userID, ModelFailedMessage, nil)
		return b.finish(sourceText, chatID, userID, OutcomeModelError)
	}

	b.deliver(ctx, chatID, userID, sourceText, text)
	return b.finish(sourceText, chatID, userID, OutcomeAnswered)
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) Outcome {
	chatID := msg.Chat.ID
	userID, name := sender(msg)

	photo, ok := pickLargestPhoto(msg.Photo)
	if !ok {
		b.send(ctx, chatID, userID, NoPhotoMessage, nil)
		return b.finish(sourcePhoto, chatID, userID, OutcomeNoPhoto)
	}

	if outcome, ok := b.checkQuota(ctx, chatID, userID, name); !ok {
		return b.finish(sourcePhoto, chatID, userID, outcome)
	}

	lang := b.quota.GetLanguage(ctx, userID)
	b.send(ctx, chatID, userID, ProcessingPhotoMessage, nil)

	data, mime, err := b.download(ctx, photo.FileID)
	if err != nil {
		logger.Error("Failed to download photo", failure("download", chatID, userID, err))
		b.send(ctx, chatID, userID, DownloadFailedMessage, nil)
		return b.finish(sourcePhoto, chatID, userID, OutcomeDownloadError)
	}

	text, err := b.image.SolveFromImage(ctx, data, mime, lang)
	if err != nil {
		reply, outcome, stage := imageFailure(err)
		fields := failure(stage, chatID, userID, err)
		fields["outcome"] = string(outcome)
		logger.Error("Failed to answer photo question", fields)
		b.send(ctx, chatID, userID, reply, nil)
		return b.finish(sourcePhoto, chatID, userID, outcome)
	}

	b.deliver(ctx, chatID, userID, sourcePhoto, text)
	return b.finish(sourcePhoto, chatID, userID, OutcomeAnswered)
}

// imageFailure maps a solver error to the user message and the stage that
// failed.
func imageFailure(err error) (string, Outcome, string) {
	switch {
	case errors.Is(err, solver.ErrNoText):
		return NoTextMessage, OutcomeNoText, "ocr"
	case errors.Is(err, solver.ErrOCRFailed):
		return OCRFailedMessage, OutcomeOCRError, "ocr"
	case errors.Is(err, solver.ErrVisionFailed):
		return VisionFailedMessage, OutcomeModelError, "vision"
	default:
		return ModelFailedMessage, OutcomeModelError, "llm"
	}
}

func (b *Bot) checkQuota(ctx context.Context, chatID, userID int64, name string) (Outcome, bool) {
	decision, err := b.quota.CheckAndIncrement(ctx, userID, name)
	if err != nil {
		logger.Error("Failed to check usage quota", failure("quota", chatID, userID, err))
		b.send(ctx, chatID, userID, QuotaErrorMessage, nil)
		return OutcomeQuotaError, false
	}

	if !decision.Allowed {
		logger.Info("Daily quota exceeded", map[string]interface{}{
			"user_id": userID,
		})
		b.send(ctx, chatID, userID, QuotaExceededMessage, nil)
		return OutcomeQuotaExceeded, false
	}

	logger.Debug("Quota check passed", map[string]interface{}{
		"user_id":   userID,
		"remaining": decision.Remaining,
	})
	return "", true
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, string, error) {
	start := time.Now()
	data, mime, err := b.fetch(ctx, fileID)
	b.metrics.ObserveStage("download", err, time.Since(start))
	return data, mime, err
}

func (b *Bot) fetch(ctx context.Context, fileID string) ([]byte, string, error) {
	path, err := b.platform.GetFilePath(ctx, fileID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", solver.ErrDownload, err)
	}

	data, contentType, err := b.platform.DownloadFile(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", solver.ErrDownload, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty file", solver.ErrDownload)
	}

	return data, DetectMIME(data, contentType), nil
}

// deliver logs the request and sends the full answer. The audit write never
// affects what the user receives, and answers missing a heading are sent
// as-is.
func (b *Bot) deliver(ctx context.Context, chatID, userID int64, source, text string) {
	parsed := answer.Parse(text)
	if !parsed.Complete() {
		b.metrics.RecordIncompleteAnswer(source)
		logger.Warn("Answer is missing sections", map[string]interface{}{
			"stage":        "parse",
			"chat_id":      chatID,
			"user_id":      userID,
			"source":       source,
			"has_subject":  parsed.Subject != "",
			"has_question": parsed.Question != "",
			"has_solution": parsed.Solution != "",
			"has_final":    parsed.FinalAnswer != "",
		})
	}

	b.recordRequest(ctx, chatID, userID, source, parsed.SubjectPtr())

	if err := b.dispatcher.SendLongMessage(ctx, chatID, text, nil); err != nil {
		logger.Error("Failed to send answer", failure("send", chatID, userID, err))
	}
}

func (b *Bot) recordRequest(ctx context.Context, chatID, userID int64, source string, subject *string) {
	if b.audit == nil {
		return
	}

	entry := &database.RequestLog{
		TelegramID: userID,
		Subject:    subject,
		Source:     source,
	}
	if err := b.audit.InsertRequestLog(ctx, entry); err != nil {
		b.metrics.RecordAuditFailure()
		logger.Warn("Failed to write request log", failure("audit", chatID, userID, err))
	}
}

func (b *Bot) finish(source string, chatID, userID int64, outcome Outcome) Outcome {
	b.metrics.RecordQuestion(source, string(outcome))
	logger.Info("Question handled", map[string]interface{}{
		"source":  source,
		"chat_id": chatID,
		"user_id": userID,
		"outcome": string(outcome),
	})
	return outcome
}

func (b *Bot) send(ctx context.Context, chatID, userID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if err := b.dispatcher.SendMessage(ctx, chatID, text, markup); err != nil {
		logger.Error("Failed to send message", failure("send", chatID, userID, err))
	}
}

func (b *Bot) answerCallback(ctx context.Context, id string, chatID, userID int64) {
	if id == "" {
		return
	}
	if err := b.platform.AnswerCallback(ctx, id); err != nil {
		fields := failure("callback", chatID, userID, err)
		fields["callback_id"] = id
		logger.Warn("Failed to answer callback query", fields)
	}
}

// failure is the field set logged for every error that is reported to the
// user instead of returned.
func failure(stage string, chatID, userID int64, err error) map[string]interface{} {
	return map[string]interface{}{
		"stage":   stage,
		"chat_id": chatID,
		"user_id": userID,
		"error":   err.Error(),
	}
}

// callbackUser returns the chat to reply in and the user who pressed the
// button. Either stands in for the other when missing.
func callbackUser(cb *tgbotapi.CallbackQuery) (chatID, userID int64) {
	if cb.From != nil {
		userID = cb.From.ID
	}
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}
	if userID == 0 {
		userID = chatID
	}
	if chatID == 0 {
		chatID = userID
	}
	return chatID, userID
}

// command returns the command name without the slash or @botname. Updates
// posted without entities still count as commands when the text starts
// with a slash.
func command(msg *tgbotapi.Message) (string, bool) {
	if msg.IsCommand() {
		return strings.ToLower(msg.Command()), true
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}

	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", true
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(name), true
}

// sender returns the user id and a display name. Channel posts have no
// sender, so the chat stands in for the user.
func sender(msg *tgbotapi.Message) (int64, string) {
	if msg.From == nil {
		return msg.Chat.ID, ""
	}
	name := msg.From.UserName
	if name == "" {
		name = msg.From.FirstName
	}
	return msg.From.ID, name
}
