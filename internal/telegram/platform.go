package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alsolver/alsolver/internal/logger"
)

// maxDownloadSize is the Bot API's getFile limit.
const maxDownloadSize = 20 << 20

// Platform is the slice of the Telegram Bot API the bot uses.
type Platform interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error
	GetFilePath(ctx context.Context, fileID string) (string, error)
	// DownloadFile returns the file bytes and the Content-Type the file server reported.
	DownloadFile(ctx context.Context, filePath string) ([]byte, string, error)
	AnswerCallback(ctx context.Context, callbackID string) error
}

// APIPlatform implements Platform with go-telegram-bot-api.
type APIPlatform struct {
	api          *tgbotapi.BotAPI
	http         *http.Client
	fileEndpoint string
}

func NewAPIPlatform(token string, timeout time.Duration) (*APIPlatform, error) {
	return NewAPIPlatformWithEndpoints(token, tgbotapi.APIEndpoint, tgbotapi.FileEndpoint, timeout)
}

// NewAPIPlatformWithEndpoints takes Bot API and file endpoint formats in the
// tgbotapi style ("…/bot%s/%s").
func NewAPIPlatformWithEndpoints(token, apiEndpoint, fileEndpoint string, timeout time.Duration) (*APIPlatform, error) {
	client := &http.Client{Timeout: timeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	logger.Info("Telegram bot authorized", map[string]interface{}{
		"username": api.Self.UserName,
	})

	return &APIPlatform{api: api, http: client, fileEndpoint: fileEndpoint}, nil
}

func (p *APIPlatform) Username() string {
	return p.api.Self.UserName
}

func (p *APIPlatform) SendMessage(_ context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	_, err := p.api.Send(msg)
	return err
}

func (p *APIPlatform) GetFilePath(_ context.Context, fileID string) (string, error) {
	file, err := p.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("telegram returned no file path for %s", fileID)
	}
	return file.FilePath, nil
}

func (p *APIPlatform) DownloadFile(ctx context.Context, filePath string) ([]byte, string, error) {
	fileURL := fmt.Sprintf(p.fileEndpoint, p.api.Token, filePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		// the URL carries the bot token
		return nil, "", fmt.Errorf("failed to download file %s", filePath)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download file: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file data: %w", err)
	}
	if len(data) > maxDownloadSize {
		return nil, "", fmt.Errorf("file %s exceeds %d bytes", filePath, maxDownloadSize)
	}

	logger.Debug("File downloaded", map[string]interface{}{
		"file_path": filePath,
		"size":      len(data),
	})

	return data, resp.Header.Get("Content-Type"), nil
}

func (p *APIPlatform) AnswerCallback(_ context.Context, callbackID string) error {
	_, err := p.api.Request(tgbotapi.NewCallback(callbackID, ""))
	return err
}

// SetWebhook points Telegram at url. A non-empty secret is echoed back by
// Telegram in the X-Telegram-Bot-Api-Secret-Token header.
func (p *APIPlatform) SetWebhook(url, secret string) error {
	allowed, err := json.Marshal([]string{"message", "callback_query"})
	if err != nil {
		return err
	}

	params := tgbotapi.Params{
		"url":             url,
		"allowed_updates": string(allowed),
	}
	params.AddNonEmpty("secret_token", secret)

	resp, err := p.api.MakeRequest("setWebhook", params)
	if err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("failed to set webhook: %s", resp.Description)
	}

	logger.Info("Webhook registered", map[string]interface{}{
		"url": redactURL(url),
	})
	return nil
}

// redactURL drops the path, which may embed a secret.
func redactURL(raw string) string {
	if i := strings.Index(raw, "://"); i >= 0 {
		if j := strings.Index(raw[i+3:], "/"); j >= 0 {
			return raw[:i+3+j] + "/…"
		}
	}
	return raw
}
