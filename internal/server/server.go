package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alsolver/alsolver/internal/logger"
	"github.com/alsolver/alsolver/internal/telegram"
)

const (
	// SecretHeader carries the secret_token given to setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	maxBodySize          = 1 << 20
	defaultHandleTimeout = 90 * time.Second
)

// UpdateHandler processes one Telegram update. *telegram.Bot implements it.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *tgbotapi.Update) telegram.Outcome
}

type Options struct {
	Port string
	// WebhookPath is where Telegram posts updates, see WebhookPath.
	WebhookPath string
	Secret      string
	Metrics     http.Handler
	// HandleTimeout bounds the work done for one update.
	HandleTimeout time.Duration
}

type Server struct {
	server  *http.Server
	handler UpdateHandler
	secret  string
	timeout time.Duration
	path    string
}

// WebhookPath derives a hard-to-guess URL path from the bot token.
func WebhookPath(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "/webhook/" + hex.EncodeToString(sum[:16])
}

func NewServer(opts Options, handler UpdateHandler) *Server {
	timeout := opts.HandleTimeout
	if timeout <= 0 {
		timeout = defaultHandleTimeout
	}
	path := opts.WebhookPath
	if path == "" {
		path = "/webhook"
	}

	s := &Server{
		handler: handler,
		secret:  opts.Secret,
		timeout: timeout,
		path:    path,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleWebhook)
	mux.HandleFunc("/healthz", handleHealth)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("HTTP request received", map[string]interface{}{
			"path":   r.URL.Path,
			"method": r.Method,
		})
		if r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
			return
		}
		http.NotFound(w, r)
	})

	s.server = &http.Server{
		Addr:              ":" + opts.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// updates are answered after processing
		WriteTimeout: timeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Path is the URL path the webhook is served on.
func (s *Server) Path() string {
	return s.path
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks until the server stops. A clean Stop returns nil.
func (s *Server) Start() error {
	logger.Info("Starting HTTP server", map[string]interface{}{
		"addr":      s.server.Addr,
		"endpoints": []string{"/webhook/…", "/healthz", "/metrics"},
	})
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	logger.InfoMsg("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleWebhook answers 200 for everything except a bad secret (401) and a
// body that is not JSON (400), so Telegram does not redeliver failed updates.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeOK(w)
		return
	}

	if s.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(s.secret)) != 1 {
		logger.Warn("Rejected webhook with bad secret token", map[string]interface{}{
			"remote_addr": r.RemoteAddr,
		})
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		logger.Warn("Failed to read webhook body", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var update tgbotapi.Update
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &update); err != nil {
			logger.Warn("Invalid webhook payload", map[string]interface{}{
				"error": err.Error(),
			})
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.timeout)
	defer cancel()

	s.dispatch(ctx, &update)
	writeOK(w)
}

func (s *Server) dispatch(ctx context.Context, update *tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Panic while handling update", map[string]interface{}{
				"update_id": update.UpdateID,
				"panic":     fmt.Sprint(rec),
			})
		}
	}()

	start := time.Now()
	outcome := s.handler.HandleUpdate(ctx, update)
	logger.Debug("Update handled", map[string]interface{}{
		"update_id": update.UpdateID,
		"outcome":   string(outcome),
		"duration":  time.Since(start).String(),
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeOK(w)
}

func writeOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
