// Package ocr extracts question text from images with the OCR.Space API.
package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alsolver/alsolver/internal/logger"
)

const DefaultEndpoint = "https://api.ocr.space/parse/image"

// ErrOCR covers transport failures, non-2xx statuses and in-band provider errors.
// A successful extraction that found no text is not an error.
var ErrOCR = errors.New("OCR failed")

type Extractor interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

type Config struct {
	APIKey     string
	Endpoint   string
	Language   string
	HTTPClient *http.Client
}

type Client struct {
	apiKey   string
	endpoint string
	language string
	http     *http.Client
}

type parseResponse struct {
	ParsedResults []struct {
		ParsedText        string `json:"ParsedText"`
		FileParseExitCode int    `json:"FileParseExitCode"`
		ErrorMessage      string `json:"ErrorMessage"`
	} `json:"ParsedResults"`
	OCRExitCode           int             `json:"OCRExitCode"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
	ErrorDetails          string          `json:"ErrorDetails"`
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OCR_SPACE_API_KEY is not configured")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &Client{
		apiKey:   cfg.APIKey,
		endpoint: cfg.Endpoint,
		language: cfg.Language,
		http:     cfg.HTTPClient,
	}, nil
}

// ExtractText returns the trimmed text of the first parsed result, which may be empty.
func (c *Client) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	form := url.Values{}
	form.Set("apikey", c.apiKey)
	form.Set("base64Image", "data:"+mimeType+";base64,"+base64.StdEncoding.EncodeToString(image))
	form.Set("scale", "true")
	form.Set("isTable", "false")
	form.Set("OCREngine", "2")
	form.Set("language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrOCR, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %v", ErrOCR, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrOCR, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: HTTP status %d", ErrOCR, resp.StatusCode)
	}

	var parsed parseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrOCR, err)
	}

	if parsed.IsErroredOnProcessing {
		return "", fmt.Errorf("%w: %s", ErrOCR, parsed.errorText())
	}

	text := ""
	if len(parsed.ParsedResults) > 0 {
		text = strings.TrimSpace(parsed.ParsedResults[0].ParsedText)
	}

	logger.Debug("OCR completed", map[string]interface{}{
		"exit_code":  parsed.OCRExitCode,
		"text_chars": len(text),
	})

	return text, nil
}

// errorText flattens ErrorMessage, which OCR.Space sends as a string or a list of strings.
func (r *parseResponse) errorText() string {
	if len(r.ErrorMessage) > 0 {
		var list []string
		if err := json.Unmarshal(r.ErrorMessage, &list); err == nil && len(list) > 0 {
			return strings.Join(list, "; ")
		}
		var s string
		if err := json.Unmarshal(r.ErrorMessage, &s); err == nil && s != "" {
			return s
		}
	}
	if r.ErrorDetails != "" {
		return r.ErrorDetails
	}
	return "unknown error"
}
