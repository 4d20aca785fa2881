package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type geminiRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
}

func newGeminiServer(t *testing.T, status int, body string, got *geminiRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-1.5-flash:generateContent"), r.URL.Path)
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGeminiClient(t *testing.T, baseURL string) *GeminiClient {
	t.Helper()
	c, err := NewGeminiClient(context.Background(), GeminiConfig{
		APIKey:     "test-key",
		Model:      "gemini-1.5-flash",
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	require.NoError(t, err)
	return c
}

func TestNewGeminiClient(t *testing.T) {
	tests := []struct {
		name        string
		config      GeminiConfig
		expectError bool
	}{
		{"empty API key", GeminiConfig{Model: "gemini-1.5-flash"}, true},
		{"valid config", GeminiConfig{APIKey: "k", Model: "gemini-1.5-flash"}, false},
		{"default model", GeminiConfig{APIKey: "k"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewGeminiClient(context.Background(), tt.config)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, client.model)
		})
	}
}

func TestGeminiClient_GenerateText(t *testing.T) {
	var got geminiRequest
	srv := newGeminiServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"SUBJECT: Biology\n"},{"text":"QUESTION: x"}]}}]}`,
		&got)

	out, err := newTestGeminiClient(t, srv.URL).Generate(context.Background(), Request{Prompt: "explain"})
	require.NoError(t, err)

	assert.Equal(t, "SUBJECT: Biology\nQUESTION: x", out)
	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 1)
	assert.Equal(t, "explain", got.Contents[0].Parts[0].Text)
}

func TestGeminiClient_GenerateWithImage(t *testing.T) {
	var got geminiRequest
	srv := newGeminiServer(t, http.StatusOK,
		`{"candidates":[{"content":{"parts":[{"text":"answer"}]}}]}`, &got)

	out, err := newTestGeminiClient(t, srv.URL).Generate(context.Background(), Request{
		Prompt: "analyze",
		Image:  []byte("fake-jpeg"),
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", out)

	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 2)
	require.NotNil(t, got.Contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/jpeg", got.Contents[0].Parts[1].InlineData.MIMEType)
}

func TestGeminiClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
		{"blank text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newGeminiServer(t, tt.status, tt.body, nil)

			out, err := newTestGeminiClient(t, srv.URL).Generate(context.Background(), Request{Prompt: "p"})
			assert.ErrorIs(t, err, ErrModelCall)
			assert.Empty(t, out)
		})
	}
}

func TestExtractText(t *testing.T) {
	assert.Empty(t, extractText(nil))
	assert.Empty(t, extractText(&genai.GenerateContentResponse{}))
	assert.Empty(t, extractText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "Hello "},
				{Text: "world"},
			}},
		}},
	}
	assert.Equal(t, "Hello world", extractText(resp))
}
