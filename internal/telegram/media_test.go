package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		contentType string
		want        string
	}{
		{"header wins", pngHeader, "image/webp", "image/webp"},
		{"header with params", nil, "Image/PNG; charset=binary", "image/png"},
		{"upper-case header beats sniffing", pngHeader, "IMAGE/WEBP", "image/webp"},
		{"upper-case non-image header is sniffed", pngHeader, "Application/Octet-Stream", "image/png"},
		{"sniffed when header is generic", pngHeader, "application/octet-stream", "image/png"},
		{"sniffed when header missing", pngHeader, "", "image/png"},
		{"fallback for unknown bytes", []byte("plain words"), "", "image/jpeg"},
		{"fallback for empty", nil, "", "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMIME(tt.data, tt.contentType))
		})
	}
}

func TestPickLargestPhoto(t *testing.T) {
	tests := []struct {
		name   string
		photos []tgbotapi.PhotoSize
		wantID string
		wantOK bool
	}{
		{
			name:   "empty",
			photos: nil,
		},
		{
			name:   "no file ids",
			photos: []tgbotapi.PhotoSize{{Width: 90, Height: 90}},
		},
		{
			name: "largest resolution",
			photos: []tgbotapi.PhotoSize{
				{FileID: "s", Width: 90, Height: 60, FileSize: 1000},
				{FileID: "l", Width: 1280, Height: 853, FileSize: 90000},
				{FileID: "m", Width: 320, Height: 213, FileSize: 12000},
			},
			wantID: "l",
			wantOK: true,
		},
		{
			name: "tie broken by file size",
			photos: []tgbotapi.PhotoSize{
				{FileID: "big", Width: 800, Height: 600, FileSize: 50000},
				{FileID: "small", Width: 800, Height: 600, FileSize: 40000},
			},
			wantID: "big",
			wantOK: true,
		},
		{
			name: "skips entries without id",
			photos: []tgbotapi.PhotoSize{
				{FileID: "ok", Width: 90, Height: 90},
				{Width: 2000, Height: 2000},
			},
			wantID: "ok",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickLargestPhoto(tt.photos)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, got.FileID)
		})
	}
}
