package telegram

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultImageMIME = "image/jpeg"

// DetectMIME prefers the server's Content-Type when it names an image, then
// sniffs the bytes, then falls back to JPEG which is what Telegram stores
// photos as.
func DetectMIME(data []byte, contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if strings.HasPrefix(ct, "image/") {
		return ct
	}

	if len(data) > 0 {
		if m := mimetype.Detect(data); strings.HasPrefix(m.String(), "image/") {
			return m.String()
		}
	}

	return defaultImageMIME
}

// pickLargestPhoto returns the highest-resolution variant with a file id.
// Ties go to the larger reported file size, then to the later entry.
func pickLargestPhoto(photos []tgbotapi.PhotoSize) (tgbotapi.PhotoSize, bool) {
	var best tgbotapi.PhotoSize
	found := false

	for _, p := range photos {
		if p.FileID == "" {
			continue
		}
		if !found {
			best, found = p, true
			continue
		}

		area, bestArea := p.Width*p.Height, best.Width*best.Height
		if area > bestArea || (area == bestArea && p.FileSize >= best.FileSize) {
			best = p
		}
	}

	return best, found
}
