package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alsolver/alsolver/internal/consts"
)

// User-facing messages. Every failure kind has its own text.
const (
	WelcomeMessage = "👋 Welcome to A/L AI Question Solver Bot!\n\n" +
		"📸 Send a clear photo of your A/L question, or type it as text.\n" +
		"📚 Subjects: Physics | Chemistry | Biology | Maths\n" +
		"🌐 Language: English / Sinhala\n\n" +
		"Tap below to select your language:"

	LanguagePromptMessage = "🌐 Choose the language for explanations:"

	LanguageSetEnglishMessage = "✅ Language set to: English"
	LanguageSetSinhalaMessage = "✅ ඔබගේ භාෂා තේරීම: සිංහල"
	LanguageSaveFailedMessage = "Could not save your language choice. Please try again."

	ProcessingPhotoMessage = "📚 Analyzing your question. Please wait a few seconds..."
	ProcessingTextMessage  = "🤔 Processing your question..."

	QuotaErrorMessage    = "Internal error while checking your usage. Please try again later."
	QuotaExceededMessage = "You have reached your daily free limit of questions. Please try again tomorrow."

	NoPhotoMessage        = "Could not find a valid photo in your message. Please try again with a clear image."
	DownloadFailedMessage = "Failed to download your image from Telegram. Please try again with a clearer photo."
	OCRFailedMessage      = "Failed to read text from your image (OCR error). Please try again with a clearer photo."
	NoTextMessage         = "I could not read any text from your image. Please send a clearer, higher-resolution photo."
	ModelFailedMessage    = "AI service failed while analyzing your question. Please try again in a moment."
	VisionFailedMessage   = "❌ The AI failed to analyze the image. Please try again with a clearer photo."

	FallbackMessage = "Please send a text or a clear photo of your A/L question (Physics / Chemistry / Biology / Maths)."
)

func languageKeyboard() *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(consts.ButtonEnglish, consts.CallbackLanguageEnglish),
			tgbotapi.NewInlineKeyboardButtonData(consts.ButtonSinhala, consts.CallbackLanguageSinhala),
		),
	)
	return &markup
}

func languageConfirmation(lang string) string {
	if lang == consts.LanguageSinhala {
		return LanguageSetSinhalaMessage
	}
	return LanguageSetEnglishMessage
}
