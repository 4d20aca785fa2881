package consts

// Languages a user can pick for explanations
const (
	LanguageEnglish = "en"
	LanguageSinhala = "si"

	DefaultLanguage = LanguageEnglish
)

// Callback data carried by the language selection keyboard
const (
	CallbackLanguageEnglish = "lang_en"
	CallbackLanguageSinhala = "lang_si"
)

// Button Labels
const (
	ButtonEnglish = "English"
	ButtonSinhala = "සිංහල"
)

// Subjects reported by the model in the SUBJECT: section
const (
	SubjectPhysics   = "Physics"
	SubjectChemistry = "Chemistry"
	SubjectBiology   = "Biology"
	SubjectMaths     = "Maths"
)

// Section markers the model must emit, in this order
const (
	MarkerSubject     = "SUBJECT:"
	MarkerQuestion    = "QUESTION:"
	MarkerSolution    = "SOLUTION:"
	MarkerFinalAnswer = "FINAL ANSWER:"
)

// Limits
const (
	// TelegramMessageLimit is the maximum number of characters in one sendMessage call
	TelegramMessageLimit = 4096

	DefaultDailyFreeLimit = 5
)

// Photo strategies
const (
	PhotoStrategyOCR    = "ocr"
	PhotoStrategyVision = "vision"
)

// LLM providers
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// NormalizeLanguage maps anything other than "si" to English.
func NormalizeLanguage(lang string) string {
	if lang == LanguageSinhala {
		return LanguageSinhala
	}
	return LanguageEnglish
}
