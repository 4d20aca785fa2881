// Package prompt builds the instruction text sent to the language model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/alsolver/alsolver/internal/consts"
)

const persona = "You are an experienced Sri Lankan A/L science teacher (Physics, Chemistry, Biology, Combined Maths)."

const tasks = `Tasks:
1. Identify the main subject (Physics / Chemistry / Biology / Maths).
2. Rewrite the question clearly and correctly.
3. Solve the question step by step.
4. Explain every step in a way an A/L student can understand.
5. Show all important formulas and working.
6. Give the final answer clearly.
7. If it is a MCQ, mention the correct option and explain why it is correct.
8. If any data seems missing or unclear, point it out and do NOT guess values.`

var outputFormat = fmt.Sprintf(`VERY IMPORTANT OUTPUT FORMAT:
Start your answer EXACTLY like this (do not add anything before %[1]s):

%[1]s <Physics|Chemistry|Biology|Maths>

%[2]s
<rewrite the question here>

%[3]s
<detailed step-by-step solution and explanation here>

%[4]s
<final answer only here>

Do not change the headings. Do not add any content before "%[1]s".`,
	consts.MarkerSubject, consts.MarkerQuestion, consts.MarkerSolution, consts.MarkerFinalAnswer)

// LanguageInstruction returns the sentence that selects the explanation language.
func LanguageInstruction(language string) string {
	if consts.NormalizeLanguage(language) == consts.LanguageSinhala {
		return "Use clear Sinhala language suitable for Sri Lankan A/L students."
	}
	return "Use clear, simple English suitable for Sri Lankan A/L students."
}

// BuildTextPrompt embeds questionText, typically OCR output or a typed
// question, into the full instruction text.
func BuildTextPrompt(questionText, language string) string {
	intro := "The text below is a question from an A/L exam paper. If it was extracted from an image by OCR, small mistakes are possible."
	body := consts.MarkerQuestion + "\n" + strings.TrimSpace(questionText)
	return build(intro, body, language)
}

// BuildVisionPrompt asks the model to read the question from an attached image.
func BuildVisionPrompt(language string) string {
	intro := "The attached image contains a question from an A/L exam paper."
	body := "Analyze the question in the image. If any part of the image is unclear, state what is unclear."
	return build(intro, body, language)
}

func build(intro, body, language string) string {
	var b strings.Builder
	for i, section := range []string{persona, intro, body, tasks, LanguageInstruction(language), outputFormat} {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(section)
	}
	return b.String()
}
