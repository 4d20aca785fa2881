// Package answer reads the sectioned text produced by the language model.
package answer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alsolver/alsolver/internal/consts"
)

var (
	subjectRe = regexp.MustCompile(`(?i)SUBJECT:[ \t]*([^\n\r]*)`)
	headingRe = regexp.MustCompile(`(?im)^[ \t]*(SUBJECT|QUESTION|SOLUTION|FINAL ANSWER):[ \t]*`)
)

// Answer is the model output split on its section headings. Missing
// sections are left empty.
type Answer struct {
	Subject     string
	Question    string
	Solution    string
	FinalAnswer string
	Raw         string
}

// ExtractSubject returns the normalized subject named on the first SUBJECT:
// line, or ok=false when there is none.
func ExtractSubject(text string) (subject string, ok bool) {
	m := subjectRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}

	raw := strings.ToLower(strings.TrimSpace(m[1]))
	switch {
	case raw == "":
		return "", false
	case strings.Contains(raw, "phys"):
		return consts.SubjectPhysics, true
	case strings.Contains(raw, "chem"):
		return consts.SubjectChemistry, true
	case strings.Contains(raw, "bio"):
		return consts.SubjectBiology, true
	case strings.Contains(raw, "math"):
		return consts.SubjectMaths, true
	}

	r, size := utf8.DecodeRuneInString(raw)
	return string(unicode.ToUpper(r)) + raw[size:], true
}


// Parse splits text on the four headings. The first occurrence of each
// heading wins; text before the first heading is ignored.
func Parse(text string) Answer {
	a := Answer{Raw: text}
	a.Subject, _ = ExtractSubject(text)

	locs := headingRe.FindAllStringSubmatchIndex(text, -1)
	seen := make(map[string]bool, 4)
	for i, loc := range locs {
		name := strings.ToUpper(text[loc[2]:loc[3]])
		if seen[name] {
			continue
		}
		seen[name] = true

		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(text[loc[1]:end])

		switch name + ":" {
		case consts.MarkerQuestion:
			a.Question = body
		case consts.MarkerSolution:
			a.Solution = body
		case consts.MarkerFinalAnswer:
			a.FinalAnswer = body
		}
	}

	return a
}

// SubjectPtr is the subject in the nullable form stored on request logs.
func (a Answer) SubjectPtr() *string {
	if a.Subject == "" {
		return nil
	}
	s := a.Subject
	return &s
}

// Complete reports whether every section was found.
func (a Answer) Complete() bool {
	return a.Subject != "" && a.Question != "" && a.Solution != "" && a.FinalAnswer != ""
}
