package gemini

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// DetectLanguage implements spec.md §4.G's continuation-body language
// heuristic: script-block counting first, then a diacritic scan, with
// English as the default. The detected language.Tag selects a row in the
// retry-prompt table (retryprompt.go).
func DetectLanguage(text string) language.Tag {
	if text == "" {
		return language.English
	}

	counts := map[language.Tag]int{
		language.Chinese:  0,
		language.Japanese: 0,
		language.Korean:   0,
		language.Arabic:   0,
		language.Russian:  0,
	}
	total := 0

	for _, r := range text {
		total++
		switch {
		case unicode.Is(unicode.Han, r):
			counts[language.Chinese]++
		case unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
			counts[language.Japanese]++
		case unicode.Is(unicode.Hangul, r):
			counts[language.Korean]++
		case unicode.Is(unicode.Arabic, r):
			counts[language.Arabic]++
		case unicode.Is(unicode.Cyrillic, r):
			counts[language.Russian]++
		}
	}

	if total > 0 {
		// Check in a fixed order so the "first such matched label" rule
		// (spec.md §4.G) is deterministic when multiple scripts clear the
		// 10% threshold.
		for _, tag := range []language.Tag{language.Chinese, language.Japanese, language.Korean, language.Arabic, language.Russian} {
			if float64(counts[tag])/float64(total) > 0.10 {
				return tag
			}
		}
	}

	switch {
	case containsAny(text, frenchDiacritics):
		return language.French
	case containsAny(text, germanDiacritics):
		return language.German
	case containsAny(text, spanishDiacritics):
		return language.Spanish
	default:
		return language.English
	}
}

const (
	frenchDiacritics  = "àâçéèêëîïôùûÿœæ"
	germanDiacritics  = "äöüß"
	spanishDiacritics = "ñ¿¡"
)

func containsAny(text, runes string) bool {
	return strings.ContainsAny(strings.ToLower(text), runes)
}
