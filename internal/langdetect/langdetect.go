// Package langdetect decides whether a transcript is Russian or Kazakh.
//
// Two signals are used, strongest first: letters that exist only in the
// Kazakh alphabet, then keyword hits from per-language word lists. Russian
// is the default language of the market and wins every non-empty tie.
package langdetect

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nadzzz/dunning/internal/lexicon"
	"github.com/nadzzz/dunning/internal/message"
)

// Detector is safe for concurrent use; it holds only read-only tables.
type Detector struct {
	lex *lexicon.Table
	kk  []string
	ru  []string
}

// New builds a detector over the detection keywords of lex.
func New(lex *lexicon.Table) *Detector {
	return &Detector{
		lex: lex,
		kk:  lex.Lang(message.LanguageKK).DetectKeywords,
		ru:  lex.Lang(message.LanguageRU).DetectKeywords,
	}
}

// Detect returns the language of text.
func (d *Detector) Detect(text string) message.Language {
	l, _ := d.DetectWithConfidence(text)
	return l
}

// DetectWithConfidence returns the language of text and a confidence in [0,1].
func (d *Detector) DetectWithConfidence(text string) (message.Language, float64) {
	if strings.TrimSpace(text) == "" {
		return message.LanguageUnknown, 0
	}
	lower := cases.Lower(language.Und).String(text)

	letters := 0
	for _, r := range lower {
		if d.lex.IsKazakhLetter(r) {
			letters++
		}
	}
	if letters > 0 {
		return message.LanguageKK, min(0.5+0.1*float64(letters), 1.0)
	}

	words := strings.Fields(lower)
	var kk, ru int
	for _, w := range words {
		w = lettersOnly(w)
		if w == "" {
			continue
		}
		if matchesAny(w, d.kk) {
			kk++
		}
		if matchesAny(w, d.ru) {
			ru++
		}
	}

	total := float64(len(words))
	switch {
	case kk > ru:
		return message.LanguageKK, min(0.5+float64(kk)/total*0.5, 1.0)
	case ru > kk:
		return message.LanguageRU, min(0.5+float64(ru)/total*0.5, 1.0)
	case ru > 0:
		return message.LanguageRU, 0.5
	}
	return message.LanguageUnknown, 0
}

func lettersOnly(w string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, w)
}

// matchesAny applies the tolerant containment rule: a word matches a keyword
// when either contains the other, so truncated and inflected forms both hit.
func matchesAny(word string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(word, kw) || strings.Contains(kw, word) {
			return true
		}
	}
	return false
}
