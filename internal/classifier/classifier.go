// Package classifier sorts a debtor's reply into one of six intents using
// weighted keyword evidence from the lexicon.
//
// Classification is total: every transcript maps to a category. Silence is
// a hangup with full confidence; a reply with no evidence at all is a hangup
// with confidence 0.5. Ties between categories are broken by the lexicon's
// priority order so that a refusal is never masked by an incidental promise.
package classifier

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nadzzz/dunning/internal/lexicon"
	"github.com/nadzzz/dunning/internal/message"
)

const (
	silenceConfidence = 1.0
	noEvidenceConfid  = 0.5
	maxReasonRunes    = 120
	maxRelativeDays   = 366
)

// Classifier is safe for concurrent use.
type Classifier struct {
	lex *lexicon.Table
	now func() time.Time
	loc *time.Location
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock sets the source of "now" used to resolve relative dates.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// WithLocation sets the time zone in which calendar dates are computed.
func WithLocation(loc *time.Location) Option {
	return func(c *Classifier) { c.loc = loc }
}

// New creates a classifier over lex.
func New(lex *lexicon.Table, opts ...Option) *Classifier {
	c := &Classifier{lex: lex, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify classifies transcript, resolving dates against the current time.
func (c *Classifier) Classify(transcript string, lang message.Language) message.ClassificationResult {
	return c.ClassifyAt(transcript, lang, c.now())
}

// ClassifyAt classifies transcript as if the call happened at now.
func (c *Classifier) ClassifyAt(transcript string, lang message.Language, now time.Time) message.ClassificationResult {
	if strings.TrimSpace(transcript) == "" {
		return message.ClassificationResult{
			Category:        message.CategoryHangup,
			Confidence:      silenceConfidence,
			MatchedKeywords: []string{},
		}
	}

	vocab := c.lex.Lang(lang)
	text := normalize(transcript, lang)

	scores := make(map[message.Category]int, len(message.SubstantiveCategories))
	matches := make(map[message.Category][]string, len(message.SubstantiveCategories))
	for _, cat := range message.SubstantiveCategories {
		for _, kw := range vocab.Categories[cat] {
			if c.matches(text, kw) {
				scores[cat] += lexicon.Weight(kw)
				matches[cat] = append(matches[cat], kw)
			}
		}
	}

	best, bestScore := message.CategoryHangup, 0
	for _, cat := range c.lex.Priority {
		if scores[cat] > bestScore {
			best, bestScore = cat, scores[cat]
		}
	}
	if bestScore == 0 {
		return message.ClassificationResult{
			Category:        message.CategoryHangup,
			Confidence:      noEvidenceConfid,
			MatchedKeywords: []string{},
		}
	}

	res := message.ClassificationResult{
		Category:        best,
		Confidence:      confidence(bestScore),
		MatchedKeywords: matches[best],
	}
	switch best {
	case message.CategoryPromise:
		if d, ok := c.extractDate(text, vocab, now); ok {
			res.PromisedDate = d
		}
	case message.CategoryHelp:
		res.Reason = c.reason(transcript, lang, matches[best][0])
	}
	return res
}

// ExtractDate resolves the last relative-date phrase in text against the
// current time. It returns an ISO date (YYYY-MM-DD) and true, or "" and false
// when text names no recognizable date.
func (c *Classifier) ExtractDate(text string, lang message.Language) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return c.extractDate(normalize(text, lang), c.lex.Lang(lang), c.now())
}

// Describe returns the localized description of a category.
func (c *Classifier) Describe(cat message.Category, lang message.Language) string {
	return c.lex.Describe(cat, lang)
}

// confidence grows by 0.1 per point of evidence from a 0.5 base, capped at 1.
func confidence(score int) float64 {
	return min(0.5+0.1*float64(score), 1.0)
}

// normalized is a transcript reduced to lower-case alphanumeric tokens.
type normalized struct {
	tokens []string
	// padded is the tokens joined by single spaces with a leading and trailing
	// space, so phrases can be matched on a word boundary.
	padded string
}

func normalize(s string, lang message.Language) normalized {
	lower := cases.Lower(caseTag(lang)).String(s)
	var tokens []string
	for _, f := range strings.Fields(lower) {
		f = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, f)
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return normalized{tokens: tokens, padded: " " + strings.Join(tokens, " ") + " "}
}

func caseTag(lang message.Language) language.Tag {
	if lang == message.LanguageKK {
		return language.Kazakh
	}
	return language.Russian
}

// matches applies the tolerant containment rule. A single word matches a
// token that contains it, or a token of at least MinPartialLength runes that
// it contains. A phrase matches where it starts on a word boundary; its last
// word may be inflected.
func (c *Classifier) matches(text normalized, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(text.padded, " "+kw)
	}
	for _, tok := range text.tokens {
		if strings.Contains(tok, kw) {
			return true
		}
		if utf8.RuneCountInString(tok) >= c.lex.MinPartialLength && strings.Contains(kw, tok) {
			return true
		}
	}
	return false
}

// extractDate resolves the last relative-date phrase in text, so a speaker
// who corrects themselves ("не сегодня, а завтра") gets the later phrase.
func (c *Classifier) extractDate(text normalized, vocab *lexicon.Language, now time.Time) (string, bool) {
	days, at := -1, -1
	consider := func(pos, n int) {
		if pos > at {
			days, at = n, pos
		}
	}
	consider(lastWord(text, vocab.Dates.Today), 0)
	consider(lastWord(text, vocab.Dates.Tomorrow), 1)
	consider(lastWord(text, vocab.Dates.DayAfterTomorrow), 2)
	consider(lastWord(text, vocab.Dates.Week), 7)
	if pos, n := lastInDays(text, vocab); pos >= 0 {
		consider(pos, n)
	}
	if days < 0 {
		return "", false
	}

	y, m, d := now.In(c.loc).Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, c.loc).Format(time.DateOnly), true
}

// lastWord returns the offset of the last whole-token occurrence of any of
// the words (or multi-word entries) in text, or -1.
func lastWord(text normalized, words []string) int {
	last := -1
	for _, w := range words {
		last = max(last, strings.LastIndex(text.padded, " "+w+" "))
	}
	return last
}

// lastInDays returns the offset and day count of the last "in N days" phrase
// whose count parses, or -1.
func lastInDays(text normalized, vocab *lexicon.Language) (int, int) {
	at, days := -1, 0
	for _, re := range vocab.InDayPatterns() {
		for _, m := range re.FindAllStringSubmatchIndex(text.padded, -1) {
			if m[0] <= at {
				continue
			}
			if n, ok := parseCount(text.padded[m[2]:m[3]], vocab.Dates.Numbers); ok {
				at, days = m[0], n
			}
		}
	}
	return at, days
}

func parseCount(s string, words map[string]int) (int, bool) {
	n, isNum := 0, s != ""
	for _, r := range s {
		if r < '0' || r > '9' {
			isNum = false
			break
		}
		n = n*10 + int(r-'0')
		if n > maxRelativeDays {
			return 0, false
		}
	}
	if isNum {
		return n, true
	}
	n, ok := words[s]
	return n, ok
}

var clauseSep = regexp.MustCompile(`[.,;:!?…\n]+|\s[—–-]\s`)

// reason returns the clause of transcript that carries the hardship keyword.
func (c *Classifier) reason(transcript string, lang message.Language, kw string) string {
	for _, clause := range clauseSep.Split(transcript, -1) {
		clause = strings.TrimSpace(clause)
		if clause != "" && c.matches(normalize(clause, lang), kw) {
			return truncate(clause, maxReasonRunes)
		}
	}
	return truncate(strings.TrimSpace(transcript), maxReasonRunes)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
