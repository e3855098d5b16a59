// Package lexicon holds the tunable vocabulary of the classifier: keyword
// lists per language and category, the category priority order, relative-date
// phrases and localized category descriptions.
//
// A default table is embedded in the binary. Deployments may replace it with
// their own YAML file; the file is validated once at startup so that a broken
// table fails the process instead of individual requests.
package lexicon

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/nadzzz/dunning/internal/message"
)

//go:embed default.yaml
var defaultYAML []byte

// Table is the complete lexicon.
type Table struct {
	// KazakhLetters are letters of the Kazakh alphabet absent from Russian.
	KazakhLetters string `yaml:"kazakh_letters"`

	// Priority orders the substantive categories for tie-breaking, strongest first.
	Priority []message.Category `yaml:"priority"`

	// MinPartialLength is the shortest token, in runes, allowed to match a
	// longer keyword that contains it.
	MinPartialLength int `yaml:"min_partial_length"`

	Languages map[message.Language]*Language `yaml:"languages"`

	kazakh map[rune]bool
}

// Language is the vocabulary of one language.
type Language struct {
	Name           string                        `yaml:"name"`
	DetectKeywords []string                      `yaml:"detect_keywords"`
	Categories     map[message.Category][]string `yaml:"categories"`
	Dates          Dates                         `yaml:"dates"`
	Descriptions   map[message.Category]string   `yaml:"descriptions"`
	Prompt         string                        `yaml:"prompt"`

	inDays []*regexp.Regexp
	prompt *template.Template
}

// Dates lists the relative-date vocabulary of a language.
type Dates struct {
	Today            []string       `yaml:"today"`
	Tomorrow         []string       `yaml:"tomorrow"`
	DayAfterTomorrow []string       `yaml:"day_after_tomorrow"`
	Week             []string       `yaml:"week"`
	InDays           []string       `yaml:"in_days"`
	Numbers          map[string]int `yaml:"numbers"`
}

// Default returns the embedded table.
func Default() (*Table, error) {
	return Parse(defaultYAML)
}

// MustDefault is like Default but panics on error.
func MustDefault() *Table {
	t, err := Default()
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads the table at path, or the embedded default when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes, normalizes and validates a YAML table. Unknown keys are
// rejected so that a misspelled list fails instead of silently going empty.
func Parse(data []byte) (*Table, error) {
	var t Table
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("decoding lexicon: document is empty")
		}
		return nil, fmt.Errorf("decoding lexicon: %w", err)
	}
	t.normalize()
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Lang returns the vocabulary for l, falling back to Russian for unknown tags.
func (t *Table) Lang(l message.Language) *Language {
	if v, ok := t.Languages[l]; ok {
		return v
	}
	return t.Languages[message.LanguageRU]
}

// IsKazakhLetter reports whether r is a Kazakh-only letter.
func (t *Table) IsKazakhLetter(r rune) bool { return t.kazakh[r] }

// Describe returns the localized description of c.
func (t *Table) Describe(c message.Category, l message.Language) string {
	return t.Lang(l).Descriptions[c]
}

// InDayPatterns returns the compiled "in N days" expressions. Each has one
// capture group holding the number.
func (l *Language) InDayPatterns() []*regexp.Regexp { return l.inDays }

// PromptTemplate returns the compiled collection prompt.
func (l *Language) PromptTemplate() *template.Template { return l.prompt }

// Weight is the evidence weight of a phrase: its word count.
func Weight(phrase string) int { return len(strings.Fields(phrase)) }

func (t *Table) normalize() {
	lower := cases.Lower(language.Und)
	norm := func(list []string) []string {
		out := make([]string, 0, len(list))
		for _, p := range list {
			p = strings.Join(strings.Fields(lower.String(p)), " ")
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	}

	t.KazakhLetters = lower.String(t.KazakhLetters)
	t.kazakh = make(map[rune]bool)
	for _, r := range t.KazakhLetters {
		t.kazakh[r] = true
	}
	for _, l := range t.Languages {
		if l == nil {
			continue
		}
		l.DetectKeywords = norm(l.DetectKeywords)
		for c, list := range l.Categories {
			l.Categories[c] = norm(list)
		}
		l.Dates.Today = norm(l.Dates.Today)
		l.Dates.Tomorrow = norm(l.Dates.Tomorrow)
		l.Dates.DayAfterTomorrow = norm(l.Dates.DayAfterTomorrow)
		l.Dates.Week = norm(l.Dates.Week)
		numbers := make(map[string]int, len(l.Dates.Numbers))
		for w, n := range l.Dates.Numbers {
			numbers[lower.String(strings.TrimSpace(w))] = n
		}
		l.Dates.Numbers = numbers
	}
}

func (t *Table) compile() error {
	var errs []error
	if len(t.kazakh) == 0 {
		errs = append(errs, errors.New("kazakh_letters is empty"))
	}
	if t.MinPartialLength < 1 {
		errs = append(errs, fmt.Errorf("min_partial_length must be positive, got %d", t.MinPartialLength))
	}
	if err := checkPriority(t.Priority); err != nil {
		errs = append(errs, err)
	}

	for _, code := range message.SupportedLanguages {
		l := t.Languages[code]
		if l == nil {
			errs = append(errs, fmt.Errorf("language %s: missing", code))
			continue
		}
		if len(l.DetectKeywords) == 0 {
			errs = append(errs, fmt.Errorf("language %s: detect_keywords is empty", code))
		}
		for _, c := range message.SubstantiveCategories {
			if len(l.Categories[c]) == 0 {
				errs = append(errs, fmt.Errorf("language %s: category %s has no phrases", code, c))
			}
		}
		for name, list := range map[string][]string{
			"today":    l.Dates.Today,
			"tomorrow": l.Dates.Tomorrow,
			"week":     l.Dates.Week,
			"in_days":  l.Dates.InDays,
		} {
			if len(list) == 0 {
				errs = append(errs, fmt.Errorf("language %s: dates.%s is empty", code, name))
			}
		}
		for c := range l.Categories {
			if !c.Substantive() {
				errs = append(errs, fmt.Errorf("language %s: unknown category %q", code, c))
			}
		}
		for _, c := range message.Categories {
			if strings.TrimSpace(l.Descriptions[c]) == "" {
				errs = append(errs, fmt.Errorf("language %s: no description for %s", code, c))
			}
		}

		l.inDays = l.inDays[:0]
		for _, expr := range l.Dates.InDays {
			re, err := regexp.Compile(expr)
			if err != nil {
				errs = append(errs, fmt.Errorf("language %s: in_days %q: %w", code, expr, err))
				continue
			}
			if re.NumSubexp() != 1 {
				errs = append(errs, fmt.Errorf("language %s: in_days %q needs exactly one capture group", code, expr))
				continue
			}
			l.inDays = append(l.inDays, re)
		}

		if l.Prompt != "" {
			tmpl, err := template.New(string(code)).Option("missingkey=error").Parse(l.Prompt)
			if err != nil {
				errs = append(errs, fmt.Errorf("language %s: prompt: %w", code, err))
			}
			l.prompt = tmpl
		}
	}
	return errors.Join(errs...)
}

func checkPriority(p []message.Category) error {
	if len(p) != len(message.SubstantiveCategories) {
		return fmt.Errorf("priority must list the %d substantive categories, got %d", len(message.SubstantiveCategories), len(p))
	}
	seen := make(map[message.Category]bool, len(p))
	for _, c := range p {
		if !c.Substantive() {
			return fmt.Errorf("priority: %q is not a substantive category", c)
		}
		if seen[c] {
			return fmt.Errorf("priority: %q listed twice", c)
		}
		seen[c] = true
	}
	return nil
}
