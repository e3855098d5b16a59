package tts

import (
	"errors"
	"strings"
	"testing"

	"github.com/nadzzz/dunning/internal/lexicon"
	"github.com/nadzzz/dunning/internal/message"
)

func TestRenderPrompt(t *testing.T) {
	lex := lexicon.MustDefault()
	text, lang, err := RenderPrompt(lex, &message.PromptRequest{
		FullName:    " Иванов Иван Иванович ",
		Creditor:    "Kaspi Bank",
		Amount:      150000.5,
		DaysOverdue: 45,
	})
	if err != nil {
		t.Fatalf("RenderPrompt: %v", err)
	}
	if lang != message.LanguageRU {
		t.Errorf("language = %s, want ru", lang)
	}
	want := "Здравствуйте, Иванов Иван Иванович. Это служба взыскания Kaspi Bank. " +
		"У вас задолженность 150000.5 тенге, просроченная на 45 дней. Когда планируете погасить?"
	if text != want {
		t.Errorf("text =\n%q\nwant\n%q", text, want)
	}
}

func TestRenderPromptKazakh(t *testing.T) {
	text, lang, err := RenderPrompt(lexicon.MustDefault(), &message.PromptRequest{
		FullName:    "Серікбаев Нұрлан",
		Creditor:    "Halyk",
		Amount:      20000,
		DaysOverdue: 10,
		Language:    message.LanguageKK,
	})
	if err != nil {
		t.Fatalf("RenderPrompt: %v", err)
	}
	if lang != message.LanguageKK {
		t.Errorf("language = %s", lang)
	}
	for _, part := range []string{"Сәлеметсіз бе, Серікбаев Нұрлан.", "20000 теңге", "10 күнге"} {
		if !strings.Contains(text, part) {
			t.Errorf("text %q lacks %q", text, part)
		}
	}
}

func TestRenderPromptRejects(t *testing.T) {
	lex := lexicon.MustDefault()
	for _, req := range []*message.PromptRequest{
		{FullName: "  "},
		{FullName: "Иванов", Amount: -1},
		{FullName: "Иванов", DaysOverdue: -3},
	} {
		if _, _, err := RenderPrompt(lex, req); !errors.Is(err, ErrInvalidPrompt) {
			t.Errorf("RenderPrompt(%+v) err = %v, want ErrInvalidPrompt", req, err)
		}
	}
}
