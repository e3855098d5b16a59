package classifier_test

import (
	"math"
	"slices"
	"testing"
	"time"

	"github.com/nadzzz/dunning/internal/classifier"
	"github.com/nadzzz/dunning/internal/lexicon"
	"github.com/nadzzz/dunning/internal/message"
)

var almaty = time.FixedZone("ALMT", 5*60*60)

// fixedNow is 2026-03-14 10:00 in Almaty.
var fixedNow = time.Date(2026, time.March, 14, 10, 0, 0, 0, almaty)

func newClassifier(t *testing.T) *classifier.Classifier {
	t.Helper()
	return classifier.New(lexicon.MustDefault(),
		classifier.WithClock(func() time.Time { return fixedNow }),
		classifier.WithLocation(almaty),
	)
}

func TestClassify(t *testing.T) {
	c := newClassifier(t)
	tests := []struct {
		text string
		lang message.Language
		want message.Category
	}{
		{"Я заплачу завтра вечером", message.LanguageRU, message.CategoryPromise},
		{"Оплачу через 3 дня обязательно", message.LanguageRU, message.CategoryPromise},
		{"Не буду платить, оставьте меня", message.LanguageRU, message.CategoryIgnore},
		{"Надоели уже, не звоните мне больше", message.LanguageRU, message.CategoryIgnore},
		{"У меня нет денег, потерял работу", message.LanguageRU, message.CategoryHelp},
		{"Нет возможности заплатить сразу, прошу рассрочку", message.LanguageRU, message.CategoryHelp},
		{"Вы ошиблись номером, я не знаю такого человека", message.LanguageRU, message.CategoryWrongNumber},
		{"Это не мой номер, такого здесь нет", message.LanguageRU, message.CategoryWrongNumber},
		{"Это не его номер, передайте ему сообщение", message.LanguageRU, message.CategoryThirdParty},
		{"Его нет дома, я родственник", message.LanguageRU, message.CategoryThirdParty},
		{"Алло? Не слышу вас!", message.LanguageRU, message.CategoryHangup},
		{"Что?", message.LanguageRU, message.CategoryHangup},
		{"НЕ БУДУ ПЛАТИТЬ!", message.LanguageRU, message.CategoryIgnore},
		{"Мне не интересны ваши предложения", message.LanguageRU, message.CategoryIgnore},
		{"Не заплачу ни сегодня, ни завтра", message.LanguageRU, message.CategoryIgnore},

		{"Ертең міндетті төлеймін", message.LanguageKK, message.CategoryPromise},
		{"Төлемеймін, қоңырау шалмаңыз", message.LanguageKK, message.CategoryIgnore},
		{"Ақшам жоқ, жұмыс жоғалттым", message.LanguageKK, message.CategoryHelp},
		{"Қате нөмір, білмеймін", message.LanguageKK, message.CategoryWrongNumber},
		{"Ол емес, туыс", message.LanguageKK, message.CategoryThirdParty},
		{"Алло, естімеймін", message.LanguageKK, message.CategoryHangup},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := c.Classify(tt.text, tt.lang)
			if res.Category != tt.want {
				t.Fatalf("Category = %s, want %s (matched %v)", res.Category, tt.want, res.MatchedKeywords)
			}
			if res.Confidence < 0.5 || res.Confidence > 1 {
				t.Errorf("Confidence = %v out of [0.5, 1]", res.Confidence)
			}
			if res.MatchedKeywords == nil {
				t.Error("MatchedKeywords is nil")
			}
			if res.Category != message.CategoryHangup && len(res.MatchedKeywords) == 0 {
				t.Error("substantive category without evidence")
			}
			if res.Category == message.CategoryHelp && res.Reason == "" {
				t.Error("help without reason")
			}
			if res.Category != message.CategoryPromise && res.PromisedDate != "" {
				t.Errorf("PromisedDate %q set on %s", res.PromisedDate, res.Category)
			}
		})
	}
}

func TestClassifySilence(t *testing.T) {
	c := newClassifier(t)
	for _, text := range []string{"", "   \t\n  "} {
		res := c.Classify(text, message.LanguageRU)
		if res.Category != message.CategoryHangup || res.Confidence != 1.0 {
			t.Errorf("Classify(%q) = %s %v, want hangup 1.0", text, res.Category, res.Confidence)
		}
		if res.MatchedKeywords == nil || len(res.MatchedKeywords) != 0 {
			t.Errorf("Classify(%q) keywords = %#v, want empty", text, res.MatchedKeywords)
		}
	}
}

func TestClassifyNoEvidence(t *testing.T) {
	c := newClassifier(t)
	res := c.Classify("Добрый день, как дела?", message.LanguageRU)
	if res.Category != message.CategoryHangup || res.Confidence != 0.5 {
		t.Errorf("got %s %v, want hangup 0.5", res.Category, res.Confidence)
	}
}

func TestClassifyConfidence(t *testing.T) {
	c := newClassifier(t)
	tests := []struct {
		text string
		want float64
	}{
		{"Мне не интересны ваши предложения", 0.6}, // one word
		{"Я заплачу, обязательно", 0.7},            // two words
		{"Вы ошиблись номером, я не знаю такого человека", 1.0},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.text, message.LanguageRU).Confidence; math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Confidence(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestPromiseDate(t *testing.T) {
	c := newClassifier(t)
	tests := []struct {
		text string
		lang message.Language
		want string
	}{
		{"Я заплачу завтра", message.LanguageRU, "2026-03-15"},
		{"Оплачу через 3 дня обязательно", message.LanguageRU, "2026-03-17"},
		{"Заплачу сегодня", message.LanguageRU, "2026-03-14"},
		{"Заплачу послезавтра", message.LanguageRU, "2026-03-16"},
		{"Оплачу через два дня", message.LanguageRU, "2026-03-16"},
		{"Заплачу через неделю", message.LanguageRU, "2026-03-21"},
		{"Заплачу на следующей неделе", message.LanguageRU, "2026-03-21"},
		{"Ертең міндетті төлеймін", message.LanguageKK, "2026-03-15"},
		{"Үш күннен кейін төлеймін", message.LanguageKK, "2026-03-17"},
		{"Бес күнде аударамын", message.LanguageKK, "2026-03-19"},
		{"Бір аптадан кейін төлеймін", message.LanguageKK, "2026-03-21"},
		{"Когда-нибудь заплачу", message.LanguageRU, ""},
		{"Заплачу не сегодня, а завтра", message.LanguageRU, "2026-03-15"},
		{"Завтра не смогу, заплачу через 3 дня", message.LanguageRU, "2026-03-17"},
		{"Через неделю или послезавтра оплачу", message.LanguageRU, "2026-03-16"},
	}
	for _, tt := range tests {
		res := c.Classify(tt.text, tt.lang)
		if res.Category != message.CategoryPromise {
			t.Errorf("Classify(%q) = %s, want promise", tt.text, res.Category)
			continue
		}
		if res.PromisedDate != tt.want {
			t.Errorf("PromisedDate(%q) = %q, want %q", tt.text, res.PromisedDate, tt.want)
		}
	}
}

func TestExtractDate(t *testing.T) {
	c := newClassifier(t)
	tests := []struct {
		text string
		lang message.Language
		want string
		ok   bool
	}{
		{"Заплачу сегодня", message.LanguageRU, "2026-03-14", true},
		{"Оплачу завтра", message.LanguageRU, "2026-03-15", true},
		{"Переведу через 5 дней", message.LanguageRU, "2026-03-19", true},
		{"Заплачу через неделю", message.LanguageRU, "2026-03-21", true},
		{"Бүгін төлеймін", message.LanguageKK, "2026-03-14", true},
		{"Ертең аударамын", message.LanguageKK, "2026-03-15", true},
		{"Бүгін емес, ертең аударамын", message.LanguageKK, "2026-03-15", true},
		{"Когда-нибудь заплачу", message.LanguageRU, "", false},
		{"через много дней", message.LanguageRU, "", false},
		{"", message.LanguageRU, "", false},
	}
	for _, tt := range tests {
		got, ok := c.ExtractDate(tt.text, tt.lang)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtractDate(%q) = %q %v, want %q %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExtractDateCalendar(t *testing.T) {
	// 22:30 UTC on the 14th is already the 15th in Almaty.
	lateUTC := time.Date(2026, time.March, 14, 22, 30, 0, 0, time.UTC)
	c := classifier.New(lexicon.MustDefault(),
		classifier.WithClock(func() time.Time { return lateUTC }),
		classifier.WithLocation(almaty),
	)
	if got, _ := c.ExtractDate("Оплачу завтра", message.LanguageRU); got != "2026-03-16" {
		t.Errorf("tomorrow across zones = %q, want 2026-03-16", got)
	}

	monthEnd := time.Date(2026, time.January, 31, 12, 0, 0, 0, almaty)
	res := c.ClassifyAt("Оплачу через 3 дня", message.LanguageRU, monthEnd)
	if res.PromisedDate != "2026-02-03" {
		t.Errorf("month rollover = %q, want 2026-02-03", res.PromisedDate)
	}
}

func TestHelpReason(t *testing.T) {
	c := newClassifier(t)
	tests := []struct {
		text string
		lang message.Language
		want string
	}{
		{"У меня нет денег, потерял работу", message.LanguageRU, "У меня нет денег"},
		{"Нет возможности заплатить сразу, прошу рассрочку", message.LanguageRU, "Нет возможности заплатить сразу"},
		{"Ақшам жоқ, жұмыс жоғалттым", message.LanguageKK, "Ақшам жоқ"},
	}
	for _, tt := range tests {
		res := c.Classify(tt.text, tt.lang)
		if res.Reason != tt.want {
			t.Errorf("Reason(%q) = %q, want %q", tt.text, res.Reason, tt.want)
		}
	}
}

func TestMixedEvidence(t *testing.T) {
	c := newClassifier(t)
	res := c.Classify("Я заплачу, но нет денег сейчас", message.LanguageRU)
	if res.Category != message.CategoryHelp {
		t.Fatalf("Category = %s, want help", res.Category)
	}
	// Only the winning category's evidence is reported.
	if slices.Contains(res.MatchedKeywords, "заплач") {
		t.Errorf("MatchedKeywords %v include promise evidence", res.MatchedKeywords)
	}
	if res.PromisedDate != "" {
		t.Errorf("PromisedDate = %q on help", res.PromisedDate)
	}
}

func TestPriorityBreaksTies(t *testing.T) {
	// One word of refusal against one word of promise.
	c := newClassifier(t)
	res := c.Classify("отдам? отстаньте", message.LanguageRU)
	if res.Category != message.CategoryIgnore {
		t.Errorf("Category = %s, want ignore", res.Category)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := newClassifier(t)
	text := "Заплачу завтра обязательно скоро"
	first := c.Classify(text, message.LanguageRU)
	for range 5 {
		again := c.Classify(text, message.LanguageRU)
		if again.Category != first.Category || again.Confidence != first.Confidence ||
			again.PromisedDate != first.PromisedDate || !slices.Equal(again.MatchedKeywords, first.MatchedKeywords) {
			t.Fatalf("Classify not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestUnknownLanguageUsesRussian(t *testing.T) {
	c := newClassifier(t)
	res := c.Classify("Не буду платить", message.LanguageUnknown)
	if res.Category != message.CategoryIgnore {
		t.Errorf("Category = %s, want ignore", res.Category)
	}
}

func TestDescribe(t *testing.T) {
	c := newClassifier(t)
	if got := c.Describe(message.CategoryHelp, message.LanguageRU); got != "Просьба о помощи" {
		t.Errorf("Describe = %q", got)
	}
	if got := c.Describe(message.CategoryIgnore, message.LanguageKK); got != "Төлемнен бас тарту" {
		t.Errorf("Describe = %q", got)
	}
}
