package i18n

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "Microlearn" {
		t.Errorf("T(AppTitle) = %q, want 'Microlearn'", got)
	}

	got = T(ctx, "GenerateLesson")
	if got != "Generate lesson" {
		t.Errorf("T(GenerateLesson) = %q, want 'Generate lesson'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "AppTitle")
	if got != "Микрообучение" {
		t.Errorf("T(AppTitle) = %q, want 'Микрообучение'", got)
	}

	got = T(ctx, "GenerateLesson")
	if got != "Создать урок" {
		t.Errorf("T(GenerateLesson) = %q, want 'Создать урок'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "ResultsCount", 1)
	if got1 != "1 saved result." {
		t.Errorf("Tp(ResultsCount, 1) = %q, want '1 saved result.'", got1)
	}

	got5 := Tp(ctx, "ResultsCount", 5)
	if got5 != "5 saved results." {
		t.Errorf("Tp(ResultsCount, 5) = %q, want '5 saved results.'", got5)
	}
}

func TestPluralTranslationRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	tests := []struct {
		count int
		want  string
	}{
		{1, "1 сохранённый результат."},
		{3, "3 сохранённых результата."},
		{5, "5 сохранённых результатов."},
		{21, "21 сохранённый результат."},
	}
	for _, tc := range tests {
		if got := Tp(ctx, "ResultsCount", tc.count); got != tc.want {
			t.Errorf("Tp(ResultsCount, %d) = %q, want %q", tc.count, got, tc.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "PreScoreLine", map[string]any{"Score": 2, "Max": 3})
	if got != "Pre-quiz score: 2 / 3" {
		t.Errorf("Td(PreScoreLine) = %q, want 'Pre-quiz score: 2 / 3'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	keys := func(name string) []string {
		data, err := localeFS.ReadFile("locales/" + name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		out := make([]string, 0, len(m))
		for k := range m {
			out = append(out, k)
		}
		sort.Strings(out)
		return out
	}
	en, ru := keys("en.json"), keys("ru.json")
	if len(en) != len(ru) {
		t.Fatalf("en has %d keys, ru has %d", len(en), len(ru))
	}
	for i := range en {
		if en[i] != ru[i] {
			t.Errorf("key mismatch: en %q, ru %q", en[i], ru[i])
		}
	}
}

func TestInitUnsupportedLanguage(t *testing.T) {
	if err := Init("de"); err == nil {
		t.Error("expected error for a language without a locale file")
	}
	if err := Init("not a tag!"); err == nil {
		t.Error("expected error for an unparsable language")
	}
}

func TestMiddlewareLangCookie(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "AppTitle")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Microlearn" {
		t.Errorf("default language: got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "lang", Value: "ru"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Микрообучение" {
		t.Errorf("ru cookie: got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "lang", Value: "xx"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Microlearn" {
		t.Errorf("unknown cookie language: got %q", got)
	}
}
