package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
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

func TestTranslate(t *testing.T) {
	tests := []struct {
		lang string
		id   string
		want string
	}{
		{"en", "AppTitle", "ExamCoach"},
		{"en", "CreateExam", "Create exam"},
		{"en", "Reveal", "Check answer"},
		{"pt", "CreateExam", "Criar simulado"},
		{"pt", "Reveal", "Verificar resposta"},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.id, func(t *testing.T) {
			ctx := initLang(t, tt.lang)
			if got := T(ctx, tt.id); got != tt.want {
				t.Errorf("T(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsAnswered", 1); got != "1 question answered" {
		t.Errorf("Tp(QuestionsAnswered, 1) = %q, want '1 question answered'", got)
	}
	if got := Tp(ctx, "QuestionsAnswered", 5); got != "5 questions answered" {
		t.Errorf("Tp(QuestionsAnswered, 5) = %q, want '5 questions answered'", got)
	}

	ctx = initLang(t, "pt")
	if got := Tp(ctx, "QuestionsAnswered", 3); got != "3 questões respondidas" {
		t.Errorf("Tp(QuestionsAnswered, 3) = %q, want '3 questões respondidas'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "QuestionN", map[string]any{"Index": 2, "Total": 10})
	if got != "Question 2 of 10" {
		t.Errorf("Td(QuestionN) = %q, want 'Question 2 of 10'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddleware(t *testing.T) {
	initLang(t, "pt")

	var got string
	h := Middleware("pt")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Logout")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != "Sair" {
		t.Errorf("expected 'Sair', got %q", got)
	}
}

func TestMiddlewarePreferences(t *testing.T) {
	initLang(t, "en")

	tests := []struct {
		name   string
		cookie string
		accept string
		want   string
	}{
		{"default", "", "", "Log out"},
		{"accept language", "", "pt-BR,pt;q=0.9", "Sair"},
		{"cookie wins", "en", "pt-BR", "Log out"},
		{"unknown falls back", "", "de-DE", "Log out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got, lang string
			h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = T(r.Context(), "Logout")
				lang = Lang(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: LangCookie, Value: tt.cookie})
			}
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
			if lang == "" {
				t.Error("expected a resolved language")
			}
		})
	}
}

func TestLanguages(t *testing.T) {
	initLang(t, "en")
	langs := Languages()
	if len(langs) != 2 {
		t.Fatalf("expected 2 locales, got %v", langs)
	}
}
