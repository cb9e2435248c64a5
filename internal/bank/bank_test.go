package bank

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavelanni/examcoach/internal/store"
)

const jsonBank = `[
  {"text": "2+2?", "options": [{"id": "a", "text": "4"}, {"id": "b", "text": "5"}],
   "correct_answer": "a", "subject": "mathematics", "topic": "arithmetic",
   "possible_questions": ["Why 4?"]}
]`

const yamlBank = `
- text: Capital of Brazil?
  options:
    - {id: a, text: Rio de Janeiro}
    - {id: b, text: Brasília}
  correct_answer: b
  explanation: Brasília has been the capital since 1960.
  subject: human_sciences
  difficulty: easy
- text: Largest planet?
  options:
    - {id: a, text: Jupiter}
    - {id: b, text: Mars}
  correct_answer: a
  subject: natural_sciences
`

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		data    string
		count   int
		wantErr string
	}{
		{"json", "bank.json", jsonBank, 1, ""},
		{"yaml", "bank.yaml", yamlBank, 2, ""},
		{"yml extension", "bank.YML", yamlBank, 2, ""},
		{"bad json", "bank.json", `{`, 0, "parse json"},
		{"missing text", "bank.json", `[{"options": [{"id": "a", "text": "x"}, {"id": "b", "text": "y"}], "correct_answer": "a"}]`, 0, "question 1"},
		{"one option", "bank.json", `[{"text": "q", "options": [{"id": "a", "text": "x"}], "correct_answer": "a"}]`, 0, "question 1"},
		{"answer not an option", "bank.json", `[{"text": "q", "options": [{"id": "a", "text": "x"}, {"id": "b", "text": "y"}], "correct_answer": "c"}]`, 0, "not one of its options"},
		{"bad difficulty", "bank.json", `[{"text": "q", "options": [{"id": "a", "text": "x"}, {"id": "b", "text": "y"}], "correct_answer": "a", "difficulty": "extreme"}]`, 0, "question 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs, err := Parse(tt.file, []byte(tt.data))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(qs) != tt.count {
				t.Errorf("expected %d questions, got %d", tt.count, len(qs))
			}
		})
	}
}

func TestParseKeepsFields(t *testing.T) {
	qs, err := Parse("bank.yaml", []byte(yamlBank))
	if err != nil {
		t.Fatal(err)
	}
	q := qs[0]
	if q.CorrectAnswer != "b" || q.Subject != "human_sciences" || q.Difficulty != "easy" || !strings.HasPrefix(q.Explanation, "Brasília") {
		t.Errorf("unexpected question %+v", q)
	}
	if q.Options[1].Text != "Brasília" {
		t.Errorf("expected option b to be Brasília, got %q", q.Options[1].Text)
	}
}

func TestLoad(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "maths.json")
	yamlPath := filepath.Join(dir, "mixed.yaml")
	if err := os.WriteFile(jsonPath, []byte(jsonBank), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte(yamlBank), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Load(db, []string{jsonPath, yamlPath})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res) != 2 || res[0].Imported != 1 || res[1].Imported != 2 {
		t.Errorf("unexpected results %+v", res)
	}
	if n, _ := db.QuestionCount(); n != 3 {
		t.Errorf("expected 3 questions, got %d", n)
	}

	// Unchanged and changed files are both skipped.
	if err := os.WriteFile(yamlPath, []byte(yamlBank+"\n# edited\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err = Load(db, []string{jsonPath, yamlPath})
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	for _, r := range res {
		if !r.Skipped {
			t.Errorf("expected %s to be skipped", r.Path)
		}
	}
	if n, _ := db.QuestionCount(); n != 3 {
		t.Errorf("expected still 3 questions, got %d", n)
	}

	if _, err := Load(db, []string{filepath.Join(dir, "missing.json")}); err == nil {
		t.Error("expected an error for a missing file")
	}
}
