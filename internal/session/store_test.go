package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pavelanni/examcoach/internal/model"
)

func testExam(n int) *model.Exam {
	exam := &model.Exam{ID: "exam_1", Title: "Practice", Status: model.ExamInProgress}
	for i := 1; i <= n; i++ {
		exam.Questions = append(exam.Questions, model.Question{
			ID:   fmt.Sprintf("q%d", i),
			Text: fmt.Sprintf("Question %d", i),
			Options: []model.Option{
				{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"},
			},
			CorrectAnswer: "a",
			Explanation:   "because",
		})
	}
	return exam
}

func newTestStore(t *testing.T, n int) *Store {
	t.Helper()
	s := New()
	if err := s.Load(testExam(n)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestLoad(t *testing.T) {
	t.Run("empty exam is not ready", func(t *testing.T) {
		s := New()
		if err := s.Load(&model.Exam{ID: "x"}); !errors.Is(err, ErrNotReady) {
			t.Fatalf("expected ErrNotReady, got %v", err)
		}
		if s.Ready() {
			t.Error("store should not be ready")
		}
		if _, err := s.Current(); !errors.Is(err, ErrNotReady) {
			t.Errorf("expected ErrNotReady from Current, got %v", err)
		}
	})

	t.Run("nil exam is not ready", func(t *testing.T) {
		s := New()
		if err := s.Load(nil); !errors.Is(err, ErrNotReady) {
			t.Fatalf("expected ErrNotReady, got %v", err)
		}
	})

	t.Run("reload resets progress", func(t *testing.T) {
		s := newTestStore(t, 3)
		s.SelectAnswer("q1", "a")
		_ = s.Reveal("q1")
		s.Advance()

		if err := s.Load(testExam(2)); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if s.Index() != 0 {
			t.Errorf("expected index 0, got %d", s.Index())
		}
		if _, ok := s.Answer("q1"); ok {
			t.Error("expected answers to be cleared")
		}
		if s.RevealState("q1") != Hidden {
			t.Error("expected reveal state to be cleared")
		}
		if s.Len() != 2 {
			t.Errorf("expected 2 questions, got %d", s.Len())
		}
	})

	t.Run("store keeps its own copy", func(t *testing.T) {
		exam := testExam(2)
		s := New()
		_ = s.Load(exam)
		exam.Questions[0].Text = "mutated"
		q, _ := s.Current()
		if q.Text != "Question 1" {
			t.Errorf("expected store copy to be unaffected, got %q", q.Text)
		}
	})
}

func TestSelectAnswerLastWriteWins(t *testing.T) {
	tests := []struct {
		name    string
		choices []string
		want    string
	}{
		{"single", []string{"a"}, "a"},
		{"overwrite", []string{"a", "b"}, "b"},
		{"many", []string{"c", "a", "b", "c"}, "c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, 1)
			for _, c := range tt.choices {
				if !s.SelectAnswer("q1", c) {
					t.Fatalf("SelectAnswer(%q) rejected", c)
				}
			}
			got, _ := s.Answer("q1")
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSelectAnswerRejects(t *testing.T) {
	s := newTestStore(t, 2)
	if s.SelectAnswer("missing", "a") {
		t.Error("expected unknown question to be rejected")
	}
	if s.SelectAnswer("q1", "z") {
		t.Error("expected unknown option to be rejected")
	}
	if _, ok := s.Answer("q1"); ok {
		t.Error("rejected selection must not be stored")
	}
}

func TestRevealRequiresAnswer(t *testing.T) {
	s := newTestStore(t, 3)
	for _, id := range []string{"q1", "q2", "q3"} {
		if err := s.Reveal(id); !errors.Is(err, ErrNotAnswered) {
			t.Errorf("Reveal(%s): expected ErrNotAnswered, got %v", id, err)
		}
		if s.RevealState(id) != Hidden {
			t.Errorf("Reveal(%s) must not change state on failure", id)
		}
	}
}

func TestSelectAfterRevealIsNoop(t *testing.T) {
	s := newTestStore(t, 1)
	s.SelectAnswer("q1", "b")
	if err := s.Reveal("q1"); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if s.SelectAnswer("q1", "a") {
		t.Error("expected SelectAnswer to be rejected after reveal")
	}
	got, _ := s.Answer("q1")
	if got != "b" {
		t.Errorf("expected answer to stay %q, got %q", "b", got)
	}
	if !s.ChatAttached("q1") {
		t.Error("expected chat to be attached after reveal")
	}
}

func TestNavigation(t *testing.T) {
	s := newTestStore(t, 3)

	if s.Retreat() {
		t.Error("Retreat at first question should not move")
	}
	if !s.Advance() || !s.Advance() {
		t.Fatal("expected two advances to succeed")
	}
	if s.Index() != 2 {
		t.Fatalf("expected index 2, got %d", s.Index())
	}
	if s.Advance() {
		t.Error("Advance at last question should not move")
	}
	if s.Index() != 2 {
		t.Errorf("cursor moved past the end: %d", s.Index())
	}
}

func TestRetreatReopensPreviousQuestion(t *testing.T) {
	s := newTestStore(t, 3)
	s.SelectAnswer("q1", "a")
	if err := s.Reveal("q1"); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	s.Advance()

	if !s.Retreat() {
		t.Fatal("expected Retreat to move")
	}
	if s.RevealState("q1") != Hidden {
		t.Errorf("expected q1 hidden after retreat, got %s", s.RevealState("q1"))
	}
	if s.ChatAttached("q1") {
		t.Error("expected q1 chat to be detached after retreat")
	}
	if got, _ := s.Answer("q1"); got != "a" {
		t.Errorf("expected answer kept, got %q", got)
	}
	if !s.SelectAnswer("q1", "b") {
		t.Error("expected reopened question to accept a new answer")
	}
}

func TestIsComplete(t *testing.T) {
	s := newTestStore(t, 2)
	if s.IsComplete() {
		t.Error("fresh session should not be complete")
	}
	s.Advance()
	if s.IsComplete() {
		t.Error("unrevealed last question should not be complete")
	}
	s.SelectAnswer("q2", "c")
	_ = s.Reveal("q2")
	if !s.IsComplete() {
		t.Error("expected complete once last question is revealed")
	}
}

func TestAnswersInQuestionOrder(t *testing.T) {
	s := newTestStore(t, 3)
	s.SelectAnswer("q3", "c")
	s.SelectAnswer("q1", "a")

	got := s.Answers()
	want := []model.AnswerSubmission{
		{QuestionID: "q1", SelectedOption: "a"},
		{QuestionID: "q3", SelectedOption: "c"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d answers, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("answer %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}
