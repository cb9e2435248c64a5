package views

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/examcoach/internal/controller"
	appI18n "github.com/pavelanni/examcoach/internal/i18n"
	"github.com/pavelanni/examcoach/internal/model"
)

func renderCtx(t *testing.T) context.Context {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer("en"))
	ctx = model.ContextWithBasePath(ctx, "/pt")
	return model.ContextWithCSRFToken(ctx, "tok123")
}

func renderString(t *testing.T, ctx context.Context, c interface {
	Render(context.Context, io.Writer) error
}) string {
	t.Helper()
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		t.Fatalf("render: %v", err)
	}
	return sb.String()
}

func activeSnapshot() controller.Snapshot {
	return controller.Snapshot{
		State:  controller.StateActive,
		ExamID: "exam_1",
		Title:  "Quick Exam",
		Index:  0,
		Total:  3,
		Question: model.Question{
			ID:      "q1",
			Text:    "Is 1 < 2?",
			Options: []model.Option{{ID: "a", Text: "yes"}, {ID: "b", Text: "no"}},
		},
		Selected: "b",
	}
}

func TestExamPageHidden(t *testing.T) {
	ctx := renderCtx(t)
	out := renderString(t, ctx, ExamPage(activeSnapshot()))

	for _, want := range []string{
		"Question 1 of 3",
		"Is 1 &lt; 2?",
		`action="/pt/exams/exam_1/answer"`,
		`formaction="/pt/exams/exam_1/reveal"`,
		`name="csrf_token" value="tok123"`,
		`value="b" checked`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
	for _, unwanted := range []string{"Ask the tutor", "/exams/exam_1/next", "/exams/exam_1/prev"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("did not expect %q before reveal", unwanted)
		}
	}
}

func TestExamPageRevealed(t *testing.T) {
	ctx := renderCtx(t)
	snap := activeSnapshot()
	snap.Index = 2
	snap.IsLast = true
	snap.Revealed = true
	snap.Question.CorrectAnswer = "a"
	snap.Question.Explanation = "One is smaller."
	snap.Question.PossibleQuestions = []string{"Why?"}
	snap.ChatError = &controller.Error{Kind: controller.ChatSendFailure, Text: "my <draft>", Err: errors.New("down")}
	snap.HasDeadline = true
	snap.Remaining = 5*time.Minute + 10*time.Second

	out := renderString(t, ctx, ExamPage(snap))
	for _, want := range []string{
		"Not quite.",
		"Correct answer: a",
		"One is smaller.",
		"Your message was not delivered.",
		"my &lt;draft&gt;</textarea>",
		"Suggested questions",
		"5 min left",
		"Finish",
		"/pt/exams/exam_1/prev",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
}

func TestExamPageChat(t *testing.T) {
	ctx := renderCtx(t)
	snap := activeSnapshot()
	snap.Revealed = true
	snap.Correct = true
	snap.Selected = "a"
	snap.Question.CorrectAnswer = "a"
	snap.ChatStarted = true
	snap.ChatPending = true
	snap.Chat = []model.ChatMessage{
		{Content: "why?", Author: model.AuthorUser},
		{Content: "because", Author: model.AuthorAssistant},
	}

	out := renderString(t, ctx, ExamPage(snap))
	for _, want := range []string{"Correct!", "You:</strong> why?", "Tutor:</strong> because", "The tutor is answering..."} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
	if strings.Contains(out, "<textarea") {
		t.Error("no new message while one is pending")
	}
}

func TestExamPageStates(t *testing.T) {
	ctx := renderCtx(t)
	tests := []struct {
		name string
		snap controller.Snapshot
		want string
	}{
		{"loading", controller.Snapshot{State: controller.StateLoading}, "Loading the exam..."},
		{"submitting", controller.Snapshot{State: controller.StateSubmitting}, "Submitting your answers..."},
		{"load error", controller.Snapshot{State: controller.StateError, ExamID: "e", Err: &controller.Error{Kind: controller.LoadFailure}}, "could not be loaded"},
		{"submit error", controller.Snapshot{State: controller.StateError, ExamID: "e", Err: &controller.Error{Kind: controller.SubmitFailure}}, "could not be submitted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := renderString(t, ctx, ExamPage(tt.snap))
			if !strings.Contains(out, tt.want) {
				t.Errorf("expected %q in output", tt.want)
			}
		})
	}
}

func TestResultPage(t *testing.T) {
	ctx := renderCtx(t)
	out := renderString(t, ctx, ResultPage(controller.Snapshot{
		State:  controller.StateCompleted,
		Result: &model.SubmitResult{Score: 66.7, CorrectAnswers: 2, TotalQuestions: 3, TimeSpent: 125},
	}))
	for _, want := range []string{"Score: 66.7%", "2 of 3 correct", "Time spent: 2 min 5 s", `href="/pt/"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
}

func TestIndexPage(t *testing.T) {
	ctx := renderCtx(t)
	out := renderString(t, ctx, IndexPage([]string{"human_sciences"}, []model.ExamSummary{
		{ID: "exam_a", Title: "Quick Exam", Status: model.ExamInProgress},
		{ID: "exam_b", Title: "Old Exam", Status: model.ExamCompleted, Result: &model.SubmitResult{Score: 80}},
	}, ""))
	for _, want := range []string{"human sciences", `href="/pt/exams/exam_a"`, "Score: 80%"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
	if strings.Contains(out, "/exams/exam_b") {
		t.Error("completed exams should not link to a session")
	}
}

func TestLoginPage(t *testing.T) {
	ctx := renderCtx(t)
	tests := []struct {
		name     string
		errMsg   string
		want     []string
		unwanted []string
	}{
		{
			name:     "no error",
			want:     []string{"<!doctype html>", `<html lang="en">`, "<title>ExamCoach</title>", `action="/pt/login"`},
			unwanted: []string{`class="error"`, "Log out"},
		},
		{
			name:   "escaped error",
			errMsg: "bad <b>input</b>",
			want:   []string{`<p class="error">bad &lt;b&gt;input&lt;/b&gt;</p>`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := renderString(t, ctx, LoginPage(tt.errMsg))
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("expected output to contain %q", want)
				}
			}
			for _, unwanted := range tt.unwanted {
				if strings.Contains(out, unwanted) {
					t.Errorf("did not expect %q", unwanted)
				}
			}
		})
	}
}

func TestLayoutTitleEscaped(t *testing.T) {
	ctx := renderCtx(t)
	snap := activeSnapshot()
	snap.Title = "A & B"
	out := renderString(t, ctx, ExamPage(snap))
	for _, want := range []string{"<title>A &amp; B | ExamCoach</title>", "<h1>A &amp; B</h1>", `action="/pt/logout"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
}
