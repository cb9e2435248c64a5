// Package views renders the exam front end's HTML pages as templ components.
// Run `templ generate` after editing a .templ file.
package views

import (
	"context"
	"strconv"
	"strings"

	"github.com/pavelanni/examcoach/internal/controller"
	appI18n "github.com/pavelanni/examcoach/internal/i18n"
	"github.com/pavelanni/examcoach/internal/model"
)

// ErrorMessageID returns the translation ID describing a controller failure.
func ErrorMessageID(e *controller.Error) string {
	switch e.Kind {
	case controller.LoadFailure:
		return "ErrorLoad"
	case controller.SubmitFailure:
		return "ErrorSubmit"
	default:
		return "ErrorChat"
	}
}

// appURL prefixes an application path with the deployment base path.
func appURL(ctx context.Context, path string) string {
	return model.BasePathFromContext(ctx) + path
}

func pageTitle(ctx context.Context, title string) string {
	if title == "" {
		return appI18n.T(ctx, "AppTitle")
	}
	return title + " | " + appI18n.T(ctx, "AppTitle")
}

type examTypeOption struct {
	Value model.ExamType
	Label string
}

var examTypes = []examTypeOption{
	{model.ExamTypeQuick, "ExamTypeQuick"},
	{model.ExamTypeComplete, "ExamTypeComplete"},
	{model.ExamTypeCustom, "ExamTypeCustom"},
	{model.ExamTypeInteractive, "ExamTypeInteractive"},
}

func subjectLabel(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// resumable reports whether a history entry can still be opened as a session.
func resumable(e model.ExamSummary) bool {
	return e.Status == model.ExamReady || e.Status == model.ExamInProgress
}

// optionClass marks the correct option and a wrong selection once revealed.
func optionClass(o model.Option, snap controller.Snapshot) string {
	switch {
	case o.ID == snap.Question.CorrectAnswer:
		return "option correct"
	case o.ID == snap.Selected:
		return "option incorrect"
	}
	return "option"
}

func optionLabel(o model.Option) string {
	return o.ID + ") " + o.Text
}

func examPath(snap controller.Snapshot, action string) string {
	return "/exams/" + snap.ExamID + action
}

func authorLabel(ctx context.Context, m model.ChatMessage) string {
	if m.Author == model.AuthorUser {
		return appI18n.T(ctx, "You")
	}
	return appI18n.T(ctx, "Tutor")
}

// chatDraft restores the text of a message that failed to send.
func chatDraft(snap controller.Snapshot) string {
	if snap.ChatError == nil {
		return ""
	}
	return snap.ChatError.Text
}
