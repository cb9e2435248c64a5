package api

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pavelanni/examcoach/internal/model"
)

// examTitle names an exam after its type and content selection.
func examTitle(req model.CreateExamRequest) string {
	var title string
	switch req.ExamType {
	case model.ExamTypeComplete:
		title = "Complete Exam"
	case model.ExamTypeQuick:
		title = "Quick Exam"
	default:
		title = "Custom Exam"
	}

	sel := req.ContentSelection
	switch sel.Method {
	case model.ContentBySubject:
		if sel.Subject != "" && sel.Subject != "all" {
			title += " - " + cases.Title(language.English).String(strings.ReplaceAll(sel.Subject, "_", " "))
		}
	case model.ContentByTopic:
		if topic := strings.TrimSpace(sel.CustomTopic); topic != "" {
			title += " - " + topic
		}
	}
	return title
}
