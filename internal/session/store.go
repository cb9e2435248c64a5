// Package session holds the question list of an exam and the user's progress
// through it. It performs no I/O and is not safe for concurrent use; the
// owning controller serializes access.
package session

import (
	"errors"

	"github.com/pavelanni/examcoach/internal/model"
)

var (
	// ErrNotReady is returned when no exam with questions is loaded.
	ErrNotReady = errors.New("session not ready")
	// ErrNotAnswered is returned when revealing a question without an answer.
	ErrNotAnswered = errors.New("question not answered")
)

// RevealState tells whether a question's correctness and explanation are shown.
type RevealState int

const (
	Hidden RevealState = iota
	Revealed
)

func (r RevealState) String() string {
	if r == Revealed {
		return "revealed"
	}
	return "hidden"
}

// Store is the authoritative holder of one exam session's progress.
type Store struct {
	exam    *model.Exam
	index   int
	answers map[string]string
	reveals map[string]RevealState
	// attached marks questions whose chat thread is shown alongside them.
	attached map[string]bool
}

// New returns an empty store that is not ready until Load succeeds.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.exam = nil
	s.index = 0
	s.answers = make(map[string]string)
	s.reveals = make(map[string]RevealState)
	s.attached = make(map[string]bool)
}

// Load replaces the whole session state with exam.
func (s *Store) Load(exam *model.Exam) error {
	s.reset()
	if exam == nil || len(exam.Questions) == 0 {
		return ErrNotReady
	}
	cp := *exam
	cp.Questions = append([]model.Question(nil), exam.Questions...)
	s.exam = &cp
	return nil
}

// Ready reports whether a full question list is loaded.
func (s *Store) Ready() bool {
	return s.exam != nil
}

// Exam returns a copy of the loaded exam.
func (s *Store) Exam() (model.Exam, error) {
	if !s.Ready() {
		return model.Exam{}, ErrNotReady
	}
	cp := *s.exam
	cp.Questions = append([]model.Question(nil), s.exam.Questions...)
	return cp, nil
}

// Len returns the number of questions, 0 when not ready.
func (s *Store) Len() int {
	if !s.Ready() {
		return 0
	}
	return len(s.exam.Questions)
}

// Index returns the cursor position.
func (s *Store) Index() int {
	return s.index
}

// Current returns the question under the cursor.
func (s *Store) Current() (model.Question, error) {
	if !s.Ready() {
		return model.Question{}, ErrNotReady
	}
	return s.exam.Questions[s.index], nil
}

func (s *Store) question(id string) (model.Question, bool) {
	if !s.Ready() {
		return model.Question{}, false
	}
	for _, q := range s.exam.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return model.Question{}, false
}

// SelectAnswer records optionID for the question, overwriting a prior choice.
// It is a no-op returning false once the question is revealed, or when the
// question or option is unknown.
func (s *Store) SelectAnswer(questionID, optionID string) bool {
	q, ok := s.question(questionID)
	if !ok || !q.HasOption(optionID) {
		return false
	}
	if s.reveals[questionID] == Revealed {
		return false
	}
	s.answers[questionID] = optionID
	return true
}

// Answer returns the recorded option for a question.
func (s *Store) Answer(questionID string) (string, bool) {
	a, ok := s.answers[questionID]
	return a, ok
}

// Reveal shows the correctness of an answered question and attaches its chat.
func (s *Store) Reveal(questionID string) error {
	if _, ok := s.question(questionID); !ok {
		return ErrNotReady
	}
	if _, ok := s.answers[questionID]; !ok {
		return ErrNotAnswered
	}
	s.reveals[questionID] = Revealed
	s.attached[questionID] = true
	return nil
}

// RevealState returns the reveal state; unseen questions are hidden.
func (s *Store) RevealState(questionID string) RevealState {
	return s.reveals[questionID]
}

// ChatAttached reports whether the question's chat thread is on display.
func (s *Store) ChatAttached(questionID string) bool {
	return s.attached[questionID]
}

// Advance moves the cursor forward and reports whether it moved.
func (s *Store) Advance() bool {
	if !s.Ready() || s.index >= len(s.exam.Questions)-1 {
		return false
	}
	s.index++
	return true
}

// Retreat moves the cursor back and reopens the destination question for
// practice: its reveal state returns to hidden and its chat is detached.
// The recorded answer is kept.
func (s *Store) Retreat() bool {
	if !s.Ready() || s.index == 0 {
		return false
	}
	s.index--
	id := s.exam.Questions[s.index].ID
	delete(s.reveals, id)
	delete(s.attached, id)
	return true
}

// IsComplete reports whether the last question is under the cursor and revealed.
func (s *Store) IsComplete() bool {
	if !s.Ready() || s.index != len(s.exam.Questions)-1 {
		return false
	}
	return s.reveals[s.exam.Questions[s.index].ID] == Revealed
}

// Answers returns the recorded answers in question order.
func (s *Store) Answers() []model.AnswerSubmission {
	if !s.Ready() {
		return nil
	}
	out := make([]model.AnswerSubmission, 0, len(s.answers))
	for _, q := range s.exam.Questions {
		if a, ok := s.answers[q.ID]; ok {
			out = append(out, model.AnswerSubmission{QuestionID: q.ID, SelectedOption: a})
		}
	}
	return out
}
