package controller

import (
	"errors"
	"fmt"
)

// Kind classifies controller failures by how they are recovered.
type Kind string

const (
	// LoadFailure: fetching or starting the exam failed; the session is blocked until Retry.
	LoadFailure Kind = "load"
	// ValidationFailure: an action was not allowed in the current state; nothing was sent.
	ValidationFailure Kind = "validation"
	// ChatSendFailure: a chat message was not delivered; the thread was rolled back.
	ChatSendFailure Kind = "chat"
	// SubmitFailure: the answers were not accepted; they are kept for Retry.
	SubmitFailure Kind = "submit"
)

var (
	ErrNotActive       = errors.New("session is not active")
	ErrNotRevealed     = errors.New("question is not revealed")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrChatPending     = errors.New("a message for this question is still being sent")
	ErrNothingToRetry  = errors.New("no failed operation to retry")
	ErrUnknownOption   = errors.New("option not selectable")
	ErrAnswerLocked    = errors.New("answer is locked after reveal")
	ErrSessionFinished = errors.New("session already finished")
)

// Error is a classified controller failure.
type Error struct {
	Kind Kind
	Op   string
	// Text is the user input to preserve for resubmission (chat failures).
	Text string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a controller Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func validation(op string, err error) *Error {
	return &Error{Kind: ValidationFailure, Op: op, Err: err}
}
