// Package chat keeps one tutoring conversation per exam question and offers
// the optimistic append / commit / rollback primitive used when sending
// messages. It performs no I/O and is not safe for concurrent use.
package chat

import (
	"slices"

	"github.com/pavelanni/examcoach/internal/model"
)

// Thread is the state of one question's conversation.
type Thread struct {
	RemoteID string
	Messages []model.ChatMessage
}

// Started reports whether the backend has acknowledged the thread.
func (t Thread) Started() bool {
	return t.RemoteID != ""
}

// Token identifies an optimistic append so it can be undone.
type Token struct {
	questionID string
	seq        uint64
	snapshot   []model.ChatMessage
}

// QuestionID returns the question the append was made to.
func (t Token) QuestionID() string {
	return t.questionID
}

type entry struct {
	remoteID string
	messages []model.ChatMessage
	// seq increases on every mutation so stale tokens can be detected.
	seq uint64
}

// Cache maps question ids to independent threads.
type Cache struct {
	threads map[string]*entry
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{threads: make(map[string]*entry)}
}

func (c *Cache) entry(questionID string) *entry {
	e, ok := c.threads[questionID]
	if !ok {
		e = &entry{}
		c.threads[questionID] = e
	}
	return e
}

// Thread returns a copy of the question's thread; unseen questions yield an
// empty thread.
func (c *Cache) Thread(questionID string) Thread {
	e, ok := c.threads[questionID]
	if !ok {
		return Thread{}
	}
	return Thread{RemoteID: e.remoteID, Messages: slices.Clone(e.messages)}
}

// AppendOptimistic adds msg to the question's log before the server has
// confirmed it and returns the token that undoes the append.
func (c *Cache) AppendOptimistic(questionID string, msg model.ChatMessage) Token {
	e := c.entry(questionID)
	snapshot := slices.Clone(e.messages)
	e.messages = append(slices.Clone(e.messages), msg)
	e.seq++
	return Token{questionID: questionID, seq: e.seq, snapshot: snapshot}
}

// Commit replaces the question's log with the server-confirmed one. An empty
// remoteID keeps the thread id already recorded.
func (c *Cache) Commit(questionID, remoteID string, log []model.ChatMessage) {
	e := c.entry(questionID)
	if remoteID != "" {
		e.remoteID = remoteID
	}
	e.messages = slices.Clone(log)
	e.seq++
}

// Rollback restores the log captured by tok. It reports false and changes
// nothing when the thread was mutated after the append, including by an
// earlier Rollback with the same token.
func (c *Cache) Rollback(questionID string, tok Token) bool {
	e, ok := c.threads[questionID]
	if !ok || tok.questionID != questionID || tok.seq != e.seq {
		return false
	}
	e.messages = slices.Clone(tok.snapshot)
	e.seq++
	return true
}
