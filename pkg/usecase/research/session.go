package research

import (
	"context"
	"sync"

	"github.com/m-mizutani/conclave/pkg/model"
)

// Turn is one question and answer of a session
type Turn struct {
	Query  string
	Result *model.CoordinationResult
	Err    error
}

// Session runs successive queries under one session ID so that session
// memories carry over between them
type Session struct {
	uc    *UseCase
	base  AskInput
	mu    sync.Mutex
	turns []Turn
}

// NewSession starts a session. base.Query is ignored; an empty SessionID is
// generated.
func (u *UseCase) NewSession(base AskInput) *Session {
	if base.SessionID == "" {
		base.SessionID = model.NewConversationID()
	}
	base.Query = ""
	return &Session{uc: u, base: base}
}

func (s *Session) ID() string {
	return s.base.SessionID
}

// Ask runs one query in the session
func (s *Session) Ask(ctx context.Context, query string) (*model.CoordinationResult, error) {
	input := s.base
	input.Query = query
	result, err := s.uc.Ask(ctx, input)

	s.mu.Lock()
	s.turns = append(s.turns, Turn{Query: query, Result: result, Err: err})
	s.mu.Unlock()

	return result, err
}

// Turns returns the queries asked so far
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}
