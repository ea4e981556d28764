package agent

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
)

const DefaultMaxSteps = 20

// State is the bookkeeping of one coordination run. It is owned by the
// coordinator and discarded after the run.
type State struct {
	mu sync.Mutex

	conversationID string
	activeAgents   map[model.AgentType]model.AgentStatus
	messageQueue   []*model.AgentMessage
	results        map[model.AgentType]*model.AgentOutput
	startTime      time.Time
	currentStep    int
	maxSteps       int
}

func NewState(conversationID string, maxSteps int) *State {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &State{
		conversationID: conversationID,
		activeAgents:   make(map[model.AgentType]model.AgentStatus),
		results:        make(map[model.AgentType]*model.AgentOutput),
		startTime:      time.Now(),
		maxSteps:       maxSteps,
	}
}

func (s *State) ConversationID() string {
	return s.conversationID
}

// RouteMessage records a delegated message and consumes one step
func (s *State) RouteMessage(ctx context.Context, msg *model.AgentMessage) int {
	s.mu.Lock()
	s.messageQueue = append(s.messageQueue, msg)
	s.currentStep++
	step := s.currentStep
	s.mu.Unlock()

	if step > s.maxSteps {
		logging.From(ctx).Warn("step budget exceeded",
			"conversation_id", s.conversationID,
			"step", step,
			"max_steps", s.maxSteps)
	}
	return step
}

// HasBudget reports whether another step can be taken
func (s *State) HasBudget() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStep < s.maxSteps
}

func (s *State) SetStatus(t model.AgentType, status model.AgentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeAgents[t] = status
}

func (s *State) AgentStatus(t model.AgentType) (model.AgentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.activeAgents[t]
	return status, ok
}

// SetResult stores the output of an agent type, replacing any previous one
func (s *State) SetResult(t model.AgentType, out *model.AgentOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[t] = out
	if out.Success {
		s.activeAgents[t] = model.AgentStatusCompleted
	} else {
		s.activeAgents[t] = model.AgentStatusFailed
	}
}

func (s *State) Results() map[model.AgentType]*model.AgentOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.results)
}

func (s *State) Messages() []*model.AgentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messageQueue)
}

func (s *State) CurrentStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStep
}

func (s *State) MaxSteps() int {
	return s.maxSteps
}

func (s *State) Elapsed() time.Duration {
	return time.Since(s.startTime)
}
