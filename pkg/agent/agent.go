package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/conclave/pkg/adapter"
	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/repository"
	"github.com/m-mizutani/conclave/pkg/usecase/memory"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrUnknownAgentType  = goerr.New("unknown agent type")
	ErrNotInitialized    = goerr.New("agent is not initialized")
	ErrWebSearchDisabled = goerr.New("web search is disabled")
	ErrAgentUnavailable  = goerr.New("agent is not available")
)

// Agent is a unit of work with a uniform lifecycle. Execute and HandleMessage
// are two surfaces of the same operation.
type Agent interface {
	Type() model.AgentType
	Status() model.AgentStatus

	// Initialize binds the run scope. It must be called before Execute.
	Initialize(ctx context.Context, scope *model.Scope) error

	// Execute runs a task. Failures are reported in the output, never returned.
	Execute(ctx context.Context, input *model.TaskInput) *model.AgentOutput

	// HandleMessage unwraps a request envelope, runs Execute and wraps the
	// output into a response or error message.
	HandleMessage(ctx context.Context, msg *model.AgentMessage) *model.AgentMessage

	// Cleanup resets the agent to idle and releases the scope. Safe to call
	// multiple times.
	Cleanup(ctx context.Context)
}

// Dependencies are the collaborators shared by agents of a run. Agents check
// the fields they need when they are created.
type Dependencies struct {
	Repo       repository.Repository
	Memory     *memory.UseCase
	Embedder   interfaces.Embedder
	Generator  interfaces.TextGenerator
	WebSearch  interfaces.WebSearcher // nil disables web search
	Compressor interfaces.ImageCompressor
	Storage    adapter.Storage
}

type dispatchFunc func(ctx context.Context, input *model.TaskInput) (any, error)

// base implements the lifecycle shared by every agent variant. Variants only
// provide a dispatch function.
type base struct {
	agentType model.AgentType
	dispatch  dispatchFunc

	mu     sync.RWMutex
	status model.AgentStatus
	scope  *model.Scope
}

func (b *base) init(t model.AgentType, dispatch dispatchFunc) {
	b.agentType = t
	b.dispatch = dispatch
	b.status = model.AgentStatusIdle
}

func (b *base) Type() model.AgentType {
	return b.agentType
}

func (b *base) Status() model.AgentStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *base) setStatus(s model.AgentStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// Scope returns the bound scope or nil before Initialize
func (b *base) Scope() *model.Scope {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scope
}

// Initialize binds the scope. Calling it again while a scope is bound is a
// no-op; Cleanup releases the binding.
func (b *base) Initialize(ctx context.Context, scope *model.Scope) error {
	_, err := b.bind(scope)
	return err
}

// bind binds scope unless one is already bound and reports whether it did
func (b *base) bind(scope *model.Scope) (bool, error) {
	if scope == nil {
		return false, goerr.New("scope is required", goerr.V("agent", b.agentType))
	}
	if scope.ProjectID == "" {
		return false, goerr.New("project ID is required", goerr.V("agent", b.agentType))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scope != nil {
		return false, nil
	}
	s := *scope
	b.scope = &s
	b.status = model.AgentStatusPlanning
	return true, nil
}

func (b *base) unbind(status model.AgentStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scope = nil
	b.status = status
}

func (b *base) Execute(ctx context.Context, input *model.TaskInput) (output *model.AgentOutput) {
	start := time.Now()
	if b.Scope() == nil {
		return model.NewFailureOutput(goerr.Wrap(ErrNotInitialized, "execute called before initialize", goerr.V("agent", b.agentType)), time.Since(start))
	}
	if input == nil {
		input = &model.TaskInput{}
	}

	logger := logging.From(ctx).With("agent", b.agentType)
	b.setStatus(model.AgentStatusExecuting)

	defer func() {
		if r := recover(); r != nil {
			err := goerr.New(fmt.Sprintf("panic in agent: %v", r), goerr.V("agent", b.agentType))
			logger.Error("agent panicked", "error", err)
			b.setStatus(model.AgentStatusFailed)
			output = model.NewFailureOutput(err, time.Since(start))
		}
	}()

	result, err := b.dispatch(ctx, input)
	if err != nil {
		logger.Warn("agent task failed", "task", input.Task, "error", err)
		b.setStatus(model.AgentStatusFailed)
		return model.NewFailureOutput(err, time.Since(start))
	}

	b.setStatus(model.AgentStatusCompleted)
	logger.Debug("agent task completed", "task", input.Task, "duration", time.Since(start))
	return model.NewSuccessOutput(result, time.Since(start))
}

func (b *base) HandleMessage(ctx context.Context, msg *model.AgentMessage) *model.AgentMessage {
	if msg == nil {
		return model.NewAgentMessage(b.agentType, "", "", model.MessageTypeError, model.MessagePayload{
			Error: "message is required",
		})
	}

	output := b.Execute(ctx, &model.TaskInput{
		Task:     msg.Payload.Task,
		Data:     toTaskData(msg.Payload.Data),
		Context:  msg.Payload.Context,
		Priority: msg.Payload.Priority,
	})

	return replyFor(b.agentType, msg, output)
}

func (b *base) Cleanup(ctx context.Context) {
	b.unbind(model.AgentStatusIdle)
}

// replyFor wraps an output into the response envelope of msg
func replyFor(from model.AgentType, msg *model.AgentMessage, output *model.AgentOutput) *model.AgentMessage {
	payload := model.MessagePayload{
		Task:     msg.Payload.Task,
		Data:     output.Result,
		Context:  msg.Payload.Context,
		Priority: msg.Payload.Priority,
	}
	msgType := model.MessageTypeResponse
	if !output.Success {
		msgType = model.MessageTypeError
		payload.Error = output.Metadata.Error
	}
	return model.NewAgentMessage(from, msg.From, msg.ConversationID, msgType, payload)
}

func toTaskData(v any) model.TaskData {
	switch d := v.(type) {
	case model.TaskData:
		return d
	case map[string]any:
		return model.TaskData(d)
	}
	return nil
}

// outputFromReply converts a reply envelope back into an AgentOutput
func outputFromReply(reply *model.AgentMessage, duration time.Duration) *model.AgentOutput {
	if reply == nil {
		return model.NewFailureOutput(goerr.New("no reply from agent"), duration)
	}
	if reply.Type == model.MessageTypeError {
		return model.NewFailureOutput(goerr.New(reply.Payload.Error, goerr.V("agent", reply.From)), duration)
	}
	return model.NewSuccessOutput(reply.Payload.Data, duration)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
