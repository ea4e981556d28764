package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type AgentType string

const (
	AgentTypeCoordinator AgentType = "coordinator"
	AgentTypeSearch      AgentType = "search"
	AgentTypeAnalysis    AgentType = "analysis"
	AgentTypeMemory      AgentType = "memory"
	AgentTypeSynthesis   AgentType = "synthesis"
)

// SpecialistAgentTypes lists the agents driven by the coordinator
var SpecialistAgentTypes = []AgentType{
	AgentTypeSearch,
	AgentTypeAnalysis,
	AgentTypeMemory,
	AgentTypeSynthesis,
}

type AgentStatus string

const (
	AgentStatusIdle      AgentStatus = "idle"
	AgentStatusPlanning  AgentStatus = "planning"
	AgentStatusExecuting AgentStatus = "executing"
	// AgentStatusWaiting is reserved for dependency-gated scheduling and is not
	// entered by the fixed pipeline.
	AgentStatusWaiting   AgentStatus = "waiting"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusFailed    AgentStatus = "failed"
)

// Scope is bound to each agent at initialization and filters every memory
// and search operation of the run.
type Scope struct {
	ProjectID          string   `json:"project_id"`
	SessionID          string   `json:"session_id"`
	UserID             string   `json:"user_id,omitempty"`
	ConversationID     string   `json:"conversation_id"`
	UserQuery          string   `json:"user_query"`
	ProjectName        string   `json:"project_name,omitempty"`
	ProjectDescription string   `json:"project_description,omitempty"`
	SelectedDataIDs    []string `json:"selected_data_ids,omitempty"`
}

// NewConversationID generates a new unique conversation ID
func NewConversationID() string {
	return uuid.New().String()
}

// TaskData carries loosely typed task parameters shared by all agents of a run
type TaskData map[string]any

// String returns the string value for key, or "" if absent or not a string
func (d TaskData) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Strings returns a string slice for key, accepting []string and []any
func (d TaskData) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Int returns an integer value for key or def when absent or unparsable
func (d TaskData) Int(key string, def int) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Float returns a float value for key or def when absent or unparsable
func (d TaskData) Float(key string, def float64) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// With returns a copy of d with key set to value
func (d TaskData) With(key string, value any) TaskData {
	out := make(TaskData, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	out[key] = value
	return out
}

// TaskInput is the payload of an agent invocation
type TaskInput struct {
	Task     string         `json:"task"`
	Data     TaskData       `json:"data,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
	Priority int            `json:"priority,omitempty"`
}

// OutputMetadata describes how an invocation went
type OutputMetadata struct {
	Duration   time.Duration `json:"duration"`
	TokensUsed int           `json:"tokens_used,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// AgentOutput is produced by every agent invocation. A failed output never
// carries a result.
type AgentOutput struct {
	Success  bool           `json:"success"`
	Result   any            `json:"result"`
	Metadata OutputMetadata `json:"metadata"`
}

// NewSuccessOutput creates a successful output
func NewSuccessOutput(result any, duration time.Duration) *AgentOutput {
	return &AgentOutput{
		Success:  true,
		Result:   result,
		Metadata: OutputMetadata{Duration: duration},
	}
}

// NewFailureOutput creates a failed output with a nil result
func NewFailureOutput(err error, duration time.Duration) *AgentOutput {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &AgentOutput{
		Success:  false,
		Result:   nil,
		Metadata: OutputMetadata{Duration: duration, Error: msg},
	}
}

type MessageType string

const (
	MessageTypeRequest  MessageType = "request"
	MessageTypeResponse MessageType = "response"
	MessageTypeUpdate   MessageType = "update"
	MessageTypeError    MessageType = "error"
)

// MessagePayload is the body of an AgentMessage
type MessagePayload struct {
	Task     string         `json:"task"`
	Data     any            `json:"data,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
	Priority int            `json:"priority,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// AgentMessage is the envelope for point-to-point delegation between agents.
// Messages are not modified after creation.
type AgentMessage struct {
	From           AgentType      `json:"from"`
	To             AgentType      `json:"to"`
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id"`
	Type           MessageType    `json:"type"`
	Payload        MessagePayload `json:"payload"`
	Timestamp      time.Time      `json:"timestamp"`
}

// NewAgentMessage creates a message with a fresh ID and the current time
func NewAgentMessage(from, to AgentType, conversationID string, msgType MessageType, payload MessagePayload) *AgentMessage {
	return &AgentMessage{
		From:           from,
		To:             to,
		MessageID:      uuid.New().String(),
		ConversationID: conversationID,
		Type:           msgType,
		Payload:        payload,
		Timestamp:      time.Now(),
	}
}
