package model

import (
	"time"
)

// CoordinationResult is what the coordinator returns on success
type CoordinationResult struct {
	ConversationID string                     `json:"conversation_id"`
	Synthesis      string                     `json:"synthesis"`
	Plan           *CoordinatorPlan           `json:"plan"`
	Results        map[AgentType]*AgentOutput `json:"results"`
	MemoryContext  string                     `json:"memory_context,omitempty"`
	StepsUsed      int                        `json:"steps_used"`
	Duration       time.Duration              `json:"duration"`
}

// MemoryResult is the result of the memory agent
type MemoryResult struct {
	Operation string          `json:"operation"`
	MemoryID  MemoryID        `json:"memory_id,omitempty"`
	Enriched  bool            `json:"enriched,omitempty"`
	Memories  []*ScoredMemory `json:"memories,omitempty"`
	Context   string          `json:"context,omitempty"`
}

// SynthesisResult is the result of the synthesis agent
type SynthesisResult struct {
	Synthesis   string   `json:"synthesis"`
	SourceCount int      `json:"source_count"`
	Sources     []string `json:"sources"`
}

// AgentConversation is the durable record of one coordination run. Results
// are kept out of the document store and written to the content store.
type AgentConversation struct {
	ID        string           `firestore:"id" json:"id"`
	ProjectID string           `firestore:"project_id" json:"project_id"`
	SessionID string           `firestore:"session_id" json:"session_id"`
	UserID    string           `firestore:"user_id,omitempty" json:"user_id,omitempty"`
	Query     string           `firestore:"query" json:"query"`
	Plan      *CoordinatorPlan `firestore:"plan" json:"plan"`
	Synthesis string           `firestore:"synthesis" json:"synthesis"`
	Success   bool             `firestore:"success" json:"success"`
	Error     string           `firestore:"error,omitempty" json:"error,omitempty"`
	Duration  time.Duration    `firestore:"duration" json:"duration"`
	CreatedAt time.Time        `firestore:"created_at" json:"created_at"`

	Results map[AgentType]*AgentOutput `firestore:"-" json:"results"`
}
