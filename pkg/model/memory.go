package model

import (
	"slices"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidMemoryType = goerr.New("invalid memory type")
	ErrInvalidConfidence = goerr.New("confidence must be between 0 and 1")
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

type MemoryType string

const (
	MemoryTypeFact       MemoryType = "fact"
	MemoryTypePreference MemoryType = "preference"
	MemoryTypePattern    MemoryType = "pattern"
	MemoryTypeInsight    MemoryType = "insight"
)

// Validate checks if the memory type is valid
func (t MemoryType) Validate() error {
	switch t {
	case MemoryTypeFact, MemoryTypePreference, MemoryTypePattern, MemoryTypeInsight:
		return nil
	default:
		return goerr.Wrap(ErrInvalidMemoryType, "unknown memory type", goerr.V("type", t))
	}
}

// ValidateConfidence checks the [0,1] range of a confidence value
func ValidateConfidence(c float64) error {
	if c < 0 || c > 1 {
		return goerr.Wrap(ErrInvalidConfidence, "confidence out of range", goerr.V("confidence", c))
	}
	return nil
}

// MemoryMetadata holds bookkeeping that changes over a memory's lifetime
type MemoryMetadata struct {
	Source       string    `firestore:"source" json:"source"`
	Confidence   float64   `firestore:"confidence" json:"confidence"`
	AccessCount  int64     `firestore:"access_count" json:"access_count"`
	LastAccessed time.Time `firestore:"last_accessed" json:"last_accessed"`
}

// Memory is an associative memory record scoped to a project. Embedding is
// computed once on creation and never regenerated; enrichment only touches
// Content, Metadata.Confidence, Tags and RelatedMemories.
type Memory struct {
	ID              MemoryID           `firestore:"id" json:"id"`
	ScopeID         string             `firestore:"scope_id" json:"scope_id"`
	SessionID       string             `firestore:"session_id" json:"session_id"`
	UserID          string             `firestore:"user_id,omitempty" json:"user_id,omitempty"`
	Type            MemoryType         `firestore:"type" json:"type"`
	Content         string             `firestore:"content" json:"content"`
	Embedding       firestore.Vector32 `firestore:"embedding" json:"-"`
	Metadata        MemoryMetadata     `firestore:"metadata" json:"metadata"`
	RelatedMemories []string           `firestore:"related_memories" json:"related_memories"`
	Tags            []string           `firestore:"tags" json:"tags"`
	CreatedAt       time.Time          `firestore:"created_at" json:"created_at"`
	ExpiresAt       *time.Time         `firestore:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// IsExpired reports whether the memory has an expiry in the past relative to now
func (m *Memory) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// ScoredMemory pairs a memory with its similarity score for a query
type ScoredMemory struct {
	Memory *Memory `json:"memory"`
	Score  float64 `json:"score"`
}

// UnionStrings appends values from add that are not yet in base, keeping order
func UnionStrings(base []string, add ...string) []string {
	out := slices.Clone(base)
	for _, v := range add {
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
