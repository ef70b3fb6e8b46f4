package model

import (
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

const (
	MinSignificance = 1
	MaxSignificance = 10
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// OwnerID identifies the user a memory stream belongs to
type OwnerID string

// Validate checks that the owner can be used as a Firestore document ID
func (x OwnerID) Validate() error {
	if x == "" {
		return goerr.Wrap(ErrInvalidOwner, "owner is empty")
	}
	if strings.Contains(string(x), "/") || x == "." || x == ".." {
		return goerr.Wrap(ErrInvalidOwner, "owner contains forbidden characters", goerr.V("owner", x))
	}
	return nil
}

type MemoryKind string

const (
	MemoryKindUserMessage     MemoryKind = "userMessage"
	MemoryKindAgentReflection MemoryKind = "agentReflection"
	MemoryKindAgentMessage    MemoryKind = "agentMessage"
)

// Validate checks if the kind is valid
func (k MemoryKind) Validate() error {
	switch k {
	case MemoryKindUserMessage, MemoryKindAgentReflection, MemoryKindAgentMessage:
		return nil
	default:
		return goerr.Wrap(ErrInvalidKind, "unknown memory kind", goerr.V("kind", k))
	}
}

// ValidateSignificance accepts nil (unclassified) or an integer in [1,10]
func ValidateSignificance(s *int) error {
	if s == nil {
		return nil
	}
	if *s < MinSignificance || *s > MaxSignificance {
		return goerr.Wrap(ErrInvalidSignificance, "significance out of range", goerr.V("significance", *s))
	}
	return nil
}

// Memory is one record of a user's memory stream. Only LastAccessedAt changes
// after creation.
type Memory struct {
	ID                MemoryID           `json:"id"`
	Owner             OwnerID            `json:"owner"`
	Kind              MemoryKind         `json:"kind"`
	Text              string             `json:"text"`
	Embedding         firestore.Vector32 `json:"embedding"`
	Significance      *int               `json:"significance"`
	TriggeredMemories string             `json:"triggered_memories,omitempty" firestore:",omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	LastAccessedAt    time.Time          `json:"last_accessed_at"`
}

// Validate checks the invariants a record must satisfy before it is stored
func (m *Memory) Validate() error {
	if m.ID == "" {
		return goerr.New("memory ID is empty")
	}
	if err := m.Owner.Validate(); err != nil {
		return err
	}
	if err := m.Kind.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Text) == "" {
		return goerr.Wrap(ErrEmptyText, "memory text is required", goerr.V("id", m.ID))
	}
	if len(m.Embedding) == 0 {
		return goerr.Wrap(ErrEmptyVector, "memory embedding is required", goerr.V("id", m.ID))
	}
	if err := ValidateSignificance(m.Significance); err != nil {
		return err
	}
	// zero LastAccessedAt is a legacy record that was never bumped
	if !m.LastAccessedAt.IsZero() && m.LastAccessedAt.Before(m.CreatedAt) {
		return goerr.New("last accessed time precedes creation time",
			goerr.V("created_at", m.CreatedAt),
			goerr.V("last_accessed_at", m.LastAccessedAt))
	}
	return nil
}

// Copy returns a deep copy so that callers cannot mutate stored state
func (m *Memory) Copy() *Memory {
	c := *m
	if m.Embedding != nil {
		c.Embedding = make(firestore.Vector32, len(m.Embedding))
		copy(c.Embedding, m.Embedding)
	}
	if m.Significance != nil {
		s := *m.Significance
		c.Significance = &s
	}
	return &c
}

// ScoredMemory is one entry of a ranked retrieval result
type ScoredMemory struct {
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
	Decay      float64 `json:"decay"`
	Memory     *Memory `json:"memory"`
}
