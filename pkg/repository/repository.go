package repository

import (
	"context"
	"time"

	"github.com/phrazzld/judith/pkg/model"
)

// Repository is the persistence boundary for memory streams. Every operation
// is scoped by owner; implementations must never return records of another owner.
type Repository interface {
	// PutMemory appends a new record to the owner's stream. It fails with
	// model.ErrMemoryExists if the ID is already taken.
	PutMemory(ctx context.Context, memory *model.Memory) error

	// GetMemory retrieves a single record
	GetMemory(ctx context.Context, owner model.OwnerID, id model.MemoryID) (*model.Memory, error)

	// ListMemories returns the full stream of the owner. The order is stable
	// across calls so that score ties rank deterministically.
	ListMemories(ctx context.Context, owner model.OwnerID) ([]*model.Memory, error)

	// UpdateMemoryLastAccessed sets LastAccessedAt, the only mutable field
	UpdateMemoryLastAccessed(ctx context.Context, owner model.OwnerID, id model.MemoryID, at time.Time) error
}
