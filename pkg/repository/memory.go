package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/model"
)

// Memory is an in-process repository. Records are kept in an append-only arena
// per owner; LastAccessedAt is the only field written after insertion and is
// held in an atomic so bumps never take the stream lock for writing.
type Memory struct {
	mu      sync.RWMutex
	streams map[model.OwnerID]*stream
}

type stream struct {
	mu      sync.RWMutex
	entries []*entry
	index   map[model.MemoryID]int
}

type entry struct {
	memory       *model.Memory
	lastAccessed atomic.Int64
}

// NewMemory creates an empty in-process repository
func NewMemory() *Memory {
	return &Memory{
		streams: make(map[model.OwnerID]*stream),
	}
}

func (r *Memory) getStream(owner model.OwnerID, create bool) *stream {
	r.mu.RLock()
	s, ok := r.streams[owner]
	r.mu.RUnlock()
	if ok || !create {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.streams[owner]; ok {
		return s
	}
	s = &stream{index: make(map[model.MemoryID]int)}
	r.streams[owner] = s
	return s
}

func (e *entry) load() *model.Memory {
	m := e.memory.Copy()
	if ns := e.lastAccessed.Load(); ns != 0 {
		m.LastAccessedAt = time.Unix(0, ns).In(m.CreatedAt.Location())
	}
	return m
}

func (r *Memory) PutMemory(ctx context.Context, memory *model.Memory) error {
	if err := memory.Validate(); err != nil {
		return err
	}

	s := r.getStream(memory.Owner, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[memory.ID]; ok {
		return goerr.Wrap(model.ErrMemoryExists, "memory already exists",
			goerr.V("owner", memory.Owner), goerr.V("id", memory.ID))
	}

	e := &entry{memory: memory.Copy()}
	if !memory.LastAccessedAt.IsZero() {
		e.lastAccessed.Store(memory.LastAccessedAt.UnixNano())
	}
	s.index[memory.ID] = len(s.entries)
	s.entries = append(s.entries, e)

	return nil
}

func (r *Memory) GetMemory(ctx context.Context, owner model.OwnerID, id model.MemoryID) (*model.Memory, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	e := r.lookup(owner, id)
	if e == nil {
		return nil, goerr.Wrap(model.ErrMemoryNotFound, "memory not found",
			goerr.V("owner", owner), goerr.V("id", id))
	}
	return e.load(), nil
}

func (r *Memory) ListMemories(ctx context.Context, owner model.OwnerID) ([]*model.Memory, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	s := r.getStream(owner, false)
	if s == nil {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	memories := make([]*model.Memory, 0, len(s.entries))
	for _, e := range s.entries {
		memories = append(memories, e.load())
	}
	return memories, nil
}

func (r *Memory) UpdateMemoryLastAccessed(ctx context.Context, owner model.OwnerID, id model.MemoryID, at time.Time) error {
	if err := owner.Validate(); err != nil {
		return err
	}

	e := r.lookup(owner, id)
	if e == nil {
		return goerr.Wrap(model.ErrMemoryNotFound, "memory not found",
			goerr.V("owner", owner), goerr.V("id", id))
	}

	e.lastAccessed.Store(at.UnixNano())
	return nil
}

func (r *Memory) lookup(owner model.OwnerID, id model.MemoryID) *entry {
	s := r.getStream(owner, false)
	if s == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.index[id]
	if !ok {
		return nil
	}
	return s.entries[idx]
}
