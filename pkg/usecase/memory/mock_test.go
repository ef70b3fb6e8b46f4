package memory_test

import (
	"bytes"
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/repository"
)

// fakeClock returns a controllable time
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockEmbedder returns preset vectors by text
type mockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	vec, ok := m.vectors[text]
	if !ok {
		return nil, goerr.New("no vector for text", goerr.V("text", text))
	}
	return vec, nil
}

// mockClassifier returns a preset significance
type mockClassifier struct {
	significance *int
	err          error
	calls        int
}

func (m *mockClassifier) Classify(ctx context.Context, kind model.MemoryKind, text string) (*int, error) {
	m.calls++
	return m.significance, m.err
}

// flakyRepository fails UpdateMemoryLastAccessed for the given IDs
type flakyRepository struct {
	repository.Repository
	mu         sync.Mutex
	failUpdate map[model.MemoryID]bool
	failList   error
	failPut    error
	updates    int
}

func (r *flakyRepository) UpdateMemoryLastAccessed(ctx context.Context, owner model.OwnerID, id model.MemoryID, at time.Time) error {
	r.mu.Lock()
	r.updates++
	fail := r.failUpdate[id]
	r.mu.Unlock()
	if fail {
		return goerr.New("injected update failure", goerr.V("id", id))
	}
	return r.Repository.UpdateMemoryLastAccessed(ctx, owner, id, at)
}

func (r *flakyRepository) ListMemories(ctx context.Context, owner model.OwnerID) ([]*model.Memory, error) {
	if r.failList != nil {
		return nil, r.failList
	}
	return r.Repository.ListMemories(ctx, owner)
}

func (r *flakyRepository) PutMemory(ctx context.Context, memory *model.Memory) error {
	if r.failPut != nil {
		return r.failPut
	}
	return r.Repository.PutMemory(ctx, memory)
}

// mockStorage keeps objects in memory. Like a bucket upload, an object is
// committed on Close unless the writer context was cancelled.
type mockStorage struct {
	mu        sync.Mutex
	data      map[string][]byte
	failWrite bool
}

func newMockStorage() *mockStorage {
	return &mockStorage{data: make(map[string][]byte)}
}

type mockWriteCloser struct {
	*bytes.Buffer
	ctx     context.Context
	storage *mockStorage
	key     string
}

func (m *mockWriteCloser) Write(p []byte) (int, error) {
	if m.storage.failWrite {
		return 0, goerr.New("write failed", goerr.V("key", m.key))
	}
	return m.Buffer.Write(p)
}

func (m *mockWriteCloser) Close() error {
	if err := m.ctx.Err(); err != nil {
		return goerr.Wrap(err, "upload aborted", goerr.V("key", m.key))
	}
	m.storage.mu.Lock()
	defer m.storage.mu.Unlock()
	m.storage.data[m.key] = m.Buffer.Bytes()
	return nil
}

func (m *mockStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return &mockWriteCloser{Buffer: &bytes.Buffer{}, ctx: ctx, storage: m, key: key}, nil
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, goerr.New("data not found", goerr.V("key", key))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// unitVector returns a 2D vector whose cosine similarity with [1,0] is sim
func unitVector(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

// seed stores a memory directly in the repository with the given access time
func seed(repo repository.Repository, owner model.OwnerID, text string, embedding []float32, significance *int, createdAt, lastAccessedAt time.Time) *model.Memory {
	mem := &model.Memory{
		ID:             model.NewMemoryID(),
		Owner:          owner,
		Kind:           model.MemoryKindUserMessage,
		Text:           text,
		Embedding:      embedding,
		Significance:   significance,
		CreatedAt:      createdAt,
		LastAccessedAt: lastAccessedAt,
	}
	if err := repo.PutMemory(context.Background(), mem); err != nil {
		panic(err)
	}
	return mem
}
