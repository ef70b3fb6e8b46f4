package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/utils/logging"
	"github.com/phrazzld/judith/pkg/utils/vector"
	"golang.org/x/sync/errgroup"
)

// RetrieveInput contains parameters for ranking an owner's memories
type RetrieveInput struct {
	Owner     model.OwnerID
	Embedding []float32
	TopK      int
	// Weights overrides the UseCase weights when set
	Weights *Weights
}

// RetrieveOutput is the ranking plus the status of the access-time bookkeeping.
// Memories is valid even when UpdateErr is set.
type RetrieveOutput struct {
	Memories []*model.ScoredMemory
	// Now is the snapshot time used for scoring and written as LastAccessedAt
	Now time.Time
	// FailedIDs lists selected memories whose LastAccessedAt could not be written
	FailedIDs []model.MemoryID
	// UpdateErr wraps model.ErrPartialUpdate when FailedIDs is not empty
	UpdateErr error
}

// Retrieve scores every memory of the owner against the query, returns the
// top K in descending order and marks them as accessed at the snapshot time.
// A dimension mismatch with any stored memory aborts the whole call.
func (u *UseCase) Retrieve(ctx context.Context, input RetrieveInput) (*RetrieveOutput, error) {
	w := u.weights
	if input.Weights != nil {
		w = *input.Weights
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if input.TopK < 0 {
		return nil, goerr.Wrap(model.ErrInvalidTopK, "top-k must not be negative", goerr.V("top_k", input.TopK))
	}
	if err := input.Owner.Validate(); err != nil {
		return nil, err
	}
	if err := vector.Validate(input.Embedding); err != nil {
		return nil, goerr.Wrap(err, "invalid query embedding")
	}

	now := u.now()
	output := &RetrieveOutput{Now: now, Memories: []*model.ScoredMemory{}}
	if input.TopK == 0 {
		return output, nil
	}

	memories, err := u.repo.ListMemories(ctx, input.Owner)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories", goerr.V("owner", input.Owner))
	}

	scored, err := rank(input.Embedding, memories, now, w)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to score memories", goerr.V("owner", input.Owner))
	}
	if len(scored) > input.TopK {
		scored = scored[:input.TopK]
	}
	output.Memories = scored

	output.FailedIDs = u.markAccessed(ctx, input.Owner, scored, now)
	if len(output.FailedIDs) > 0 {
		output.UpdateErr = goerr.Wrap(model.ErrPartialUpdate, "failed to update last accessed time",
			goerr.V("owner", input.Owner),
			goerr.V("failed_ids", output.FailedIDs),
			goerr.V("selected", len(scored)))
		logging.From(ctx).Warn("memory bookkeeping incomplete",
			"owner", input.Owner,
			"failed", len(output.FailedIDs),
			"selected", len(scored),
			"error", output.UpdateErr)
	}

	logging.From(ctx).Debug("memories retrieved",
		"owner", input.Owner,
		"candidates", len(memories),
		"returned", len(scored))

	return output, nil
}

// rank scores all memories and sorts them by descending score. Ties keep the
// repository order.
func rank(query []float32, memories []*model.Memory, now time.Time, w Weights) ([]*model.ScoredMemory, error) {
	scored := make([]*model.ScoredMemory, 0, len(memories))
	for _, mem := range memories {
		similarity, err := vector.CosineSimilarity(query, mem.Embedding)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to compare embeddings",
				goerr.V("memory_id", mem.ID),
				goerr.V("query_dim", len(query)),
				goerr.V("memory_dim", len(mem.Embedding)))
		}

		lastAccessedAt := mem.LastAccessedAt
		if lastAccessedAt.IsZero() {
			lastAccessedAt = now
		}

		score, decay := weightedScore(similarity, mem.Significance, lastAccessedAt, now, w)
		scored = append(scored, &model.ScoredMemory{
			Score:      score,
			Similarity: similarity,
			Decay:      decay,
			Memory:     mem,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return scored, nil
}

// markAccessed writes LastAccessedAt for all selected memories concurrently
// and waits for every write. It returns the IDs whose write failed; memories
// that were written stay written.
func (u *UseCase) markAccessed(ctx context.Context, owner model.OwnerID, scored []*model.ScoredMemory, now time.Time) []model.MemoryID {
	var (
		eg     errgroup.Group
		mu     sync.Mutex
		failed []model.MemoryID
	)
	if u.updateConcurrency > 0 {
		eg.SetLimit(u.updateConcurrency)
	}

	for _, s := range scored {
		mem := s.Memory
		at := now
		if at.Before(mem.CreatedAt) {
			at = mem.CreatedAt
		}

		eg.Go(func() error {
			if err := u.repo.UpdateMemoryLastAccessed(ctx, owner, mem.ID, at); err != nil {
				logging.From(ctx).Debug("failed to update last accessed time",
					"owner", owner, "memory_id", mem.ID, "error", err)
				mu.Lock()
				failed = append(failed, mem.ID)
				mu.Unlock()
				return nil
			}
			mem.LastAccessedAt = at
			return nil
		})
	}
	_ = eg.Wait()

	// Keep FailedIDs in ranking order regardless of completion order
	if len(failed) > 1 {
		pos := make(map[model.MemoryID]int, len(scored))
		for i, s := range scored {
			pos[s.Memory.ID] = i
		}
		sort.Slice(failed, func(i, j int) bool { return pos[failed[i]] < pos[failed[j]] })
	}

	return failed
}

// Recall embeds the query text and retrieves the top K memories. topK <= 0
// uses the UseCase default.
func (u *UseCase) Recall(ctx context.Context, owner model.OwnerID, query string, topK int) (*RetrieveOutput, error) {
	if u.embedder == nil {
		return nil, goerr.New("embedder is not configured")
	}
	if topK <= 0 {
		topK = u.topK
	}

	embedding, err := u.embedder.Embed(ctx, query)
	if err != nil {
		return nil, wrapEmbeddingError(err)
	}

	return u.Retrieve(ctx, RetrieveInput{
		Owner:     owner,
		Embedding: embedding,
		TopK:      topK,
	})
}

func wrapEmbeddingError(err error) error {
	if errors.Is(err, model.ErrEmbedding) || errors.Is(err, model.ErrEmptyText) {
		return err
	}
	return goerr.Wrap(model.ErrEmbedding, "failed to embed text", goerr.V("cause", err.Error()))
}
