package memory_test

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/repository"
	"github.com/phrazzld/judith/pkg/usecase/memory"
	"pgregory.net/rapid"
)

var (
	baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	query    = []float32{1, 0}
)

func TestRetrieveScenario(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	clock := newFakeClock(baseTime)
	uc := memory.New(repo, memory.WithClock(clock.Now))

	owner := model.OwnerID("user-1")
	a := seed(repo, owner, "got married", unitVector(0.9), intPtr(8), baseTime.Add(-2*time.Hour), baseTime.Add(-time.Hour))
	b := seed(repo, owner, "hello", unitVector(0.95), intPtr(1), baseTime.Add(-time.Minute), baseTime)

	out, err := uc.Retrieve(ctx, memory.RetrieveInput{Owner: owner, Embedding: query, TopK: 2})
	gt.NoError(t, err)
	gt.NoError(t, out.UpdateErr)
	gt.A(t, out.Memories).Length(2)

	gt.Equal(t, out.Memories[0].Memory.ID, a.ID)
	gt.Equal(t, out.Memories[1].Memory.ID, b.ID)
	approx(t, out.Memories[0].Score, 4.4486, 1e-3)
	approx(t, out.Memories[1].Score, 0.975, 1e-5)
	approx(t, out.Memories[0].Decay, math.Exp(-0.00036), 1e-12)
	gt.True(t, out.Now.Equal(baseTime))
}

func TestRetrieveEmptyStream(t *testing.T) {
	uc := memory.New(repository.NewMemory())

	out, err := uc.Retrieve(context.Background(), memory.RetrieveInput{Owner: "nobody", Embedding: query, TopK: 3})
	gt.NoError(t, err)
	gt.A(t, out.Memories).Length(0)
	gt.A(t, out.FailedIDs).Length(0)
	gt.NoError(t, out.UpdateErr)
}

func TestRetrieveTruncatesAndBumpsOnlySelected(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	clock := newFakeClock(baseTime)
	uc := memory.New(repo, memory.WithClock(clock.Now))

	owner := model.OwnerID("user-1")
	old := baseTime.Add(-24 * time.Hour)
	high := seed(repo, owner, "high", unitVector(0.99), intPtr(5), old, old)
	mid := seed(repo, owner, "mid", unitVector(0.5), intPtr(5), old, old)
	low := seed(repo, owner, "low", unitVector(0.1), intPtr(5), old, old)

	out, err := uc.Retrieve(ctx, memory.RetrieveInput{Owner: owner, Embedding: query, TopK: 2})
	gt.NoError(t, err)
	gt.A(t, out.Memories).Length(2)
	gt.Equal(t, out.Memories[0].Memory.ID, high.ID)
	gt.Equal(t, out.Memories[1].Memory.ID, mid.ID)

	for _, id := range []model.MemoryID{high.ID, mid.ID} {
		got, err := repo.GetMemory(ctx, owner, id)
		gt.NoError(t, err)
		gt.True(t, got.LastAccessedAt.Equal(baseTime))
	}

	got, err := repo.GetMemory(ctx, owner, low.ID)
	gt.NoError(t, err)
	gt.True(t, got.LastAccessedAt.Equal(old))
}

func TestRetrieveReturnsAllSortedWhenKExceedsStream(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		repo := repository.NewMemory()
		uc := memory.New(repo, memory.WithClock(func() time.Time { return baseTime }))
		owner := model.OwnerID("user-1")

		n := rapid.IntRange(0, 20).Draw(rt, "n")
		for i := 0; i < n; i++ {
			sim := rapid.Float64Range(0, 1).Draw(rt, "similarity")
			var sig *int
			if rapid.Bool().Draw(rt, "classified") {
				sig = intPtr(rapid.IntRange(1, 10).Draw(rt, "significance"))
			}
			age := time.Duration(rapid.Int64Range(0, int64(90*24*time.Hour)).Draw(rt, "age"))
			at := baseTime.Add(-age)
			seed(repo, owner, "memory", unitVector(sim), sig, at, at)
		}

		k := n + rapid.IntRange(0, 5).Draw(rt, "extra")
		out, err := uc.Retrieve(context.Background(), memory.RetrieveInput{Owner: owner, Embedding: query, TopK: k})
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if len(out.Memories) != n {
			rt.Fatalf("expected %d memories, got %d", n, len(out.Memories))
		}
		if !sort.SliceIsSorted(out.Memories, func(i, j int) bool {
			return out.Memories[i].Score > out.Memories[j].Score
		}) {
			rt.Fatalf("memories are not sorted by descending score")
		}
	})
}

func TestRetrieveTiesKeepRepositoryOrder(t *testing.T) {
	repo := repository.NewMemory()
	uc := memory.New(repo, memory.WithClock(func() time.Time { return baseTime }))
	owner := model.OwnerID("user-1")

	var ids []model.MemoryID
	for i := 0; i < 5; i++ {
		mem := seed(repo, owner, "same", unitVector(0.5), intPtr(3), baseTime, baseTime)
		ids = append(ids, mem.ID)
	}

	for round := 0; round < 3; round++ {
		out, err := uc.Retrieve(context.Background(), memory.RetrieveInput{Owner: owner, Embedding: query, TopK: 5})
		gt.NoError(t, err)
		for i, s := range out.Memories {
			gt.Equal(t, s.Memory.ID, ids[i])
		}
	}
}

func TestRetrieveSecondCallSeesBump(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	clock := newFakeClock(baseTime)
	w := memory.Weights{TimeDecayFactor: 1e-6, SignificanceWeight: 0.5, SimilarityWeight: 0.5}
	uc := memory.New(repo, memory.WithClock(clock.Now), memory.WithWeights(w))

	owner := model.OwnerID("user-1")
	created := baseTime.Add(-10 * time.Hour)
	selected := seed(repo, owner, "selected", unitVector(0.9), intPtr(10), created, created)
	other := seed(repo, owner, "other", unitVector(0.1), intPtr(1), created, created)

	first, err := uc.Retrieve(ctx, memory.RetrieveInput{Owner: owner, Embedding: query, TopK: 1})
	gt.NoError(t, err)
	gt.A(t, first.Memories).Length(1)
	gt.Equal(t, first.Memories[0].Memory.ID, selected.ID)
	approx(t, first.Memories[0].Decay, math.Exp(-36000000*1e-6), 1e-12)

	clock.Advance(time.Hour)

	second, err := uc.Retrieve(ctx, memory.RetrieveInput{Owner: owner, Embedding: query, TopK: 2})
	gt.NoError(t, err)
	gt.A(t, second.Memories).Length(2)

	byID := map[model.MemoryID]*model.ScoredMemory{}
	for _, s := range second.Memories {
		byID[s.Memory.ID] = s
	}
	// decay of the selected memory restarts from the first call's snapshot time
	approx(t, byID[selected.ID].Decay, math.Exp(-3600000*1e-6), 1e-12)
	approx(t, byID[other.ID].Decay, math.Exp(-39600000*1e-6), 1e-12)
}

func TestRetrieveDimensionMismatchAborts(t *testing.T) {
	ctx := context.Background()
	base := repository.NewMemory()
	repo := &flakyRepository{Repository: base}
	uc := memory.New(repo, memory.WithClock(func() time.Time { return baseTime }))

	owner := model.OwnerID("user-1")
	seed(base, owner, "ok", unitVector(0.5), intPtr(5), baseTime, baseTime)
	seed(base, owner, "skewed", []float32{1, 0, 0}, intPtr(5), baseTime, baseTime)

	out, err := uc.Retrieve(ctx, memory.RetrieveInput{Owner: owner, Embedding: query, TopK: 3})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrDimensionMismatch))
	gt.True(t, out == nil)
	gt.Equal(t, repo.updates, 0)
}

func TestRetrieveInvalidWeightingBeforeScoring(t *testing.T) {
	base := repository.NewMemory()
	repo := &flakyRepository{Repository: base, failList: errors.New("must not be called")}
	uc := memory.New(repo)

	for _, w := range []memory.Weights{
		{SignificanceWeight: 0.4, SimilarityWeight: 0.5},
		{SignificanceWeight: 0.6, SimilarityWeight: 0.5},
		{SignificanceWeight: -1, SimilarityWeight: 2},
	} {
		_, err := uc.Retrieve(context.Background(), memory.RetrieveInput{
			Owner: "user-1", Embedding: query, TopK: 3, Weights: &w,
		})
		gt.True(t, errors.Is(err, model.ErrInvalidWeighting))
	}
}

func TestRetrieveInvalidInput(t *testing.T) {
	uc := memory.New(repository.NewMemory())
	ctx := context.Background()

	_, err := uc.Retrieve(ctx, memory.RetrieveInput{Owner: "user-1", Embedding: query, TopK: -1})
	gt.True(t, errors.Is(err, model.ErrInvalidTopK))

	_, err = uc.Retrieve(ctx, memory.RetrieveInput{Owner: "", Embedding: query, TopK: 1})
	gt.True(t, errors.Is(err, model.ErrInvalidOwner))

	_, err = uc.Retrieve(ctx, memory.RetrieveInput{Owner: "user-1", TopK: 1})
	gt.True(t, errors.Is(err, model.ErrEmptyVector))
}

func TestRetrieveZeroTopK(t *testing.T) {
	base := repository.NewMemory()
	repo := &flakyRepository{Repository: base}
	uc := memory.New(repo)
	seed(base, "user-1", "m", unitVector(0.5), nil, baseTime, baseTime)

	out, err := uc.Retrieve(context.Background(), memory.RetrieveInput{Owner: "user-1", Embedding: query, TopK: 0})
	gt.NoError(t, err)
	gt.A(t, out.Memories).Length(0)
	gt.Equal(t, repo.updates, 0)
}

func TestRetrievePartialUpdateFailure(t *testing.T) {
	ctx := context.Background()
	base := repository.NewMemory()
	repo := &flakyRepository{Repository: base, failUpdate: map[model.MemoryID]bool{}}
	clock := newFakeClock(baseTime)
	uc := memory.New(repo, memory.WithClock(clock.Now))

	owner := model.OwnerID("user-1")
	old := baseTime.Add(-time.Hour)
	first := seed(base, owner, "first", unitVector(0.9), intPtr(9), old, old)
	second := seed(base, owner, "second", unitVector(0.8), intPtr(8), old, old)
	third := seed(base, owner, "third", unitVector(0.7), intPtr(7), old, old)
	repo.failUpdate[second.ID] = true

	out, err := uc.Retrieve(ctx, memory.RetrieveInput{Owner: owner, Embedding: query, TopK: 3})
	gt.NoError(t, err)
	gt.A(t, out.Memories).Length(3)
	gt.Equal(t, out.Memories[0].Memory.ID, first.ID)
	gt.Equal(t, out.Memories[1].Memory.ID, second.ID)
	gt.Equal(t, out.Memories[2].Memory.ID, third.ID)

	gt.Error(t, out.UpdateErr)
	gt.True(t, errors.Is(out.UpdateErr, model.ErrPartialUpdate))
	gt.A(t, out.FailedIDs).Length(1)
	gt.Equal(t, out.FailedIDs[0], second.ID)
	gt.Equal(t, repo.updates, 3)

	// successful bumps stay applied
	for _, id := range []model.MemoryID{first.ID, third.ID} {
		got, err := base.GetMemory(ctx, owner, id)
		gt.NoError(t, err)
		gt.True(t, got.LastAccessedAt.Equal(baseTime))
	}
	got, err := base.GetMemory(ctx, owner, second.ID)
	gt.NoError(t, err)
	gt.True(t, got.LastAccessedAt.Equal(old))
}

func TestRetrieveBumpNeverPrecedesCreation(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	// clock behind the record's creation time
	uc := memory.New(repo, memory.WithClock(func() time.Time { return baseTime.Add(-time.Minute) }))

	owner := model.OwnerID("user-1")
	mem := seed(repo, owner, "future", unitVector(0.5), intPtr(2), baseTime, baseTime)

	_, err := uc.Retrieve(ctx, memory.RetrieveInput{Owner: owner, Embedding: query, TopK: 1})
	gt.NoError(t, err)

	got, err := repo.GetMemory(ctx, owner, mem.ID)
	gt.NoError(t, err)
	gt.False(t, got.LastAccessedAt.Before(got.CreatedAt))
}

func TestRetrieveListFailurePropagates(t *testing.T) {
	repo := &flakyRepository{Repository: repository.NewMemory(), failList: errors.New("unavailable")}
	uc := memory.New(repo)

	_, err := uc.Retrieve(context.Background(), memory.RetrieveInput{Owner: "user-1", Embedding: query, TopK: 1})
	gt.Error(t, err)
}

func TestRankLegacyRecordWithoutAccessTime(t *testing.T) {
	mem := &model.Memory{
		ID:           model.NewMemoryID(),
		Embedding:    unitVector(0.6),
		Significance: intPtr(4),
		CreatedAt:    baseTime.Add(-time.Hour),
	}

	scored, err := memory.Rank(query, []*model.Memory{mem}, baseTime, memory.DefaultWeights())
	gt.NoError(t, err)
	gt.A(t, scored).Length(1)
	gt.Equal(t, scored[0].Decay, 1.0)
}

func TestRecall(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	embedder := &mockEmbedder{vectors: map[string][]float32{"how was the wedding?": query}}
	uc := memory.New(repo,
		memory.WithEmbedder(embedder),
		memory.WithTopK(1),
		memory.WithClock(func() time.Time { return baseTime }),
	)

	owner := model.OwnerID("user-1")
	want := seed(repo, owner, "wedding", unitVector(0.95), intPtr(9), baseTime, baseTime)
	seed(repo, owner, "weather", unitVector(0.1), intPtr(1), baseTime, baseTime)

	out, err := uc.Recall(ctx, owner, "how was the wedding?", 0)
	gt.NoError(t, err)
	gt.A(t, out.Memories).Length(1)
	gt.Equal(t, out.Memories[0].Memory.ID, want.ID)
}

func TestRecallEmbeddingError(t *testing.T) {
	embedder := &mockEmbedder{err: errors.New("quota exceeded")}
	uc := memory.New(repository.NewMemory(), memory.WithEmbedder(embedder))

	_, err := uc.Recall(context.Background(), "user-1", "anything", 3)
	gt.True(t, errors.Is(err, model.ErrEmbedding))
}
