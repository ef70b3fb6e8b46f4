package memory

import (
	"context"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/utils/logging"
	"github.com/phrazzld/judith/pkg/utils/vector"
)

// CreateInput contains parameters for a new memory record
type CreateInput struct {
	Owner model.OwnerID
	Kind  model.MemoryKind
	Text  string
	// Significance is nil when the text could not be classified
	Significance *int
	// Embedding is computed from Text by the embedder when empty
	Embedding []float32
	// TriggeredMemories is the rendered recall trace of a reflection
	TriggeredMemories string
}

// Create appends a new record to the owner's memory stream. CreatedAt and
// LastAccessedAt are both set to the current time. Nothing is written when
// embedding fails.
func (u *UseCase) Create(ctx context.Context, input CreateInput) (*model.Memory, error) {
	if err := input.Owner.Validate(); err != nil {
		return nil, err
	}
	if err := input.Kind.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, goerr.Wrap(model.ErrEmptyText, "memory text is required", goerr.V("owner", input.Owner))
	}
	if err := model.ValidateSignificance(input.Significance); err != nil {
		return nil, err
	}
	if input.TriggeredMemories != "" && input.Kind != model.MemoryKindAgentReflection {
		return nil, goerr.New("triggered memories are only recorded on reflections", goerr.V("kind", input.Kind))
	}

	embedding := input.Embedding
	if len(embedding) == 0 {
		if u.embedder == nil {
			return nil, goerr.New("embedder is not configured and no embedding was given")
		}
		vec, err := u.embedder.Embed(ctx, input.Text)
		if err != nil {
			return nil, wrapEmbeddingError(err)
		}
		embedding = vec
	}
	if err := vector.Validate(embedding); err != nil {
		return nil, goerr.Wrap(err, "invalid memory embedding")
	}

	dim, err := u.streamDimension(ctx, input.Owner)
	if err != nil {
		return nil, err
	}
	if err := checkDimension(dim, len(embedding)); err != nil {
		return nil, goerr.Wrap(err, "embedding does not match the memory stream", goerr.V("owner", input.Owner))
	}

	now := u.now()
	memory := &model.Memory{
		ID:                model.NewMemoryID(),
		Owner:             input.Owner,
		Kind:              input.Kind,
		Text:              input.Text,
		Embedding:         append([]float32(nil), embedding...),
		Significance:      input.Significance,
		TriggeredMemories: input.TriggeredMemories,
		CreatedAt:         now,
		LastAccessedAt:    now,
	}

	if err := u.repo.PutMemory(ctx, memory); err != nil {
		return nil, goerr.Wrap(err, "failed to put memory", goerr.V("owner", input.Owner))
	}

	logging.From(ctx).Debug("memory created",
		"owner", memory.Owner,
		"id", memory.ID,
		"kind", memory.Kind,
		"significance", memory.Significance,
		"dim", len(memory.Embedding))

	return memory, nil
}

// Record classifies and embeds text, then creates the memory. An unclassifiable
// text is stored without significance; a classifier failure aborts.
func (u *UseCase) Record(ctx context.Context, owner model.OwnerID, kind model.MemoryKind, text string) (*model.Memory, error) {
	significance, err := u.classify(ctx, kind, text)
	if err != nil {
		return nil, err
	}

	return u.Create(ctx, CreateInput{
		Owner:        owner,
		Kind:         kind,
		Text:         text,
		Significance: significance,
	})
}

// RecordReflection stores an agent reflection together with the memories it
// brought to mind. The reflection's embedding is used to recall topK memories
// first, so the reflection never recalls itself.
func (u *UseCase) RecordReflection(ctx context.Context, owner model.OwnerID, text string, topK int) (*model.Memory, *RetrieveOutput, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, goerr.Wrap(model.ErrEmptyText, "reflection text is required", goerr.V("owner", owner))
	}
	if u.embedder == nil {
		return nil, nil, goerr.New("embedder is not configured")
	}
	if topK <= 0 {
		topK = u.topK
	}

	significance, err := u.classify(ctx, model.MemoryKindAgentReflection, text)
	if err != nil {
		return nil, nil, err
	}

	embedding, err := u.embedder.Embed(ctx, text)
	if err != nil {
		return nil, nil, wrapEmbeddingError(err)
	}

	recalled, err := u.Retrieve(ctx, RetrieveInput{
		Owner:     owner,
		Embedding: embedding,
		TopK:      topK,
	})
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to recall memories for reflection")
	}

	memory, err := u.Create(ctx, CreateInput{
		Owner:             owner,
		Kind:              model.MemoryKindAgentReflection,
		Text:              text,
		Significance:      significance,
		Embedding:         embedding,
		TriggeredMemories: RenderTriggered(recalled.Memories),
	})
	if err != nil {
		return nil, nil, err
	}

	return memory, recalled, nil
}

func (u *UseCase) classify(ctx context.Context, kind model.MemoryKind, text string) (*int, error) {
	if u.classifier == nil {
		return nil, nil
	}

	significance, err := u.classifier.Classify(ctx, kind, text)
	if err != nil {
		if errors.Is(err, model.ErrClassification) || errors.Is(err, model.ErrEmptyText) {
			return nil, err
		}
		return nil, goerr.Wrap(model.ErrClassification, "failed to classify significance", goerr.V("cause", err.Error()))
	}
	if err := model.ValidateSignificance(significance); err != nil {
		logging.From(ctx).Warn("discarding invalid significance", "error", err)
		return nil, nil
	}

	return significance, nil
}

// streamDimension returns the embedding size shared by the owner's memories,
// or 0 when the stream is empty
func (u *UseCase) streamDimension(ctx context.Context, owner model.OwnerID) (int, error) {
	memories, err := u.repo.ListMemories(ctx, owner)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list memories", goerr.V("owner", owner))
	}
	for _, m := range memories {
		if len(m.Embedding) > 0 {
			return len(m.Embedding), nil
		}
	}
	return 0, nil
}

// checkDimension rejects an embedding whose size differs from the stream's.
// A stored mismatch would make every later retrieval for the owner fail.
func checkDimension(expected, actual int) error {
	if expected == 0 || expected == actual {
		return nil
	}
	return goerr.Wrap(model.ErrDimensionMismatch, "embedding size differs from the memory stream",
		goerr.V("expected", expected), goerr.V("actual", actual))
}
