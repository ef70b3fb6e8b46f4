package embedding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/service/embedding"
	"google.golang.org/genai"
)

type mockGemini struct {
	vec        []float32
	err        error
	calls      int
	dimensions int
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return nil, errors.New("not implemented")
}

func (m *mockGemini) Embedding(ctx context.Context, text string, dimensions int) ([]float32, error) {
	m.calls++
	m.dimensions = dimensions
	return m.vec, m.err
}

func TestGeminiEmbed(t *testing.T) {
	client := &mockGemini{vec: []float32{0.1, 0.2, 0.3}}
	e := embedding.New(client, embedding.WithDimensions(3))

	vec, err := e.Embed(context.Background(), "hello")
	gt.NoError(t, err)
	gt.A(t, vec).Length(3)
	gt.Equal(t, client.dimensions, 3)
}

func TestGeminiEmbedErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty text", func(t *testing.T) {
		client := &mockGemini{vec: []float32{1}}
		_, err := embedding.New(client).Embed(ctx, "")
		gt.True(t, errors.Is(err, model.ErrEmptyText))
		gt.Equal(t, client.calls, 0)
	})

	t.Run("provider failure", func(t *testing.T) {
		client := &mockGemini{err: errors.New("permission denied")}
		_, err := embedding.New(client).Embed(ctx, "hello")
		gt.True(t, errors.Is(err, model.ErrEmbedding))
	})

	t.Run("unexpected size", func(t *testing.T) {
		client := &mockGemini{vec: []float32{1, 2}}
		_, err := embedding.New(client, embedding.WithDimensions(768)).Embed(ctx, "hello")
		gt.True(t, errors.Is(err, model.ErrEmbedding))
	})
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{vec: []float32{0.5, 0.5}}
	cache, err := embedding.NewCache(embedding.New(client), 16)
	gt.NoError(t, err)
	defer cache.Close()

	first, err := cache.Embed(ctx, "hello")
	gt.NoError(t, err)
	cache.Wait()

	second, err := cache.Embed(ctx, "hello")
	gt.NoError(t, err)
	gt.Equal(t, client.calls, 1)
	gt.Equal(t, second, first)

	// cached vectors are not shared with callers
	second[0] = 9
	third, err := cache.Embed(ctx, "hello")
	gt.NoError(t, err)
	gt.Equal(t, third[0], float32(0.5))

	_, err = cache.Embed(ctx, "another")
	gt.NoError(t, err)
	gt.Equal(t, client.calls, 2)
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{err: errors.New("unavailable")}
	cache, err := embedding.NewCache(embedding.New(client), 16)
	gt.NoError(t, err)
	defer cache.Close()

	_, err = cache.Embed(ctx, "hello")
	gt.True(t, errors.Is(err, model.ErrEmbedding))
	cache.Wait()

	client.err = nil
	client.vec = []float32{1}
	vec, err := cache.Embed(ctx, "hello")
	gt.NoError(t, err)
	gt.A(t, vec).Length(1)
	gt.Equal(t, client.calls, 2)
}

func TestNewCacheInvalidSize(t *testing.T) {
	_, err := embedding.NewCache(embedding.New(&mockGemini{}), 0)
	gt.Error(t, err)
}
