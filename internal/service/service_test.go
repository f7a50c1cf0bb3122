package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedworks/embedgate/internal/cache"
	"github.com/embedworks/embedgate/internal/config"
	"github.com/embedworks/embedgate/internal/encoder"
	"github.com/embedworks/embedgate/internal/model"
	"github.com/embedworks/embedgate/internal/runtime"
	"github.com/embedworks/embedgate/internal/tokenizer"
	svcerrors "github.com/embedworks/embedgate/pkg/errors"
	"github.com/embedworks/embedgate/pkg/types"
)

// staticSource satisfies ConfigSource with a fixed config.
type staticSource struct {
	cfg *config.Config
}

func (s *staticSource) Get() *config.Config { return s.cfg }

// fakeRuntime produces deterministic nonzero vectors so order and identity
// survive into assertions.
type fakeRuntime struct {
	dims    int
	encodes *atomic.Int32
}

func (r *fakeRuntime) Encode(_ context.Context, texts []string) ([][]float32, error) {
	if r.encodes != nil {
		r.encodes.Add(1)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, r.dims)
		for j := range v {
			v[j] = float32(len(text)+j) + 1
		}
		out[i] = v
	}
	return out, nil
}

func (r *fakeRuntime) Close() error { return nil }

// fakeFactory materializes fakeRuntimes; it can fail or block per model.
type fakeFactory struct {
	dims    int
	news    atomic.Int32
	encodes atomic.Int32
	failFor string

	// blockFor holds New for the named model until release is closed;
	// entered receives once per blocked call.
	blockFor string
	entered  chan struct{}
	release  chan struct{}
}

func (f *fakeFactory) New(ctx context.Context, modelName string) (runtime.Runtime, error) {
	f.news.Add(1)
	if modelName == f.blockFor {
		f.entered <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if modelName == f.failFor {
		return nil, fmt.Errorf("materialize %s: artifact missing", modelName)
	}
	return &fakeRuntime{dims: f.dims, encodes: &f.encodes}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, factory runtime.Factory, c cache.Cache) *Service {
	t.Helper()

	cfg := config.Default()
	cfg.Model.DefaultName = "default-model"
	cfg.Model.CacheDir = t.TempDir()
	cfg.Model.MaxBatchSize = 4
	cfg.Model.MaxSequenceLength = 512

	reg, err := model.NewRegistry(factory, nil, cfg.Model.CacheDir, quietLogger())
	require.NoError(t, err)
	loader := model.NewLoader(reg, quietLogger())

	svc := New(&staticSource{cfg: cfg}, loader, c, nil, quietLogger())
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func boolPtr(b bool) *bool { return &b }

func TestGenerateEmbeddings_ImplicitDefaultLoad(t *testing.T) {
	factory := &fakeFactory{dims: 384}
	svc := newTestService(t, factory, nil)

	require.Equal(t, StateUninitialized, svc.State())

	resp, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts: []string{"Hello world", "This is a test"},
	})
	require.NoError(t, err)

	assert.Equal(t, "default-model", resp.ModelName)
	assert.Equal(t, 384, resp.Dimensions)
	assert.Equal(t, 2, resp.TotalTexts)
	assert.Zero(t, resp.TruncatedTexts)
	require.Len(t, resp.Embeddings, 2)
	for i, v := range resp.Embeddings {
		require.Len(t, v, 384, "vector %d", i)
		assert.InDelta(t, 1.0, encoder.Norm(v), 1e-6, "vector %d", i)
	}
	assert.Equal(t, StateReady, svc.State())
}

func TestGenerateEmbeddings_NormalizedByDefault(t *testing.T) {
	svc := newTestService(t, &fakeFactory{dims: 16}, nil)

	resp, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts: []string{"some input text"},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, encoder.Norm(resp.Embeddings[0]), 1e-6)
}

func TestGenerateEmbeddings_NormalizeFalsePreservesRawVectors(t *testing.T) {
	svc := newTestService(t, &fakeFactory{dims: 4}, nil)

	resp, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts:     []string{"a", "bcd"},
		Normalize: boolPtr(false),
	})
	require.NoError(t, err)

	// The first component encodes the text length, so order is observable.
	assert.Equal(t, float32(2), resp.Embeddings[0][0])
	assert.Equal(t, float32(4), resp.Embeddings[1][0])
}

func TestGenerateEmbeddings_CountsTruncatedTexts(t *testing.T) {
	svc := newTestService(t, &fakeFactory{dims: 4}, nil)

	long := ""
	for i := 0; i < 600; i++ {
		long += "word "
	}

	resp, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts:     []string{"short", long, long},
		Normalize: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TruncatedTexts)
	assert.Equal(t, 3, resp.TotalTexts)
}

func TestGenerateEmbeddings_Validation(t *testing.T) {
	svc := newTestService(t, &fakeFactory{dims: 4}, nil)

	tests := []struct {
		name string
		req  *types.EmbeddingRequest
	}{
		{"nil request", nil},
		{"empty texts", &types.EmbeddingRequest{Texts: nil}},
		{"negative batch size", &types.EmbeddingRequest{Texts: []string{"a"}, BatchSize: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GenerateEmbeddings(context.Background(), tt.req)
			require.Error(t, err)
			se, ok := err.(*svcerrors.ServiceError)
			require.True(t, ok)
			assert.Equal(t, svcerrors.TypeInvalidRequest, se.Type)
		})
	}
}

func TestGenerateEmbeddings_ModelOverrideSwitches(t *testing.T) {
	factory := &fakeFactory{dims: 8}
	svc := newTestService(t, factory, nil)

	_, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts: []string{"warm up the default"},
	})
	require.NoError(t, err)

	resp, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts:     []string{"switch now"},
		ModelName: "other-model",
	})
	require.NoError(t, err)

	assert.Equal(t, "other-model", resp.ModelName)
	assert.Equal(t, "other-model", svc.GetModelInfo().ModelName)
	assert.Equal(t, int32(2), factory.news.Load())
}

func TestGenerateEmbeddings_OmittedModelUsesActive(t *testing.T) {
	factory := &fakeFactory{dims: 8}
	svc := newTestService(t, factory, nil)

	require.NoError(t, svc.LoadModel(context.Background(), "explicit-model"))

	resp, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts: []string{"no model name given"},
	})
	require.NoError(t, err)
	assert.Equal(t, "explicit-model", resp.ModelName, "active model wins over the configured default")
	assert.Equal(t, int32(1), factory.news.Load())
}

func TestGenerateEmbeddings_ConcurrentRequestsShareOneLoad(t *testing.T) {
	factory := &fakeFactory{
		dims:     8,
		blockFor: "default-model",
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	svc := newTestService(t, factory, nil)

	const workers = 8
	var done sync.WaitGroup
	done.Add(workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer done.Done()
			_, errs[i] = svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
				Texts: []string{"shared"},
			})
		}(i)
	}

	<-factory.entered
	time.Sleep(50 * time.Millisecond) // let the rest queue up
	close(factory.release)
	done.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}
	assert.Equal(t, int32(1), factory.news.Load(), "concurrent requests must share one materialization")
}

func TestLoadModel_BusyOnConflictingTransition(t *testing.T) {
	factory := &fakeFactory{
		dims:     8,
		blockFor: "slow-model",
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	svc := newTestService(t, factory, nil)

	loadDone := make(chan error, 1)
	go func() {
		loadDone <- svc.LoadModel(context.Background(), "slow-model")
	}()
	<-factory.entered

	err := svc.LoadModel(context.Background(), "other-model")
	require.Error(t, err)
	se, ok := err.(*svcerrors.ServiceError)
	require.True(t, ok)
	assert.Equal(t, svcerrors.TypeServiceBusy, se.Type)
	assert.True(t, svcerrors.IsRetryable(err))

	close(factory.release)
	require.NoError(t, <-loadDone)
	assert.Equal(t, "slow-model", svc.GetModelInfo().ModelName)
}

func TestLoadModel_Failure(t *testing.T) {
	factory := &fakeFactory{dims: 8, failFor: "broken-model"}
	svc := newTestService(t, factory, nil)

	err := svc.LoadModel(context.Background(), "broken-model")
	require.Error(t, err)
	se, ok := err.(*svcerrors.ServiceError)
	require.True(t, ok)
	assert.Equal(t, svcerrors.TypeModelLoad, se.Type)
	assert.Equal(t, StateError, svc.State())

	// A later successful load clears the error state.
	require.NoError(t, svc.LoadModel(context.Background(), "good-model"))
	assert.Equal(t, StateReady, svc.State())
}

func TestLoadModel_RequiresName(t *testing.T) {
	svc := newTestService(t, &fakeFactory{dims: 8}, nil)
	err := svc.LoadModel(context.Background(), "")
	require.Error(t, err)
}

func TestUnloadModel(t *testing.T) {
	svc := newTestService(t, &fakeFactory{dims: 8}, nil)

	require.NoError(t, svc.LoadModel(context.Background(), "model-a"))
	require.Equal(t, StateReady, svc.State())

	require.NoError(t, svc.UnloadModel(context.Background()))
	assert.Equal(t, StateUninitialized, svc.State())
	assert.False(t, svc.GetModelInfo().IsLoaded)

	// Idempotent.
	require.NoError(t, svc.UnloadModel(context.Background()))
	assert.Equal(t, StateUninitialized, svc.State())
}

func TestGetModelInfo(t *testing.T) {
	svc := newTestService(t, &fakeFactory{dims: 384}, nil)

	info := svc.GetModelInfo()
	assert.False(t, info.IsLoaded)
	assert.Equal(t, "uninitialized", info.State)

	require.NoError(t, svc.LoadModel(context.Background(), "model-a"))

	info = svc.GetModelInfo()
	assert.True(t, info.IsLoaded)
	assert.Equal(t, "model-a", info.ModelName)
	assert.Equal(t, "sentence-transformer", info.ModelType)
	assert.Equal(t, 384, info.EmbeddingDimensions)
	assert.Equal(t, 512, info.MaxSequenceLength)
	assert.Equal(t, "ready", info.State)
}

func TestHealth(t *testing.T) {
	factory := &fakeFactory{dims: 8, failFor: "broken-model"}
	svc := newTestService(t, factory, nil)

	h := svc.Health()
	assert.Equal(t, types.StatusUnhealthy, h.Status)
	assert.False(t, h.ModelLoaded)
	assert.Equal(t, "uninitialized", h.State)
	assert.Equal(t, "0.1.0", h.Version)

	require.NoError(t, svc.LoadModel(context.Background(), "model-a"))
	h = svc.Health()
	assert.Equal(t, types.StatusHealthy, h.Status)
	assert.True(t, h.ModelLoaded)
	assert.Equal(t, "model-a", h.ModelName)
	assert.Equal(t, 8, h.Dimensions)

	require.Error(t, svc.LoadModel(context.Background(), "broken-model"))
	h = svc.Health()
	assert.Equal(t, types.StatusUnhealthy, h.Status)

	require.NoError(t, svc.LoadModel(context.Background(), "model-a"))
	require.NoError(t, svc.UnloadModel(context.Background()))
	h = svc.Health()
	assert.Equal(t, types.StatusUnhealthy, h.Status)
	assert.False(t, h.ModelLoaded)
}

func TestGenerateEmbeddings_CacheAvoidsRecompute(t *testing.T) {
	factory := &fakeFactory{dims: 8}
	c := cache.NewMemoryCache(cache.MemoryCacheConfig{})
	svc := newTestService(t, factory, c)

	req := &types.EmbeddingRequest{Texts: []string{"cached text", "another text"}}

	first, err := svc.GenerateEmbeddings(context.Background(), req)
	require.NoError(t, err)
	// One probe encode at load plus one batch encode.
	encodesAfterFirst := factory.encodes.Load()

	second, err := svc.GenerateEmbeddings(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, encodesAfterFirst, factory.encodes.Load(), "fully cached request must not reach the runtime")
	assert.Equal(t, first.Embeddings, second.Embeddings)
}

func TestGenerateEmbeddings_PartialCacheHit(t *testing.T) {
	factory := &fakeFactory{dims: 8}
	c := cache.NewMemoryCache(cache.MemoryCacheConfig{})
	svc := newTestService(t, factory, c)

	_, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts: []string{"seen before"},
	})
	require.NoError(t, err)

	resp, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts: []string{"brand new", "seen before", "also new"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)
	for i, v := range resp.Embeddings {
		assert.Len(t, v, 8, "vector %d", i)
	}
}

func TestGenerateEmbeddings_CacheKeyedBySequenceLimit(t *testing.T) {
	factory := &fakeFactory{dims: 4}
	c := cache.NewMemoryCache(cache.MemoryCacheConfig{})
	svc := newTestService(t, factory, c)
	cfg := svc.cfg.Get()

	long := ""
	for i := 0; i < 600; i++ {
		long += "word "
	}

	first, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts:     []string{long},
		Normalize: boolPtr(false),
	})
	require.NoError(t, err)

	// A hot reload tightens the limit; the vector cached under the old
	// truncation length must not be served.
	cfg.Model.MaxSequenceLength = 10

	second, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts:     []string{long},
		Normalize: boolPtr(false),
	})
	require.NoError(t, err)

	prefix, cut := tokenizer.Truncate(long, 10)
	require.True(t, cut)
	// The runtime's first component encodes the encoded text's length.
	assert.Equal(t, float32(len(prefix)+1), second.Embeddings[0][0],
		"re-encode must reflect the new truncation length")
	assert.NotEqual(t, first.Embeddings[0][0], second.Embeddings[0][0])
}

func TestGenerateEmbeddings_CanceledWaiterReleasesPromptly(t *testing.T) {
	factory := &fakeFactory{
		dims:     8,
		blockFor: "slow-model",
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	svc := newTestService(t, factory, nil)

	loadDone := make(chan error, 1)
	go func() {
		loadDone <- svc.LoadModel(context.Background(), "slow-model")
	}()
	<-factory.entered

	ctx, cancel := context.WithCancel(context.Background())
	waitErr := make(chan error, 1)
	go func() {
		_, err := svc.GenerateEmbeddings(ctx, &types.EmbeddingRequest{
			Texts:     []string{"queued behind the load"},
			ModelName: "other-model",
		})
		waitErr <- err
	}()

	time.Sleep(20 * time.Millisecond) // let the request park on the slot
	cancel()

	select {
	case err := <-waitErr:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "canceled")
	case <-time.After(2 * time.Second):
		t.Fatal("canceled request stayed parked behind the transition")
	}

	close(factory.release)
	require.NoError(t, <-loadDone)
}

func TestGenerateEmbeddings_CacheKeyedByNormalize(t *testing.T) {
	factory := &fakeFactory{dims: 8}
	c := cache.NewMemoryCache(cache.MemoryCacheConfig{})
	svc := newTestService(t, factory, c)

	raw, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts:     []string{"same text"},
		Normalize: boolPtr(false),
	})
	require.NoError(t, err)

	normalized, err := svc.GenerateEmbeddings(context.Background(), &types.EmbeddingRequest{
		Texts:     []string{"same text"},
		Normalize: boolPtr(true),
	})
	require.NoError(t, err)

	assert.NotEqual(t, raw.Embeddings[0], normalized.Embeddings[0])
	assert.InDelta(t, 1.0, encoder.Norm(normalized.Embeddings[0]), 1e-6)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateUninitialized, "uninitialized"},
		{StateLoading, "loading"},
		{StateReady, "ready"},
		{StateError, "error"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.expected)
		}
	}
}
