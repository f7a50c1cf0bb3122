// Package service implements the embedding service core: it composes the
// model loader and the batch encoder, owns the lifecycle state machine, and
// reports health.
package service

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/embedworks/embedgate/internal/cache"
	"github.com/embedworks/embedgate/internal/config"
	"github.com/embedworks/embedgate/internal/encoder"
	"github.com/embedworks/embedgate/internal/metrics"
	"github.com/embedworks/embedgate/internal/model"
	"github.com/embedworks/embedgate/internal/observability"
	"github.com/embedworks/embedgate/internal/tokenizer"
	svcerrors "github.com/embedworks/embedgate/pkg/errors"
	"github.com/embedworks/embedgate/pkg/types"
)

// modelType is reported by GetModelInfo; all supported runtimes serve
// sentence-transformer style models.
const modelType = "sentence-transformer"

// unloadTransition marks an unload in the transition slot. The NUL byte
// cannot appear in a validated model identifier, so it never collides.
const unloadTransition = "\x00unload"

// ConfigSource supplies the current configuration; config.Manager
// satisfies it, so limits follow hot reloads.
type ConfigSource interface {
	Get() *config.Config
}

// Service is the embedding service core. Construct with New; the zero
// value is not usable.
//
// Concurrency: model transitions (load, switch, unload) are serialized
// through a single transition slot, while encodes against a READY handle
// proceed concurrently. Identical concurrent loads join one underlying
// materialization and share its outcome. A request that needs a model
// while a different transition is in flight blocks until the slot frees;
// an explicit LoadModel in the same situation fails fast with
// ServiceBusyError.
type Service struct {
	cfg    ConfigSource
	loader *model.Loader
	cache  cache.Cache // nil when caching is disabled
	logger *slog.Logger
	tracer trace.Tracer

	state     atomic.Int32
	startedAt time.Time

	// Transition slot. inflight holds the identifier being loaded (or the
	// unload marker); refs counts callers attached to the transition;
	// inflightDone is closed when the slot frees so blocked callers can
	// also select on their context.
	inflightMu   sync.Mutex
	inflight     string
	inflightRefs int
	inflightDone chan struct{}
}

// New creates the service core. cache and tracer may be nil.
func New(cfg ConfigSource, loader *model.Loader, c cache.Cache, tracer trace.Tracer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("embedgate")
	}
	s := &Service{
		cfg:       cfg,
		loader:    loader,
		cache:     c,
		logger:    logger,
		tracer:    tracer,
		startedAt: time.Now(),
	}
	s.setState(StateUninitialized)
	return s
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

func (s *Service) setState(st State) {
	s.state.Store(int32(st))
	metrics.ServiceState.Set(float64(st))
}

// GenerateEmbeddings encodes the request texts against the resolved model.
// When no model is loaded the configured default is loaded implicitly; a
// model_name override against a different model triggers a synchronous
// switch, so the first request against a new model is slower.
func (s *Service) GenerateEmbeddings(ctx context.Context, req *types.EmbeddingRequest) (*types.EmbeddingResponse, error) {
	if req == nil {
		return nil, svcerrors.NewInvalidRequestError("", "request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, svcerrors.NewInvalidRequestError(req.ModelName, err.Error())
	}

	cfg := s.cfg.Get()
	name := req.ModelName
	if name == "" {
		if h := s.loader.Active(); h != nil {
			name = h.Name()
		} else {
			name = cfg.Model.DefaultName
		}
	}

	start := time.Now()
	ctx, span := observability.StartEncodeSpan(ctx, s.tracer, name, len(req.Texts))
	defer span.End()

	h, err := s.ensureLoaded(ctx, name, false)
	if err != nil {
		observability.RecordError(span, err)
		metrics.RecordEmbedding(name, errorStatus(err), 0, 0, time.Since(start))
		return nil, err
	}

	batchSize := cfg.Model.MaxBatchSize
	if req.BatchSize > 0 && req.BatchSize < batchSize {
		batchSize = req.BatchSize
	}
	normalize := req.WantNormalize()
	maxSeqLen := cfg.Model.MaxSequenceLength

	vectors := make([][]float32, len(req.Texts))
	missing := s.lookupCached(ctx, h, req.Texts, normalize, maxSeqLen, vectors)

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = req.Texts[i]
		}

		res, err := encoder.Encode(ctx, h, texts, encoder.Options{
			BatchSize:         batchSize,
			MaxSequenceLength: maxSeqLen,
			Normalize:         normalize,
		})
		if err != nil {
			observability.RecordError(span, err)
			metrics.RecordEmbedding(h.Name(), errorStatus(err), 0, 0, time.Since(start))
			s.logger.Error("embedding generation failed",
				"model", h.Name(),
				"texts", len(req.Texts),
				"request_id", observability.RequestIDFromContext(ctx),
				"error", err,
			)
			return nil, err
		}

		for j, i := range missing {
			vectors[i] = res.Vectors[j]
			s.storeCached(ctx, h, req.Texts[i], normalize, maxSeqLen, res.Vectors[j])
		}
	}

	truncated := 0
	for _, text := range req.Texts {
		if _, cut := tokenizer.Truncate(text, maxSeqLen); cut {
			truncated++
		}
	}

	elapsed := time.Since(start)
	metrics.RecordEmbedding(h.Name(), http.StatusOK, len(req.Texts), truncated, elapsed)
	s.logger.Info("embeddings generated",
		"model", h.Name(),
		"texts", len(req.Texts),
		"truncated", truncated,
		"duration", elapsed.String(),
	)

	return &types.EmbeddingResponse{
		Embeddings:     vectors,
		ModelName:      h.Name(),
		Dimensions:     h.Dimensions(),
		ProcessingTime: elapsed.Seconds(),
		TotalTexts:     len(req.Texts),
		TruncatedTexts: truncated,
	}, nil
}

// GetModelInfo reports the active model. When nothing is loaded it returns
// an explicit not-loaded value rather than an error.
func (s *Service) GetModelInfo() types.ModelInfo {
	st := s.State()
	h := s.loader.Active()
	if h == nil {
		return types.ModelInfo{
			IsLoaded: false,
			State:    st.String(),
		}
	}
	return types.ModelInfo{
		ModelName:           h.Name(),
		ModelType:           modelType,
		MaxSequenceLength:   s.cfg.Get().Model.MaxSequenceLength,
		EmbeddingDimensions: h.Dimensions(),
		IsLoaded:            true,
		State:               st.String(),
	}
}

// LoadModel loads the named model, switching away from the active one if
// different. It fails fast with ServiceBusyError when a conflicting
// transition is in flight; identical concurrent loads coalesce.
func (s *Service) LoadModel(ctx context.Context, name string) error {
	if name == "" {
		return svcerrors.NewInvalidRequestError("", "model_name is required")
	}
	_, err := s.ensureLoaded(ctx, name, true)
	return err
}

// UnloadModel releases the active model and returns the service to
// UNINITIALIZED. It is idempotent: unloading with nothing loaded is a no-op.
func (s *Service) UnloadModel(ctx context.Context) error {
	if err := s.beginTransition(ctx, unloadTransition, false); err != nil {
		return err
	}
	defer s.endTransition()

	s.loader.Unload()
	s.setState(StateUninitialized)
	return nil
}

// Close releases the service's resources: the active model and the cache.
func (s *Service) Close() error {
	_ = s.UnloadModel(context.Background())
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

// ensureLoaded returns a READY handle for name, loading or switching if
// needed. failFast selects the conflicting-transition policy described on
// Service.
func (s *Service) ensureLoaded(ctx context.Context, name string, failFast bool) (*model.Handle, error) {
	if h := s.loader.Active(); h != nil && h.Name() == name && s.State() == StateReady {
		return h, nil
	}

	if err := s.beginTransition(ctx, name, failFast); err != nil {
		return nil, err
	}
	defer s.endTransition()

	// Another caller in the same transition may have finished the load.
	if h := s.loader.Active(); h != nil && h.Name() == name {
		s.setState(StateReady)
		return h, nil
	}

	s.setState(StateLoading)
	ctx, span := observability.StartLoadSpan(ctx, s.tracer, name)
	defer span.End()

	start := time.Now()
	h, err := s.loader.Load(ctx, name)
	metrics.RecordModelLoad(name, err, time.Since(start))
	if err != nil {
		observability.RecordError(span, err)
		s.setState(StateError)
		s.logger.Error("model load failed", "model", name, "error", err)
		return nil, svcerrors.NewModelLoadError(name, err.Error())
	}

	s.setState(StateReady)
	return h, nil
}

// beginTransition attaches the caller to the transition slot for name.
// Callers for the same name share the slot (and, via the loader, the
// underlying load). A conflicting transition blocks the caller until the
// slot frees or the context is canceled, or fails fast when requested.
func (s *Service) beginTransition(ctx context.Context, name string, failFast bool) error {
	for {
		s.inflightMu.Lock()
		if s.inflight == "" || s.inflight == name {
			if s.inflightRefs == 0 {
				s.inflightDone = make(chan struct{})
			}
			s.inflight = name
			s.inflightRefs++
			s.inflightMu.Unlock()
			return nil
		}

		if failFast {
			busy := s.inflight
			if busy == unloadTransition {
				busy = "unload"
			}
			s.inflightMu.Unlock()
			return svcerrors.NewServiceBusyError(name,
				"another model transition is in progress ("+busy+"); retry shortly")
		}

		done := s.inflightDone
		s.inflightMu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return svcerrors.NewInternalError(name, "request canceled while waiting for model transition")
		}
	}
}

func (s *Service) endTransition() {
	s.inflightMu.Lock()
	s.inflightRefs--
	if s.inflightRefs == 0 {
		s.inflight = ""
		close(s.inflightDone)
		s.inflightDone = nil
	}
	s.inflightMu.Unlock()
}

// lookupCached fills vectors from the cache and returns the indices that
// still need encoding. Cache failures are treated as misses.
func (s *Service) lookupCached(ctx context.Context, h *model.Handle, texts []string, normalize bool, maxSeqLen int, vectors [][]float32) []int {
	if s.cache == nil {
		missing := make([]int, len(texts))
		for i := range texts {
			missing[i] = i
		}
		return missing
	}

	var missing []int
	for i, text := range texts {
		v, err := s.cache.Get(ctx, cache.Key(h.Name(), normalize, maxSeqLen, text))
		if err != nil {
			s.logger.Debug("cache get failed", "error", err)
		}
		if v != nil && len(v) == h.Dimensions() {
			vectors[i] = v
			metrics.RecordCacheLookup(true)
			continue
		}
		metrics.RecordCacheLookup(false)
		missing = append(missing, i)
	}
	return missing
}

func (s *Service) storeCached(ctx context.Context, h *model.Handle, text string, normalize bool, maxSeqLen int, vector []float32) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, cache.Key(h.Name(), normalize, maxSeqLen, text), vector); err != nil {
		s.logger.Debug("cache set failed", "error", err)
	}
}

func errorStatus(err error) int {
	if se, ok := err.(*svcerrors.ServiceError); ok {
		return se.HTTPStatusCode()
	}
	return http.StatusInternalServerError
}
