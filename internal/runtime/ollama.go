package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaTimeout = 120 * time.Second
)

// OllamaConfig configures the Ollama-backed runtime factory.
type OllamaConfig struct {
	BaseURL string
	Timeout time.Duration
}

// OllamaFactory materializes models on a local Ollama server. Pulling a
// model downloads its blobs into the server's cache volume, so materialize
// is download-if-absent: a pull of a cached model is a fast no-op.
type OllamaFactory struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaFactory creates a factory for the given server.
func NewOllamaFactory(cfg OllamaConfig, logger *slog.Logger) *OllamaFactory {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultOllamaTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaFactory{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// New pulls the model if the server does not have it and returns an encode
// runtime bound to it.
func (f *OllamaFactory) New(ctx context.Context, modelName string) (Runtime, error) {
	if err := ValidateModelName(modelName); err != nil {
		return nil, err
	}

	start := time.Now()
	if err := f.pull(ctx, modelName); err != nil {
		return nil, fmt.Errorf("pull model %s: %w", modelName, err)
	}
	f.logger.Info("model materialized",
		"model", modelName,
		"duration", time.Since(start).String(),
	)

	return &ollamaRuntime{
		baseURL:    f.baseURL,
		model:      modelName,
		httpClient: f.httpClient,
	}, nil
}

type ollamaPullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

func (f *OllamaFactory) pull(ctx context.Context, modelName string) error {
	body, err := json.Marshal(ollamaPullRequest{Model: modelName, Stream: false})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// ollamaRuntime encodes via POST /api/embed.
type ollamaRuntime struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
	// Truncation already happened upstream; never let the server error
	// on over-length input either.
	Truncate bool `json:"truncate"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (r *ollamaRuntime) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: r.model, Input: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call inference server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("server returned %d embeddings for %d texts", len(parsed.Embeddings), len(texts))
	}
	return parsed.Embeddings, nil
}

type ollamaUnloadRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive int      `json:"keep_alive"`
}

// Close asks the server to evict the model (keep_alive of zero unloads it
// immediately). Eviction failures are not fatal; the server reclaims memory
// on its own schedule.
func (r *ollamaRuntime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body, err := json.Marshal(ollamaUnloadRequest{Model: r.model, Input: []string{}, KeepAlive: 0})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != "" {
		return fmt.Errorf("inference server returned %d: %s", resp.StatusCode, parsed.Error)
	}
	return fmt.Errorf("inference server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
