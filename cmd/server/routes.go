package main

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/embedworks/embedgate/internal/config"
)

// embeddingHandler is the surface routes need from the API handler.
type embeddingHandler interface {
	Root(http.ResponseWriter, *http.Request)
	Health(http.ResponseWriter, *http.Request)
	Embeddings(http.ResponseWriter, *http.Request)
	ModelInfo(http.ResponseWriter, *http.Request)
	LoadModel(http.ResponseWriter, *http.Request)
	UnloadModel(http.ResponseWriter, *http.Request)
}

var errNilConfig = errors.New("config is required")

func buildMux(cfg *config.Config, handler embeddingHandler) (*http.ServeMux, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handler.Root)
	mux.HandleFunc("GET /health", handler.Health)

	mux.HandleFunc("POST /embeddings", handler.Embeddings)
	mux.HandleFunc("GET /model/info", handler.ModelInfo)
	mux.HandleFunc("POST /model/load", handler.LoadModel)
	mux.HandleFunc("POST /model/unload", handler.UnloadModel)

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	return mux, nil
}
