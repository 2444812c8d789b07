// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

// Package server exposes the HTTP API: it enqueues pipeline tasks,
// relays their progress streams and serves embeddings directly.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/alan-mat/vectra/internal/config"
	"github.com/alan-mat/vectra/internal/provider"
	"github.com/alan-mat/vectra/internal/transport"
	"github.com/alan-mat/vectra/worker"
)

type Server struct {
	config config.Config

	rdb *redis.Client

	transport   transport.Transport
	asynqClient *asynq.Client
	embedder    provider.Embedder
}

func New(cfg config.Config) *Server {
	return &Server{
		config: cfg,
	}
}

func (s *Server) Serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.rdb = redis.NewClient(&redis.Options{
		Addr:     s.config.Redis.Addr,
		Username: s.config.Redis.Username,
		Password: s.config.Redis.Password,
		DB:       s.config.Redis.DB,
	})
	defer s.rdb.Close()

	s.transport = transport.NewRedisTransport(s.rdb)

	s.asynqClient = asynq.NewClientFromRedisClient(s.rdb)
	defer s.asynqClient.Close()

	embedder, err := worker.NewEmbedder(s.config.Embeddings)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	s.embedder = embedder

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/traces/{id}", s.handleTrace)
	mux.HandleFunc("POST /api/embeddings", s.handleEmbedDocuments)
	mux.HandleFunc("POST /api/embeddings/query", s.handleEmbedQuery)

	lisAddr := fmt.Sprintf("%s:%d", s.config.Server.ListenHost, s.config.Server.ListenPort)
	srv := &http.Server{
		Addr:        lisAddr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "listener", lisAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
