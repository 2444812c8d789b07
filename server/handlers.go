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

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"

	"github.com/alan-mat/vectra/internal/api"
	"github.com/alan-mat/vectra/internal/pipeline"
	"github.com/alan-mat/vectra/internal/tasks"
)

type ingestRequest struct {
	Pipeline string   `json:"pipeline"`
	IDs      []string `json:"ids,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Pipeline == "" {
		writeError(w, http.StatusBadRequest, "pipeline is required")
		return
	}
	slog.Debug("received ingest request", "pipeline", req.Pipeline, "ids", len(req.IDs))

	t, err := tasks.NewIngestTask(req.Pipeline, req.IDs)
	if err != nil {
		slog.Error(err.Error())
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.enqueueAndRelay(w, r, t)
}

type searchRequest struct {
	Pipeline string                `json:"pipeline"`
	Params   pipeline.SearchParams `json:"params"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Pipeline == "" {
		writeError(w, http.StatusBadRequest, "pipeline is required")
		return
	}
	if req.Params.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	slog.Debug("received search request", "pipeline", req.Pipeline, "query", req.Params.Query)

	t, err := tasks.NewSearchTask(req.Pipeline, req.Params)
	if err != nil {
		slog.Error(err.Error())
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.enqueueAndRelay(w, r, t)
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	trace, err := s.transport.GetTrace(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "trace with given id does not exist")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trace_id":     trace.ID,
		"status":       trace.Status,
		"started_at":   trace.StartedAt,
		"completed_at": trace.CompletedAt,
		"pipeline":     trace.Pipeline,
		"collection":   trace.Collection,
		"query":        trace.Query,
	})
}

type embedDocumentsRequest struct {
	Documents []*api.EmbedDocumentRequest `json:"documents"`
}

type embedDocumentsResponse struct {
	Embeddings []*api.DocumentEmbedding `json:"embeddings"`
	Dimensions uint                     `json:"dimensions"`
}

// handleEmbedDocuments embeds document chunks in batch, synchronously.
func (s *Server) handleEmbedDocuments(w http.ResponseWriter, r *http.Request) {
	var req embedDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents are required")
		return
	}

	embeddings, err := s.embedder.EmbedDocuments(r.Context(), req.Documents)
	if err != nil {
		slog.Error("failed to embed documents", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, embedDocumentsResponse{
		Embeddings: embeddings,
		Dimensions: s.embedder.GetDimensions(),
	})
}

type embedQueryRequest struct {
	Query string `json:"query"`
}

type embedQueryResponse struct {
	Values     []float32 `json:"values"`
	Dimensions uint      `json:"dimensions"`
}

func (s *Server) handleEmbedQuery(w http.ResponseWriter, r *http.Request) {
	var req embedQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	values, err := s.embedder.EmbedQuery(r.Context(), req.Query)
	if err != nil {
		slog.Error("failed to embed query", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, embedQueryResponse{
		Values:     values,
		Dimensions: s.embedder.GetDimensions(),
	})
}

// enqueueAndRelay submits the task and streams its messages back to the
// client until completion.
func (s *Server) enqueueAndRelay(w http.ResponseWriter, r *http.Request, t *asynq.Task) {
	info, err := s.asynqClient.Enqueue(t)
	if err != nil {
		slog.Error(err.Error())
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	slog.Info("enqueued task successfully", "id", info.ID)
	traceID := info.ID

	tstream, err := s.transport.GetMessageStream(traceID)
	if err != nil {
		slog.Error("failed to retrieve stream", "id", traceID)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := relayMessageStream(r.Context(), w, traceID, tstream); err != nil {
		slog.Error("message stream relay failed", "id", traceID, "err", err)
	}
}
