package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/alan-mat/vectra/internal/pipeline"
	"github.com/alan-mat/vectra/internal/registry"
	"github.com/alan-mat/vectra/internal/transport"
)

// TaskHandler dispatches queued tasks onto the configured pipelines,
// streaming progress and results over the transport.
type TaskHandler struct {
	transport transport.Transport
	pipelines *registry.Registry[string, *pipeline.Set]
}

func NewTaskHandler(transport transport.Transport, pipelines *registry.Registry[string, *pipeline.Set]) *TaskHandler {
	return &TaskHandler{
		transport: transport,
		pipelines: pipelines,
	}
}

func (h TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	id := t.ResultWriter().TaskID()

	ms, err := h.transport.GetMessageStream(id)
	if err != nil {
		slog.Error("failed to initialize message stream", "err", err)
		return fmt.Errorf("failed to initialize message stream: %v (%w)", err, asynq.SkipRetry)
	}

	switch t.Type() {
	case TypeIngest:
		var p ingestTaskPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		slog.Info("received ingest task", "id", id, "pipeline", p.Pipeline, "ids", len(p.IDs))
		return h.processIngest(ctx, id, ms, p)

	case TypeSearch:
		var p searchTaskPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		slog.Info("received search task", "id", id, "pipeline", p.Pipeline, "query", p.Params.Query)
		return h.processSearch(ctx, id, ms, p)

	default:
		return fmt.Errorf("unrecognized task type (%w)", asynq.SkipRetry)
	}
}

func (h TaskHandler) processIngest(ctx context.Context, id string, ms transport.MessageStream, p ingestTaskPayload) error {
	set, trace, err := h.begin(ctx, id, p.Pipeline, "")
	if err != nil {
		return h.fail(ctx, ms, trace, "pipeline not found", err)
	}

	ing := set.Ingestor.WithStream(ms)

	var report *pipeline.IngestReport
	if len(p.IDs) > 0 {
		report, err = ing.RunIDs(ctx, p.IDs)
	} else {
		report, err = ing.Run(ctx)
	}
	if err != nil {
		return h.fail(ctx, ms, trace, "ingestion run failed", err)
	}

	content, err := json.Marshal(report)
	if err != nil {
		return h.fail(ctx, ms, trace, "ingestion run failed", err)
	}

	err = ms.Send(ctx, transport.MessageStreamPayload{
		Type:    transport.MessageTypeContent,
		Status:  "DONE",
		Content: string(content),
	})
	if err != nil {
		slog.Warn("failed to write DONE message to stream", "id", id)
	}

	h.complete(ctx, trace)
	return nil
}

func (h TaskHandler) processSearch(ctx context.Context, id string, ms transport.MessageStream, p searchTaskPayload) error {
	set, trace, err := h.begin(ctx, id, p.Pipeline, p.Params.Query)
	if err != nil {
		return h.fail(ctx, ms, trace, "pipeline not found", err)
	}

	docs, err := set.Searcher.Search(ctx, p.Params)
	if err != nil {
		return h.fail(ctx, ms, trace, "search failed", err)
	}

	for i, doc := range docs {
		err = ms.Send(ctx, transport.MessageStreamPayload{
			ID:     i,
			Type:   transport.MessageTypeDocument,
			Status: "OK",
			Document: transport.Document{
				Title:   doc.Title,
				Content: doc.Content,
				Source:  doc.Source,
				Score:   doc.Score,
			},
		})
		if err != nil {
			slog.Debug("failed sending document to message stream", "id", id, "doc", doc.ID)
		}
	}

	err = ms.Send(ctx, transport.MessageStreamPayload{
		Status:  "DONE",
		Content: "task finished",
	})
	if err != nil {
		slog.Warn("failed to write DONE message to stream", "id", id)
	}

	h.complete(ctx, trace)
	return nil
}

// begin resolves the pipeline and opens a running trace. The trace is
// returned even when the pipeline is missing so the caller can fail it.
func (h TaskHandler) begin(ctx context.Context, id, pipelineName, query string) (*pipeline.Set, *transport.RequestTrace, error) {
	trace := &transport.RequestTrace{
		ID:        id,
		Status:    transport.TraceStatusRunning,
		StartedAt: time.Now().UnixNano(),
		Pipeline:  pipelineName,
		Query:     query,
	}

	set, ok := h.pipelines.Get(pipelineName)
	if ok {
		trace.Collection = set.Collection
	}

	if err := h.transport.SetTrace(ctx, trace); err != nil {
		slog.Error("failed to set trace", "id", id, "err", err)
	}

	if !ok {
		return nil, trace, fmt.Errorf("no pipeline registered with name '%s' (%w)", pipelineName, asynq.SkipRetry)
	}
	return set, trace, nil
}

func (h TaskHandler) fail(ctx context.Context, ms transport.MessageStream, trace *transport.RequestTrace, msg string, err error) error {
	sendErr := ms.Send(ctx, transport.MessageStreamPayload{
		Content: msg,
		Status:  "ERR",
	})
	if sendErr != nil {
		slog.Warn("failed to write ERR message to stream", "id", trace.ID)
	}

	trace.CompletedAt = time.Now().UnixNano()
	trace.Status = transport.TraceStatusFailed
	if terr := h.transport.SetTrace(ctx, trace); terr != nil {
		slog.Error("failed to set trace", "id", trace.ID, "err", terr)
	}

	return err
}

func (h TaskHandler) complete(ctx context.Context, trace *transport.RequestTrace) {
	trace.CompletedAt = time.Now().UnixNano()
	trace.Status = transport.TraceStatusCompleted
	if err := h.transport.SetTrace(ctx, trace); err != nil {
		slog.Error("failed to set trace", "id", trace.ID, "err", err)
	}
}
