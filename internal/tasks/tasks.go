package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/alan-mat/vectra/internal/pipeline"
)

const (
	TypeIngest = "vectra:ingest"
	TypeSearch = "vectra:search"
)

type ingestTaskPayload struct {
	Pipeline string   `json:"pipeline"`
	IDs      []string `json:"ids,omitempty"`
}

// NewIngestTask enqueues an ingestion run for the named pipeline. An
// empty ids slice ingests every document the pipeline's loader yields.
func NewIngestTask(pipelineName string, ids []string) (*asynq.Task, error) {
	tp := ingestTaskPayload{
		Pipeline: pipelineName,
		IDs:      ids,
	}
	payload, err := json.Marshal(tp)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeIngest, payload), nil
}

type searchTaskPayload struct {
	Pipeline string                `json:"pipeline"`
	Params   pipeline.SearchParams `json:"params"`
}

func NewSearchTask(pipelineName string, params pipeline.SearchParams) (*asynq.Task, error) {
	tp := searchTaskPayload{
		Pipeline: pipelineName,
		Params:   params,
	}
	payload, err := json.Marshal(tp)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSearch, payload), nil
}
