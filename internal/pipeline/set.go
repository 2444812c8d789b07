package pipeline

// Set bundles the ingestion and retrieval flows built for one configured
// pipeline, keyed by name in the worker's registry.
type Set struct {
	Name       string
	Collection string
	Ingestor   *Ingestor
	Searcher   *Searcher
}
