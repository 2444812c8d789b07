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

// Package config reads the yaml file describing the server, the worker
// and every ingestion pipeline.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

var (
	ErrMissingDatabase    = errors.New("config must set database.dsn")
	ErrMissingPipelines   = errors.New("config must define at least one pipeline")
	ErrInvalidVectorStore = errors.New("invalid vector_store config")
)

type Config struct {
	Server      ServerConfig        `yaml:"server"`
	Worker      WorkerConfig        `yaml:"worker"`
	Redis       RedisConfig         `yaml:"redis"`
	Database    DatabaseConfig      `yaml:"database"`
	VectorStore VectorStoreConfig   `yaml:"vector_store"`
	Embeddings  EmbedderConfig      `yaml:"embeddings"`
	Pipelines   map[string]Pipeline `yaml:"pipelines"`
}

type ServerConfig struct {
	ListenHost string `yaml:"listen_host"`
	ListenPort int    `yaml:"listen_port"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type VectorStoreConfig struct {
	Type string `yaml:"type"`

	// Qdrant
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Pgvector. Empty falls back to database.dsn.
	DSN string `yaml:"dsn"`
}

// EmbedderConfig selects an embedding provider. Proxy routes provider
// requests through the given URL.
type EmbedderConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Proxy    string `yaml:"proxy"`
}

type LoaderConfig struct {
	Schema      string `yaml:"schema"`
	Table       string `yaml:"table"`
	Column      string `yaml:"column"`
	IDColumn    string `yaml:"id_column"`
	TitleColumn string `yaml:"title_column"`
}

// SplitterConfig tunes the local splitter. Setting Provider delegates
// chunking to a remote segmenter instead; the local options are then
// ignored.
type SplitterConfig struct {
	Provider            string `yaml:"provider"`
	ChunkSize           int    `yaml:"chunk_size"`
	Overlap             int    `yaml:"overlap"`
	NormalizeWhitespace bool   `yaml:"normalize_whitespace"`
}

type SummaryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Provider   string `yaml:"provider"`
	Level      string `yaml:"level"`
	Paragraphs int    `yaml:"paragraphs"`
	Language   string `yaml:"language"`
	Model      string `yaml:"model"`
}

type IndexConfig struct {
	Type        string `yaml:"type"`
	M           int    `yaml:"m"`
	EfConstruct int    `yaml:"ef_construct"`
	Lists       int    `yaml:"lists"`
}

type RerankConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
}

type Pipeline struct {
	Description string `yaml:"description"`
	Collection  string `yaml:"collection"`

	Loader   LoaderConfig   `yaml:"loader"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Splitter SplitterConfig `yaml:"splitter"`
	Summary  SummaryConfig  `yaml:"summary"`
	Index    IndexConfig    `yaml:"index"`
	Rerank   RerankConfig   `yaml:"rerank"`

	Concurrency int `yaml:"concurrency"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenPort: 8080,
		},
		Worker: WorkerConfig{
			Concurrency: 10,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		VectorStore: VectorStoreConfig{
			Type: "qdrant",
			Host: "localhost",
			Port: 6334,
		},
		Embeddings: EmbedderConfig{
			Provider: "openai",
		},
	}
}

// Read parses the config at path over the defaults.
func Read(path string) (Config, error) {
	c := Default()

	file, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(file, &c); err != nil {
		return c, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := c.validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) validate() error {
	if len(c.Pipelines) == 0 {
		return ErrMissingPipelines
	}
	if c.Database.DSN == "" {
		return ErrMissingDatabase
	}

	switch c.VectorStore.Type {
	case "qdrant":
		if c.VectorStore.Host == "" || c.VectorStore.Port == 0 {
			return fmt.Errorf("%w: qdrant requires host and port", ErrInvalidVectorStore)
		}
	case "pgvector":
	default:
		return fmt.Errorf("%w: unknown type '%s'", ErrInvalidVectorStore, c.VectorStore.Type)
	}

	return nil
}

// PgvectorDSN returns the connection string the pgvector store should
// use, falling back to the document database.
func (c Config) PgvectorDSN() string {
	if c.VectorStore.DSN != "" {
		return c.VectorStore.DSN
	}
	return c.Database.DSN
}
