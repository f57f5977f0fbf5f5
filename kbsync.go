// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package kbsync

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/kbsync/ai"
	"github.com/poiesic/kbsync/ai/openai"
	"github.com/poiesic/kbsync/extract"
	"github.com/poiesic/kbsync/extract/docx"
	"github.com/poiesic/kbsync/ingestion"
	"github.com/poiesic/kbsync/source"
	"github.com/poiesic/kbsync/source/drive"
	"github.com/poiesic/kbsync/store"
	"github.com/poiesic/kbsync/store/sqlite"
	"github.com/poiesic/kbsync/vector"
	"github.com/poiesic/kbsync/vector/badgerindex"
	"github.com/poiesic/kbsync/vector/qdrant"
)

// Service assembles the stores and collaborators a sync deployment needs.
// The default wiring is a SQLite document store, an embedded BadgerDB vector
// index next to it, a Google Drive connector, a docx extractor, and an
// OpenAI-compatible embedder; every collaborator can be swapped via options.
type Service struct {
	documents store.DocumentStore
	index     vector.Index
	connector source.Connector
	extractor extract.Extractor
	embedder  ai.Embedder
	workDir   string
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	aiConfig     *ai.Config
	driveConfig  *drive.Config
	qdrantConfig *qdrant.Config
	indexPath    string
	workDir      string

	connector source.Connector
	extractor extract.Extractor
	index     vector.Index
	embedder  ai.Embedder
}

// WithAIConfig sets the embedding service configuration.
func WithAIConfig(cfg *ai.Config) ServiceOption {
	return func(o *serviceOptions) {
		o.aiConfig = cfg
	}
}

// WithDriveConfig wires a Google Drive connector as the document source.
func WithDriveConfig(cfg drive.Config) ServiceOption {
	return func(o *serviceOptions) {
		o.driveConfig = &cfg
	}
}

// WithQdrantConfig stores vectors in a Qdrant collection instead of the
// embedded index.
func WithQdrantConfig(cfg qdrant.Config) ServiceOption {
	return func(o *serviceOptions) {
		o.qdrantConfig = &cfg
	}
}

// WithIndexPath sets the directory for the embedded vector index.
// Ignored when a Qdrant configuration or an explicit index is provided.
func WithIndexPath(path string) ServiceOption {
	return func(o *serviceOptions) {
		o.indexPath = path
	}
}

// WithWorkDir sets the scratch directory cleared after sync and cleanup runs.
func WithWorkDir(dir string) ServiceOption {
	return func(o *serviceOptions) {
		o.workDir = dir
	}
}

// WithConnector overrides the document source connector.
func WithConnector(c source.Connector) ServiceOption {
	return func(o *serviceOptions) {
		o.connector = c
	}
}

// WithExtractor overrides the text extractor.
func WithExtractor(e extract.Extractor) ServiceOption {
	return func(o *serviceOptions) {
		o.extractor = e
	}
}

// WithVectorIndex overrides the vector index.
func WithVectorIndex(idx vector.Index) ServiceOption {
	return func(o *serviceOptions) {
		o.index = idx
	}
}

// WithEmbedder overrides the embedding service client.
func WithEmbedder(e ai.Embedder) ServiceOption {
	return func(o *serviceOptions) {
		o.embedder = e
	}
}

// NewService opens the document store at dbPath and wires the remaining
// collaborators from the options. A source connector must come from either
// WithDriveConfig or WithConnector.
func NewService(ctx context.Context, dbPath string, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	documents, err := sqlite.NewStore(dbPath)
	if err != nil {
		return nil, err
	}

	index := options.index
	if index == nil {
		if options.qdrantConfig != nil {
			index, err = qdrant.NewIndex(ctx, *options.qdrantConfig)
		} else {
			indexPath := options.indexPath
			if indexPath == "" {
				indexPath = filepath.Join(filepath.Dir(dbPath), "vectors")
			}
			index, err = badgerindex.Open(indexPath, false)
		}
		if err != nil {
			documents.Close()
			return nil, err
		}
	}

	connector := options.connector
	if connector == nil {
		if options.driveConfig == nil {
			index.Close()
			documents.Close()
			return nil, ingestion.ErrConnectorRequired
		}
		if options.driveConfig.DownloadDir == "" {
			options.driveConfig.DownloadDir = options.workDir
		}
		connector, err = drive.NewConnector(ctx, *options.driveConfig)
		if err != nil {
			index.Close()
			documents.Close()
			return nil, err
		}
	}

	extractor := options.extractor
	if extractor == nil {
		extractor = docx.New()
	}

	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(options.aiConfig)
		if err != nil {
			index.Close()
			documents.Close()
			return nil, err
		}
	}

	return &Service{
		documents: documents,
		index:     index,
		connector: connector,
		extractor: extractor,
		embedder:  embedder,
		workDir:   options.workDir,
		logger:    slog.Default(),
	}, nil
}

// Close releases the vector index and the document store.
func (s *Service) Close() error {
	if err := s.index.Close(); err != nil {
		s.logger.Error("error closing vector index", "err", err)
		return err
	}
	if err := s.documents.Close(); err != nil {
		s.logger.Error("error closing document store", "err", err)
		return err
	}
	return nil
}

// DocumentStore exposes the relational store.
func (s *Service) DocumentStore() store.DocumentStore {
	return s.documents
}

// VectorIndex exposes the vector index.
func (s *Service) VectorIndex() vector.Index {
	return s.index
}

// NewSyncPipeline builds a synchronization pipeline over the service's
// collaborators. The service's work directory and logger are applied first,
// so explicit options win.
func (s *Service) NewSyncPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	base := []ingestion.Option{
		ingestion.WithWorkDir(s.workDir),
		ingestion.WithLogger(s.logger),
	}
	return ingestion.NewPipeline(s.connector, s.extractor, s.documents, s.index, s.embedder, append(base, opts...)...)
}

// Sync runs a one-shot synchronization over the service's collaborators.
// Callers that run repeatedly should build a pipeline once with
// NewSyncPipeline instead.
func (s *Service) Sync(ctx context.Context, req source.Request, opts ...ingestion.Option) (*ingestion.SyncReport, error) {
	pipeline, err := s.NewSyncPipeline(opts...)
	if err != nil {
		return nil, err
	}
	defer pipeline.Release()
	return pipeline.Sync(ctx, req)
}

// Cleanup removes the named documents from both stores.
func (s *Service) Cleanup(ctx context.Context, titles []string, opts ...ingestion.Option) (*ingestion.CleanupReport, error) {
	pipeline, err := s.NewSyncPipeline(opts...)
	if err != nil {
		return nil, err
	}
	defer pipeline.Release()
	return pipeline.Cleanup(ctx, titles)
}
