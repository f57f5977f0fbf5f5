// Package qdrant is a minimal REST client for a Qdrant collection used as
// the chunk vector index. It assumes cosine distance and creates the
// collection on first use.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/vector"
)

// Config holds connection details for the Qdrant collection.
type Config struct {
	URL        string // base URL, e.g. http://localhost:6333
	APIKey     string // optional
	Collection string
	Dimension  int // embedding dimension, used when creating the collection
	Timeout    time.Duration
}

// Index implements vector.Index against a Qdrant collection.
type Index struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

var _ vector.Index = (*Index)(nil)

// NewIndex creates the client and ensures the collection exists.
func NewIndex(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant config: URL is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant config: Collection is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant config: Dimension must be positive")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	idx := &Index{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default().With("component", "qdrant-index"),
	}

	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Close is a no-op; the index holds no persistent connections.
func (x *Index) Close() error {
	return nil
}

// ensureCollection creates the collection if missing. Qdrant returns OK for
// an existing collection with the same schema.
func (x *Index) ensureCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     x.cfg.Dimension,
			"distance": "Cosine",
		},
	}
	return x.do(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s", x.cfg.URL, x.cfg.Collection), body, nil)
}

// Upsert writes records as points, replacing matching IDs.
func (x *Index) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":     uint64(r.ID),
			"vector": r.Values,
			"payload": map[string]any{
				"document_id": r.Metadata.DocumentID,
				"chunk_index": r.Metadata.ChunkIndex,
				"token_count": r.Metadata.TokenCount,
			},
		}
	}

	err := x.do(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points?wait=true", x.cfg.URL, x.cfg.Collection),
		map[string]any{"points": points}, nil)
	if err != nil {
		return fmt.Errorf("%w: qdrant upsert: %v", core.ErrStoreWrite, err)
	}

	x.logger.Debug("upserted points", "count", len(points))
	return nil
}

// Delete removes points by ID.
func (x *Index) Delete(ctx context.Context, ids []core.ID) error {
	if len(ids) == 0 {
		return nil
	}

	raw := make([]uint64, len(ids))
	for i, id := range ids {
		raw[i] = uint64(id)
	}

	err := x.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/delete?wait=true", x.cfg.URL, x.cfg.Collection),
		map[string]any{"points": raw}, nil)
	if err != nil {
		return fmt.Errorf("%w: qdrant delete: %v", core.ErrStoreWrite, err)
	}
	return nil
}

// DeleteByDocument removes every point whose payload references documentID.
func (x *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}

	err := x.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/delete?wait=true", x.cfg.URL, x.cfg.Collection),
		body, nil)
	if err != nil {
		return fmt.Errorf("%w: qdrant delete by document: %v", core.ErrStoreWrite, err)
	}
	return nil
}

// Clear drops every point in the collection. Used by maintenance tooling,
// not by the sync pipeline.
func (x *Index) Clear(ctx context.Context) error {
	body := map[string]any{
		"filter": map[string]any{"must": []map[string]any{}},
	}
	err := x.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/delete?wait=true", x.cfg.URL, x.cfg.Collection),
		body, nil)
	if err != nil {
		return fmt.Errorf("%w: qdrant clear: %v", core.ErrStoreWrite, err)
	}
	return nil
}

// do sends a JSON request and decodes the response into out when non-nil.
func (x *Index) do(ctx context.Context, method, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if x.cfg.APIKey != "" {
		req.Header.Set("api-key", x.cfg.APIKey)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qdrant %s %s: status %d: %s", method, url, resp.StatusCode, msg)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
