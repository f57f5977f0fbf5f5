package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbsync/ai"
	"github.com/poiesic/kbsync/chunk"
	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/extract"
	"github.com/poiesic/kbsync/reconcile"
	"github.com/poiesic/kbsync/source"
	"github.com/poiesic/kbsync/store"
	"github.com/poiesic/kbsync/token"
	"github.com/poiesic/kbsync/vector"
)

const (
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
)

// Pipeline orchestrates document synchronization: fetch, extract, reconcile,
// embed, then write to the relational store and the vector index.
// Documents are processed one at a time; a failure in one document never
// aborts the run. Embedding batches within a document run concurrently.
type Pipeline struct {
	connector  source.Connector
	extractor  extract.Extractor
	store      store.DocumentStore
	index      vector.Index
	reconciler *reconcile.Reconciler
	embed      *embeddingWorker
	pool       *ants.Pool
	workDir    string
	logger     *slog.Logger

	maxRetries     int
	retryBaseDelay time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithRetry sets the retry policy for embedding service calls.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.maxRetries = maxAttempts
		p.retryBaseDelay = baseDelay
		return nil
	}
}

// WithWorkDir sets the scratch directory that sync and cleanup clear on
// completion. Connectors that download source files should point at the
// same directory. Empty disables clearing.
func WithWorkDir(dir string) Option {
	return func(p *Pipeline) error {
		p.workDir = dir
		return nil
	}
}

// WithReconciler overrides the default reconciler. Mostly used by tests to
// inject a chunker with small windows.
func WithReconciler(r *reconcile.Reconciler) Option {
	return func(p *Pipeline) error {
		if r == nil {
			return errors.New("reconciler must not be nil")
		}
		p.reconciler = r
		return nil
	}
}

// NewPipeline creates a synchronization pipeline over the given
// collaborators. The default reconciler chunks with the tiktoken counter,
// falling back to whitespace counting if the encoding is unavailable.
func NewPipeline(
	connector source.Connector,
	extractor extract.Extractor,
	documents store.DocumentStore,
	index vector.Index,
	embedder ai.Embedder,
	opts ...Option,
) (*Pipeline, error) {
	if connector == nil {
		return nil, ErrConnectorRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if documents == nil {
		return nil, ErrStoreRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		connector:      connector,
		extractor:      extractor,
		store:          documents,
		index:          index,
		pool:           pool,
		logger:         slog.Default(),
		maxRetries:     defaultMaxRetries,
		retryBaseDelay: defaultRetryBaseDelay,
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if p.reconciler == nil {
		var counter token.Counter
		counter, err := token.NewTiktoken("")
		if err != nil {
			p.logger.Warn("tiktoken encoding unavailable, falling back to whitespace counting", "err", err)
			counter = token.Words{}
		}
		p.reconciler = reconcile.NewReconciler(chunk.NewChunker(counter), reconcile.WithLogger(p.logger))
	}

	p.embed = newEmbeddingWorker(embedder, p.pool, p.maxRetries, p.retryBaseDelay, p.logger)

	return p, nil
}

// SyncReport summarizes one synchronization run.
type SyncReport struct {
	Created []string
	Updated []string
	Skipped []string
	Failed  []DocumentFailure
}

// DocumentFailure records a per-document error without aborting the run.
type DocumentFailure struct {
	Title string
	Err   error
}

// CleanupReport summarizes one cleanup run.
type CleanupReport struct {
	Removed  []string
	NotFound []string
	Failed   []DocumentFailure
}

// Sync fetches the requested documents from the source and brings the
// relational store and vector index in line with their current content.
// Unchanged documents are skipped without touching either store. Titles the
// connector could not deliver are recorded as failures. The scratch
// directory is cleared before returning, even on error.
func (p *Pipeline) Sync(ctx context.Context, req source.Request) (*SyncReport, error) {
	defer p.clearWorkDir()

	files, fetchFailures, err := p.connector.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	p.logger.Info("starting sync", "documents", len(files))

	report := &SyncReport{}
	for _, f := range fetchFailures {
		p.logger.Error("document fetch failed", "title", f.Title, "err", f.Err)
		report.Failed = append(report.Failed, DocumentFailure{Title: f.Title, Err: f.Err})
	}
	for _, file := range files {
		action, err := p.syncDocument(ctx, file)
		if err != nil {
			p.logger.Error("document sync failed", "title", file.Title, "err", err)
			report.Failed = append(report.Failed, DocumentFailure{Title: file.Title, Err: err})
			continue
		}
		switch action {
		case reconcile.ActionCreate:
			report.Created = append(report.Created, file.Title)
		case reconcile.ActionUpdate:
			report.Updated = append(report.Updated, file.Title)
		case reconcile.ActionNoop:
			report.Skipped = append(report.Skipped, file.Title)
		}
	}

	p.logger.Info("sync complete",
		"created", len(report.Created),
		"updated", len(report.Updated),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed))
	return report, nil
}

// syncDocument runs the full flow for one source file. Relational writes
// commit before vector writes; a vector failure after the relational commit
// surfaces as *PartialSyncError and flags the document index-dirty, so the
// next sync of the same title rebuilds its vectors instead of hash-matching
// into a noop.
func (p *Pipeline) syncDocument(ctx context.Context, file source.RawFile) (reconcile.Action, error) {
	text, err := p.extractor.Extract(ctx, file.Bytes)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: %q extracted no text", core.ErrEmptyDocument, file.Title)
	}

	stored, err := p.lookupStored(ctx, file.Title)
	if err != nil {
		return 0, err
	}

	plan, err := p.reconciler.Plan(reconcile.Incoming{
		Title:            file.Title,
		Content:          text,
		SourceModifiedAt: file.ModifiedAt,
	}, stored)
	if err != nil {
		return 0, err
	}

	if plan.Action == reconcile.ActionNoop {
		p.logger.Debug("document unchanged", "title", file.Title)
		return plan.Action, nil
	}

	// Embed before any write so a flaky embedding service leaves both
	// stores untouched.
	records, err := p.embed.embedChunks(ctx, plan.Upserts)
	if err != nil {
		return 0, err
	}

	if err := p.store.ApplySync(ctx, &plan.Document, plan.Upserts, plan.Deletes); err != nil {
		return 0, err
	}

	// A rebuild wipes the document's vectors first so orphans from an
	// earlier failed delete cannot survive; it also covers plan.Deletes.
	if plan.RebuildIndex {
		if err := p.index.DeleteByDocument(ctx, plan.Document.ID); err != nil {
			return 0, p.flagIndexDirty(ctx, file.Title, plan.Document.ID, err)
		}
	}

	if err := p.index.Upsert(ctx, records); err != nil {
		return 0, p.flagIndexDirty(ctx, file.Title, plan.Document.ID, err)
	}
	if len(plan.Deletes) > 0 && !plan.RebuildIndex {
		ids := make([]core.ID, len(plan.Deletes))
		for i := range plan.Deletes {
			ids[i] = plan.Deletes[i].VectorID()
		}
		if err := p.index.Delete(ctx, ids); err != nil {
			return 0, p.flagIndexDirty(ctx, file.Title, plan.Document.ID, err)
		}
	}

	p.logger.Info("document synced",
		"title", file.Title,
		"action", plan.Action.String(),
		"upserts", len(plan.Upserts),
		"deletes", len(plan.Deletes))
	return plan.Action, nil
}

// flagIndexDirty marks the committed document for a vector rebuild on its
// next sync and wraps the cause as a *PartialSyncError. The relational store
// is ahead of the index at this point; the flag is what lets a plain re-sync
// of the title converge the two again.
func (p *Pipeline) flagIndexDirty(ctx context.Context, title, documentID string, cause error) error {
	if err := p.store.SetIndexDirty(ctx, documentID, true); err != nil {
		p.logger.Error("failed to flag document for index rebuild", "title", title, "err", err)
	}
	return &PartialSyncError{Title: title, Err: cause}
}

// lookupStored loads the stored document and its chunks, or nil if the
// title is unknown.
func (p *Pipeline) lookupStored(ctx context.Context, title string) (*reconcile.Stored, error) {
	doc, err := p.store.GetDocumentByTitle(ctx, title)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	chunks, err := p.store.GetChunksByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return &reconcile.Stored{Document: *doc, Chunks: chunks}, nil
}

// Cleanup removes the named documents from both stores. Vector IDs are
// captured from the chunk rows before the relational delete cascades them
// away. Unknown titles are reported, not failed. The scratch directory is
// cleared before returning.
func (p *Pipeline) Cleanup(ctx context.Context, titles []string) (*CleanupReport, error) {
	defer p.clearWorkDir()

	report := &CleanupReport{}
	for _, title := range titles {
		doc, err := p.store.GetDocumentByTitle(ctx, title)
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Info("document not found during cleanup", "title", title)
			report.NotFound = append(report.NotFound, title)
			continue
		}
		if err != nil {
			report.Failed = append(report.Failed, DocumentFailure{Title: title, Err: err})
			continue
		}

		chunks, err := p.store.GetChunksByDocument(ctx, doc.ID)
		if err != nil {
			report.Failed = append(report.Failed, DocumentFailure{Title: title, Err: err})
			continue
		}
		// Capture vector IDs now; the relational delete cascades the
		// chunk rows they are derived from.
		ids := make([]core.ID, len(chunks))
		for i := range chunks {
			ids[i] = chunks[i].VectorID()
		}

		if err := p.store.DeleteDocument(ctx, doc.ID); err != nil {
			report.Failed = append(report.Failed, DocumentFailure{Title: title, Err: err})
			continue
		}
		if err := p.index.Delete(ctx, ids); err != nil {
			report.Failed = append(report.Failed, DocumentFailure{
				Title: title,
				Err:   &PartialSyncError{Title: title, Err: err},
			})
			continue
		}

		p.logger.Info("document removed", "title", title, "chunks", len(chunks))
		report.Removed = append(report.Removed, title)
	}
	return report, nil
}

// clearWorkDir empties the scratch directory. Safe to call repeatedly and
// when the directory does not exist.
func (p *Pipeline) clearWorkDir() {
	if p.workDir == "" {
		return
	}
	if err := os.RemoveAll(p.workDir); err != nil {
		p.logger.Warn("failed to clear work directory", "dir", p.workDir, "err", err)
		return
	}
	if err := os.MkdirAll(p.workDir, 0755); err != nil {
		p.logger.Warn("failed to recreate work directory", "dir", p.workDir, "err", err)
	}
}

// Release releases the worker pool. The pipeline should not be used after
// calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
