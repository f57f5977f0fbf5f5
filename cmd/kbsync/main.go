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


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/kbsync"
	"github.com/poiesic/kbsync/ai"
	"github.com/poiesic/kbsync/ai/openai"
	"github.com/poiesic/kbsync/ingestion"
	"github.com/poiesic/kbsync/reindex"
	"github.com/poiesic/kbsync/source"
	"github.com/poiesic/kbsync/source/drive"
	"github.com/poiesic/kbsync/source/local"
	"github.com/poiesic/kbsync/vector/qdrant"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "kbsync",
		Usage: "Synchronize knowledge base documents into relational and vector stores",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file before parsing flags",
				Value: ".env",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "sync",
				Usage:     "Fetch documents from the source and reconcile both stores",
				ArgsUsage: "[title...]",
				Action:    syncCommand,
				Flags: append(storageFlags(),
					&cli.BoolFlag{
						Name:    "all",
						Aliases: []string{"a"},
						Usage:   "Sync every document visible in the source",
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Document source: drive or local",
						Value: "drive",
					},
					&cli.StringFlag{
						Name:    "credentials",
						Usage:   "Path to Google service account credentials JSON",
						EnvVars: []string{"GOOGLE_APPLICATION_CREDENTIALS"},
					},
					&cli.StringFlag{
						Name:    "folder-id",
						Usage:   "Google Drive folder to sync from",
						EnvVars: []string{"KBSYNC_FOLDER_ID"},
					},
					&cli.StringFlag{
						Name:  "local-dir",
						Usage: "Directory to sync from when --source=local",
					},
					&cli.StringFlag{
						Name:  "work-dir",
						Usage: "Scratch directory for downloaded files, cleared after each run",
						Value: "kbsync-work",
					},
					&cli.StringFlag{
						Name:    "embedding-host",
						Usage:   "Embedding service host URL",
						EnvVars: []string{"KBSYNC_EMBEDDING_HOST"},
						Value:   "http://localhost:11434/v1",
					},
					&cli.StringFlag{
						Name:    "embedding-model",
						Usage:   "Embedding model name",
						EnvVars: []string{"KBSYNC_EMBEDDING_MODEL"},
						Value:   "embeddinggemma",
					},
					&cli.StringFlag{
						Name:    "api-key",
						Usage:   "Embedding service API key",
						EnvVars: []string{"OPENAI_API_KEY"},
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Worker pool size for concurrent embedding",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for embedding calls",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 500 * time.Millisecond,
					},
				),
			},
			{
				Name:      "cleanup",
				Usage:     "Remove documents from both stores by title",
				ArgsUsage: "title [title...]",
				Action:    cleanupCommand,
				Flags:     storageFlags(),
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the vector index from the stored chunk rows",
				Action: reindexCommand,
				Flags: append(storageFlags(),
					&cli.StringFlag{
						Name:    "embedding-host",
						Usage:   "Embedding service host URL",
						EnvVars: []string{"KBSYNC_EMBEDDING_HOST"},
						Value:   "http://localhost:11434/v1",
					},
					&cli.StringFlag{
						Name:    "embedding-model",
						Usage:   "Embedding model name",
						EnvVars: []string{"KBSYNC_EMBEDDING_MODEL"},
						Value:   "embeddinggemma",
					},
					&cli.StringFlag{
						Name:    "api-key",
						Usage:   "Embedding service API key",
						EnvVars: []string{"OPENAI_API_KEY"},
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed per request",
						Value: 32,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for embedding calls",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: time.Second,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// storageFlags are shared by every command that opens the stores.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to the SQLite database file",
			EnvVars:  []string{"KBSYNC_DB"},
			Required: true,
		},
		&cli.StringFlag{
			Name:  "index-path",
			Usage: "Directory for the embedded vector index (default: vectors/ next to the database)",
		},
		&cli.StringFlag{
			Name:    "qdrant-url",
			Usage:   "Qdrant base URL; when set, vectors go to Qdrant instead of the embedded index",
			EnvVars: []string{"KBSYNC_QDRANT_URL"},
		},
		&cli.StringFlag{
			Name:    "qdrant-api-key",
			Usage:   "Qdrant API key",
			EnvVars: []string{"KBSYNC_QDRANT_API_KEY"},
		},
		&cli.StringFlag{
			Name:  "qdrant-collection",
			Usage: "Qdrant collection name",
			Value: "kbsync",
		},
		&cli.IntFlag{
			Name:  "dimension",
			Usage: "Embedding vector dimension (Qdrant collections only)",
			Value: 1536,
		},
	}
}

func setup(c *cli.Context) error {
	// Missing env files are fine; flags and the environment still apply.
	if err := godotenv.Load(c.String("env-file")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading env file: %w", err)
	}
	return setupLogger(c)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// serviceOptions translates shared flags into service options.
func serviceOptions(c *cli.Context) []kbsync.ServiceOption {
	opts := []kbsync.ServiceOption{}
	if path := c.String("index-path"); path != "" {
		opts = append(opts, kbsync.WithIndexPath(path))
	}
	if url := c.String("qdrant-url"); url != "" {
		opts = append(opts, kbsync.WithQdrantConfig(qdrant.Config{
			URL:        url,
			APIKey:     c.String("qdrant-api-key"),
			Collection: c.String("qdrant-collection"),
			Dimension:  c.Int("dimension"),
		}))
	}
	return opts
}

func syncCommand(c *cli.Context) error {
	ctx := context.Background()

	titles := c.Args().Slice()
	if !c.Bool("all") && len(titles) == 0 {
		return fmt.Errorf("pass document titles or --all")
	}

	opts := serviceOptions(c)
	opts = append(opts,
		kbsync.WithWorkDir(c.String("work-dir")),
		kbsync.WithAIConfig(ai.NewConfig(
			ai.WithEmbeddingHost(c.String("embedding-host")),
			ai.WithEmbeddingModel(c.String("embedding-model")),
			ai.WithAPIKey(c.String("api-key")),
		)),
	)

	switch c.String("source") {
	case "drive":
		opts = append(opts, kbsync.WithDriveConfig(drive.Config{
			CredentialsFile: c.String("credentials"),
			FolderID:        c.String("folder-id"),
			DownloadDir:     c.String("work-dir"),
		}))
	case "local":
		dir := c.String("local-dir")
		if dir == "" {
			return fmt.Errorf("--local-dir is required with --source=local")
		}
		opts = append(opts, kbsync.WithConnector(local.New(dir)))
	default:
		return fmt.Errorf("unknown source %q: must be drive or local", c.String("source"))
	}

	svc, err := kbsync.NewService(ctx, c.String("db"), opts...)
	if err != nil {
		return fmt.Errorf("failed to assemble service: %w", err)
	}
	defer svc.Close()

	pipelineOpts := []ingestion.Option{
		ingestion.WithRetry(c.Int("max-retries"), c.Duration("retry-delay")),
	}
	if size := c.Int("pool-size"); size > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(size))
	}
	pipeline, err := svc.NewSyncPipeline(pipelineOpts...)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer pipeline.Release()

	report, err := pipeline.Sync(ctx, source.Request{All: c.Bool("all"), Titles: titles})
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	printSyncReport(report)
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d document(s) failed", len(report.Failed))
	}
	return nil
}

func cleanupCommand(c *cli.Context) error {
	ctx := context.Background()

	titles := c.Args().Slice()
	if len(titles) == 0 {
		return fmt.Errorf("pass at least one document title")
	}

	// Cleanup never reaches the source or the embedder.
	opts := append(serviceOptions(c),
		kbsync.WithConnector(noSource{}),
		kbsync.WithEmbedder(noEmbedder{}),
	)
	svc, err := kbsync.NewService(ctx, c.String("db"), opts...)
	if err != nil {
		return fmt.Errorf("failed to assemble service: %w", err)
	}
	defer svc.Close()

	pipeline, err := svc.NewSyncPipeline()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer pipeline.Release()

	report, err := pipeline.Cleanup(ctx, titles)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	printCleanupReport(report)
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d document(s) failed", len(report.Failed))
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	ctx := context.Background()

	if c.Int("batch-size") <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if c.Int("max-retries") <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	embedder, err := openai.NewEmbedder(ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithAPIKey(c.String("api-key")),
	))
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	opts := append(serviceOptions(c),
		kbsync.WithConnector(noSource{}),
		kbsync.WithEmbedder(embedder),
	)
	svc, err := kbsync.NewService(ctx, c.String("db"), opts...)
	if err != nil {
		return fmt.Errorf("failed to assemble service: %w", err)
	}
	defer svc.Close()

	reindexer := reindex.NewReindexer(svc.DocumentStore(), svc.VectorIndex(), embedder, &reindex.Config{
		BatchSize:  c.Int("batch-size"),
		MaxRetries: c.Int("max-retries"),
		RetryDelay: c.Duration("retry-delay"),
	}, os.Stderr)

	if err := reindexer.Run(ctx); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func printSyncReport(report *ingestion.SyncReport) {
	for _, title := range report.Created {
		fmt.Printf("created   %s\n", title)
	}
	for _, title := range report.Updated {
		fmt.Printf("updated   %s\n", title)
	}
	for _, title := range report.Skipped {
		fmt.Printf("unchanged %s\n", title)
	}
	for _, failure := range report.Failed {
		fmt.Printf("failed    %s: %v\n", failure.Title, failure.Err)
	}
}

func printCleanupReport(report *ingestion.CleanupReport) {
	for _, title := range report.Removed {
		fmt.Printf("removed   %s\n", title)
	}
	for _, title := range report.NotFound {
		fmt.Printf("not found %s\n", title)
	}
	for _, failure := range report.Failed {
		fmt.Printf("failed    %s: %v\n", failure.Title, failure.Err)
	}
}

// noSource satisfies the connector requirement for commands that never fetch.
type noSource struct{}

func (noSource) Fetch(ctx context.Context, req source.Request) ([]source.RawFile, []source.Failure, error) {
	return nil, nil, fmt.Errorf("no document source configured")
}

// noEmbedder satisfies the embedder requirement for commands that never embed.
type noEmbedder struct{}

func (noEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("no embedding service configured")
}

func (noEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("no embedding service configured")
}
