// Command indexclear wipes every record from a vector index. Useful when
// rebuilding a knowledge base from scratch; the relational store is left
// untouched, so the next sync run repopulates the index.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/poiesic/kbsync/vector/badgerindex"
	"github.com/poiesic/kbsync/vector/qdrant"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "indexclear",
		Usage: "Delete every record from a kbsync vector index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "index-path",
				Usage: "Directory of an embedded vector index",
			},
			&cli.StringFlag{
				Name:    "qdrant-url",
				Usage:   "Qdrant base URL",
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
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "Skip the confirmation prompt",
			},
		},
		Before: func(c *cli.Context) error {
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				return err
			}
			return nil
		},
		Action: clearCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func clearCommand(c *cli.Context) error {
	ctx := context.Background()

	indexPath := c.String("index-path")
	qdrantURL := c.String("qdrant-url")
	if (indexPath == "") == (qdrantURL == "") {
		return fmt.Errorf("pass exactly one of --index-path or --qdrant-url")
	}

	if !c.Bool("yes") {
		fmt.Print("This deletes every vector record. Continue? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("aborted")
			return nil
		}
	}

	if qdrantURL != "" {
		idx, err := qdrant.NewIndex(ctx, qdrant.Config{
			URL:        qdrantURL,
			APIKey:     c.String("qdrant-api-key"),
			Collection: c.String("qdrant-collection"),
			Dimension:  c.Int("dimension"),
		})
		if err != nil {
			return fmt.Errorf("failed to reach qdrant: %w", err)
		}
		defer idx.Close()
		if err := idx.Clear(ctx); err != nil {
			return err
		}
		fmt.Printf("cleared collection %q\n", c.String("qdrant-collection"))
		return nil
	}

	idx, err := badgerindex.Open(indexPath, false)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer idx.Close()
	if err := idx.Clear(ctx); err != nil {
		return err
	}
	fmt.Printf("cleared index at %s\n", indexPath)
	return nil
}
