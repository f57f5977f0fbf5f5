// Package local reads documents from a directory on disk. It is the
// source connector for deployments that rsync or mount their knowledge base
// instead of pulling it from Drive.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/source"
)

// Connector lists and reads raw documents from a single directory.
// Subdirectories are ignored.
type Connector struct {
	dir    string
	logger *slog.Logger
}

var _ source.Connector = (*Connector)(nil)

// New creates a connector over the given directory.
func New(dir string) *Connector {
	return &Connector{
		dir:    dir,
		logger: slog.Default().With("component", "local-source"),
	}
}

// Fetch reads the requested documents. Titles are file names without their
// extension. Unreadable files and requested titles with no matching file are
// returned as per-document failures.
func (c *Connector) Fetch(ctx context.Context, req source.Request) ([]source.RawFile, []source.Failure, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading %s: %v", core.ErrSourceUnavailable, c.dir, err)
	}

	wanted := make(map[string]bool, len(req.Titles))
	for _, title := range req.Titles {
		wanted[title] = true
	}

	var (
		files    []source.RawFile
		failures []source.Failure
	)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if entry.IsDir() {
			continue
		}
		title := titleOf(entry.Name())
		if !req.All && !wanted[title] {
			continue
		}

		path := filepath.Join(c.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn("unreadable file", "path", path, "err", err)
			failures = append(failures, source.Failure{Title: title, Err: err})
			continue
		}
		info, err := entry.Info()
		if err != nil {
			c.logger.Warn("file without metadata", "path", path, "err", err)
			failures = append(failures, source.Failure{Title: title, Err: err})
			continue
		}

		files = append(files, source.RawFile{
			Title:      title,
			Bytes:      data,
			ModifiedAt: info.ModTime().UTC(),
		})
	}
	failures = append(failures, source.MissingTitles(req, files, failures)...)

	c.logger.Debug("fetched local documents", "dir", c.dir, "count", len(files), "failures", len(failures))
	return files, failures, nil
}

// titleOf strips the file extension.
func titleOf(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
