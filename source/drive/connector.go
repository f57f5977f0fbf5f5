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


// Package drive implements a source.Connector over a Google Drive folder.
//
// Both native Google Docs and uploaded .docx files are fetched; Google Docs
// are exported to .docx so a single extractor handles everything downstream.
package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/source"
)

// Drive MIME types handled by the connector.
const (
	mimeTypeGoogleDoc = "application/vnd.google-apps.document"
	mimeTypeDocx      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// maxDownloadSize bounds a single document download (10MB).
const maxDownloadSize = 10 * 1024 * 1024

// Config holds connection settings for the Drive folder.
type Config struct {
	// CredentialsFile is the path to a service account JSON key with
	// read-only Drive scope.
	CredentialsFile string

	// FolderID is the Drive folder holding the documents.
	FolderID string

	// DownloadDir receives a .docx copy of each fetched document. It is a
	// transient working directory; the orchestrator clears it after every
	// run.
	DownloadDir string
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if c.CredentialsFile == "" {
		return fmt.Errorf("drive config: CredentialsFile is required")
	}
	if c.FolderID == "" {
		return fmt.Errorf("drive config: FolderID is required")
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("drive config: DownloadDir is required")
	}
	return nil
}

// Connector fetches documents from a Google Drive folder.
type Connector struct {
	cfg    Config
	svc    *drive.Service
	logger *slog.Logger
}

var _ source.Connector = (*Connector)(nil)

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConnector authenticates with the service account key and prepares the
// download directory.
func NewConnector(ctx context.Context, cfg Config, opts ...Option) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}

	key, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading credentials: %v", core.ErrSourceUnavailable, err)
	}
	jwt, err := google.JWTConfigFromJSON(key, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing service account key: %v", core.ErrSourceUnavailable, err)
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(jwt.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%w: drive auth: %v", core.ErrSourceUnavailable, err)
	}

	c := &Connector{
		cfg:    cfg,
		svc:    svc,
		logger: slog.Default().With("component", "drive-connector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch lists the folder and downloads the selected documents. Download
// errors and requested titles absent from the folder are returned as
// per-document failures; a listing failure aborts the fetch.
func (c *Connector) Fetch(ctx context.Context, req source.Request) ([]source.RawFile, []source.Failure, error) {
	files, err := c.listFolder(ctx)
	if err != nil {
		return nil, nil, err
	}

	if !req.All {
		files = slices.DeleteFunc(files, func(f *drive.File) bool {
			return !slices.Contains(req.Titles, titleOf(f.Name))
		})
	}

	raws := make([]source.RawFile, 0, len(files))
	var failures []source.Failure
	for _, f := range files {
		raw, err := c.download(ctx, f)
		if err != nil {
			c.logger.Error("failed to download document", "name", f.Name, "err", err)
			failures = append(failures, source.Failure{Title: titleOf(f.Name), Err: err})
			continue
		}
		raws = append(raws, raw)
	}
	failures = append(failures, source.MissingTitles(req, raws, failures)...)

	c.logger.Info("fetched documents from drive",
		"listed", len(files), "downloaded", len(raws), "failures", len(failures))
	return raws, failures, nil
}

// listFolder returns the Google Docs and .docx files inside the folder.
func (c *Connector) listFolder(ctx context.Context) ([]*drive.File, error) {
	query := fmt.Sprintf("'%s' in parents and (mimeType='%s' or mimeType='%s') and trashed=false",
		c.cfg.FolderID, mimeTypeDocx, mimeTypeGoogleDoc)

	var files []*drive.File
	call := c.svc.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name, mimeType, modifiedTime)").
		PageSize(100).
		Context(ctx)

	err := call.Pages(ctx, func(page *drive.FileList) error {
		files = append(files, page.Files...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing folder: %v", core.ErrSourceUnavailable, err)
	}
	return files, nil
}

// download fetches one file, writing a .docx copy into the download
// directory and returning the bytes.
func (c *Connector) download(ctx context.Context, f *drive.File) (source.RawFile, error) {
	var body io.ReadCloser

	if f.MimeType == mimeTypeGoogleDoc {
		resp, err := c.svc.Files.Export(f.Id, mimeTypeDocx).Context(ctx).Download()
		if err != nil {
			return source.RawFile{}, fmt.Errorf("%w: export %s: %v", core.ErrSourceUnavailable, f.Name, err)
		}
		body = resp.Body
	} else {
		resp, err := c.svc.Files.Get(f.Id).Context(ctx).Download()
		if err != nil {
			return source.RawFile{}, fmt.Errorf("%w: download %s: %v", core.ErrSourceUnavailable, f.Name, err)
		}
		body = resp.Body
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxDownloadSize))
	if err != nil {
		return source.RawFile{}, fmt.Errorf("%w: reading %s: %v", core.ErrSourceUnavailable, f.Name, err)
	}

	title := titleOf(f.Name)

	// Keep a local copy so operators can inspect what was synced. The
	// pipeline clears this directory at the end of every run.
	localPath := filepath.Join(c.cfg.DownloadDir, title+".docx")
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		c.logger.Warn("failed to write local copy", "path", localPath, "err", err)
	}

	var modified time.Time
	if f.ModifiedTime != "" {
		if t, parseErr := time.Parse(time.RFC3339, f.ModifiedTime); parseErr == nil {
			modified = t
		}
	}

	c.logger.Debug("downloaded document", "title", title, "bytes", len(data))
	return source.RawFile{Title: title, Bytes: data, ModifiedAt: modified}, nil
}

// titleOf strips the extension from a source filename; titles are the
// document key.
func titleOf(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
