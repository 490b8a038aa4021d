package reporting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
)

// ObjectStore receives rendered report artifacts.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Archive uploads reports under prefix/<generated-at>/.
type Archive struct {
	store  ObjectStore
	prefix string
}

// NewArchive creates an archive writing into store.
func NewArchive(store ObjectStore, prefix string) *Archive {
	return &Archive{store: store, prefix: prefix}
}

// Store uploads the Markdown and CSV renderings and returns their keys.
func (a *Archive) Store(ctx context.Context, r *Report) ([]string, error) {
	dir := path.Join(a.prefix, r.GeneratedAt.UTC().Format("20060102T150405Z"))
	artifacts := []struct {
		name        string
		contentType string
		body        string
	}{
		{"VAULT_REPORT.md", "text/markdown; charset=utf-8", RenderMarkdown(r)},
		{"VAULTS.csv", "text/csv; charset=utf-8", RenderCSV(r)},
	}

	keys := make([]string, 0, len(artifacts))
	for _, art := range artifacts {
		key := path.Join(dir, art.name)
		body := []byte(art.body)
		if err := a.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), art.contentType); err != nil {
			return keys, fmt.Errorf("archive %s: %w", art.name, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
