package titleindex

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"factseeker/internal/core"
	"factseeker/internal/logger"
	"factseeker/internal/vectorstore"
)

// embedBatchSize is how many titles go into one embedding call.
const embedBatchSize = 100

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Uploader pushes a built partition directory to the object store;
// satisfied by objstore.Store.
type Uploader interface {
	UploadDir(ctx context.Context, srcDir, prefix string) error
}

// Builder turns a catalog of news titles into a partition index. The
// catalog is JSON Lines, one {"title": ..., "url": ...} object per line.
type Builder struct {
	embedder Embedder
	uploader Uploader
	localDir string
	prefix   string
}

// NewBuilder creates a Builder. A nil uploader builds locally only.
func NewBuilder(embedder Embedder, uploader Uploader, localDir, prefix string) *Builder {
	return &Builder{embedder: embedder, uploader: uploader, localDir: localDir, prefix: prefix}
}

// Build reads the catalog, embeds every title, and writes the partition
// under its directory name, uploading it when an object store is
// configured. It returns the number of titles indexed.
func (b *Builder) Build(ctx context.Context, catalogPath, partitionID string) (int, error) {
	entries, err := readCatalog(catalogPath)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("catalog %s contains no titles", catalogPath)
	}

	logger.Info("Building title partition", "partition", partitionID, "titles", len(entries))

	var ix *vectorstore.Index
	for start := 0; start < len(entries); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.Title
		}
		vectors, err := b.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed titles %d-%d: %w", start, end, err)
		}

		if ix == nil {
			ix = vectorstore.New(len(vectors[0]))
		}
		docs := make([]core.Document, len(batch))
		for i, e := range batch {
			docs[i] = core.Document{
				Content:  e.Title,
				Metadata: map[string]string{"title": e.Title, "url": e.URL},
			}
		}
		if err := ix.AddBatch(docs, vectors); err != nil {
			return 0, err
		}
	}

	dir := filepath.Join(b.localDir, partitionID)
	if err := vectorstore.Save(ix, dir); err != nil {
		return 0, fmt.Errorf("failed to save partition %s: %w", partitionID, err)
	}
	if b.uploader != nil {
		if err := b.uploader.UploadDir(ctx, dir, b.prefix+"/"+partitionID); err != nil {
			return 0, fmt.Errorf("failed to upload partition %s: %w", partitionID, err)
		}
	}

	logger.Info("Title partition built", "partition", partitionID, "titles", ix.Len())
	return ix.Len(), nil
}

// readCatalog parses a JSONL title catalog, skipping blank lines and lines
// missing a title or URL.
func readCatalog(path string) ([]core.TitleEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var entries []core.TitleEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var entry core.TitleEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			logger.Warn("Skipping malformed catalog line", "line", line, "error", err.Error())
			continue
		}
		if entry.Title == "" || entry.URL == "" {
			logger.Warn("Skipping catalog line without title or url", "line", line)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return entries, nil
}
