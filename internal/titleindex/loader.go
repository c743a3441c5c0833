package titleindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"factseeker/internal/logger"
	"factseeker/internal/vectorstore"
)

// ObjectStore is the object-store surface the loader and watcher need. It
// is satisfied by objstore.Store.
type ObjectStore interface {
	CommonPrefixes(ctx context.Context, prefix string) ([]string, error)
	DownloadPrefix(ctx context.Context, prefix, destDir string) error
	Fingerprint(ctx context.Context, prefix string) (string, error)
}

// Loader populates a Registry from partition directories, downloading them
// from the object store when they are not already on disk. A nil store
// restricts the loader to what localDir already holds.
type Loader struct {
	store    ObjectStore
	registry *Registry
	localDir string
	prefix   string
}

// NewLoader creates a Loader writing into registry.
func NewLoader(store ObjectStore, registry *Registry, localDir, prefix string) *Loader {
	return &Loader{store: store, registry: registry, localDir: localDir, prefix: prefix}
}

// LoadAll loads every partition it can discover. Partitions that fail to
// load are skipped with a warning so one bad partition cannot hold up the
// rest.
func (l *Loader) LoadAll(ctx context.Context) error {
	ids, err := l.discover(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		logger.Warn("No title index partitions found", "prefix", l.prefix)
		return nil
	}

	loaded := 0
	for _, id := range ids {
		if err := l.LoadPartition(ctx, id); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("Skipping title partition", "partition", id, "error", err.Error())
			continue
		}
		loaded++
	}
	logger.Info("Title index partitions loaded", "loaded", loaded, "discovered", len(ids))
	return nil
}

// LoadPartition loads one partition into the registry, downloading it
// first when the local copy is missing. A corrupt local copy is discarded
// and fetched again once.
func (l *Loader) LoadPartition(ctx context.Context, id string) error {
	dir := filepath.Join(l.localDir, id)

	if !vectorstore.Exists(dir) {
		if err := l.download(ctx, id, dir); err != nil {
			return err
		}
	}

	ix, err := vectorstore.Load(dir)
	if err != nil && l.store != nil {
		logger.Warn("Local title partition corrupt, fetching fresh copy", "partition", id, "error", err.Error())
		_ = os.RemoveAll(dir)
		if err := l.download(ctx, id, dir); err != nil {
			return err
		}
		ix, err = vectorstore.Load(dir)
	}
	if err != nil {
		return fmt.Errorf("failed to load partition %s: %w", id, err)
	}

	l.registry.Reload(id, ix)
	logger.Info("Title partition loaded", "partition", id, "titles", ix.Len())
	return nil
}

func (l *Loader) download(ctx context.Context, id, dir string) error {
	if l.store == nil {
		return fmt.Errorf("partition %s not present locally and no object store configured", id)
	}
	if err := l.store.DownloadPrefix(ctx, l.prefix+"/"+id, dir); err != nil {
		return fmt.Errorf("failed to download partition %s: %w", id, err)
	}
	return nil
}

// discover lists partition directory names, preferring the object store
// and falling back to the local directory.
func (l *Loader) discover(ctx context.Context) ([]string, error) {
	if l.store != nil {
		ids, err := l.store.CommonPrefixes(ctx, l.prefix+"/")
		if err != nil {
			return nil, fmt.Errorf("failed to list partitions: %w", err)
		}
		return ids, nil
	}

	entries, err := os.ReadDir(l.localDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read partition directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}
