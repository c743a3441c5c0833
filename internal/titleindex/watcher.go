package titleindex

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"factseeker/internal/logger"
)

// Watcher polls the object store and reloads partitions whose contents
// changed since the last poll. New partitions are picked up, deleted ones
// dropped from the registry.
type Watcher struct {
	loader   *Loader
	interval time.Duration

	fingerprints map[string]string
}

// NewWatcher creates a Watcher around loader. interval must be positive.
func NewWatcher(loader *Loader, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watcher{
		loader:       loader,
		interval:     interval,
		fingerprints: make(map[string]string),
	}
}

// Run polls until the context is cancelled. One failed poll is logged and
// retried on the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("Partition watch poll failed", "error", err.Error())
			}
		}
	}
}

// Poll runs a single reconciliation pass. Exported for one-shot use from
// the CLI.
func (w *Watcher) Poll(ctx context.Context) error {
	return w.poll(ctx)
}

func (w *Watcher) poll(ctx context.Context) error {
	store := w.loader.store
	if store == nil {
		return nil
	}

	ids, err := store.CommonPrefixes(ctx, w.loader.prefix+"/")
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
		fp, err := store.Fingerprint(ctx, w.loader.prefix+"/"+id)
		if err != nil {
			logger.Warn("Partition fingerprint failed", "partition", id, "error", err.Error())
			continue
		}
		if w.fingerprints[id] == fp {
			continue
		}

		if w.fingerprints[id] == "" {
			logger.Info("New title partition detected", "partition", id)
		} else {
			logger.Info("Title partition changed, reloading", "partition", id)
		}
		if err := w.reload(ctx, id); err != nil {
			logger.Warn("Partition reload failed", "partition", id, "error", err.Error())
			continue
		}
		w.fingerprints[id] = fp
	}

	for id := range w.fingerprints {
		if !seen[id] {
			logger.Info("Title partition removed", "partition", id)
			w.loader.registry.Remove(id)
			delete(w.fingerprints, id)
		}
	}
	return nil
}

// reload forces a fresh download so the registry swap reflects the new
// object-store contents rather than the stale local copy.
func (w *Watcher) reload(ctx context.Context, id string) error {
	if err := os.RemoveAll(filepath.Join(w.loader.localDir, id)); err != nil {
		return err
	}
	return w.loader.LoadPartition(ctx, id)
}
