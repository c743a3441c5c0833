// Package titleindex manages the partitioned news-title vector indexes the
// retriever searches. Partitions are immutable once loaded; reloads swap a
// fresh copy into the registry so in-flight searches keep the snapshot they
// started with.
package titleindex

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"factseeker/internal/vectorstore"
)

var ordinalPattern = regexp.MustCompile(`(\d+)$`)

// Partition is one loaded title index. The Index field is never mutated
// after load; a reload produces a new Partition.
type Partition struct {
	ID      string
	Index   *vectorstore.Index
	ordinal int
}

// NewPartition wraps a loaded index under its partition directory name.
func NewPartition(id string, ix *vectorstore.Index) *Partition {
	return &Partition{ID: id, Index: ix, ordinal: ParseOrdinal(id)}
}

// Ordinal returns the numeric suffix of the partition ID, or -1 when the ID
// has none.
func (p *Partition) Ordinal() int {
	return p.ordinal
}

// ParseOrdinal extracts the trailing number from a partition ID.
func ParseOrdinal(id string) int {
	m := ordinalPattern.FindStringSubmatch(id)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}

// Registry holds the active partition set. Readers get an immutable
// snapshot; Reload and Remove swap in a new slice copy-on-write so a
// snapshot taken before a swap stays coherent.
type Registry struct {
	mu          sync.RWMutex
	partitions  []*Partition
	overflowTag string
}

// NewRegistry creates an empty registry. overflowTag marks the partitions
// used for the low-confidence overflow pass: any partition whose ID
// contains it.
func NewRegistry(overflowTag string) *Registry {
	return &Registry{overflowTag: overflowTag}
}

// Partitions returns the current snapshot, ordered by descending ordinal.
// The returned slice must not be modified.
func (r *Registry) Partitions() []*Partition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.partitions
}

// OverflowPartitions returns the snapshot filtered to partitions whose ID
// contains the overflow tag.
func (r *Registry) OverflowPartitions() []*Partition {
	r.mu.RLock()
	snapshot := r.partitions
	tag := r.overflowTag
	r.mu.RUnlock()

	if tag == "" {
		return nil
	}
	var overflow []*Partition
	for _, p := range snapshot {
		if strings.Contains(p.ID, tag) {
			overflow = append(overflow, p)
		}
	}
	return overflow
}

// Len returns the number of loaded partitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.partitions)
}

// Reload atomically replaces (or adds) a partition. Snapshots handed out
// before the call still see the previous index.
func (r *Registry) Reload(id string, ix *vectorstore.Index) {
	next := NewPartition(id, ix)

	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := false
	updated := make([]*Partition, 0, len(r.partitions)+1)
	for _, p := range r.partitions {
		if p.ID == id {
			updated = append(updated, next)
			replaced = true
		} else {
			updated = append(updated, p)
		}
	}
	if !replaced {
		updated = append(updated, next)
	}
	sortPartitions(updated)
	r.partitions = updated
}

// Remove drops a partition from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := make([]*Partition, 0, len(r.partitions))
	for _, p := range r.partitions {
		if p.ID != id {
			updated = append(updated, p)
		}
	}
	r.partitions = updated
}

// sortPartitions orders by descending ordinal; IDs without an ordinal sort
// last, alphabetically, to keep the order deterministic.
func sortPartitions(partitions []*Partition) {
	sort.SliceStable(partitions, func(i, j int) bool {
		if partitions[i].ordinal != partitions[j].ordinal {
			return partitions[i].ordinal > partitions[j].ordinal
		}
		return partitions[i].ID < partitions[j].ID
	})
}
