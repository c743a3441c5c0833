package vectorstore

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"factseeker/internal/core"
)

// On-disk layout of a persisted index: one directory holding the vector
// file and the document metadata file. The pair plays the role the
// reference deployment's index.faiss/index.pkl pair plays; consumers treat
// the directory as opaque.
const (
	VectorsFileName = "index.gob"
	MetaFileName    = "meta.json"
)

// ErrCorrupt marks a persisted index that failed to load. Callers remove
// the directory and fall through to the next cache tier.
var ErrCorrupt = errors.New("vector index corrupt")

type vectorsFile struct {
	Dim     int
	Vectors [][]float32
}

type metaFile struct {
	Dim   int             `json:"dim"`
	Count int             `json:"count"`
	Docs  []core.Document `json:"docs"`
}

// Exists reports whether dir holds both index files.
func Exists(dir string) bool {
	for _, name := range []string{VectorsFileName, MetaFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Save persists the index into dir. Both files are written to a temporary
// name and renamed into place so a concurrent writer of the same key can
// duplicate work but never leave a torn file behind.
func Save(ix *Index, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	vf := vectorsFile{Dim: ix.dim, Vectors: ix.vectors}
	if err := writeAtomic(filepath.Join(dir, VectorsFileName), func(f *os.File) error {
		return gob.NewEncoder(f).Encode(&vf)
	}); err != nil {
		return fmt.Errorf("failed to write vectors file: %w", err)
	}

	mf := metaFile{Dim: ix.dim, Count: len(ix.docs), Docs: ix.docs}
	if err := writeAtomic(filepath.Join(dir, MetaFileName), func(f *os.File) error {
		return json.NewEncoder(f).Encode(&mf)
	}); err != nil {
		return fmt.Errorf("failed to write meta file: %w", err)
	}

	return nil
}

// Load reads a persisted index from dir. Every failure mode (missing file,
// truncated encoding, mismatched counts) comes back wrapped in ErrCorrupt.
func Load(dir string) (*Index, error) {
	vf := vectorsFile{}
	f, err := os.Open(filepath.Join(dir, VectorsFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	err = gob.NewDecoder(f).Decode(&vf)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: decoding vectors: %v", ErrCorrupt, err)
	}

	mf := metaFile{}
	m, err := os.Open(filepath.Join(dir, MetaFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	err = json.NewDecoder(m).Decode(&mf)
	_ = m.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: decoding meta: %v", ErrCorrupt, err)
	}

	if mf.Dim != vf.Dim || mf.Count != len(vf.Vectors) || len(mf.Docs) != len(vf.Vectors) {
		return nil, fmt.Errorf("%w: meta/vector mismatch (dim %d/%d, count %d/%d)",
			ErrCorrupt, mf.Dim, vf.Dim, mf.Count, len(vf.Vectors))
	}

	return &Index{dim: vf.Dim, vectors: vf.Vectors, docs: mf.Docs}, nil
}

// writeAtomic writes via a temporary file in the same directory followed by
// a rename.
func writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
