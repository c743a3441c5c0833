package vectorstore

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"factseeker/internal/core"
)

func doc(url, title string) core.Document {
	return core.Document{
		Content:  title,
		Metadata: map[string]string{"url": url, "title": title},
	}
}

func TestSearchOrdersByDistance(t *testing.T) {
	ix := New(2)
	for _, d := range []struct {
		url string
		vec []float32
	}{
		{"https://a.example.com", []float32{0, 0}},
		{"https://b.example.com", []float32{3, 4}},
		{"https://c.example.com", []float32{1, 0}},
	} {
		if err := ix.Add(doc(d.url, d.url), d.vec); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	matches := ix.Search([]float32{0, 0}, 3)
	if len(matches) != 3 {
		t.Fatalf("Expected 3 matches, got %d", len(matches))
	}
	wantOrder := []string{"https://a.example.com", "https://c.example.com", "https://b.example.com"}
	for i, want := range wantOrder {
		if got := matches[i].Document.URL(); got != want {
			t.Errorf("match %d: got %s, want %s", i, got, want)
		}
	}
	if matches[0].Distance != 0 {
		t.Errorf("Expected zero distance for identical vector, got %f", matches[0].Distance)
	}
	if math.Abs(matches[2].Distance-5.0) > 1e-9 {
		t.Errorf("Expected distance 5.0 for (3,4), got %f", matches[2].Distance)
	}
}

func TestSearchTruncatesToK(t *testing.T) {
	ix := New(1)
	for i := 0; i < 10; i++ {
		if err := ix.Add(doc("u", "t"), []float32{float32(i)}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if got := len(ix.Search([]float32{0}, 3)); got != 3 {
		t.Errorf("Expected 3 matches, got %d", got)
	}
	if got := len(ix.Search([]float32{0}, 100)); got != 10 {
		t.Errorf("Expected all 10 matches, got %d", got)
	}
}

func TestSearchEdgeCases(t *testing.T) {
	ix := New(2)
	if got := ix.Search([]float32{0, 0}, 3); got != nil {
		t.Errorf("Empty index must return nil, got %v", got)
	}
	if err := ix.Add(doc("u", "t"), []float32{1, 1}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if got := ix.Search([]float32{0, 0}, 0); got != nil {
		t.Errorf("k=0 must return nil, got %v", got)
	}
	if got := ix.Search([]float32{0}, 3); got != nil {
		t.Errorf("Dimension mismatch must return nil, got %v", got)
	}
}

func TestAddRejectsWrongDimension(t *testing.T) {
	ix := New(3)
	if err := ix.Add(doc("u", "t"), []float32{1, 2}); err == nil {
		t.Error("Expected dimension error")
	}
	if err := ix.AddBatch([]core.Document{doc("u", "t")}, [][]float32{{1, 2}, {3, 4}}); err == nil {
		t.Error("Expected count mismatch error")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")

	ix := New(2)
	docs := []core.Document{
		doc("https://a.example.com", "first title"),
		doc("https://b.example.com", "second title"),
	}
	vecs := [][]float32{{0.5, 0.25}, {1.5, -0.75}}
	if err := ix.AddBatch(docs, vecs); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	if err := Save(ix, dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !Exists(dir) {
		t.Fatal("Exists must report true after Save")
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Dim() != 2 || loaded.Len() != 2 {
		t.Fatalf("Loaded index has dim=%d len=%d", loaded.Dim(), loaded.Len())
	}

	matches := loaded.Search([]float32{0.5, 0.25}, 1)
	if len(matches) != 1 || matches[0].Document.URL() != "https://a.example.com" {
		t.Errorf("Round-tripped search mismatch: %+v", matches)
	}
	if matches[0].Document.Metadata["title"] != "first title" {
		t.Errorf("Metadata lost in round trip: %+v", matches[0].Document.Metadata)
	}
}

func TestLoadMissingDirIsCorrupt(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}
}

func TestLoadTruncatedVectorsIsCorrupt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	ix := New(1)
	if err := ix.Add(doc("u", "t"), []float32{1}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := Save(ix, dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, VectorsFileName), []byte("not gob"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(dir); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt for truncated vectors, got %v", err)
	}
}

func TestLoadMetaMismatchIsCorrupt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	ix := New(1)
	if err := ix.Add(doc("u", "t"), []float32{1}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := Save(ix, dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, MetaFileName), []byte(`{"dim":1,"count":7,"docs":[]}`), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(dir); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt for meta mismatch, got %v", err)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	ix := New(1)
	if err := ix.Add(doc("u", "t"), []float32{1}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := Save(ix, dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected exactly index.gob and meta.json, got %v", names)
	}
}
