package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"comicsqueeze/internal/comic"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte("placeholder"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDiscoverSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.cbz")
	touch(t, path)

	containers, err := Discover(path)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(containers) != 1 {
		t.Fatalf("expected 1 container, got %d", len(containers))
	}
	if containers[0].Path != path || containers[0].Kind != comic.KindZip {
		t.Fatalf("unexpected container %+v", containers[0])
	}
}

func TestDiscoverSingleUnsupportedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	touch(t, path)

	_, err := Discover(path)
	if !errors.Is(err, comic.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDiscoverMissingPath(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "nope.cbz")); err == nil {
		t.Fatal("expected an error for a missing path")
	}
}

func TestDiscoverDirectory(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "c.pdf"))
	touch(t, filepath.Join(dir, "a.cbz"))
	touch(t, filepath.Join(dir, "b.cbr"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "nested", "d.cbz"))

	containers, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	want := []string{
		filepath.Join(dir, "a.cbz"),
		filepath.Join(dir, "b.cbr"),
		filepath.Join(dir, "c.pdf"),
		filepath.Join(dir, "nested", "d.cbz"),
	}
	if len(containers) != len(want) {
		t.Fatalf("expected %d containers, got %d: %+v", len(want), len(containers), containers)
	}
	for i, c := range containers {
		if c.Path != want[i] {
			t.Errorf("container %d: got %s, want %s", i, c.Path, want[i])
		}
	}
}

func TestDiscoverIgnoresPriorOutputs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "book.cbz"))
	touch(t, filepath.Join(dir, "book optimized_webp_q90.cbz"))
	touch(t, filepath.Join(dir, "other optimized_jpeg_q60.cbz"))

	containers, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(containers) != 1 || filepath.Base(containers[0].Path) != "book.cbz" {
		t.Fatalf("expected only the original book.cbz, got %+v", containers)
	}
}
