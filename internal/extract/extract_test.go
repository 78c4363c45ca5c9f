package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"comicsqueeze/internal/comic"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type zipEntry struct {
	name string
	data []byte
}

func writeZip(t *testing.T, path string, entries []zipEntry) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "book.cbz")
	writeZip(t, src, []zipEntry{
		{"001.png", []byte("page one")},
		{"002.png", []byte("page two")},
		{"extras/cover.jpg", []byte("cover")},
	})

	dest := t.TempDir()
	c := comic.Container{Path: src, Kind: comic.KindZip}
	if err := Extract(c, dest, testLogger()); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for name, want := range map[string]string{
		"001.png":          "page one",
		"002.png":          "page two",
		"extras/cover.jpg": "cover",
	} {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("missing extracted entry %s: %v", name, err)
		}
		if string(got) != want {
			t.Errorf("entry %s = %q, want %q", name, got, want)
		}
	}
}

func TestExtractMislabeledCbrFallsBackToZip(t *testing.T) {
	// A .cbr whose bytes are actually a zip must extract through the
	// fallback and produce the same file set as direct zip extraction.
	dir := t.TempDir()
	src := filepath.Join(dir, "book.cbr")
	entries := []zipEntry{
		{"001.jpg", []byte("one")},
		{"002.jpg", []byte("two")},
	}
	writeZip(t, src, entries)

	dest := t.TempDir()
	c := comic.Container{Path: src, Kind: comic.KindRar}
	if err := Extract(c, dest, testLogger()); err != nil {
		t.Fatalf("Extract via fallback: %v", err)
	}

	got, err := FindImages(dest)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(entries) {
		t.Fatalf("extracted %d images, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		data, err := os.ReadFile(got[i])
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != string(e.data) {
			t.Errorf("entry %d = %q, want %q", i, data, e.data)
		}
	}
}

func TestExtractCbrBothStrategiesFail(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.cbr")
	if err := os.WriteFile(src, []byte("neither rar nor zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	err := Extract(comic.Container{Path: src, Kind: comic.KindRar}, dest, testLogger())
	if err == nil {
		t.Fatal("Extract should fail when both strategies fail")
	}
	var pe *comic.PipelineError
	if !errors.As(err, &pe) || pe.Stage != comic.StageExtract {
		t.Fatalf("error = %v, want extract-stage PipelineError", err)
	}
}

func TestExtractZipMissingFile(t *testing.T) {
	dest := t.TempDir()
	err := Extract(comic.Container{Path: "/no/such/book.cbz", Kind: comic.KindZip}, dest, testLogger())
	if err == nil {
		t.Fatal("Extract of a missing file should fail")
	}
}

func TestFindImages(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"010.png":        "x",
		"002.jpg":        "x",
		"001.jpeg":       "x",
		"sub/003.bmp":    "x",
		"sub/004.TIFF":   "x",
		"notes.txt":      "x",
		"ComicInfo.xml":  "x",
		"thumbs/005.gif": "x",
	}
	for name, data := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := FindImages(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "001.jpeg"),
		filepath.Join(dir, "002.jpg"),
		filepath.Join(dir, "010.png"),
		filepath.Join(dir, "sub", "003.bmp"),
		filepath.Join(dir, "sub", "004.TIFF"),
	}
	if len(got) != len(want) {
		t.Fatalf("FindImages returned %d paths, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("images[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSafeJoinRejectsEscapes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"../outside.png",
		"a/../../outside.png",
		"/etc/passwd",
	} {
		if _, err := safeJoin(dir, name); err == nil {
			t.Errorf("safeJoin(%q) should be rejected", name)
		}
	}
	if _, err := safeJoin(dir, "pages/001.png"); err != nil {
		t.Errorf("safeJoin on a normal relative path: %v", err)
	}
}
