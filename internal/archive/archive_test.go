package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"comicsqueeze/internal/comic"
	"comicsqueeze/internal/extract"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTree(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readArchive(t *testing.T, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive %s: %v", path, err)
	}
	defer zr.Close()
	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		out[f.Name] = data
	}
	return out
}

func TestCreatePreservesRelativePaths(t *testing.T) {
	src := t.TempDir()
	files := map[string][]byte{
		"0001.webp":        []byte("page one"),
		"0002.webp":        []byte("page two"),
		"extras/cover.jpg": []byte("cover art"),
	}
	writeTree(t, src, files)

	out := filepath.Join(t.TempDir(), "book.cbz")
	if err := Create(src, out, testLogger()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got := readArchive(t, out)
	if len(got) != len(files) {
		t.Fatalf("archive holds %d entries, want %d", len(got), len(files))
	}
	for name, data := range files {
		if !bytes.Equal(got[name], data) {
			t.Errorf("entry %s = %q, want %q", name, got[name], data)
		}
	}
}

func TestCreateUsesDeflate(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string][]byte{"0001.webp": bytes.Repeat([]byte("compressible "), 200)})

	out := filepath.Join(t.TempDir(), "book.cbz")
	if err := Create(src, out, testLogger()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Method != zip.Deflate {
			t.Errorf("entry %s stored with method %d, want deflate", f.Name, f.Method)
		}
	}
}

func TestCreateEntryOrderIsLexical(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string][]byte{
		"0003.webp": []byte("c"),
		"0001.webp": []byte("a"),
		"0002.webp": []byte("b"),
	})

	out := filepath.Join(t.TempDir(), "book.cbz")
	if err := Create(src, out, testLogger()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	want := []string{"0001.webp", "0002.webp", "0003.webp"}
	if len(zr.File) != len(want) {
		t.Fatalf("archive holds %d entries, want %d", len(zr.File), len(want))
	}
	for i, f := range zr.File {
		if f.Name != want[i] {
			t.Errorf("entry %d = %s, want %s", i, f.Name, want[i])
		}
	}
}

func TestCreateFailureLeavesNoOutput(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string][]byte{"0001.webp": []byte("page")})

	out := filepath.Join(t.TempDir(), "missing", "book.cbz")
	if err := Create(src, out, testLogger()); err == nil {
		t.Fatal("Create into a missing directory must fail")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("failed Create must not leave an output file")
	}
}

// Extract followed by Create, with nothing touched in between, must
// reproduce the original archive's entry set and bytes.
func TestExtractCreateRoundTrip(t *testing.T) {
	files := map[string][]byte{
		"0001.png":       []byte("first page bytes"),
		"0002.png":       []byte("second page bytes"),
		"art/poster.jpg": []byte("poster bytes"),
	}

	srcZip := filepath.Join(t.TempDir(), "book.cbz")
	f, err := os.Create(srcZip)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, name := range []string{"0001.png", "0002.png", "art/poster.jpg"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(files[name]); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	scratch := t.TempDir()
	c, err := comic.Classify(srcZip)
	if err != nil {
		t.Fatal(err)
	}
	if err := extract.Extract(c, scratch, testLogger()); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	repacked := filepath.Join(t.TempDir(), "repacked.cbz")
	if err := Create(scratch, repacked, testLogger()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got := readArchive(t, repacked)
	if len(got) != len(files) {
		t.Fatalf("round trip produced %d entries, want %d", len(got), len(files))
	}
	for name, data := range files {
		if !bytes.Equal(got[name], data) {
			t.Errorf("round-trip entry %s = %q, want %q", name, got[name], data)
		}
	}
}
