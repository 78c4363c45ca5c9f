package comic

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		path string
		kind Kind
	}{
		{"/comics/batman.cbz", KindZip},
		{"/comics/batman.CBZ", KindZip},
		{"/comics/spawn vol 1.cbr", KindRar},
		{"/comics/Spawn.CbR", KindRar},
		{"/comics/tintin.pdf", KindPDF},
		{"relative.PDF", KindPDF},
	}
	for _, c := range cases {
		got, err := Classify(c.path)
		if err != nil {
			t.Errorf("Classify(%q) returned error: %v", c.path, err)
			continue
		}
		if got.Kind != c.kind {
			t.Errorf("Classify(%q) kind = %v, want %v", c.path, got.Kind, c.kind)
		}
		if got.Path != c.path {
			t.Errorf("Classify(%q) path = %q, want original path", c.path, got.Path)
		}
	}
}

func TestClassifyUnsupported(t *testing.T) {
	for _, path := range []string{
		"/comics/readme.txt",
		"/comics/cover.jpg",
		"/comics/archive.zip",
		"/comics/noext",
		"/comics/somedir",
		"",
	} {
		_, err := Classify(path)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Classify(%q) error = %v, want ErrUnsupportedFormat", path, err)
		}
	}
}

func TestClassifyIsPure(t *testing.T) {
	// Same input must always give the same answer, with no filesystem access.
	for i := 0; i < 3; i++ {
		got, err := Classify("/nonexistent/dir/book.cbz")
		if err != nil || got.Kind != KindZip {
			t.Fatalf("Classify on missing path: got %v, %v", got, err)
		}
	}
}

func TestPipelineErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := NewPipelineError(StageExtract, "/comics/x.cbz", inner)
	if !errors.Is(err, inner) {
		t.Fatal("PipelineError should unwrap to the inner error")
	}
	var pe *PipelineError
	if !errors.As(err, &pe) {
		t.Fatal("errors.As should find PipelineError")
	}
	if pe.Stage != StageExtract {
		t.Fatalf("stage = %q, want %q", pe.Stage, StageExtract)
	}
}
