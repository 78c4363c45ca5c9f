// Package comic classifies comic-book container files and defines the
// error types shared by the conversion pipeline stages.
package comic

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind identifies the container layout of a comic file.
type Kind int

const (
	// KindZip is a .cbz file, a plain zip archive of page images.
	KindZip Kind = iota
	// KindRar is a .cbr file, nominally a rar archive. Many .cbr files in
	// the wild are actually zip archives, so extraction falls back to zip.
	KindRar
	// KindPDF is a .pdf file with page images embedded as filtered streams.
	KindPDF
)

func (k Kind) String() string {
	switch k {
	case KindZip:
		return "cbz"
	case KindRar:
		return "cbr"
	case KindPDF:
		return "pdf"
	}
	return "unknown"
}

// Container is one classified input file. It is immutable once built.
type Container struct {
	Path string
	Kind Kind
}

// ErrUnsupportedFormat is returned by Classify for any extension that is
// not a recognised comic container. Batch callers filter on it with
// errors.Is and drop the file rather than failing the run.
var ErrUnsupportedFormat = errors.New("unsupported comic format")

// Classify decides the container kind from the lowercased file extension
// alone. It never inspects file contents and never touches the filesystem,
// so calling it on a directory path is safe and simply reports the path
// as unsupported.
func Classify(path string) (Container, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cbz":
		return Container{Path: path, Kind: KindZip}, nil
	case ".cbr":
		return Container{Path: path, Kind: KindRar}, nil
	case ".pdf":
		return Container{Path: path, Kind: KindPDF}, nil
	}
	return Container{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
}

// Pipeline stage names used in PipelineError.
const (
	StageExtract   = "extract"
	StageTranscode = "transcode"
	StageRepackage = "repackage"
)

// PipelineError records the failure of one stage of one file's pipeline.
// Failures wrapped in it are contained at the file boundary: the batch
// records them and keeps converting sibling files.
type PipelineError struct {
	Stage string
	Path  string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, filepath.Base(e.Path), e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewPipelineError wraps err with the stage and file it belongs to.
func NewPipelineError(stage, path string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Path: path, Err: err}
}
