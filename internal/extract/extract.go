// Package extract populates a scratch directory with the page images of a
// comic container. Strategy is selected by container kind: cbz unpacks as
// zip, cbr tries rar then falls back to zip, pdf pulls embedded image
// streams out of the page tree.
package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"comicsqueeze/internal/comic"
	"comicsqueeze/internal/pdf"
)

// Extract fills destDir with the raw page images of c. destDir must exist
// and be exclusively owned by the caller. A failure aborts only this
// container's pipeline; sibling pipelines are unaffected.
func Extract(c comic.Container, destDir string, logger *slog.Logger) error {
	var err error
	switch c.Kind {
	case comic.KindZip:
		err = extractZip(c.Path, destDir, logger)
	case comic.KindRar:
		err = extractRarWithZipFallback(c.Path, destDir, logger)
	case comic.KindPDF:
		err = pdf.ExtractImages(c.Path, destDir, logger)
	default:
		err = comic.ErrUnsupportedFormat
	}
	if err != nil {
		return comic.NewPipelineError(comic.StageExtract, c.Path, err)
	}
	return nil
}

// extractRarWithZipFallback tries rar first. On any rar failure it clears
// the partial output and reopens the same bytes as a zip archive, because
// plenty of .cbr files in circulation are mislabeled zips. The error
// surfaces only when both attempts fail.
func extractRarWithZipFallback(path, destDir string, logger *slog.Logger) error {
	rarErr := extractRar(path, destDir, logger)
	if rarErr == nil {
		return nil
	}
	logger.Warn("rar extraction failed, retrying as zip",
		slog.String("file", filepath.Base(path)), "error", rarErr)

	if err := resetDir(destDir); err != nil {
		return errors.Join(rarErr, err)
	}
	zipErr := extractZip(path, destDir, logger)
	if zipErr == nil {
		logger.Info("zip fallback succeeded for mislabeled cbr",
			slog.String("file", filepath.Base(path)))
		return nil
	}
	return fmt.Errorf("rar and zip extraction both failed: %w", errors.Join(rarErr, zipErr))
}

// resetDir removes everything under dir, keeping dir itself, so a fallback
// attempt never sees a sibling strategy's partial output.
func resetDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reset %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("reset %s: %w", dir, err)
		}
	}
	return nil
}

// safeJoin resolves an archive entry name under dir, rejecting names that
// would escape it.
func safeJoin(dir, name string) (string, error) {
	name = filepath.FromSlash(name)
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute entry path %q", name)
	}
	dest := filepath.Join(dir, name)
	if dest != dir && !strings.HasPrefix(dest, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry path %q escapes extraction directory", name)
	}
	return dest, nil
}

// imageExtensions are the raster files the transcoder will touch. Anything
// else in a container is carried through to the output untouched.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// FindImages walks dir and returns every raster image in lexicographic
// path order. That order fixes page order in the repackaged archive.
func FindImages(dir string) ([]string, error) {
	var images []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(path))] {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s for images: %w", dir, err)
	}
	sort.Strings(images)
	return images, nil
}
