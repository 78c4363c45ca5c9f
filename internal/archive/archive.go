// Package archive repackages a processed scratch directory into a
// deflate-compressed zip.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Create walks srcDir in lexical order and writes every regular file
// into a new deflate archive at outPath, using paths relative to srcDir
// as entry names. The archive is assembled in a sibling temp file and
// renamed into place, so a failed run never leaves a truncated file at
// outPath.
func Create(srcDir, outPath string, logger *slog.Logger) error {
	start := time.Now()
	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".repack-*")
	if err != nil {
		return fmt.Errorf("create archive temp for %s: %w", filepath.Base(outPath), err)
	}
	tmpPath := tmp.Name()

	entries, writeErr := writeArchive(tmp, srcDir)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write archive %s: %w", filepath.Base(outPath), err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("place archive %s: %w", filepath.Base(outPath), err)
	}

	logger.Debug("archive written.",
		slog.String("archive", filepath.Base(outPath)),
		slog.Int("entries", entries),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)),
	)
	return nil
}

func writeArchive(w io.Writer, srcDir string) (int, error) {
	zw := zip.NewWriter(w)
	entries := 0
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("create entry %s: %w", rel, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", rel, err)
		}
		_, copyErr := io.Copy(entry, f)
		closeErr := f.Close()
		if err := errors.Join(copyErr, closeErr); err != nil {
			return fmt.Errorf("write entry %s: %w", rel, err)
		}
		entries++
		return nil
	})
	if walkErr != nil {
		zw.Close()
		return entries, walkErr
	}
	return entries, zw.Close()
}
