package extract

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// extractZip writes every entry of a zip archive under destDir, recreating
// each entry's relative directory layout.
func extractZip(path, destDir string, logger *slog.Logger) error {
	start := time.Now()
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open zip %s: %w", filepath.Base(path), err)
	}
	defer zr.Close()

	var entries int
	for _, f := range zr.File {
		dest, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create dir for entry %s: %w", f.Name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create dir for entry %s: %w", f.Name, err)
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		out, err := os.Create(dest)
		if err != nil {
			rc.Close()
			return fmt.Errorf("create %s: %w", dest, err)
		}
		_, copyErr := io.Copy(out, rc)
		closeOutErr := out.Close()
		closeRcErr := rc.Close()
		if err := errors.Join(copyErr, closeOutErr, closeRcErr); err != nil {
			return fmt.Errorf("extract entry %s: %w", f.Name, err)
		}
		entries++
	}

	logger.Debug("zip extracted",
		slog.String("file", filepath.Base(path)),
		slog.Int("entries", entries),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return nil
}
