package extract

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nwaples/rardecode"
)

// extractRar writes every entry of a rar archive under destDir. The reader
// is sequential: each Next() advances to a new header and the reader then
// yields that entry's bytes.
func extractRar(path, destDir string, logger *slog.Logger) error {
	start := time.Now()
	rr, err := rardecode.OpenReader(path, "")
	if err != nil {
		return fmt.Errorf("open rar %s: %w", filepath.Base(path), err)
	}
	defer rr.Close()

	var entries int
	for {
		hdr, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read rar header: %w", err)
		}

		dest, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		if hdr.IsDir {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create dir for entry %s: %w", hdr.Name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create dir for entry %s: %w", hdr.Name, err)
		}

		out, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("create %s: %w", dest, err)
		}
		_, copyErr := io.Copy(out, rr)
		closeErr := out.Close()
		if err := errors.Join(copyErr, closeErr); err != nil {
			return fmt.Errorf("extract entry %s: %w", hdr.Name, err)
		}
		entries++
	}

	logger.Debug("rar extracted",
		slog.String("file", filepath.Base(path)),
		slog.Int("entries", entries),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return nil
}
