// Package transcode resamples extracted page images and re-encodes them
// with a lossy codec, keeping the result only when it is smaller than
// the source file.
package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Options carries the per-batch transcode settings.
type Options struct {
	Codec        Codec
	Quality      int
	TargetHeight int
}

// TranscodeImage decodes one raster, resamples it to the target height
// preserving aspect ratio and re-encodes it. The source file is replaced
// only when the encoded result is strictly smaller; any non-nil error
// means the source was left untouched and the image counts as skipped.
func TranscodeImage(path string, opts Options, logger *slog.Logger) error {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	bounds := img.Bounds()
	aspect := float64(bounds.Dx()) / float64(bounds.Dy())
	newWidth := int(math.Round(float64(opts.TargetHeight) * aspect))
	resized := imaging.Resize(img, newWidth, opts.TargetHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := opts.Codec.Encode(&buf, resized, opts.Quality); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	if int64(buf.Len()) >= info.Size() {
		return fmt.Errorf("%s: %s output not smaller than source (%d >= %d bytes)",
			filepath.Base(path), opts.Codec.Name(), buf.Len(), info.Size())
	}

	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + opts.Codec.Ext()
	if strings.EqualFold(outPath, path) {
		// The source already carries the codec's extension, so the new
		// bytes must land on the same name without a window where the
		// page is missing or truncated.
		if err := swapInPlace(path, buf.Bytes()); err != nil {
			return err
		}
	} else {
		if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(outPath), err)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove original %s: %w", filepath.Base(path), err)
		}
	}

	logger.Debug("image transcoded.",
		slog.String("image", filepath.Base(path)),
		slog.Int64("original_bytes", info.Size()),
		slog.Int("encoded_bytes", buf.Len()),
		slog.Int("width", newWidth),
		slog.Int("height", opts.TargetHeight),
	)
	return nil
}

// swapInPlace writes data to a sibling temp file and renames it over path.
func swapInPlace(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("temp file beside %s: %w", filepath.Base(path), err)
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write temp for %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
