package pdf

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// imageStream describes one embedded image pulled off a page's resource
// dictionary: geometry, declared color space, the filter its bytes are
// wrapped in, and predictor parameters when present.
type imageStream struct {
	width       int
	height      int
	bpc         int
	colorSpace  string
	filter      string
	decodeParms dict
}

func buildImageStream(doc *document, d dict) imageStream {
	var img imageStream
	img.width, _ = doc.resolveInt(d["Width"])
	img.height, _ = doc.resolveInt(d["Height"])
	img.bpc, _ = doc.resolveInt(d["BitsPerComponent"])
	if cs, ok := doc.resolve(d["ColorSpace"]).(name); ok {
		img.colorSpace = string(cs)
	}

	filter := doc.resolve(d["Filter"])
	if a, ok := filter.(array); ok {
		if len(a) == 1 {
			filter = doc.resolve(a[0])
		} else {
			parts := make([]string, 0, len(a))
			for _, f := range a {
				if n, ok := doc.resolve(f).(name); ok {
					parts = append(parts, string(n))
				}
			}
			filter = name(strings.Join(parts, "+"))
		}
	}
	if f, ok := filter.(name); ok {
		img.filter = string(f)
	}
	img.decodeParms = doc.resolveDict(d["DecodeParms"])
	return img
}

// imageWriter numbers and writes extracted images. The counter is shared
// across every page and every image object: a skipped image still consumes
// its number, so the names of the images that follow stay stable.
type imageWriter struct {
	destDir string
	next    int
	written int
	skipped int
	logger  *slog.Logger
}

// writeImage dispatches one embedded image by its declared filter. Only
// write failures are returned as errors; everything the extractor cannot
// decode is logged and skipped so one odd image never sinks the document.
func (w *imageWriter) writeImage(doc *document, d dict, raw []byte, pageNum int, xname string) error {
	n := w.next
	w.next++
	img := buildImageStream(doc, d)
	log := w.logger.With(
		slog.Int("page", pageNum),
		slog.String("xobject", xname),
		slog.Int("image", n))

	switch img.filter {
	case "DCTDecode", "DCT":
		// Stream bytes are a complete JPEG; write them through verbatim.
		return w.writeFile(n, ".jpg", raw)
	case "FlateDecode", "Fl":
		pixels, err := inflate(raw)
		if err != nil {
			w.skip(log, "inflate failed", err)
			return nil
		}
		pixels, err = undoPredictor(doc, img, pixels)
		if err != nil {
			w.skip(log, "predictor", err)
			return nil
		}
		return w.writeRaster(log, n, img, pixels)
	case "":
		return w.writeRaster(log, n, img, raw)
	default:
		w.skip(log, "unsupported filter "+img.filter, nil)
		return nil
	}
}

// writeRaster interprets decoded bytes per the declared color space and
// bit depth and saves them as a lossless PNG for the transcoder to pick
// up. Unsupported combinations are skipped.
func (w *imageWriter) writeRaster(log *slog.Logger, n int, img imageStream, pixels []byte) error {
	if img.bpc != 8 {
		w.skip(log, fmt.Sprintf("unsupported bit depth %d", img.bpc), nil)
		return nil
	}
	var out image.Image
	switch img.colorSpace {
	case "DeviceGray":
		out = grayImage(img.width, img.height, pixels)
	case "DeviceRGB":
		out = rgbImage(img.width, img.height, pixels)
	case "DeviceCMYK":
		out = cmykImage(img.width, img.height, pixels)
	default:
		w.skip(log, "unsupported color space "+img.colorSpace, nil)
		return nil
	}
	if out == nil {
		w.skip(log, "pixel data shorter than declared geometry", nil)
		return nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		w.skip(log, "png encode failed", err)
		return nil
	}
	return w.writeFile(n, ".png", buf.Bytes())
}

func (w *imageWriter) writeFile(n int, ext string, data []byte) error {
	path := filepath.Join(w.destDir, fmt.Sprintf("%04d%s", n, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write image %s: %w", filepath.Base(path), err)
	}
	w.written++
	return nil
}

func (w *imageWriter) skip(log *slog.Logger, reason string, err error) {
	w.skipped++
	if err != nil {
		log.Warn("skipping embedded image", slog.String("reason", reason), "error", err)
		return
	}
	log.Warn("skipping embedded image", slog.String("reason", reason))
}

// undoPredictor reverses a PNG-style predictor declared in the image's
// DecodeParms. Predictor 1 passes through; the TIFF predictor (2) is not
// supported and skips the image.
func undoPredictor(doc *document, img imageStream, data []byte) ([]byte, error) {
	if img.decodeParms == nil {
		return data, nil
	}
	predictor, ok := doc.resolveInt(img.decodeParms["Predictor"])
	if !ok || predictor <= 1 {
		return data, nil
	}
	if predictor < 10 {
		return nil, fmt.Errorf("unsupported predictor %d", predictor)
	}
	colors := colorComponents(img.colorSpace)
	if v, ok := doc.resolveInt(img.decodeParms["Colors"]); ok {
		colors = v
	}
	bpc := img.bpc
	if v, ok := doc.resolveInt(img.decodeParms["BitsPerComponent"]); ok {
		bpc = v
	}
	columns := img.width
	if v, ok := doc.resolveInt(img.decodeParms["Columns"]); ok {
		columns = v
	}
	return pngDefilter(data, colors, bpc, columns)
}

func colorComponents(colorSpace string) int {
	switch colorSpace {
	case "DeviceRGB":
		return 3
	case "DeviceCMYK":
		return 4
	}
	return 1
}

// pngDefilter undoes per-row PNG filters. Each encoded row is one
// filter-tag byte followed by the filtered row bytes.
func pngDefilter(data []byte, colors, bpc, columns int) ([]byte, error) {
	rowLen := (columns*colors*bpc + 7) / 8
	if rowLen <= 0 {
		return nil, fmt.Errorf("bad predictor geometry: colors=%d bpc=%d columns=%d", colors, bpc, columns)
	}
	bpp := (colors*bpc + 7) / 8
	if bpp < 1 {
		bpp = 1
	}

	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen)
	for off := 0; off+rowLen+1 <= len(data); off += rowLen + 1 {
		tag := data[off]
		row := make([]byte, rowLen)
		copy(row, data[off+1:off+1+rowLen])
		switch tag {
		case 0: // none
		case 1: // sub
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2: // up
			for i := 0; i < rowLen; i++ {
				row[i] += prev[i]
			}
		case 3: // average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = row[i-bpp]
				}
				row[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = row[i-bpp]
					upLeft = prev[i-bpp]
				}
				row[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("png filter tag %d", tag)
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := absInt(p-int(a)), absInt(p-int(b)), absInt(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func grayImage(w, h int, pixels []byte) image.Image {
	if w <= 0 || h <= 0 || len(pixels) < w*h {
		return nil
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, pixels[:w*h])
	return img
}

func rgbImage(w, h int, pixels []byte) image.Image {
	if w <= 0 || h <= 0 || len(pixels) < w*h*3 {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		si, di := i*3, i*4
		img.Pix[di] = pixels[si]
		img.Pix[di+1] = pixels[si+1]
		img.Pix[di+2] = pixels[si+2]
		img.Pix[di+3] = 0xff
	}
	return img
}

func cmykImage(w, h int, pixels []byte) image.Image {
	if w <= 0 || h <= 0 || len(pixels) < w*h*4 {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		si, di := i*4, i*4
		r, g, b := cmykToRGB(pixels[si], pixels[si+1], pixels[si+2], pixels[si+3])
		img.Pix[di] = r
		img.Pix[di+1] = g
		img.Pix[di+2] = b
		img.Pix[di+3] = 0xff
	}
	return img
}

// cmykToRGB applies the device conversion R=(1-C)(1-K), G=(1-M)(1-K),
// B=(1-Y)(1-K) on 8-bit components.
func cmykToRGB(c, m, y, k byte) (r, g, b byte) {
	kc := uint32(255 - k)
	r = byte(uint32(255-c) * kc / 255)
	g = byte(uint32(255-m) * kc / 255)
	b = byte(uint32(255-y) * kc / 255)
	return r, g, b
}
