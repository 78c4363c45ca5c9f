package transcode

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noisyImage is incompressible for lossless formats, so a lossy
// re-encode at a smaller size reliably wins the size gate.
func noisyImage(w, h int) *image.NRGBA {
	r := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(r.Intn(256))
		img.Pix[i+1] = uint8(r.Intn(256))
		img.Pix[i+2] = uint8(r.Intn(256))
		img.Pix[i+3] = 0xff
	}
	return img
}

func saveImage(t *testing.T, path string, img image.Image, opts ...imaging.EncodeOption) {
	t.Helper()
	if err := imaging.Save(img, path, opts...); err != nil {
		t.Fatalf("save %s: %v", path, err)
	}
}

func jpegOpts(quality, targetHeight int) Options {
	return Options{Codec: jpegCodec{}, Quality: quality, TargetHeight: targetHeight}
}

func TestLookupCodec(t *testing.T) {
	c, err := LookupCodec("jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() != "jpeg" || c.Ext() != ".jpg" {
		t.Errorf("jpeg codec = %s/%s", c.Name(), c.Ext())
	}
	if _, err := LookupCodec("WEBP"); err != nil {
		t.Errorf("codec lookup should be case-insensitive: %v", err)
	}
	if _, err := LookupCodec("avif"); err == nil {
		t.Error("unknown codec must be rejected")
	}
	got := AvailableCodecs()
	want := []string{"jpeg", "webp"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("AvailableCodecs() = %v, want %v", got, want)
	}
}

func TestTranscodeReplacesWhenSmaller(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "0001.png")
	saveImage(t, src, noisyImage(300, 200))

	if err := TranscodeImage(src, jpegOpts(60, 100), testLogger()); err != nil {
		t.Fatalf("TranscodeImage: %v", err)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("original must be deleted after a successful transcode")
	}
	out := filepath.Join(dir, "0001.jpg")
	img, err := imaging.Open(out)
	if err != nil {
		t.Fatalf("open transcoded output: %v", err)
	}
	// Aspect 1.5 at target height 100 resamples to 150x100.
	if b := img.Bounds(); b.Dx() != 150 || b.Dy() != 100 {
		t.Errorf("output bounds = %dx%d, want 150x100", b.Dx(), b.Dy())
	}
}

func TestTranscodeTallAspect(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "page.png")
	saveImage(t, src, noisyImage(100, 400))

	if err := TranscodeImage(src, jpegOpts(60, 200), testLogger()); err != nil {
		t.Fatalf("TranscodeImage: %v", err)
	}
	img, err := imaging.Open(filepath.Join(dir, "page.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 50 || b.Dy() != 200 {
		t.Errorf("output bounds = %dx%d, want 50x200", b.Dx(), b.Dy())
	}
}

func TestTranscodeSkipsWhenNotSmaller(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "blank.png")
	// A tiny flat PNG is already smaller than any upscaled JPEG of it.
	saveImage(t, src, imaging.New(16, 16, color.White))
	before, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}

	if err := TranscodeImage(src, jpegOpts(100, 256), testLogger()); err == nil {
		t.Fatal("an enlarging transcode must report a skip")
	}

	after, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("original must survive a skip: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("skipped image must remain byte-identical")
	}
	if _, err := os.Stat(filepath.Join(dir, "blank.jpg")); !os.IsNotExist(err) {
		t.Error("no output may be written for a skipped image")
	}
}

func TestTranscodeDecodeFailureSkips(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "corrupt.png")
	if err := os.WriteFile(src, []byte("not image data"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := TranscodeImage(src, jpegOpts(80, 100), testLogger()); err == nil {
		t.Fatal("undecodable input must report a skip")
	}
	if _, err := os.Stat(src); err != nil {
		t.Errorf("undecodable input must be left in place: %v", err)
	}
}

func TestTranscodeInPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "0002.jpg")
	saveImage(t, src, noisyImage(300, 200), imaging.JPEGQuality(100))
	before, err := os.Stat(src)
	if err != nil {
		t.Fatal(err)
	}

	if err := TranscodeImage(src, jpegOpts(50, 100), testLogger()); err != nil {
		t.Fatalf("TranscodeImage: %v", err)
	}

	after, err := os.Stat(src)
	if err != nil {
		t.Fatalf("in-place transcode must keep the path: %v", err)
	}
	if after.Size() >= before.Size() {
		t.Errorf("in-place result (%d bytes) not smaller than source (%d bytes)", after.Size(), before.Size())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("scratch dir holds %d entries after in-place swap, want 1", len(entries))
	}
}

func TestTranscodeAllCounts(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"0001.png", "0002.png", "0003.png"} {
		p := filepath.Join(dir, name)
		saveImage(t, p, noisyImage(200, 150))
		paths = append(paths, p)
	}
	blank := filepath.Join(dir, "0004.png")
	saveImage(t, blank, imaging.New(16, 16, color.White))
	paths = append(paths, blank)
	corrupt := filepath.Join(dir, "0005.png")
	if err := os.WriteFile(corrupt, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	paths = append(paths, corrupt)

	var positions []int
	processed, skipped := TranscodeAll(paths, jpegOpts(60, 100), 4, func(pos int) {
		positions = append(positions, pos)
	}, testLogger())

	if processed != 3 || skipped != 2 {
		t.Errorf("counts = (%d processed, %d skipped), want (3, 2)", processed, skipped)
	}
	if processed+skipped != len(paths) {
		t.Errorf("processed+skipped = %d, want %d", processed+skipped, len(paths))
	}
	if len(positions) != len(paths) {
		t.Fatalf("got %d progress updates, want one per image", len(positions))
	}
	last := 0
	for i, pos := range positions {
		if pos < last {
			t.Errorf("progress regressed at update %d: %d after %d", i, pos, last)
		}
		if pos < 30 || pos > 80 {
			t.Errorf("progress position %d outside transcode range [30,80]", pos)
		}
		last = pos
	}
	if last != 80 {
		t.Errorf("final progress position = %d, want 80", last)
	}
}

func TestTranscodeAllEmpty(t *testing.T) {
	called := false
	processed, skipped := TranscodeAll(nil, jpegOpts(80, 100), 4, func(int) { called = true }, testLogger())
	if processed != 0 || skipped != 0 {
		t.Errorf("empty batch counts = (%d, %d), want (0, 0)", processed, skipped)
	}
	if called {
		t.Error("empty batch must not publish progress")
	}
}
