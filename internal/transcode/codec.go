package transcode

import (
	"fmt"
	"image"
	"io"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/samber/lo"
)

// Codec turns a decoded raster into lossy bytes at a given quality.
type Codec interface {
	Name() string
	Ext() string
	Encode(w io.Writer, img image.Image, quality int) error
}

type webpCodec struct{}

func (webpCodec) Name() string { return "webp" }
func (webpCodec) Ext() string  { return ".webp" }

func (webpCodec) Encode(w io.Writer, img image.Image, quality int) error {
	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		return fmt.Errorf("webp encoder options: %w", err)
	}
	return webp.Encode(w, img, opts)
}

type jpegCodec struct{}

func (jpegCodec) Name() string { return "jpeg" }
func (jpegCodec) Ext() string  { return ".jpg" }

func (jpegCodec) Encode(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

var codecs = map[string]Codec{
	"webp": webpCodec{},
	"jpeg": jpegCodec{},
}

// LookupCodec resolves a codec by name, case-insensitively.
func LookupCodec(name string) (Codec, error) {
	c, ok := codecs[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (available: %s)", name, strings.Join(AvailableCodecs(), ", "))
	}
	return c, nil
}

// AvailableCodecs lists registered codec names in stable order.
func AvailableCodecs() []string {
	names := lo.Keys(codecs)
	sort.Strings(names)
	return names
}
