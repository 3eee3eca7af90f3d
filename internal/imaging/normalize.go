// Package imaging prepares captured challenge images for the solving service.
package imaging

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/jpeg"

	// decoders for the formats a canvas capture may come back in
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultQuality is the JPEG quality used when Options.Quality is unset
const DefaultQuality = 90

// Options controls Normalize
type Options struct {
	// Quality is the JPEG quality, 1-100
	Quality int
	// Upscale multiplies both dimensions; values <= 1 keep the original size
	Upscale float64
}

// Normalize decodes img, flattens it onto an opaque white background and
// re-encodes it as JPEG. The result never carries an alpha channel.
func Normalize(img []byte, opts Options) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode challenge image: %w", err)
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty %s image", format)
	}
	if opts.Upscale > 1 {
		w = int(float64(w) * opts.Upscale)
		h = int(float64(h) * opts.Upscale)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Fingerprint returns a short identity for an encoded image, used to notice
// that a refreshed challenge actually changed.
func Fingerprint(img []byte) string {
	h := fnv.New64a()
	h.Write(img)
	return fmt.Sprintf("%d-%x", len(img), h.Sum64())
}
