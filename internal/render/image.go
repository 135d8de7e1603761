package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

const (
	MaxDimension = 1024
	JPEGQuality  = 85
)

var pngEncoder = png.Encoder{CompressionLevel: png.BestCompression}

// Reduce fits a screenshot within MaxDimension on both sides, keeping the
// aspect ratio, and flattens it on white. The result is JPEG unless a
// lossless encoding is smaller, which happens for flat renders such as an
// empty graph. The output is never larger than data unless the image had
// to be scaled down.
func Reduce(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("render: decode image: %w", err)
	}

	b := src.Bounds()
	w, h := fit(b.Dx(), b.Dy(), MaxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("render: encode jpeg: %w", err)
	}
	if out.Len() < len(data) {
		return out.Bytes(), nil
	}

	var lossless bytes.Buffer
	if err := pngEncoder.Encode(&lossless, dst); err != nil {
		return nil, fmt.Errorf("render: encode png: %w", err)
	}
	best := out.Bytes()
	if lossless.Len() < len(best) {
		best = lossless.Bytes()
	}
	if len(best) >= len(data) && w == b.Dx() && h == b.Dy() {
		return data, nil
	}
	return best, nil
}

// Ext returns the file extension for an encoded image: ".png" for PNG and
// ".jpg" for anything else.
func Ext(data []byte) string {
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil && format == "png" {
		return ".png"
	}
	return ".jpg"
}

// fit scales w x h down so neither side exceeds limit. Images that already
// fit are left alone.
func fit(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
