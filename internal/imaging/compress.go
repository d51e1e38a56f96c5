// Package imaging re-encodes pasted image files before storage: large photos
// are constrained to preview dimensions, PNG keeps its transparency, and
// everything else becomes JPEG. Formats that do not benefit from transcoding
// pass through untouched.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"

	_ "image/gif"

	"golang.org/x/image/draw"
)

// Options control the target bounds and JPEG quality.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

var defaults = Options{MaxWidth: 1920, MaxHeight: 1920, Quality: 85}

// Result carries the re-encoded bytes plus the size bookkeeping recorded in
// image metadata.
type Result struct {
	Data           []byte
	Width          int
	Height         int
	MimeType       string
	OriginalSize   int
	CompressedSize int
}

// Compress re-encodes data according to opts. GIF and SVG inputs are returned
// unchanged (animation and vector data do not survive raster re-encoding).
// When the re-encoded output is larger than the input, the original bytes win.
func Compress(data []byte, opts Options) (Result, error) {
	if len(data) == 0 {
		return Result{}, fmt.Errorf("empty image data")
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = defaults.MaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = defaults.MaxHeight
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = defaults.Quality
	}

	mime := sniffMime(data)
	if mime == "image/gif" || mime == "image/svg+xml" {
		return Result{
			Data:           data,
			MimeType:       mime,
			OriginalSize:   len(data),
			CompressedSize: len(data),
		}, nil
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := constrain(bounds.Dx(), bounds.Dy(), opts.MaxWidth, opts.MaxHeight)

	targetMime := "image/jpeg"
	if format == "png" {
		targetMime = "image/png"
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if targetMime == "image/jpeg" {
		// White background so transparent regions do not turn black.
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	switch targetMime {
	case "image/png":
		err = png.Encode(&buf, dst)
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality})
	}
	if err != nil {
		return Result{}, fmt.Errorf("encode %s: %w", targetMime, err)
	}

	if buf.Len() >= len(data) {
		return Result{
			Data:           data,
			Width:          bounds.Dx(),
			Height:         bounds.Dy(),
			MimeType:       mime,
			OriginalSize:   len(data),
			CompressedSize: len(data),
		}, nil
	}

	return Result{
		Data:           buf.Bytes(),
		Width:          width,
		Height:         height,
		MimeType:       targetMime,
		OriginalSize:   len(data),
		CompressedSize: buf.Len(),
	}, nil
}

func constrain(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	ratioW := float64(maxW) / float64(w)
	ratioH := float64(maxH) / float64(h)
	ratio := ratioW
	if ratioH < ratio {
		ratio = ratioH
	}
	width := int(float64(w)*ratio + 0.5)
	height := int(float64(h)*ratio + 0.5)
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}

func sniffMime(data []byte) string {
	mime := http.DetectContentType(data)
	if strings.HasPrefix(mime, "text/") && looksLikeSVG(data) {
		return "image/svg+xml"
	}
	return mime
}

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	lower := strings.ToLower(string(head))
	return strings.Contains(lower, "<svg")
}
