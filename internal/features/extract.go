package features

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"strings"

	// Registered container decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"
)

const (
	DefaultWidth  = 64
	DefaultHeight = 64

	// DefaultMaxPixels caps the declared size of an incoming image.
	DefaultMaxPixels = 40_000_000
)

var (
	ErrEmptyImage    = errors.New("image decoded to no data")
	ErrImageTooLarge = errors.New("image dimensions exceed the pixel limit")
)

// DecodeError reports an image payload that could not be turned into a feature vector.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Extractor turns encoded images into flattened grayscale pixel vectors.
type Extractor struct {
	width     int
	height    int
	maxPixels int64
}

func NewExtractor(width, height int) *Extractor {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Extractor{width: width, height: height, maxPixels: DefaultMaxPixels}
}

// WithMaxPixels sets the largest width*height accepted from an image header.
// Non-positive values keep the default.
func (e *Extractor) WithMaxPixels(n int) *Extractor {
	if n > 0 {
		e.maxPixels = int64(n)
	}
	return e
}

func (e *Extractor) Width() int  { return e.width }
func (e *Extractor) Height() int { return e.height }

// Dim is the length of every vector this extractor produces.
func (e *Extractor) Dim() int { return e.width * e.height }

// DecodeHex decodes a wire payload. Images travel as hex strings, not base64.
func DecodeHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("invalid hex payload: %w", err)}
	}
	return raw, nil
}

func (e *Extractor) ExtractHex(s string) ([]float32, error) {
	raw, err := DecodeHex(s)
	if err != nil {
		return nil, err
	}
	return e.Extract(raw)
}

// Extract checks the declared size, decodes raw, converts it to gray, resizes
// it and flattens it row-major. Pixel values stay in [0,255].
func (e *Extractor) Extract(raw []byte) ([]float32, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Err: ErrEmptyImage}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Err: ErrEmptyImage}
	}
	if int64(cfg.Width)*int64(cfg.Height) > e.maxPixels {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, &DecodeError{Err: ErrEmptyImage}
	}

	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)

	resized := image.NewGray(image.Rect(0, 0, e.width, e.height))
	draw.BiLinear.Scale(resized, resized.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	return flatten(resized), nil
}

func flatten(img *image.Gray) []float32 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]float32, 0, w*h)
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for _, p := range row {
			out = append(out, float32(p))
		}
	}
	return out
}
