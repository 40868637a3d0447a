// Package codec turns captured frames into JPEG payloads and back.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ErrSizeMismatch is wrapped in a CodecError when a decoded image does not
// have the expected geometry.
var ErrSizeMismatch = errors.New("decoded size does not match metadata")

// ErrQualityRange is wrapped in a CodecError for an out-of-range quality.
var ErrQualityRange = errors.New("quality out of range")

// CodecError reports a failed encode or decode.
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string {
	return "codec: " + e.Op + ": " + e.Err.Error()
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// Encoder compresses an image at a quality in 1..100.
type Encoder interface {
	Encode(img image.Image, quality int) ([]byte, error)
}

// Decoder decompresses a payload.
type Decoder interface {
	Decode(data []byte) (*image.RGBA, error)
}

// JPEG implements Encoder and Decoder with the standard JPEG codec.
type JPEG struct{}

var (
	_ Encoder = JPEG{}
	_ Decoder = JPEG{}
)

func (JPEG) Encode(img image.Image, quality int) ([]byte, error) {
	return Encode(img, quality)
}

func (JPEG) Decode(data []byte) (*image.RGBA, error) {
	return Decode(data)
}

// Encode compresses img as JPEG.
func Encode(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, &CodecError{Op: "encode", Err: fmt.Errorf("%w: %d", ErrQualityRange, quality)}
	}

	b := img.Bounds()
	var buf bytes.Buffer
	buf.Grow(b.Dx() * b.Dy() / 4)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, &CodecError{Op: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// Decode decompresses a JPEG payload into an RGBA image anchored at (0,0).
func Decode(data []byte) (*image.RGBA, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &CodecError{Op: "decode", Err: err}
	}
	return toRGBA(img), nil
}

// DecodeExpect is Decode followed by a geometry check.
func DecodeExpect(data []byte, width, height int) (*image.RGBA, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		return nil, &CodecError{
			Op:  "decode",
			Err: fmt.Errorf("%w: got %dx%d, want %dx%d", ErrSizeMismatch, b.Dx(), b.Dy(), width, height),
		}
	}
	return img, nil
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
