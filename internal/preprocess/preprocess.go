// Package preprocess turns uploaded images into model input tensors.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Brownie44l1/pet-classifier/internal/model"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const channels = 3

// ImageDecodeError means the payload is not a readable image.
type ImageDecodeError struct {
	Err error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

// UnsupportedFormatError means the image has no colour channels that can be
// reduced to RGB.
type UnsupportedFormatError struct {
	ColorModel string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported color model %s", e.ColorModel)
}

type Preprocessor struct {
	size   uint
	layout model.Layout
}

func New(size int, layout model.Layout) *Preprocessor {
	return &Preprocessor{size: uint(size), layout: layout}
}

// NewFromMetadata builds a preprocessor matching the model input.
func NewFromMetadata(m model.Metadata) *Preprocessor {
	return New(m.ImageSize, m.Layout())
}

func (p *Preprocessor) Size() int { return int(p.size) }

// Preprocess decodes raw image bytes and returns the normalised tensor.
func (p *Preprocessor) Preprocess(raw []byte) (model.Tensor, error) {
	if len(raw) == 0 {
		return model.Tensor{}, &ImageDecodeError{Err: errors.New("empty payload")}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return model.Tensor{}, &ImageDecodeError{Err: err}
	}
	return p.FromImage(img)
}

// FromImage resizes img with bilinear interpolation and scales each RGB
// channel into [0,1].
func (p *Preprocessor) FromImage(img image.Image) (model.Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return model.Tensor{}, &ImageDecodeError{Err: errors.New("image has no pixels")}
	}
	if !reducibleToRGB(img) {
		return model.Tensor{}, &UnsupportedFormatError{ColorModel: fmt.Sprintf("%T", img)}
	}

	resized := resize.Resize(p.size, p.size, img, resize.Bilinear)
	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	data := make([]float32, channels*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rgb := [channels]float32{
				float32(r) / 0xffff,
				float32(g) / 0xffff,
				float32(b) / 0xffff,
			}

			pixel := y*width + x
			for c, v := range rgb {
				if p.layout == model.LayoutNHWC {
					data[pixel*channels+c] = v
				} else {
					data[c*plane+pixel] = v
				}
			}
		}
	}

	return model.Tensor{Data: data, Shape: p.shape(width, height)}, nil
}

func (p *Preprocessor) shape(width, height int) []int64 {
	if p.layout == model.LayoutNHWC {
		return []int64{1, int64(height), int64(width), channels}
	}
	return []int64{1, channels, int64(height), int64(width)}
}

// Alpha-only images carry coverage but no colour.
func reducibleToRGB(img image.Image) bool {
	if _, ok := img.(*image.Alpha); ok {
		return false
	}
	if _, ok := img.(*image.Alpha16); ok {
		return false
	}
	m := img.ColorModel()
	return m != color.AlphaModel && m != color.Alpha16Model
}
