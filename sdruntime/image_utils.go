package sdruntime

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

var (
	ErrImageEmpty       = errors.New("sdruntime: image data is empty")
	ErrImageNotPNG      = errors.New("sdruntime: image data is not a valid PNG")
	ErrImageTooSmall    = errors.New("sdruntime: image data too small to be valid")
	ErrImageDecodeFail  = errors.New("sdruntime: failed to decode image")
	ErrImageInvalidSize = errors.New("sdruntime: invalid image dimensions")
)

// minPNGSize is signature + IHDR + IEND.
const minPNGSize = 8 + 25 + 12

func IsPNG(data []byte) bool {
	return len(data) >= len(pngMagic) && bytes.Equal(data[:len(pngMagic)], pngMagic)
}

// ValidateImageData checks that data is a decodable PNG.
func ValidateImageData(data []byte) error {
	switch {
	case len(data) == 0:
		return ErrImageEmpty
	case len(data) < minPNGSize:
		return ErrImageTooSmall
	case !IsPNG(data):
		return ErrImageNotPNG
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}
	return nil
}

// EncodeToPNG encodes tightly packed pixels to PNG. channels is 3 (RGB, as
// stable-diffusion.cpp returns) or 4 (RGBA).
func EncodeToPNG(pixels []byte, width, height, channels int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width=%d height=%d", ErrImageInvalidSize, width, height)
	}
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrImageInvalidSize, channels)
	}
	if want := width * height * channels; len(pixels) != want {
		return nil, fmt.Errorf("%w: expected %d bytes for %dx%dx%d, got %d",
			ErrImageInvalidSize, want, width, height, channels, len(pixels))
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if channels == 4 {
		copy(img.Pix, pixels)
	} else {
		for src, dst := 0, 0; src < len(pixels); src, dst = src+3, dst+4 {
			img.Pix[dst] = pixels[src]
			img.Pix[dst+1] = pixels[src+1]
			img.Pix[dst+2] = pixels[src+2]
			img.Pix[dst+3] = 0xFF
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}
	return buf.Bytes(), nil
}

// RGBPixels flattens an RGBA image to packed RGB, the layout the native
// img2img entry point expects. Alpha is dropped.
func RGBPixels(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			out = append(out, row[i], row[i+1], row[i+2])
		}
	}
	return out
}
