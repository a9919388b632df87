package imagegen

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func bytesOpener(data []byte) ImageOpener {
	return func(string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func TestLoadSourceImage_Resizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.png")
	writeSourcePNG(t, path, 30, 20)

	img, err := LoadSourceImage(nil, path, 64, 48)
	if err != nil {
		t.Fatalf("LoadSourceImage() error: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("size = %dx%d, want 64x48", b.Dx(), b.Dy())
	}
}

func TestLoadSourceImage_SameSizeKeepsPixels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.png")
	writeSourcePNG(t, path, 16, 16)

	img, err := LoadSourceImage(nil, path, 16, 16)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(5, 9); got != (color.RGBA{R: 5, G: 9, B: 200, A: 255}) {
		t.Errorf("pixel = %v", got)
	}
}

func TestLoadSourceImage_DropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := range src.Pix {
		src.Pix[i] = 0
	}
	src.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	src.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}

	img, err := LoadSourceImage(bytesOpener(buf.Bytes()), "mem.png", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		x, y int
		want color.RGBA
	}{
		{0, 0, color.RGBA{R: 200, G: 100, B: 50, A: 255}},
		{1, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255}},
	}
	for _, tt := range tests {
		if got := img.RGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestLoadSourceImage_JPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatal(err)
	}
	img, err := LoadSourceImage(bytesOpener(buf.Bytes()), "mem.jpg", 4, 4)
	if err != nil {
		t.Fatalf("jpeg decode failed: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("width = %d", img.Bounds().Dx())
	}
}

func TestLoadSourceImage_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		w, h int
	}{
		{"missing file", filepath.Join(dir, "missing.png"), 8, 8},
		{"undecodable", garbage, 8, 8},
		{"zero size", garbage, 0, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSourceImage(nil, tt.path, tt.w, tt.h)
			if !errors.Is(err, ErrSourceImage) {
				t.Errorf("expected ErrSourceImage, got %v", err)
			}
		})
	}
}

func TestRepeatImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	got := repeatImage(img, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	for i, g := range got {
		if g != img {
			t.Errorf("element %d is a copy", i)
		}
	}
	if len(repeatImage(img, 0)) != 0 {
		t.Error("n=0 should be empty")
	}
}
