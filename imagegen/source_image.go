package imagegen

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageOpener opens the image-to-image source. Tests substitute it to
// count decodes.
type ImageOpener func(path string) (io.ReadCloser, error)

func openFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// LoadSourceImage decodes path, discards alpha (keeping the straight
// colour values) and resizes to width x height with Catmull-Rom.
func LoadSourceImage(open ImageOpener, path string, width, height int) (*image.RGBA, error) {
	if open == nil {
		open = openFile
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: target size %dx%d", ErrSourceImage, width, height)
	}

	f, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceImage, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrSourceImage, path, err)
	}

	b := src.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			flat.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xFF})
		}
	}

	if b.Dx() == width && b.Dy() == height {
		return flat, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), flat, flat.Bounds(), draw.Src, nil)
	return dst, nil
}

// repeatImage returns n references to img.
func repeatImage(img *image.RGBA, n int) []*image.RGBA {
	images := make([]*image.RGBA, n)
	for i := range images {
		images[i] = img
	}
	return images
}
