package sdruntime

import (
	"fmt"
	"image"
)

// GenerateParams is one invocation of the in-process pipeline. Steps and
// CFGScale are handed to the library unchecked.
type GenerateParams struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	CFGScale       float64
	Sampler        Sampler
	Eta            float64
	Seed           int64 // RandomSeedValue lets the library choose
	BatchCount     int

	// Image-to-image only. InitImage must already be Width x Height.
	InitImage *image.RGBA
	Strength  float64
}

const (
	ImageSizeMultiple = 8
	MaxPromptLength   = 4000
)

// ValidateParams checks the constraints the native library enforces by
// crashing rather than by returning an error.
func ValidateParams(p GenerateParams) error {
	if err := ValidatePrompt(p.Prompt); err != nil {
		return err
	}
	if len(p.NegativePrompt) > MaxPromptLength {
		return fmt.Errorf("%w: negative prompt length %d exceeds maximum %d",
			ErrInvalidParams, len(p.NegativePrompt), MaxPromptLength)
	}

	for _, dim := range []struct {
		name  string
		value int
	}{{"width", p.Width}, {"height", p.Height}} {
		if dim.value <= 0 || dim.value%ImageSizeMultiple != 0 {
			return fmt.Errorf("%w: %s %d must be a positive multiple of %d",
				ErrInvalidParams, dim.name, dim.value, ImageSizeMultiple)
		}
	}

	if p.BatchCount < 1 {
		return fmt.Errorf("%w: batch count %d must be at least 1", ErrInvalidParams, p.BatchCount)
	}

	if p.InitImage != nil {
		b := p.InitImage.Bounds()
		if b.Dx() != p.Width || b.Dy() != p.Height {
			return fmt.Errorf("%w: init image is %dx%d, want %dx%d",
				ErrInvalidParams, b.Dx(), b.Dy(), p.Width, p.Height)
		}
		if p.Strength < 0 || p.Strength > 1 {
			return fmt.Errorf("%w: strength %.2f must be within [0, 1]", ErrInvalidParams, p.Strength)
		}
	}
	return nil
}
