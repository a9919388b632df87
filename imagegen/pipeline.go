package imagegen

import (
	"context"
	"image"

	"gallery_style/sdruntime"
)

// Call carries the parameters shared by both pipeline modes. Steps and
// GuidanceScale are passed through unchecked.
type Call struct {
	Prompts        []string
	NegativePrompt *string
	BatchSize      int
	Width          int
	Height         int
	Steps          int
	GuidanceScale  float64
	Eta            *float64

	// Generator is the run's shared random source. Nil means unseeded.
	Generator *sdruntime.Generator
}

// ImageToImageCall adds the source images, one per requested output.
type ImageToImageCall struct {
	Call
	Images   []*image.RGBA
	Strength float64
}

// Pipeline is a loaded generation capability. Implementations return PNG
// bytes; they may return more or fewer images than BatchSize.
type Pipeline interface {
	TextToImage(ctx context.Context, call Call) ([][]byte, error)
	ImageToImage(ctx context.Context, call ImageToImageCall) ([][]byte, error)
	Close() error
}

// LoadOptions are fixed for the lifetime of a pipeline.
type LoadOptions struct {
	ModelID string
	Device  sdruntime.Device
	Sampler sdruntime.Sampler
	Mode    Mode
}

// Loader builds pipelines for one backend.
type Loader interface {
	Name() string
	// Remote reports whether pipelines run off-host, in which case no
	// local device is detected.
	Remote() bool
	Load(ctx context.Context, opts LoadOptions) (Pipeline, error)
}

// PipelineHandle is a pipeline bound to its model, device, mode and
// sampler. One handle serves a whole run.
type PipelineHandle struct {
	pipeline Pipeline

	ModelID string
	Device  sdruntime.Device
	Mode    Mode
	Sampler sdruntime.Sampler

	// RequestedSampler is the name as given; SamplerKnown is false when it
	// fell back to the default.
	RequestedSampler string
	SamplerKnown     bool
}

// Pipeline exposes the underlying capability.
func (h *PipelineHandle) Pipeline() Pipeline {
	return h.pipeline
}

// Close releases the pipeline. Safe on a nil handle.
func (h *PipelineHandle) Close() error {
	if h == nil || h.pipeline == nil {
		return nil
	}
	return h.pipeline.Close()
}
