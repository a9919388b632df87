package imagegen

import (
	"time"

	"gallery_style/core"
)

// Mode selects which pipeline entry point a run uses.
type Mode string

const (
	ModeTextToImage  Mode = "txt2img"
	ModeImageToImage Mode = "img2img"
)

// GenerationRequest is the immutable description of one run. Optional
// values are pointers so "unset" survives into the metadata as null.
type GenerationRequest struct {
	Prompts        []string
	NegativePrompt *string
	NumImages      int
	BatchSize      int
	Width          int
	Height         int
	Steps          int
	GuidanceScale  float64
	Sampler        string
	Eta            *float64
	Seed           *int64
	InitImage      string // non-empty selects image-to-image
	Strength       float64
	OutDir         string
	SaveJSON       bool
	ModelID        string
}

// DefaultRequest builds a request from configured generation defaults.
// Prompts are left empty.
func DefaultRequest(gen core.GenerationDefaults) GenerationRequest {
	req := GenerationRequest{
		NumImages:     gen.NumImages,
		BatchSize:     gen.BatchSize,
		Width:         gen.Width,
		Height:        gen.Height,
		Steps:         gen.Steps,
		GuidanceScale: gen.GuidanceScale,
		Sampler:       gen.Sampler,
		Strength:      gen.Strength,
		OutDir:        gen.OutDir,
		ModelID:       gen.ModelID,
	}
	if gen.NegativePrompt != "" {
		neg := gen.NegativePrompt
		req.NegativePrompt = &neg
	}
	return req
}

// Mode reports image-to-image when a source image is set.
func (r GenerationRequest) Mode() Mode {
	if r.InitImage != "" {
		return ModeImageToImage
	}
	return ModeTextToImage
}

// BatchResult is what one pipeline invocation produced.
type BatchResult struct {
	Images  [][]byte // PNG, in pipeline order
	Latency time.Duration
}

// MetadataRecord is one line of metadata.jsonl. Field order and names are
// part of the file format.
type MetadataRecord struct {
	Path           string   `json:"path"`
	Prompt         []string `json:"prompt"`
	NegativePrompt *string  `json:"negative_prompt"`
	Steps          int      `json:"steps"`
	GuidanceScale  float64  `json:"guidance_scale"`
	Sampler        string   `json:"sampler"`
	Seed           *int64   `json:"seed"`
	Img2Img        bool     `json:"img2img"`
	Strength       *float64 `json:"strength"`
	LatencyS       float64  `json:"latency_s"`
	Size           [2]int   `json:"size"`
	ModelID        string   `json:"model_id"`
}
