// Package sdruntime provides the diffusion primitives shared by every
// generation backend: the sampler registry, device detection, the seeded
// random source, PNG helpers and the in-process stable-diffusion.cpp binding.
package sdruntime

import "errors"

var (
	// Model errors
	ErrModelNotFound   = errors.New("sdruntime: model file not found")
	ErrModelLoadFailed = errors.New("sdruntime: failed to load model")
	ErrModelCorrupted  = errors.New("sdruntime: model file is corrupted or invalid")

	// Generation errors
	ErrGenerationFailed = errors.New("sdruntime: image generation failed")

	// Input errors
	ErrInvalidPrompt = errors.New("sdruntime: invalid prompt")
	ErrInvalidParams = errors.New("sdruntime: invalid generation parameters")

	// Hardware
	ErrCUDANotAvailable = errors.New("sdruntime: CUDA not available")
)
