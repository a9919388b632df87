package imagegen

import "errors"

// Run failures. Every one is terminal; files written before the failure
// stay on disk.
var (
	// ErrModelLoad: the model or scheduler could not be resolved or loaded.
	ErrModelLoad = errors.New("imagegen: model load failed")

	// ErrSourceImage: the image-to-image source is missing or undecodable.
	ErrSourceImage = errors.New("imagegen: source image unusable")

	// ErrPipelineInvocation: a batch call failed or made no progress.
	ErrPipelineInvocation = errors.New("imagegen: pipeline invocation failed")

	// ErrOutputWrite: the output directory, an image or the metadata file
	// could not be written.
	ErrOutputWrite = errors.New("imagegen: output write failed")
)
