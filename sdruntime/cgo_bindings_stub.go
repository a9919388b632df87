//go:build !sd || stub

// Stub binding used when stable-diffusion.cpp is not linked. Models can be
// "loaded" (the file is checked) but generation always fails.

package sdruntime

import (
	"fmt"
	"os"
	"sync/atomic"
)

const backendLinked = false

var stubContextCounter uint64

func loadModelImpl(modelPath string, opts LoadOptions) (*SDContext, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
	} else if err != nil {
		return nil, fmt.Errorf("%w: unable to access %s: %v", ErrModelLoadFailed, modelPath, err)
	}

	return &SDContext{
		id:        atomic.AddUint64(&stubContextCounter, 1),
		modelPath: modelPath,
		device:    opts.Device,
		sampler:   opts.Sampler,
		valid:     true,
	}, nil
}

func generateImagesImpl(ctx *SDContext, _ GenerateParams) ([]*GenerateResult, error) {
	if !ctx.IsValid() {
		return nil, fmt.Errorf("%w: context is nil or invalid", ErrGenerationFailed)
	}
	return nil, fmt.Errorf("%w: stable-diffusion.cpp is not linked (stub build); "+
		"rebuild with CGO_ENABLED=1 -tags sd or use another backend", ErrGenerationFailed)
}

func freeContextImpl(ctx *SDContext) {
	if ctx != nil {
		ctx.valid = false
	}
}

func getBackendInfoImpl() string {
	return "stub (no stable-diffusion.cpp library linked)"
}
