// Package sdruntime holds the diffusion primitives shared by every
// generation backend: the sampler registry, device detection, the seeded
// random source, parameter validation, PNG helpers and the in-process
// stable-diffusion.cpp binding.
//
// # Build Tags
//
//   - Stub mode (default): go build
//     Models can be opened but generation returns ErrGenerationFailed.
//
//   - Native mode: CGO_ENABLED=1 go build -tags sd
//     Links against libgallery_sd, a thin C shim over stable-diffusion.cpp.
//
// # Errors
//
// Use errors.Is with the sentinels in errors.go:
//
//	if errors.Is(err, sdruntime.ErrModelCorrupted) {
//	    // re-download the checkpoint
//	}
package sdruntime
