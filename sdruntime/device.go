package sdruntime

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Device is where a pipeline runs.
type Device string

const (
	DeviceCUDA   Device = "cuda"
	DeviceCPU    Device = "cpu"
	DeviceRemote Device = "remote"
)

// AcceleratorDetector reports whether an accelerator is present.
type AcceleratorDetector interface {
	HasAccelerator(ctx context.Context) bool
}

// NvidiaSMIDetector detects CUDA devices by listing GPUs with nvidia-smi.
type NvidiaSMIDetector struct {
	// Path to nvidia-smi. Empty means look it up on PATH.
	Path    string
	Timeout time.Duration
}

func (p NvidiaSMIDetector) HasAccelerator(ctx context.Context) bool {
	path := p.Path
	if path == "" {
		found, err := exec.LookPath("nvidia-smi")
		if err != nil {
			return false
		}
		path = found
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-L").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "GPU ")
}

// ResolveDevice picks the device for a local pipeline. preference is one of
// "auto" (or empty), "cuda" or "cpu". Asking for cuda without an
// accelerator is an error; auto falls back to cpu.
func ResolveDevice(ctx context.Context, preference string, detector AcceleratorDetector) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(preference)) {
	case "", "auto":
		if detector != nil && detector.HasAccelerator(ctx) {
			return DeviceCUDA, nil
		}
		return DeviceCPU, nil
	case "cpu":
		return DeviceCPU, nil
	case "cuda", "gpu":
		if detector == nil || !detector.HasAccelerator(ctx) {
			return "", ErrCUDANotAvailable
		}
		return DeviceCUDA, nil
	default:
		return "", fmt.Errorf("%w: unknown device %q (want auto, cuda or cpu)", ErrInvalidParams, preference)
	}
}
