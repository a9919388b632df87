package sdruntime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeDetector bool

func (f fakeDetector) HasAccelerator(context.Context) bool { return bool(f) }

func TestResolveDevice(t *testing.T) {
	tests := []struct {
		name       string
		preference string
		detector   AcceleratorDetector
		want       Device
		wantErr    error
	}{
		{"auto with gpu", "auto", fakeDetector(true), DeviceCUDA, nil},
		{"auto without gpu", "", fakeDetector(false), DeviceCPU, nil},
		{"auto nil detector", "auto", nil, DeviceCPU, nil},
		{"cpu ignores gpu", "CPU", fakeDetector(true), DeviceCPU, nil},
		{"cuda with gpu", "cuda", fakeDetector(true), DeviceCUDA, nil},
		{"gpu alias", "gpu", fakeDetector(true), DeviceCUDA, nil},
		{"cuda without gpu", "cuda", fakeDetector(false), "", ErrCUDANotAvailable},
		{"unknown", "tpu", fakeDetector(true), "", ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDevice(context.Background(), tt.preference, tt.detector)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("device = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNvidiaSMIDetector_MissingBinary(t *testing.T) {
	detector := NvidiaSMIDetector{Path: filepath.Join(t.TempDir(), "nvidia-smi")}
	if detector.HasAccelerator(context.Background()) {
		t.Error("missing binary should mean no accelerator")
	}
}

func TestNvidiaSMIDetector_ScriptOutput(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	dir := t.TempDir()

	withGPU := filepath.Join(dir, "smi-gpu")
	script := "#!/bin/sh\necho 'GPU 0: NVIDIA A10G (UUID: GPU-1234)'\n"
	if err := os.WriteFile(withGPU, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	if !(NvidiaSMIDetector{Path: withGPU}).HasAccelerator(context.Background()) {
		t.Error("expected accelerator from listing")
	}

	failing := filepath.Join(dir, "smi-fail")
	if err := os.WriteFile(failing, []byte("#!/bin/sh\nexit 9\n"), 0755); err != nil {
		t.Fatal(err)
	}
	if (NvidiaSMIDetector{Path: failing}).HasAccelerator(context.Background()) {
		t.Error("failing nvidia-smi should mean no accelerator")
	}
}
