package imagegen

import (
	"context"
	"errors"
	"image"
	"testing"

	"gallery_style/sdruntime"
)

// fakeLoader records how the driver configured it and hands out a
// fakePipeline.
type fakeLoader struct {
	remote   bool
	loadErr  error
	loaded   []LoadOptions
	pipeline *fakePipeline
}

func (l *fakeLoader) Name() string { return "fake" }
func (l *fakeLoader) Remote() bool { return l.remote }

func (l *fakeLoader) Load(_ context.Context, opts LoadOptions) (Pipeline, error) {
	l.loaded = append(l.loaded, opts)
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	if l.pipeline == nil {
		l.pipeline = &fakePipeline{}
	}
	return l.pipeline, nil
}

// fakePipeline renders tiny PNGs whose pixels depend on the generator, so
// seeded runs are reproducible and draw order is observable.
type fakePipeline struct {
	calls   []Call
	sources [][]*image.RGBA

	extra       int // images returned beyond the batch size
	emptyOnCall int // 1-based call that returns nothing
	failOnCall  int // 1-based call that errors
	closed      bool

	unseeded int64
}

var errFakeInvoke = errors.New("fake pipeline exploded")

func (p *fakePipeline) TextToImage(_ context.Context, call Call) ([][]byte, error) {
	p.calls = append(p.calls, call)
	return p.render(call)
}

func (p *fakePipeline) ImageToImage(_ context.Context, call ImageToImageCall) ([][]byte, error) {
	p.calls = append(p.calls, call.Call)
	p.sources = append(p.sources, call.Images)
	return p.render(call.Call)
}

func (p *fakePipeline) render(call Call) ([][]byte, error) {
	n := len(p.calls)
	if n == p.failOnCall {
		return nil, errFakeInvoke
	}
	if n == p.emptyOnCall {
		return nil, nil
	}

	seed := call.Generator.Next()
	if seed == sdruntime.RandomSeedValue {
		p.unseeded++
		seed = 1_000_000 + p.unseeded*100
	}

	out := make([][]byte, 0, call.BatchSize+p.extra)
	for i := 0; i < call.BatchSize+p.extra; i++ {
		v := seed + int64(i)
		pixels := make([]byte, 4*4*3)
		for j := range pixels {
			pixels[j] = byte(v >> (8 * (j % 4)))
		}
		data, err := sdruntime.EncodeToPNG(pixels, 4, 4, 3)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func (p *fakePipeline) Close() error {
	p.closed = true
	return nil
}

func (p *fakePipeline) batchSizes() []int {
	sizes := make([]int, len(p.calls))
	for i, c := range p.calls {
		sizes[i] = c.BatchSize
	}
	return sizes
}

func newTestDriver(t *testing.T, loader Loader, opts ...DriverOption) *Driver {
	t.Helper()
	base := []DriverOption{
		WithAcceleratorDetector(fakeDetector(false)),
		WithRunIDFunc(func() string { return "test-run" }),
	}
	d, err := NewDriver(loader, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewDriver() error: %v", err)
	}
	return d
}

type fakeDetector bool

func (f fakeDetector) HasAccelerator(context.Context) bool { return bool(f) }

func int64Ptr(v int64) *int64       { return &v }
func stringPtr(v string) *string    { return &v }
func float64Ptr(v float64) *float64 { return &v }
