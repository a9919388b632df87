// Package imagegen is the batch generation driver.
//
// driver.go implements the Driver, which turns one GenerationRequest into a
// sequence of pipeline invocations and persists every returned image plus
// its metadata.
//
// The Driver composes:
//   - Loader: a backend (webui, local, openai) that builds the Pipeline
//   - sdruntime: sampler registry, device resolution and the seeded Generator
//   - logging.Logger: structured per-batch and per-run entries
//
// Runs are strictly sequential. The pipeline handle and the generator are
// owned by a single Run call and never shared.
package imagegen

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gallery_style/logging"
	"gallery_style/sdruntime"
)

// Driver runs generation requests against one backend.
type Driver struct {
	loader     Loader
	logger     *logging.Logger
	detector   sdruntime.AcceleratorDetector
	devicePref string
	now        func() time.Time
	openImage  ImageOpener
	newRunID   func() string
}

type DriverOption func(*Driver)

// WithLogger sets the logger; the driver logs under the "driver" name.
func WithLogger(logger *logging.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDevice forces "cuda" or "cpu"; the default "auto" looks for a GPU.
func WithDevice(preference string) DriverOption {
	return func(d *Driver) {
		d.devicePref = preference
	}
}

func WithAcceleratorDetector(detector sdruntime.AcceleratorDetector) DriverOption {
	return func(d *Driver) {
		d.detector = detector
	}
}

// WithClock replaces time.Now for file names and latency.
func WithClock(now func() time.Time) DriverOption {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

func WithImageOpener(open ImageOpener) DriverOption {
	return func(d *Driver) {
		if open != nil {
			d.openImage = open
		}
	}
}

func WithRunIDFunc(fn func() string) DriverOption {
	return func(d *Driver) {
		if fn != nil {
			d.newRunID = fn
		}
	}
}

// NewDriver returns a Driver for loader.
func NewDriver(loader Loader, opts ...DriverOption) (*Driver, error) {
	if loader == nil {
		return nil, fmt.Errorf("imagegen: loader cannot be nil")
	}
	d := &Driver{
		loader:     loader,
		logger:     logging.NewNop(),
		detector:   sdruntime.NvidiaSMIDetector{},
		devicePref: "auto",
		now:        time.Now,
		openImage:  openFile,
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("driver")
	return d, nil
}

// Configure resolves the sampler, mode and device and loads the pipeline.
// An unknown sampler name is not an error: the default is used and a
// warning logged.
func (d *Driver) Configure(ctx context.Context, req GenerationRequest) (*PipelineHandle, error) {
	return d.configure(ctx, req, d.logger)
}

func (d *Driver) configure(ctx context.Context, req GenerationRequest, log *logging.Logger) (*PipelineHandle, error) {
	sampler, known := sdruntime.ParseSampler(req.Sampler)
	if !known {
		log.Warn("unknown sampler, using default",
			zap.String("requested", req.Sampler),
			zap.String("using", sampler.String()))
	}

	device := sdruntime.DeviceRemote
	if !d.loader.Remote() {
		var err error
		device, err = sdruntime.ResolveDevice(ctx, d.devicePref, d.detector)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
		}
	}

	mode := req.Mode()
	log.Info("loading pipeline",
		zap.String("backend", d.loader.Name()),
		zap.String("model_id", req.ModelID),
		zap.String("device", string(device)),
		zap.String("mode", string(mode)),
		zap.String("scheduler", sampler.SchedulerName()))

	pipeline, err := d.loader.Load(ctx, LoadOptions{
		ModelID: req.ModelID,
		Device:  device,
		Sampler: sampler,
		Mode:    mode,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s backend, model %q: %v", ErrModelLoad, d.loader.Name(), req.ModelID, err)
	}

	return &PipelineHandle{
		pipeline:         pipeline,
		ModelID:          req.ModelID,
		Device:           device,
		Mode:             mode,
		Sampler:          sampler,
		RequestedSampler: req.Sampler,
		SamplerKnown:     known,
	}, nil
}

// Run executes req and returns one record per saved image, in save order.
// When req.SaveJSON is set the records are also written to metadata.jsonl
// (an empty file when nothing was generated).
func (d *Driver) Run(ctx context.Context, req GenerationRequest) ([]MetadataRecord, error) {
	log := d.logger.With(zap.String("run_id", d.newRunID()))
	started := d.now()

	if err := os.MkdirAll(req.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrOutputWrite, req.OutDir, err)
	}

	var gen *sdruntime.Generator
	if req.Seed != nil {
		gen = sdruntime.NewGenerator(*req.Seed)
	}

	// The source is decoded once and reused by every batch.
	var source *image.RGBA
	if req.Mode() == ModeImageToImage {
		img, err := LoadSourceImage(d.openImage, req.InitImage, req.Width, req.Height)
		if err != nil {
			return nil, err
		}
		source = img
	}

	handle, err := d.configure(ctx, req, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := handle.Close(); cerr != nil {
			log.Warn("pipeline close failed", zap.Error(cerr))
		}
	}()

	records := make([]MetadataRecord, 0, max(req.NumImages, 0))
	made, batches := 0, 0

	for _, bs := range PlanBatches(req.NumImages, req.BatchSize) {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		call := Call{
			Prompts:        req.Prompts,
			NegativePrompt: req.NegativePrompt,
			BatchSize:      bs,
			Width:          req.Width,
			Height:         req.Height,
			Steps:          req.Steps,
			GuidanceScale:  req.GuidanceScale,
			Eta:            req.Eta,
			Generator:      gen,
		}

		result, err := d.invoke(ctx, handle.Pipeline(), call, source, req.Strength)
		batches++
		if err != nil {
			return records, fmt.Errorf("%w: batch %d: %v", ErrPipelineInvocation, batches, err)
		}
		if len(result.Images) == 0 {
			return records, fmt.Errorf("%w: batch %d returned no images", ErrPipelineInvocation, batches)
		}

		images := result.Images
		if len(images) > bs {
			log.Warn("pipeline returned more images than requested, truncating",
				zap.Int("batch", batches),
				zap.Int("requested", bs),
				zap.Int("returned", len(images)))
			images = images[:bs]
		}

		saved := 0
		for _, data := range images {
			if err := sdruntime.ValidateImageData(data); err != nil {
				return records, fmt.Errorf("%w: batch %d image %d: %v", ErrPipelineInvocation, batches, saved, err)
			}
			path := filepath.Join(req.OutDir, fmt.Sprintf("gen_%d_%03d.png", d.now().UnixMilli(), made))
			if err := os.WriteFile(path, data, 0644); err != nil {
				return records, fmt.Errorf("%w: %v", ErrOutputWrite, err)
			}
			records = append(records, newMetadataRecord(req, path, result.Latency.Seconds()))
			made++
			saved++
		}

		log.Info("batch complete", logging.BatchFields(logging.BatchStats{
			Index:     batches,
			Requested: bs,
			Returned:  len(result.Images),
			Saved:     saved,
			Latency:   result.Latency,
		}))
	}

	if req.SaveJSON {
		if err := WriteMetadata(MetadataPath(req.OutDir), records); err != nil {
			return records, err
		}
	}

	log.Info("run complete", logging.RunFields(logging.RunStats{
		ModelID:  handle.ModelID,
		Mode:     string(handle.Mode),
		Sampler:  handle.Sampler.String(),
		Device:   string(handle.Device),
		Images:   made,
		Batches:  batches,
		Duration: d.now().Sub(started),
	}))
	return records, nil
}

// invoke times one pipeline call. A non-nil source selects image-to-image.
func (d *Driver) invoke(ctx context.Context, p Pipeline, call Call, source *image.RGBA, strength float64) (BatchResult, error) {
	var (
		images [][]byte
		err    error
	)
	t0 := d.now()
	if source != nil {
		images, err = p.ImageToImage(ctx, ImageToImageCall{
			Call:     call,
			Images:   repeatImage(source, call.BatchSize),
			Strength: strength,
		})
	} else {
		images, err = p.TextToImage(ctx, call)
	}
	return BatchResult{Images: images, Latency: d.now().Sub(t0)}, err
}
