package imagegen

// local_provider.go runs stable-diffusion.cpp in process through sdruntime.
// Without the "sd" build tag the binding is a stub and every generation
// call fails with sdruntime.ErrGenerationFailed.

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"gallery_style/core"
	"gallery_style/logging"
	"gallery_style/sdruntime"
)

// LocalLoader resolves model ids to checkpoint files and loads them.
type LocalLoader struct {
	models  *core.ModelManager
	threads int
	logger  *logging.Logger
}

func NewLocalLoader(models *core.ModelManager, threads int, logger *logging.Logger) (*LocalLoader, error) {
	if models == nil {
		return nil, fmt.Errorf("imagegen: model manager cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LocalLoader{models: models, threads: threads, logger: logger.Named("local")}, nil
}

func (l *LocalLoader) Name() string { return "local" }
func (l *LocalLoader) Remote() bool { return false }

func (l *LocalLoader) Load(ctx context.Context, opts LoadOptions) (Pipeline, error) {
	path, err := l.models.Resolve(ctx, opts.ModelID)
	if err != nil {
		return nil, err
	}

	if opts.Sampler.SDCppApproximate() {
		l.logger.Warn("sampler has no native local equivalent, using the closest method",
			zap.String("sampler", opts.Sampler.String()),
			zap.String("sample_method", opts.Sampler.SDCppName()))
	}
	l.logger.Info("loading checkpoint",
		zap.String("path", path),
		zap.String("device", string(opts.Device)),
		zap.String("sample_method", opts.Sampler.SDCppName()),
		zap.String("backend", sdruntime.GetBackendInfo()))

	sdCtx, err := sdruntime.LoadModel(path, sdruntime.LoadOptions{
		Sampler: opts.Sampler,
		Device:  opts.Device,
		Threads: l.threads,
	})
	if err != nil {
		return nil, err
	}
	return &localPipeline{sdCtx: sdCtx}, nil
}

type localPipeline struct {
	sdCtx *sdruntime.SDContext
}

func (p *localPipeline) TextToImage(ctx context.Context, call Call) ([][]byte, error) {
	return p.generate(ctx, call, nil, 0)
}

func (p *localPipeline) ImageToImage(ctx context.Context, call ImageToImageCall) ([][]byte, error) {
	if len(call.Images) == 0 {
		return nil, fmt.Errorf("%w: no source image", sdruntime.ErrInvalidParams)
	}
	return p.generate(ctx, call.Call, call.Images, call.Strength)
}

// generate draws one seed per invocation. A single prompt becomes one
// native call for the whole batch; several prompts are cycled, one image
// per native call with consecutive seeds, matching what a batched call
// would have used.
func (p *localPipeline) generate(ctx context.Context, call Call, sources []*image.RGBA, strength float64) ([][]byte, error) {
	base := sdruntime.GenerateParams{
		Width:      call.Width,
		Height:     call.Height,
		Steps:      call.Steps,
		CFGScale:   call.GuidanceScale,
		Sampler:    p.sdCtx.Sampler(),
		Seed:       call.Generator.Next(),
		BatchCount: call.BatchSize,
		Strength:   strength,
	}
	if call.NegativePrompt != nil {
		base.NegativePrompt = *call.NegativePrompt
	}
	if call.Eta != nil {
		base.Eta = *call.Eta
	}
	if len(sources) > 0 {
		base.InitImage = sources[0]
	}

	if len(call.Prompts) == 1 {
		base.Prompt = call.Prompts[0]
		return collect(sdruntime.GenerateImages(p.sdCtx, base))
	}
	if len(call.Prompts) == 0 {
		return nil, fmt.Errorf("%w: no prompts", sdruntime.ErrInvalidPrompt)
	}

	images := make([][]byte, 0, call.BatchSize)
	for i := 0; i < call.BatchSize; i++ {
		if err := ctx.Err(); err != nil {
			return images, err
		}
		params := base
		params.Prompt = call.Prompts[i%len(call.Prompts)]
		params.BatchCount = 1
		if base.Seed != sdruntime.RandomSeedValue {
			params.Seed = base.Seed + int64(i)
		}
		if i < len(sources) {
			params.InitImage = sources[i]
		}
		out, err := collect(sdruntime.GenerateImages(p.sdCtx, params))
		if err != nil {
			return images, err
		}
		images = append(images, out...)
	}
	return images, nil
}

func collect(results []*sdruntime.GenerateResult, err error) ([][]byte, error) {
	if err != nil {
		return nil, err
	}
	images := make([][]byte, 0, len(results))
	for _, r := range results {
		images = append(images, r.ImageData)
	}
	return images, nil
}

func (p *localPipeline) Close() error {
	sdruntime.FreeContext(p.sdCtx)
	return nil
}
