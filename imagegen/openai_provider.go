package imagegen

// openai_provider.go generates images with the OpenAI Images API:
// CreateImage for text-to-image and CreateEditImage for image-to-image.
// The API has no seed, sampler or negative prompt; those are logged and
// dropped.

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"gallery_style/logging"
	"gallery_style/sdruntime"
)

// OpenAILoaderConfig configures the hosted image backend.
type OpenAILoaderConfig struct {
	APIKey     string
	BaseURL    string // empty means api.openai.com
	Model      string // used when the request's model id is not an OpenAI model
	HTTPClient *http.Client
}

type OpenAILoader struct {
	client *openai.Client
	model  string
	logger *logging.Logger
}

func NewOpenAILoader(cfg OpenAILoaderConfig, logger *logging.Logger) (*OpenAILoader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("imagegen: OpenAI API key is required for image generation")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &OpenAILoader{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger.Named("openai"),
	}, nil
}

func (l *OpenAILoader) Name() string { return "openai" }
func (l *OpenAILoader) Remote() bool { return true }

// Load picks the image model. Diffusers-style repository ids cannot be
// served by the API, so they fall back to the configured model.
func (l *OpenAILoader) Load(ctx context.Context, opts LoadOptions) (Pipeline, error) {
	var model string
	switch opts.ModelID {
	case openai.CreateImageModelDallE2, openai.CreateImageModelDallE3, openai.CreateImageModelGptImage1:
		model = opts.ModelID
	default:
		model = l.model
	}
	if model == "" {
		model = openai.CreateImageModelDallE2
	}
	if opts.Mode == ModeImageToImage && model == openai.CreateImageModelDallE3 {
		return nil, fmt.Errorf("%w: %s does not support image edits", sdruntime.ErrInvalidParams, model)
	}
	if opts.ModelID != model {
		l.logger.Info("using hosted image model", zap.String("model_id", opts.ModelID), zap.String("model", model))
	}
	return &openaiPipeline{loader: l, model: model}, nil
}

type openaiPipeline struct {
	loader *OpenAILoader
	model  string
}

// responseFormat is empty for gpt-image-1, which always returns base64 and
// rejects the parameter.
func (p *openaiPipeline) responseFormat() string {
	if p.model == openai.CreateImageModelGptImage1 {
		return ""
	}
	return openai.CreateImageResponseFormatB64JSON
}

// perCall is how many images one request may ask for.
func (p *openaiPipeline) perCall(batch int) int {
	if p.model == openai.CreateImageModelDallE3 {
		return 1
	}
	return batch
}

func (p *openaiPipeline) logDropped(call Call) {
	if call.NegativePrompt != nil || call.Generator != nil || call.Eta != nil {
		p.loader.logger.Debug("hosted backend ignores negative prompt, seed and eta")
	}
}

func (p *openaiPipeline) TextToImage(ctx context.Context, call Call) ([][]byte, error) {
	p.logDropped(call)
	prompt := sdruntime.JoinPrompts(call.Prompts, ", ")
	size := fmt.Sprintf("%dx%d", call.Width, call.Height)

	images := make([][]byte, 0, call.BatchSize)
	for len(images) < call.BatchSize {
		resp, err := p.loader.client.CreateImage(ctx, openai.ImageRequest{
			Prompt:         prompt,
			Model:          p.model,
			N:              min(p.perCall(call.BatchSize), call.BatchSize-len(images)),
			Size:           size,
			ResponseFormat: p.responseFormat(),
		})
		if err != nil {
			return images, fmt.Errorf("create image: %w", err)
		}
		decoded, err := decodeB64Images(resp.Data)
		if err != nil {
			return images, err
		}
		if len(decoded) == 0 {
			break
		}
		images = append(images, decoded...)
	}
	return images, nil
}

func (p *openaiPipeline) ImageToImage(ctx context.Context, call ImageToImageCall) ([][]byte, error) {
	p.logDropped(call.Call)
	if len(call.Images) == 0 {
		return nil, fmt.Errorf("%w: no source image", sdruntime.ErrInvalidParams)
	}
	var source bytes.Buffer
	if err := png.Encode(&source, call.Images[0]); err != nil {
		return nil, fmt.Errorf("encode source image: %w", err)
	}

	resp, err := p.loader.client.CreateEditImage(ctx, openai.ImageEditRequest{
		Image:          openai.WrapReader(bytes.NewReader(source.Bytes()), "source.png", "image/png"),
		Prompt:         sdruntime.JoinPrompts(call.Prompts, ", "),
		Model:          p.model,
		N:              call.BatchSize,
		Size:           fmt.Sprintf("%dx%d", call.Width, call.Height),
		ResponseFormat: p.responseFormat(),
	})
	if err != nil {
		return nil, fmt.Errorf("create image edit: %w", err)
	}
	return decodeB64Images(resp.Data)
}

func decodeB64Images(data []openai.ImageResponseDataInner) ([][]byte, error) {
	images := make([][]byte, 0, len(data))
	for i, d := range data {
		if d.B64JSON == "" {
			return nil, fmt.Errorf("image %d: response carried no base64 data", i)
		}
		raw, err := base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("image %d: decode: %w", i, err)
		}
		images = append(images, raw)
	}
	return images, nil
}

func (p *openaiPipeline) Close() error { return nil }
