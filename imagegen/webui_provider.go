package imagegen

// webui_provider.go talks to an AUTOMATIC1111-compatible server
// (stable-diffusion-webui, Forge, SD.Next) over its /sdapi/v1 JSON API.

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"gallery_style/core"
	"gallery_style/logging"
	"gallery_style/sdruntime"
)

const (
	webuiTxt2ImgPath = "/sdapi/v1/txt2img"
	webuiImg2ImgPath = "/sdapi/v1/img2img"
	webuiModelsPath  = "/sdapi/v1/sd-models"

	// webuiPromptJoin is the webui's composable-diffusion separator.
	webuiPromptJoin = " AND "
)

// WebUILoader builds pipelines backed by a running webui server.
type WebUILoader struct {
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

// NewWebUILoader validates baseURL; client may be nil.
func NewWebUILoader(baseURL string, client *http.Client, logger *logging.Logger) (*WebUILoader, error) {
	if err := core.ValidateURL("SD_WEBUI_URL", baseURL); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WebUILoader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger.Named("webui"),
	}, nil
}

func (l *WebUILoader) Name() string { return "webui" }
func (l *WebUILoader) Remote() bool { return true }

type webuiModel struct {
	Title     string `json:"title"`
	ModelName string `json:"model_name"`
	Hash      string `json:"hash"`
	Filename  string `json:"filename"`
}

// Load resolves opts.ModelID against the server's checkpoint list. An empty
// id keeps whatever checkpoint the server has loaded.
func (l *WebUILoader) Load(ctx context.Context, opts LoadOptions) (Pipeline, error) {
	p := &webuiPipeline{loader: l, sampler: opts.Sampler}
	if opts.ModelID == "" {
		return p, nil
	}

	var models []webuiModel
	if err := l.do(ctx, http.MethodGet, webuiModelsPath, nil, &models); err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	checkpoint, ok := matchCheckpoint(models, opts.ModelID)
	if !ok {
		titles := make([]string, 0, len(models))
		for _, m := range models {
			titles = append(titles, m.Title)
		}
		return nil, fmt.Errorf("%w: no webui checkpoint matches %q (available: %v)",
			sdruntime.ErrModelNotFound, opts.ModelID, titles)
	}
	l.logger.Info("using webui checkpoint", zap.String("model_id", opts.ModelID), zap.String("checkpoint", checkpoint))
	p.checkpoint = checkpoint
	return p, nil
}

// matchCheckpoint accepts a checkpoint title, model name, file name (with
// or without extension) or a registered model id whose file is installed.
func matchCheckpoint(models []webuiModel, modelID string) (string, bool) {
	candidates := []string{modelID, path.Base(modelID)}
	for _, known := range core.KnownModels {
		if known.ID == modelID {
			candidates = append(candidates, known.Filename)
		}
	}

	for _, c := range candidates {
		stem := strings.TrimSuffix(c, path.Ext(c))
		for _, m := range models {
			file := path.Base(strings.ReplaceAll(m.Filename, "\\", "/"))
			switch {
			case m.Title == c, m.ModelName == c, m.ModelName == stem,
				file == c, strings.HasPrefix(m.Title, c+" "):
				return m.Title, true
			}
		}
	}
	return "", false
}

type webuiRequest struct {
	Prompt            string         `json:"prompt"`
	NegativePrompt    string         `json:"negative_prompt,omitempty"`
	Steps             int            `json:"steps"`
	CFGScale          float64        `json:"cfg_scale"`
	Width             int            `json:"width"`
	Height            int            `json:"height"`
	SamplerName       string         `json:"sampler_name"`
	BatchSize         int            `json:"batch_size"`
	NIter             int            `json:"n_iter"`
	Seed              int64          `json:"seed"`
	Eta               *float64       `json:"eta,omitempty"`
	OverrideSettings  map[string]any `json:"override_settings,omitempty"`
	InitImages        []string       `json:"init_images,omitempty"`
	DenoisingStrength *float64       `json:"denoising_strength,omitempty"`
}

type webuiResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

type webuiPipeline struct {
	loader     *WebUILoader
	checkpoint string
	sampler    sdruntime.Sampler
}

func (p *webuiPipeline) request(call Call) webuiRequest {
	req := webuiRequest{
		Prompt:      sdruntime.JoinPrompts(call.Prompts, webuiPromptJoin),
		Steps:       call.Steps,
		CFGScale:    call.GuidanceScale,
		Width:       call.Width,
		Height:      call.Height,
		SamplerName: p.sampler.WebUIName(),
		BatchSize:   call.BatchSize,
		NIter:       1,
		Seed:        call.Generator.Next(),
		Eta:         call.Eta,
	}
	if call.NegativePrompt != nil {
		req.NegativePrompt = *call.NegativePrompt
	}
	if p.checkpoint != "" {
		req.OverrideSettings = map[string]any{"sd_model_checkpoint": p.checkpoint}
	}
	return req
}

func (p *webuiPipeline) TextToImage(ctx context.Context, call Call) ([][]byte, error) {
	return p.generate(ctx, webuiTxt2ImgPath, p.request(call))
}

func (p *webuiPipeline) ImageToImage(ctx context.Context, call ImageToImageCall) ([][]byte, error) {
	req := p.request(call.Call)
	req.InitImages = make([]string, 0, len(call.Images))
	var encoded string
	for i, img := range call.Images {
		// every entry is normally the same decoded source
		if i == 0 || img != call.Images[i-1] {
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return nil, fmt.Errorf("encode init image: %w", err)
			}
			encoded = base64.StdEncoding.EncodeToString(buf.Bytes())
		}
		req.InitImages = append(req.InitImages, encoded)
	}
	strength := call.Strength
	req.DenoisingStrength = &strength
	return p.generate(ctx, webuiImg2ImgPath, req)
}

func (p *webuiPipeline) generate(ctx context.Context, endpoint string, req webuiRequest) ([][]byte, error) {
	p.loader.logger.Debug("webui request",
		zap.String("endpoint", endpoint),
		zap.Int("batch_size", req.BatchSize),
		zap.Int64("seed", req.Seed),
		zap.String("sampler", req.SamplerName))

	var resp webuiResponse
	if err := p.loader.do(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, err
	}

	images := make([][]byte, 0, len(resp.Images))
	for i, b64 := range resp.Images {
		// some forks prefix a data URL header
		if idx := strings.Index(b64, ","); idx >= 0 && strings.HasPrefix(b64, "data:") {
			b64 = b64[idx+1:]
		}
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("decode image %d: %w", i, err)
		}
		images = append(images, data)
	}
	return images, nil
}

func (p *webuiPipeline) Close() error { return nil }

// do sends a JSON request and decodes a JSON response.
func (l *WebUILoader) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, endpoint, err)
	}
	return nil
}
