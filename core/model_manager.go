package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"gallery_style/logging"
	"gallery_style/sdruntime"
)

// ModelConfig describes a single-file checkpoint that can be fetched by id.
type ModelConfig struct {
	ID             string
	URL            string
	Filename       string
	ExpectedSHA256 string
}

// KnownModels maps Hugging Face repository ids to single-file checkpoints
// usable by the local backend.
var KnownModels = []ModelConfig{
	{
		ID:             "runwayml/stable-diffusion-v1-5",
		URL:            "https://huggingface.co/runwayml/stable-diffusion-v1-5/resolve/main/v1-5-pruned-emaonly.safetensors",
		Filename:       "v1-5-pruned-emaonly.safetensors",
		ExpectedSHA256: "6ce0161689b3853acaa03779ec93eafe75a02f4ced659bee03f50797806fa2fa",
	},
	{
		ID:       "stabilityai/sd-turbo",
		URL:      "https://huggingface.co/stabilityai/sd-turbo/resolve/main/sd_turbo.safetensors",
		Filename: "sd_turbo.safetensors",
	},
	{
		ID:       "stabilityai/stable-diffusion-2-1-base",
		URL:      "https://huggingface.co/stabilityai/stable-diffusion-2-1-base/resolve/main/v2-1_512-ema-pruned.safetensors",
		Filename: "v2-1_512-ema-pruned.safetensors",
	},
}

// ModelManager turns a model id into a local checkpoint path, downloading
// registered models on demand when allowed.
type ModelManager struct {
	modelDir       string
	httpClient     *http.Client
	models         map[string]ModelConfig
	autoDownload   bool
	maxRetries     int
	baseRetryDelay time.Duration
	logger         *logging.Logger
}

type ModelManagerOption func(*ModelManager)

func WithMaxRetries(n int) ModelManagerOption {
	return func(mm *ModelManager) {
		if n > 0 {
			mm.maxRetries = n
		}
	}
}

func WithBaseRetryDelay(d time.Duration) ModelManagerOption {
	return func(mm *ModelManager) {
		if d > 0 {
			mm.baseRetryDelay = d
		}
	}
}

// WithModel registers an extra downloadable model. Its digest, when set,
// also applies to checkpoints passed by path with the same file name.
func WithModel(model ModelConfig) ModelManagerOption {
	return func(mm *ModelManager) {
		mm.models[model.ID] = model
		if model.ExpectedSHA256 != "" {
			sdruntime.RegisterModelChecksum(model.Filename, model.ExpectedSHA256)
		}
	}
}

func WithAutoDownload(enabled bool) ModelManagerOption {
	return func(mm *ModelManager) {
		mm.autoDownload = enabled
	}
}

func WithModelLogger(logger *logging.Logger) ModelManagerOption {
	return func(mm *ModelManager) {
		if logger != nil {
			mm.logger = logger
		}
	}
}

// NewModelManager defaults to three download attempts with 2s, 4s backoff.
func NewModelManager(modelDir string, httpClient *http.Client, opts ...ModelManagerOption) *ModelManager {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	mm := &ModelManager{
		modelDir:       modelDir,
		httpClient:     httpClient,
		models:         make(map[string]ModelConfig, len(KnownModels)),
		maxRetries:     3,
		baseRetryDelay: 2 * time.Second,
		logger:         logging.NewNop(),
	}
	for _, m := range KnownModels {
		mm.models[m.ID] = m
	}
	for _, opt := range opts {
		opt(mm)
	}
	return mm
}

// Resolve returns a loadable checkpoint path for modelID. modelID may be a
// path to an existing file or a registered id.
func (mm *ModelManager) Resolve(ctx context.Context, modelID string) (string, error) {
	if info, err := os.Stat(modelID); err == nil && !info.IsDir() {
		if err := sdruntime.VerifyModelChecksum(modelID); err != nil {
			return "", err
		}
		return modelID, nil
	}

	cfg, ok := mm.models[modelID]
	if !ok {
		return "", fmt.Errorf("%w: %q is neither a file nor a registered model (known: %v)",
			sdruntime.ErrModelNotFound, modelID, mm.ModelIDs())
	}

	path := filepath.Join(mm.modelDir, cfg.Filename)
	exists, err := mm.checkModelExists(path, cfg.ExpectedSHA256)
	if sdruntime.IsModelCorrupted(err) && mm.autoDownload {
		mm.logger.Warn("local checkpoint failed verification, downloading again",
			zap.String("model_id", cfg.ID), zap.String("path", path))
		if rmErr := os.Remove(path); rmErr != nil {
			return "", fmt.Errorf("remove corrupted model: %w", rmErr)
		}
		exists, err = false, nil
	}
	if err != nil {
		return "", err
	}
	if exists {
		return path, nil
	}

	if !mm.autoDownload {
		return "", &ModelDownloadError{
			ModelID:  cfg.ID,
			Cause:    sdruntime.ErrModelNotFound,
			Message:  "model is not present and SD_AUTO_DOWNLOAD is off",
			URL:      cfg.URL,
			DestPath: path,
			Checksum: cfg.ExpectedSHA256,
		}
	}
	if err := mm.downloadModel(ctx, cfg, path); err != nil {
		return "", err
	}
	return path, nil
}

func (mm *ModelManager) checkModelExists(path, expectedChecksum string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat model file: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("model path is a directory: %s", path)
	}
	if info.Size() == 0 {
		return false, nil
	}
	if expectedChecksum == "" {
		return true, nil
	}

	actual, err := sdruntime.CalculateChecksum(path)
	if sdruntime.IsModelNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("verify checksum: %w", err)
	}
	if !strings.EqualFold(actual, expectedChecksum) {
		return false, fmt.Errorf("%w: checksum mismatch for %s", sdruntime.ErrModelCorrupted, path)
	}
	return true, nil
}

func (mm *ModelManager) downloadModel(ctx context.Context, cfg ModelConfig, destPath string) error {
	log := mm.logger.With(zap.String("model_id", cfg.ID), zap.String("dest", destPath))

	var lastErr error
	for attempt := 1; attempt <= mm.maxRetries; attempt++ {
		if attempt > 1 {
			delay := mm.baseRetryDelay * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		log.Info("downloading model", zap.Int("attempt", attempt), zap.String("url", cfg.URL))
		result, err := DownloadFile(ctx, DownloadOptions{
			URL:            cfg.URL,
			DestPath:       destPath,
			ExpectedSHA256: cfg.ExpectedSHA256,
			HTTPClient:     mm.httpClient,
			Resume:         true,
			OnProgress: func(done, total int64) {
				log.Debug("download progress",
					zap.String("done", FormatBytes(done)),
					zap.String("total", FormatBytes(total)))
			},
		})
		if err == nil {
			log.Info("model downloaded",
				zap.String("size", FormatBytes(result.BytesDownloaded)),
				zap.Bool("resumed", result.Resumed),
				zap.Bool("checksum_verified", result.ChecksumValid))
			return nil
		}

		lastErr = err
		log.Warn("model download failed", zap.Int("attempt", attempt), zap.Error(err))
		if !isRetryableError(err) {
			break
		}
	}

	return &ModelDownloadError{
		ModelID:  cfg.ID,
		Cause:    lastErr,
		Message:  fmt.Sprintf("download failed after %d attempt(s)", mm.maxRetries),
		URL:      cfg.URL,
		DestPath: destPath,
		Checksum: cfg.ExpectedSHA256,
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if sdruntime.IsModelCorrupted(err) || sdruntime.IsModelNotFound(err) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

// ModelIDs lists registered ids in sorted order.
func (mm *ModelManager) ModelIDs() []string {
	ids := make([]string, 0, len(mm.models))
	for id := range mm.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ModelPath returns where a registered model lives, whether or not it exists.
func (mm *ModelManager) ModelPath(modelID string) (string, error) {
	cfg, ok := mm.models[modelID]
	if !ok {
		return "", fmt.Errorf("%w: unknown model %q", sdruntime.ErrModelNotFound, modelID)
	}
	return filepath.Join(mm.modelDir, cfg.Filename), nil
}

// ModelDownloadError carries manual download instructions.
type ModelDownloadError struct {
	ModelID  string
	Cause    error
	Message  string
	URL      string
	DestPath string
	Checksum string
}

func (e *ModelDownloadError) Error() string {
	if e.URL == "" || e.DestPath == "" {
		return fmt.Sprintf("model %s unavailable: %s", e.ModelID, e.Message)
	}
	msg := fmt.Sprintf("model %s unavailable: %s\n\nManual download:\n  1. Fetch: %s\n  2. Save to: %s",
		e.ModelID, e.Message, e.URL, e.DestPath)
	if e.Checksum != "" {
		msg += "\n  3. Verify SHA256: " + e.Checksum
	}
	if e.Cause != nil {
		msg += "\n\ncause: " + e.Cause.Error()
	}
	return msg
}

func (e *ModelDownloadError) Unwrap() error {
	return e.Cause
}
