package imagegen

import (
	"gallery_style/core"
	"gallery_style/logging"
)

// NewLoader builds the Loader named by cfg.Backend.
func NewLoader(cfg *core.Config, logger *logging.Logger) (Loader, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	httpClient := core.GetHTTPClient(cfg, cfg.Timeout)

	switch cfg.Backend {
	case core.BackendWebUI:
		return NewWebUILoader(cfg.WebUIURL, httpClient, logger)

	case core.BackendLocal:
		models := core.NewModelManager(cfg.ModelsDir, httpClient,
			core.WithAutoDownload(cfg.AutoDownload),
			core.WithModelLogger(logger.Named("models")))
		return NewLocalLoader(models, cfg.Threads, logger)

	case core.BackendOpenAI:
		if err := cfg.RequireOpenAIKey(); err != nil {
			return nil, err
		}
		return NewOpenAILoader(OpenAILoaderConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIImageModel,
			HTTPClient: httpClient,
		}, logger)

	default:
		return nil, core.ErrInvalidBackend("generation", cfg.Backend, core.GenerationBackends)
	}
}
