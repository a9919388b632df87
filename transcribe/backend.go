package transcribe

import (
	"context"

	"gallery_style/core"
	"gallery_style/logging"
)

// New builds the transcriber named by cfg.Transcribe.Backend.
func New(ctx context.Context, cfg *core.Config, logger *logging.Logger) (Transcriber, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	tc := cfg.Transcribe

	switch tc.Backend {
	case core.TranscribeSageMaker:
		if tc.EndpointName == "" {
			return nil, core.ErrMissingConfig("--endpoint-name (STT_ENDPOINT_NAME)")
		}
		return NewSageMakerTranscriber(ctx, SageMakerConfig{
			EndpointName: tc.EndpointName,
			Region:       tc.Region,
			MaxAttempts:  tc.MaxAttempts,
		}, logger)

	case core.TranscribeHTTP:
		if tc.EndpointURL == "" {
			return nil, core.ErrMissingConfig("--endpoint-url (STT_ENDPOINT_URL)")
		}
		return NewHTTPTranscriber(tc.EndpointURL, core.GetHTTPClient(cfg, cfg.Timeout),
			WithMaxAttempts(tc.MaxAttempts),
			WithHTTPLogger(logger))

	case core.TranscribeOpenAI:
		if err := cfg.RequireOpenAIKey(); err != nil {
			return nil, err
		}
		return NewOpenAITranscriber(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      tc.OpenAIModel,
			HTTPClient: core.GetHTTPClient(cfg, cfg.Timeout),
		}, logger)

	default:
		return nil, core.ErrInvalidBackend("transcribe", tc.Backend, core.TranscribeBackends)
	}
}
