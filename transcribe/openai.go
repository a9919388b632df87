package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"gallery_style/logging"
)

// OpenAITranscriber uses the Whisper transcription API.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
	logger *logging.Logger
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string // default whisper-1
	HTTPClient *http.Client
}

func NewOpenAITranscriber(cfg OpenAIConfig, logger *logging.Logger) (*OpenAITranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("transcribe: OpenAI API key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &OpenAITranscriber{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger.Named("whisper"),
	}, nil
}

func (o *OpenAITranscriber) Name() string { return "openai" }

// Transcribe returns {"text": ...} so the result has the same shape as a
// typical self-hosted Whisper endpoint.
func (o *OpenAITranscriber) Transcribe(ctx context.Context, audio Audio) (*Result, error) {
	if len(audio.Data) == 0 {
		return nil, ErrEmptyAudio
	}
	name := audio.Name
	if name == "" {
		name = "audio.wav"
	}
	o.logger.Debug("transcribing", zap.String("model", o.model), zap.String("file", name), zap.Int("bytes", len(audio.Data)))

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: name,
		Reader:   bytes.NewReader(audio.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpointRequest, err)
	}

	raw, err := json.Marshal(map[string]string{"text": resp.Text})
	if err != nil {
		return nil, err
	}
	return &Result{Raw: raw, Text: resp.Text}, nil
}
