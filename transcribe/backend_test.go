package transcribe

import (
	"context"
	"testing"

	"gallery_style/core"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*core.TranscribeConfig, *core.Config)
		wantName string
		wantCode string
	}{
		{"sagemaker without endpoint", func(tc *core.TranscribeConfig, _ *core.Config) {}, "", core.ErrCodeMissingConfig},
		{"http", func(tc *core.TranscribeConfig, _ *core.Config) {
			tc.Backend = core.TranscribeHTTP
			tc.EndpointURL = "http://127.0.0.1:8080/invocations"
		}, "http", ""},
		{"http without url", func(tc *core.TranscribeConfig, _ *core.Config) { tc.Backend = core.TranscribeHTTP }, "", core.ErrCodeMissingConfig},
		{"openai", func(tc *core.TranscribeConfig, c *core.Config) {
			tc.Backend = core.TranscribeOpenAI
			c.OpenAIAPIKey = "sk-test"
		}, "openai", ""},
		{"openai without key", func(tc *core.TranscribeConfig, _ *core.Config) { tc.Backend = core.TranscribeOpenAI }, "", core.ErrCodeMissingAuth},
		{"unknown", func(tc *core.TranscribeConfig, _ *core.Config) { tc.Backend = "azure" }, "", core.ErrCodeInvalidBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := core.DefaultConfig()
			tt.mutate(&cfg.Transcribe, cfg)

			tr, err := New(context.Background(), cfg, nil)
			if tt.wantCode != "" {
				if code := core.GetErrorCode(err); code != tt.wantCode {
					t.Fatalf("error code = %q, want %q (err %v)", code, tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			if tr.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", tr.Name(), tt.wantName)
			}
		})
	}
}
