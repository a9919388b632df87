// Package transcribe sends recorded audio to a hosted speech-to-text
// endpoint and returns the decoded JSON response.
//
// Three backends share one contract (raw audio bytes in, JSON out):
//   - sagemaker: AWS SageMaker runtime InvokeEndpoint
//   - http: any HTTP endpoint accepting application/x-audio
//   - openai: the Whisper transcription API
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ContentType is sent with every raw audio payload.
const ContentType = "application/x-audio"

var (
	ErrEmptyAudio      = errors.New("transcribe: audio payload is empty")
	ErrInvalidResponse = errors.New("transcribe: endpoint returned invalid JSON")
	ErrEndpointRequest = errors.New("transcribe: endpoint request failed")
	ErrMissingEndpoint = errors.New("transcribe: endpoint is not configured")
)

// Transcriber turns an audio payload into the endpoint's JSON response.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio Audio) (*Result, error)
}

// Audio is one file read into memory.
type Audio struct {
	Name string // base name, used by backends that upload multipart files
	Data []byte
}

// ReadAudio loads path. Format is not inspected; the endpoint decides.
func ReadAudio(path string) (Audio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Audio{}, fmt.Errorf("transcribe: read audio: %w", err)
	}
	if len(data) == 0 {
		return Audio{}, fmt.Errorf("%w: %s", ErrEmptyAudio, path)
	}
	return Audio{Name: filepath.Base(path), Data: data}, nil
}

// Result holds the endpoint's JSON body and the transcript text when the
// body carries one under "text" or "transcription".
type Result struct {
	Raw  json.RawMessage
	Text string
}

// ParseResponse validates body as JSON and extracts the transcript text.
// Bodies that are not objects are kept as-is with empty Text.
func ParseResponse(body []byte) (*Result, error) {
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, snippet(body))
	}

	res := &Result{Raw: json.RawMessage(body)}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		var s string
		if json.Unmarshal(body, &s) == nil {
			res.Text = s
		}
		return res, nil
	}
	for _, key := range []string{"text", "transcription", "transcript"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			res.Text = s
			break
		}
	}
	return res, nil
}

// Pretty renders the raw response indented for the console.
func (r *Result) Pretty() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, r.Raw, "", "  "); err != nil {
		return string(r.Raw)
	}
	return buf.String()
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
