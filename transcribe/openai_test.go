package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAITranscriber(t *testing.T) {
	var gotModel, gotFile string
	var gotBytes []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFile = header.Filename
		gotBytes, _ = io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": "hello there"})
	}))
	defer srv.Close()

	o, err := NewOpenAITranscriber(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := o.Transcribe(context.Background(), Audio{Name: "clip.mp3", Data: []byte("ID3")})
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}

	if res.Text != "hello there" || string(res.Raw) != `{"text":"hello there"}` {
		t.Errorf("result = %q / %s", res.Text, res.Raw)
	}
	if gotModel != "whisper-1" || gotFile != "clip.mp3" || string(gotBytes) != "ID3" {
		t.Errorf("upload = model %q file %q bytes %q", gotModel, gotFile, gotBytes)
	}
}

func TestOpenAITranscriber_Errors(t *testing.T) {
	if _, err := NewOpenAITranscriber(OpenAIConfig{}, nil); err == nil {
		t.Error("expected error without API key")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o, err := NewOpenAITranscriber(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Transcribe(context.Background(), Audio{}); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
	if _, err := o.Transcribe(context.Background(), Audio{Data: []byte{1}}); !errors.Is(err, ErrEndpointRequest) {
		t.Errorf("expected ErrEndpointRequest, got %v", err)
	}
}
