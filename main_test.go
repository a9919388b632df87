package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gallery_style/core"
	"gallery_style/core/validation"
	"gallery_style/logging"
	"gallery_style/sdruntime"
)

// isolateEnv clears configuration variables and points the log file at a
// temp directory.
func isolateEnv(t *testing.T) {
	t.Helper()
	color.NoColor = true
	for _, key := range []string{
		core.ConfigPathEnv, "DEV_MODE", "LOG_LEVEL", "SD_BACKEND", "SD_WEBUI_URL",
		"SD_DEVICE", "SD_MODELS_DIR", "SD_AUTO_DOWNLOAD", "SD_TIMEOUT_SECONDS",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_IMAGE_MODEL", "SD_MODEL_ID",
		"SD_SAMPLER", "SD_OUTDIR", "SD_NEGATIVE_PROMPT", "SD_STEPS", "SD_GUIDANCE_SCALE",
		"STT_BACKEND", "STT_ENDPOINT_NAME", "STT_ENDPOINT_URL", "STT_MAX_ATTEMPTS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("LOG_FILE", filepath.Join(t.TempDir(), "gallery.log"))
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		args     []string
		wantCmd  string
		wantRest int
	}{
		{nil, "generate", 0},
		{[]string{"--prompt", "a"}, "generate", 2},
		{[]string{"generate", "--prompt", "a"}, "generate", 2},
		{[]string{"transcribe", "--audio", "x.wav"}, "transcribe", 2},
		{[]string{"-h"}, "-h", 0},
		{[]string{"samplers"}, "samplers", 0},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			cmd, rest := splitCommand(tt.args)
			if cmd != tt.wantCmd || len(rest) != tt.wantRest {
				t.Errorf("splitCommand(%v) = %q, %v", tt.args, cmd, rest)
			}
		})
	}
}

func TestRun_InfoCommands(t *testing.T) {
	isolateEnv(t)

	code, out, _ := runCLI("samplers")
	if code != core.ExitCodeSuccess {
		t.Fatalf("samplers exit = %d", code)
	}
	for _, name := range []string{"DDPM", "DDIM", "PNDM", "EulerA", "(default)"} {
		if !strings.Contains(out, name) {
			t.Errorf("samplers output missing %q:\n%s", name, out)
		}
	}

	code, out, _ = runCLI("version")
	if code != core.ExitCodeSuccess || !strings.Contains(out, core.Version) {
		t.Errorf("version = %d %q", code, out)
	}

	code, out, _ = runCLI("help")
	if code != core.ExitCodeSuccess || !strings.Contains(out, "transcribe") {
		t.Errorf("help = %d %q", code, out)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	isolateEnv(t)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{"unknown command", []string{"paint"}, core.ExitCodeUsage, `unknown command "paint"`},
		{"missing prompt", []string{"generate"}, core.ExitCodeUsage, "--prompt is required"},
		{"no args means generate", nil, core.ExitCodeUsage, "--prompt is required"},
		{"bad flag value", []string{"--prompt", "a", "--steps", "many"}, core.ExitCodeUsage, "invalid value"},
		{"stray argument", []string{"--prompt", "a", "extra"}, core.ExitCodeUsage, "unexpected arguments"},
		{"missing audio", []string{"transcribe"}, core.ExitCodeUsage, "--audio is required"},
		{"help flag", []string{"generate", "-h"}, core.ExitCodeSuccess, "-prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(tt.args...)
			if code != tt.wantCode {
				t.Errorf("exit = %d, want %d (stderr %q)", code, tt.wantCode, stderr)
			}
			if !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr, tt.wantErr)
			}
		})
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	isolateEnv(t)

	code, _, stderr := runCLI("--prompt", "a", "--backend", "comfy")
	if code != core.ExitCodeError || !strings.Contains(stderr, "comfy") {
		t.Errorf("unknown backend: exit %d, stderr %q", code, stderr)
	}

	code, _, stderr = runCLI("--prompt", "a", "--backend", "openai")
	if code != core.ExitCodeError || !strings.Contains(stderr, "OPENAI_API_KEY") {
		t.Errorf("openai without key: exit %d, stderr %q", code, stderr)
	}

	code, _, stderr = runCLI("--prompt", "a", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if code != core.ExitCodeError || !strings.Contains(stderr, "missing.yaml") {
		t.Errorf("missing config: exit %d, stderr %q", code, stderr)
	}
}

// webuiStub answers the sd-models and txt2img endpoints.
type webuiStub struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (s *webuiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/sdapi/v1/sd-models":
		json.NewEncoder(w).Encode([]map[string]string{
			{"title": "v1-5-pruned-emaonly.safetensors [6ce0161689]", "model_name": "v1-5-pruned-emaonly"},
		})
	case "/sdapi/v1/txt2img":
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.payloads = append(s.payloads, payload)
		s.mu.Unlock()

		n := int(payload["batch_size"].(float64))
		png, _ := sdruntime.EncodeToPNG(make([]byte, 8*8*3), 8, 8, 3)
		images := make([]string, n)
		for i := range images {
			images[i] = base64.StdEncoding.EncodeToString(png)
		}
		json.NewEncoder(w).Encode(map[string]any{"images": images, "info": "{}"})
	default:
		http.NotFound(w, r)
	}
}

func TestRun_GenerateAgainstWebUI(t *testing.T) {
	isolateEnv(t)
	stub := &webuiStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()
	t.Setenv("SD_WEBUI_URL", srv.URL)

	outDir := filepath.Join(t.TempDir(), "outputs")
	code, stdout, stderr := runCLI(
		"--prompt", "a lighthouse", "--prompt", "at dusk",
		"--model-id", "v1-5-pruned-emaonly",
		"--num-images", "3", "--batch-size", "2",
		"--width", "64", "--height", "64",
		"--sampler", "EulerA", "--seed", "42",
		"--outdir", outDir, "--save-json",
	)
	if code != core.ExitCodeSuccess {
		t.Fatalf("exit = %d, stderr:\n%s", code, stderr)
	}

	want := "[meta] wrote " + filepath.Join(outDir, "metadata.jsonl") + "\nSaved 3 image(s) to " + outDir + "\n"
	if stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	pngName := regexp.MustCompile(`^gen_\d+_\d{3}\.png$`)
	pngs := 0
	for _, e := range entries {
		if pngName.MatchString(e.Name()) {
			pngs++
		}
	}
	if pngs != 3 {
		t.Errorf("wrote %d PNGs, want 3 (%v)", pngs, entries)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "metadata.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 3 {
		t.Errorf("metadata has %d lines, want 3", len(lines))
	}

	if len(stub.payloads) != 2 {
		t.Fatalf("webui called %d times, want 2", len(stub.payloads))
	}
	first := stub.payloads[0]
	if first["prompt"] != "a lighthouse AND at dusk" || first["sampler_name"] != "Euler a" {
		t.Errorf("first payload = %v", first)
	}
	if stub.payloads[1]["batch_size"] != float64(1) {
		t.Errorf("last batch size = %v, want 1", stub.payloads[1]["batch_size"])
	}
}

func TestRun_GenerateExplicitEmptyNegativePrompt(t *testing.T) {
	isolateEnv(t)
	srv := httptest.NewServer(&webuiStub{})
	defer srv.Close()
	t.Setenv("SD_WEBUI_URL", srv.URL)

	outDir := t.TempDir()
	code, _, stderr := runCLI(
		"--prompt", "a", "--negative-prompt", "",
		"--model-id", "v1-5-pruned-emaonly",
		"--width", "64", "--height", "64",
		"--outdir", outDir, "--save-json",
	)
	if code != core.ExitCodeSuccess {
		t.Fatalf("exit = %d, stderr:\n%s", code, stderr)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "metadata.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatal(err)
	}
	if got, ok := record["negative_prompt"].(string); !ok || got != "" {
		t.Errorf("negative_prompt = %#v, want empty string", record["negative_prompt"])
	}
}

func TestRun_GenerateServerDown(t *testing.T) {
	isolateEnv(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Setenv("SD_WEBUI_URL", srv.URL)
	srv.Close()

	code, stdout, stderr := runCLI("--prompt", "a", "--outdir", t.TempDir())
	if code != core.ExitCodeError {
		t.Errorf("exit = %d, want %d", code, core.ExitCodeError)
	}
	if stdout != "" || !strings.Contains(stderr, "generation failed") {
		t.Errorf("stdout %q, stderr %q", stdout, stderr)
	}
}

func TestRun_TranscribeOverHTTP(t *testing.T) {
	isolateEnv(t)
	var gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(audio, []byte("RIFF....WAVE"), 0644); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := runCLI("transcribe", "--backend", "http", "--endpoint-url", srv.URL, "--audio", audio)
	if code != core.ExitCodeSuccess {
		t.Fatalf("exit = %d, stderr:\n%s", code, stderr)
	}
	if stdout != "{\n  \"text\": \"hello world\"\n}\n" {
		t.Errorf("stdout = %q", stdout)
	}
	if gotType != "application/x-audio" || string(gotBody) != "RIFF....WAVE" {
		t.Errorf("request = %q %q", gotType, gotBody)
	}
}

func TestRun_TranscribeMissingEndpoint(t *testing.T) {
	isolateEnv(t)
	audio := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(audio, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := runCLI("transcribe", "--audio", audio)
	if code != core.ExitCodeError || !strings.Contains(stderr, "--endpoint-name") {
		t.Errorf("exit %d, stderr %q", code, stderr)
	}
}

func TestRun_Check(t *testing.T) {
	isolateEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	t.Setenv("SD_WEBUI_URL", srv.URL)
	t.Setenv("STT_ENDPOINT_NAME", "whisper")

	code, stdout, _ := runCLI("check", "--outdir", filepath.Join(t.TempDir(), "out"))
	if code != core.ExitCodeSuccess {
		t.Fatalf("exit = %d, output:\n%s", code, stdout)
	}
	if !strings.Contains(stdout, "Generation Backend") || !strings.Contains(stdout, "Checks Passed") {
		t.Errorf("output:\n%s", stdout)
	}

	code, stdout, _ = runCLI("check", "--backend", "openai", "--outdir", t.TempDir())
	if code != core.ExitCodeError || !strings.Contains(stdout, "OpenAI API key missing") {
		t.Errorf("openai without key: exit %d, output:\n%s", code, stdout)
	}
}

func TestReportRunFailure(t *testing.T) {
	color.NoColor = true
	obsCore, logs := observer.New(zapcore.DebugLevel)
	logger := logging.NewLoggerFromCore(obsCore)

	var stderr bytes.Buffer
	code := reportRunFailure(&stderr, logger, "generation failed", context.Canceled, core.ExitCodeSIGINT)
	if code != core.ExitCodeSIGINT {
		t.Errorf("code = %d, want %d", code, core.ExitCodeSIGINT)
	}
	if want := "interrupted: generation failed (interrupted (SIGINT))\n"; stderr.String() != want {
		t.Errorf("stderr = %q, want %q", stderr.String(), want)
	}
	warn := logs.FilterMessage("run interrupted").All()
	if len(warn) != 1 || warn[0].Level != zapcore.WarnLevel {
		t.Fatalf("interrupt log entries = %v", warn)
	}
	if reason := warn[0].ContextMap()["reason"]; reason != "interrupted (SIGINT)" {
		t.Errorf("reason = %v", reason)
	}

	stderr.Reset()
	code = reportRunFailure(&stderr, logger, "generation failed", errors.New("boom"), core.ExitCodeError)
	if code != core.ExitCodeError || !strings.HasPrefix(stderr.String(), "error: generation failed: boom") {
		t.Errorf("plain failure: code %d, stderr %q", code, stderr.String())
	}
	if n := logs.FilterMessage("generation failed").FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
		t.Errorf("error entries = %d, want 1", n)
	}
}

func TestLogCheckResult_FirstError(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	logger := logging.NewLoggerFromCore(obsCore)

	logCheckResult(logger, validation.SuiteResult{
		FailedSteps: 2,
		Steps: []validation.ValidationStep{
			{Name: "Output", Status: validation.StepFailed, Error: errors.New("not writable")},
			{Name: "Backend", Status: validation.StepFailed, Error: errors.New("unreachable")},
		},
	})

	summary := logs.FilterMessage("preflight checks failed").All()
	if len(summary) != 1 {
		t.Fatalf("summary entries = %d, want 1", len(summary))
	}
	if got := summary[0].ContextMap()["first_error"]; got != "not writable" {
		t.Errorf("first_error = %v, want %q", got, "not writable")
	}
	if n := logs.FilterMessage("check failed").Len(); n != 2 {
		t.Errorf("per-step entries = %d, want 2", n)
	}
}
