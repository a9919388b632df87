package validation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"gallery_style/core"
	"gallery_style/sdruntime"
)

func runCheck(t *testing.T, c Check) Outcome {
	t.Helper()
	return c.Run(context.Background())
}

func TestEnvFileCheck(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, ".env")
	if out := runCheck(t, EnvFileCheck(missing)); out.Status != StepWarning {
		t.Errorf("missing .env status = %v, want warning", out.Status)
	}
	if err := os.WriteFile(missing, []byte("SD_BACKEND=webui\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if out := runCheck(t, EnvFileCheck(missing)); out.Status != StepPassed {
		t.Errorf("present .env status = %v, want passed", out.Status)
	}
}

func TestConfigCheck(t *testing.T) {
	cfg := core.DefaultConfig()
	if out := runCheck(t, ConfigCheck(cfg)); out.Status != StepPassed || out.Message != cfg.String() {
		t.Errorf("valid config outcome = %+v", out)
	}

	cfg.Backend = "comfy"
	out := runCheck(t, ConfigCheck(cfg))
	if out.Status != StepFailed || core.GetErrorCode(out.Err) != core.ErrCodeInvalidBackend {
		t.Errorf("invalid config outcome = %+v", out)
	}
}

func TestOutputDirCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outputs")
	if out := runCheck(t, OutputDirCheck(dir)); out.Status != StepPassed {
		t.Errorf("outcome = %+v", out)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if out := runCheck(t, OutputDirCheck(file)); out.Status != StepFailed {
		t.Errorf("file as outdir status = %v, want failed", out.Status)
	}
}

func TestDiskSpaceCheck(t *testing.T) {
	dir := t.TempDir()
	if out := runCheck(t, DiskSpaceCheck(dir, 1)); out.Status != StepPassed {
		t.Errorf("1 byte required: %+v", out)
	}
	if out := runCheck(t, DiskSpaceCheck(dir, 1<<62)); out.Status != StepWarning {
		t.Errorf("huge requirement: %+v", out)
	}
}

func TestGetDiskSpace_MissingPathUsesParent(t *testing.T) {
	dir := t.TempDir()
	info, err := GetDiskSpace(filepath.Join(dir, "not", "yet", "created"))
	if err != nil {
		t.Fatalf("GetDiskSpace() error: %v", err)
	}
	if info.Path != dir {
		t.Errorf("Path = %q, want %q", info.Path, dir)
	}
	if info.Total <= 0 || info.Free > info.Total {
		t.Errorf("implausible sizes: %+v", info)
	}
}

func TestBackendCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()
	checker := NewConnectivityChecker(server.Client())

	tests := []struct {
		name   string
		mutate func(*core.Config)
		want   StepStatus
	}{
		{"webui reachable", func(c *core.Config) { c.WebUIURL = server.URL }, StepPassed},
		{"webui bad url", func(c *core.Config) { c.WebUIURL = "localhost:7860" }, StepFailed},
		{"openai with key", func(c *core.Config) { c.Backend = core.BackendOpenAI; c.OpenAIAPIKey = "sk-test" }, StepPassed},
		{"openai without key", func(c *core.Config) { c.Backend = core.BackendOpenAI }, StepFailed},
		{"unknown backend", func(c *core.Config) { c.Backend = "comfy" }, StepFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := core.DefaultConfig()
			tt.mutate(cfg)
			check := BackendCheck(cfg, cfg.Generation.ModelID, checker)
			if !check.NeedsPassing {
				t.Error("backend check should depend on earlier checks")
			}
			if out := check.Run(context.Background()); out.Status != tt.want {
				t.Errorf("status = %v, want %v (%+v)", out.Status, tt.want, out)
			}
		})
	}
}

func TestBackendCheck_Local(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Backend = core.BackendLocal
	cfg.ModelsDir = t.TempDir()

	out := runCheck(t, BackendCheck(cfg, cfg.Generation.ModelID, NewConnectivityChecker(nil)))
	if !sdruntime.BackendLinked() {
		if out.Status != StepWarning {
			t.Errorf("stub build status = %v, want warning", out.Status)
		}
		return
	}
	if out.Status != StepFailed {
		t.Errorf("missing checkpoint status = %v, want failed", out.Status)
	}
	cfg.AutoDownload = true
	if out := runCheck(t, BackendCheck(cfg, cfg.Generation.ModelID, NewConnectivityChecker(nil))); out.Status != StepWarning {
		t.Errorf("auto download status = %v, want warning", out.Status)
	}
}

func TestTranscribeCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()
	checker := NewConnectivityChecker(server.Client())

	tests := []struct {
		name   string
		mutate func(*core.Config)
		want   StepStatus
	}{
		{"sagemaker without endpoint", func(c *core.Config) {}, StepWarning},
		{"sagemaker with endpoint", func(c *core.Config) { c.Transcribe.EndpointName = "whisper" }, StepPassed},
		{"http without url", func(c *core.Config) { c.Transcribe.Backend = core.TranscribeHTTP }, StepWarning},
		{"http reachable", func(c *core.Config) {
			c.Transcribe.Backend = core.TranscribeHTTP
			c.Transcribe.EndpointURL = server.URL
		}, StepPassed},
		{"openai without key", func(c *core.Config) { c.Transcribe.Backend = core.TranscribeOpenAI }, StepFailed},
		{"unknown", func(c *core.Config) { c.Transcribe.Backend = "azure" }, StepFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := core.DefaultConfig()
			tt.mutate(cfg)
			if out := runCheck(t, TranscribeCheck(cfg, checker)); out.Status != tt.want {
				t.Errorf("status = %v, want %v (%+v)", out.Status, tt.want, out)
			}
		})
	}
}

func TestDefaultChecks(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Generation.OutDir = filepath.Join(t.TempDir(), "out")
	checks := DefaultChecks(cfg, filepath.Join(t.TempDir(), ".env"), NewConnectivityChecker(nil))

	want := []string{"Environment File", "Configuration", "Output Directory", "Disk Space", "Generation Backend", "Transcription Backend"}
	if len(checks) != len(want) {
		t.Fatalf("got %d checks, want %d", len(checks), len(want))
	}
	for i, name := range want {
		if checks[i].Name != name {
			t.Errorf("checks[%d] = %q, want %q", i, checks[i].Name, name)
		}
	}
}
