package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Generation backends.
const (
	BackendWebUI  = "webui"
	BackendLocal  = "local"
	BackendOpenAI = "openai"
)

// Speech-to-text backends.
const (
	TranscribeSageMaker = "sagemaker"
	TranscribeHTTP      = "http"
	TranscribeOpenAI    = "openai"
)

var (
	GenerationBackends = []string{BackendWebUI, BackendLocal, BackendOpenAI}
	TranscribeBackends = []string{TranscribeSageMaker, TranscribeHTTP, TranscribeOpenAI}
)

// ConfigPathEnv names the variable holding the YAML config path.
const ConfigPathEnv = "GALLERY_CONFIG"

// Config is the resolved runtime configuration. Values are layered:
// built-in defaults, then the YAML file, then environment variables.
// Command-line flags are applied on top by the caller.
type Config struct {
	DevMode  bool   `yaml:"dev_mode"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`

	Backend      string        `yaml:"backend"`
	WebUIURL     string        `yaml:"webui_url"`
	Device       string        `yaml:"device"`
	ModelsDir    string        `yaml:"models_dir"`
	AutoDownload bool          `yaml:"auto_download"`
	Threads      int           `yaml:"threads"`
	Timeout      time.Duration `yaml:"timeout"` // 0 means no limit

	OpenAIAPIKey     string `yaml:"openai_api_key"`
	OpenAIBaseURL    string `yaml:"openai_base_url"`
	OpenAIImageModel string `yaml:"openai_image_model"`

	AllowSelfSignedCerts bool `yaml:"allow_self_signed_certs"`

	Generation GenerationDefaults `yaml:"generation"`
	Transcribe TranscribeConfig   `yaml:"transcribe"`
}

// GenerationDefaults seed the generate flags.
type GenerationDefaults struct {
	ModelID        string  `yaml:"model_id"`
	NegativePrompt string  `yaml:"negative_prompt"`
	NumImages      int     `yaml:"num_images"`
	BatchSize      int     `yaml:"batch_size"`
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	Steps          int     `yaml:"steps"`
	GuidanceScale  float64 `yaml:"guidance_scale"`
	Sampler        string  `yaml:"sampler"`
	Strength       float64 `yaml:"strength"`
	OutDir         string  `yaml:"outdir"`
}

type TranscribeConfig struct {
	Backend      string `yaml:"backend"`
	EndpointName string `yaml:"endpoint_name"`
	Region       string `yaml:"region"`
	EndpointURL  string `yaml:"endpoint_url"`
	MaxAttempts  int    `yaml:"max_attempts"`
	OpenAIModel  string `yaml:"openai_model"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LogFile:          "gallery.log",
		LogLevel:         "",
		Backend:          BackendWebUI,
		WebUIURL:         "http://127.0.0.1:7860",
		Device:           "auto",
		ModelsDir:        "models",
		OpenAIImageModel: "dall-e-2",
		Generation: GenerationDefaults{
			ModelID:       "runwayml/stable-diffusion-v1-5",
			NumImages:     1,
			BatchSize:     1,
			Width:         512,
			Height:        512,
			Steps:         30,
			GuidanceScale: 7.5,
			Sampler:       "DDIM",
			Strength:      0.6,
			OutDir:        "outputs",
		},
		Transcribe: TranscribeConfig{
			Backend:     TranscribeSageMaker,
			Region:      "us-east-1",
			MaxAttempts: 3,
			OpenAIModel: "whisper-1",
		},
	}
}

// LoadConfig builds a Config from defaults, the YAML file at path (falling
// back to $GALLERY_CONFIG; an empty path skips the file) and the
// environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = GetEnvOrDefault(ConfigPathEnv, "")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrConfigFile(path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return ErrConfigFile(path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	overrideBool(&c.DevMode, "DEV_MODE")
	overrideString(&c.LogFile, "LOG_FILE")
	overrideString(&c.LogLevel, "LOG_LEVEL")

	overrideString(&c.Backend, "SD_BACKEND")
	overrideString(&c.WebUIURL, "SD_WEBUI_URL")
	overrideString(&c.Device, "SD_DEVICE")
	overrideString(&c.ModelsDir, "SD_MODELS_DIR")
	overrideBool(&c.AutoDownload, "SD_AUTO_DOWNLOAD")
	overrideInt(&c.Threads, "SD_THREADS")
	overrideSeconds(&c.Timeout, "SD_TIMEOUT_SECONDS")

	overrideString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	overrideString(&c.OpenAIBaseURL, "OPENAI_BASE_URL")
	overrideString(&c.OpenAIImageModel, "OPENAI_IMAGE_MODEL")
	overrideBool(&c.AllowSelfSignedCerts, "ALLOW_SELF_SIGNED_CERTS")

	overrideString(&c.Generation.ModelID, "SD_MODEL_ID")
	overrideString(&c.Generation.Sampler, "SD_SAMPLER")
	overrideString(&c.Generation.OutDir, "SD_OUTDIR")
	overrideString(&c.Generation.NegativePrompt, "SD_NEGATIVE_PROMPT")
	overrideInt(&c.Generation.Steps, "SD_STEPS")
	overrideFloat64(&c.Generation.GuidanceScale, "SD_GUIDANCE_SCALE")

	overrideString(&c.Transcribe.Backend, "STT_BACKEND")
	overrideString(&c.Transcribe.EndpointName, "STT_ENDPOINT_NAME")
	overrideString(&c.Transcribe.Region, "AWS_DEFAULT_REGION")
	overrideString(&c.Transcribe.Region, "AWS_REGION")
	overrideString(&c.Transcribe.EndpointURL, "STT_ENDPOINT_URL")
	overrideInt(&c.Transcribe.MaxAttempts, "STT_MAX_ATTEMPTS")
}

// Validate checks values that are wrong regardless of which subcommand runs.
// Credentials are checked by the component that needs them.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if !contains(GenerationBackends, c.Backend) {
		return ErrInvalidBackend("generation", c.Backend, GenerationBackends)
	}
	c.Transcribe.Backend = strings.ToLower(strings.TrimSpace(c.Transcribe.Backend))
	if !contains(TranscribeBackends, c.Transcribe.Backend) {
		return ErrInvalidBackend("transcribe", c.Transcribe.Backend, TranscribeBackends)
	}

	if c.Backend == BackendWebUI {
		if err := ValidateURL("SD_WEBUI_URL", c.WebUIURL); err != nil {
			return err
		}
	}
	if c.OpenAIBaseURL != "" {
		if err := ValidateURL("OPENAI_BASE_URL", c.OpenAIBaseURL); err != nil {
			return err
		}
	}
	if c.Transcribe.EndpointURL != "" {
		if err := ValidateURL("STT_ENDPOINT_URL", c.Transcribe.EndpointURL); err != nil {
			return err
		}
	}

	if c.Timeout < 0 {
		return ErrInvalidValue("timeout", c.Timeout, "must not be negative")
	}
	if c.Transcribe.MaxAttempts < 1 {
		return ErrInvalidValue("transcribe max_attempts", c.Transcribe.MaxAttempts, "must be at least 1")
	}
	return nil
}

// ValidateURL requires an absolute http or https URL.
func ValidateURL(name, raw string) error {
	if raw == "" {
		return ErrMissingConfig(name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL(name, raw, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL(name, raw, "scheme must be http or https")
	}
	if u.Host == "" {
		return ErrInvalidURL(name, raw, "missing host")
	}
	return nil
}

// RequireOpenAIKey returns a ConfigError when no key is configured.
func (c *Config) RequireOpenAIKey() error {
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return ErrMissingAuth("openai")
	}
	return nil
}

// GetHTTPClient returns a client honouring AllowSelfSignedCerts. A zero
// timeout means no client-side limit.
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{Timeout: timeout}
	if cfg != nil && cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return client
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func (c *Config) String() string {
	return fmt.Sprintf("backend=%s webui=%s device=%s models_dir=%s auto_download=%t",
		c.Backend, c.WebUIURL, c.Device, c.ModelsDir, c.AutoDownload)
}
