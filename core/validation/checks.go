package validation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gallery_style/core"
	"gallery_style/sdruntime"
)

// EnvFileCheck warns when no .env file is present; the process environment
// is still used.
func EnvFileCheck(path string) Check {
	return Check{
		Name: "Environment File",
		Run: func(context.Context) Outcome {
			if err := CheckFileExists(path); err != nil {
				return Warning("%s not found, using process environment only", path)
			}
			return Passed("%s loaded", path)
		},
	}
}

func ConfigCheck(cfg *core.Config) Check {
	return Check{
		Name: "Configuration",
		Run: func(context.Context) Outcome {
			if err := cfg.Validate(); err != nil {
				return Failed("Invalid configuration", err)
			}
			return Passed("%s", cfg.String())
		},
	}
}

func OutputDirCheck(dir string) Check {
	return Check{
		Name: "Output Directory",
		Run: func(context.Context) Outcome {
			if err := CheckDirWritable(dir); err != nil {
				return Failed(fmt.Sprintf("%s is not writable", dir), err)
			}
			return Passed("%s is writable", dir)
		},
	}
}

func DiskSpaceCheck(dir string, required int64) Check {
	return Check{
		Name: "Disk Space",
		Run: func(context.Context) Outcome {
			err := CheckDiskSpace(dir, required)
			var spaceErr *DiskSpaceError
			switch {
			case errors.As(err, &spaceErr):
				return Warning("only %s free", core.FormatBytes(spaceErr.Available))
			case err != nil:
				return Failed("Could not read free space", err)
			}
			info, _ := GetDiskSpace(dir)
			if info == nil {
				return Passed("")
			}
			return Passed("%s free", info.FreeFormatted)
		},
	}
}

// BackendCheck verifies that the configured generation backend can serve
// modelID: the webui answers, the local checkpoint exists (or can be
// downloaded), or an OpenAI key is set.
func BackendCheck(cfg *core.Config, modelID string, checker *ConnectivityChecker) Check {
	return Check{
		Name:         "Generation Backend",
		NeedsPassing: true,
		Run: func(ctx context.Context) Outcome {
			switch cfg.Backend {
			case core.BackendWebUI:
				return reachability(ctx, checker, cfg.WebUIURL)
			case core.BackendLocal:
				return localModelOutcome(cfg, modelID)
			case core.BackendOpenAI:
				if err := cfg.RequireOpenAIKey(); err != nil {
					return Failed("OpenAI API key missing", err)
				}
				return Passed("OpenAI key set, model %s", cfg.OpenAIImageModel)
			default:
				return Failed("Unknown backend", core.ErrInvalidBackend("generation", cfg.Backend, core.GenerationBackends))
			}
		},
	}
}

func localModelOutcome(cfg *core.Config, modelID string) Outcome {
	if !sdruntime.BackendLinked() {
		return Warning("binary built without stable-diffusion.cpp; generation will fail")
	}
	if CheckFileExists(modelID) == nil {
		return Passed("checkpoint %s", modelID)
	}

	mm := core.NewModelManager(cfg.ModelsDir, nil)
	path, err := mm.ModelPath(modelID)
	if err != nil {
		return Failed("Unknown model", err)
	}
	if info, statErr := os.Stat(path); statErr == nil && info.Size() > 0 {
		return Passed("checkpoint %s (%s)", path, core.FormatBytes(info.Size()))
	}
	if cfg.AutoDownload {
		return Warning("%s not downloaded yet, will fetch on first run", path)
	}
	return Failed(fmt.Sprintf("%s is missing", path),
		fmt.Errorf("%w: set SD_AUTO_DOWNLOAD=true or place the file manually", sdruntime.ErrModelNotFound))
}

// TranscribeCheck verifies the speech-to-text backend settings. A missing
// endpoint is only a warning since it can still be passed as a flag.
func TranscribeCheck(cfg *core.Config, checker *ConnectivityChecker) Check {
	return Check{
		Name:         "Transcription Backend",
		NeedsPassing: true,
		Run: func(ctx context.Context) Outcome {
			tc := cfg.Transcribe
			switch tc.Backend {
			case core.TranscribeSageMaker:
				if tc.EndpointName == "" {
					return Warning("no endpoint name configured, transcribe needs --endpoint-name")
				}
				return Passed("endpoint %s in %s", tc.EndpointName, tc.Region)
			case core.TranscribeHTTP:
				if tc.EndpointURL == "" {
					return Warning("no endpoint URL configured, transcribe needs --endpoint-url")
				}
				return reachability(ctx, checker, tc.EndpointURL)
			case core.TranscribeOpenAI:
				if err := cfg.RequireOpenAIKey(); err != nil {
					return Failed("OpenAI API key missing", err)
				}
				return Passed("OpenAI key set, model %s", tc.OpenAIModel)
			default:
				return Failed("Unknown backend", core.ErrInvalidBackend("transcribe", tc.Backend, core.TranscribeBackends))
			}
		},
	}
}

func reachability(ctx context.Context, checker *ConnectivityChecker, url string) Outcome {
	result := checker.CheckServerConnectivity(ctx, url)
	if !result.Reachable {
		return Failed(result.Message, result.Error)
	}
	return Passed("%s (latency: %v)", result.Message, result.Latency.Round(time.Millisecond))
}

// DefaultChecks is the full preflight used by the check subcommand.
func DefaultChecks(cfg *core.Config, envPath string, checker *ConnectivityChecker) []Check {
	return []Check{
		EnvFileCheck(envPath),
		ConfigCheck(cfg),
		OutputDirCheck(cfg.Generation.OutDir),
		DiskSpaceCheck(cfg.Generation.OutDir, MinOutputFreeBytes),
		BackendCheck(cfg, cfg.Generation.ModelID, checker),
		TranscribeCheck(cfg, checker),
	}
}
