package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"gallery_style/core"
	"gallery_style/core/validation"
	"gallery_style/imagegen"
	"gallery_style/logging"
	"gallery_style/transcribe"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ", ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// visitedFlags records which flags appeared on the command line so only
// those override configuration.
func visitedFlags(fs *flag.FlagSet) map[string]bool {
	seen := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	return seen
}

// parseFlags returns ok=false with the exit code to use when parsing stops.
func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return core.ExitCodeSuccess, false
		}
		return core.ExitCodeUsage, false
	}
	if fs.NArg() > 0 {
		usageError(fs, stderr, fmt.Sprintf("unexpected arguments: %v", fs.Args()))
		return core.ExitCodeUsage, false
	}
	return 0, true
}

func usageError(fs *flag.FlagSet, stderr io.Writer, msg string) {
	color.New(color.FgRed, color.Bold).Fprint(stderr, "error: ")
	fmt.Fprintln(stderr, msg)
	fs.Usage()
}

func runGenerate(args []string, stdout, stderr io.Writer) int {
	defaults := core.DefaultConfig().Generation

	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var prompts stringList
	fs.Var(&prompts, "prompt", "text prompt (repeatable, required)")
	var (
		modelID        = fs.String("model-id", defaults.ModelID, "model id, checkpoint title or local checkpoint path")
		negativePrompt = fs.String("negative-prompt", "", "negative prompt")
		numImages      = fs.Int("num-images", defaults.NumImages, "total images to generate")
		batchSize      = fs.Int("batch-size", defaults.BatchSize, "images per pipeline call")
		width          = fs.Int("width", defaults.Width, "image width")
		height         = fs.Int("height", defaults.Height, "image height")
		steps          = fs.Int("steps", defaults.Steps, "inference steps")
		guidance       = fs.Float64("guidance-scale", defaults.GuidanceScale, "classifier-free guidance scale")
		sampler        = fs.String("sampler", defaults.Sampler, "sampler: DDPM, DDIM, PNDM, EulerA")
		eta            = fs.Float64("eta", 0, "DDIM eta (only passed when set)")
		seed           = fs.Int64("seed", 0, "seed for reproducible output")
		initImage      = fs.String("init-image", "", "source image, selects image-to-image")
		strength       = fs.Float64("strength", defaults.Strength, "image-to-image strength")
		outDir         = fs.String("outdir", defaults.OutDir, "output directory")
		saveJSON       = fs.Bool("save-json", false, "write metadata.jsonl (overwrites)")
		backend        = fs.String("backend", "", "generation backend: webui, local, openai (default from config)")
		device         = fs.String("device", "", "device: auto, cuda, cpu (default from config)")
		configPath     = fs.String("config", "", "YAML config file")
	)
	if code, ok := parseFlags(fs, args, stderr); !ok {
		return code
	}
	if len(prompts) == 0 {
		usageError(fs, stderr, "--prompt is required")
		return core.ExitCodeUsage
	}

	set := visitedFlags(fs)
	cfg, logger, err := startup(*configPath, func(cfg *core.Config) {
		g := &cfg.Generation
		if set["backend"] {
			cfg.Backend = *backend
		}
		if set["device"] {
			cfg.Device = *device
		}
		if set["model-id"] {
			g.ModelID = *modelID
		}
		if set["negative-prompt"] {
			g.NegativePrompt = *negativePrompt
		}
		if set["num-images"] {
			g.NumImages = *numImages
		}
		if set["batch-size"] {
			g.BatchSize = *batchSize
		}
		if set["width"] {
			g.Width = *width
		}
		if set["height"] {
			g.Height = *height
		}
		if set["steps"] {
			g.Steps = *steps
		}
		if set["guidance-scale"] {
			g.GuidanceScale = *guidance
		}
		if set["sampler"] {
			g.Sampler = *sampler
		}
		if set["strength"] {
			g.Strength = *strength
		}
		if set["outdir"] {
			g.OutDir = *outDir
		}
	})
	if err != nil {
		reportError(stderr, nil, "configuration", err)
		return core.ExitCodeError
	}
	defer syncLogger(logger, stderr)

	req := imagegen.DefaultRequest(cfg.Generation)
	req.Prompts = prompts
	req.InitImage = *initImage
	req.SaveJSON = *saveJSON
	if set["negative-prompt"] {
		np := *negativePrompt
		req.NegativePrompt = &np
	}
	if set["eta"] {
		req.Eta = eta
	}
	if set["seed"] {
		req.Seed = seed
	}

	logger.Info("configuration loaded",
		zap.String("backend", cfg.Backend),
		zap.String("device", cfg.Device),
		zap.String("model_id", req.ModelID),
		zap.String("mode", string(req.Mode())),
		zap.Int("num_images", req.NumImages),
		zap.Int("batch_size", req.BatchSize),
		zap.String("outdir", req.OutDir),
		zap.Bool("dev_mode", cfg.DevMode),
	)

	loader, err := imagegen.NewLoader(cfg, logger)
	if err != nil {
		reportError(stderr, logger, "backend setup failed", err)
		return core.ExitCodeError
	}
	driver, err := imagegen.NewDriver(loader,
		imagegen.WithLogger(logger),
		imagegen.WithDevice(cfg.Device))
	if err != nil {
		reportError(stderr, logger, "driver setup failed", err)
		return core.ExitCodeError
	}

	in := watchSignals(logger)
	defer in.stop()

	records, err := driver.Run(in.ctx, req)
	if err != nil {
		code := reportRunFailure(stderr, logger, "generation failed", err, in.exitCode())
		if len(records) > 0 {
			fmt.Fprintf(stderr, "%d image(s) were written to %s before the failure\n", len(records), req.OutDir)
		}
		return code
	}
	imagegen.PrintSummary(stdout, req, records)
	return core.ExitCodeSuccess
}

func runTranscribe(args []string, stdout, stderr io.Writer) int {
	defaults := core.DefaultConfig().Transcribe

	fs := flag.NewFlagSet("transcribe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		backend      = fs.String("backend", defaults.Backend, "speech-to-text backend: sagemaker, http, openai")
		endpointName = fs.String("endpoint-name", "", "SageMaker endpoint name")
		region       = fs.String("region", defaults.Region, "AWS region (default $AWS_DEFAULT_REGION or us-east-1)")
		endpointURL  = fs.String("endpoint-url", "", "HTTP endpoint for the http backend")
		audioPath    = fs.String("audio", "", "audio file to transcribe (required)")
		configPath   = fs.String("config", "", "YAML config file")
	)
	if code, ok := parseFlags(fs, args, stderr); !ok {
		return code
	}
	if *audioPath == "" {
		usageError(fs, stderr, "--audio is required")
		return core.ExitCodeUsage
	}

	set := visitedFlags(fs)
	cfg, logger, err := startup(*configPath, func(cfg *core.Config) {
		t := &cfg.Transcribe
		if set["backend"] {
			t.Backend = *backend
		}
		if set["endpoint-name"] {
			t.EndpointName = *endpointName
		}
		if set["region"] {
			t.Region = *region
		}
		if set["endpoint-url"] {
			t.EndpointURL = *endpointURL
		}
	})
	if err != nil {
		reportError(stderr, nil, "configuration", err)
		return core.ExitCodeError
	}
	defer syncLogger(logger, stderr)

	audio, err := transcribe.ReadAudio(*audioPath)
	if err != nil {
		reportError(stderr, logger, "read audio", err)
		return core.ExitCodeError
	}

	in := watchSignals(logger)
	defer in.stop()

	t, err := transcribe.New(in.ctx, cfg, logger)
	if err != nil {
		reportError(stderr, logger, "backend setup failed", err)
		return core.ExitCodeError
	}
	result, err := t.Transcribe(in.ctx, audio)
	if err != nil {
		return reportRunFailure(stderr, logger, "transcription failed", err, in.exitCode())
	}
	logger.Info("transcription complete",
		zap.String("backend", t.Name()),
		zap.String("audio", audio.Name),
		zap.Int("text_length", len(result.Text)))
	fmt.Fprintln(stdout, result.Pretty())
	return core.ExitCodeSuccess
}

func runCheck(args []string, stdout, stderr io.Writer) int {
	defaults := core.DefaultConfig().Generation

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		backend    = fs.String("backend", "", "generation backend to check (default from config)")
		outDir     = fs.String("outdir", defaults.OutDir, "output directory to check")
		modelID    = fs.String("model-id", defaults.ModelID, "model the generation backend must serve")
		configPath = fs.String("config", "", "YAML config file")
	)
	if code, ok := parseFlags(fs, args, stderr); !ok {
		return code
	}

	set := visitedFlags(fs)
	cfg, logger, err := startup(*configPath, func(cfg *core.Config) {
		if set["backend"] {
			cfg.Backend = *backend
		}
		if set["outdir"] {
			cfg.Generation.OutDir = *outDir
		}
		if set["model-id"] {
			cfg.Generation.ModelID = *modelID
		}
	})
	if err != nil {
		reportError(stderr, nil, "configuration", err)
		return core.ExitCodeError
	}
	defer syncLogger(logger, stderr)

	in := watchSignals(logger)
	defer in.stop()

	checker := validation.NewConnectivityChecker(core.GetHTTPClient(cfg, 0))
	result := validation.NewValidationSuite().
		WithOutput(stdout).
		Run(in.ctx, validation.DefaultChecks(cfg, ".env", checker))

	logCheckResult(logger, result)
	if !result.Success {
		return core.ExitCodeError
	}
	return core.ExitCodeSuccess
}

func logCheckResult(logger *logging.Logger, result validation.SuiteResult) {
	if result.Success {
		logger.Info("preflight checks passed",
			zap.Int("checks_passed", result.PassedSteps),
			zap.Int("warnings", result.Warnings),
			zap.Duration("duration", result.Duration))
		return
	}
	logger.Error("preflight checks failed",
		zap.Int("passed", result.PassedSteps),
		zap.Int("failed", result.FailedSteps),
		zap.Duration("duration", result.Duration),
		zap.NamedError("first_error", result.GetFirstError()))
	for _, step := range result.Steps {
		if step.Status == validation.StepFailed {
			logger.Error("check failed",
				zap.String("step", step.Name),
				zap.String("message", step.Message),
				zap.Error(step.Error))
		}
	}
}
