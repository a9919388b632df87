package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"gallery_style/core"
	"gallery_style/imagegen"
	"gallery_style/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "warning: could not read .env: %v\n", err)
	}

	cmd, rest := splitCommand(args)
	switch cmd {
	case "generate":
		return runGenerate(rest, stdout, stderr)
	case "transcribe":
		return runTranscribe(rest, stdout, stderr)
	case "check":
		return runCheck(rest, stdout, stderr)
	case "samplers":
		imagegen.PrintSamplers(stdout)
		return core.ExitCodeSuccess
	case "version":
		fmt.Fprintf(stdout, "gallery %s\n", core.GetVersionInfo())
		return core.ExitCodeSuccess
	case "help", "-h", "--help":
		printUsage(stdout)
		return core.ExitCodeSuccess
	default:
		color.New(color.FgRed).Fprintf(stderr, "error: unknown command %q\n\n", cmd)
		printUsage(stderr)
		return core.ExitCodeUsage
	}
}

// splitCommand treats a missing subcommand, or a leading flag, as generate.
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 {
		return "generate", nil
	}
	first := args[0]
	if first == "-h" || first == "--help" {
		return first, nil
	}
	if len(first) > 0 && first[0] == '-' {
		return "generate", args
	}
	return first, args[1:]
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: gallery [command] [flags]

Commands:
  generate     generate images from text prompts (default)
  transcribe   send an audio file to a speech-to-text endpoint
  check        run preflight checks against the configured backends
  samplers     list supported samplers
  version      print build information

Run "gallery <command> -h" for command flags.
`)
}

// startup loads configuration, applies flag overrides and builds the logger.
// Errors returned here happen before a logger exists and are only printed.
func startup(configPath string, override func(*core.Config)) (*core.Config, *logging.Logger, error) {
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	defaultLevel := logging.InfoLevel
	if cfg.DevMode {
		defaultLevel = logging.DebugLevel
	}
	level := logging.ParseLogLevelString(cfg.LogLevel, defaultLevel)
	logger, err := logging.NewLoggerAtLevel(level, cfg.DevMode, cfg.LogFile, logging.DefaultFileWriterConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// interrupt cancels a context on the first SIGINT/SIGTERM and exits the
// process on the second.
type interrupt struct {
	ctx    context.Context
	cancel context.CancelFunc
	sigCh  chan os.Signal

	mu  sync.Mutex
	sig os.Signal
}

func watchSignals(logger *logging.Logger) *interrupt {
	ctx, cancel := context.WithCancel(context.Background())
	in := &interrupt{ctx: ctx, cancel: cancel, sigCh: make(chan os.Signal, 2)}
	signal.Notify(in.sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig, ok := <-in.sigCh
		if !ok {
			return
		}
		in.mu.Lock()
		in.sig = sig
		in.mu.Unlock()
		logger.Warn("received signal, stopping after the current batch", zap.String("signal", sig.String()))
		cancel()

		if _, ok := <-in.sigCh; ok {
			logger.Warn("received second signal, exiting now")
			_ = logger.Sync()
			os.Exit(core.ExitCodeForSignal(sig))
		}
	}()
	return in
}

func (in *interrupt) stop() {
	signal.Stop(in.sigCh)
	close(in.sigCh)
	in.cancel()
}

// exitCode maps a failed run to 130/143 when it was interrupted, 1 otherwise.
func (in *interrupt) exitCode() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.sig != nil {
		return core.ExitCodeForSignal(in.sig)
	}
	return core.ExitCodeError
}

// reportError prints a red diagnostic and logs the failure when a logger is
// available.
func reportError(stderr io.Writer, logger *logging.Logger, msg string, err error) {
	if logger != nil {
		logger.Error(msg, zap.Error(err), zap.String("code", core.GetErrorCode(err)))
	}
	color.New(color.FgRed, color.Bold).Fprint(stderr, "error: ")
	fmt.Fprintf(stderr, "%s: %v\n", msg, err)
}

// reportRunFailure reports a failed run under its exit code. Interrupted runs
// are logged as warnings since partial output is expected.
func reportRunFailure(stderr io.Writer, logger *logging.Logger, msg string, err error, code int) int {
	if !core.IsSignalExit(code) {
		reportError(stderr, logger, msg, err)
		return code
	}
	logger.Warn("run interrupted",
		zap.String("reason", core.ExitCodeName(code)),
		zap.Int("exit_code", code),
		zap.Error(err))
	color.New(color.FgYellow, color.Bold).Fprint(stderr, "interrupted: ")
	fmt.Fprintf(stderr, "%s (%s)\n", msg, core.ExitCodeName(code))
	return code
}

func syncLogger(logger *logging.Logger, stderr io.Writer) {
	if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		fmt.Fprintf(stderr, "Failed to sync logger: %v\n", err)
	}
}
