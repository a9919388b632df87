package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
)

// NewMultiCore tees a console core on stderr with a rotating JSON file core.
//
// stdout is left alone so subcommands can print machine-readable output
// (for example transcription JSON) without log lines mixed in.
//
// The file is opened once up front so a bad path fails here rather than on
// the first write.
func NewMultiCore(level zapcore.Level, filePath string, isDev bool, fileConfig FileWriterConfig) (zapcore.Core, error) {
	if err := checkLogFile(filePath); err != nil {
		return nil, err
	}
	fileWriter := NewFileWriterWithConfig(filePath, fileConfig)
	return NewMultiCoreWithWriters(level, zapcore.Lock(os.Stderr), fileWriter, isDev), nil
}

// NewMultiCoreWithWriters is NewMultiCore over caller-provided writers.
func NewMultiCoreWithWriters(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), fileWriter, level)

	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, consoleWriter, level)

	return zapcore.NewTee(consoleCore, fileCore)
}

func checkLogFile(path string) error {
	if path == "" {
		return fmt.Errorf("log file path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}
