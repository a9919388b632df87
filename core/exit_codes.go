package core

import (
	"os"
	"syscall"
)

// Process exit codes. Signal exits follow the 128+N shell convention.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	ExitCodeUsage   = 2
	ExitCodeSIGINT  = 130
	ExitCodeSIGTERM = 143
)

func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeUsage:
		return "usage"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	case ExitCodeSIGTERM:
		return "terminated (SIGTERM)"
	default:
		return "unknown"
	}
}

// ExitCodeForSignal maps a received signal to its exit code.
func ExitCodeForSignal(sig os.Signal) int {
	if sig == syscall.SIGTERM {
		return ExitCodeSIGTERM
	}
	return ExitCodeSIGINT
}

func IsSignalExit(code int) bool {
	return code == ExitCodeSIGINT || code == ExitCodeSIGTERM
}
