// Package validation runs preflight checks before a generation or
// transcription run and prints a colored checklist.
package validation

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// ValidationStep is one executed check.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is what a check reports. A zero Status with a nil Err is a pass.
type Outcome struct {
	Status  StepStatus
	Message string
	Err     error
}

func Passed(format string, args ...any) Outcome {
	return Outcome{Status: StepPassed, Message: fmt.Sprintf(format, args...)}
}

func Warning(format string, args ...any) Outcome {
	return Outcome{Status: StepWarning, Message: fmt.Sprintf(format, args...)}
}

func Failed(message string, err error) Outcome {
	return Outcome{Status: StepFailed, Message: message, Err: err}
}

func Skipped(message string) Outcome {
	return Outcome{Status: StepSkipped, Message: message}
}

// Check is a named preflight step. When NeedsPassing is set the step is
// skipped if any earlier step failed.
type Check struct {
	Name         string
	NeedsPassing bool
	Run          func(ctx context.Context) Outcome
}

type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// ValidationSuite executes checks in order with progress output.
type ValidationSuite struct {
	output       io.Writer
	title        string
	showProgress bool
	failFast     bool
	now          func() time.Time
}

func NewValidationSuite() *ValidationSuite {
	return &ValidationSuite{
		output:       os.Stdout,
		title:        "Preflight Checks",
		showProgress: true,
		now:          time.Now,
	}
}

func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

func (s *ValidationSuite) WithTitle(title string) *ValidationSuite {
	s.title = title
	return s
}

func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops at the first failed step.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// Run executes checks in order and returns the aggregated result.
func (s *ValidationSuite) Run(ctx context.Context, checks []Check) SuiteResult {
	startTime := s.now()
	steps := make([]ValidationStep, 0, len(checks))

	if s.showProgress {
		s.printHeader(s.title)
	}

	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			steps = append(steps, ValidationStep{Name: check.Name, Status: StepFailed, Message: "Interrupted", Error: err})
			break
		}

		var step ValidationStep
		if check.NeedsPassing && !hasAllPassed(steps) {
			step = ValidationStep{
				Name:    check.Name,
				Status:  StepSkipped,
				Message: "Skipped due to earlier failures",
			}
			if s.showProgress {
				s.printStep(step)
			}
		} else {
			step = s.runStep(ctx, check)
		}
		steps = append(steps, step)

		if s.failFast && step.Status == StepFailed {
			break
		}
	}

	result := s.buildResult(steps, startTime)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func (s *ValidationSuite) runStep(ctx context.Context, check Check) ValidationStep {
	if s.showProgress {
		s.printStepStart(check.Name)
	}

	startTime := s.now()
	out := check.Run(ctx)
	step := ValidationStep{
		Name:    check.Name,
		Status:  out.Status,
		Message: out.Message,
		Error:   out.Err,
		Latency: s.now().Sub(startTime),
	}
	if step.Status == StepPending || step.Status == StepRunning {
		step.Status = StepPassed
		if step.Error != nil {
			step.Status = StepFailed
		}
	}

	if s.showProgress {
		s.printStep(step)
	}
	return step
}

func hasAllPassed(steps []ValidationStep) bool {
	for _, step := range steps {
		if step.Status == StepFailed {
			return false
		}
	}
	return true
}

func (s *ValidationSuite) buildResult(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   s.now().Sub(startTime),
		Success:    true,
	}

	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}
	return result
}

func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	headerColor := color.New(color.FgCyan, color.Bold)
	headerColor.Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepFailed:
		icon = "✗"
		clr = color.New(color.FgRed)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	case StepSkipped:
		icon = "○"
		clr = color.New(color.FgHiBlack)
	default:
		icon = "?"
		clr = color.New(color.FgWhite)
	}

	// overwrite the "running" line
	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)

	if step.Message != "" {
		dim := color.New(color.FgHiBlack)
		dim.Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		errColor := color.New(color.FgRed)
		errColor.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	if result.Success {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(s.output, "━━━ Checks Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d passed, %d warnings)",
			result.PassedSteps, result.TotalSteps, result.Warnings)
		successColor.Fprintln(s.output, " ━━━")
	} else {
		failColor := color.New(color.FgRed, color.Bold)
		failColor.Fprintf(s.output, "━━━ Checks Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		failColor.Fprintln(s.output, " ━━━")
	}
	fmt.Fprintln(s.output)
}

// GetFirstError returns the first step error, or nil.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Error != nil {
			return step.Error
		}
	}
	return nil
}

func (r SuiteResult) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Checks passed: ")
	} else {
		sb.WriteString("Checks failed: ")
	}
	sb.WriteString(fmt.Sprintf("%d/%d passed", r.PassedSteps, r.TotalSteps))
	if r.FailedSteps > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", r.FailedSteps))
	}
	if r.Warnings > 0 {
		sb.WriteString(fmt.Sprintf(", %d warnings", r.Warnings))
	}
	return sb.String()
}
