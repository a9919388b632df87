package sdruntime

import (
	"fmt"
	"strings"
)

// ValidatePrompt rejects prompts that are blank, overlong, or carry NUL
// bytes (which would truncate the C string).
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: prompt cannot be empty", ErrInvalidPrompt)
	}
	if strings.ContainsRune(prompt, '\x00') {
		return fmt.Errorf("%w: prompt contains null bytes", ErrInvalidPrompt)
	}
	if len(prompt) > MaxPromptLength {
		return fmt.Errorf("%w: prompt length %d exceeds maximum %d",
			ErrInvalidPrompt, len(prompt), MaxPromptLength)
	}
	return nil
}

// JoinPrompts collapses several prompts into one conditioning string for
// backends that accept a single prompt per call.
func JoinPrompts(prompts []string, sep string) string {
	parts := make([]string, 0, len(prompts))
	for _, p := range prompts {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, sep)
}
