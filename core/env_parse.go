package core

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// The override helpers below only touch the target when the variable is set
// and parses, so values from the config file survive an unset environment.

func GetEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func overrideString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		*dst = strings.TrimSpace(value)
	}
}

func overrideInt(dst *int, key string) {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*dst = n
		}
	}
}

func overrideFloat64(dst *float64, key string) {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			*dst = f
		}
	}
}

func overrideBool(dst *bool, key string) {
	if value, ok := os.LookupEnv(key); ok {
		if b, ok := parseBool(value); ok {
			*dst = b
		}
	}
}

// overrideSeconds reads a whole number of seconds.
func overrideSeconds(dst *time.Duration, key string) {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n >= 0 {
			*dst = time.Duration(n) * time.Second
		}
	}
}

// ParseBoolEnv accepts true/1/yes/on and false/0/no/off, case-insensitively.
func ParseBoolEnv(key string, defaultValue bool) bool {
	if b, ok := parseBool(os.Getenv(key)); ok {
		return b
	}
	return defaultValue
}

func parseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}
