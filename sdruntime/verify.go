package sdruntime

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	checksumMu sync.RWMutex

	// modelChecksums maps model file names to their SHA-256 digests.
	modelChecksums = map[string]string{
		"v1-5-pruned-emaonly.safetensors": "6ce0161689b3853acaa03779ec93eafe75a02f4ced659bee03f50797806fa2fa",
	}
)

// VerifyModelChecksum checks modelPath against the registered digest for its
// file name. Unregistered models pass.
func VerifyModelChecksum(modelPath string) error {
	if _, err := os.Stat(modelPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
		}
		return fmt.Errorf("failed to access model file: %w", err)
	}

	expected, ok := GetExpectedChecksum(filepath.Base(modelPath))
	if !ok {
		return nil
	}

	actual, err := CalculateChecksum(modelPath)
	if err != nil {
		return fmt.Errorf("failed to calculate checksum: %w", err)
	}
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("%w: expected %s, got %s", ErrModelCorrupted, expected, actual)
	}
	return nil
}

// CalculateChecksum streams a file through SHA-256 and returns lowercase hex.
func CalculateChecksum(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, filePath)
		}
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func GetExpectedChecksum(modelName string) (string, bool) {
	checksumMu.RLock()
	defer checksumMu.RUnlock()
	sum, ok := modelChecksums[modelName]
	return sum, ok
}

// RegisterModelChecksum adds or replaces a digest.
func RegisterModelChecksum(modelName, checksum string) {
	checksumMu.Lock()
	defer checksumMu.Unlock()
	modelChecksums[modelName] = strings.ToLower(checksum)
}

func IsModelCorrupted(err error) bool {
	return errors.Is(err, ErrModelCorrupted)
}

func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}
