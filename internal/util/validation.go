package util

import (
	"errors"
	"path/filepath"
	"strings"
)

// SanitizeFilename strips any directory components from a client-supplied
// filename and rejects names that are empty after stripping
func SanitizeFilename(filename string) (string, error) {
	if filename == "" {
		return "", errors.New("filename is required")
	}

	// Normalize both separator styles before taking the base name
	cleaned := strings.ReplaceAll(filename, "\\", "/")
	cleaned = filepath.Base(cleaned)

	if cleaned == "" || cleaned == "." || cleaned == ".." || cleaned == "/" {
		return "", errors.New("invalid filename")
	}
	if len(cleaned) > 255 {
		return "", errors.New("filename too long (max 255 characters)")
	}
	return cleaned, nil
}
