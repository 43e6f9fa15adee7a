package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File permissions for files written by dashcheck.
const (
	// FilePermissionSecure is used for the config file, which may hold a password
	FilePermissionSecure = 0600

	// FilePermissionNormal is used for reports and metric exports
	FilePermissionNormal = 0644

	DirPermissionSecure = 0700
	DirPermissionNormal = 0755
)

// CleanPath sanitizes a user supplied path and makes it absolute.
// Paths that still contain a parent reference after cleaning are rejected.
func CleanPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("invalid path: empty")
	}

	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains directory traversal")
	}

	if !filepath.IsAbs(cleaned) {
		abs, err := filepath.Abs(cleaned)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		cleaned = abs
	}

	return cleaned, nil
}

// PrepareOutput cleans path and creates its parent directory so the caller
// can write the file directly.
func PrepareOutput(path string) (string, error) {
	cleaned, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cleaned), DirPermissionNormal); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return cleaned, nil
}
