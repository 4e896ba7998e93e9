package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// sanitizeFilename validates a client-declared file name for use inside the
// staging and downloads directories. Names are basenames only: anything that
// could escape the directory is rejected rather than rewritten.
func sanitizeFilename(name string) (string, error) {
	if name == "" {
		return "", errors.New("empty filename")
	}

	// Reject path separators immediately (directory traversal prevention)
	if strings.ContainsAny(name, "/\\") {
		return "", errors.New("filename contains path separators")
	}

	// Reject null bytes (can cause issues in some filesystems)
	if strings.Contains(name, "\x00") {
		return "", errors.New("filename contains null bytes")
	}

	// Reject ".." anywhere in the name (even as substring like "0..")
	if strings.Contains(name, "..") {
		return "", errors.New("filename contains directory traversal sequence")
	}

	cleaned := filepath.Base(filepath.Clean(name))

	// Verify cleaning didn't change the name (indicates potential attack)
	if cleaned != name {
		return "", fmt.Errorf("filename normalization changed input: %q -> %q", name, cleaned)
	}

	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "", errors.New("invalid filename")
	}

	// Remove control characters and DEL
	for _, r := range cleaned {
		if r < 32 || r == 0x7F {
			return "", errors.New("filename contains control characters")
		}
	}

	if strings.TrimSpace(cleaned) == "" {
		return "", errors.New("filename is only whitespace")
	}

	// Limit length to 255 bytes (common filesystem limit)
	if len(cleaned) > 255 {
		return "", errors.New("filename too long (max 255 bytes)")
	}

	return cleaned, nil
}

// findUniqueFilename prevents overwrites in a destination directory by
// appending _1, _2, ... before the extension.
func findUniqueFilename(dir, name string) string {
	name, err := sanitizeFilename(name)
	if err != nil {
		// Fallback to timestamp-based name if sanitization fails
		name = fmt.Sprintf("download_%d", time.Now().UnixNano())
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	// Collision found: try "name_1.ext", "name_2.ext", etc.
	for i := 1; i < 1000; i++ {
		newName := fmt.Sprintf("%s_%d%s", base, i, ext)
		path = filepath.Join(dir, newName)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
	}

	// Fallback: Use timestamp if 1000 collisions (unlikely)
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, time.Now().UnixNano(), ext))
}
