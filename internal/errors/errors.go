package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error with user-friendly message and suggestions
type UserError struct {
	Message     string   // User-friendly error message
	Suggestions []string // Possible solutions
	Err         error    // Underlying error (can be nil)
}

// Error implements the error interface
func (e *UserError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if len(e.Suggestions) > 0 {
		sb.WriteString("\n\nPossible solutions:")
		for _, suggestion := range e.Suggestions {
			sb.WriteString("\n  • ")
			sb.WriteString(suggestion)
		}
	}

	if e.Err != nil {
		sb.WriteString("\n\nTechnical details: ")
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying error
func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error
func NewUserError(message string, suggestions []string, err error) *UserError {
	return &UserError{
		Message:     message,
		Suggestions: suggestions,
		Err:         err,
	}
}

// IsUserError checks if an error is a UserError
func IsUserError(err error) bool {
	var userErr *UserError
	return errors.As(err, &userErr)
}

// Common error constructors for typical scenarios

// ConnectionError creates an error for relay connection failures
func ConnectionError(url string, err error) error {
	return NewUserError(
		fmt.Sprintf("Failed to connect to %s", url),
		[]string{
			"Check if the relay server is running",
			"Verify the ws_url setting is correct",
			"Run 'ferry search' to discover relays on the local network",
			"Check firewall settings",
		},
		err,
	)
}

// AuthError creates an error for rejected credentials
func AuthError(err error) error {
	return NewUserError(
		"Authentication rejected by the relay",
		[]string{
			"Verify the token setting is correct",
			"Ask the relay operator for a new token ('ferryd token issue <user>')",
			"Run 'ferry config show' to see current settings",
		},
		err,
	)
}

// FileNotFoundError creates an error for missing files
func FileNotFoundError(path string, err error) error {
	return NewUserError(
		fmt.Sprintf("File not found: %s", path),
		[]string{
			"Check if the file path is correct",
			"Verify you have read permissions",
			"Ensure the file still exists",
		},
		err,
	)
}

// PermissionError creates an error for permission issues
func PermissionError(operation, path string, err error) error {
	return NewUserError(
		fmt.Sprintf("Permission denied: cannot %s %s", operation, path),
		[]string{
			"Check file/directory permissions",
			"Try running with appropriate privileges",
			"Ensure the directory is writable",
		},
		err,
	)
}

// InvalidURLError creates an error for malformed URLs
func InvalidURLError(url string, err error) error {
	return NewUserError(
		fmt.Sprintf("Invalid URL: %s", url),
		[]string{
			"Check the URL format (must be absolute, e.g. https://host/file)",
			"Quote the URL if it contains shell metacharacters",
		},
		err,
	)
}

// ConfigError creates an error for configuration issues
func ConfigError(message string, err error) error {
	return NewUserError(
		message,
		[]string{
			"Check your config file at ~/.config/ferry/ferry.yaml",
			"Verify the YAML syntax is correct",
			"Try running 'ferry config show' to see current settings",
			"Delete the config file to reset to defaults",
		},
		err,
	)
}

// StoreError creates an error for local database failures
func StoreError(operation string, err error) error {
	return NewUserError(
		fmt.Sprintf("Store operation failed: %s", operation),
		[]string{
			"Check that the database path is writable",
			"Ensure no other ferryd instance holds the database",
		},
		err,
	)
}
