// Package validate checks uploads before they reach the job controller.
package validate

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultMaxBytes is the largest accepted upload.
const DefaultMaxBytes int64 = 100 << 20

// DefaultExtensions are the video formats the detection service accepts.
var DefaultExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv"}

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("invalid upload")

// ValidationError describes why a file was refused. Message is shown to the user as-is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validator checks file name and size against configured limits.
type Validator struct {
	MaxBytes          int64
	AllowedExtensions []string
}

// New returns a Validator, substituting defaults for zero values.
func New(maxBytes int64, extensions []string) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return &Validator{MaxBytes: maxBytes, AllowedExtensions: normalized}
}

// Check validates a file by name and size. Size is checked before format.
func (v *Validator) Check(filename string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return &ValidationError{Field: "file", Message: "No file selected"}
	}
	if size <= 0 {
		return &ValidationError{Field: "file", Message: "File is empty"}
	}
	if size > v.MaxBytes {
		return &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("File size must be less than %s", humanSize(v.MaxBytes)),
		}
	}
	if !v.allowed(filename) {
		return &ValidationError{
			Field:   "file",
			Message: "Unsupported file format. Supported formats: " + strings.Join(v.AllowedExtensions, ", "),
		}
	}
	return nil
}

// TooLarge is the error for a body that exceeded MaxBytes while being read,
// before its size was known.
func (v *Validator) TooLarge() error {
	return &ValidationError{
		Field:   "file",
		Message: fmt.Sprintf("File size must be less than %s", humanSize(v.MaxBytes)),
	}
}

func (v *Validator) allowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range v.AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

func humanSize(n int64) string {
	const mb = 1 << 20
	if n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
