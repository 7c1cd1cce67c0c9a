package topics

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/AmyangXYZ/rtseries/pkg/datatype"
)

var ErrInvalidPath = errors.New("invalid topic path")

const (
	PathSeparator = "/"
	MaxPathLength = 1024

	// TimestampLayout keeps nanoseconds so that two distinct instants always
	// format differently.
	TimestampLayout = "2006-01-02 15:04:05.000000000"
)

// ValidatePath checks that path is non-empty, has no empty segments and
// contains no control characters.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if len(path) > MaxPathLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidPath, MaxPathLength)
	}
	for _, segment := range strings.Split(path, PathSeparator) {
		if segment == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	if strings.IndexFunc(path, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: %q contains control characters", ErrInvalidPath, path)
	}
	return nil
}

// Segments splits a valid path into its segments.
func Segments(path string) []string {
	return strings.Split(path, PathSeparator)
}

// TopicPath builds "{prefix}/{type name}/{UTC timestamp}".
func TopicPath(prefix string, dt datatype.DataType, t time.Time) string {
	return strings.Join([]string{prefix, dt.Name(), t.UTC().Format(TimestampLayout)}, PathSeparator)
}

// Matches reports whether path is selector itself or one of its descendants.
func Matches(selector, path string) bool {
	return path == selector || strings.HasPrefix(path, selector+PathSeparator)
}
