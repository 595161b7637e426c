// Package sanitize validates identifiers that arrive from agents and API
// clients before they are used as store keys.
package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

// MaxPathLength bounds accepted project directories.
const MaxPathLength = 4096

// Validation errors.
var (
	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrPathTraversal indicates a path contains ".." segments.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrRelativePath indicates a relative path where an absolute one is required.
	ErrRelativePath = errors.New("path must be absolute")

	// ErrInvalidPath indicates control characters or an oversized path.
	ErrInvalidPath = errors.New("invalid path")

	// ErrInvalidFeatureID indicates an ID not of the form <projectDir>:<index>.
	ErrInvalidFeatureID = errors.New("invalid feature ID")
)

// ProjectDir validates a project directory and returns it cleaned. It must
// be absolute, contain no ".." segments and no control characters.
func ProjectDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", ErrEmptyPath
	}
	if len(dir) > MaxPathLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidPath, MaxPathLength)
	}
	if strings.ContainsFunc(dir, unicode.IsControl) {
		return "", fmt.Errorf("%w: contains control characters", ErrInvalidPath)
	}
	for _, seg := range strings.FieldsFunc(dir, isSeparator) {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrPathTraversal, dir)
		}
	}
	if !filepath.IsAbs(dir) {
		return "", fmt.Errorf("%w: %s", ErrRelativePath, dir)
	}
	return filepath.Clean(dir), nil
}

// FeatureID splits and validates an ID of the form <projectDir>:<index>.
func FeatureID(id string) (projectDir string, index int, err error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidFeatureID, id)
	}
	index, err = strconv.Atoi(id[i+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("%w: bad index in %q", ErrInvalidFeatureID, id)
	}
	projectDir, err = ProjectDir(id[:i])
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidFeatureID, err)
	}
	return projectDir, index, nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == filepath.Separator
}
