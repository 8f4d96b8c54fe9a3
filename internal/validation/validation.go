// Package validation decides which paths may be registered and indexed.
package validation

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Outcome is the result of validating a path.
type Outcome int

const (
	OK Outcome = iota
	NotFound
	Abnormal
	SizeExceeds
	FormatUnsupported
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case NotFound:
		return "not_found"
	case Abnormal:
		return "abnormal"
	case SizeExceeds:
		return "size_exceeds"
	case FormatUnsupported:
		return "format_unsupported"
	default:
		return "unknown"
	}
}

// sniffLen is how much of a file is inspected for NUL bytes.
const sniffLen = 512

// Validator checks file type, size and extension.
type Validator struct {
	maxSize    int64
	extensions map[string]struct{}
}

// New creates a validator. Extensions are matched without the leading dot
// and case-insensitively.
func New(maxSize int64, extensions []string) *Validator {
	v := &Validator{maxSize: maxSize, extensions: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			v.extensions[ext] = struct{}{}
		}
	}
	return v
}

// Stat classifies path. Directories are OK; the returned info is nil
// unless the path exists.
func (v *Validator) Stat(path string) (Outcome, fs.FileInfo) {
	info, err := os.Stat(path)
	if err != nil {
		return NotFound, nil
	}
	if info.IsDir() {
		return OK, info
	}
	return v.checkFile(path, info), info
}

// ValidateFile checks a path that must be a regular file.
func (v *Validator) ValidateFile(path string) Outcome {
	info, err := os.Stat(path)
	if err != nil {
		return NotFound
	}
	return v.checkFile(path, info)
}

// IsValid reports whether path is an indexable regular file.
func (v *Validator) IsValid(path string) bool {
	return v.ValidateFile(path) == OK
}

// SupportsExtension reports whether the extension of path is indexable.
func (v *Validator) SupportsExtension(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return false
	}
	_, ok := v.extensions[ext]
	return ok
}

func (v *Validator) checkFile(path string, info fs.FileInfo) Outcome {
	if !info.Mode().IsRegular() {
		return Abnormal
	}
	if v.maxSize > 0 && info.Size() > v.maxSize {
		return SizeExceeds
	}
	if !v.SupportsExtension(path) || isBinary(path) {
		return FormatUnsupported
	}
	return OK
}

// isBinary looks for a NUL byte in the head of the file.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
