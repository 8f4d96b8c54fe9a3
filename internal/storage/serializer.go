package storage

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Serializer converts content to its stored form. Content at or above
// the threshold is gzip-compressed; the flag travels with the bytes.
type Serializer struct {
	threshold int
}

// NewSerializer creates a serializer. A threshold <= 0 disables compression.
func NewSerializer(threshold int) Serializer {
	return Serializer{threshold: threshold}
}

// Encode returns the stored form of content and whether it was compressed.
func (s Serializer) Encode(content string) ([]byte, bool, error) {
	if s.threshold <= 0 || len(content) < s.threshold {
		return []byte(content), false, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := io.WriteString(zw, content); err != nil {
		return nil, false, fmt.Errorf("compress content: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("compress content: %w", err)
	}
	return buf.Bytes(), true, nil
}

// Decode reverses Encode.
func (s Serializer) Decode(data []byte, compressed bool) (string, error) {
	if !compressed {
		return string(data), nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decompress content: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("decompress content: %w", err)
	}
	return string(out), nil
}
