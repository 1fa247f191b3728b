// Package render serializes result documents for the front ends.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

var ErrUnknownFormat = errors.New("unknown output format")

type Serializer interface {
	Marshal(data any) ([]byte, error)
}

// JSONSerializer emits a single JSON document followed by a newline. HTML
// characters are left unescaped so plugin output is shown as produced.
type JSONSerializer struct {
	Prefix, Indent string
}

func (s JSONSerializer) Marshal(data any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if s.Prefix != "" || s.Indent != "" {
		enc.SetIndent(s.Prefix, s.Indent)
	}
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ForFormat returns the serializer for an --output value.
func ForFormat(format string) (Serializer, error) {
	switch format {
	case "", FormatJSON:
		return JSONSerializer{}, nil
	case FormatPretty:
		return JSONSerializer{Indent: "  "}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Write serializes data to w.
func Write(w io.Writer, data any, s Serializer) error {
	out, err := s.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize output: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// FileWriter saves a serialized document to disk, creating parent
// directories as needed.
type FileWriter struct {
	Overwrite bool
}

func (w FileWriter) WriteFile(filename string, data []byte) error {
	if filename == "" {
		return os.ErrInvalid
	}
	if _, err := os.Stat(filename); !os.IsNotExist(err) && !w.Overwrite {
		return os.ErrExist
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// WriteToFile serializes data and stores it at filename.
func WriteToFile(filename string, data any, s Serializer, w FileWriter) error {
	out, err := s.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize output: %w", err)
	}
	if err := w.WriteFile(filename, out); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}
