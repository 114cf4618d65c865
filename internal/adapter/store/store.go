package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"go.ngs.io/wms-api/internal/domain"
)

// headerSize is the number of leading bytes inspected to pick a reader.
const headerSize = 16

// FieldReader extracts the fields of one data file.
type FieldReader interface {
	// Fields returns every field found in the file at path.
	// It returns domain.ErrNoFieldsFound when the file holds nothing usable.
	Fields(ctx context.Context, path string) ([]*domain.Field, error)
}

// Matcher reports whether a file header belongs to a format.
type Matcher func(header []byte) bool

// Magic matches files starting with the given bytes.
func Magic(prefix string) Matcher {
	p := []byte(prefix)
	return func(header []byte) bool {
		return bytes.HasPrefix(header, p)
	}
}

// JSONObject matches files whose first non-blank byte opens a JSON object.
func JSONObject() Matcher {
	return func(header []byte) bool {
		trimmed := bytes.TrimLeft(header, " \t\r\n\uFEFF")
		return len(trimmed) > 0 && trimmed[0] == '{'
	}
}

type registration struct {
	name   string
	match  Matcher
	reader FieldReader
}

// Registry picks a FieldReader from the first bytes of a file.
type Registry struct {
	entries []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a reader. Readers are tried in registration order.
func (r *Registry) Register(name string, match Matcher, reader FieldReader) {
	r.entries = append(r.entries, registration{name: name, match: match, reader: reader})
}

// Detect returns the reader name and reader for the file at path.
func (r *Registry) Detect(path string) (string, FieldReader, error) {
	header, err := readHeader(path)
	if err != nil {
		return "", nil, err
	}
	for _, e := range r.entries {
		if e.match(header) {
			return e.name, e.reader, nil
		}
	}
	return "", nil, fmt.Errorf("%s (header %q): %w", path, header, domain.ErrUnsupportedFormat)
}

// Extract reads the fields of one file and pairs their vector components.
func (r *Registry) Extract(ctx context.Context, path string) (*domain.Batch, error) {
	_, reader, err := r.Detect(path)
	if err != nil {
		return nil, err
	}
	fields, err := reader.Fields(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrNoFieldsFound)
	}
	for _, f := range fields {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return domain.PairCompanions(path, fields), nil
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, headerSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	return buf[:n], nil
}
