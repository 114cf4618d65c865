// Package grib extracts fields from GRIB edition 1 and 2 files.
package grib

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.ngs.io/wms-api/internal/domain"
)

// Reader turns every GRIB message of a file into a field.
type Reader struct {
	logger *slog.Logger
}

// NewReader creates a GRIB reader.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{logger: logger}
}

// Fields implements store.FieldReader.
func (r *Reader) Fields(ctx context.Context, path string) ([]*domain.Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GRIB file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat GRIB file: %w", err)
	}

	msgs, err := Scan(ctx, f, info.Size())
	if err != nil {
		if len(msgs) == 0 {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		r.logger.Warn("GRIB file partly decoded", "path", path, "messages", len(msgs), "error", err)
	}

	fields := make([]*domain.Field, 0, len(msgs))
	for _, m := range msgs {
		field, ok := r.field(path, m)
		if ok {
			fields = append(fields, field)
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrNoFieldsFound)
	}
	return fields, nil
}

func (r *Reader) field(path string, m Message) (*domain.Field, bool) {
	lt, ok := levelType(m)
	if !ok {
		r.logger.Debug("skipping GRIB message with unsupported level type",
			"path", path, "position", m.Position, "level_code", m.LevelCode)
		return nil, false
	}

	f := domain.NewField(domain.FormatGRIB, path)
	f.LevelType = lt
	f.Locator = domain.Locator{Offset: m.Offset, Position: m.Position}
	valid := m.ValidTime
	f.Time = &valid

	if lt != domain.LevelSurface {
		if !m.HasLevel {
			r.logger.Debug("skipping GRIB message without level value",
				"path", path, "position", m.Position, "level_code", m.LevelCode)
			return nil, false
		}
		level := m.LevelValue
		if m.Edition == 2 && m.LevelCode == isobaric {
			level /= 100 // Pa to hPa.
		}
		f.Level = &level
		f.NameSuffix = "_" + domain.FormatLevel(level)
		f.TitleSuffix = " at " + domain.FormatLevel(level)
	}

	short, long := names(m)
	f.SetIdentity(short, long)
	return f, true
}
