package render

import (
	"sync"

	"go.ngs.io/wms-api/internal/domain"
)

// Styler assigns the styles advertised for a field.
type Styler interface {
	Styles(f *domain.Field) []domain.Style
}

// parameterStyles maps short parameter names to their contour styles.
var parameterStyles = map[string][]domain.Style{
	"2t": {
		{Name: "sh_all_fM50t58i2", Title: "Temperature shaded", Description: "Shaded every 2 K"},
		{Name: "ct_red_i2_dash", Title: "Temperature contours"},
	},
	"t": {
		{Name: "sh_all_fM50t58i2", Title: "Temperature shaded", Description: "Shaded every 2 K"},
		{Name: "ct_red_i2_dash", Title: "Temperature contours"},
	},
	"msl": {
		{Name: "ct_blk_i5_t2", Title: "Pressure contours", Description: "Black contours every 5 hPa"},
	},
	"tp": {
		{Name: "sh_blured_f05t300lst", Title: "Precipitation shaded"},
	},
	"r": {
		{Name: "sh_grnblu_f65t100i15_light", Title: "Relative humidity shaded"},
	},
	"tcc": {
		{Name: "sh_gry_f0t1i0_1", Title: "Cloud cover shaded"},
	},
	"z": {
		{Name: "ct_blu_i5_t2", Title: "Geopotential contours"},
	},
}

var (
	vectorStyles = []domain.Style{
		{Name: "arrows", Title: "Wind arrows"},
		{Name: "flags", Title: "Wind flags"},
	}
	contourStyles = []domain.Style{
		{Name: "contour", Title: "Default contours"},
	}
)

// DefaultStyler assigns styles by format and parameter name. Results are
// cached per (format, name).
type DefaultStyler struct {
	mu    sync.Mutex
	cache map[string][]domain.Style
}

// NewDefaultStyler creates a styler with an empty cache.
func NewDefaultStyler() *DefaultStyler {
	return &DefaultStyler{cache: make(map[string][]domain.Style)}
}

// Styles implements Styler.
func (s *DefaultStyler) Styles(f *domain.Field) []domain.Style {
	key := string(f.Format) + "." + f.Name
	s.mu.Lock()
	defer s.mu.Unlock()
	if styles, ok := s.cache[key]; ok {
		return styles
	}
	styles := s.compute(f)
	s.cache[key] = styles
	return styles
}

func (s *DefaultStyler) compute(f *domain.Field) []domain.Style {
	switch {
	case f.Format == domain.FormatGeoJSON:
		// Observations are styled by the property they show.
		return []domain.Style{{Name: f.Name, Title: f.Title}}
	case f.Vector:
		return vectorStyles
	}
	if styles, ok := parameterStyles[f.ShortName]; ok {
		return styles
	}
	return contourStyles
}
