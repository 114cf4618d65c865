package grib

import (
	"fmt"

	"go.ngs.io/wms-api/internal/domain"
)

const ecmwfCentre = 98

type param struct {
	short string
	long  string
}

// wmoTable2 is GRIB1 table 2 (parameter table versions 1 to 3).
var wmoTable2 = map[int]param{
	1:  {"pres", "Pressure"},
	2:  {"prmsl", "Pressure reduced to MSL"},
	6:  {"z", "Geopotential"},
	7:  {"gh", "Geopotential height"},
	11: {"t", "Temperature"},
	17: {"d", "Dewpoint temperature"},
	33: {"u", "U component of wind"},
	34: {"v", "V component of wind"},
	39: {"w", "Vertical velocity"},
	51: {"q", "Specific humidity"},
	52: {"r", "Relative humidity"},
	61: {"tp", "Total precipitation"},
	71: {"tcc", "Total cloud cover"},
	81: {"lsm", "Land-sea mask"},
}

// ecmwfTable128 is the ECMWF local parameter table 128.
var ecmwfTable128 = map[int]param{
	129: {"z", "Geopotential"},
	130: {"t", "Temperature"},
	131: {"u", "U component of wind"},
	132: {"v", "V component of wind"},
	133: {"q", "Specific humidity"},
	134: {"sp", "Surface pressure"},
	135: {"w", "Vertical velocity"},
	138: {"vo", "Vorticity (relative)"},
	151: {"msl", "Mean sea level pressure"},
	155: {"d", "Divergence"},
	157: {"r", "Relative humidity"},
	164: {"tcc", "Total cloud cover"},
	165: {"10u", "10 metre U wind component"},
	166: {"10v", "10 metre V wind component"},
	167: {"2t", "2 metre temperature"},
	168: {"2d", "2 metre dewpoint temperature"},
	172: {"lsm", "Land-sea mask"},
	228: {"tp", "Total precipitation"},
}

// ecmwfTable228 is the ECMWF local parameter table 228.
var ecmwfTable228 = map[int]param{
	246: {"100u", "100 metre U wind component"},
	247: {"100v", "100 metre V wind component"},
}

// grib2Params is keyed by discipline, category and number.
var grib2Params = map[[3]int]param{
	{0, 0, 0}:  {"t", "Temperature"},
	{0, 0, 6}:  {"d", "Dewpoint temperature"},
	{0, 1, 0}:  {"q", "Specific humidity"},
	{0, 1, 1}:  {"r", "Relative humidity"},
	{0, 1, 8}:  {"tp", "Total precipitation"},
	{0, 2, 2}:  {"u", "U component of wind"},
	{0, 2, 3}:  {"v", "V component of wind"},
	{0, 2, 8}:  {"w", "Vertical velocity"},
	{0, 2, 22}: {"gust", "Wind speed (gust)"},
	{0, 3, 0}:  {"sp", "Surface pressure"},
	{0, 3, 1}:  {"msl", "Mean sea level pressure"},
	{0, 3, 4}:  {"z", "Geopotential"},
	{0, 3, 5}:  {"gh", "Geopotential height"},
	{0, 6, 1}:  {"tcc", "Total cloud cover"},
	{2, 0, 0}:  {"lsm", "Land-sea mask"},
}

// heightQualified names parameters that get a height prefix when given at a
// fixed height above ground (2t, 10u, 100v...).
var heightQualified = map[string]string{
	"t": "temperature",
	"d": "dewpoint temperature",
	"r": "relative humidity",
	"u": "U wind component",
	"v": "V wind component",
}

// level codes per edition.
var (
	levels1 = map[int]domain.LevelType{
		1:   domain.LevelSurface,
		8:   domain.LevelSurface,
		102: domain.LevelSurface,
		105: domain.LevelSurface,
		100: domain.LevelPressure,
		109: domain.LevelModel,
	}
	levels2 = map[int]domain.LevelType{
		1:   domain.LevelSurface,
		8:   domain.LevelSurface,
		10:  domain.LevelSurface,
		101: domain.LevelSurface,
		102: domain.LevelSurface,
		103: domain.LevelSurface,
		106: domain.LevelSurface,
		200: domain.LevelSurface,
		100: domain.LevelPressure,
		105: domain.LevelModel,
		111: domain.LevelModel,
		150: domain.LevelModel,
	}
)

// height-above-ground level codes.
const (
	heightLevel1 = 105
	heightLevel2 = 103
	isobaric     = 100
)

// levelHasValue1 reports whether a GRIB1 level type stores its value in
// octets 11-12.
func levelHasValue1(code int) bool {
	switch code {
	case 100, 103, 105, 107, 109, 111, 113, 115, 117, 119, 125, 160:
		return true
	}
	return false
}

// levelType classifies the first fixed surface of a message.
func levelType(m Message) (domain.LevelType, bool) {
	table := levels2
	if m.Edition == 1 {
		table = levels1
	}
	lt, ok := table[m.LevelCode]
	return lt, ok
}

// names returns the short and long parameter names of a message.
func names(m Message) (string, string) {
	p, ok := lookupParam(m)
	if !ok {
		if m.Edition == 1 {
			return fmt.Sprintf("param%d.%d", m.Parameter, m.TableVersion),
				fmt.Sprintf("Parameter %d (table %d)", m.Parameter, m.TableVersion)
		}
		return fmt.Sprintf("param%d.%d.%d", m.Discipline, m.Category, m.Number),
			fmt.Sprintf("Parameter %d.%d.%d", m.Discipline, m.Category, m.Number)
	}

	heightCode := heightLevel2
	if m.Edition == 1 {
		heightCode = heightLevel1
	}
	if long, ok := heightQualified[p.short]; ok && m.LevelCode == heightCode && m.HasLevel {
		h := domain.FormatLevel(m.LevelValue)
		return h + p.short, fmt.Sprintf("%s metre %s", h, long)
	}
	return p.short, p.long
}

func lookupParam(m Message) (param, bool) {
	if m.Edition == 2 {
		p, ok := grib2Params[[3]int{m.Discipline, m.Category, m.Number}]
		return p, ok
	}
	var table map[int]param
	switch {
	case m.Centre == ecmwfCentre && m.TableVersion == 128:
		table = ecmwfTable128
	case m.Centre == ecmwfCentre && m.TableVersion == 228:
		table = ecmwfTable228
	case m.TableVersion <= 3:
		table = wmoTable2
	default:
		return param{}, false
	}
	p, ok := table[m.Parameter]
	return p, ok
}
