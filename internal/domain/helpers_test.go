package domain

import "time"

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func lvl(v float64) *float64 { return &v }

func gribField(short, long string, t *time.Time, lt LevelType, level *float64) *Field {
	f := NewField(FormatGRIB, "/data/test.grib")
	f.Time = t
	f.LevelType = lt
	f.Level = level
	if lt != LevelSurface && level != nil {
		f.NameSuffix = "_" + FormatLevel(*level)
		f.TitleSuffix = " at " + FormatLevel(*level)
	}
	f.SetIdentity(short, long)
	return f
}

func plainField(name, title string, t *time.Time, lt LevelType, level *float64) *Field {
	f := NewField(FormatGRIB, "/data/test.grib")
	f.Time = t
	f.LevelType = lt
	f.Level = level
	f.SetIdentity(name, title)
	return f
}
