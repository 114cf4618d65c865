// Package gribtest encodes minimal GRIB messages for tests. Only the sections
// read by the grib package carry meaningful content.
package gribtest

import (
	"encoding/binary"
	"time"
)

// Field2 describes one GRIB2 product.
type Field2 struct {
	Discipline  int
	Category    int
	Number      int
	Template    int // 0 (default) or 8.
	TimeUnit    int // Code table 4.4, 1 = hour.
	Step        int
	SurfaceType int
	Scale       int
	Value       uint32
	NoLevel     bool
	End         time.Time // Template 8 only.
}

// Message2 encodes a GRIB2 message holding the given fields. The discipline
// is taken from the first field.
func Message2(ref time.Time, fields ...Field2) []byte {
	var body []byte
	body = append(body, section(1, identification2(ref))...)
	body = append(body, section(3, make([]byte, 9))...)
	for _, f := range fields {
		body = append(body, section(4, product2(f))...)
		body = append(body, section(5, make([]byte, 16))...)
		body = append(body, section(6, []byte{255})...)
		body = append(body, section(7, nil)...)
	}

	total := 16 + len(body) + 4
	msg := make([]byte, 0, total)
	msg = append(msg, 'G', 'R', 'I', 'B', 0, 0)
	discipline := 0
	if len(fields) > 0 {
		discipline = fields[0].Discipline
	}
	msg = append(msg, byte(discipline), 2)
	msg = binary.BigEndian.AppendUint64(msg, uint64(total))
	msg = append(msg, body...)
	return append(msg, '7', '7', '7', '7')
}

func section(num byte, body []byte) []byte {
	out := binary.BigEndian.AppendUint32(nil, uint32(len(body)+5))
	out = append(out, num)
	return append(out, body...)
}

func identification2(ref time.Time) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint16(b[0:2], 98)
	b[4] = 2 // Master tables version.
	b[6] = 1 // Start of forecast.
	binary.BigEndian.PutUint16(b[7:9], uint16(ref.Year()))
	b[9] = byte(ref.Month())
	b[10] = byte(ref.Day())
	b[11] = byte(ref.Hour())
	b[12] = byte(ref.Minute())
	b[13] = byte(ref.Second())
	b[15] = 1
	return b
}

func product2(f Field2) []byte {
	size := 29
	if f.Template == 8 {
		size = 53
	}
	b := make([]byte, size)
	binary.BigEndian.PutUint16(b[2:4], uint16(f.Template))
	b[4] = byte(f.Category)
	b[5] = byte(f.Number)
	b[6] = 2
	b[12] = byte(f.TimeUnit)
	binary.BigEndian.PutUint32(b[13:17], uint32(f.Step))
	b[17] = byte(f.SurfaceType)
	if f.NoLevel {
		b[18] = 0xff
		binary.BigEndian.PutUint32(b[19:23], 0xffffffff)
	} else {
		b[18] = byte(f.Scale)
		binary.BigEndian.PutUint32(b[19:23], f.Value)
	}
	b[23] = 0xff
	b[24] = 0xff
	binary.BigEndian.PutUint32(b[25:29], 0xffffffff)
	if f.Template == 8 {
		e := b[29:]
		binary.BigEndian.PutUint16(e[0:2], uint16(f.End.Year()))
		e[2] = byte(f.End.Month())
		e[3] = byte(f.End.Day())
		e[4] = byte(f.End.Hour())
		e[5] = byte(f.End.Minute())
		e[6] = byte(f.End.Second())
	}
	return b
}

// Message1 describes one GRIB1 product.
type Message1 struct {
	Centre       int
	TableVersion int
	Parameter    int
	LevelType    int
	Level        int
	Ref          time.Time
	TimeUnit     int
	P1, P2       int
	TimeRange    int
}

// Encode returns the GRIB1 encoding of the message.
func (m Message1) Encode() []byte {
	pds := make([]byte, 28)
	pds[2] = 28
	pds[3] = byte(m.TableVersion)
	pds[4] = byte(m.Centre)
	pds[6] = 255
	pds[7] = 0x80
	pds[8] = byte(m.Parameter)
	pds[9] = byte(m.LevelType)
	binary.BigEndian.PutUint16(pds[10:12], uint16(m.Level))
	year := m.Ref.Year()
	pds[12] = byte((year-1)%100 + 1)
	pds[13] = byte(m.Ref.Month())
	pds[14] = byte(m.Ref.Day())
	pds[15] = byte(m.Ref.Hour())
	pds[16] = byte(m.Ref.Minute())
	pds[17] = byte(m.TimeUnit)
	pds[18] = byte(m.P1)
	pds[19] = byte(m.P2)
	pds[20] = byte(m.TimeRange)
	pds[24] = byte((year-1)/100 + 1)

	bds := make([]byte, 12)
	bds[2] = 12

	total := 8 + len(pds) + len(bds) + 4
	msg := []byte{'G', 'R', 'I', 'B', byte(total >> 16), byte(total >> 8), byte(total), 1}
	msg = append(msg, pds...)
	msg = append(msg, bds...)
	return append(msg, '7', '7', '7', '7')
}
