package grib

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	indicatorSize1 = 8
	indicatorSize2 = 16
	scanChunk      = 4096
)

var (
	marker = []byte("GRIB")

	errTruncated = errors.New("truncated message")
)

// Message holds the product metadata of one GRIB field. Only the indicator,
// identification and product definition sections are decoded.
type Message struct {
	Offset   int64 // Byte offset of the message in the file.
	Length   int64
	Position int // 1-based field position in the file.
	Edition  int

	Centre       int
	TableVersion int // GRIB1 parameter table version.
	Parameter    int // GRIB1 indicatorOfParameter.
	Discipline   int // GRIB2.
	Category     int // GRIB2.
	Number       int // GRIB2.
	Template     int // GRIB2 product definition template.

	RefTime   time.Time
	ValidTime time.Time

	LevelCode  int
	LevelValue float64
	HasLevel   bool
}

// Scan walks every message of a GRIB file and decodes the metadata of each
// field. Messages decoded before a corrupt one are returned with the error.
func Scan(ctx context.Context, r io.ReaderAt, size int64) ([]Message, error) {
	var out []Message
	offset := int64(0)
	for offset < size {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		start, err := findMarker(r, offset, size)
		if err != nil {
			return out, err
		}
		if start < 0 {
			break
		}

		head := make([]byte, indicatorSize2)
		if _, err := r.ReadAt(head[:indicatorSize1], start); err != nil {
			return out, fmt.Errorf("message at %d: %w", start, errTruncated)
		}

		var (
			msgs   []Message
			length int64
		)
		switch edition := int(head[7]); edition {
		case 1:
			length = int64(uint24(head[4:7]))
			msgs, err = decode1(r, start, length, size)
		case 2:
			if _, err := r.ReadAt(head, start); err != nil {
				return out, fmt.Errorf("message at %d: %w", start, errTruncated)
			}
			length = int64(binary.BigEndian.Uint64(head[8:16]))
			msgs, err = decode2(r, start, length, size, int(head[6]))
		default:
			return out, fmt.Errorf("message at %d: unsupported GRIB edition %d", start, edition)
		}
		if err != nil {
			return out, fmt.Errorf("message at %d: %w", start, err)
		}
		for _, m := range msgs {
			m.Position = len(out) + 1
			out = append(out, m)
		}
		offset = start + length
	}
	return out, nil
}

// findMarker returns the offset of the next "GRIB" marker at or after offset,
// or -1 when none is left.
func findMarker(r io.ReaderAt, offset, size int64) (int64, error) {
	buf := make([]byte, scanChunk+len(marker)-1)
	for offset < size {
		n, err := r.ReadAt(buf, offset)
		if err != nil && !errors.Is(err, io.EOF) {
			return -1, err
		}
		if i := bytes.Index(buf[:n], marker); i >= 0 {
			return offset + int64(i), nil
		}
		if n < len(buf) {
			break
		}
		offset += scanChunk
	}
	return -1, nil
}

func decode1(r io.ReaderAt, start, length, size int64) ([]Message, error) {
	if length < indicatorSize1+28 || start+length > size {
		return nil, errTruncated
	}
	head := make([]byte, 3)
	if _, err := r.ReadAt(head, start+indicatorSize1); err != nil {
		return nil, errTruncated
	}
	pdsLen := int64(uint24(head))
	if pdsLen < 28 || indicatorSize1+pdsLen > length {
		return nil, fmt.Errorf("invalid product definition section length %d", pdsLen)
	}
	pds := make([]byte, pdsLen)
	if _, err := r.ReadAt(pds, start+indicatorSize1); err != nil {
		return nil, errTruncated
	}

	m := Message{
		Offset:       start,
		Length:       length,
		Edition:      1,
		TableVersion: int(pds[3]),
		Centre:       int(pds[4]),
		Parameter:    int(pds[8]),
		LevelCode:    int(pds[9]),
	}
	if levelHasValue1(m.LevelCode) {
		m.LevelValue = float64(binary.BigEndian.Uint16(pds[10:12]))
		m.HasLevel = true
	}

	century := int(pds[24])
	year := (century-1)*100 + int(pds[12])
	m.RefTime = time.Date(year, time.Month(pds[13]), int(pds[14]), int(pds[15]), int(pds[16]), 0, 0, time.UTC)

	unit := int(pds[17])
	p1, p2 := int(pds[18]), int(pds[19])
	var step int
	switch indicator := int(pds[20]); indicator {
	case 0:
		step = p1
	case 1:
		step = 0
	case 2, 3, 4, 5:
		step = p2
	case 10:
		step = p1<<8 | p2
	default:
		step = p1
	}
	m.ValidTime = addStep(m.RefTime, unit, step)
	return []Message{m}, nil
}

func decode2(r io.ReaderAt, start, length, size int64, discipline int) ([]Message, error) {
	if length < indicatorSize2+4 || start+length > size {
		return nil, errTruncated
	}

	var (
		out     []Message
		ref     time.Time
		centre  int
		haveRef bool
	)
	pos := start + indicatorSize2
	end := start + length - 4
	head := make([]byte, 5)
	for pos < end {
		if _, err := r.ReadAt(head[:4], pos); err != nil {
			return nil, errTruncated
		}
		if bytes.Equal(head[:4], []byte("7777")) {
			break
		}
		if _, err := r.ReadAt(head, pos); err != nil {
			return nil, errTruncated
		}
		secLen := int64(binary.BigEndian.Uint32(head[:4]))
		if secLen < 5 || pos+secLen > end {
			return nil, fmt.Errorf("invalid section %d length %d", head[4], secLen)
		}

		switch head[4] {
		case 1:
			sec := make([]byte, secLen)
			if _, err := r.ReadAt(sec, pos); err != nil {
				return nil, errTruncated
			}
			if secLen < 19 {
				return nil, fmt.Errorf("identification section too short (%d)", secLen)
			}
			centre = int(binary.BigEndian.Uint16(sec[5:7]))
			ref = time.Date(int(binary.BigEndian.Uint16(sec[12:14])), time.Month(sec[14]), int(sec[15]),
				int(sec[16]), int(sec[17]), int(sec[18]), 0, time.UTC)
			haveRef = true
		case 4:
			if !haveRef {
				return nil, errors.New("product definition before identification section")
			}
			sec := make([]byte, secLen)
			if _, err := r.ReadAt(sec, pos); err != nil {
				return nil, errTruncated
			}
			m, err := product2(sec, ref)
			if err != nil {
				return nil, err
			}
			m.Offset = start
			m.Length = length
			m.Centre = centre
			m.Discipline = discipline
			out = append(out, m)
		}
		pos += secLen
	}
	return out, nil
}

// product2 decodes product definition templates 4.0, 4.1, 4.8 and 4.11.
// All of them share the layout of the first 34 octets.
func product2(sec []byte, ref time.Time) (Message, error) {
	if len(sec) < 34 {
		return Message{}, fmt.Errorf("product definition section too short (%d)", len(sec))
	}
	m := Message{
		Edition:   2,
		Template:  int(binary.BigEndian.Uint16(sec[7:9])),
		Category:  int(sec[9]),
		Number:    int(sec[10]),
		RefTime:   ref,
		LevelCode: int(sec[22]),
	}
	switch m.Template {
	case 0, 1, 8, 11:
	default:
		return Message{}, fmt.Errorf("unsupported product definition template 4.%d", m.Template)
	}

	if v, ok := scaled(sec[23], binary.BigEndian.Uint32(sec[24:28])); ok {
		m.LevelValue = v
		m.HasLevel = true
	}

	step := signMagnitude32(binary.BigEndian.Uint32(sec[18:22]))
	m.ValidTime = addStep(ref, int(sec[17]), step)

	// Statistically processed products carry the end of the interval.
	endAt := -1
	switch m.Template {
	case 8:
		endAt = 34
	case 11:
		endAt = 37
	}
	if endAt > 0 && len(sec) >= endAt+7 {
		e := sec[endAt:]
		m.ValidTime = time.Date(int(binary.BigEndian.Uint16(e[0:2])), time.Month(e[2]), int(e[3]),
			int(e[4]), int(e[5]), int(e[6]), 0, time.UTC)
	}
	return m, nil
}

// addStep applies a forecast step expressed in a code table 4.4 unit.
func addStep(t time.Time, unit, step int) time.Time {
	switch unit {
	case 0:
		return t.Add(time.Duration(step) * time.Minute)
	case 1:
		return t.Add(time.Duration(step) * time.Hour)
	case 2:
		return t.AddDate(0, 0, step)
	case 3:
		return t.AddDate(0, step, 0)
	case 4:
		return t.AddDate(step, 0, 0)
	case 10:
		return t.Add(time.Duration(step) * 3 * time.Hour)
	case 11:
		return t.Add(time.Duration(step) * 6 * time.Hour)
	case 12:
		return t.Add(time.Duration(step) * 12 * time.Hour)
	case 13, 254:
		return t.Add(time.Duration(step) * time.Second)
	default:
		return t.Add(time.Duration(step) * time.Hour)
	}
}

// scaled decodes a GRIB2 scale factor / scaled value pair.
func scaled(factor byte, value uint32) (float64, bool) {
	if factor == 0xff || value == 0xffffffff {
		return 0, false
	}
	f := int(factor & 0x7f)
	if factor&0x80 != 0 {
		f = -f
	}
	return float64(value) / math.Pow(10, float64(f)), true
}

func signMagnitude32(v uint32) int {
	if v&0x80000000 != 0 {
		return -int(v & 0x7fffffff)
	}
	return int(v)
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
