// Package text holds the position, range and edit values shared by the
// lexer, the parse engine and the syntax tree.
//
// Columns count runes, not bytes: a multi-byte UTF-8 sequence advances the
// column by one, and so does every byte of an invalid sequence.
package text

import (
	"fmt"
	"unicode/utf8"
)

// Point is a zero-based row/column location.
type Point struct {
	Row    int
	Column int
}

func (p Point) String() string {
	return fmt.Sprintf("%d:%d", p.Row, p.Column)
}

// Compare returns -1, 0 or +1 depending on whether p is before, equal to or
// after q.
func (p Point) Compare(q Point) int {
	switch {
	case p.Row < q.Row:
		return -1
	case p.Row > q.Row:
		return 1
	case p.Column < q.Column:
		return -1
	case p.Column > q.Column:
		return 1
	}
	return 0
}

// Advance moves p forward by a relative extent.
func (p Point) Advance(extent Point) Point {
	if extent.Row > 0 {
		return Point{Row: p.Row + extent.Row, Column: extent.Column}
	}
	return Point{Row: p.Row, Column: p.Column + extent.Column}
}

// Length is the relative size of a span of text.
type Length struct {
	Bytes  int
	Extent Point
}

// Add concatenates two lengths.
func (l Length) Add(m Length) Length {
	return Length{Bytes: l.Bytes + m.Bytes, Extent: l.Extent.Advance(m.Extent)}
}

func (l Length) IsZero() bool {
	return l.Bytes == 0
}

// Measure returns the length of b.
func Measure(b []byte) Length {
	return Length{Bytes: len(b), Extent: PointAt(b, len(b))}
}

// PointAt returns the point of byte offset off in src. Offsets past the end
// are clamped.
func PointAt(src []byte, off int) Point {
	if off > len(src) {
		off = len(src)
	}
	if off < 0 {
		off = 0
	}
	row := 0
	lineStart := 0
	for i := 0; i < off; i++ {
		if src[i] == '\n' {
			row++
			lineStart = i + 1
		}
	}
	return Point{Row: row, Column: utf8.RuneCount(src[lineStart:off])}
}

// ByteAt returns the byte offset of point p in src. A column past the end of
// its line resolves to the line end; a row past the last line resolves to
// len(src).
func ByteAt(src []byte, p Point) int {
	off := 0
	for row := 0; row < p.Row; row++ {
		i := indexByte(src[off:], '\n')
		if i < 0 {
			return len(src)
		}
		off += i + 1
	}
	for col := 0; col < p.Column && off < len(src); col++ {
		if src[off] == '\n' {
			break
		}
		_, size := utf8.DecodeRune(src[off:])
		off += size
	}
	return off
}

func indexByte(b []byte, c byte) int {
	for i := range b {
		if b[i] == c {
			return i
		}
	}
	return -1
}

// Position is an absolute location: a byte offset plus its point.
type Position struct {
	Byte  int
	Point Point
}

func (p Position) String() string {
	return fmt.Sprintf("%s@%d", p.Point, p.Byte)
}

// Advance moves p forward by l.
func (p Position) Advance(l Length) Position {
	return Position{Byte: p.Byte + l.Bytes, Point: p.Point.Advance(l.Extent)}
}
