package text

import (
	"fmt"
	"sort"
)

// Range is a half-open byte span [StartByte, EndByte) with its points.
type Range struct {
	StartByte  int
	EndByte    int
	StartPoint Point
	EndPoint   Point
}

// RangeOf builds the range covering l bytes from start.
func RangeOf(start Position, l Length) Range {
	end := start.Advance(l)
	return Range{
		StartByte:  start.Byte,
		EndByte:    end.Byte,
		StartPoint: start.Point,
		EndPoint:   end.Point,
	}
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.StartByte, r.EndByte)
}

func (r Range) Len() int {
	return r.EndByte - r.StartByte
}

func (r Range) IsEmpty() bool {
	return r.StartByte == r.EndByte
}

func (r Range) Start() Position {
	return Position{Byte: r.StartByte, Point: r.StartPoint}
}

func (r Range) End() Position {
	return Position{Byte: r.EndByte, Point: r.EndPoint}
}

// Contains reports whether off lies inside r.
func (r Range) Contains(off int) bool {
	return off >= r.StartByte && off < r.EndByte
}

// Covers reports whether o lies entirely inside r.
func (r Range) Covers(o Range) bool {
	return r.StartByte <= o.StartByte && o.EndByte <= r.EndByte
}

// Intersects reports whether r and o share at least one byte.
func (r Range) Intersects(o Range) bool {
	return r.StartByte < o.EndByte && o.StartByte < r.EndByte
}

// Touches reports whether r and o overlap or are adjacent.
func (r Range) Touches(o Range) bool {
	return r.StartByte <= o.EndByte && o.StartByte <= r.EndByte
}

// Union returns the smallest range covering r and o.
func (r Range) Union(o Range) Range {
	out := r
	if o.StartByte < out.StartByte {
		out.StartByte, out.StartPoint = o.StartByte, o.StartPoint
	}
	if o.EndByte > out.EndByte {
		out.EndByte, out.EndPoint = o.EndByte, o.EndPoint
	}
	return out
}

// MergeRanges orders ranges by start and folds touching neighbours together.
func MergeRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartByte < sorted[j].StartByte
	})
	out := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if last.Touches(r) {
			*last = last.Union(r)
			continue
		}
		out = append(out, r)
	}
	return out
}
