package text

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var ErrInvalidEdit = errors.New("invalid edit")

// Edit describes a single text mutation: the bytes [StartByte, OldEndByte)
// of the old document were replaced by [StartByte, NewEndByte) of the new one.
type Edit struct {
	StartByte   int
	OldEndByte  int
	NewEndByte  int
	StartPoint  Point
	OldEndPoint Point
	NewEndPoint Point
}

func (e Edit) String() string {
	return fmt.Sprintf("edit[%d, %d) -> [%d, %d)", e.StartByte, e.OldEndByte, e.StartByte, e.NewEndByte)
}

// Delta is the change in document length.
func (e Edit) Delta() int {
	return e.NewEndByte - e.OldEndByte
}

func (e Edit) Validate() error {
	if e.StartByte < 0 || e.OldEndByte < e.StartByte || e.NewEndByte < e.StartByte {
		return fmt.Errorf("%w: %s", ErrInvalidEdit, e)
	}
	if e.OldEndPoint.Compare(e.StartPoint) < 0 || e.NewEndPoint.Compare(e.StartPoint) < 0 {
		return fmt.Errorf("%w: %s: end point before start point", ErrInvalidEdit, e)
	}
	return nil
}

// OldRange is the replaced span in old-document coordinates.
func (e Edit) OldRange() Range {
	return Range{StartByte: e.StartByte, EndByte: e.OldEndByte, StartPoint: e.StartPoint, EndPoint: e.OldEndPoint}
}

// NewRange is the inserted span in new-document coordinates.
func (e Edit) NewRange() Range {
	return Range{StartByte: e.StartByte, EndByte: e.NewEndByte, StartPoint: e.StartPoint, EndPoint: e.NewEndPoint}
}

// Dirty reports whether the old span [start, end) depends on bytes the edit
// replaced. A span ending exactly at the edit start is clean, and so is one
// starting at the old end.
func (e Edit) Dirty(start, end int) bool {
	return start < e.OldEndByte && end > e.StartByte
}

// MapByte moves an old-document offset into new-document coordinates.
// Offsets strictly inside the replaced span have no counterpart.
func (e Edit) MapByte(off int) (int, bool) {
	p, ok := e.MapPosition(Position{Byte: off})
	return p.Byte, ok
}

// MapPoint moves an old-document point that is not inside the replaced span.
func (e Edit) MapPoint(p Point) Point {
	if p.Compare(e.StartPoint) <= 0 {
		return p
	}
	if p.Row == e.OldEndPoint.Row {
		return Point{Row: e.NewEndPoint.Row, Column: e.NewEndPoint.Column + p.Column - e.OldEndPoint.Column}
	}
	return Point{Row: p.Row + e.NewEndPoint.Row - e.OldEndPoint.Row, Column: p.Column}
}

// MapPosition moves an old-document position that lies outside the replaced
// span into new-document coordinates.
func (e Edit) MapPosition(p Position) (Position, bool) {
	switch {
	case p.Byte <= e.StartByte:
		return p, true
	case p.Byte >= e.OldEndByte:
		return Position{Byte: p.Byte + e.Delta(), Point: e.MapPoint(p.Point)}, true
	}
	return Position{}, false
}

// UnmapByte moves a new-document offset back into old-document coordinates.
// Offsets inside inserted text have no old counterpart. At the start of a
// pure deletion the offset maps to the old end, where the surviving text
// begins.
func (e Edit) UnmapByte(off int) (int, bool) {
	if off >= e.NewEndByte {
		return off - e.Delta(), true
	}
	if off < e.StartByte {
		return off, true
	}
	return 0, false
}

// Apply returns src with the edit applied, taking the inserted bytes from
// replacement.
func (e Edit) Apply(src, replacement []byte) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.OldEndByte > len(src) || len(replacement) != e.NewEndByte-e.StartByte {
		return nil, fmt.Errorf("%w: %s does not fit a %d byte document", ErrInvalidEdit, e, len(src))
	}
	out := make([]byte, 0, len(src)+e.Delta())
	out = append(out, src[:e.StartByte]...)
	out = append(out, replacement...)
	out = append(out, src[e.OldEndByte:]...)
	return out, nil
}

// EditFor replaces src[start:oldEnd] by replacement and returns the edit
// describing it together with the new document.
func EditFor(src []byte, start, oldEnd int, replacement []byte) (Edit, []byte, error) {
	if start < 0 || oldEnd < start || oldEnd > len(src) {
		return Edit{}, nil, fmt.Errorf("%w: [%d, %d) outside a %d byte document", ErrInvalidEdit, start, oldEnd, len(src))
	}
	startPoint := PointAt(src, start)
	e := Edit{
		StartByte:   start,
		OldEndByte:  oldEnd,
		NewEndByte:  start + len(replacement),
		StartPoint:  startPoint,
		OldEndPoint: PointAt(src, oldEnd),
		NewEndPoint: startPoint.Advance(Measure(replacement).Extent),
	}
	out, err := e.Apply(src, replacement)
	if err != nil {
		return Edit{}, nil, err
	}
	return e, out, nil
}

// Diff computes the single edit turning old into new by trimming their common
// prefix and suffix. The edit boundaries never split a UTF-8 sequence. It
// reports false when the documents are identical.
func Diff(old, new []byte) (Edit, bool) {
	n := len(old)
	if len(new) < n {
		n = len(new)
	}
	prefix := 0
	for prefix < n && old[prefix] == new[prefix] {
		prefix++
	}
	if prefix == len(old) && prefix == len(new) {
		return Edit{}, false
	}
	for prefix > 0 && !(runeStart(old, prefix) && runeStart(new, prefix)) {
		prefix--
	}
	suffix := 0
	for suffix < n-prefix && old[len(old)-1-suffix] == new[len(new)-1-suffix] {
		suffix++
	}
	for suffix > 0 && !(runeStart(old, len(old)-suffix) && runeStart(new, len(new)-suffix)) {
		suffix--
	}
	startPoint := PointAt(old, prefix)
	return Edit{
		StartByte:   prefix,
		OldEndByte:  len(old) - suffix,
		NewEndByte:  len(new) - suffix,
		StartPoint:  startPoint,
		OldEndPoint: PointAt(old, len(old)-suffix),
		NewEndPoint: PointAt(new, len(new)-suffix),
	}, true
}

func runeStart(b []byte, off int) bool {
	return off >= len(b) || utf8.RuneStart(b[off])
}

// ValidateBatch checks every edit of a batch. Edits are applied in order,
// each expressed in the coordinates produced by the previous ones.
func ValidateBatch(edits []Edit) error {
	for i, e := range edits {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("edit %d: %w", i, err)
		}
	}
	return nil
}

// UnmapBatch moves an offset of the final document back through a batch of
// sequential edits into the coordinates of the original document.
func UnmapBatch(edits []Edit, off int) (int, bool) {
	for i := len(edits) - 1; i >= 0; i-- {
		var ok bool
		off, ok = edits[i].UnmapByte(off)
		if !ok {
			return 0, false
		}
	}
	return off, true
}

// MapBatch moves an offset of the original document forward through a batch
// of sequential edits.
func MapBatch(edits []Edit, off int) (int, bool) {
	for _, e := range edits {
		var ok bool
		off, ok = e.MapByte(off)
		if !ok {
			return 0, false
		}
	}
	return off, true
}
