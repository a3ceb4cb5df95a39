package text

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrInvalidOffset is returned when a linear offset falls outside [0, len(text)].
	ErrInvalidOffset = errors.New("invalid offset")
	// ErrInvalidPoint is returned when a row/column pair does not exist in a text.
	ErrInvalidPoint = errors.New("invalid point")
)

// Point is a 0-indexed row/column position. Column counts runes since the
// last newline (or the start of the text).
type Point struct {
	Row    int
	Column int
}

// Compare orders points by row, then column. Returns -1, 0 or 1.
func (p Point) Compare(o Point) int {
	switch {
	case p.Row < o.Row:
		return -1
	case p.Row > o.Row:
		return 1
	case p.Column < o.Column:
		return -1
	case p.Column > o.Column:
		return 1
	}
	return 0
}

// Less reports whether p sorts before o.
func (p Point) Less(o Point) bool { return p.Compare(o) < 0 }

func (p Point) String() string {
	return fmt.Sprintf("%d:%d", p.Row, p.Column)
}

// OffsetToPoint converts a rune offset into text to a row/column pair.
func OffsetToPoint(text string, offset int) (Point, error) {
	if offset < 0 {
		return Point{}, fmt.Errorf("%w: %d is negative", ErrInvalidOffset, offset)
	}

	var p Point
	i := 0
	for _, r := range text {
		if i == offset {
			return p, nil
		}
		if r == '\n' {
			p.Row++
			p.Column = 0
		} else {
			p.Column++
		}
		i++
	}
	if i == offset {
		return p, nil
	}
	return Point{}, fmt.Errorf("%w: %d exceeds text length %d", ErrInvalidOffset, offset, i)
}

// PointToOffset converts a row/column pair back to a rune offset into text.
// The column may point at the line's end (just before its newline).
func PointToOffset(text string, p Point) (int, error) {
	if p.Row < 0 || p.Column < 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPoint, p)
	}

	row, col, offset := 0, 0, 0
	for _, r := range text {
		if row == p.Row {
			if col == p.Column {
				return offset, nil
			}
			if r == '\n' {
				return 0, fmt.Errorf("%w: column %d past end of row %d", ErrInvalidPoint, p.Column, p.Row)
			}
		}
		if r == '\n' {
			row++
			col = 0
		} else {
			col++
		}
		offset++
	}
	if row == p.Row && col == p.Column {
		return offset, nil
	}
	return 0, fmt.Errorf("%w: %s not in text", ErrInvalidPoint, p)
}

// runeLen returns the number of runes in s.
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// advance returns the point reached after walking over s starting at p.
func advance(p Point, s string) Point {
	for _, r := range s {
		if r == '\n' {
			p.Row++
			p.Column = 0
		} else {
			p.Column++
		}
	}
	return p
}
