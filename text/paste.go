package text

import (
	"fmt"
	"strings"
)

// Direction selects where a line-mode paste lands relative to the cursor line.
type Direction string

const (
	DirectionNone  Direction = ""
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// ParseDirection converts a wire value into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(s)) {
	case DirectionNone:
		return DirectionNone, nil
	case DirectionAbove:
		return DirectionAbove, nil
	case DirectionBelow:
		return DirectionBelow, nil
	}
	return DirectionNone, fmt.Errorf("unknown paste direction %q", s)
}

// PasteResult describes where pasted text goes and where the cursor ends up.
// Offsets are rune offsets into the source text.
type PasteResult struct {
	InsertionOffset int
	CursorOffset    int
	Text            string // pasted text, with a newline appended for directional pastes
}

// Apply returns source with the pasted text inserted.
func (p PasteResult) Apply(source string) string {
	runes := []rune(source)
	var sb strings.Builder
	sb.Grow(len(source) + len(p.Text))
	sb.WriteString(string(runes[:p.InsertionOffset]))
	sb.WriteString(p.Text)
	sb.WriteString(string(runes[p.InsertionOffset:]))
	return sb.String()
}

// ResolvePaste computes the insertion point for pasting text into source with
// the cursor at the given rune offset.
//
// Text ending in a newline, or any text pasted with a direction, is a line
// paste: it goes to the start of the next line (below, the default) or the
// start of the cursor's line (above). Anything else is inserted at the cursor.
// The cursor lands at the end of the pasted text, before its trailing newline.
func ResolvePaste(source string, cursor int, text string, dir Direction) (PasteResult, error) {
	runes := []rune(source)
	if cursor < 0 || cursor > len(runes) {
		return PasteResult{}, fmt.Errorf("%w: cursor %d outside [0, %d]", ErrInvalidOffset, cursor, len(runes))
	}

	if dir != DirectionNone && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	insertion := cursor
	if strings.HasSuffix(text, "\n") {
		if dir == DirectionNone {
			dir = DirectionBelow
		}
		switch dir {
		case DirectionBelow:
			insertion = nextLineStart(runes, cursor)
		case DirectionAbove:
			insertion = lineStart(runes, cursor)
		}
	}

	updated := insertion + runeLen(text)
	if strings.HasSuffix(text, "\n") {
		updated--
	}

	return PasteResult{
		InsertionOffset: insertion,
		CursorOffset:    updated,
		Text:            text,
	}, nil
}

// nextLineStart returns the offset just past the first newline at or after
// pos, or the end of the text if there is none.
func nextLineStart(runes []rune, pos int) int {
	for i := pos; i < len(runes); i++ {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	return len(runes)
}

// lineStart returns the offset of the first character of the line holding
// pos. A cursor sitting on a line's newline belongs to that line.
func lineStart(runes []rune, pos int) int {
	for pos > 0 && runes[pos-1] != '\n' {
		pos--
	}
	return pos
}
