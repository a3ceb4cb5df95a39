package text

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffRangeType tells whether a range is content being added or removed.
type DiffRangeType int

const (
	DiffRangeAdd DiffRangeType = iota
	DiffRangeDelete
)

// String returns the wire name used by the editor highlight code
func (t DiffRangeType) String() string {
	switch t {
	case DiffRangeAdd:
		return "add"
	case DiffRangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// DiffHighlightType tells whether a range spans whole lines or an inline span.
type DiffHighlightType int

const (
	DiffHighlightLine DiffHighlightType = iota
	DiffHighlightCharacter
)

// String returns the wire name used by the editor highlight code
func (t DiffHighlightType) String() string {
	switch t {
	case DiffHighlightLine:
		return "line"
	case DiffHighlightCharacter:
		return "character"
	default:
		return "unknown"
	}
}

// DiffRange is a typed span of changed text. Delete ranges are positioned in
// the old text, Add ranges in the new text. End is exclusive.
type DiffRange struct {
	Type      DiffRangeType
	Highlight DiffHighlightType
	Start     Point
	End       Point
}

func (r DiffRange) String() string {
	return fmt.Sprintf("%s/%s %s-%s", r.Type, r.Highlight, r.Start, r.End)
}

// rangeList collects ranges for one side of the diff in text order.
// Touching line ranges are merged so a replaced block is one range.
type rangeList struct {
	ranges []DiffRange
}

func (l *rangeList) add(r DiffRange) {
	if r.Start == r.End {
		return
	}
	if n := len(l.ranges); n > 0 {
		last := &l.ranges[n-1]
		if last.Highlight == DiffHighlightLine && r.Highlight == DiffHighlightLine && last.End == r.Start {
			last.End = r.End
			return
		}
	}
	l.ranges = append(l.ranges, r)
}

func lineRange(t DiffRangeType, start Point, s string) DiffRange {
	return DiffRange{Type: t, Highlight: DiffHighlightLine, Start: start, End: advance(start, s)}
}

func charRange(t DiffRangeType, start Point, s string) DiffRange {
	return DiffRange{Type: t, Highlight: DiffHighlightCharacter, Start: start, End: advance(start, s)}
}

// Diff computes the ranges that turn before into after. All Delete ranges
// come first in before's order, then all Add ranges in after's order.
// Removing the Delete ranges from before and then inserting the Add ranges
// (in after's coordinates, ascending) reproduces after.
func Diff(before, after string) []DiffRange {
	if before == after {
		return nil
	}

	dmp := diffmatchpatch.New()

	if r, ok := singleEdit(dmp, before, after); ok {
		return []DiffRange{r}
	}

	chars1, chars2, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(chars1, chars2, false)
	lineDiffs := dmp.DiffCharsToLines(diffs, lineArray)

	var deletes, adds rangeList
	var oldPos, newPos Point

	for i := 0; i < len(lineDiffs); i++ {
		d := lineDiffs[i]
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldPos = advance(oldPos, d.Text)
			newPos = advance(newPos, d.Text)

		case diffmatchpatch.DiffDelete:
			if i+1 < len(lineDiffs) && lineDiffs[i+1].Type == diffmatchpatch.DiffInsert {
				inserted := lineDiffs[i+1].Text
				refineBlock(dmp, d.Text, inserted, oldPos, newPos, &deletes, &adds)
				oldPos = advance(oldPos, d.Text)
				newPos = advance(newPos, inserted)
				i++
				continue
			}
			deletes.add(lineRange(DiffRangeDelete, oldPos, d.Text))
			oldPos = advance(oldPos, d.Text)

		case diffmatchpatch.DiffInsert:
			adds.add(lineRange(DiffRangeAdd, newPos, d.Text))
			newPos = advance(newPos, d.Text)
		}
	}

	return append(deletes.ranges, adds.ranges...)
}

// singleEdit detects a single contiguous insertion or deletion: the shorter
// text is covered by the common prefix and suffix of the two texts. The edit
// is slid to the nearest line or word boundary before it is reported.
func singleEdit(dmp *diffmatchpatch.DiffMatchPatch, before, after string) (DiffRange, bool) {
	r1, r2 := []rune(before), []rune(after)
	prefix := dmp.DiffCommonPrefix(before, after)
	suffix := min(dmp.DiffCommonSuffix(before, after), min(len(r1), len(r2))-prefix)

	var edit diffmatchpatch.Diff
	switch {
	case len(r1) == prefix+suffix:
		edit = diffmatchpatch.Diff{Type: diffmatchpatch.DiffInsert, Text: string(r2[prefix : len(r2)-suffix])}
	case len(r2) == prefix+suffix:
		edit = diffmatchpatch.Diff{Type: diffmatchpatch.DiffDelete, Text: string(r1[prefix : len(r1)-suffix])}
	default:
		return DiffRange{}, false
	}

	var diffs []diffmatchpatch.Diff
	if prefix > 0 {
		diffs = append(diffs, diffmatchpatch.Diff{Type: diffmatchpatch.DiffEqual, Text: string(r1[:prefix])})
	}
	diffs = append(diffs, edit)
	if suffix > 0 {
		diffs = append(diffs, diffmatchpatch.Diff{Type: diffmatchpatch.DiffEqual, Text: string(r1[len(r1)-suffix:])})
	}
	diffs = dmp.DiffCleanupSemanticLossless(diffs)

	var pos Point
	for i, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			pos = advance(pos, d.Text)
			continue
		}
		t := DiffRangeAdd
		if d.Type == diffmatchpatch.DiffDelete {
			t = DiffRangeDelete
		}
		r := charRange(t, pos, d.Text)
		atEnd := i == len(diffs)-1
		// Whole lines: starts a line and ends on a line boundary or at the end of the text
		if r.Start.Column == 0 && (r.End.Column == 0 || atEnd) {
			r.Highlight = DiffHighlightLine
		}
		return r, true
	}
	return DiffRange{}, false
}

// refineBlock handles a deleted block immediately replaced by an inserted
// block, narrowing to character spans where the change is localized.
func refineBlock(dmp *diffmatchpatch.DiffMatchPatch, oldText, newText string, oldPos, newPos Point, deletes, adds *rangeList) {
	charDiffs := dmp.DiffCleanupSemantic(dmp.DiffMain(oldText, newText, false))
	if ins, del, hasEqual := countEdits(charDiffs); hasEqual && ins+del == 1 {
		emitCharRanges(charDiffs, oldPos, newPos, deletes, adds)
		return
	}

	oldLines := splitLinesKeepEnds(oldText)
	newLines := splitLinesKeepEnds(newText)
	if len(oldLines) != len(newLines) {
		deletes.add(lineRange(DiffRangeDelete, oldPos, oldText))
		adds.add(lineRange(DiffRangeAdd, newPos, newText))
		return
	}

	for j := range oldLines {
		refineLinePair(dmp, oldLines[j], newLines[j], oldPos, newPos, deletes, adds)
		oldPos = advance(oldPos, oldLines[j])
		newPos = advance(newPos, newLines[j])
	}
}

// refineLinePair diffs one old line against its replacement.
func refineLinePair(dmp *diffmatchpatch.DiffMatchPatch, oldLine, newLine string, oldPos, newPos Point, deletes, adds *rangeList) {
	if oldLine == newLine {
		return
	}

	oldBody, oldNL := strings.CutSuffix(oldLine, "\n")
	newBody, newNL := strings.CutSuffix(newLine, "\n")
	if oldNL == newNL {
		charDiffs := dmp.DiffCleanupSemantic(dmp.DiffMain(oldBody, newBody, false))
		if isLocalizedChange(charDiffs) {
			emitCharRanges(charDiffs, oldPos, newPos, deletes, adds)
			return
		}
	}

	deletes.add(lineRange(DiffRangeDelete, oldPos, oldLine))
	adds.add(lineRange(DiffRangeAdd, newPos, newLine))
}

// emitCharRanges walks a character diff and records one range per edit.
func emitCharRanges(diffs []diffmatchpatch.Diff, oldPos, newPos Point, deletes, adds *rangeList) {
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldPos = advance(oldPos, d.Text)
			newPos = advance(newPos, d.Text)
		case diffmatchpatch.DiffDelete:
			deletes.add(charRange(DiffRangeDelete, oldPos, d.Text))
			oldPos = advance(oldPos, d.Text)
		case diffmatchpatch.DiffInsert:
			adds.add(charRange(DiffRangeAdd, newPos, d.Text))
			newPos = advance(newPos, d.Text)
		}
	}
}

func countEdits(diffs []diffmatchpatch.Diff) (insertions, deletions int, hasEqual bool) {
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			insertions++
		case diffmatchpatch.DiffDelete:
			deletions++
		case diffmatchpatch.DiffEqual:
			hasEqual = true
		}
	}
	return insertions, deletions, hasEqual
}

// isLocalizedChange reports whether an in-line diff is small enough to be
// shown as character spans instead of a whole-line replacement.
func isLocalizedChange(diffs []diffmatchpatch.Diff) bool {
	insertions, deletions, hasEqual := countEdits(diffs)
	if !hasEqual || insertions > 1 || deletions > 1 {
		return false
	}
	if insertions == 1 && deletions == 1 {
		var deletedText, insertedText string
		for _, d := range diffs {
			switch d.Type {
			case diffmatchpatch.DiffDelete:
				deletedText = d.Text
			case diffmatchpatch.DiffInsert:
				insertedText = d.Text
			}
		}
		return !isComplexModification(deletedText, insertedText)
	}
	return true
}

// isComplexModification determines if a deletion+insertion pair is too complex for simple replacement
func isComplexModification(deletedText, insertedText string) bool {
	deletedWords := len(strings.Fields(deletedText))
	insertedWords := len(strings.Fields(insertedText))

	if deletedWords > ComplexModWordCountThreshold || insertedWords > ComplexModWordCountThreshold {
		return true
	}

	if abs(deletedWords-insertedWords) > MaxWordCountDifference {
		return true
	}

	deletedLen := runeLen(deletedText)
	insertedLen := runeLen(insertedText)

	if deletedLen == 0 {
		return insertedLen > MinLengthForEmptyDeletion
	}

	lengthRatio := float64(insertedLen) / float64(deletedLen)

	// Single words get more slack than phrases
	if deletedWords == 1 && insertedWords == 1 {
		return lengthRatio > SingleWordMaxRatio || lengthRatio < SingleWordMinRatio
	}

	return lengthRatio > MultiWordMaxRatio || lengthRatio < MultiWordMinRatio
}

// splitLinesKeepEnds splits s after every newline, keeping the newline on
// each line. A trailing line without a newline is kept as is.
func splitLinesKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
