package engine

import (
	"context"
	"fmt"
	"time"

	"editsync/logger"
	"editsync/text"
)

// UpdateEditor replaces the editor's text with source and puts the cursor at
// the given rune offset into source.
//
// With animations on, the text that is going away is highlighted first, the
// new text is applied once that highlight has had its time, and then the new
// text is highlighted. The steps always run in this order and each waits for
// the previous one. Concurrent calls queue behind each other.
func (e *Engine) UpdateEditor(ctx context.Context, source string, cursor int) error {
	defer logger.Trace("engine.UpdateEditor")()

	e.updateMu.Lock()
	defer e.updateMu.Unlock()

	editor := e.editor()
	if editor == nil {
		return ErrEditorUnavailable
	}
	return e.update(ctx, editor, e.focusAndRead(ctx, editor), source, cursor)
}

// focusAndRead moves focus to an editable window and returns its text, or ""
// when none is available. Callers hold updateMu.
func (e *Engine) focusAndRead(ctx context.Context, editor Editor) string {
	if err := editor.Focus(ctx); err != nil {
		logger.Warn("%v: focus failed, continuing: %v", ErrEditorUnavailable, err)
	}

	before, ok := editor.ActiveText(ctx)
	if !ok {
		logger.Warn("%v: no active text, diffing against empty text", ErrEditorUnavailable)
		return ""
	}
	return before
}

// update animates before into source. Callers hold updateMu.
func (e *Engine) update(ctx context.Context, editor Editor, before, source string, cursor int) error {
	snap := Snapshot{Before: before, After: source, Cursor: cursor}
	target, err := text.OffsetToPoint(snap.After, snap.Cursor)
	if err != nil {
		return fmt.Errorf("update editor: %w", err)
	}

	if !e.settings.AnimationsEnabled() {
		return e.applyAndScroll(ctx, editor, snap, target, nil)
	}

	ranges := text.Diff(snap.Before, snap.After)
	if len(ranges) == 0 {
		ranges = []text.DiffRange{fallbackRange(target.Row)}
	}
	addRanges, deleteRanges := partitionRanges(ranges)
	logger.Debug("update: %d delete ranges, %d add ranges, cursor %s", len(deleteRanges), len(addRanges), target)

	timeout := editor.HighlightRanges(ctx, deleteRanges)
	delay := e.minimalDelay()
	if len(deleteRanges) > 0 {
		delay = e.clampDelay(timeout)
	}
	select {
	case <-e.after(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	return e.applyAndScroll(ctx, editor, snap, target, addRanges)
}

// applyAndScroll sets the new text and cursor, highlights addRanges (if any)
// and scrolls the cursor into view.
func (e *Engine) applyAndScroll(ctx context.Context, editor Editor, snap Snapshot, target text.Point, addRanges []text.DiffRange) error {
	if err := editor.SetSourceAndCursor(ctx, snap.Before, snap.After, target.Row, target.Column); err != nil {
		return fmt.Errorf("set source and cursor: %w", err)
	}
	if addRanges != nil {
		editor.HighlightRanges(ctx, addRanges)
	}
	if err := editor.ScrollToCursor(ctx); err != nil {
		return fmt.Errorf("scroll to cursor: %w", err)
	}
	return nil
}

// fallbackRange highlights the cursor's line when the text did not change,
// so the user still sees that the command landed.
func fallbackRange(row int) text.DiffRange {
	return text.DiffRange{
		Type:      text.DiffRangeAdd,
		Highlight: text.DiffHighlightLine,
		Start:     text.Point{Row: row, Column: 0},
		End:       text.Point{Row: row + 1, Column: 0},
	}
}

func partitionRanges(ranges []text.DiffRange) (adds, deletes []text.DiffRange) {
	for _, r := range ranges {
		switch r.Type {
		case text.DiffRangeAdd:
			adds = append(adds, r)
		case text.DiffRangeDelete:
			deletes = append(deletes, r)
		}
	}
	return adds, deletes
}

func (e *Engine) minimalDelay() time.Duration {
	if e.config.MinimalDelay > 0 {
		return e.config.MinimalDelay
	}
	return MinimalDelay
}

// clampDelay guards against adapters reporting a non-positive duration.
func (e *Engine) clampDelay(d time.Duration) time.Duration {
	if floor := e.minimalDelay(); d < floor {
		logger.Debug("highlight duration %v below floor, using %v", d, floor)
		return floor
	}
	return d
}
