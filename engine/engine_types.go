package engine

import (
	"context"
	"time"

	"editsync/text"
	"editsync/types"
)

// Editor is the capability set the update orchestrator drives.
// Implemented by buffer.NvimEditor for Neovim integration.
// Rows and columns are 0-indexed; columns count runes.
type Editor interface {
	Focus(ctx context.Context) error
	ActiveText(ctx context.Context) (string, bool) // false when no editable buffer is active
	SetSourceAndCursor(ctx context.Context, before, after string, row, col int) error
	HighlightRanges(ctx context.Context, ranges []text.DiffRange) time.Duration // returns how long the highlight stays visible
	ScrollToCursor(ctx context.Context) error
	Select(ctx context.Context, startRow, startCol, endRow, endCol int) error
}

// Host covers the editor commands that do not go through the diff pipeline:
// history, files, tabs, windows and the clipboard.
type Host interface {
	Undo(ctx context.Context) error
	Redo(ctx context.Context) error
	Save(ctx context.Context) error
	CreateTab(ctx context.Context) error
	CloseTab(ctx context.Context) error
	NextTab(ctx context.Context) error
	PreviousTab(ctx context.Context) error
	SwitchTab(ctx context.Context, index int) error // 1-indexed, like :tabnext N
	Split(ctx context.Context, direction string) error
	Window(ctx context.Context, direction string) error
	CloseWindow(ctx context.Context) error
	GoToDefinition(ctx context.Context) error
	Copy(ctx context.Context, text string) error
	Clipboard(ctx context.Context) (string, error)
	EditorState(ctx context.Context) (types.EditorState, error)
}

// Responder delivers the outcome of a queued command back to its sender.
type Responder interface {
	Respond(id string, result any, err error)
}

// Session is everything one connected editor provides.
type Session interface {
	Editor
	Host
	Responder
}

// AnimationSetting is the single preference the orchestrator consults.
// Implemented by types.Settings.
type AnimationSetting interface {
	AnimationsEnabled() bool
}

// Snapshot is the unit of work for one update: the text the editor shows,
// the text it should show, and where the cursor goes in the latter.
type Snapshot struct {
	Before string
	After  string
	Cursor int // rune offset into After
}

// MinimalDelay separates the delete and add phases when there is nothing to
// show being deleted, and is the floor for any highlight duration.
const MinimalDelay = time.Millisecond

type EngineConfig struct {
	MinimalDelay time.Duration // 0 = MinimalDelay
	QueueSize    int           // buffered commands awaiting the event loop (0 = 100)
}
