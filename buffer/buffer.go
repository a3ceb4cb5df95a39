package buffer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"editsync/logger"
	"editsync/text"
	"editsync/types"

	"github.com/neovim/go-client/nvim"
)

// ErrNoClient is returned when an operation runs before SetClient.
var ErrNoClient = errors.New("nvim client not set")

// ErrInvalidDirection is returned for split and window directions other than
// left, right, up and down.
var ErrInvalidDirection = errors.New("invalid direction")

type Config struct {
	NsID              int
	HighlightDuration time.Duration
}

// NvimEditor drives the current Neovim window. It implements engine.Session.
// Rows and columns crossing its API are 0-indexed runes; conversion to
// Neovim's 1-indexed rows and byte columns happens here.
type NvimEditor struct {
	client *nvim.Nvim // stored internally, set via SetClient
	config Config
}

func New(config Config) *NvimEditor {
	return &NvimEditor{config: config}
}

// SetClient stores the nvim client for all editor operations
func (b *NvimEditor) SetClient(n *nvim.Nvim) {
	b.client = n
}

func (b *NvimEditor) ready(ctx context.Context) error {
	if b.client == nil {
		return ErrNoClient
	}
	return ctx.Err()
}

// Focus moves out of special windows (help, quickfix, terminals) back to the
// previous window so edits land in a file buffer.
func (b *NvimEditor) Focus(ctx context.Context) error {
	if err := b.ready(ctx); err != nil {
		return err
	}
	batch := b.client.NewBatch()
	batch.ExecLua(`
		if vim.bo.buftype ~= '' then
			vim.cmd('wincmd p')
		end
	`, nil, nil)
	return batch.Execute()
}

// ActiveText returns the current buffer's lines joined by "\n". It reports
// false when the buffer is not a modifiable file buffer.
func (b *NvimEditor) ActiveText(ctx context.Context) (string, bool) {
	defer logger.Trace("buffer.ActiveText")()
	if err := b.ready(ctx); err != nil {
		return "", false
	}

	lines, editable, err := b.readLines()
	if err != nil {
		logger.Error("error reading buffer: %v", err)
		return "", false
	}
	if !editable {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

func (b *NvimEditor) readLines() (lines []string, editable bool, err error) {
	batch := b.client.NewBatch()
	var raw [][]byte
	batch.BufferLines(nvim.Buffer(0), 0, -1, false, &raw)
	batch.ExecLua(editableLua, &editable, nil)
	if err := batch.Execute(); err != nil {
		return nil, false, err
	}
	return bytesToLines(raw), editable, nil
}

const editableLua = `return vim.bo.buftype == '' and vim.bo.modifiable`

// SetSourceAndCursor replaces the lines that differ between before and after
// and moves the cursor. Lines outside the changed span are left untouched so
// marks and folds on them survive.
func (b *NvimEditor) SetSourceAndCursor(ctx context.Context, before, after string, row, col int) error {
	defer logger.Trace("buffer.SetSourceAndCursor")()
	if err := b.ready(ctx); err != nil {
		return err
	}

	oldLines := strings.Split(before, "\n")
	newLines := strings.Split(after, "\n")
	start, oldEnd, newEnd := changedLineSpan(oldLines, newLines)

	batch := b.client.NewBatch()
	batch.ClearBufferNamespace(nvim.Buffer(0), b.config.NsID, 0, -1)
	if start < oldEnd || start < newEnd {
		batch.SetBufferLines(nvim.Buffer(0), start, oldEnd, false, linesToBytes(newLines[start:newEnd]))
	}
	cursorLine := ""
	if row < len(newLines) {
		cursorLine = newLines[row]
	}
	batch.SetWindowCursor(nvim.Window(0), [2]int{row + 1, byteColumn(cursorLine, col)})
	return batch.Execute()
}

// ScrollToCursor centers the cursor line in the window
func (b *NvimEditor) ScrollToCursor(ctx context.Context) error {
	if err := b.ready(ctx); err != nil {
		return err
	}
	batch := b.client.NewBatch()
	batch.ExecLua("vim.cmd('normal! zz')", nil, nil)
	return batch.Execute()
}

// Select visually selects from the start point up to, not including, the end
// point. Equal points just move the cursor.
func (b *NvimEditor) Select(ctx context.Context, startRow, startCol, endRow, endCol int) error {
	if err := b.ready(ctx); err != nil {
		return err
	}

	lines, _, err := b.readLines()
	if err != nil {
		return err
	}

	start := [2]int{startRow + 1, byteColumn(lineAt(lines, startRow), startCol)}
	var end any // nil leaves the selection empty
	if startRow != endRow || startCol != endCol {
		r, c := inclusiveEnd(lines, endRow, endCol)
		end = [2]int{r + 1, c}
	}

	batch := b.client.NewBatch()
	batch.ExecLua(selectLua, nil, start, end)
	return batch.Execute()
}

const selectLua = `
	local start, finish = ...
	local mode = vim.api.nvim_get_mode().mode
	if mode:match('^[vV\22]') then
		vim.cmd('normal! \27')
	end
	vim.api.nvim_win_set_cursor(0, start)
	if finish ~= nil then
		vim.cmd('normal! v')
		vim.api.nvim_win_set_cursor(0, finish)
	end
`

// Host operations

var splitCommands = map[string]string{
	"left":  "leftabove vsplit",
	"right": "rightbelow vsplit",
	"up":    "leftabove split",
	"down":  "rightbelow split",
}

var windowCommands = map[string]string{
	"left":  "wincmd h",
	"right": "wincmd l",
	"up":    "wincmd k",
	"down":  "wincmd j",
}

func (b *NvimEditor) exCommand(ctx context.Context, cmd string) error {
	if err := b.ready(ctx); err != nil {
		return err
	}
	logger.Debug("ex command: %s", cmd)
	batch := b.client.NewBatch()
	batch.ExecLua("vim.cmd(...)", nil, cmd)
	return batch.Execute()
}

func (b *NvimEditor) Undo(ctx context.Context) error        { return b.exCommand(ctx, "undo") }
func (b *NvimEditor) Redo(ctx context.Context) error        { return b.exCommand(ctx, "redo") }
func (b *NvimEditor) Save(ctx context.Context) error        { return b.exCommand(ctx, "write") }
func (b *NvimEditor) CreateTab(ctx context.Context) error   { return b.exCommand(ctx, "tabnew") }
func (b *NvimEditor) CloseTab(ctx context.Context) error    { return b.exCommand(ctx, "tabclose") }
func (b *NvimEditor) NextTab(ctx context.Context) error     { return b.exCommand(ctx, "tabnext") }
func (b *NvimEditor) PreviousTab(ctx context.Context) error { return b.exCommand(ctx, "tabprevious") }
func (b *NvimEditor) CloseWindow(ctx context.Context) error { return b.exCommand(ctx, "close") }

func (b *NvimEditor) SwitchTab(ctx context.Context, index int) error {
	return b.exCommand(ctx, fmt.Sprintf("tabnext %d", index))
}

func (b *NvimEditor) Split(ctx context.Context, direction string) error {
	cmd, ok := splitCommands[strings.ToLower(direction)]
	if !ok {
		return fmt.Errorf("split: %w %q", ErrInvalidDirection, direction)
	}
	return b.exCommand(ctx, cmd)
}

func (b *NvimEditor) Window(ctx context.Context, direction string) error {
	cmd, ok := windowCommands[strings.ToLower(direction)]
	if !ok {
		return fmt.Errorf("window: %w %q", ErrInvalidDirection, direction)
	}
	return b.exCommand(ctx, cmd)
}

func (b *NvimEditor) GoToDefinition(ctx context.Context) error {
	if err := b.ready(ctx); err != nil {
		return err
	}
	batch := b.client.NewBatch()
	batch.ExecLua("vim.lsp.buf.definition()", nil, nil)
	return batch.Execute()
}

// Copy writes text to the system clipboard register
func (b *NvimEditor) Copy(ctx context.Context, text string) error {
	if err := b.ready(ctx); err != nil {
		return err
	}
	batch := b.client.NewBatch()
	batch.ExecLua("vim.fn.setreg('+', ...)", nil, text)
	return batch.Execute()
}

// Clipboard reads the system clipboard register
func (b *NvimEditor) Clipboard(ctx context.Context) (string, error) {
	if err := b.ready(ctx); err != nil {
		return "", err
	}
	var contents string
	batch := b.client.NewBatch()
	batch.ExecLua("return vim.fn.getreg('+')", &contents, nil)
	if err := batch.Execute(); err != nil {
		return "", err
	}
	return contents, nil
}

// EditorState reports the current buffer text, cursor offset and file name
func (b *NvimEditor) EditorState(ctx context.Context) (types.EditorState, error) {
	defer logger.Trace("buffer.EditorState")()
	if err := b.ready(ctx); err != nil {
		return types.EditorState{}, err
	}

	batch := b.client.NewBatch()
	var raw [][]byte
	var cursor [2]int
	var name string
	var editable bool
	batch.BufferLines(nvim.Buffer(0), 0, -1, false, &raw)
	batch.WindowCursor(nvim.Window(0), &cursor)
	batch.BufferName(nvim.Buffer(0), &name)
	batch.ExecLua(editableLua, &editable, nil)
	if err := batch.Execute(); err != nil {
		return types.EditorState{}, err
	}

	return editorState(bytesToLines(raw), cursor, name, editable), nil
}

func editorState(lines []string, cursor [2]int, name string, editable bool) types.EditorState {
	source := strings.Join(lines, "\n")
	row := cursor[0] - 1
	p := text.Point{Row: row, Column: runeColumn(lineAt(lines, row), cursor[1])}
	offset, err := text.PointToOffset(source, p)
	if err != nil {
		logger.Warn("cursor %s outside buffer: %v", p, err)
		offset = 0
	}
	return types.EditorState{
		Source:    source,
		Cursor:    offset,
		Filename:  name,
		Available: editable,
	}
}

// RegisterCommandHandler registers a handler for editsync_command notifications.
// Each notification carries one JSON-encoded command.
func (b *NvimEditor) RegisterCommandHandler(handler func(raw string)) error {
	if b.client == nil {
		return ErrNoClient
	}
	return b.client.RegisterHandler("editsync_command", func(_ *nvim.Nvim, raw string) {
		handler(raw)
	})
}

// Respond sends a command's outcome back to the Lua side
func (b *NvimEditor) Respond(id string, result any, err error) {
	var errMsg any
	if err != nil {
		errMsg = err.Error()
	}
	b.executeLuaFunction("require('editsync').on_response(...)", id, toLuaValue(result), errMsg)
}

// toLuaValue round-trips v through JSON so struct json tags become Lua table keys.
func toLuaValue(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("error encoding result: %v", err)
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		logger.Error("error decoding result: %v", err)
		return nil
	}
	return out
}

// Internal helper methods

func (b *NvimEditor) executeLuaFunction(luaCode string, args ...any) {
	if b.client == nil {
		return
	}
	batch := b.client.NewBatch()
	if len(args) > 0 {
		batch.ExecLua(luaCode, nil, args...)
	} else {
		batch.ExecLua(luaCode, nil, nil)
	}
	if err := batch.Execute(); err != nil {
		logger.Error("error executing lua function: %v", err)
	}
}

func bytesToLines(raw [][]byte) []string {
	lines := make([]string, len(raw))
	for i, line := range raw {
		lines[i] = string(line)
	}
	return lines
}

func linesToBytes(lines []string) [][]byte {
	out := make([][]byte, len(lines))
	for i, line := range lines {
		out[i] = []byte(line)
	}
	return out
}

func lineAt(lines []string, row int) string {
	if row < 0 || row >= len(lines) {
		return ""
	}
	return lines[row]
}

// changedLineSpan trims the lines shared at both ends and returns the
// replaced span: oldLines[start:oldEnd] becomes newLines[start:newEnd].
func changedLineSpan(oldLines, newLines []string) (start, oldEnd, newEnd int) {
	for start < len(oldLines) && start < len(newLines) && oldLines[start] == newLines[start] {
		start++
	}
	oldEnd, newEnd = len(oldLines), len(newLines)
	for oldEnd > start && newEnd > start && oldLines[oldEnd-1] == newLines[newEnd-1] {
		oldEnd--
		newEnd--
	}
	return start, oldEnd, newEnd
}

// byteColumn converts a rune column to a byte column, clamped to the line.
func byteColumn(line string, col int) int {
	if col <= 0 {
		return 0
	}
	i := 0
	for n := range line {
		if i == col {
			return n
		}
		i++
	}
	return len(line)
}

// runeColumn converts a byte column to a rune column, clamped to the line.
func runeColumn(line string, col int) int {
	if col <= 0 {
		return 0
	}
	if col > len(line) {
		col = len(line)
	}
	return utf8.RuneCountInString(line[:col])
}

// inclusiveEnd turns an exclusive end point into the last selected
// character, as visual mode expects. Returns a 0-indexed row and byte column.
func inclusiveEnd(lines []string, row, col int) (int, int) {
	if col > 0 {
		return row, byteColumn(lineAt(lines, row), col-1)
	}
	if row == 0 {
		return 0, 0
	}
	// End at the start of a line: the selection ends on the previous line's newline
	prev := lineAt(lines, row-1)
	return row - 1, len(prev)
}
