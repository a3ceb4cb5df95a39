package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"editsync/logger"
	"editsync/text"
)

// ErrUnknownCommand is returned for command types with no handler.
var ErrUnknownCommand = errors.New("unknown command type")

// CommandType identifies a remote editing command
type CommandType string

const (
	CommandDiff           CommandType = "COMMAND_TYPE_DIFF"
	CommandSelect         CommandType = "COMMAND_TYPE_SELECT"
	CommandPaste          CommandType = "COMMAND_TYPE_PASTE"
	CommandCopy           CommandType = "COMMAND_TYPE_COPY"
	CommandUndo           CommandType = "COMMAND_TYPE_UNDO"
	CommandRedo           CommandType = "COMMAND_TYPE_REDO"
	CommandSave           CommandType = "COMMAND_TYPE_SAVE"
	CommandGetEditorState CommandType = "COMMAND_TYPE_GET_EDITOR_STATE"
	CommandCreateTab      CommandType = "COMMAND_TYPE_CREATE_TAB"
	CommandCloseTab       CommandType = "COMMAND_TYPE_CLOSE_TAB"
	CommandNextTab        CommandType = "COMMAND_TYPE_NEXT_TAB"
	CommandPreviousTab    CommandType = "COMMAND_TYPE_PREVIOUS_TAB"
	CommandSwitchTab      CommandType = "COMMAND_TYPE_SWITCH_TAB"
	CommandSplit          CommandType = "COMMAND_TYPE_SPLIT"
	CommandWindow         CommandType = "COMMAND_TYPE_WINDOW"
	CommandCloseWindow    CommandType = "COMMAND_TYPE_CLOSE_WINDOW"
	CommandGoToDefinition CommandType = "COMMAND_TYPE_GO_TO_DEFINITION"
)

var allCommandTypes = []CommandType{
	CommandDiff,
	CommandSelect,
	CommandPaste,
	CommandCopy,
	CommandUndo,
	CommandRedo,
	CommandSave,
	CommandGetEditorState,
	CommandCreateTab,
	CommandCloseTab,
	CommandNextTab,
	CommandPreviousTab,
	CommandSwitchTab,
	CommandSplit,
	CommandWindow,
	CommandCloseWindow,
	CommandGoToDefinition,
}

// Command is one request from the remote controller
type Command struct {
	ID   string          `json:"id"`
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type commandHandler func(e *Engine, ctx context.Context, data json.RawMessage) (any, error)

// commandHandlers maps each command type to the function that runs it.
// init panics if a type in allCommandTypes has no entry.
var commandHandlers = map[CommandType]commandHandler{
	CommandDiff:           (*Engine).handleDiff,
	CommandSelect:         (*Engine).handleSelect,
	CommandPaste:          (*Engine).handlePaste,
	CommandCopy:           (*Engine).handleCopy,
	CommandUndo:           hostAction(Host.Undo),
	CommandRedo:           hostAction(Host.Redo),
	CommandSave:           hostAction(Host.Save),
	CommandGetEditorState: (*Engine).handleGetEditorState,
	CommandCreateTab:      hostAction(Host.CreateTab),
	CommandCloseTab:       hostAction(Host.CloseTab),
	CommandNextTab:        hostAction(Host.NextTab),
	CommandPreviousTab:    hostAction(Host.PreviousTab),
	CommandSwitchTab:      (*Engine).handleSwitchTab,
	CommandSplit:          directionAction(Host.Split),
	CommandWindow:         directionAction(Host.Window),
	CommandCloseWindow:    hostAction(Host.CloseWindow),
	CommandGoToDefinition: hostAction(Host.GoToDefinition),
}

var commandTypeMap map[string]CommandType

func init() {
	commandTypeMap = make(map[string]CommandType, len(allCommandTypes))
	for _, t := range allCommandTypes {
		if _, ok := commandHandlers[t]; !ok {
			panic(fmt.Sprintf("engine: no handler for %s", t))
		}
		commandTypeMap[string(t)] = t
	}
}

// CommandTypeFromString converts a wire name to a CommandType, or "" if unknown
func CommandTypeFromString(s string) CommandType {
	if t, exists := commandTypeMap[s]; exists {
		return t
	}
	return ""
}

// DecodeCommand parses a JSON command and checks its type is known.
// For an unknown type the decoded command is still returned so the caller
// can answer its ID.
func DecodeCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if CommandTypeFromString(string(cmd.Type)) == "" {
		return cmd, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return cmd, nil
}

// Execute runs a command synchronously against the current session.
func (e *Engine) Execute(ctx context.Context, cmd Command) (any, error) {
	handler, ok := commandHandlers[cmd.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	if e.currentSession() == nil {
		return nil, ErrEditorUnavailable
	}

	logger.Debug("execute command: %s (%s)", cmd.Type, cmd.ID)
	result, err := handler(e, ctx, cmd.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Type, err)
	}
	return result, nil
}

// Payloads

type diffData struct {
	Source string `json:"source"`
	Cursor int    `json:"cursor"`
}

type selectData struct {
	Source    string `json:"source"`
	Cursor    int    `json:"cursor"`
	CursorEnd *int   `json:"cursorEnd,omitempty"` // nil selects nothing past the cursor
}

type pasteData struct {
	Text      *string `json:"text,omitempty"` // nil pastes the clipboard
	Cursor    int     `json:"cursor"`
	Direction string  `json:"direction,omitempty"`
}

type copyData struct {
	Text string `json:"text"`
}

type switchTabData struct {
	Index int `json:"index"`
}

type directionData struct {
	Direction string `json:"direction"`
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing command data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode command data: %w", err)
	}
	return nil
}

// Handlers

func (e *Engine) handleDiff(ctx context.Context, data json.RawMessage) (any, error) {
	var d diffData
	if err := decodeData(data, &d); err != nil {
		return nil, err
	}
	return nil, e.UpdateEditor(ctx, d.Source, d.Cursor)
}

func (e *Engine) handleSelect(ctx context.Context, data json.RawMessage) (any, error) {
	var d selectData
	if err := decodeData(data, &d); err != nil {
		return nil, err
	}

	end := d.Cursor
	if d.CursorEnd != nil {
		end = *d.CursorEnd
	}
	return nil, e.Select(ctx, d.Source, d.Cursor, end)
}

// Select highlights the text between two rune offsets of source.
func (e *Engine) Select(ctx context.Context, source string, start, end int) error {
	if end < start {
		start, end = end, start
	}
	startPoint, err := text.OffsetToPoint(source, start)
	if err != nil {
		return fmt.Errorf("select start: %w", err)
	}
	endPoint, err := text.OffsetToPoint(source, end)
	if err != nil {
		return fmt.Errorf("select end: %w", err)
	}

	editor := e.editor()
	if editor == nil {
		return ErrEditorUnavailable
	}
	return editor.Select(ctx, startPoint.Row, startPoint.Column, endPoint.Row, endPoint.Column)
}

func (e *Engine) handlePaste(ctx context.Context, data json.RawMessage) (any, error) {
	var d pasteData
	if err := decodeData(data, &d); err != nil {
		return nil, err
	}
	dir, err := text.ParseDirection(d.Direction)
	if err != nil {
		return nil, err
	}

	s := e.currentSession()
	var pasted string
	if d.Text != nil {
		pasted = *d.Text
	} else {
		pasted, err = s.Clipboard(ctx)
		if err != nil {
			return nil, fmt.Errorf("read clipboard: %w", err)
		}
	}

	return nil, e.Paste(ctx, d.Cursor, pasted, dir)
}

// Paste inserts pasted into the active text at the cursor and animates the
// result through the same steps as UpdateEditor. The paste is resolved
// against the text of the focused window, and that text is what gets diffed.
func (e *Engine) Paste(ctx context.Context, cursor int, pasted string, dir text.Direction) error {
	defer logger.Trace("engine.Paste")()

	e.updateMu.Lock()
	defer e.updateMu.Unlock()

	editor := e.editor()
	if editor == nil {
		return ErrEditorUnavailable
	}

	source := e.focusAndRead(ctx, editor)
	res, err := text.ResolvePaste(source, cursor, pasted, dir)
	if err != nil {
		return fmt.Errorf("resolve paste: %w", err)
	}
	return e.update(ctx, editor, source, res.Apply(source), res.CursorOffset)
}

func (e *Engine) handleCopy(ctx context.Context, data json.RawMessage) (any, error) {
	var d copyData
	if err := decodeData(data, &d); err != nil {
		return nil, err
	}
	return nil, e.currentSession().Copy(ctx, d.Text)
}

func (e *Engine) handleGetEditorState(ctx context.Context, _ json.RawMessage) (any, error) {
	return e.currentSession().EditorState(ctx)
}

func (e *Engine) handleSwitchTab(ctx context.Context, data json.RawMessage) (any, error) {
	var d switchTabData
	if err := decodeData(data, &d); err != nil {
		return nil, err
	}
	if d.Index < 1 {
		return nil, fmt.Errorf("invalid tab index %d", d.Index)
	}
	return nil, e.currentSession().SwitchTab(ctx, d.Index)
}

// hostAction adapts a payload-free Host method into a command handler.
func hostAction(action func(Host, context.Context) error) commandHandler {
	return func(e *Engine, ctx context.Context, _ json.RawMessage) (any, error) {
		return nil, action(e.currentSession(), ctx)
	}
}

func directionAction(action func(Host, context.Context, string) error) commandHandler {
	return func(e *Engine, ctx context.Context, data json.RawMessage) (any, error) {
		var d directionData
		if err := decodeData(data, &d); err != nil {
			return nil, err
		}
		return nil, action(e.currentSession(), ctx, d.Direction)
	}
}
