package engine

import (
	"context"
	"errors"
	"testing"

	"editsync/text"
	"editsync/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryCommandTypeHasHandler(t *testing.T) {
	require.Len(t, commandHandlers, len(allCommandTypes))
	for _, ct := range allCommandTypes {
		assert.NotNil(t, commandHandlers[ct], "handler for %s", ct)
		assert.Equal(t, ct, CommandTypeFromString(string(ct)))
	}
}

func TestCommandTypeFromString_Unknown(t *testing.T) {
	assert.Equal(t, CommandType(""), CommandTypeFromString("COMMAND_TYPE_FLY"))
	assert.Equal(t, CommandType(""), CommandTypeFromString("diff"))
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand(rawJSON(`{"id":"7","type":"COMMAND_TYPE_DIFF","data":{"source":"x","cursor":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "7", cmd.ID)
	assert.Equal(t, CommandDiff, cmd.Type)
	assert.JSONEq(t, `{"source":"x","cursor":1}`, string(cmd.Data))

	cmd, err = DecodeCommand(rawJSON(`{"id":"8","type":"COMMAND_TYPE_FLY"}`))
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, "8", cmd.ID, "ID kept so the error can be answered")

	_, err = DecodeCommand(rawJSON(`{not json`))
	assert.Error(t, err)
}

func TestExecute_UnknownType(t *testing.T) {
	e, _ := newTestEngine(false, newMockSession(""))
	_, err := e.Execute(context.Background(), Command{ID: "1", Type: "COMMAND_TYPE_FLY"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestExecute_NoSession(t *testing.T) {
	e := NewEngine(types.NewSettings(false), EngineConfig{})
	_, err := e.Execute(context.Background(), Command{ID: "1", Type: CommandUndo})
	assert.ErrorIs(t, err, ErrEditorUnavailable)
}

func TestExecute_Diff(t *testing.T) {
	session := newMockSession("hello")
	e, _ := newTestEngine(false, session)

	_, err := e.Execute(context.Background(), Command{
		Type: CommandDiff,
		Data: rawJSON(`{"source":"hello world","cursor":11}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", session.text)
	assert.Equal(t, []setCall{{"hello", "hello world", 0, 11}}, session.sets)
}

func TestExecute_DiffMissingData(t *testing.T) {
	e, _ := newTestEngine(false, newMockSession(""))
	_, err := e.Execute(context.Background(), Command{Type: CommandDiff})
	assert.Error(t, err)
}

func TestExecute_Select(t *testing.T) {
	session := newMockSession("")
	e, _ := newTestEngine(false, session)

	_, err := e.Execute(context.Background(), Command{
		Type: CommandSelect,
		Data: rawJSON(`{"source":"one\ntwo\nthree","cursor":9,"cursorEnd":2}`),
	})
	require.NoError(t, err)
	assert.Equal(t, [][4]int{{0, 2, 2, 1}}, session.selections, "reversed offsets are swapped")

	_, err = e.Execute(context.Background(), Command{
		Type: CommandSelect,
		Data: rawJSON(`{"source":"abc","cursor":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, [4]int{0, 1, 0, 1}, session.selections[1], "no end collapses to cursor")

	_, err = e.Execute(context.Background(), Command{
		Type: CommandSelect,
		Data: rawJSON(`{"source":"abc","cursor":0,"cursorEnd":9}`),
	})
	assert.ErrorIs(t, err, text.ErrInvalidOffset)
}

func TestExecute_PasteText(t *testing.T) {
	session := newMockSession("line1\nline2")
	e, _ := newTestEngine(false, session)

	_, err := e.Execute(context.Background(), Command{
		Type: CommandPaste,
		Data: rawJSON(`{"text":"new","cursor":2,"direction":"below"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "line1\nnew\nline2", session.text)
	require.Len(t, session.sets, 1)
	assert.Equal(t, 1, session.sets[0].row)
	assert.Equal(t, 3, session.sets[0].col)
	assert.NotContains(t, session.Calls(), "clipboard")
}

func TestExecute_PasteFromSpecialWindow(t *testing.T) {
	tests := []struct {
		name   string
		cursor int
		want   string
	}{
		{"start of file", 0, "Ximportant file\ncontents\n"},
		{"second line", 15, "important file\nXcontents\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newMockSession("important file\ncontents\n")
			session.available = false
			session.availableOnFocus = true
			e, _ := newTestEngine(false, session)

			_, err := e.Execute(context.Background(), Command{
				Type: CommandPaste,
				Data: rawJSON(`{"text":"X","cursor":%d}`, tt.cursor),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, session.text)
			assert.Equal(t, []string{"focus", "activeText", "set", "scroll"}, session.Calls(),
				"text is read once, after focus")
		})
	}
}

func TestPaste_ResolvedAgainstDiffedText(t *testing.T) {
	session := newMockSession("ab")
	e, clock := newTestEngine(true, session)

	require.NoError(t, e.Paste(context.Background(), 1, "X", text.DirectionNone))
	require.Len(t, session.sets, 1)
	assert.Equal(t, setCall{"ab", "aXb", 0, 2}, session.sets[0])
	assert.Len(t, clock.Delays(), 1)
	assert.Equal(t, 1, countCalls(session.Calls(), "activeText"))
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}

func TestExecute_PasteFromClipboard(t *testing.T) {
	session := newMockSession("hello")
	session.clipboard = " world"
	e, _ := newTestEngine(false, session)

	_, err := e.Execute(context.Background(), Command{
		Type: CommandPaste,
		Data: rawJSON(`{"cursor":5}`),
	})
	require.NoError(t, err)
	assert.Contains(t, session.Calls(), "clipboard")
	assert.Equal(t, "hello world", session.text)
}

func TestExecute_PasteEmptyStringIsNotClipboard(t *testing.T) {
	session := newMockSession("hello")
	session.clipboard = "nope"
	e, _ := newTestEngine(false, session)

	_, err := e.Execute(context.Background(), Command{
		Type: CommandPaste,
		Data: rawJSON(`{"text":"","cursor":0}`),
	})
	require.NoError(t, err)
	assert.NotContains(t, session.Calls(), "clipboard")
	assert.Equal(t, "hello", session.text)
}

func TestExecute_PasteBadDirection(t *testing.T) {
	session := newMockSession("hello")
	e, _ := newTestEngine(false, session)

	_, err := e.Execute(context.Background(), Command{
		Type: CommandPaste,
		Data: rawJSON(`{"text":"x","cursor":0,"direction":"sideways"}`),
	})
	assert.Error(t, err)
	assert.Empty(t, session.sets)
}

func TestExecute_PasteInvalidCursor(t *testing.T) {
	session := newMockSession("hi")
	e, _ := newTestEngine(false, session)

	_, err := e.Execute(context.Background(), Command{
		Type: CommandPaste,
		Data: rawJSON(`{"text":"x","cursor":5}`),
	})
	assert.True(t, errors.Is(err, text.ErrInvalidOffset), "got %v", err)
}

func TestExecute_HostCommands(t *testing.T) {
	tests := []struct {
		cmd  CommandType
		call string
	}{
		{CommandUndo, "undo"},
		{CommandRedo, "redo"},
		{CommandSave, "save"},
		{CommandCreateTab, "createTab"},
		{CommandCloseTab, "closeTab"},
		{CommandNextTab, "nextTab"},
		{CommandPreviousTab, "previousTab"},
		{CommandCloseWindow, "closeWindow"},
		{CommandGoToDefinition, "goToDefinition"},
	}

	for _, tt := range tests {
		t.Run(string(tt.cmd), func(t *testing.T) {
			session := newMockSession("")
			e, _ := newTestEngine(false, session)

			_, err := e.Execute(context.Background(), Command{Type: tt.cmd})
			require.NoError(t, err)
			assert.Equal(t, []string{tt.call}, session.Calls())
		})
	}
}

func TestExecute_PayloadHostCommands(t *testing.T) {
	session := newMockSession("")
	e, _ := newTestEngine(false, session)
	ctx := context.Background()

	_, err := e.Execute(ctx, Command{Type: CommandSwitchTab, Data: rawJSON(`{"index":3}`)})
	require.NoError(t, err)
	assert.Equal(t, 3, session.tabIndex)

	_, err = e.Execute(ctx, Command{Type: CommandSwitchTab, Data: rawJSON(`{"index":0}`)})
	assert.Error(t, err)

	_, err = e.Execute(ctx, Command{Type: CommandSplit, Data: rawJSON(`{"direction":"right"}`)})
	require.NoError(t, err)
	assert.Equal(t, "right", session.splitDir)

	_, err = e.Execute(ctx, Command{Type: CommandWindow, Data: rawJSON(`{"direction":"up"}`)})
	require.NoError(t, err)
	assert.Equal(t, "up", session.windowDir)

	_, err = e.Execute(ctx, Command{Type: CommandCopy, Data: rawJSON(`{"text":"copied"}`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"copied"}, session.copied)
}

func TestExecute_GetEditorState(t *testing.T) {
	session := newMockSession("abc")
	e, _ := newTestEngine(false, session)

	result, err := e.Execute(context.Background(), Command{Type: CommandGetEditorState})
	require.NoError(t, err)
	assert.Equal(t, types.EditorState{Source: "abc", Filename: "test.go", Available: true}, result)
}
