package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"editsync/text"
	"editsync/types"
)

// --- Mock implementations ---

type setCall struct {
	before, after string
	row, col      int
}

type response struct {
	id     string
	result any
	err    error
}

// mockSession implements Session and records every call in order
type mockSession struct {
	mu sync.Mutex

	text        string
	available   bool
	focusErr    error
	setErr      error
	scrollErr   error
	clipboard   string
	highlightMs int // returned from HighlightRanges, may be negative

	calls      []string
	sets       []setCall
	highlights [][]text.DiffRange
	selections [][4]int
	copied     []string
	tabIndex   int
	splitDir   string
	windowDir  string
	responses  []response
	responded  chan struct{}

	// availableOnFocus makes the text readable only once Focus has run,
	// like a help or quickfix window being active
	availableOnFocus bool
}

func newMockSession(text string) *mockSession {
	return &mockSession{
		text:        text,
		available:   true,
		highlightMs: 300,
		responded:   make(chan struct{}, 100),
	}
}

func (m *mockSession) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *mockSession) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockSession) Focus(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("focus")
	if m.availableOnFocus {
		m.available = true
	}
	return m.focusErr
}

func (m *mockSession) ActiveText(ctx context.Context) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("activeText")
	if !m.available {
		return "", false
	}
	return m.text, true
}

func (m *mockSession) SetSourceAndCursor(ctx context.Context, before, after string, row, col int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("set")
	if m.setErr != nil {
		return m.setErr
	}
	m.sets = append(m.sets, setCall{before, after, row, col})
	m.text = after
	return nil
}

func (m *mockSession) HighlightRanges(ctx context.Context, ranges []text.DiffRange) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	kind := "add"
	if len(ranges) > 0 && ranges[0].Type == text.DiffRangeDelete {
		kind = "delete"
	} else if len(ranges) == 0 {
		kind = "none"
	}
	m.record("highlight:" + kind)
	m.highlights = append(m.highlights, ranges)
	if len(ranges) == 0 {
		return 0
	}
	return time.Duration(m.highlightMs) * time.Millisecond
}

func (m *mockSession) ScrollToCursor(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("scroll")
	return m.scrollErr
}

func (m *mockSession) Select(ctx context.Context, startRow, startCol, endRow, endCol int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("select")
	m.selections = append(m.selections, [4]int{startRow, startCol, endRow, endCol})
	return nil
}

func (m *mockSession) simple(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(name)
	return nil
}

func (m *mockSession) Undo(ctx context.Context) error           { return m.simple("undo") }
func (m *mockSession) Redo(ctx context.Context) error           { return m.simple("redo") }
func (m *mockSession) Save(ctx context.Context) error           { return m.simple("save") }
func (m *mockSession) CreateTab(ctx context.Context) error      { return m.simple("createTab") }
func (m *mockSession) CloseTab(ctx context.Context) error       { return m.simple("closeTab") }
func (m *mockSession) NextTab(ctx context.Context) error        { return m.simple("nextTab") }
func (m *mockSession) PreviousTab(ctx context.Context) error    { return m.simple("previousTab") }
func (m *mockSession) CloseWindow(ctx context.Context) error    { return m.simple("closeWindow") }
func (m *mockSession) GoToDefinition(ctx context.Context) error { return m.simple("goToDefinition") }

func (m *mockSession) SwitchTab(ctx context.Context, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("switchTab")
	m.tabIndex = index
	return nil
}

func (m *mockSession) Split(ctx context.Context, direction string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("split")
	m.splitDir = direction
	return nil
}

func (m *mockSession) Window(ctx context.Context, direction string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("window")
	m.windowDir = direction
	return nil
}

func (m *mockSession) Copy(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("copy")
	m.copied = append(m.copied, text)
	return nil
}

func (m *mockSession) Clipboard(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("clipboard")
	return m.clipboard, nil
}

func (m *mockSession) EditorState(ctx context.Context) (types.EditorState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("editorState")
	return types.EditorState{Source: m.text, Filename: "test.go", Available: m.available}, nil
}

func (m *mockSession) Respond(id string, result any, err error) {
	m.mu.Lock()
	m.responses = append(m.responses, response{id, result, err})
	m.mu.Unlock()
	m.responded <- struct{}{}
}

// fakeClock replaces time.After and records every requested delay.
// Its channels fire immediately.
type fakeClock struct {
	mu     sync.Mutex
	delays []time.Duration
	onWait func(d time.Duration)
	// stalled channels never fire
	stalled bool
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	onWait := c.onWait
	stalled := c.stalled
	c.mu.Unlock()
	if onWait != nil {
		onWait(d)
	}
	if stalled {
		return make(chan time.Time)
	}
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// newTestEngine wires an engine to a mock session and a fake clock.
func newTestEngine(animations bool, session *mockSession) (*Engine, *fakeClock) {
	clock := &fakeClock{}
	e := NewEngine(types.NewSettings(animations), EngineConfig{})
	e.after = clock.After
	e.SetSession(session)
	return e, clock
}

func rawJSON(format string, args ...any) []byte {
	return []byte(fmt.Sprintf(format, args...))
}
