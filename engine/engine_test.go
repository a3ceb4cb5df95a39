package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForResponses(t *testing.T, session *mockSession, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-session.responded:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for response %d of %d", i+1, n)
		}
	}
}

func TestSubmit_RunsCommandsInOrder(t *testing.T) {
	session := newMockSession("")
	e, _ := newTestEngine(false, session)
	e.Start(context.Background())
	defer e.Stop()

	require.NoError(t, e.Submit(Command{ID: "1", Type: CommandDiff, Data: rawJSON(`{"source":"a","cursor":1}`)}, session))
	require.NoError(t, e.Submit(Command{ID: "2", Type: CommandDiff, Data: rawJSON(`{"source":"ab","cursor":2}`)}, session))
	require.NoError(t, e.Submit(Command{ID: "3", Type: CommandUndo}, session))
	waitForResponses(t, session, 3)

	session.mu.Lock()
	defer session.mu.Unlock()
	require.Len(t, session.responses, 3)
	for i, id := range []string{"1", "2", "3"} {
		assert.Equal(t, id, session.responses[i].id)
		assert.NoError(t, session.responses[i].err)
	}
	require.Len(t, session.sets, 2)
	assert.Equal(t, "a", session.sets[1].before, "second update sees the first one's text")
	assert.Equal(t, "undo", session.calls[len(session.calls)-1])
}

func TestSubmit_ErrorIsResponded(t *testing.T) {
	session := newMockSession("abc")
	e, _ := newTestEngine(false, session)
	e.Start(context.Background())
	defer e.Stop()

	require.NoError(t, e.Submit(Command{ID: "bad", Type: CommandDiff, Data: rawJSON(`{"source":"abc","cursor":99}`)}, session))
	waitForResponses(t, session, 1)

	session.mu.Lock()
	defer session.mu.Unlock()
	require.Len(t, session.responses, 1)
	assert.Equal(t, "bad", session.responses[0].id)
	assert.Error(t, session.responses[0].err)
}

func TestSubmit_ResultIsResponded(t *testing.T) {
	session := newMockSession("state")
	e, _ := newTestEngine(false, session)
	e.Start(context.Background())
	defer e.Stop()

	require.NoError(t, e.Submit(Command{ID: "s", Type: CommandGetEditorState}, session))
	waitForResponses(t, session, 1)

	session.mu.Lock()
	defer session.mu.Unlock()
	assert.NotNil(t, session.responses[0].result)
}

func TestSubmit_BeforeStartAndAfterStop(t *testing.T) {
	e, _ := newTestEngine(false, newMockSession(""))
	assert.ErrorIs(t, e.Submit(Command{Type: CommandUndo}, nil), ErrStopped)

	e.Start(context.Background())
	e.Stop()
	assert.ErrorIs(t, e.Submit(Command{Type: CommandUndo}, nil), ErrStopped)

	// Stop is idempotent
	e.Stop()
}

func TestSetSession_IgnoredAfterStop(t *testing.T) {
	first := newMockSession("")
	e, _ := newTestEngine(false, first)
	e.Start(context.Background())
	e.Stop()

	e.SetSession(newMockSession(""))
	assert.Same(t, first, e.currentSession())
}

func TestDetachSession_RestoresPrevious(t *testing.T) {
	b := newMockSession("b")
	e, _ := newTestEngine(false, b)
	a := newMockSession("a")
	e.SetSession(a)
	assert.Same(t, a, e.currentSession())

	e.DetachSession(a)
	assert.Same(t, b, e.currentSession(), "the older connection takes over again")

	// Detaching a session that is not current leaves the current one alone
	e.SetSession(a)
	e.DetachSession(b)
	assert.Same(t, a, e.currentSession())

	e.DetachSession(a)
	assert.Nil(t, e.currentSession())

	_, err := e.Execute(context.Background(), Command{Type: CommandUndo})
	assert.ErrorIs(t, err, ErrEditorUnavailable)
}

func TestSetSession_Reattach(t *testing.T) {
	a := newMockSession("a")
	e, _ := newTestEngine(false, a)
	b := newMockSession("b")
	e.SetSession(b)
	e.SetSession(a)

	e.DetachSession(a)
	assert.Same(t, b, e.currentSession(), "a is attached once, not stacked twice")
}

func TestSubmit_RespondsToSender(t *testing.T) {
	sender := newMockSession("")
	e, _ := newTestEngine(false, sender)
	e.Start(context.Background())
	defer e.Stop()

	other := newMockSession("")
	e.SetSession(other)

	require.NoError(t, e.Submit(Command{ID: "1", Type: CommandUndo}, sender))
	waitForResponses(t, sender, 1)

	sender.mu.Lock()
	assert.Equal(t, "1", sender.responses[0].id)
	sender.mu.Unlock()

	other.mu.Lock()
	defer other.mu.Unlock()
	assert.Empty(t, other.responses, "a later connection never sees another sender's result")
	assert.Equal(t, []string{"undo"}, other.calls, "runs against the current session")
}
