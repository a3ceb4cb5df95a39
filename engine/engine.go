package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"editsync/logger"
)

// ErrEditorUnavailable reports that no editor is connected or that it has no
// editable buffer in focus.
var ErrEditorUnavailable = errors.New("editor unavailable")

// ErrStopped is returned by Submit once the engine has shut down.
var ErrStopped = errors.New("engine stopped")

type Engine struct {
	settings AnimationSetting
	config   EngineConfig

	// after returns a channel that fires once d has elapsed; replaced in tests
	after func(d time.Duration) <-chan time.Time

	// updateMu serializes UpdateEditor and Paste, including calls made outside
	// the event loop
	updateMu sync.Mutex

	mu        sync.RWMutex
	// sessions holds attached connections, most recent last
	sessions  []Session
	eventChan chan queuedCommand

	mainCtx    context.Context
	mainCancel context.CancelFunc
	stopped    bool
	stopOnce   sync.Once
}

func NewEngine(settings AnimationSetting, config EngineConfig) *Engine {
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	return &Engine{
		settings:  settings,
		config:    config,
		after:     time.After,
		eventChan: make(chan queuedCommand, queueSize),
	}
}

func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.mainCtx, e.mainCancel = context.WithCancel(ctx)
	e.mu.Unlock()

	go e.eventLoop(e.mainCtx)
	logger.Info("engine started")
}

// Stop gracefully shuts down the engine. Queued commands are dropped.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		logger.Info("stopping engine...")
		e.stopped = true
		// eventChan is never closed; Submit selects on mainCtx instead
		if e.mainCancel != nil {
			e.mainCancel()
		}
		logger.Info("engine stopped")
	})
}

// SetSession attaches the editor of a new connection. It becomes the
// current session; commands already queued run against it.
func (e *Engine) SetSession(s Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	e.sessions = append(removeSession(e.sessions, s), s)
}

// DetachSession forgets a closed connection. If it was current, the most
// recently attached session still open takes over.
func (e *Engine) DetachSession(s Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sessions = removeSession(e.sessions, s)
	logger.Debug("session detached, %d remaining", len(e.sessions))
}

func removeSession(sessions []Session, s Session) []Session {
	kept := sessions[:0]
	for _, existing := range sessions {
		if existing != s {
			kept = append(kept, existing)
		}
	}
	return kept
}

func (e *Engine) currentSession() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

func (e *Engine) editor() Editor {
	if s := e.currentSession(); s != nil {
		return s
	}
	return nil
}

// queuedCommand pairs a command with the connection that sent it.
type queuedCommand struct {
	cmd       Command
	responder Responder
}

// Submit queues a command for the event loop. The result is delivered
// through r, the sender, even if another session has become current since.
func (e *Engine) Submit(cmd Command, r Responder) error {
	e.mu.RLock()
	ctx := e.mainCtx
	stopped := e.stopped
	e.mu.RUnlock()

	if stopped || ctx == nil {
		return ErrStopped
	}

	select {
	case e.eventChan <- queuedCommand{cmd: cmd, responder: r}:
		return nil
	case <-ctx.Done():
		return ErrStopped
	}
}

// eventLoopRestarts tracks the number of event loop restarts for panic recovery
var eventLoopRestarts atomic.Int32

const maxEventLoopRestarts = 3

func (e *Engine) eventLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			restarts := eventLoopRestarts.Add(1)
			logger.Error("event loop panic [%d/%d]: %v\n%s",
				restarts, maxEventLoopRestarts, r, debug.Stack())

			if int(restarts) < maxEventLoopRestarts {
				e.eventLoop(e.mainCtx)
			} else {
				logger.Error("max event loop restarts reached, stopping engine")
				go e.Stop() // async to avoid deadlock
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case queued := <-e.eventChan:
			e.mu.RLock()
			stopped := e.stopped
			e.mu.RUnlock()
			if stopped {
				return
			}

			e.handleCommand(ctx, queued.cmd, queued.responder)
		}
	}
}

// handleCommand runs one queued command and responds to its sender.
func (e *Engine) handleCommand(ctx context.Context, cmd Command, r Responder) {
	var (
		result any
		err    error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("command handler panic recovered for %s: %v", cmd.Type, r)
				err = fmt.Errorf("%s: internal error: %v", cmd.Type, r)
			}
		}()
		result, err = e.Execute(ctx, cmd)
	}()

	if err != nil {
		logger.Error("command %s (%s) failed: %v", cmd.Type, cmd.ID, err)
	}

	if r != nil {
		r.Respond(cmd.ID, result, err)
	}
}
