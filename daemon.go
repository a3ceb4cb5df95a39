package main

import (
	"context"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"editsync/buffer"
	"editsync/engine"
	"editsync/logger"
	"editsync/types"

	"github.com/neovim/go-client/nvim"
)

var _ engine.Session = (*buffer.NvimEditor)(nil)

type Daemon struct {
	config      Config
	settings    *types.Settings
	engine      *engine.Engine
	listener    net.Listener
	socketPath  string
	pidPath     string
	clientCount int64
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewDaemon(config Config) *Daemon {
	settings := types.NewSettings(config.AnimationsEnabled())
	eng := engine.NewEngine(settings, engine.EngineConfig{
		MinimalDelay: time.Duration(config.MinimalDelay) * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		config:     config,
		settings:   settings,
		engine:     eng,
		socketPath: getSocketPath(),
		pidPath:    getPidPath(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (d *Daemon) Start() error {
	d.writePidFile()
	defer d.removePidFile()

	if err := d.setupSocket(); err != nil {
		return err
	}
	defer d.cleanup()

	log.Printf("daemon listening on socket: %s", d.socketPath)

	d.engine.Start(d.ctx)
	d.setupShutdownHandling()
	go d.acceptConnections()
	go d.monitorIdleShutdown()

	<-d.ctx.Done()
	log.Printf("daemon shutting down...")
	return nil
}

func (d *Daemon) setupSocket() error {
	os.Remove(d.socketPath)

	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	return nil
}

func (d *Daemon) setupShutdownHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("received shutdown signal")
		d.Stop()
	}()
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return // Server is shutting down
			default:
				log.Printf("error accepting connection: %v", err)
				continue
			}
		}

		atomic.AddInt64(&d.clientCount, 1)
		log.Printf("new client connected, total clients: %d", atomic.LoadInt64(&d.clientCount))
		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	defer func() {
		atomic.AddInt64(&d.clientCount, -1)
		log.Printf("client disconnected, remaining clients: %d", atomic.LoadInt64(&d.clientCount))
	}()

	n, err := nvim.New(conn, conn, conn, log.Printf)
	if err != nil {
		log.Printf("error creating nvim client: %v", err)
		return
	}

	editor := buffer.New(buffer.Config{
		NsID:              d.config.NsID,
		HighlightDuration: d.config.HighlightTimeout(),
	})
	editor.SetClient(n)
	d.engine.SetSession(editor)
	defer d.engine.DetachSession(editor)

	if err := editor.RegisterCommandHandler(d.commandHandler(editor)); err != nil {
		log.Printf("error registering command handler: %v", err)
		return
	}
	if err := n.RegisterHandler("editsync_animations", func(_ *nvim.Nvim, enabled bool) {
		log.Printf("animations set to %v", enabled)
		d.settings.SetAnimations(enabled)
	}); err != nil {
		log.Printf("error registering settings handler: %v", err)
		return
	}
	if err := n.RegisterHandler("editsync_log_level", func(_ *nvim.Nvim, level string) {
		setLogLevel(level)
	}); err != nil {
		log.Printf("error registering log level handler: %v", err)
		return
	}

	select {
	case <-d.ctx.Done():
		return
	default:
		if err := n.Serve(); err != nil && err != io.EOF {
			log.Printf("error serving connection: %v", err)
		}
	}
}

// commandHandler decodes editsync_command notifications and queues them.
// Commands that cannot be queued are answered immediately.
func (d *Daemon) commandHandler(r engine.Responder) func(raw string) {
	return func(raw string) {
		cmd, err := engine.DecodeCommand([]byte(raw))
		if err == nil {
			err = d.engine.Submit(cmd, r)
		}
		if err != nil {
			log.Printf("rejecting command %q: %v", cmd.ID, err)
			r.Respond(cmd.ID, nil, err)
		}
	}
}

// setLogLevel applies a level name sent by the editor. Unknown names mean info.
func setLogLevel(name string) logger.LogLevel {
	level := logger.ParseLogLevel(name)
	logger.SetGlobalLevel(level)
	log.Printf("log level set to %s", level)
	return level
}

func (d *Daemon) monitorIdleShutdown() {
	// In debug mode, shut down immediately when no clients are connected
	if d.config.DebugImmediateShutdown {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				if atomic.LoadInt64(&d.clientCount) == 0 {
					log.Printf("debug mode: no clients connected, shutting down daemon immediately")
					d.Stop()
					return
				}
			}
		}
	}

	idleTimer := time.NewTimer(30 * time.Second)
	defer idleTimer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-idleTimer.C:
			if atomic.LoadInt64(&d.clientCount) == 0 {
				log.Printf("no clients connected for timeout period, shutting down daemon")
				d.Stop()
				return
			}
		}

		if atomic.LoadInt64(&d.clientCount) == 0 {
			idleTimer.Reset(5 * time.Second)
		} else {
			idleTimer.Reset(30 * time.Second)
		}
	}
}

func (d *Daemon) Stop() {
	d.engine.Stop()
	if d.listener != nil {
		d.listener.Close()
	}
	d.cancel()
}

func (d *Daemon) cleanup() {
	os.Remove(d.socketPath)
}

func (d *Daemon) writePidFile() {
	pid := os.Getpid()
	err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(pid)), 0644)
	if err != nil {
		log.Printf("warning: could not write PID file: %v", err)
	}
	log.Printf("server started with PID %d", pid)
}

func (d *Daemon) removePidFile() {
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not remove PID file: %v", err)
	}
}
