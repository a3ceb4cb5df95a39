package main

import (
	"editsync/logger"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

type Client struct {
	socketPath   string
	startTimeout time.Duration
}

func NewClient() *Client {
	return &Client{
		socketPath:   getSocketPath(),
		startTimeout: 5 * time.Second,
	}
}

func (c *Client) Connect() error {
	// Connect to daemon
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Relay between stdin/stdout and socket
	go func() {
		io.Copy(conn, os.Stdin)
		conn.Close()
	}()

	io.Copy(os.Stdout, conn)
	return nil
}

func (c *Client) EnsureDaemonRunning() error {
	running, pid := isDaemonRunning()
	if running {
		logger.Debug("daemon already running with PID %d", pid)
		return nil
	}

	return c.startDaemon()
}

func (c *Client) startDaemon() error {
	logger.Debug("starting daemon...")

	// Start daemon in background
	cmd := []string{os.Args[0], "--daemon"}
	env := os.Environ()

	// Start the daemon process
	_, err := os.StartProcess(os.Args[0], cmd, &os.ProcAttr{
		Env: env,
		Files: []*os.File{
			nil, // stdin
			nil, // stdout
			nil, // stderr
		},
	})
	if err != nil {
		return err
	}

	// Wait for daemon to start
	return c.waitForDaemon()
}

// waitForDaemon polls until the daemon's socket accepts connections.
// The PID file alone is written before the socket exists.
func (c *Client) waitForDaemon() error {
	deadline := time.Now().Add(c.startTimeout)
	for time.Now().Before(deadline) {
		if running, _ := isDaemonRunning(); running {
			if conn, err := net.Dial("unix", c.socketPath); err == nil {
				conn.Close()
				logger.Debug("daemon started successfully")
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon failed to start within %v", c.startTimeout)
}
