package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"editsync/logger"
)

type Config struct {
	NsID                   int    `json:"ns_id"`
	Animations             *bool  `json:"animations"`         // nil = on
	HighlightDuration      int    `json:"highlight_duration"` // in milliseconds
	MinimalDelay           int    `json:"minimal_delay"`      // in milliseconds
	MaxLogLines            int    `json:"max_log_lines"`      // 0 = logger.MaxLogLines
	DebugImmediateShutdown bool   `json:"debug_immediate_shutdown"`
	LogLevel               string `json:"log_level"` // trace, debug, info, warn, error
}

const defaultHighlightDuration = 300 // milliseconds

func (c Config) AnimationsEnabled() bool {
	return c.Animations == nil || *c.Animations
}

func (c Config) HighlightTimeout() time.Duration {
	if c.HighlightDuration <= 0 {
		return defaultHighlightDuration * time.Millisecond
	}
	return time.Duration(c.HighlightDuration) * time.Millisecond
}

type ServerMode string

const (
	ModeDaemon ServerMode = "daemon"
	ModeClient ServerMode = "client"
)

func execDir() string {
	execPath, err := os.Executable()
	if err != nil {
		log.Fatalf("error getting executable path: %v", err)
	}
	return filepath.Dir(execPath)
}

// Setup logger to log to a file in the same directory as the executable
// Caller must defer logger.Close()
func setupLogger(config Config) *logger.LimitedLogger {
	logPath := filepath.Join(execDir(), "editsync.log")

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening file: %v", err)
	}

	limitedLogger := logger.NewLimitedLogger(f, logger.ParseLogLevel(config.LogLevel))
	limitedLogger.SetMaxLines(config.MaxLogLines)
	limitedLogger.SetArchivePath(logPath + ".br")
	log.SetOutput(limitedLogger)
	return limitedLogger
}

func getSocketPath() string {
	return filepath.Join(execDir(), "editsync.sock")
}

func getPidPath() string {
	return filepath.Join(execDir(), "editsync.pid")
}

func isDaemonRunning() (bool, int) {
	pidPath := getPidPath()
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// On Unix, Signal(0) checks if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil, pid
}

func parseConfig(raw string) (Config, error) {
	var config Config
	if raw == "" {
		return config, nil
	}
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if config.HighlightDuration < 0 || config.MinimalDelay < 0 {
		return Config{}, fmt.Errorf("invalid config: durations must not be negative")
	}
	if config.MaxLogLines < 0 {
		return Config{}, fmt.Errorf("invalid config: max_log_lines must not be negative")
	}
	return config, nil
}

func loadConfig() Config {
	config, err := parseConfig(os.Getenv("EDITSYNC_CONFIG"))
	if err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("config: %+v", config)
	return config
}

func runDaemon() {
	config := loadConfig()

	limitedLogger := setupLogger(config)
	defer limitedLogger.Close()

	daemon := NewDaemon(config)
	if err := daemon.Start(); err != nil {
		logger.Fatal("error starting daemon: %v", err)
	}
}

func runClient() {
	client := NewClient()

	if err := client.EnsureDaemonRunning(); err != nil {
		log.Fatalf("error ensuring daemon is running: %v", err)
	}

	if err := client.Connect(); err != nil {
		log.Fatalf("error connecting to daemon: %v", err)
	}
}

func main() {
	var mode ServerMode = ModeClient

	if len(os.Args) > 1 && os.Args[1] == "--daemon" {
		mode = ModeDaemon
	}

	switch mode {
	case ModeDaemon:
		runDaemon()
	case ModeClient:
		runClient()
	}
}
