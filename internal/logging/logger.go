// Package logging provides categorized logging for the automaton runtime.
// Every subsystem logs through a named category; output goes to
// <home>/logs/automa.log, plus stderr when debug mode is on.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a runtime subsystem in log output.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and shutdown
	CategoryKernel    Category = "kernel"    // Top-level wiring and supervision
	CategoryLoop      Category = "loop"      // Agent loop turns and guards
	CategoryStore     Category = "store"     // State store operations
	CategoryTools     Category = "tools"     // Tool execution
	CategoryGuard     Category = "guard"     // Guard pipeline decisions
	CategoryMemory    Category = "memory"    // Memory ingestion and recall
	CategoryContext   Category = "context"   // Context assembly
	CategoryModel     Category = "model"     // Inference provider calls
	CategoryChain     Category = "chain"     // Chain / payment client
	CategorySandbox   Category = "sandbox"   // Sandbox client
	CategorySocial    Category = "social"    // Social / messaging client
	CategoryHeartbeat Category = "heartbeat" // Scheduler ticks and tasks
	CategoryAPI       Category = "api"       // HTTP observability server
	CategorySanitizer Category = "sanitizer" // Input sanitizer verdicts
	CategorySurvival  Category = "survival"  // Tier transitions and resurrection
)

var (
	mu      sync.RWMutex
	root    *zap.SugaredLogger
	named   map[Category]*zap.SugaredLogger
	logFile *os.File
	debug   bool
)

// Initialize sets up the log sink under the automaton home directory.
// With debug enabled, debug-level entries are kept and mirrored to stderr.
// Safe to call more than once; later calls replace the sink.
func Initialize(homeDir string, debugMode bool) error {
	if homeDir == "" {
		return fmt.Errorf("home directory required")
	}

	logsDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logsDir, 0o700); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logsDir, "automa.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	encCfg.TimeKey = "ts"
	encCfg.NameKey = "cat"

	level := zapcore.InfoLevel
	if debugMode {
		level = zapcore.DebugLevel
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level),
	}
	if debugMode {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(os.Stderr), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	root = logger.Sugar()
	named = make(map[Category]*zap.SugaredLogger)
	debug = debugMode
	return nil
}

// Get returns the logger for a category. Before Initialize the returned
// logger discards everything, so packages may log unconditionally.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := named[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		return zap.NewNop().Sugar()
	}
	if l, ok := named[cat]; ok {
		return l
	}
	l := root.Named(string(cat))
	named[cat] = l
	return l
}

// DebugEnabled reports whether debug-level logging is active.
func DebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debug
}

// CloseAll flushes and closes the log sink. Call once at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	if root != nil {
		_ = root.Sync()
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
	named = nil
}

// Timer measures a single operation and logs its duration on Stop.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer begins timing an operation in the given category.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() {
	Get(t.category).Debugf("%s took %v", t.operation, time.Since(t.start))
}
