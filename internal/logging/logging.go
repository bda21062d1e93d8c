// Package logging provides categorized file-based logging for proposalnerd.
// Logs are written to <state dir>/logs/ with a separate file per category.
// When debug mode is off the whole package is a silent no-op.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Category identifies a log stream.
type Category string

const (
	CategoryBoot     Category = "boot"     // startup, configuration loading
	CategoryIngest   Category = "ingest"   // document parsing and chunking
	CategoryPipeline Category = "pipeline" // stage orchestration
	CategoryOracle   Category = "oracle"   // LLM calls
	CategoryMermaid  Category = "mermaid"  // diagram validation
	CategoryRender   Category = "render"   // markdown assembly
)

// Logger writes to one category file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu      sync.Mutex
	loggers = make(map[Category]*Logger)
	logsDir string
	enabled bool
)

// Initialize sets the log directory and enables file logging. With
// debug=false nothing is ever written and no directory is created.
func Initialize(stateDir string, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	enabled = debug
	if !debug {
		return nil
	}
	if stateDir == "" {
		return fmt.Errorf("state directory required")
	}
	logsDir = filepath.Join(stateDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}

// Get returns the logger for a category, creating its file on first use.
// Always safe to call; returns a no-op logger when logging is disabled.
func Get(category Category) *Logger {
	mu.Lock()
	defer mu.Unlock()

	if !enabled {
		return &Logger{category: category}
	}
	if l, ok := loggers[category]; ok {
		return l
	}

	path := filepath.Join(logsDir, string(category)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] cannot open %s: %v\n", path, err)
		return &Logger{category: category}
	}
	l := &Logger{
		category: category,
		logger:   log.New(f, "", log.LstdFlags|log.Lmicroseconds),
		file:     f,
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level, format string, args ...interface{}) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf("[%s] [%s] %s", level, l.category, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) { l.write("DEBUG", format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.write("INFO", format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.write("WARN", format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.write("ERROR", format, args...) }

// CloseAll flushes and closes every open category file.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for cat, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
		delete(loggers, cat)
	}
}

// Convenience helpers, one pair per category.

func Boot(format string, args ...interface{})          { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{})     { Get(CategoryBoot).Debug(format, args...) }
func Ingest(format string, args ...interface{})        { Get(CategoryIngest).Info(format, args...) }
func IngestDebug(format string, args ...interface{})   { Get(CategoryIngest).Debug(format, args...) }
func Pipeline(format string, args ...interface{})      { Get(CategoryPipeline).Info(format, args...) }
func PipelineWarn(format string, args ...interface{})  { Get(CategoryPipeline).Warn(format, args...) }
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debug(format, args...) }
func Oracle(format string, args ...interface{})        { Get(CategoryOracle).Info(format, args...) }
func OracleDebug(format string, args ...interface{})   { Get(CategoryOracle).Debug(format, args...) }
func Mermaid(format string, args ...interface{})       { Get(CategoryMermaid).Info(format, args...) }
func MermaidWarn(format string, args ...interface{})   { Get(CategoryMermaid).Warn(format, args...) }
func Render(format string, args ...interface{})        { Get(CategoryRender).Info(format, args...) }
