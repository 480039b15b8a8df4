// Package logging provides categorized logging for the research pipeline.
// Every subsystem logs through its own category so noisy areas (pool, fetch)
// can be silenced without losing pipeline-level output.
// Until Init is called every logger is a no-op.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config loading
	CategoryPool     Category = "pool"     // Worker pool acquire/release/recycle
	CategoryFetch    Category = "fetch"    // Single-URL and batch fetching
	CategoryExtract  Category = "extract"  // Main-content extraction
	CategoryDocs     Category = "docs"     // Document (PDF/text) extraction
	CategorySearch   Category = "search"   // Search provider calls
	CategoryLLM      Category = "llm"      // Language model calls
	CategoryMemory   Category = "memory"   // Memory store operations
	CategoryPipeline Category = "pipeline" // Stage machine transitions
)

// Config mirrors config.LoggingConfig to avoid circular imports.
type Config struct {
	Level      string          // debug, info, warn, error
	Format     string          // json or console
	Categories map[string]bool // missing categories are enabled
	Outputs    []string        // zap output paths, default stderr
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Init builds the process logger. Safe to call more than once; the last call wins.
func Init(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	var zc zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.Outputs) > 0 {
		zc.OutputPaths = cfg.Outputs
	} else {
		zc.OutputPaths = []string{"stderr"}
	}

	z, err := zc.Build()
	if err != nil {
		return fmt.Errorf("build zap logger: %w", err)
	}
	replace(z, cfg.Categories)
	return nil
}

// UseLogger installs an already-built zap logger, e.g. zaptest or an observer core.
func UseLogger(z *zap.Logger) {
	if z == nil {
		z = zap.NewNop()
	}
	replace(z, nil)
}

func replace(z *zap.Logger, cats map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	base = z
	categories = cats
	loggers = make(map[Category]*Logger)
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, ok := categories[string(category)]
	return !ok || enabled
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	z := base
	if categories != nil {
		if enabled, ok := categories[string(category)]; ok && !enabled {
			z = zap.NewNop()
		}
	}
	l := &Logger{category: category, sugar: z.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// With returns a child logger carrying structured key/value fields.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(kv...)}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// Sync flushes buffered entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func Pool(format string, args ...interface{})      { Get(CategoryPool).Info(format, args...) }
func PoolDebug(format string, args ...interface{}) { Get(CategoryPool).Debug(format, args...) }
func PoolWarn(format string, args ...interface{})  { Get(CategoryPool).Warn(format, args...) }
func PoolError(format string, args ...interface{}) { Get(CategoryPool).Error(format, args...) }

func Fetch(format string, args ...interface{})      { Get(CategoryFetch).Info(format, args...) }
func FetchDebug(format string, args ...interface{}) { Get(CategoryFetch).Debug(format, args...) }
func FetchWarn(format string, args ...interface{})  { Get(CategoryFetch).Warn(format, args...) }

func Extract(format string, args ...interface{})      { Get(CategoryExtract).Info(format, args...) }
func ExtractDebug(format string, args ...interface{}) { Get(CategoryExtract).Debug(format, args...) }

func Docs(format string, args ...interface{})      { Get(CategoryDocs).Info(format, args...) }
func DocsDebug(format string, args ...interface{}) { Get(CategoryDocs).Debug(format, args...) }
func DocsWarn(format string, args ...interface{})  { Get(CategoryDocs).Warn(format, args...) }

func Search(format string, args ...interface{})      { Get(CategorySearch).Info(format, args...) }
func SearchDebug(format string, args ...interface{}) { Get(CategorySearch).Debug(format, args...) }
func SearchWarn(format string, args ...interface{})  { Get(CategorySearch).Warn(format, args...) }

func LLM(format string, args ...interface{})      { Get(CategoryLLM).Info(format, args...) }
func LLMDebug(format string, args ...interface{}) { Get(CategoryLLM).Debug(format, args...) }
func LLMWarn(format string, args ...interface{})  { Get(CategoryLLM).Warn(format, args...) }

func Memory(format string, args ...interface{})      { Get(CategoryMemory).Info(format, args...) }
func MemoryDebug(format string, args ...interface{}) { Get(CategoryMemory).Debug(format, args...) }
func MemoryWarn(format string, args ...interface{})  { Get(CategoryMemory).Warn(format, args...) }

func Pipeline(format string, args ...interface{})      { Get(CategoryPipeline).Info(format, args...) }
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debug(format, args...) }
func PipelineWarn(format string, args ...interface{})  { Get(CategoryPipeline).Warn(format, args...) }
func PipelineError(format string, args ...interface{}) { Get(CategoryPipeline).Error(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
