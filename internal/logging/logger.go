package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is the subset of *slog.Logger the rest of the tree needs.
// Taking the interface keeps callers testable with a fake.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// registry owns every module logger and its runtime-adjustable level.
type registry struct {
	mu      sync.RWMutex
	loggers map[string]*slog.Logger
	levels  map[string]*slog.LevelVar
	config  Config
	ready   bool
	buffer  *RingBuffer
	rootVar *slog.LevelVar
}

var reg = &registry{
	loggers: make(map[string]*slog.Logger),
	levels:  make(map[string]*slog.LevelVar),
	rootVar: &slog.LevelVar{},
}

// Initialize applies the configuration. Loggers handed out earlier
// keep working: their level vars are retuned and their handlers
// rebuilt so format changes and the ring buffer apply to them too.
func Initialize(config Config) { reg.init(config) }

// GetLogger returns the logger for a module, creating it on first use.
func GetLogger(module string) *slog.Logger { return reg.logger(module) }

// GetBuffer returns the ring buffer behind the diagnostics API's log
// endpoint, or nil before Initialize.
func GetBuffer() *RingBuffer { return reg.getBuffer() }

// SetModuleLevel changes one module's level at runtime.
func SetModuleLevel(module, level string) error { return reg.setLevel(module, level) }

func (r *registry) init(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.config = cfg
	r.ready = true
	r.buffer = NewRingBuffer(defaultBufferSize)

	root := levelOr(cfg.Level, slog.LevelInfo)
	r.rootVar.Set(root)

	// Rebuild existing loggers: handlers created before Initialize may
	// carry the wrong format. The LevelVar instances are kept so
	// handlers cached elsewhere pick up the new levels too.
	for module, lv := range r.levels {
		lv.Set(r.moduleLevelLocked(module, root))
		r.loggers[module] = slog.New(newHandler(cfg.Format, lv)).With("module", module)
	}

	slog.SetDefault(slog.New(newHandler(cfg.Format, r.rootVar)))
}

func (r *registry) getBuffer() *RingBuffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buffer
}

func (r *registry) logger(module string) *slog.Logger {
	r.mu.RLock()
	logger, ok := r.loggers[module]
	r.mu.RUnlock()
	if ok {
		return logger
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have won the race.
	if logger, ok := r.loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	format := "text"
	if r.ready {
		lv.Set(r.moduleLevelLocked(module, levelOr(r.config.Level, slog.LevelInfo)))
		format = r.config.Format
	} else {
		lv.Set(slog.LevelInfo)
	}

	logger = slog.New(newHandler(format, lv)).With("module", module)
	r.loggers[module] = logger
	r.levels[module] = lv
	return logger
}

func (r *registry) setLevel(module, level string) error {
	parsed := parseLevel(level)
	if parsed == nil {
		return fmt.Errorf("unknown level %q", level)
	}

	r.mu.RLock()
	lv, ok := r.levels[module]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown module %q", module)
	}
	lv.Set(*parsed)
	return nil
}

// moduleLevelLocked resolves a module's configured level. Callers hold r.mu.
func (r *registry) moduleLevelLocked(module string, fallback slog.Level) slog.Level {
	if raw, ok := r.config.Modules[module]; ok {
		if lv := parseLevel(raw); lv != nil {
			return *lv
		}
	}
	return fallback
}

// newHandler builds the fan-out for one logger: stdout in the chosen
// format, journald when reachable, and always the ring buffer.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	if format == "json" {
		console = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		console = slog.NewTextHandler(os.Stdout, opts)
	}

	handlers := make([]slog.Handler, 0, 3)
	if stdoutUsable() {
		handlers = append(handlers, console)
	}
	if journalAvailable() {
		handlers = append(handlers, newJournalHandler(level))
	}
	handlers = append(handlers, newBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return newTee(handlers...)
}

// stdoutUsable reports whether stdout leads anywhere: a terminal,
// pipe, socket, or regular file. Redirection to /dev/null fails the
// check and silences the console handler.
func stdoutUsable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOr(raw string, fallback slog.Level) slog.Level {
	if lv := parseLevel(raw); lv != nil {
		return *lv
	}
	return fallback
}

// parseLevel converts a level string to a slog.Level; nil when unknown.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
