// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/the-crypt-keeper/scribe/internal/config"
)

// Manager builds and caches the per-package loggers a pipeline run
// writes to. A run typically fans out across store/dispatcher/steps/llm
// goroutines simultaneously, so every logger it hands out shares one set
// of underlying writers rather than each package opening its own files.
type Manager struct {
	config         *config.LogConfig
	base           zerolog.Logger
	packageLoggers map[string]zerolog.Logger
	mu             sync.RWMutex
	closers        []io.Closer
}

// sink pairs a configured writer with the output kind that produced it,
// so a later pass can decide whether to wrap it for console formatting
// without re-deriving that from cfg.Output by index (outputs skipped for
// being disabled would otherwise shift writers out of alignment with
// their cfg.Output entry).
type sink struct {
	w      io.Writer
	isFile bool
}

// NewManager builds a Manager from a run's log configuration, opening
// every enabled output (file handles, rotating files) up front.
func NewManager(cfg *config.LogConfig) (*Manager, error) {
	m := &Manager{
		config:         cfg,
		packageLoggers: make(map[string]zerolog.Logger),
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano

	sinks, err := m.openSinks(cfg)
	if err != nil {
		return nil, fmt.Errorf("open log sinks: %w", err)
	}
	if len(sinks) == 0 {
		fallback, err := openFallbackSink()
		if err != nil {
			return nil, err
		}
		sinks = []sink{fallback}
	}

	writers := formatSinks(sinks, cfg.Format)
	for _, s := range sinks {
		if c, ok := s.w.(io.Closer); ok {
			m.closers = append(m.closers, c)
		}
	}

	var out io.Writer
	if len(writers) == 1 {
		out = writers[0]
	} else {
		out = io.MultiWriter(writers...)
	}
	m.base = m.buildLogger(out, parseLevel(cfg.Level))

	// The global zerolog default logger is left untouched; every package
	// must go through GetLogger so its "pkg" field is always set.
	return m, nil
}

// openSinks opens one writer per enabled output in cfg.Output.
func (m *Manager) openSinks(cfg *config.LogConfig) ([]sink, error) {
	var sinks []sink
	for _, output := range cfg.Output {
		if !output.Enabled {
			continue
		}

		switch output.Type {
		case "console":
			sinks = append(sinks, sink{w: os.Stderr, isFile: false})

		case "file":
			w, err := openFileSink(output)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink{w: w, isFile: true})

		default:
			return nil, fmt.Errorf("unsupported log output type: %s", output.Type)
		}
	}
	return sinks, nil
}

// openFileSink opens the file an output config names, rotating it with
// lumberjack when a size limit is set and appending to a plain handle
// otherwise.
func openFileSink(output config.LogOutputConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(output.Path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory for %s: %w", output.Path, err)
	}

	if output.Rotate.MaxSizeMB > 0 {
		return &lumberjack.Logger{
			Filename:   output.Path,
			MaxSize:    output.Rotate.MaxSizeMB,
			MaxBackups: output.Rotate.MaxBackups,
			MaxAge:     output.Rotate.MaxAgeDays,
			Compress:   output.Rotate.Compress,
		}, nil
	}

	file, err := os.OpenFile(output.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", output.Path, err)
	}
	return file, nil
}

// openFallbackSink is used when a run's config ends up with no enabled
// output at all, so a misconfigured run still lands its logs somewhere
// instead of silently discarding them.
func openFallbackSink() (sink, error) {
	const path = "./logs/scribe-fallback.log"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return sink{}, fmt.Errorf("create fallback log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return sink{}, fmt.Errorf("open fallback log file: %w", err)
	}
	return sink{w: file, isFile: true}, nil
}

// formatSinks applies console-style formatting to every writer when the
// run is configured for console output: stderr gets colored human
// output, and file sinks get the same layout minus color codes so a
// tailed log file reads the same as the terminal did.
func formatSinks(sinks []sink, format string) []io.Writer {
	writers := make([]io.Writer, len(sinks))
	for i, s := range sinks {
		if format != "console" {
			writers[i] = s.w
			continue
		}
		if s.isFile {
			writers[i] = consoleWriter(s.w, "2006-01-02 15:04:05.000", true)
		} else {
			writers[i] = consoleWriter(s.w, "15:04:05.000", false)
		}
	}
	return writers
}

func consoleWriter(out io.Writer, timeFormat string, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: timeFormat,
		NoColor:    noColor,
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("%s:", i)
		},
		FormatFieldValue: func(i interface{}) string {
			return fmt.Sprintf("%s", i)
		},
	}
}

// buildLogger applies the context/sampling options a run's config asks
// for on top of a raw writer.
func (m *Manager) buildLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	l := zerolog.New(w).Level(level)

	if m.config.Context.IncludeTimestamp {
		l = l.With().Timestamp().Logger()
	}
	if m.config.Context.IncludeCaller {
		l = l.With().Caller().Logger()
	}
	if m.config.Context.IncludeStackTrace != "" {
		l = l.With().Stack().Logger()
	}
	if m.config.Sampling.Enabled {
		l = l.Sample(&zerolog.BurstSampler{
			Burst:       m.config.Sampling.Initial,
			Period:      m.config.Sampling.Tick,
			NextSampler: &zerolog.BasicSampler{N: m.config.Sampling.Thereafter},
		})
	}

	return l
}

// GetLogger returns the cached logger for a package, tagged with its
// name and leveled per cfg.Levels[pkg] (falling back to the global
// level), building and caching one on first use.
func (m *Manager) GetLogger(pkg string) zerolog.Logger {
	m.mu.RLock()
	l, ok := m.packageLoggers[pkg]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.packageLoggers[pkg]; ok {
		return l
	}

	level := parseLevel(m.config.Level)
	if pkgLevel, ok := m.config.Levels[pkg]; ok {
		level = parseLevel(pkgLevel)
	}

	l = m.base.With().Str("pkg", pkg).Logger().Level(level)
	m.packageLoggers[pkg] = l
	return l
}

// SetPackageLevel changes a package's level at runtime, e.g. in response
// to a CLI flag raising verbosity for one subsystem mid-run.
func (m *Manager) SetPackageLevel(pkg string, level string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.Levels == nil {
		m.config.Levels = make(map[string]string)
	}
	m.config.Levels[pkg] = level

	if l, ok := m.packageLoggers[pkg]; ok {
		m.packageLoggers[pkg] = l.Level(parseLevel(level))
	}
}

// Close flushes and closes every opened sink whose writer is an
// io.Closer: file sinks, and also os.Stderr for console outputs.
func (m *Manager) Close() error {
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return nil
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	case "PANIC":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

var (
	globalManager *Manager
	once          sync.Once
)

// Initialize sets up the process-wide logger manager. Only the first
// call takes effect; a pipeline run and its CLI wrapper both call this,
// and only one of them should win.
func Initialize(cfg *config.LogConfig) error {
	var err error
	once.Do(func() {
		globalManager, err = NewManager(cfg)
	})
	return err
}

// GetLogger returns a logger for pkg from the global manager, or a
// discard logger before Initialize has run so tests and early startup
// code never hit a nil manager.
func GetLogger(pkg string) zerolog.Logger {
	if globalManager == nil {
		return zerolog.New(io.Discard).With().Timestamp().Logger()
	}
	return globalManager.GetLogger(pkg)
}

// CloseGlobal closes the global manager's sinks, e.g. during CLI
// shutdown once a run has reached quiescence.
func CloseGlobal() error {
	if globalManager != nil {
		return globalManager.Close()
	}
	return nil
}
