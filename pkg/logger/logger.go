// Copyright 2026 The Orchid Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger builds the slog.Logger the CLI hands to the Interpreter
// (interp.Options.Logger) and to the ambient stack (pkg/plugin's hclog
// bridge, pkg/config's koanf loader). Unlike a framework that leans on
// slog.SetDefault and filters third-party noise by walking the call stack,
// Orchid's own code always receives its logger by explicit injection, so
// there is no ambient-default traffic to filter here — verbosity is
// controlled purely by level.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// ParseLevel converts a CLI --log-level string to a slog.Level. An
// unrecognized value falls back to Warn rather than erroring, since a typo'd
// flag shouldn't keep a script from running.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// lineHandler renders one record per line as "LEVEL message key=value ...",
// with an optional leading timestamp (verbose) and ANSI color (terminal
// output only). It replaces the teacher's three-handler stack (a base
// TextHandler wrapped by a color handler wrapped by a filter handler) with a
// single formatter, since Orchid's CLI only ever selects "simple" or
// "verbose" — there is no passthrough-to-TextHandler custom-format case to
// support.
type lineHandler struct {
	writer  io.Writer
	level   slog.Leveler
	verbose bool
	color   bool
	attrs   []slog.Attr
	group   string
}

func newLineHandler(w io.Writer, level slog.Leveler, verbose bool) *lineHandler {
	f, ok := w.(*os.File)
	color := ok && isTerminal(f)
	return &lineHandler{writer: w, level: level, verbose: verbose, color: color}
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *lineHandler) Handle(_ context.Context, record slog.Record) error {
	var buf strings.Builder

	if h.verbose && !record.Time.IsZero() {
		buf.WriteString(record.Time.Format("2006/01/02 15:04:05 "))
	}

	levelStr := normalizeLevel(record.Level)
	if h.color {
		buf.WriteString(colorFor(record.Level))
		buf.WriteString(levelStr)
		buf.WriteString("\033[0m")
	} else {
		buf.WriteString(levelStr)
	}
	buf.WriteByte(' ')
	if h.group != "" {
		buf.WriteString(h.group)
		buf.WriteByte(':')
	}
	buf.WriteString(record.Message)

	for _, a := range h.attrs {
		writeAttr(&buf, a)
	}
	record.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, a)
		return true
	})
	buf.WriteByte('\n')

	_, err := h.writer.Write([]byte(buf.String()))
	return err
}

func writeAttr(buf *strings.Builder, a slog.Attr) {
	buf.WriteByte(' ')
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	buf.WriteString(a.Value.String())
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	next := *h
	if h.group == "" {
		next.group = name
	} else {
		next.group = h.group + "." + name
	}
	return &next
}

func normalizeLevel(level slog.Level) string {
	s := level.String()
	if s == "WARNING" {
		s = "WARN"
	}
	return strings.ToUpper(s)
}

func colorFor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m" // red
	case level >= slog.LevelWarn:
		return "\033[33m" // yellow
	case level >= slog.LevelInfo:
		return "\033[36m" // cyan
	default:
		return "\033[90m" // gray
	}
}

func isTerminal(file *os.File) bool {
	fileInfo, err := file.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// Init builds the process-wide default logger. format is "verbose" (adds a
// timestamp prefix) or anything else, which gets the simple "LEVEL message"
// form; color is added automatically when output is a terminal.
func Init(level slog.Level, output *os.File, format string) {
	handler := newLineHandler(output, level, format == "verbose")
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// OpenLogFile opens (creating if needed) a log file for append, returning a
// cleanup func that closes it.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}

// GetLogger returns the process-wide logger, initializing it at Info level
// with the simple format if Init hasn't run yet.
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, "simple")
	}
	return defaultLogger
}
