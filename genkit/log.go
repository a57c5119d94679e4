package genkit

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ANSI color codes
const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorGray    = "\033[90m"
)

// Emoji for log levels
const (
	EmojiInfo  = "📦"
	EmojiWarn  = "⚠️"
	EmojiError = "❌"
	EmojiDone  = "✅"
	EmojiFind  = "🔍"
	EmojiWrite = "📝"
	EmojiLoad  = "📂"
)

// Logger provides styled logging for code generators.
type Logger struct {
	w       io.Writer
	noColor bool
}

// NewLogger creates a new Logger writing to stdout.
func NewLogger() *Logger {
	return &Logger{w: os.Stdout}
}

// NewLoggerWithWriter creates a new Logger with custom writer.
func NewLoggerWithWriter(w io.Writer) *Logger {
	return &Logger{w: w}
}

// SetNoColor disables color output.
func (l *Logger) SetNoColor(noColor bool) *Logger {
	l.noColor = noColor
	return l
}

func (l *Logger) format(format string, args ...any) string {
	highlighted := make([]any, len(args))
	for i, arg := range args {
		highlighted[i] = l.highlight(arg)
	}
	return fmt.Sprintf(format, highlighted...)
}

// highlight colors numbers, paths and exported identifiers.
// Paths are quoted even without color so that they stand out.
func (l *Logger) highlight(arg any) any {
	switch v := arg.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return l.paint(colorYellow, fmt.Sprint(v))
	case GoImportPath:
		return l.paint(colorMagenta, "'"+string(v)+"'")
	case string:
		switch {
		case isPathLike(v):
			return l.paint(colorMagenta, "'"+v+"'")
		case v != "" && !strings.Contains(v, " ") && v[0] >= 'A' && v[0] <= 'Z':
			return l.paint(colorCyan, v)
		}
		return v
	default:
		return arg
	}
}

func isPathLike(s string) bool {
	return strings.Contains(s, "/") || (strings.Contains(s, ".") && !strings.Contains(s, " "))
}

func (l *Logger) paint(color, s string) string {
	if l.noColor {
		return s
	}
	return color + s + colorReset
}

// line writes "<emoji><pad>[TAG] message".
func (l *Logger) line(emoji, pad, color, tag, format string, args ...any) {
	_, _ = fmt.Fprintf(l.w, "%s%s%s %s\n", emoji, pad, l.paint(color, "["+tag+"]"), l.format(format, args...))
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...any) {
	l.line(EmojiInfo, "  ", colorBlue, "INFO", format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.line(EmojiWarn, "  ", colorYellow, "WARN", format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.line(EmojiError, " ", colorRed, "ERROR", format, args...)
}

// Done logs a completion message.
func (l *Logger) Done(format string, args ...any) {
	l.line(EmojiDone, "  ", colorGreen, "DONE", format, args...)
}

// Find logs a discovery message.
func (l *Logger) Find(format string, args ...any) {
	l.line(EmojiFind, "  ", colorCyan, "FIND", format, args...)
}

// Write logs a file write message.
func (l *Logger) Write(format string, args ...any) {
	l.line(EmojiWrite, " ", colorGreen, "WRITE", format, args...)
}

// Load logs a loading message.
func (l *Logger) Load(format string, args ...any) {
	l.line(EmojiLoad, "  ", colorBlue, "LOAD", format, args...)
}

// Item logs an indented item under the previous log entry.
func (l *Logger) Item(format string, args ...any) {
	_, _ = fmt.Fprintf(l.w, "           %s %s\n", l.paint(colorGray, "•"), l.format(format, args...))
}
