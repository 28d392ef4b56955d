package utils

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strings"
	"time"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelError
)

// Logger is a thin leveled wrapper over the standard logger. Handlers and
// services hold it by pointer; a nil receiver is safe and silent.
type Logger struct {
	std   *log.Logger
	level LogLevel
}

func NewLogger() *Logger {
	return &Logger{std: log.New(os.Stderr, "", log.LstdFlags|log.LUTC), level: LevelInfo}
}

func NewLoggerWithLevel(level string) *Logger {
	l := NewLogger()
	l.level = ParseLevel(level)
	return l
}

func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || l.std == nil || l.level > LevelDebug {
		return
	}
	l.std.Printf("DEBUG "+format, args...)
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.std == nil || l.level > LevelInfo {
		return
	}
	l.std.Printf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.std == nil {
		return
	}
	l.std.Printf("ERROR "+format, args...)
}

func NowUTC() time.Time {
	return time.Now().UTC()
}

func RandString(n int) (string, error) {
	if n <= 0 {
		n = 16
	}
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:n], nil
}
