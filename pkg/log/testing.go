// Package log provides testing utilities for structured logging.
//
// TestLogger is the production zerolog backend writing into an in-memory
// buffer, so tests assert on exactly the JSON lines a run would emit.

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
)

// syncBuffer serialises writes from concurrent workers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// TestLogger captures all log records in memory for later inspection.
type TestLogger struct {
	*ZerologLogger
	buffer *syncBuffer
}

// NewTestLogger creates a TestLogger with the specified minimum level.
//
//	logger := log.NewTestLogger(log.LevelDebug)
//	prev := log.SetLogger(logger)
//	defer log.SetLogger(prev)
func NewTestLogger(level Level) *TestLogger {
	buffer := &syncBuffer{}
	return &TestLogger{
		ZerologLogger: NewLogger(buffer, level),
		buffer:        buffer,
	}
}

// With implements Logger.With; the derived logger shares the capture buffer.
func (t *TestLogger) With(fields ...any) Logger {
	derived := t.ZerologLogger.With(fields...).(*ZerologLogger)
	return &TestLogger{ZerologLogger: derived, buffer: t.buffer}
}

// String returns the raw captured output.
func (t *TestLogger) String() string {
	return t.buffer.String()
}

// GetLogEntries parses the captured JSON lines.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	var entries []map[string]interface{}
	lines := strings.Split(strings.TrimSpace(t.buffer.String()), "\n")

	for _, line := range lines {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ContainsMessage reports whether any captured record contains message.
func (t *TestLogger) ContainsMessage(message string) bool {
	return strings.Contains(t.buffer.String(), message)
}

// ContainsField reports whether any record has key equal to value. Numbers
// decode as float64.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if fieldValue, exists := entry[key]; exists && fieldValue == value {
			return true
		}
	}
	return false
}

// Clear clears all captured log content.
func (t *TestLogger) Clear() {
	t.buffer.Reset()
}

// TestLoggerProvider implements LoggerProvider for tests.
type TestLoggerProvider struct {
	logger *TestLogger
}

// NewTestLoggerProvider creates a provider whose loggers share one buffer.
func NewTestLoggerProvider(level Level) *TestLoggerProvider {
	return &TestLoggerProvider{logger: NewTestLogger(level)}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *TestLoggerProvider) GetLogger() Logger {
	return p.logger
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *TestLoggerProvider) GetLoggerWithName(name string) Logger {
	return p.logger.With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *TestLoggerProvider) SetLevel(level Level) {
	p.logger = &TestLogger{ZerologLogger: NewLogger(p.logger.buffer, level), buffer: p.logger.buffer}
}

// Logger returns the capturing logger.
func (p *TestLoggerProvider) Logger() *TestLogger {
	return p.logger
}
