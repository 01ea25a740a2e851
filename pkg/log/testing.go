package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// captureSink is shared by a TestLogger and every logger derived from it
// through With.
type captureSink struct {
	mu  sync.Mutex
	out *bytes.Buffer
}

func (s *captureSink) write(record map[string]interface{}) {
	line, err := json.Marshal(record)
	if err != nil {
		line, _ = json.Marshal(map[string]interface{}{
			"level":   record["level"],
			"message": record["message"],
			"marshal": err.Error(),
		})
	}
	s.mu.Lock()
	s.out.Write(append(line, '\n'))
	s.mu.Unlock()
}

func (s *captureSink) snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

// TestLogger is a Logger that records one JSON object per line in memory,
// for assertions on what a component logged.
type TestLogger struct {
	sink  *captureSink
	min   Level
	bound []any
}

// NewTestLogger returns a TestLogger keeping records at or above min and
// the buffer they are written to.
//
//	logger, buf := log.NewTestLogger(log.LevelDebug)
//	env := pipeline.Env{Logger: logger}
func NewTestLogger(min Level) (*TestLogger, *bytes.Buffer) {
	sink := &captureSink{out: &bytes.Buffer{}}
	return &TestLogger{sink: sink, min: min}, sink.out
}

func (t *TestLogger) Debug(msg string, fields ...any) { t.log(LevelDebug, msg, fields) }
func (t *TestLogger) Info(msg string, fields ...any)  { t.log(LevelInfo, msg, fields) }
func (t *TestLogger) Warn(msg string, fields ...any)  { t.log(LevelWarn, msg, fields) }

// Error accepts a leading error in place of an ErrAttrKey pair, like the
// zerolog logger.
func (t *TestLogger) Error(msg string, fields ...any) {
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			fields = append([]any{ErrAttrKey, err}, fields[1:]...)
		}
	}
	t.log(LevelError, msg, fields)
}

// With returns a logger that adds fields to every record. It writes to the
// same buffer.
func (t *TestLogger) With(fields ...any) Logger {
	bound := make([]any, 0, len(t.bound)+len(fields))
	bound = append(append(bound, t.bound...), fields...)
	return &TestLogger{sink: t.sink, min: t.min, bound: bound}
}

func (t *TestLogger) Enabled(_ context.Context, level Level) bool {
	return level >= t.min
}

func (t *TestLogger) log(level Level, msg string, fields []any) {
	if level < t.min {
		return
	}
	record := map[string]interface{}{"level": level.String(), "message": msg}
	setPairs(record, t.bound)
	setPairs(record, fields)
	t.sink.write(record)
}

func setPairs(dst map[string]interface{}, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		value := kv[i+1]
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		dst[fmt.Sprint(kv[i])] = value
	}
}

// GetLogEntries decodes every captured record. Numbers decode as float64.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	var entries []map[string]interface{}
	for _, line := range strings.Split(t.sink.snapshot(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry := make(map[string]interface{})
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ContainsMessage reports whether message occurs anywhere in the output.
func (t *TestLogger) ContainsMessage(message string) bool {
	return strings.Contains(t.sink.snapshot(), message)
}

// ContainsField reports whether some record sets key to value, compared
// after a JSON round trip.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if got, ok := entry[key]; ok && got == value {
			return true
		}
	}
	return false
}

// Clear drops everything captured so far.
func (t *TestLogger) Clear() {
	t.sink.mu.Lock()
	t.sink.out.Reset()
	t.sink.mu.Unlock()
}
