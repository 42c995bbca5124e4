package helper

import (
	"context"
	"sync"
)

// ContextualLoggerSpy captures context-aware log calls for testing registry instrumentation.
type ContextualLoggerSpy struct {
	logRecords  []SpyContextualLogRecord
	mu          sync.Mutex
	recordCalls bool
}

// SpyContextualLogRecord represents a captured log call.
type SpyContextualLogRecord struct {
	Level string
	Msg   string
	Args  []any
}

// NewContextualLoggerSpy creates a new ContextualLoggerSpy.
// Set recordCalls to true to capture all log calls for inspection in tests.
func NewContextualLoggerSpy(recordCalls bool) *ContextualLoggerSpy {
	return &ContextualLoggerSpy{
		logRecords:  make([]SpyContextualLogRecord, 0),
		recordCalls: recordCalls,
	}
}

// DebugContext implements the ContextualLogger interface.
func (s *ContextualLoggerSpy) DebugContext(_ context.Context, msg string, args ...any) {
	s.record("debug", msg, args)
}

// InfoContext implements the ContextualLogger interface.
func (s *ContextualLoggerSpy) InfoContext(_ context.Context, msg string, args ...any) {
	s.record("info", msg, args)
}

// WarnContext implements the ContextualLogger interface.
func (s *ContextualLoggerSpy) WarnContext(_ context.Context, msg string, args ...any) {
	s.record("warn", msg, args)
}

// ErrorContext implements the ContextualLogger interface.
func (s *ContextualLoggerSpy) ErrorContext(_ context.Context, msg string, args ...any) {
	s.record("error", msg, args)
}

func (s *ContextualLoggerSpy) record(level string, msg string, args []any) {
	if !s.recordCalls {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	argsCopy := make([]any, len(args))
	copy(argsCopy, args)

	s.logRecords = append(s.logRecords, SpyContextualLogRecord{
		Level: level,
		Msg:   msg,
		Args:  argsCopy,
	})
}

// GetLogRecords returns a copy of all captured log records.
func (s *ContextualLoggerSpy) GetLogRecords() []SpyContextualLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SpyContextualLogRecord, len(s.logRecords))
	copy(records, s.logRecords)

	return records
}

// HasLogRecord checks if a log call with the given level and message was captured.
func (s *ContextualLoggerSpy) HasLogRecord(level string, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.logRecords {
		if record.Level == level && record.Msg == msg {
			return true
		}
	}

	return false
}

// CountLogRecords returns how many log calls were captured for the given level.
func (s *ContextualLoggerSpy) CountLogRecords(level string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, record := range s.logRecords {
		if record.Level == level {
			count++
		}
	}

	return count
}

// Reset clears all captured log records.
func (s *ContextualLoggerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logRecords = s.logRecords[:0]
}
