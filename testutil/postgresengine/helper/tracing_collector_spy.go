package helper

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/deposit-pooling-go/pooling"
)

// TracingCollectorSpy captures tracing calls for testing registry instrumentation.
type TracingCollectorSpy struct {
	spanRecords []SpySpanRecord
	mu          sync.Mutex
	recordCalls bool
}

// SpySpanRecord represents a full span lifecycle captured by the spy.
type SpySpanRecord struct {
	Name        string
	StartAttrs  map[string]string
	FinishAttrs map[string]string
	Status      string
	Finished    bool
}

// SpySpanContext is the SpanContext handed out by the spy's StartSpan.
type SpySpanContext struct {
	spy   *TracingCollectorSpy
	index int
}

// SetStatus implements the SpanContext interface.
func (s *SpySpanContext) SetStatus(status string) {
	s.spy.mu.Lock()
	defer s.spy.mu.Unlock()

	s.spy.spanRecords[s.index].Status = status
}

// AddAttribute implements the SpanContext interface.
func (s *SpySpanContext) AddAttribute(key, value string) {
	s.spy.mu.Lock()
	defer s.spy.mu.Unlock()

	s.spy.spanRecords[s.index].StartAttrs[key] = value
}

// NewTracingCollectorSpy creates a new TracingCollectorSpy.
// Set recordCalls to true to capture all spans for inspection in tests.
func NewTracingCollectorSpy(recordCalls bool) *TracingCollectorSpy {
	return &TracingCollectorSpy{
		spanRecords: make([]SpySpanRecord, 0),
		recordCalls: recordCalls,
	}
}

// StartSpan implements the TracingCollector interface.
func (s *TracingCollectorSpy) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, pooling.SpanContext) {

	if !s.recordCalls {
		return ctx, &SpySpanContext{spy: s, index: -1}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.spanRecords = append(s.spanRecords, SpySpanRecord{
		Name:       name,
		StartAttrs: copyLabels(attrs),
	})

	return ctx, &SpySpanContext{spy: s, index: len(s.spanRecords) - 1}
}

// FinishSpan implements the TracingCollector interface.
func (s *TracingCollectorSpy) FinishSpan(spanCtx pooling.SpanContext, status string, attrs map[string]string) {
	spySpan, ok := spanCtx.(*SpySpanContext)
	if !ok || spySpan.index < 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := &s.spanRecords[spySpan.index]
	record.Status = status
	record.FinishAttrs = copyLabels(attrs)
	record.Finished = true
}

// GetSpanRecords returns a copy of all captured span records.
func (s *TracingCollectorSpy) GetSpanRecords() []SpySpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SpySpanRecord, len(s.spanRecords))
	copy(records, s.spanRecords)

	return records
}

// HasFinishedSpan checks if there's a finished span with the given name and status.
func (s *TracingCollectorSpy) HasFinishedSpan(name string, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.spanRecords {
		if record.Name == name && record.Status == status && record.Finished {
			return true
		}
	}

	return false
}

// CountSpans returns how many spans were started with the given name.
func (s *TracingCollectorSpy) CountSpans(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, record := range s.spanRecords {
		if record.Name == name {
			count++
		}
	}

	return count
}

// Reset clears all captured span records.
func (s *TracingCollectorSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spanRecords = s.spanRecords[:0]
}
