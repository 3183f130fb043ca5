package helper

import (
	"context"
	"maps"
	"sync"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

// SpySpan is the loanledger.SpanContext handed out by TracingCollectorSpy.
type SpySpan struct {
	mu         sync.Mutex
	status     string
	attributes map[string]string
}

func (s *SpySpan) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
}

func (s *SpySpan) AddAttribute(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attributes[key] = value
}

// Attribute returns an attribute added while the span was open.
func (s *SpySpan) Attribute(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.attributes[key]

	return value, ok
}

// SpySpanRecord is one span as seen by the spy, from StartSpan to FinishSpan.
type SpySpanRecord struct {
	Name            string
	StartAttributes map[string]string
	Status          string
	EndAttributes   map[string]string
	Span            *SpySpan
}

// TracingCollectorSpy records the spans a ledger opens. A ledger operation "x" opens the span "loanledger.x".
type TracingCollectorSpy struct {
	mu          sync.Mutex
	records     []SpySpanRecord
	recordCalls bool
}

// NewTracingCollectorSpy returns a spy. With recordCalls false it hands out no spans at all.
func NewTracingCollectorSpy(recordCalls bool) *TracingCollectorSpy {
	return &TracingCollectorSpy{recordCalls: recordCalls}
}

func (s *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, loanledger.SpanContext) {
	if !s.recordCalls {
		return ctx, nil
	}

	span := &SpySpan{attributes: make(map[string]string)}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, SpySpanRecord{
		Name:            name,
		StartAttributes: maps.Clone(attrs),
		Span:            span,
	})

	return ctx, span
}

func (s *TracingCollectorSpy) FinishSpan(spanCtx loanledger.SpanContext, status string, attrs map[string]string) {
	span, ok := spanCtx.(*SpySpan)
	if !s.recordCalls || !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].Span == span {
			s.records[i].Status = status
			s.records[i].EndAttributes = maps.Clone(attrs)

			return
		}
	}
}

// SpanRecordMatcher narrows the recorded spans of one name down by status and attributes.
type SpanRecordMatcher struct {
	candidates []SpySpanRecord
}

// HasSpanRecordForName starts a match over all spans with that name.
func (s *TracingCollectorSpy) HasSpanRecordForName(name string) *SpanRecordMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	matcher := &SpanRecordMatcher{}
	for _, record := range s.records {
		if record.Name == name {
			matcher.candidates = append(matcher.candidates, record)
		}
	}

	return matcher
}

func (m *SpanRecordMatcher) WithStatus(status string) *SpanRecordMatcher {
	return m.keep(func(r SpySpanRecord) bool { return r.Status == status })
}

func (m *SpanRecordMatcher) WithStartAttribute(key, value string) *SpanRecordMatcher {
	return m.keep(func(r SpySpanRecord) bool {
		actual, ok := r.StartAttributes[key]
		return ok && actual == value
	})
}

func (m *SpanRecordMatcher) WithEndAttribute(key, value string) *SpanRecordMatcher {
	return m.keep(func(r SpySpanRecord) bool {
		actual, ok := r.EndAttributes[key]
		return ok && actual == value
	})
}

func (m *SpanRecordMatcher) keep(match func(SpySpanRecord) bool) *SpanRecordMatcher {
	kept := m.candidates[:0:0]
	for _, record := range m.candidates {
		if match(record) {
			kept = append(kept, record)
		}
	}

	m.candidates = kept

	return m
}

// Assert reports whether at least one span satisfied every condition.
func (m *SpanRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}

var _ loanledger.TracingCollector = (*TracingCollectorSpy)(nil)
