package helper

import (
	"maps"
	"sync"
	"time"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

type metricKind int

const (
	durationMetric metricKind = iota
	counterMetric
	valueMetric
)

// SpyMetricRecord is one captured metrics call. Duration is set for durations, Value for values.
type SpyMetricRecord struct {
	Metric   string
	Duration time.Duration
	Value    float64
	Labels   map[string]string
	kind     metricKind
}

// MetricsCollectorSpy captures loanledger.MetricsCollector calls.
// It does not implement the contextual variant, so the ledger takes its plain path.
type MetricsCollectorSpy struct {
	mu          sync.Mutex
	records     []SpyMetricRecord
	recordCalls bool
}

func NewMetricsCollectorSpy(recordCalls bool) *MetricsCollectorSpy {
	return &MetricsCollectorSpy{recordCalls: recordCalls}
}

func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.record(SpyMetricRecord{Metric: metric, Duration: duration, Labels: labels, kind: durationMetric})
}

func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.record(SpyMetricRecord{Metric: metric, Labels: labels, kind: counterMetric})
}

func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.record(SpyMetricRecord{Metric: metric, Value: value, Labels: labels, kind: valueMetric})
}

func (s *MetricsCollectorSpy) record(r SpyMetricRecord) {
	if !s.recordCalls {
		return
	}

	r.Labels = maps.Clone(r.Labels)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)
}

func (s *MetricsCollectorSpy) recordsOf(kind metricKind, metric string) []SpyMetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matching []SpyMetricRecord
	for _, r := range s.records {
		if r.kind == kind && (metric == "" || r.Metric == metric) {
			matching = append(matching, r)
		}
	}

	return matching
}

// GetValueRecords returns all captured RecordValue calls.
func (s *MetricsCollectorSpy) GetValueRecords() []SpyMetricRecord {
	return s.recordsOf(valueMetric, "")
}

func (s *MetricsCollectorSpy) CountCounterRecordsForMetric(metric string) int {
	return len(s.recordsOf(counterMetric, metric))
}

// MetricRecordMatcher narrows records down by label. Assert reports whether any record is left.
type MetricRecordMatcher struct {
	candidates []map[string]string
}

func (s *MetricsCollectorSpy) HasDurationRecordForMetric(metric string) *MetricRecordMatcher {
	return newMetricRecordMatcher(s.recordsOf(durationMetric, metric))
}

func (s *MetricsCollectorSpy) HasCounterRecordForMetric(metric string) *MetricRecordMatcher {
	return newMetricRecordMatcher(s.recordsOf(counterMetric, metric))
}

func newMetricRecordMatcher(records []SpyMetricRecord) *MetricRecordMatcher {
	m := &MetricRecordMatcher{}
	for _, r := range records {
		m.candidates = append(m.candidates, r.Labels)
	}

	return m
}

func (m *MetricRecordMatcher) WithOperation(operation string) *MetricRecordMatcher {
	return m.WithLabel("operation", operation)
}

func (m *MetricRecordMatcher) WithStatus(status string) *MetricRecordMatcher {
	return m.WithLabel("status", status)
}

func (m *MetricRecordMatcher) WithErrorType(errorType string) *MetricRecordMatcher {
	return m.WithLabel("error_type", errorType)
}

func (m *MetricRecordMatcher) WithLabel(key, value string) *MetricRecordMatcher {
	kept := m.candidates[:0:0]
	for _, labels := range m.candidates {
		if actual, ok := labels[key]; ok && actual == value {
			kept = append(kept, labels)
		}
	}

	m.candidates = kept

	return m
}

func (m *MetricRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}

var _ loanledger.MetricsCollector = (*MetricsCollectorSpy)(nil)
