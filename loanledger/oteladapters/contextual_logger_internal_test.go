package oteladapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log"
)

func Test_buildRecord(t *testing.T) {
	record := buildRecord(
		log.SeverityWarn,
		"loanledger operation rejected: cancel",
		"error_type", "invalid_transition",
		"duration_ms", 0.75,
		"rows_affected", int64(3),
		"already_returned", true,
		17, "ignored",
		"dangling",
	)

	assert.Equal(t, log.SeverityWarn, record.Severity())
	assert.Equal(t, "loanledger operation rejected: cancel", record.Body().AsString())

	attrs := map[string]log.Value{}
	record.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})

	assert.Len(t, attrs, 4)
	assert.Equal(t, "invalid_transition", attrs["error_type"].AsString())
	assert.InDelta(t, 0.75, attrs["duration_ms"].AsFloat64(), 0.0001)
	assert.Equal(t, int64(3), attrs["rows_affected"].AsInt64())
	assert.True(t, attrs["already_returned"].AsBool())
}
