package notify

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrAuditLogClosed is returned by Append after Close.
var ErrAuditLogClosed = errors.New("audit log is closed")

// JSONLinesAuditLog writes one JSON document per audit record and line.
type JSONLinesAuditLog struct {
	mu      sync.Mutex
	encoder *jsoniter.Encoder
	closer  io.Closer
	closed  bool
}

// NewJSONLinesAuditLog writes to w. Closing the log does not close w.
func NewJSONLinesAuditLog(w io.Writer) *JSONLinesAuditLog {
	return &JSONLinesAuditLog{encoder: jsonAPI.NewEncoder(w)}
}

// OpenJSONLinesAuditLog appends to the file at path, creating it if needed.
func OpenJSONLinesAuditLog(path string) (*JSONLinesAuditLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}

	return &JSONLinesAuditLog{encoder: jsonAPI.NewEncoder(file), closer: file}, nil
}

// Append encodes record followed by a newline.
func (l *JSONLinesAuditLog) Append(_ context.Context, record AuditRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrAuditLogClosed
	}

	return l.encoder.Encode(record)
}

// Close closes the underlying file if the log owns one.
func (l *JSONLinesAuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	if l.closer == nil {
		return nil
	}

	return l.closer.Close()
}

var _ AuditLog = (*JSONLinesAuditLog)(nil)
