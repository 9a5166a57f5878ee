// Package export delivers recorded observations to an external tabular
// data store. Delivery is fire-and-forget from the simulation's side.
package export

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/pthm-cable/ecochamber/telemetry"
)

// Adapter is the external data store contract.
type Adapter interface {
	// EnsureColumn makes the store recognise a numeric field. Idempotent.
	EnsureColumn(ctx context.Context, name string) error
	// SendRecord appends one observation.
	SendRecord(ctx context.Context, rec telemetry.Record) error
}

var (
	ErrInvalidColumn = errors.New("export: invalid column name")
	ErrUnknownColumn = errors.New("export: column not ensured")
)

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidColumn reports whether name can be used as a column.
func ValidColumn(name string) bool {
	return identRE.MatchString(name)
}

// Memory keeps everything it receives. Err, when set, fails every call.
type Memory struct {
	mu      sync.Mutex
	columns []string
	records []telemetry.Record
	Err     error
}

// NewMemory returns an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) EnsureColumn(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if !ValidColumn(name) {
		return ErrInvalidColumn
	}
	for _, c := range m.columns {
		if c == name {
			return nil
		}
	}
	m.columns = append(m.columns, name)
	return nil
}

func (m *Memory) SendRecord(_ context.Context, rec telemetry.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.records = append(m.records, rec)
	return nil
}

// Columns returns the ensured columns in order.
func (m *Memory) Columns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.columns...)
}

// Records returns the received records in order.
func (m *Memory) Records() []telemetry.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]telemetry.Record(nil), m.records...)
}

// Log writes every call to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a logging adapter. A nil logger means slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) EnsureColumn(ctx context.Context, name string) error {
	if !ValidColumn(name) {
		return ErrInvalidColumn
	}
	l.logger.InfoContext(ctx, "ensure column", "name", name)
	return nil
}

func (l *Log) SendRecord(ctx context.Context, rec telemetry.Record) error {
	l.logger.InfoContext(ctx, "record", "fields", strings.Join(rec.Fields(), ","), "record", rec)
	return nil
}
