package featurestore

import (
	"context"
	"sync"
	"sync/atomic"
)

type memoryKey struct {
	table   string
	trainID string
	dep     string
	dow     int
}

// Memory is an in-process store used for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	rows    map[memoryKey]Row
	lookups atomic.Int64
	err     error
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[memoryKey]Row)}
}

func (m *Memory) Name() string { return BackendMemory }

// Put stores the row answering the given lookup key.
func (m *Memory) Put(table, trainID, scheduledDepartureTime string, dayOfWeek int, row Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[memoryKey{table, trainID, scheduledDepartureTime, dayOfWeek}] = row
}

// FailWith makes every following lookup return err. A nil err restores normal
// behavior.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Memory) Lookup(ctx context.Context, q Query) (Row, bool, error) {
	m.lookups.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, false, m.err
	}
	row, ok := m.rows[memoryKey{q.Table, q.TrainID, q.ScheduledDepartureTime, q.DayOfWeek}]
	if !ok {
		return nil, false, nil
	}
	return project(row, q.Columns), true, nil
}

// Lookups reports how many lookups were attempted.
func (m *Memory) Lookups() int64 { return m.lookups.Load() }
