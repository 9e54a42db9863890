// Package controlbus provides control-bus client implementations for the
// registered-value output channel. The wire protocol is site-specific, so
// the package ships a thread-safe in-memory mock suitable for development
// and testing; a real installation supplies its own transport behind the
// same Write contract.
package controlbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Mock is a thread-safe in-memory control-bus client. Writes are recorded
// per address and logged at debug level.
type Mock struct {
	mu        sync.Mutex
	values    map[string]uint16
	failWrite bool
}

// NewMock creates a mock control-bus client.
func NewMock() *Mock {
	return &Mock{values: make(map[string]uint16)}
}

// SetFailWrite configures the mock to fail all write operations.
func (m *Mock) SetFailWrite(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = fail
}

func (m *Mock) Write(ctx context.Context, address string, value uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return fmt.Errorf("controlbus: write failure configured")
	}
	m.values[address] = value
	slog.Debug("controlbus: write", "address", address, "value", value)
	return nil
}

// Value returns the last value written to the address.
func (m *Mock) Value(address string) (uint16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[address]
	return v, ok
}
