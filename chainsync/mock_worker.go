package chainsync

import (
	"context"
	"errors"
	"sync"

	"github.com/TEENet-io/bridge-indexer/agreement"
)

var errMockFetch = errors.New("mock fetch failure")

// MockSyncWorker serves events from memory.
type MockSyncWorker struct {
	mu        sync.Mutex
	finalized uint64
	events    []*agreement.Event
	failNext  int // number of upcoming fetches that fail

	Ranges [][2]uint64 // every requested range
}

func NewMockSyncWorker() *MockSyncWorker {
	return &MockSyncWorker{}
}

func (m *MockSyncWorker) SetFinalized(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = n
}

// AddEvents appends events; they must come in chain order.
func (m *MockSyncWorker) AddEvents(evs ...*agreement.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evs...)
}

func (m *MockSyncWorker) FailNextFetches(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

func (m *MockSyncWorker) GetFinalizedBlockNumber(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized, nil
}

func (m *MockSyncWorker) GetTimeOrderedEvents(_ context.Context, from, to uint64) ([]*agreement.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Ranges = append(m.Ranges, [2]uint64{from, to})
	if m.failNext > 0 {
		m.failNext--
		return nil, errMockFetch
	}

	evs := []*agreement.Event{}
	for _, ev := range m.events {
		if ev.Block.Number >= from && ev.Block.Number <= to {
			evs = append(evs, ev)
		}
	}
	return evs, nil
}
