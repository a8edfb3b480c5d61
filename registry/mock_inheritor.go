package registry

import (
	"context"
	"sync"
)

// MockInheritorClient answers from a fixed table. Err, when set, is returned
// by every call.
type MockInheritorClient struct {
	mu         sync.Mutex
	inheritors map[string]string
	Err        error
	Calls      int
}

func NewMockInheritorClient(inheritors map[string]string) *MockInheritorClient {
	if inheritors == nil {
		inheritors = make(map[string]string)
	}
	return &MockInheritorClient{inheritors: inheritors}
}

func (m *MockInheritorClient) SetInheritor(programID, inheritor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inheritors[programID] = inheritor
}

func (m *MockInheritorClient) GetInheritor(_ context.Context, programID, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	return m.inheritors[programID], nil
}
