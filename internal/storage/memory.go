package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Memory is a process-local Store. Tests use it directly.
type Memory struct {
	mu   sync.Mutex
	apps map[string]AppCredential
	runs []RunRecord
}

func NewMemory() *Memory {
	return &Memory{apps: map[string]AppCredential{}}
}

func (m *Memory) GetAppCredential(_ context.Context, server string) (AppCredential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.apps[normalizeServer(server)]
	return c, ok, nil
}

func (m *Memory) PutAppCredential(_ context.Context, cred AppCredential) error {
	key := normalizeServer(cred.Server)
	if key == "" {
		return errors.New("credential server is required")
	}
	cred.Server = key
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.apps[key] = cred
	m.mu.Unlock()
	return nil
}

func (m *Memory) AppendRun(_ context.Context, r RunRecord) error {
	m.mu.Lock()
	m.runs = append(m.runs, r)
	m.mu.Unlock()
	return nil
}

// Runs returns a copy of the recorded runs.
func (m *Memory) Runs() []RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RunRecord(nil), m.runs...)
}

func (m *Memory) Close() error { return nil }
