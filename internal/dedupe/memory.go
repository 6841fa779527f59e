package dedupe

import (
	"context"
	"sync"
)

// Memory is an in-process Recorder for runs without Postgres
type Memory struct {
	mu   sync.Mutex
	seen map[int64]int
}

// NewMemory creates an empty in-memory recorder
func NewMemory() *Memory {
	return &Memory{seen: map[int64]int{}}
}

// Record implements Recorder
func (m *Memory) Record(_ context.Context, userExerciseID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[userExerciseID]++
	return m.seen[userExerciseID], nil
}
