package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// lockTable hands out one mutex per tender so stage transitions and field
// record appends serialize per tender while distinct tenders run in
// parallel. Entries are never evicted; the table is bounded by the number
// of tenders a process touches in its lifetime.
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (t *lockTable) lock(id uuid.UUID) *sync.Mutex {
	t.mu.Lock()
	m, ok := t.locks[id]
	if !ok {
		m = &sync.Mutex{}
		t.locks[id] = m
	}
	t.mu.Unlock()
	m.Lock()
	return m
}
