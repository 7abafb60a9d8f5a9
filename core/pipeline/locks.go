package pipeline

import "sync"

// projectLocks hands out one mutex per project name. Entries are created on
// first use and never removed.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the project's mutex and returns its unlock func
func (p *projectLocks) lock(project string) func() {
	p.mu.Lock()
	m, ok := p.locks[project]
	if !ok {
		m = &sync.Mutex{}
		p.locks[project] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
