package engine

import (
	"sync"

	"sprintbook/internal/slots"
)

type lockKey struct {
	quarterID string
	slot      slots.Key
}

// Locks serializes commits per quarter and resource/role inside one process.
// Different keys never contend.
type Locks struct {
	mu sync.Mutex
	m  map[lockKey]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{m: make(map[lockKey]*sync.Mutex)}
}

// Lock blocks until the key is free and returns its unlock func.
func (l *Locks) Lock(quarterID string, key slots.Key) func() {
	if l == nil {
		return func() {}
	}
	k := lockKey{quarterID: quarterID, slot: key}
	l.mu.Lock()
	m, ok := l.m[k]
	if !ok {
		m = &sync.Mutex{}
		l.m[k] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
