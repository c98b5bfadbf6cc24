package app

import (
	"sync"

	"github.com/dkeye/Rooms/internal/domain"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// RoomLocks serialises mutations of a single room. Entries are dropped once
// nobody holds or waits for them.
type RoomLocks struct {
	mu    sync.Mutex
	locks map[domain.RoomID]*lockEntry
}

func NewRoomLocks() *RoomLocks {
	return &RoomLocks{locks: make(map[domain.RoomID]*lockEntry)}
}

// Lock blocks until the room is free and returns the matching unlock.
func (l *RoomLocks) Lock(id domain.RoomID) func() {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *RoomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
