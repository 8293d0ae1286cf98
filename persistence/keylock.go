package persistence

import "sync"

// roomLocks hands out one RWMutex per room id. Locks are created lazily and never
// discarded; the number of rooms bounds the map size.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*sync.RWMutex)}
}

func (r *roomLocks) get(roomId string) *sync.RWMutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[roomId]; ok {
		return l
	}
	l := &sync.RWMutex{}
	r.locks[roomId] = l
	return l
}

// withExclusive runs fn while holding the room's write lock: one writer per room id.
func (r *roomLocks) withExclusive(roomId string, fn func() error) error {
	l := r.get(roomId)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// withShared runs fn while holding the room's read lock; reads proceed concurrently.
func (r *roomLocks) withShared(roomId string, fn func() error) error {
	l := r.get(roomId)
	l.RLock()
	defer l.RUnlock()
	return fn()
}
