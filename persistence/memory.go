package persistence

import (
	"sort"
	"sync"
	"time"

	"github.com/tcriess/lightspeed-rooms/types"
)

// MemoryStore keeps room snapshots and timelines in process memory. Snapshots are
// cloned on the way in and out so callers never share a mutable state instance.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]*types.RoomState
	timeline map[string][]*types.Event
	locks    *roomLocks
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*types.RoomState),
		timeline: make(map[string][]*types.Event),
		locks:    newRoomLocks(),
	}
}

func (s *MemoryStore) GetRoom(roomId string) (*types.RoomState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.rooms[roomId]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return st.Clone(), nil
}

func (s *MemoryStore) CreateRoom(st *types.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[st.RoomId]; ok {
		return ErrRoomExists
	}
	s.rooms[st.RoomId] = st.Clone()
	return nil
}

func (s *MemoryStore) UpdateRoom(st *types.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[st.RoomId]; !ok {
		return ErrRoomNotFound
	}
	s.rooms[st.RoomId] = st.Clone()
	return nil
}

func (s *MemoryStore) DeleteRoom(roomId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomId]; !ok {
		return ErrRoomNotFound
	}
	delete(s.rooms, roomId)
	delete(s.timeline, roomId)
	return nil
}

func (s *MemoryStore) ListRooms() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) RoomExists(roomId string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomId]
	return ok, nil
}

func (s *MemoryStore) AppendEvents(roomId string, events []*types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline[roomId] = append(s.timeline[roomId], events...)
	return nil
}

func (s *MemoryStore) EventHistory(roomId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fromMs := fromTs.UnixNano() / int64(time.Millisecond)
	toMs := toTs.UnixNano() / int64(time.Millisecond)
	matching := make([]*types.Event, 0)
	for _, ev := range s.timeline[roomId] {
		if ev.OriginTs >= fromMs && ev.OriginTs <= toMs {
			matching = append(matching, ev)
		}
	}
	// newest first, event id as tie-break for a stable order
	sort.Slice(matching, func(i, j int) bool {
		if matching[i].OriginTs != matching[j].OriginTs {
			return matching[i].OriginTs > matching[j].OriginTs
		}
		return matching[i].Id > matching[j].Id
	})
	if fromIdx >= len(matching) {
		return []*types.Event{}, nil
	}
	matching = matching[fromIdx:]
	if maxCount > 0 && len(matching) > maxCount {
		matching = matching[:maxCount]
	}
	return matching, nil
}

func (s *MemoryStore) WithExclusive(roomId string, fn func() error) error {
	return s.locks.withExclusive(roomId, fn)
}

func (s *MemoryStore) WithShared(roomId string, fn func() error) error {
	return s.locks.withShared(roomId, fn)
}

func (s *MemoryStore) Close() error {
	return nil
}
