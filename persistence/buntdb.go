package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/globals"
	"github.com/tcriess/lightspeed-rooms/types"
	"github.com/tidwall/buntdb"
)

// BuntStore persists room snapshots and timelines in a BuntDB file (or ":memory:").
// Keys: "room:<roomId>" for snapshots, "event:<roomId>:<eventId>" for the timeline.
type BuntStore struct {
	db    *buntdb.DB
	locks *roomLocks
}

func NewBuntStore(cfg *config.Config) (*BuntStore, error) {
	fileName := cfg.PersistenceConfig.DSN
	if fileName == "" {
		return nil, fmt.Errorf("buntdb persistence requires a dsn (file name or :memory:)")
	}
	db, err := buntdb.Open(fileName)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex("eventsts", "event:*", buntdb.IndexJSON("origin_server_ts"))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BuntStore{db: db, locks: newRoomLocks()}, nil
}

func roomKey(roomId string) string {
	return "room:" + roomId
}

func eventKey(roomId, eventId string) string {
	return "event:" + roomId + ":" + eventId
}

func (s *BuntStore) GetRoom(roomId string) (*types.RoomState, error) {
	var st types.RoomState
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(roomKey(roomId))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), &st)
	})
	if err == buntdb.ErrNotFound {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *BuntStore) CreateRoom(st *types.RoomState) error {
	val, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(roomKey(st.RoomId)); err == nil {
			return ErrRoomExists
		} else if err != buntdb.ErrNotFound {
			return err
		}
		_, _, err := tx.Set(roomKey(st.RoomId), string(val), nil)
		return err
	})
}

func (s *BuntStore) UpdateRoom(st *types.RoomState) error {
	val, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(roomKey(st.RoomId)); err == buntdb.ErrNotFound {
			return ErrRoomNotFound
		} else if err != nil {
			return err
		}
		_, _, err := tx.Set(roomKey(st.RoomId), string(val), nil)
		return err
	})
}

func (s *BuntStore) DeleteRoom(roomId string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Delete(roomKey(roomId)); err == buntdb.ErrNotFound {
			return ErrRoomNotFound
		} else if err != nil {
			return err
		}
		// collect timeline keys first, deleting inside the iteration is not allowed
		keys := make([]string, 0)
		prefix := "event:" + roomId + ":"
		err := tx.AscendKeys("event:*", func(key, _ string) bool {
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BuntStore) ListRooms() ([]string, error) {
	ids := make([]string, 0)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("room:*", func(key, _ string) bool {
			ids = append(ids, strings.TrimPrefix(key, "room:"))
			return true
		})
	})
	return ids, err
}

func (s *BuntStore) RoomExists(roomId string) (bool, error) {
	exists := false
	err := s.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(roomKey(roomId))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

func (s *BuntStore) AppendEvents(roomId string, events []*types.Event) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		for _, event := range events {
			msg, err := json.Marshal(event)
			if err != nil {
				globals.AppLogger.Error("could not marshal event", "error", err)
				return err
			}
			_, _, err = tx.Set(eventKey(roomId, event.Id), string(msg), nil)
			if err != nil {
				globals.AppLogger.Error("could not store event", "error", err)
				return err
			}
		}
		return nil
	})
}

// EventHistory returns a page of the room's timeline, newest first.
// fromTs/toTs restrict the time range, fromIdx/maxCount paginate.
func (s *BuntStore) EventHistory(roomId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Event, error) {
	events := make([]*types.Event, 0)
	fromMs := fromTs.UnixNano() / int64(time.Millisecond)
	toMs := toTs.UnixNano() / int64(time.Millisecond)
	fromCond := fmt.Sprintf(`{"origin_server_ts":%d}`, fromMs)
	toCond := fmt.Sprintf(`{"origin_server_ts":%d}`, toMs+1)
	prefix := "event:" + roomId + ":"

	err := s.db.View(func(tx *buntdb.Tx) error {
		currentNo := -1
		count := 0
		return tx.DescendRange("eventsts", toCond, fromCond, func(key, val string) bool {
			if !strings.HasPrefix(key, prefix) {
				return true // the index spans all rooms
			}
			currentNo++
			if currentNo < fromIdx {
				return true
			}
			event := &types.Event{}
			if err := json.Unmarshal([]byte(val), event); err == nil {
				events = append(events, event)
			}
			count++
			return maxCount <= 0 || count < maxCount
		})
	})
	return events, err
}

func (s *BuntStore) WithExclusive(roomId string, fn func() error) error {
	return s.locks.withExclusive(roomId, fn)
}

func (s *BuntStore) WithShared(roomId string, fn func() error) error {
	return s.locks.withShared(roomId, fn)
}

func (s *BuntStore) Close() error {
	return s.db.Close()
}
