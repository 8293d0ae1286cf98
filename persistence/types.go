package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/types"
)

// Sentinel outcomes of the store. The orchestrator translates these into the API
// error taxonomy; everything else coming out of a store is an opaque internal error.
var (
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room not found")
)

// StateStore is the persistence abstraction for room snapshots, keyed by room id.
//
// All CRUD operations are atomic per room id. WithExclusive/WithShared expose the
// store's per-room lock so a caller can make a whole read-modify-write sequence
// the critical section; rooms are independent, locking one never blocks another.
type StateStore interface {
	GetRoom(roomId string) (*types.RoomState, error)
	CreateRoom(st *types.RoomState) error // ErrRoomExists if the room id is taken
	UpdateRoom(st *types.RoomState) error // ErrRoomNotFound, never an implicit upsert
	DeleteRoom(roomId string) error       // ErrRoomNotFound
	ListRooms() ([]string, error)
	RoomExists(roomId string) (bool, error)

	// timeline log, append + paginated range read only
	AppendEvents(roomId string, events []*types.Event) error
	EventHistory(roomId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Event, error)

	WithExclusive(roomId string, fn func() error) error
	WithShared(roomId string, fn func() error) error

	Close() error
}

// NewStateStore creates the configured store backend. An empty type selects the
// in-memory store.
func NewStateStore(cfg *config.Config) (StateStore, error) {
	switch cfg.PersistenceConfig.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "buntdb":
		return NewBuntStore(cfg)
	case "sqlite", "postgres":
		return NewGormStore(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}
