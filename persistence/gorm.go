package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/types"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// RoomSnapshot is the relational record of one room's materialized state.
type RoomSnapshot struct {
	RoomId    string         `gorm:"primaryKey;column:room_id"`
	Snapshot  datatypes.JSON `gorm:"column:snapshot"`
	UpdatedAt time.Time
}

// TimelineEvent is one appended timeline event.
type TimelineEvent struct {
	EventId  string         `gorm:"primaryKey;column:event_id"`
	RoomId   string         `gorm:"index;column:room_id"`
	OriginTs int64          `gorm:"index;column:origin_ts"`
	Payload  datatypes.JSON `gorm:"column:payload"`
}

// GormStore persists snapshots and timelines in sqlite or postgres.
type GormStore struct {
	db    *gorm.DB
	locks *roomLocks
}

func NewGormStore(cfg *config.Config) (*GormStore, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("gorm persistence requires a dsn")
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.Migrator().AutoMigrate(&RoomSnapshot{}, &TimelineEvent{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, locks: newRoomLocks()}, nil
}

func snapshotOf(st *types.RoomState) (*RoomSnapshot, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return &RoomSnapshot{RoomId: st.RoomId, Snapshot: datatypes.JSON(raw)}, nil
}

func (s *GormStore) GetRoom(roomId string) (*types.RoomState, error) {
	var rec RoomSnapshot
	err := s.db.Where("room_id = ?", roomId).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	var st types.RoomState
	if err := json.Unmarshal(rec.Snapshot, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *GormStore) CreateRoom(st *types.RoomState) error {
	rec, err := snapshotOf(st)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing RoomSnapshot
		err := tx.Where("room_id = ?", st.RoomId).First(&existing).Error
		if err == nil {
			return ErrRoomExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(rec).Error
	})
}

func (s *GormStore) UpdateRoom(st *types.RoomState) error {
	rec, err := snapshotOf(st)
	if err != nil {
		return err
	}
	res := s.db.Model(&RoomSnapshot{}).Where("room_id = ?", st.RoomId).Update("snapshot", rec.Snapshot)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (s *GormStore) DeleteRoom(roomId string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("room_id = ?", roomId).Delete(&RoomSnapshot{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRoomNotFound
		}
		return tx.Where("room_id = ?", roomId).Delete(&TimelineEvent{}).Error
	})
}

func (s *GormStore) ListRooms() ([]string, error) {
	ids := make([]string, 0)
	err := s.db.Model(&RoomSnapshot{}).Order("room_id").Pluck("room_id", &ids).Error
	return ids, err
}

func (s *GormStore) RoomExists(roomId string) (bool, error) {
	var count int64
	err := s.db.Model(&RoomSnapshot{}).Where("room_id = ?", roomId).Count(&count).Error
	return count > 0, err
}

func (s *GormStore) AppendEvents(roomId string, events []*types.Event) error {
	if len(events) == 0 {
		return nil
	}
	recs := make([]TimelineEvent, 0, len(events))
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		recs = append(recs, TimelineEvent{
			EventId:  ev.Id,
			RoomId:   roomId,
			OriginTs: ev.OriginTs,
			Payload:  datatypes.JSON(raw),
		})
	}
	return s.db.Create(&recs).Error
}

func (s *GormStore) EventHistory(roomId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Event, error) {
	fromMs := fromTs.UnixNano() / int64(time.Millisecond)
	toMs := toTs.UnixNano() / int64(time.Millisecond)
	recs := make([]TimelineEvent, 0)
	q := s.db.Where("room_id = ? AND origin_ts BETWEEN ? AND ?", roomId, fromMs, toMs).
		Order("origin_ts DESC").Offset(fromIdx)
	if maxCount > 0 {
		q = q.Limit(maxCount)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	events := make([]*types.Event, 0, len(recs))
	for _, rec := range recs {
		ev := &types.Event{}
		if err := json.Unmarshal(rec.Payload, ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *GormStore) WithExclusive(roomId string, fn func() error) error {
	return s.locks.withExclusive(roomId, fn)
}

func (s *GormStore) WithShared(roomId string, fn func() error) error {
	return s.locks.withShared(roomId, fn)
}

func (s *GormStore) Close() error {
	return nil
}
