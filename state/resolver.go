package state

import (
	"sort"

	"github.com/tcriess/lightspeed-rooms/types"
)

// Resolve picks the winner among competing state events for the same slot.
//
// Candidates failing authorization against the snapshot are discarded. Survivors
// are ordered by sender power level (descending), then origin timestamp
// (ascending), then event id (lexicographic) as the final tie-break, which makes
// the result a pure function of the candidate set and the snapshot: any replica
// computing the resolution for the same inputs picks the same winner.
//
// The returned slice holds the superseded survivors (kept for audit, not applied).
func Resolve(st *types.RoomState, candidates []*types.Event) (*types.Event, []*types.Event, error) {
	if len(candidates) == 0 {
		return nil, nil, types.Validation("no candidate events to resolve")
	}
	slot := candidates[0].Slot()
	surviving := make([]*types.Event, 0, len(candidates))
	for _, ev := range candidates {
		if !ev.IsState() || ev.Slot() != slot {
			return nil, nil, types.Validation("candidate %s does not target slot %s/%s", ev.Id, slot.Type, slot.StateKey)
		}
		if err := Authorize(st, ev); err == nil {
			surviving = append(surviving, ev)
		}
	}
	if len(surviving) == 0 {
		return nil, nil, types.Forbidden("no candidate event for %s/%s passed authorization", slot.Type, slot.StateKey)
	}
	sort.Slice(surviving, func(i, j int) bool {
		li := st.PowerLevels.UserLevel(surviving[i].Sender)
		lj := st.PowerLevels.UserLevel(surviving[j].Sender)
		if li != lj {
			return li > lj
		}
		if surviving[i].OriginTs != surviving[j].OriginTs {
			return surviving[i].OriginTs < surviving[j].OriginTs
		}
		return surviving[i].Id < surviving[j].Id
	})
	return surviving[0], surviving[1:], nil
}

// GroupBySlot partitions candidate state events by the slot they compete for,
// preserving input order within each group.
func GroupBySlot(events []*types.Event) map[types.Slot][]*types.Event {
	groups := make(map[types.Slot][]*types.Event)
	for _, ev := range events {
		if !ev.IsState() {
			continue
		}
		slot := ev.Slot()
		groups[slot] = append(groups[slot], ev)
	}
	return groups
}
