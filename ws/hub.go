// Package ws streams committed room events to websocket subscribers.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/filter"
	"github.com/tcriess/lightspeed-rooms/globals"
	"github.com/tcriess/lightspeed-rooms/types"
)

const (
	pongWait             = 2 * time.Minute
	pingPeriod           = time.Minute
	writeWait            = 10 * time.Second
	maxInboundSize       = 4096
	broadcastChannelSize = 1000
)

type broadcast struct {
	roomId string
	events []*types.Event
}

// Hub fans committed events out to the registered clients. There is one hub for
// the whole server; clients subscribe to a single room each.
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	events chan broadcast

	// global configuration
	Cfg *config.Config

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub(cfg *config.Config) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		events:     make(chan broadcast, broadcastChannelSize),
		Cfg:        cfg,
	}
}

// Notify queues committed events for fan-out. It never blocks the caller; if the
// hub is saturated the batch is dropped and logged.
func (h *Hub) Notify(roomId string, events []*types.Event) {
	select {
	case h.events <- broadcast{roomId: roomId, events: events}:
	default:
		globals.AppLogger.Warn("event broadcast queue full, dropping batch", "room", roomId, "events", len(events))
	}
}

// NoClients returns the number of clients registered.
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// Run is the hub main loop, started once in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.Lock()
			h.clients[client] = struct{}{}
			h.Unlock()
			globals.AppLogger.Debug("client registered", "room", client.roomId, "user", client.userId)

		case client := <-h.Unregister:
			h.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.Unlock()
			globals.AppLogger.Debug("client unregistered", "room", client.roomId, "user", client.userId)

		case batch := <-h.events:
			h.dispatch(batch)
		}
	}
}

func (h *Hub) dispatch(batch broadcast) {
	h.RLock()
	defer h.RUnlock()
	for _, ev := range batch.events {
		var raw []byte
		for client := range h.clients {
			if client.roomId != batch.roomId {
				continue
			}
			if !filter.Match(client.filter, ev) {
				continue
			}
			if raw == nil {
				var err error
				raw, err = json.Marshal(ev)
				if err != nil {
					globals.AppLogger.Error("could not marshal event", "error", err)
					break
				}
			}
			select {
			case client.Send <- raw:
			default:
				// slow consumer, drop the event rather than the hub loop
			}
		}
	}
}
