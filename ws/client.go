package ws

import (
	"time"

	"github.com/antonmedv/expr/vm"
	"github.com/gorilla/websocket"
	"github.com/tcriess/lightspeed-rooms/globals"
)

const sendChannelSize = 1000

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	roomId string
	userId string

	// compiled stream filter, nil matches everything
	filter *vm.Program
}

func NewClient(hub *Hub, conn *websocket.Conn, roomId, userId string, filterProg *vm.Program) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		Send:   make(chan []byte, sendChannelSize),
		roomId: roomId,
		userId: userId,
		filter: filterProg,
	}
}

// ReadLoop drains the websocket connection. The stream is one-way, inbound
// frames only serve the keepalive; any payload is discarded.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("ws closed unexpected", "error", err)
			}
			return
		}
	}
}

// WriteLoop pumps events from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
