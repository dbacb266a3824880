package services

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// StreamClient is the middleman between one websocket and a DrinkLog.
// The stream is push-only: anything the peer sends is read and discarded.
type StreamClient struct {
	Log      *DrinkLog
	Conn     *websocket.Conn
	listener *Listener
}

func NewStreamClient(ctx context.Context, drinkLog *DrinkLog, conn *websocket.Conn) (*StreamClient, error) {
	listener, err := drinkLog.Listen(ctx)
	if err != nil {
		return nil, err
	}
	return &StreamClient{Log: drinkLog, Conn: conn, listener: listener}, nil
}

// ReadPump keeps the read deadline fresh and detects disconnects.
func (c *StreamClient) ReadPump() {
	defer func() {
		c.Log.Unlisten(c.listener)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Stream %s] Error reading msg: %v", c.Log.OwnerID, err)
			}
			return
		}
	}
}

// WritePump handles messages going TO the frontend
func (c *StreamClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.listener.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The session closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
