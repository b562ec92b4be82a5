package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades authenticated connections and routes their events through
// the hub. CanRead is the same permission check the REST read path uses.
type Server struct {
	Hub     *Hub
	Logger  *logrus.Logger
	CanRead func(ctx context.Context, userId, sheetId int) (bool, error)
}

// Client is one live socket connection.
type Client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte

	userId   int
	userName string

	// joinedSheet is the client's own view of its room, touched only by the
	// read pump
	joinedSheet int
}

type clientEvent struct {
	Type      string          `json:"type"`
	SheetId   int             `json:"sheetId"`
	Row       int             `json:"row"`
	Column    int             `json:"column"`
	Value     *string         `json:"value,omitempty"`
	Formula   *string         `json:"formula,omitempty"`
	Format    json.RawMessage `json:"format,omitempty"`
	Cursor    json.RawMessage `json:"cursor,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

func roomName(sheetId int) string {
	return fmt.Sprintf("sheet-%d", sheetId)
}

// Serve upgrades the request and runs the connection until it drops. The
// caller must have authenticated the user already.
func (s *Server) Serve(c *gin.Context, userId int, userName string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.WithField("field", "ws.Serve").Warn("websocket upgrade failed: " + err.Error())
		return
	}

	client := &Client{
		server:   s,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		userId:   userId,
		userName: userName,
	}
	s.Hub.register <- client

	go client.writePump()
	client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.notifyLeft()
		c.server.Hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var event clientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			c.sendEvent(map[string]interface{}{"type": "error", "message": "malformed event"})
			continue
		}
		c.handleEvent(&event)
	}
}

func (c *Client) handleEvent(event *clientEvent) {
	switch event.Type {

	case "joinSheet":
		ok, err := c.server.CanRead(context.Background(), c.userId, event.SheetId)
		if err != nil || !ok {
			c.sendEvent(map[string]interface{}{"type": "error", "message": "Нет доступа к таблице"})
			return
		}
		c.notifyLeft()
		c.server.Hub.join <- joinRequest{client: c, room: roomName(event.SheetId)}
		c.joinedSheet = event.SheetId
		c.broadcast(map[string]interface{}{
			"type":     "userJoined",
			"userId":   c.userId,
			"userName": c.userName,
		})
		c.sendEvent(map[string]interface{}{"type": "sheetJoined", "sheetId": event.SheetId})

	case "leaveSheet":
		c.notifyLeft()
		c.server.Hub.leave <- c

	case "updateCell":
		if c.joinedSheet == 0 {
			return
		}
		c.broadcast(map[string]interface{}{
			"type":     "cellUpdated",
			"sheetId":  c.joinedSheet,
			"row":      event.Row,
			"column":   event.Column,
			"value":    event.Value,
			"formula":  event.Formula,
			"format":   event.Format,
			"userId":   c.userId,
			"userName": c.userName,
		})

	case "cursorMove":
		c.broadcast(map[string]interface{}{
			"type":     "userCursor",
			"userId":   c.userId,
			"userName": c.userName,
			"cursor":   event.Cursor,
		})

	case "cellSelection":
		c.broadcast(map[string]interface{}{
			"type":      "userSelection",
			"userId":    c.userId,
			"userName":  c.userName,
			"selection": event.Selection,
		})

	case "lockCell":
		c.broadcast(map[string]interface{}{
			"type":     "cellLocked",
			"row":      event.Row,
			"column":   event.Column,
			"userId":   c.userId,
			"userName": c.userName,
		})

	case "unlockCell":
		c.broadcast(map[string]interface{}{
			"type":   "cellUnlocked",
			"row":    event.Row,
			"column": event.Column,
			"userId": c.userId,
		})
	}
}

// notifyLeft tells the current room this user is gone, before any leave or
// join switch.
func (c *Client) notifyLeft() {
	if c.joinedSheet == 0 {
		return
	}
	c.broadcast(map[string]interface{}{
		"type":     "userLeft",
		"userId":   c.userId,
		"userName": c.userName,
	})
	c.joinedSheet = 0
}

// broadcast sends to everyone else in the client's room, fire and forget.
func (c *Client) broadcast(payload map[string]interface{}) {
	if c.joinedSheet == 0 {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.server.Hub.broadcast <- envelope{
		room:   roomName(c.joinedSheet),
		sender: c,
		data:   data,
	}
}

func (c *Client) sendEvent(payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
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
