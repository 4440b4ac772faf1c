package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"birthdaysite/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one connected page.
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	ID      string
	Send    chan []byte
	visible bool // owned by the hub goroutine
}

// ServeWs upgrades the request and registers the page with the hub. A page
// counts as visible from the start unless it connects with ?visible=false.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:     hub,
		Conn:    conn,
		ID:      uuid.NewString(),
		Send:    make(chan []byte, 256),
		visible: r.URL.Query().Get("visible") != "false",
	}

	select {
	case hub.Register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}

		// Pages may only report their own visibility.
		switch msg.Type {
		case VisibilityType:
			var v VisibilityPayload
			if err := json.Unmarshal(msg.Payload, &v); err != nil {
				logger.Sugar.Warnf("Visitor %s sent a malformed visibility report: %v", c.ID, err)
				continue
			}
			select {
			case c.Hub.visibility <- visibilityChange{client: c, visible: v.Visible}:
			case <-c.Hub.done:
				return
			}
		default:
			logger.Sugar.Debugf("Ignoring %s message from visitor %s", msg.Type, c.ID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
