package socket

import (
	"context"
	"encoding/json"

	"birthdaysite/internal/content/model"
	"birthdaysite/internal/content/service"
	"birthdaysite/pkg/logger"
)

const (
	ContentType        = "CONTENT"         // Full document, sent on join
	ContentUpdatedType = "CONTENT_UPDATED" // Working copy replaced
	VisibilityType     = "VISIBILITY"      // Page shown or hidden
	PresenceUpdateType = "PRESENCE_UPDATE" // A visitor joined or left
)

type WSMessage struct {
	Type     string          `json:"type"`
	ClientID string          `json:"client_id,omitempty"`
	Source   string          `json:"source,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

type VisibilityPayload struct {
	Visible bool `json:"visible"`
}

type Presence struct {
	Online  int `json:"online"`
	Visible int `json:"visible"`
}

// Document is the subset of the content session the hub depends on.
type Document interface {
	Document() (*model.ContentDocument, service.Source)
	Subscribe(fn service.Listener) func()
	SetVisible(visible bool)
}

type visibilityChange struct {
	client  *Client
	visible bool
}

// Hub fans working-copy changes out to every connected page and derives the
// session's visibility from the pages' own reports.
type Hub struct {
	clients    map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	visibility chan visibilityChange
	session    Document
	done       chan struct{}
}

func NewHub(session Document) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Broadcast:  make(chan WSMessage),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		visibility: make(chan visibilityChange),
		session:    session,
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	unsubscribe := h.session.Subscribe(func(doc *model.ContentDocument, source service.Source) {
		payload, err := json.Marshal(doc)
		if err != nil {
			logger.Sugar.Errorf("Error marshalling content update: %v", err)
			return
		}
		select {
		case h.Broadcast <- WSMessage{Type: ContentUpdatedType, Source: string(source), Payload: payload}:
		case <-h.done:
		}
	})
	defer func() {
		unsubscribe()
		close(h.done)
		for client := range h.clients {
			delete(h.clients, client)
			close(client.Send)
		}
		h.session.SetVisible(false)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.clients[client] = true
			logger.Sugar.Infof("Visitor %s connected", client.ID)

			doc, source := h.session.Document()
			payload, _ := json.Marshal(doc)
			initial, _ := json.Marshal(WSMessage{Type: ContentType, ClientID: client.ID, Source: string(source), Payload: payload})
			h.send(client, initial)

			h.updateVisibility()
			h.broadcastPresence()

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				logger.Sugar.Infof("Visitor %s disconnected", client.ID)
				h.updateVisibility()
				h.broadcastPresence()
			}

		case change := <-h.visibility:
			if _, ok := h.clients[change.client]; ok {
				change.client.visible = change.visible
				h.updateVisibility()
				h.broadcastPresence()
			}

		case msg := <-h.Broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
				continue
			}
			for client := range h.clients {
				h.send(client, payload)
			}
		}
	}
}

// send drops a client whose buffer is full instead of blocking the hub.
func (h *Hub) send(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		logger.Sugar.Warnf("Visitor %s's send buffer is full. Unregistering.", client.ID)
		delete(h.clients, client)
		close(client.Send)
	}
}

func (h *Hub) updateVisibility() {
	visible := false
	for client := range h.clients {
		if client.visible {
			visible = true
			break
		}
	}
	h.session.SetVisible(visible)
}

func (h *Hub) broadcastPresence() {
	p := Presence{Online: len(h.clients)}
	for client := range h.clients {
		if client.visible {
			p.Visible++
		}
	}
	payload, _ := json.Marshal(p)
	msg, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, Payload: payload})
	for client := range h.clients {
		h.send(client, msg)
	}
}
