package libraries

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// WebSocketMessageType names a frame on the /ws connection
type WebSocketMessageType string

const (
	WebSocketMessageTypePing                WebSocketMessageType = "ping"
	WebSocketMessageTypePong                WebSocketMessageType = "pong"
	WebSocketMessageTypeError               WebSocketMessageType = "error"
	WebSocketMessageTypeGenerate            WebSocketMessageType = "generate"
	WebSocketMessageTypeGenerationStarting  WebSocketMessageType = "generation_starting"
	WebSocketMessageTypeGenerationCompleted WebSocketMessageType = "generation_completed"
)

type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

type Hub struct {
	clients    map[string]*Client
	connected  atomic.Int64
	Register   chan *Client
	Unregister chan *Client
}

type WebSocketMessage struct {
	Type WebSocketMessageType `json:"type"`
	Data interface{}          `json:"data,omitempty"`
}

// HistoryTurnPayload is one prior turn sent along with a generate frame.
type HistoryTurnPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GeneratePayload struct {
	RequestID      string               `json:"request_id,omitempty"`
	ConversationID string               `json:"conversationId"`
	Message        string               `json:"message"`
	Images         []string             `json:"images,omitempty"`
	Model          string               `json:"model,omitempty"`
	History        []HistoryTurnPayload `json:"history,omitempty"`
}

type GenerationStatusPayload struct {
	RequestID      string      `json:"request_id,omitempty"`
	ConversationID string      `json:"conversationId"`
	Result         interface{} `json:"result,omitempty"`
}

type ErrorPayload struct {
	RequestID string `json:"request_id,omitempty"`
	Status    int    `json:"status,omitempty"`
	Message   string `json:"message"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client.ID] = client
			h.connected.Store(int64(len(h.clients)))
		case client := <-h.Unregister:
			if _, exists := h.clients[client.ID]; exists {
				delete(h.clients, client.ID)
				client.close()
			}
			h.connected.Store(int64(len(h.clients)))
		}
	}
}

// Connected returns the number of registered clients.
func (h *Hub) Connected() int {
	return int(h.connected.Load())
}

// SendMessage queues message for client. Messages to a closed client are dropped.
func (h *Hub) SendMessage(client *Client, message []byte) {
	select {
	case client.Send <- message:
	case <-client.done:
	}
}

func send(hub *Hub, client *Client, msg WebSocketMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Printf("failed to marshal %s message: %v", msg.Type, err)
		return
	}
	hub.SendMessage(client, b)
}

// SendErrorMessage sends a standardized error message to a client
func SendErrorMessage(hub *Hub, client *Client, payload *ErrorPayload) {
	send(hub, client, WebSocketMessage{Type: WebSocketMessageTypeError, Data: payload})
}

// SendEvent sends a typed frame with an optional payload
func SendEvent(hub *Hub, client *Client, eventType WebSocketMessageType, data interface{}) {
	send(hub, client, WebSocketMessage{Type: eventType, Data: data})
}

// parseWebSocketMessage parses incoming websocket message and returns the message structure
func parseWebSocketMessage(msg []byte) (*WebSocketMessage, error) {
	var rawMessage struct {
		Type WebSocketMessageType `json:"type"`
		Data json.RawMessage      `json:"data,omitempty"`
	}
	if err := json.Unmarshal(msg, &rawMessage); err != nil {
		return nil, err
	}

	message := &WebSocketMessage{
		Type: rawMessage.Type,
	}

	switch rawMessage.Type {
	case WebSocketMessageTypePing:
	case WebSocketMessageTypeGenerate:
		if len(rawMessage.Data) == 0 || string(rawMessage.Data) == "null" {
			return nil, errors.New("generate payload is required")
		}
		var payload GeneratePayload
		if err := json.Unmarshal(rawMessage.Data, &payload); err != nil {
			return nil, err
		}
		message.Data = &payload
	default:
		return nil, errors.New("type is invalid or not provided")
	}

	return message, nil
}

// GenerateProcessor runs a generate frame and reports back through the hub.
type GenerateProcessor interface {
	ProcessGenerate(hub *Hub, client *Client, payload *GeneratePayload)
}

func WebSocketHandler(hub *Hub, processor GenerateProcessor) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		client := newClient(conn)
		hub.Register <- client

		// Write loop
		go func() {
			defer conn.Close()
			for {
				select {
				case msg := <-client.Send:
					if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						log.Println("ws write error:", err)
						client.close()
						return
					}
				case <-client.done:
					return
				}
			}
		}()

		// Read loop
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Println("ws read error:", err)
				}
				break
			}

			message, err := parseWebSocketMessage(msg)
			if err != nil {
				SendErrorMessage(hub, client, &ErrorPayload{Status: fiber.StatusBadRequest, Message: err.Error()})
				continue
			}

			switch message.Type {
			case WebSocketMessageTypePing:
				SendEvent(hub, client, WebSocketMessageTypePong, nil)
			case WebSocketMessageTypeGenerate:
				go processor.ProcessGenerate(hub, client, message.Data.(*GeneratePayload))
			}
		}

		hub.Unregister <- client
	})
}
