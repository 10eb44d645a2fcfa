package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout   = 10 * time.Second
	wsSendBufferSize = 64
)

// wsMessage is the envelope for every server-to-client message
type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// wsCommand is a display-layer command received from a client
type wsCommand struct {
	Type      string  `json:"type"`
	Frequency float64 `json:"frequency,omitempty"`
	Program   int     `json:"program,omitempty"`
	Host      string  `json:"host,omitempty"`
	Port      int     `json:"port,omitempty"`
	Preset    int     `json:"preset,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session state out to connected display clients and routes their
// commands to the controller. Slow clients are disconnected rather than
// allowed to stall the broadcast path.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}

	controller *Controller
	presets    *PresetStore
}

// NewHub creates an empty hub; attach the controller with SetController once
// it exists
func NewHub(presets *PresetStore) *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		presets: presets,
	}
}

// SetController attaches the command target. Must be called before serving
// connections.
func (h *Hub) SetController(c *Controller) {
	h.controller = c
}

// BroadcastSnapshot pushes a full state snapshot to every client
func (h *Hub) BroadcastSnapshot(snap Snapshot) {
	h.broadcast(wsMessage{Type: "snapshot", Data: snap})
}

// BroadcastError pushes a user-visible error to every client
func (h *Hub) BroadcastError(msg string) {
	h.broadcast(wsMessage{Type: "error", Data: map[string]string{"message": msg}})
}

func (h *Hub) broadcast(msg wsMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("WebSocket: failed to marshal %s message: %v", msg.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// Client is not keeping up; drop it
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// ServeWS upgrades an HTTP request to a display-layer WebSocket connection
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket: upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	if DebugMode {
		log.Printf("WebSocket: client connected from %s", r.RemoteAddr)
	}

	go client.writePump()
	go h.readPump(client)

	// New clients get the current state immediately
	if h.controller != nil {
		snap := h.controller.agg.Snapshot()
		if payload, err := json.Marshal(wsMessage{Type: "snapshot", Data: snap}); err == nil {
			select {
			case client.send <- payload:
			default:
			}
		}
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (h *Hub) readPump(client *wsClient) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
		h.mu.Unlock()
		client.conn.Close()
	}()

	for {
		var cmd wsCommand
		if err := client.conn.ReadJSON(&cmd); err != nil {
			return
		}
		if err := h.dispatch(cmd); err != nil {
			h.sendTo(client, wsMessage{Type: "error", Data: map[string]string{"message": err.Error()}})
		}
	}
}

func (h *Hub) sendTo(client *wsClient, msg wsMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
	}
}

func (h *Hub) dispatch(cmd wsCommand) error {
	if h.controller == nil {
		return nil
	}
	switch cmd.Type {
	case "start_radio":
		return h.controller.StartRadio(cmd.Frequency, cmd.Program, cmd.Host, cmd.Port)
	case "stop_radio":
		return h.controller.StopRadio()
	case "start_recording":
		_, err := h.controller.StartRecording()
		return err
	case "stop_recording":
		return h.controller.StopRecording()
	case "tune_preset":
		preset, err := h.presets.Get(cmd.Preset)
		if err != nil {
			return err
		}
		return h.controller.TuneToPreset(preset)
	}
	log.Printf("WebSocket: unknown command %q", cmd.Type)
	return nil
}
