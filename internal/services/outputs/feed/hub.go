// Package feed streams fired output events to websocket subscribers.
package feed

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
)

const writeWait = 2 * time.Second

// TypeFire tags fired-event frames.
const TypeFire = "fire"

// Message is the JSON frame sent for each fired event.
type Message struct {
	Type        string  `json:"type"`
	Target      string  `json:"target"`
	TargetInput string  `json:"targetInput"`
	Parameter   string  `json:"parameter,omitempty"`
	Delay       float32 `json:"delay"`
	Activator   int     `json:"activator"`
	Caller      int     `json:"caller"`
	IDStamp     int     `json:"idStamp"`
	ServerTime  int64   `json:"serverTime"`
}

// sendBuffer bounds the frames queued for one subscriber. A subscriber that
// falls this far behind is disconnected.
const sendBuffer = 64

type subscriber struct {
	conn *websocket.Conn
	addr string
	send chan []byte
	// farewell is the close frame written once send is closed.
	farewell []byte
}

// Hub fans fired events out to every connected subscriber. Publish never
// blocks on the network; each subscriber has its own writer.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
	writers     sync.WaitGroup
	logger      *log.Logger
	upgrader    websocket.Upgrader
	now         func() time.Time
}

// NewHub creates an empty hub. A nil logger uses log.Default.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		now: time.Now,
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Publish queues e for every subscriber. Subscribers whose queue is full are
// dropped.
func (h *Hub) Publish(e action.Event) {
	data, err := json.Marshal(Message{
		Type:        TypeFire,
		Target:      e.Target,
		TargetInput: e.TargetInput,
		Parameter:   e.Parameter,
		Delay:       e.Delay,
		Activator:   e.Activator,
		Caller:      e.Caller,
		IDStamp:     e.IDStamp,
		ServerTime:  h.now().UnixMilli(),
	})
	if err != nil {
		h.logger.Printf("failed to marshal fire event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- data:
		default:
			h.logger.Printf("dropping subscriber %s: send queue full", sub.addr)
			h.dropLocked(sub, websocket.ClosePolicyViolation, "subscriber too slow")
		}
	}
}

// ServeHTTP upgrades the request and keeps the subscriber until the client
// goes away. Client frames are read and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	sub := &subscriber{conn: conn, addr: r.RemoteAddr, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage, goingAway(), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.subscribers[sub] = struct{}{}
	h.writers.Add(1)
	h.mu.Unlock()
	go h.writeLoop(sub)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(sub)
			return
		}
	}
}

// Close disconnects every subscriber and waits for their writers to send the
// close frame.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for sub := range h.subscribers {
		h.dropLocked(sub, websocket.CloseGoingAway, "server shutting down")
	}
	h.mu.Unlock()
	h.writers.Wait()
}

func (h *Hub) writeLoop(sub *subscriber) {
	defer h.writers.Done()
	defer sub.conn.Close()
	for data := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Printf("failed to send fire event to %s: %v", sub.addr, err)
			h.remove(sub)
			return
		}
	}
	sub.conn.WriteControl(websocket.CloseMessage, sub.farewell, time.Now().Add(writeWait))
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub, websocket.CloseNormalClosure, "")
}

// dropLocked unregisters sub and closes its queue. Callers hold h.mu.
func (h *Hub) dropLocked(sub *subscriber, code int, text string) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	sub.farewell = websocket.FormatCloseMessage(code, text)
	close(sub.send)
}

func goingAway() []byte {
	return websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
}
