package hub

import (
	"encoding/json"
	"sync"
	"time"

	"qms/dashboard-service/internal/live"

	"go.uber.org/zap"
)

// Subscription selects which live projection a client receives. A client
// with no status receives nothing.
type Subscription struct {
	Status      string
	DeskID      string
	ServiceName string
}

func (s Subscription) filter() live.Filter {
	return live.Filter{DeskID: s.DeskID, ServiceName: s.ServiceName}
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action  string `json:"action"`
	Status  string `json:"status"`
	DeskID  string `json:"desk_id"`
	Service string `json:"service"`
}

type envelope struct {
	Type      string          `json:"type"`
	Payload   live.Projection `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func New(logger *zap.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends each subscribed client the projection narrowed to its
// filter. Clients that cannot keep up miss the message.
func (h *Hub) Broadcast(proj live.Projection) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	encoded := make(map[live.Filter][]byte)
	for _, client := range h.clients {
		sub := client.Subscription
		if sub.Status == "" || sub.Status != proj.Status {
			continue
		}
		payload, ok := encoded[sub.filter()]
		if !ok {
			var err error
			payload, err = Encode(proj.Filter(sub.filter()))
			if err != nil {
				h.logger.Error("encode projection", zap.Error(err))
				return
			}
			encoded[sub.filter()] = payload
		}
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn("drop message for client", zap.String("client_id", client.ID))
		}
	}
}

func Encode(proj live.Projection) ([]byte, error) {
	return json.Marshal(envelope{Type: "live.projection", Payload: proj, CreatedAt: proj.GeneratedAt})
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
