package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"streamchat-backend/internal/domain"
	"streamchat-backend/internal/middleware"
	"streamchat-backend/internal/service/chat"
	"streamchat-backend/pkg/constants"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/metrics"
	"streamchat-backend/pkg/response"
)

// Presence tracks which users hold an open event socket
type Presence interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	Refresh(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
}

// subscriber is the part of *redis.PubSub the hub drives as topics gain and lose
// their first and last socket
type subscriber interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
}

// Hub fans realtime chat events out of Redis Pub/Sub to websocket clients. Each
// topic is subscribed once per process while at least one socket listens to it.
type Hub struct {
	subs     subscriber
	messages <-chan *redis.Message
	closer   func() error

	presence Presence
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
}

// Client is one websocket connection and the topics it listens to
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID *uuid.UUID
	topics []string

	closeOnce sync.Once
}

// NewHub creates a hub backed by a single Redis Pub/Sub connection
func NewHub(client *redis.Client, presence Presence, m *metrics.Metrics, allowedOrigins []string) *Hub {
	pubsub := client.Subscribe(context.Background())
	return newHub(pubsub, pubsub.Channel(), pubsub.Close, presence, m, allowedOrigins)
}

func newHub(subs subscriber, messages <-chan *redis.Message, closer func() error, presence Presence, m *metrics.Metrics, allowedOrigins []string) *Hub {
	return &Hub{
		subs:     subs,
		messages: messages,
		closer:   closer,
		presence: presence,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		topics: make(map[string]map[*Client]struct{}),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run forwards Pub/Sub messages to subscribed clients until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		if h.closer != nil {
			if err := h.closer(); err != nil {
				logger.Warn("Failed to close event subscription", zap.Error(err))
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-h.messages:
			if !ok {
				return
			}
			h.deliver(msg.Channel, []byte(msg.Payload))
		}
	}
}

// deliver queues payload on every client of topic. Clients whose buffer is full are
// disconnected.
func (h *Hub) deliver(topic string, payload []byte) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.topics[topic] {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.metrics.RecordWebSocketError("slow_consumer")
		logger.Warn("Dropping slow event socket", zap.String("topic", topic))
		h.unregister(client)
	}
}

func (h *Hub) register(ctx context.Context, client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var fresh []string
	for _, topic := range client.topics {
		clients, ok := h.topics[topic]
		if !ok {
			clients = make(map[*Client]struct{})
			h.topics[topic] = clients
			fresh = append(fresh, topic)
		}
		clients[client] = struct{}{}
	}

	if len(fresh) > 0 {
		if err := h.subs.Subscribe(ctx, fresh...); err != nil {
			h.detach(client)
			return err
		}
	}
	return nil
}

// unregister removes client from the hub and closes its send buffer. Safe to call
// more than once.
func (h *Hub) unregister(client *Client) {
	client.closeOnce.Do(func() {
		h.mu.Lock()
		h.detach(client)
		h.mu.Unlock()

		close(client.send)
		h.metrics.WebSocketClosed()

		if client.userID != nil {
			ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
			defer cancel()
			if err := h.presence.SetOffline(ctx, *client.userID); err != nil {
				logger.Warn("Failed to clear presence",
					zap.String("user_id", client.userID.String()),
					zap.Error(err))
			}
		}
	})
}

// detach drops client from its topics and unsubscribes empty ones. Caller holds mu.
func (h *Hub) detach(client *Client) {
	var empty []string
	for _, topic := range client.topics {
		clients, ok := h.topics[topic]
		if !ok {
			continue
		}
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.topics, topic)
			empty = append(empty, topic)
		}
	}

	if len(empty) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
		defer cancel()
		if err := h.subs.Unsubscribe(ctx, empty...); err != nil {
			h.metrics.RecordWebSocketError("subscribe")
			logger.Warn("Failed to unsubscribe event topics", zap.Strings("topics", empty), zap.Error(err))
		}
	}
}

// Listeners returns how many sockets listen to topic
func (h *Hub) Listeners(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// topicsFor resolves the topics a socket listens to: the caller's own direct channel
// when signed in, plus the stream and show channels named in the query
func topicsFor(c *gin.Context, requester *domain.Requester) ([]string, bool) {
	var topics []string
	if requester.Authenticated() {
		topics = append(topics, chat.Topic(domain.ChannelUser, requester.ID))
	}

	for _, channel := range []domain.ChannelType{domain.ChannelStream, domain.ChannelShow} {
		raw := c.Query(string(channel))
		if raw == "" {
			continue
		}
		ownerID, err := uuid.Parse(raw)
		if err != nil {
			response.ValidationError(c, "Invalid "+string(channel)+" id")
			return nil, false
		}
		if channel == domain.ChannelShow && !requester.Authenticated() {
			response.Unauthorized(c, "Authentication required")
			return nil, false
		}
		topics = append(topics, chat.Topic(channel, ownerID))
	}

	if len(topics) == 0 {
		response.ValidationError(c, "stream or show id required")
		return nil, false
	}
	return topics, true
}

// ServeWS upgrades the request and streams chat events
// GET /v1/ws/events?stream=<ownerId>&show=<ownerId>
func (h *Hub) ServeWS(c *gin.Context) {
	requester := middleware.GetRequester(c)
	topics, ok := topicsFor(c, requester)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.metrics.RecordWebSocketError("upgrade")
		logger.FromContext(c.Request.Context()).Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, constants.WebSocketSendBuffer),
		topics: topics,
	}
	if requester.Authenticated() {
		id := requester.ID
		client.userID = &id
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	if err := h.register(ctx, client); err != nil {
		h.metrics.RecordWebSocketError("subscribe")
		logger.Error("Failed to subscribe event topics", zap.Strings("topics", topics), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscribe failed"),
			time.Now().Add(constants.WebSocketWriteWait))
		conn.Close()
		return
	}
	h.metrics.WebSocketOpened()

	if client.userID != nil {
		if err := h.presence.SetOnline(ctx, *client.userID); err != nil {
			logger.Warn("Failed to set presence", zap.String("user_id", client.userID.String()), zap.Error(err))
		}
	}

	go client.writePump()
	go client.readPump()
}

// readPump consumes control frames. Clients publish over HTTP, so data frames are
// ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump writes queued events and pings. Every ping also refreshes presence.
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.metrics.RecordWebSocketError("write")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.refreshPresence()
		}
	}
}

func (c *Client) refreshPresence() {
	if c.userID == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()
	if err := c.hub.presence.Refresh(ctx, *c.userID); err != nil {
		logger.Debug("Failed to refresh presence", zap.Error(err))
	}
}
