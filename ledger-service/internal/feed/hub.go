package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/ledger"
	"github.com/Checker-Finance/marketplace/internal/metrics"
	"github.com/Checker-Finance/marketplace/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
	sendBuffer     = 64
)

// Hub pushes committed ledger events to websocket clients. A client may
// narrow its feed to one account with ?account=; otherwise it sees every
// event. Clients that fall sendBuffer messages behind are disconnected.
type Hub struct {
	logger *zap.Logger
	prefix string

	register   chan *client
	unregister chan *client
	broadcast  chan outbound
	done       chan struct{}

	clients map[*client]struct{}
}

type client struct {
	account string
	send    chan []byte
}

type outbound struct {
	account string
	data    []byte
}

func NewHub(logger *zap.Logger, subjectPrefix string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:     logger,
		prefix:     subjectPrefix,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan outbound, sendBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Run owns the client set until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			metrics.FeedClients.Set(float64(len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.account != "" && c.account != msg.account {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					metrics.FeedDropped.Inc()
					h.logger.Warn("feed.client_dropped", zap.String("account", c.account))
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	metrics.FeedClients.Set(float64(len(h.clients)))
}

// Handle queues ev for every interested client. It is an eventbus handler.
func (h *Hub) Handle(ev model.Event) {
	env, err := model.NewEnvelope(model.Topic(h.prefix, ev.EventType()), ev)
	if err != nil {
		h.logger.Error("feed.envelope_failed", zap.String("event", ev.EventType()), zap.Error(err))
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("feed.marshal_failed", zap.String("event", ev.EventType()), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{account: ev.Account(), data: data}:
	case <-h.done:
	}
}

// attach registers a client. It returns nil once the hub has stopped.
func (h *Hub) attach(account string) *client {
	c := &client{account: account, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
		return c
	case <-h.done:
		return nil
	}
}

func (h *Hub) detach(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Upgrade rejects plain HTTP requests to the feed route.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handler serves one websocket connection for its lifetime.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		account := ""
		if raw := conn.Query("account"); raw != "" {
			a, err := ledger.ParseAccount(raw)
			if err != nil {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid account"))
				return
			}
			account = a.String()
		}

		c := h.attach(account)
		if c == nil {
			return
		}
		h.logger.Debug("feed.client_connected", zap.String("account", account))

		// the connection is released when this function returns, so both
		// pumps must finish first
		written := make(chan struct{})
		go func() {
			defer close(written)
			h.writePump(conn, c)
		}()
		h.readPump(conn, c)
		<-written
	})
}

// readPump discards client frames; it exists to process pongs and notice
// the peer going away.
func (h *Hub) readPump(conn *websocket.Conn, c *client) {
	defer h.detach(c)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("feed.read_failed", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.detach(c)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.detach(c)
				return
			}
		}
	}
}
