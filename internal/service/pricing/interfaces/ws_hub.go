// internal/service/pricing/interfaces/ws_hub.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"pricewise/internal/pkg/metrics"
	"pricewise/internal/service/pricing/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

var ErrHubClosed = errors.New("recommendation hub is closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 管理后台与服务不同源
		return true
	},
}

type broadcastMsg struct {
	productID string
	payload   []byte
}

// Hub 维护所有活跃的推荐订阅连接，并负责广播。
// 它同时实现 port.RecommendationPublisher。
type Hub struct {
	clients    map[string]*Client // 使用连接 ID 作为 Key
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	done       chan struct{}
	metrics    *metrics.PricingMetrics
}

func NewHub(m *metrics.PricingMetrics) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, 256),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

// Run 是 Hub 的事件循环，所有对 clients 的读写都在这里完成
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for id, c := range h.clients {
			delete(h.clients, id)
			close(c.send)
		}
		h.setGauge()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c.id] = c
			h.setGauge()
			zlog.Info().Str("client_id", c.id).Str("product_id", c.productID).Msg("Recommendation stream client registered")
		case c := <-h.unregister:
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
				h.setGauge()
				zlog.Info().Str("client_id", c.id).Msg("Recommendation stream client unregistered")
			}
		case msg := <-h.broadcast:
			for id, c := range h.clients {
				if c.productID != "" && c.productID != msg.productID {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					// 慢消费者直接断开
					delete(h.clients, id)
					close(c.send)
					h.setGauge()
					zlog.Warn().Str("client_id", id).Msg("Dropping slow recommendation stream client")
				}
			}
		}
	}
}

// Publish 把推荐广播给订阅了该商品（或全部商品）的连接
func (h *Hub) Publish(ctx context.Context, rec *domain.PricingRecommendation) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- broadcastMsg{productID: rec.ProductID, payload: payload}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) setGauge() {
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(len(h.clients)))
	}
}

// Client 是一个 WebSocket 连接的代表
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	id        string
	productID string // 为空表示订阅全部商品
}

// writePump 把 send 中的消息写入连接，并定期发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// readPump 只处理心跳和关闭，客户端不会发送业务消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ServeWs 把 HTTP 连接升级为 WebSocket，可用 ?product_id= 只订阅一个商品
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		id:        uuid.NewString(),
		productID: r.URL.Query().Get("product_id"),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
