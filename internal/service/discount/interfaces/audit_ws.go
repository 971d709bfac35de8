package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pricepoint/internal/pkg/logger"
	"pricepoint/internal/pkg/tracing"
	"pricepoint/internal/service/discount/domain"
	"pricepoint/internal/service/discount/domain/port"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 审计面板部署在内网, 允许所有来源
		return true
	},
}

// AuditMessage 是推送给审计面板的评估摘要
type AuditMessage struct {
	EvaluationID  string               `json:"evaluation_id"`
	CampaignID    string               `json:"campaign_id"`
	CartID        string               `json:"cart_id,omitempty"`
	EvaluatedAt   time.Time            `json:"evaluated_at"`
	Status        domain.Status        `json:"status"`
	TotalDiscount decimal.Decimal      `json:"total_discount"`
	FinalTotal    decimal.Decimal      `json:"final_total"`
	AppliedRules  []domain.AppliedRule `json:"applied_rules"`
	Warnings      []domain.Warning     `json:"warnings,omitempty"`
	TraceID       string               `json:"trace_id,omitempty"` // 便于从面板跳转到 Jaeger
}

type outbound struct {
	campaignID string
	payload    []byte
}

// AuditHub 维护所有审计面板连接，并负责消息广播
type AuditHub struct {
	clients    map[*auditClient]struct{}
	register   chan *auditClient
	unregister chan *auditClient
	broadcast  chan outbound
	done       chan struct{}
	lock       sync.RWMutex
}

var _ port.AuditBroadcaster = (*AuditHub)(nil)

func NewAuditHub() *AuditHub {
	return &AuditHub{
		clients:    make(map[*auditClient]struct{}),
		register:   make(chan *auditClient),
		unregister: make(chan *auditClient),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
	}
}

// Run 处理注册、注销与广播, 直到 ctx 结束
func (h *AuditHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.lock.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.lock.Unlock()
			return
		case c := <-h.register:
			h.lock.Lock()
			h.clients[c] = struct{}{}
			h.lock.Unlock()
			log.Debug().Str("campaign_filter", c.campaignID).Msg("audit panel connected")
		case c := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.lock.Unlock()
		case msg := <-h.broadcast:
			h.lock.Lock()
			for c := range h.clients {
				if c.campaignID != "" && c.campaignID != msg.campaignID {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					// 面板消费过慢, 断开它
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.lock.Unlock()
		}
	}
}

// Broadcast 非阻塞地投递评估摘要, 队列已满时丢弃
func (h *AuditHub) Broadcast(ctx context.Context, result *domain.DiscountResult) {
	payload, err := json.Marshal(AuditMessage{
		EvaluationID:  result.EvaluationID,
		CampaignID:    result.CampaignID,
		CartID:        result.CartID,
		EvaluatedAt:   result.EvaluatedAt,
		Status:        result.Status,
		TotalDiscount: result.TotalDiscount,
		FinalTotal:    result.FinalTotal,
		AppliedRules:  result.AppliedRules,
		Warnings:      result.Warnings,
		TraceID:       tracing.GetTraceIDFromContext(ctx),
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to encode audit message")
		return
	}
	select {
	case h.broadcast <- outbound{campaignID: result.CampaignID, payload: payload}:
	default:
		logger.Ctx(ctx).Warn().Str("evaluation_id", result.EvaluationID).Msg("audit queue full, dropping message")
	}
}

// ClientCount 返回当前连接的面板数量
func (h *AuditHub) ClientCount() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// ServeWS 将请求升级为 WebSocket; 可选参数 campaignId 只订阅指定活动
func (h *AuditHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &auditClient{hub: h, conn: conn, send: make(chan []byte, 64), campaignID: r.URL.Query().Get("campaignId")}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// auditClient 是一个审计面板连接
type auditClient struct {
	hub        *AuditHub
	conn       *websocket.Conn
	send       chan []byte
	campaignID string
}

// readPump 只处理 pong 与关闭, 面板不会发送业务消息
func (c *auditClient) readPump() {
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

func (c *auditClient) writePump() {
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
