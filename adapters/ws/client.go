package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// ICommandHandler 處理觀戰端發進來的指令訊框
type ICommandHandler interface {
	CreateGame(ctx context.Context, userID uint64, req CreateGameRequest) error
	PlaceBid(ctx context.Context, userID uint64, req PlaceBidRequest) error
}

// Client 是一條觀戰連線
type Client struct {
	id      uuid.UUID
	userID  uint64
	hub     *Hub
	conn    *websocket.Conn
	handler ICommandHandler
	send    chan []byte
	logger  *slog.Logger
}

// NewClient 把一條升級完成的 websocket 連線掛進 hub
func NewClient(hub *Hub, conn *websocket.Conn, userID uint64, handler ICommandHandler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	return &Client{
		id:      id,
		userID:  userID,
		hub:     hub,
		conn:    conn,
		handler: handler,
		send:    make(chan []byte, sendBufferSize),
		logger:  logger.With(slog.String("caller", "Client"), slog.String("clientId", id.String())),
	}
}

// Start 註冊進 hub 並啟動讀寫迴圈
// hub 已經關閉時直接收掉連線
func (c *Client) Start() {
	if !c.hub.attach(c) {
		c.conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("unexpected close", slog.Any("error", err))
			}
			return
		}

		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleEnvelope(envelope)
	}
}

// handleEnvelope 分派一個指令訊框
// 處理失敗只回 error 訊框，連線保持開啟
func (c *Client) handleEnvelope(envelope Envelope) {
	ctx := context.Background()

	switch envelope.Type {
	case TypeCreateGame:
		var req CreateGameRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil {
			c.sendError("invalid create-game payload")
			return
		}
		if err := c.handler.CreateGame(ctx, c.userID, req); err != nil {
			c.sendError(err.Error())
		}
	case TypePlaceBid:
		var req PlaceBidRequest
		if err := json.Unmarshal(envelope.Data, &req); err != nil {
			c.sendError("invalid place-bid payload")
			return
		}
		if err := c.handler.PlaceBid(ctx, c.userID, req); err != nil {
			c.sendError(err.Error())
		}
	default:
		c.sendError("unknown message type: " + envelope.Type)
	}
}

func (c *Client) sendError(message string) {
	frame, err := json.Marshal(Outbound{Type: TypeError, Data: ErrorPayload{Message: message}})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub 把這條連線踢掉了
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Debug("write error", slog.Any("error", err))
				}
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
