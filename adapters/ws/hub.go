package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	redisAdapter "solbid/adapters/redis"
)

// Hub 管理所有觀戰連線，把已確認的遊戲狀態廣播出去
// 狀態以 game id 為單位做 last-write-wins 合併，不保留歷史事件
type Hub struct {
	logger *slog.Logger

	clients    map[*Client]bool
	games      map[uint64]*GameSummary
	register   chan *Client
	unregister chan *Client
	publish    chan GameEvent

	consumer redisAdapter.IConsumer[GameEvent]

	mu     sync.Mutex
	wg     sync.WaitGroup
	done   chan struct{}
	closed bool
}

// NewHub 建立一個新的 Hub
// consumer 負責把其他節點發進 redis stream 的事件帶進來，可以為 nil（單節點）
func NewHub(consumer redisAdapter.IConsumer[GameEvent], logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger.With(slog.String("caller", "Hub")),
		clients:    make(map[*Client]bool),
		games:      make(map[uint64]*GameSummary),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan GameEvent, 16),
		consumer:   consumer,
		done:       make(chan struct{}),
	}
}

// Start 啟動廣播迴圈
func (h *Hub) Start() {
	var streamEvents <-chan GameEvent
	if h.consumer != nil {
		h.consumer.Start()
		streamEvents = h.consumer.Subscribe()
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.logger.Info("hub loop stopped")

		for {
			select {
			case <-h.done:
				return
			case client := <-h.register:
				h.clients[client] = true
				h.logger.Info("client registered", slog.String("clientId", client.id.String()))
			case client := <-h.unregister:
				if _, ok := h.clients[client]; ok {
					delete(h.clients, client)
					close(client.send)
					h.logger.Info("client unregistered", slog.String("clientId", client.id.String()))
				}
			case event := <-h.publish:
				h.dispatch(event)
			case event, ok := <-streamEvents:
				if !ok {
					streamEvents = nil
					continue
				}
				h.dispatch(event)
			}
		}
	}()
}

// Publish 把事件交給廣播迴圈，Close 之後的事件直接丟棄
func (h *Hub) Publish(event GameEvent) {
	select {
	case <-h.done:
	case h.publish <- event:
	}
}

// attach 把連線掛進廣播迴圈，hub 已經關閉時回傳 false
func (h *Hub) attach(c *Client) bool {
	select {
	case <-h.done:
		return false
	case h.register <- c:
		return true
	}
}

// detach 把連線從廣播迴圈摘掉，hub 已經關閉時由 Close 收尾
func (h *Hub) detach(c *Client) {
	select {
	case <-h.done:
	case h.unregister <- c:
	}
}

// dispatch 合併事件進 hub 的狀態表，再廣播合併後的結果
func (h *Hub) dispatch(event GameEvent) {
	merged := h.merge(event)

	frame, err := json.Marshal(Outbound{Type: event.Kind, Data: merged})
	if err != nil {
		h.logger.Error("failed to marshal broadcast frame", slog.Any("error", err))
		return
	}

	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			// 慢的觀戰端跳過這一幀，連線本身不受影響
			h.logger.Debug("client send buffer full, frame dropped",
				slog.String("clientId", client.id.String()))
		}
	}
}

// merge 以 last-write-wins 規則更新遊戲狀態
// 純量欄位整個覆寫，玩家清單以 PDA 比對：已知的取代，沒看過的附加
func (h *Hub) merge(event GameEvent) GameSummary {
	current, ok := h.games[event.Game.GameID]
	if !ok {
		snapshot := event.Game
		h.games[event.Game.GameID] = &snapshot
		return snapshot
	}

	players := current.Players
	for _, incoming := range event.Game.Players {
		replaced := false
		for i := range players {
			if players[i].Pda == incoming.Pda {
				players[i] = incoming
				replaced = true
				break
			}
		}
		if !replaced {
			players = append(players, incoming)
		}
	}

	snapshot := event.Game
	snapshot.Players = players
	h.games[event.Game.GameID] = &snapshot
	return snapshot
}

// Close 停止廣播迴圈並踢掉所有連線
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	if h.consumer != nil {
		h.consumer.Close()
	}
	close(h.done)
	h.wg.Wait()

	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.logger.Info("hub closed")
}
