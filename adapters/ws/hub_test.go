package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testEvent(kind string, gameID, highest uint64, players ...PlayerSummary) GameEvent {
	return GameEvent{
		Kind: kind,
		Game: GameSummary{
			GameID:           gameID,
			Pda:              "game-pda",
			InitialBidAmount: 100,
			HighestBid:       highest,
			TotalBids:        uint64(len(players)),
			Players:          players,
		},
	}
}

func TestHub_PublishWithoutObservers(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil, nil)
	hub.Start()

	// 沒有任何觀戰端時事件直接被吸收，不會堆積也不會卡住
	for i := 0; i < 100; i++ {
		hub.Publish(testEvent(TypeGameUpdate, 1, uint64(i)))
	}
	hub.Close()

	// 關閉後的事件直接丟棄
	hub.Publish(testEvent(TypeGameUpdate, 1, 999))
}

func TestHub_BroadcastToClient(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil, nil)
	hub.Start()
	defer hub.Close()

	client := &Client{id: uuid.New(), hub: hub, send: make(chan []byte, 4)}
	hub.register <- client

	hub.Publish(testEvent(TypeNewGame, 7, 100, PlayerSummary{Pda: "p1", BidCount: 1}))

	select {
	case frame := <-client.send:
		var out struct {
			Type string      `json:"type"`
			Data GameSummary `json:"data"`
		}
		require.NoError(t, json.Unmarshal(frame, &out))
		assert.Equal(t, TypeNewGame, out.Type)
		assert.Equal(t, uint64(7), out.Data.GameID)
		assert.Len(t, out.Data.Players, 1)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast frame")
	}
}

func TestHub_MergeLastWriteWins(t *testing.T) {
	hub := NewHub(nil, nil)

	first := hub.merge(testEvent(TypeNewGame, 7, 100, PlayerSummary{Pda: "p1", BidCount: 1, Role: "CREATOR"}))
	assert.Equal(t, uint64(100), first.HighestBid)

	// 純量覆寫，玩家以 PDA 取代或附加
	second := hub.merge(testEvent(TypeGameUpdate, 7, 200,
		PlayerSummary{Pda: "p1", BidCount: 1, Role: "CREATOR", Safe: true},
		PlayerSummary{Pda: "p2", BidCount: 2, Role: "BIDDER"},
	))
	assert.Equal(t, uint64(200), second.HighestBid)
	require.Len(t, second.Players, 2)
	assert.True(t, second.Players[0].Safe)
	assert.Equal(t, "p2", second.Players[1].Pda)

	// 舊事件裡沒帶的玩家不會被清掉
	third := hub.merge(testEvent(TypeGameUpdate, 7, 400, PlayerSummary{Pda: "p3", BidCount: 3, Role: "BIDDER"}))
	assert.Len(t, third.Players, 3)

	// 不同遊戲互不干擾
	other := hub.merge(testEvent(TypeNewGame, 8, 50))
	assert.Empty(t, other.Players)
	assert.Len(t, hub.games[7].Players, 3)
}

func TestHub_AttachAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil, nil)
	hub.Start()
	hub.Close()

	client := &Client{id: uuid.New(), hub: hub, send: make(chan []byte, 1)}

	// 關閉後註冊和反註冊都要立刻返回，不能卡在沒人收的 channel 上
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.False(t, hub.attach(client))
		hub.detach(client)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("attach or detach blocked after hub close")
	}
}

func TestHub_SlowClientSkipped(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil, nil)
	hub.Start()
	defer hub.Close()

	// send buffer 已滿的觀戰端只會掉幀，廣播迴圈不會被卡住
	slow := &Client{id: uuid.New(), hub: hub, send: make(chan []byte)}
	hub.register <- slow

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(testEvent(TypeGameUpdate, 1, uint64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub loop blocked on slow client")
	}
}
