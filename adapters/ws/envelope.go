package ws

import (
	"encoding/json"
	"time"
)

// 進出 socket 的訊息類型
const (
	TypeCreateGame = "create-game"
	TypePlaceBid   = "place-bid"
	TypeNewGame    = "new-game"
	TypeGameUpdate = "game-update"
	TypeError      = "error"
)

// Envelope 是 socket 上所有訊框的外層格式
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Outbound 是往觀戰端送的訊框
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ErrorPayload 是 error 訊框的內容
type ErrorPayload struct {
	Message string `json:"message"`
}

// CreateGameRequest 是 create-game 訊框的內容
// 交易已經由前端錢包簽名送出，這裡只帶確認需要的資訊
type CreateGameRequest struct {
	GameID               uint64 `json:"gameId" binding:"required"`
	InitialBidAmount     uint64 `json:"initialBidAmount" binding:"required"`
	PlayerPubkey         string `json:"playerPubkey" binding:"required"`
	Signature            string `json:"signature" binding:"required"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// PlaceBidRequest 是 place-bid 訊框的內容
type PlaceBidRequest struct {
	GameID               uint64 `json:"gameId" binding:"required"`
	Amount               uint64 `json:"amount" binding:"required"`
	PlayerPubkey         string `json:"playerPubkey" binding:"required"`
	Signature            string `json:"signature" binding:"required"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// PlayerSummary 是廣播畫面上一個玩家的狀態
type PlayerSummary struct {
	Pda            string `json:"pda"`
	PlayerPubkey   string `json:"playerPubkey"`
	UserName       string `json:"userName"`
	TotalBidAmount uint64 `json:"totalBidAmount"`
	BidCount       uint64 `json:"bidCount"`
	RoyaltyEarned  uint64 `json:"royaltyEarned"`
	Safe           bool   `json:"safe"`
	Role           string `json:"role"`
}

// GameSummary 是廣播畫面上一場遊戲的完整狀態
type GameSummary struct {
	GameID           uint64          `json:"gameId"`
	Pda              string          `json:"pda"`
	InitialBidAmount uint64          `json:"initialBidAmount"`
	HighestBid       uint64          `json:"highestBid"`
	LastBidTime      time.Time       `json:"lastBidTime"`
	TotalBids        uint64          `json:"totalBids"`
	LastBidderPda    string          `json:"lastBidderPda"`
	PrizePool        uint64          `json:"prizePool"`
	Ended            bool            `json:"ended"`
	Players          []PlayerSummary `json:"players"`
}

// GameEvent 是協調者發進事件流、由各節點 hub 廣播出去的事件
type GameEvent struct {
	Kind string      `json:"kind" msgpack:"kind"`
	Game GameSummary `json:"game" msgpack:"game"`
}
