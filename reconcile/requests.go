package reconcile

import (
	"solbid/auction"
	"solbid/models"
)

// CreateGameInput 是建立遊戲的協調請求
// 交易已由玩家錢包簽名送出，這裡帶的是確認與入帳需要的資訊
type CreateGameInput struct {
	GameID               uint64
	InitialBidAmount     uint64
	PlayerPubkey         string
	Signature            string
	LastValidBlockHeight uint64
	UserID               uint64
	UserName             string
}

// PlaceBidInput 是出價的協調請求
type PlaceBidInput struct {
	GameID               uint64
	Amount               uint64
	PlayerPubkey         string
	Signature            string
	LastValidBlockHeight uint64
	UserID               uint64
	UserName             string
}

// FinalizeInput 是結算遊戲的協調請求
// 結束出價走的是和一般出價相同的鏈上指令，差別在遊戲已被鏈上判定結束
// Updates 可由呼叫端帶入結算批次；留空時改從鏈上玩家帳戶讀回
type FinalizeInput struct {
	GameID               uint64
	Amount               uint64
	PlayerPubkey         string
	Signature            string
	LastValidBlockHeight uint64
	UserID               uint64
	UserName             string
	Updates              []auction.SettlementUpdate
}

// PersistKind 標記重試請求要重做哪一種寫入
type PersistKind string

const (
	PersistCreate   PersistKind = "create"
	PersistAppend   PersistKind = "append"
	PersistFinalize PersistKind = "finalize"
)

// PersistRequest 是一筆確認後落庫失敗的寫入
// 發進重試流，由背景 worker 重做，帳本狀態已不可逆所以絕不能丟
type PersistRequest struct {
	Kind      PersistKind     `msgpack:"kind"`
	Signature string          `msgpack:"signature"`
	Game      models.Game     `msgpack:"game"`
	Players   []models.Player `msgpack:"players"`
	Player    models.Player   `msgpack:"player"`
	Bid       models.Bid      `msgpack:"bid"`
}
