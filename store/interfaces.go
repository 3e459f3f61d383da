package store

import (
	"context"

	"solbid/models"
)

// IGameStore 定義了遊戲資料的持久化介面
// 每個操作都是單一交易，部分寫入不會外漏
type IGameStore interface {
	// GetGame 讀取一場遊戲和它的所有玩家
	GetGame(ctx context.Context, gameID uint64) (*models.Game, error)
	// CreateGame 建立遊戲、建立者和第一筆出價，並推進遊戲編號計數器
	CreateGame(ctx context.Context, game *models.Game, creator *models.Player, bid *models.Bid) error
	// AppendBid 更新遊戲欄位並寫入新的玩家與出價
	AppendBid(ctx context.Context, game *models.Game, player *models.Player, bid *models.Bid) error
	// FinalizeGame 寫入結算後的遊戲、玩家批次和結束者
	FinalizeGame(ctx context.Context, game *models.Game, players []models.Player, finisher *models.Player, bid *models.Bid) error
	// ListActiveGames 列出所有還沒結束的遊戲
	ListActiveGames(ctx context.Context) ([]models.Game, error)
	// CurrentGameID 回傳計數器目前的值，計數器不存在時回傳 ErrNotFound
	CurrentGameID(ctx context.Context) (uint64, error)
	// EnsureUser 確保使用者存在，回傳資料庫中的使用者
	EnsureUser(ctx context.Context, user *models.User) error
}
