package auction

import (
	"solbid/models"
)

// SettlementUpdate 是結算批次中單一玩家的最終記帳資料
// 數值由鏈上程式結算時算出，這裡只負責一次性覆寫鏡像
type SettlementUpdate struct {
	PlayerID       uint64
	TotalBidAmount uint64
	RoyaltyEarned  uint64
	BidCount       uint64
	Safe           bool
}

// Settlement 是一次完整的結算輸入：
// 所有既有玩家的記帳更新，加上最後出價者（FINISHER）的出價資料
type Settlement struct {
	Updates  []SettlementUpdate
	Closer   BidInput
	CloserAt uint64 // FINISHER 的出價序號，由呼叫端從鏈上狀態取得
}

// Finalize 結束遊戲並凍結所有記帳欄位
//
// 效果：
//   - game.Ended 設為 true（單向，不可逆）
//   - 依批次覆寫每位玩家的 totalBidAmount / royaltyEarned / bidCount / safe
//   - 結束前最後一位出價者改判為 WINNER
//   - 追加 FINISHER 的玩家與出價紀錄；遲到的出價不動獎金池
//
// 批次為空或引用不存在的玩家時回傳 SettlementError，遊戲不變
func Finalize(game *models.Game, players []models.Player, s Settlement) ([]models.Player, *models.Player, *models.Bid, error) {
	if len(s.Updates) == 0 {
		return nil, nil, nil, &SettlementError{Reason: "empty settlement batch"}
	}

	byID := make(map[uint64]*models.Player, len(players))
	for i := range players {
		byID[players[i].ID] = &players[i]
	}
	for _, u := range s.Updates {
		if _, ok := byID[u.PlayerID]; !ok {
			return nil, nil, nil, &SettlementError{MissingPlayerID: u.PlayerID}
		}
	}

	// 批次已驗證完畢，之後不會再失敗
	for _, u := range s.Updates {
		p := byID[u.PlayerID]
		p.TotalBidAmount = u.TotalBidAmount
		p.RoyaltyEarned = u.RoyaltyEarned
		p.BidCount = u.BidCount
		p.Safe = u.Safe
	}

	// 結束前的最後一位出價者拿走獎金池，改判為 WINNER
	for i := range players {
		if players[i].BidCount == game.TotalBids && players[i].Role != models.RoleFinisher {
			players[i].Role = models.RoleWinner
		}
	}

	game.Ended = true
	game.LastBidTime = s.Closer.Time

	closerSeq := s.CloserAt
	if closerSeq == 0 {
		closerSeq = game.TotalBids + 1
	}
	finisher := &models.Player{
		GameID:         game.ID,
		UserID:         s.Closer.UserID,
		PlayerPubkey:   s.Closer.PlayerPubkey,
		Pda:            s.Closer.PlayerPda,
		TotalBidAmount: s.Closer.Amount,
		BidCount:       closerSeq,
		Role:           models.RoleFinisher,
	}
	finisherBid := &models.Bid{
		Pda:       s.Closer.BidPda,
		Amount:    s.Closer.Amount,
		Timestamp: s.Closer.Time,
	}
	return players, finisher, finisherBid, nil
}
