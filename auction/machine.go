package auction

import (
	"time"

	"solbid/models"
)

// SafetyThreshold 是玩家變為 safe 的門檻：
// 一筆出價之後又累積了這麼多筆出價，該玩家就能領取 royalty
const SafetyThreshold = 5

// BidInput 是一筆已經在鏈上確認的出價，準備套用到鏈下狀態
type BidInput struct {
	Amount       uint64
	PlayerPubkey string
	PlayerPda    string
	BidPda       string
	UserID       uint64
	Time         time.Time
}

// MinNextBid 回傳下一筆出價的最低金額：前一筆最高出價的兩倍
// 鏈上程式會獨立檢查同一條規則，兩邊必須一致
func MinNextBid(highestBid uint64) uint64 {
	return 2 * highestBid
}

// ValidateProposedBid 在送出鏈上交易之前檢查出價金額
// 這是閘道層的前置檢查，被擋下的出價不會產生任何交易或狀態變動
func ValidateProposedBid(game *models.Game, amount uint64) error {
	if amount == 0 {
		return NewValidationError("bid amount must be positive")
	}
	if min := MinNextBid(game.HighestBid); amount < min {
		return NewValidationError("bid %d is below the minimum %d (double of %d)", amount, min, game.HighestBid)
	}
	return nil
}

// ApplyBid 把一筆已確認的出價套用到遊戲狀態上，回傳新增的玩家與出價紀錄
// 呼叫端必須已經：
//  1. 確認對應的鏈上交易
//  2. 取得該遊戲的單一寫入者鎖
//
// 已結束的遊戲回傳 ErrGameEnded，呼叫端應改走結算路徑
func ApplyBid(game *models.Game, in BidInput) (*models.Player, *models.Bid, error) {
	if game.Ended {
		return nil, nil, ErrGameEnded
	}
	if in.Amount == 0 {
		return nil, nil, NewValidationError("bid amount must be positive")
	}

	game.HighestBid = in.Amount
	game.PrizePool += in.Amount
	game.TotalBids++
	game.LastBidTime = in.Time
	game.LastBidderPda = in.PlayerPda

	role := models.RoleBidder
	if game.TotalBids == 1 {
		role = models.RoleCreator
	}

	player := &models.Player{
		GameID:         game.ID,
		UserID:         in.UserID,
		PlayerPubkey:   in.PlayerPubkey,
		Pda:            in.PlayerPda,
		TotalBidAmount: in.Amount,
		BidCount:       game.TotalBids,
		Role:           role,
	}
	bid := &models.Bid{
		Pda:       in.BidPda,
		Amount:    in.Amount,
		Timestamp: in.Time,
	}
	return player, bid, nil
}

// SafeAt 判斷第 bidCount 筆出價的玩家在目前的出價總數下是否已經安全
func SafeAt(bidCount, totalBids uint64) bool {
	return totalBids >= bidCount && totalBids-bidCount >= SafetyThreshold
}
