package models

import (
	"time"

	"gorm.io/gorm"
)

// Game 代表一場「加倍出價」競標遊戲
// 鏈上 Game account 是成交與否的依據，這裡保存的是鏈下的權威鏡像，
// 包含獎金池、出價次數等衍生紀錄，遊戲結束後仍保留作為歷史資料
type Game struct {
	gorm.Model

	ID                 uint64    `gorm:"primaryKey;autoIncrement;<-:false"`
	GameID             uint64    `gorm:"uniqueIndex;not null;<-:create"`
	Pda                string    `gorm:"type:varchar(64);uniqueIndex;not null;<-:create"`
	InitialBidAmount   uint64    `gorm:"not null;<-:create"`
	HighestBid         uint64    `gorm:"not null"`
	LastBidTime        time.Time `gorm:"type:timestamp with time zone;not null"`
	TotalBids          uint64    `gorm:"not null"`
	LastBidderPda      string    `gorm:"type:varchar(64);not null"`
	PrizePool          uint64    `gorm:"not null"`
	PlatformFeePercent uint64    `gorm:"not null;default:10;<-:create"`
	Ended              bool      `gorm:"not null;default:false"`

	// 外鍵關聯
	Players []Player
}
