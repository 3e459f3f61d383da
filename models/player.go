package models

import (
	"gorm.io/gorm"
)

// PlayerRole 代表玩家在一場遊戲中的終局身分
// CREATOR / BIDDER 在出價時決定，FINISHER / WINNER 在結算時改寫一次
type PlayerRole string

const (
	RoleCreator  PlayerRole = "CREATOR"
	RoleBidder   PlayerRole = "BIDDER"
	RoleFinisher PlayerRole = "FINISHER"
	RoleWinner   PlayerRole = "WINNER"
)

// Player 代表一次出價事件的玩家紀錄
// 同一個人出價兩次會產生兩筆 Player，以 (GameID, PlayerPubkey, BidCount) 區分
type Player struct {
	gorm.Model

	ID             uint64     `gorm:"primaryKey;autoIncrement;<-:false"`
	GameID         uint64     `gorm:"index;not null;<-:create"`
	UserID         uint64     `gorm:"not null;<-:create"`
	PlayerPubkey   string     `gorm:"type:varchar(64);not null;<-:create"`
	Pda            string     `gorm:"type:varchar(64);uniqueIndex;not null;<-:create"`
	TotalBidAmount uint64     `gorm:"not null"`
	BidCount       uint64     `gorm:"not null;<-:create"`
	RoyaltyEarned  uint64     `gorm:"not null;default:0"`
	Safe           bool       `gorm:"not null;default:false"`
	Role           PlayerRole `gorm:"type:varchar(16);not null;default:'BIDDER'"`

	// 外鍵關聯
	Game *Game `gorm:"foreignKey:GameID;references:ID"`
	User *User `gorm:"foreignKey:UserID"`
	Bid  *Bid  `gorm:"foreignKey:PlayerID"`
}
