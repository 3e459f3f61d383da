package models

import (
	"time"

	"gorm.io/gorm"
)

// Bid 代表一筆已在鏈上確認的出價
// 與對應的 Player 同時建立，共用同一個序號，建立後不可變更
type Bid struct {
	gorm.Model

	ID        uint64    `gorm:"primaryKey;autoIncrement;<-:false"`
	Pda       string    `gorm:"type:varchar(64);uniqueIndex;not null;<-:create"`
	Amount    uint64    `gorm:"not null;<-:create"`
	Timestamp time.Time `gorm:"type:timestamp with time zone;not null;<-:create"`
	PlayerID  uint64    `gorm:"uniqueIndex;not null;<-:create"`

	// 外鍵關聯
	Player *Player `gorm:"foreignKey:PlayerID"`
}
