package models

import (
	"gorm.io/gorm"
)

// User 代表出價遊戲中的使用者
// 帳號註冊與登入由外部系統負責，編號沿用發行端給的值
type User struct {
	gorm.Model

	ID       uint64  `gorm:"primaryKey;<-:create"`
	Name     string  `gorm:"type:varchar(255);not null;<-:create"`
	ImageUrl *string `gorm:"type:text"`
}
