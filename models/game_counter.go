package models

// GameCounter 是全域唯一的遊戲編號計數器，固定只有一列
// 每成功建立一場遊戲就遞增一次，保證 GameID 單調遞增且不重複
type GameCounter struct {
	ID         uint64 `gorm:"primaryKey;<-:create"`
	CurrGameID uint64 `gorm:"not null"`
}
