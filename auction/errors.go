package auction

import (
	"errors"
	"fmt"
)

var (
	// ErrGameEnded 表示遊戲已經結束，後續出價必須走遲到確認路徑而不是 ApplyBid
	ErrGameEnded = errors.New("game has already ended")
	// ErrGameNotFound 表示指定的遊戲不存在
	ErrGameNotFound = errors.New("game not found")
)

// ValidationError 表示出價在進入核心流程前就被擋下
// 不會造成任何狀態變動，呼叫端可以直接修正後重試
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NewValidationError 建立一個 ValidationError
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// SettlementError 表示結算批次引用了不存在的玩家
// 遊戲狀態保持原樣，錯誤中帶出缺少的玩家編號
type SettlementError struct {
	MissingPlayerID uint64
	Reason          string
}

func (e *SettlementError) Error() string {
	if e.MissingPlayerID != 0 {
		return fmt.Sprintf("settlement failed: unknown player %d", e.MissingPlayerID)
	}
	return fmt.Sprintf("settlement failed: %s", e.Reason)
}
