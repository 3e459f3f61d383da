package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 表示要找的資料不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 表示違反唯一性限制，同一個 PDA 或簽章已經寫過
	ErrDuplicate = errors.New("record already exists")
)

// PersistenceError 表示資料庫寫入失敗
// 帳本上的狀態已經不可逆，呼叫端要把這筆寫入留到 dead-letter 重試
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("[%s] persistence failed, err=%v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
