package redis

import (
	"context"
	"time"
)

// IProducer 定義了事件發佈端的操作介面
type IProducer[T any] interface {
	Start()
	Publish(event T) error
	Close()
}

// IConsumer 定義了事件訂閱端的操作介面
type IConsumer[T any] interface {
	Start()
	Subscribe() <-chan T
	Close()
}

// IGroupConsumer 定義了帶確認機制的消費端介面
// 處理失敗的訊息會被移到 dead-letter stream，不會無聲遺失
type IGroupConsumer[T any] interface {
	Start() error
	Subscribe() <-chan *Message[T]
	Close() error
}

// IAutoRenewMutex 定義了分散式鎖的操作介面
type IAutoRenewMutex interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
	Valid() bool
}

// ISignatureRegistry 定義了交易簽章的冪等註冊表
type ISignatureRegistry interface {
	Claim(ctx context.Context, signature string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, signature string) error
}
