package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SignatureRegistry 用 SETNX 記錄已處理的交易簽章
// 同一筆帳本交易不管被提交幾次，只有第一個認領成功的協調者會落庫
type SignatureRegistry struct {
	client  *redis.Client
	options signatureRegistryOptions
}

type signatureRegistryOptions struct {
	prefix string
}

type SignatureRegistryOption func(*signatureRegistryOptions)

// WithSignatureRegistryPrefix 設定 key 前綴
func WithSignatureRegistryPrefix(prefix string) SignatureRegistryOption {
	return func(o *signatureRegistryOptions) {
		o.prefix = prefix
	}
}

// NewSignatureRegistry 建立一個新的簽章註冊表
func NewSignatureRegistry(client *redis.Client, opts ...SignatureRegistryOption) ISignatureRegistry {
	options := signatureRegistryOptions{
		prefix: "seen:tx:",
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &SignatureRegistry{
		client:  client,
		options: options,
	}
}

// Claim 嘗試認領一個簽章，回傳是否為第一次出現
func (r *SignatureRegistry) Claim(ctx context.Context, signature string, ttl time.Duration) (bool, error) {
	const op = "SignatureRegistry.Claim"
	ok, err := r.client.SetNX(ctx, r.options.prefix+signature, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("[%s] failed to claim signature, err=%w", op, err)
	}
	return ok, nil
}

// Release 釋放一個認領過的簽章
// 只在落庫失敗時呼叫，讓同一筆交易之後還能重試
func (r *SignatureRegistry) Release(ctx context.Context, signature string) error {
	const op = "SignatureRegistry.Release"
	if err := r.client.Del(ctx, r.options.prefix+signature).Err(); err != nil {
		return fmt.Errorf("[%s] failed to release signature, err=%w", op, err)
	}
	return nil
}
