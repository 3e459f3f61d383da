package redis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrPointerType = errors.New("pointer type is not allowed")
)

// EncodeStreamValues 將事件序列化成 stream entry 的欄位
// msgpack 編碼後再 base64，避免 redis 對二進位欄位的顯示問題
func EncodeStreamValues[T any](event T) (map[string]any, error) {
	if reflect.TypeOf(event).Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}

	bytes, err := msgpack.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}

	return map[string]any{
		"payload": base64.StdEncoding.EncodeToString(bytes),
	}, nil
}

// DecodeStreamValues 從 stream entry 的欄位還原出事件
func DecodeStreamValues[T any](values map[string]any) (T, error) {
	var event T
	if reflect.TypeOf(event).Kind() == reflect.Ptr {
		return event, ErrPointerType
	}
	if len(values) == 0 {
		return event, nil
	}

	payload, ok := values["payload"].(string)
	if !ok {
		return event, errors.New("payload field not found or invalid type")
	}

	bytes, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return event, fmt.Errorf("base64 decode error: %w", err)
	}
	if err := msgpack.Unmarshal(bytes, &event); err != nil {
		return event, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	return event, nil
}
