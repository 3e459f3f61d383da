package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGroupConsumer(t *testing.T) {
	tests := []struct {
		name                    string
		client                  *redis.Client
		stream, group, consumer string
		wantErr                 string
	}{
		{
			name:   "valid configuration",
			client: redis.NewClient(&redis.Options{}),
			stream: "persist", group: "workers", consumer: "worker-1",
		},
		{
			name:    "nil client",
			stream:  "persist",
			group:   "workers",
			wantErr: "redis client cannot be nil",
		},
		{
			name:   "missing identifiers",
			client: redis.NewClient(&redis.Options{}),
			stream: "persist", group: "", consumer: "worker-1",
			wantErr: "stream, group and consumer cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gc, err := NewGroupConsumer[TestMessage](tt.client, tt.stream, tt.group, tt.consumer)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, gc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, gc)
			}
			if tt.client != nil {
				tt.client.Close()
			}
		})
	}
}

func TestMessage_Done(t *testing.T) {
	t.Run("acks the message", func(t *testing.T) {
		client, mock, cleanup := setupTest(t)
		defer cleanup()
		mock.ExpectXAck("persist", "workers", "1-0").SetVal(1)

		msg := &Message[TestMessage]{
			client:    client,
			messageID: "1-0",
			stream:    "persist",
			group:     "workers",
		}
		require.NoError(t, msg.Done(context.Background()))
		// 第二次呼叫不會再打 redis
		require.NoError(t, msg.Done(context.Background()))
	})
}

func TestMessage_Fail(t *testing.T) {
	t.Run("moves to dead letter then acks", func(t *testing.T) {
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		raw := map[string]any{"payload": "abc"}
		mock.ExpectXAdd(&redis.XAddArgs{
			Stream: "persist:dead-letter",
			Values: map[string]any{"payload": "abc", "error": "db unavailable"},
		}).SetVal("2-0")
		mock.ExpectXAck("persist", "workers", "1-0").SetVal(1)

		msg := &Message[TestMessage]{
			client:    client,
			messageID: "1-0",
			stream:    "persist",
			group:     "workers",
			raw:       raw,
		}
		require.NoError(t, msg.Fail(context.Background(), errors.New("db unavailable")))
	})

	t.Run("dead letter write failure keeps message pending", func(t *testing.T) {
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.ExpectXAdd(&redis.XAddArgs{
			Stream: "persist:dead-letter",
			Values: map[string]any{"error": "boom"},
		}).SetErr(errors.New("redis down"))

		msg := &Message[TestMessage]{
			client:    client,
			messageID: "1-0",
			stream:    "persist",
			group:     "workers",
			raw:       map[string]any{},
		}
		err := msg.Fail(context.Background(), errors.New("boom"))
		require.Error(t, err)
		assert.False(t, msg.done)
	})
}
