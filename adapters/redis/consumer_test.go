package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewConsumer(t *testing.T) {
	tests := []struct {
		name    string
		client  *redis.Client
		stream  string
		wantErr string
	}{
		{
			name:   "valid configuration",
			client: redis.NewClient(&redis.Options{}),
			stream: "bid-events",
		},
		{
			name:    "nil client",
			client:  nil,
			stream:  "bid-events",
			wantErr: "redis client cannot be nil",
		},
		{
			name:    "empty stream",
			client:  redis.NewClient(&redis.Options{}),
			stream:  "",
			wantErr: "stream cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			consumer, err := NewConsumer[TestMessage](tt.client, tt.stream)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, consumer)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, consumer)
				consumer.Close()
			}

			if tt.client != nil {
				tt.client.Close()
			}
		})
	}
}

func TestConsumer_Subscribe(t *testing.T) {
	t.Run("event flows to downstream", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		event := TestMessage{ID: "m1", Data: "hello"}
		values, err := EncodeStreamValues(event)
		require.NoError(t, err)

		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"bid-events", "$"},
			Count:   1,
			Block:   time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "bid-events",
				Messages: []redis.XMessage{
					{ID: "1-0", Values: values},
				},
			},
		})

		consumer, err := NewConsumer[TestMessage](client, "bid-events")
		require.NoError(t, err)
		consumer.Start()
		defer consumer.Close()

		select {
		case got := <-consumer.Subscribe():
			assert.Equal(t, event, got)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	})

	t.Run("undecodable event is skipped", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		goodEvent := TestMessage{ID: "m2"}
		goodValues, err := EncodeStreamValues(goodEvent)
		require.NoError(t, err)

		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"bid-events", "$"},
			Count:   1,
			Block:   time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "bid-events",
				Messages: []redis.XMessage{
					{ID: "1-0", Values: map[string]any{"payload": "%%%"}},
				},
			},
		})
		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"bid-events", "1-0"},
			Count:   1,
			Block:   time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "bid-events",
				Messages: []redis.XMessage{
					{ID: "2-0", Values: goodValues},
				},
			},
		})

		consumer, err := NewConsumer[TestMessage](client, "bid-events")
		require.NoError(t, err)
		consumer.Start()
		defer consumer.Close()

		select {
		case got := <-consumer.Subscribe():
			assert.Equal(t, goodEvent, got)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	})
}
