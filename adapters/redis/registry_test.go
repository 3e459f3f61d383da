package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureRegistry_Claim(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(mock redismock.ClientMock)
		signature string
		claimed   bool
		wantErr   bool
	}{
		{
			name: "first claim succeeds",
			setup: func(mock redismock.ClientMock) {
				mock.Regexp().ExpectSetNX("seen:tx:sig1", `.*`, time.Minute).SetVal(true)
			},
			signature: "sig1",
			claimed:   true,
		},
		{
			name: "duplicate claim rejected",
			setup: func(mock redismock.ClientMock) {
				mock.Regexp().ExpectSetNX("seen:tx:sig1", `.*`, time.Minute).SetVal(false)
			},
			signature: "sig1",
			claimed:   false,
		},
		{
			name: "redis error",
			setup: func(mock redismock.ClientMock) {
				mock.Regexp().ExpectSetNX("seen:tx:sig1", `.*`, time.Minute).
					SetErr(errors.New("connection refused"))
			},
			signature: "sig1",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock, cleanup := setupTest(t)
			defer cleanup()
			tt.setup(mock)

			registry := NewSignatureRegistry(client)
			claimed, err := registry.Claim(context.Background(), tt.signature, time.Minute)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.claimed, claimed)
		})
	}
}

func TestSignatureRegistry_Release(t *testing.T) {
	t.Run("release deletes key", func(t *testing.T) {
		client, mock, cleanup := setupTest(t)
		defer cleanup()
		mock.ExpectDel("seen:tx:sig1").SetVal(1)

		registry := NewSignatureRegistry(client)
		require.NoError(t, registry.Release(context.Background(), "sig1"))
	})

	t.Run("custom prefix", func(t *testing.T) {
		client, mock, cleanup := setupTest(t)
		defer cleanup()
		mock.ExpectDel("bid:sig1").SetVal(1)

		registry := NewSignatureRegistry(client, WithSignatureRegistryPrefix("bid:"))
		require.NoError(t, registry.Release(context.Background(), "sig1"))
	})
}
