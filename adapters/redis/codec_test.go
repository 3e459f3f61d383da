package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeStreamValues(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		original := TestMessage{ID: "m1", Data: "hello"}

		values, err := EncodeStreamValues(original)
		require.NoError(t, err)
		require.Contains(t, values, "payload")

		decoded, err := DecodeStreamValues[TestMessage](values)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
	})

	t.Run("reject pointer type", func(t *testing.T) {
		_, err := EncodeStreamValues(&TestMessage{})
		assert.ErrorIs(t, err, ErrPointerType)

		_, err = DecodeStreamValues[*TestMessage](map[string]any{"payload": "x"})
		assert.ErrorIs(t, err, ErrPointerType)
	})

	t.Run("empty values", func(t *testing.T) {
		decoded, err := DecodeStreamValues[TestMessage](nil)
		require.NoError(t, err)
		assert.Equal(t, TestMessage{}, decoded)
	})

	t.Run("missing payload field", func(t *testing.T) {
		_, err := DecodeStreamValues[TestMessage](map[string]any{"other": "x"})
		assert.Error(t, err)
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := DecodeStreamValues[TestMessage](map[string]any{"payload": "%%%"})
		assert.Error(t, err)
	})
}
