package solana_test

import (
	"testing"

	sol "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"solbid/adapters/solana"
)

var testProgramID = sol.MustPublicKeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")

func TestGamePDA(t *testing.T) {
	t.Run("確定性", func(t *testing.T) {
		// 相同輸入必須推導出相同地址
		a, err := solana.GamePDA(testProgramID, 42)
		require.NoError(t, err)
		b, err := solana.GamePDA(testProgramID, 42)
		require.NoError(t, err)
		require.Equal(t, a, b)
	})
	t.Run("不同遊戲不同地址", func(t *testing.T) {
		a, err := solana.GamePDA(testProgramID, 1)
		require.NoError(t, err)
		b, err := solana.GamePDA(testProgramID, 2)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})
}

func TestPlayerPDA(t *testing.T) {
	player := sol.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	other := sol.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")

	t.Run("隨出價序號變動", func(t *testing.T) {
		// 每次出價用新的序號，地址必須不同
		a, err := solana.PlayerPDA(testProgramID, 7, player, 1)
		require.NoError(t, err)
		b, err := solana.PlayerPDA(testProgramID, 7, player, 2)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})
	t.Run("隨玩家變動", func(t *testing.T) {
		a, err := solana.PlayerPDA(testProgramID, 7, player, 1)
		require.NoError(t, err)
		b, err := solana.PlayerPDA(testProgramID, 7, other, 1)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})
}

func TestBidPDA(t *testing.T) {
	a, err := solana.BidPDA(testProgramID, 7, 1)
	require.NoError(t, err)
	b, err := solana.BidPDA(testProgramID, 7, 2)
	require.NoError(t, err)
	c, err := solana.BidPDA(testProgramID, 8, 1)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)

	// 推導出的地址必須在曲線之外
	require.False(t, a.IsOnCurve())
}
