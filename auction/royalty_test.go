package auction_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solbid/auction"
)

func TestRoyaltyShares_TooFewBidsHaveNoRoyalty(t *testing.T) {
	amounts := []uint64{10, 20, 40, 80, 160}
	assert.Zero(t, auction.RoyaltyPot(amounts))
	assert.Nil(t, auction.RoyaltyShares(amounts, 100))
}

func TestRoyaltyShares_DistributesAtMostPot(t *testing.T) {
	// 八筆出價：前三位是安全玩家，royalty 池是倒數第四筆的金額
	amounts := []uint64{10, 20, 40, 80, 160, 320, 640, 1280}
	pot := auction.RoyaltyPot(amounts)
	assert.Equal(t, uint64(160), pot)

	shares := auction.RoyaltyShares(amounts, pot)
	require.Len(t, shares, 3)

	var sum uint64
	for _, s := range shares {
		sum += s
	}
	assert.LessOrEqual(t, sum, pot)
}

func TestRoyaltyShares_ZeroPot(t *testing.T) {
	amounts := []uint64{10, 20, 40, 80, 160, 320}
	assert.Nil(t, auction.RoyaltyShares(amounts, 0))
}

func TestPlatformFee(t *testing.T) {
	// 六筆出價：手續費取最後五筆總和的一成
	amounts := []uint64{10, 20, 40, 80, 160, 320}
	assert.Equal(t, uint64(62), auction.PlatformFee(amounts, 10))

	// 不足五筆時取全部
	assert.Equal(t, uint64(3), auction.PlatformFee([]uint64{10, 20}, 10))
}
