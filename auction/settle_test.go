package auction_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solbid/auction"
	"solbid/models"
)

func playersForGame(game *models.Game, n int) []models.Player {
	players := make([]models.Player, n)
	for i := range players {
		players[i] = models.Player{
			ID:       uint64(i + 1),
			GameID:   game.ID,
			BidCount: uint64(i + 1),
			Role:     models.RoleBidder,
		}
	}
	players[0].Role = models.RoleCreator
	return players
}

func TestFinalize_UnknownPlayerLeavesGameUntouched(t *testing.T) {
	game := &models.Game{ID: 1, TotalBids: 2, PrizePool: 30}
	players := playersForGame(game, 2)

	s := auction.Settlement{
		Updates: []auction.SettlementUpdate{
			{PlayerID: 1}, {PlayerID: 2}, {PlayerID: 3},
		},
		Closer: auction.BidInput{Amount: 100, Time: time.Unix(1700000100, 0)},
	}
	_, _, _, err := auction.Finalize(game, players, s)

	var sErr *auction.SettlementError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, uint64(3), sErr.MissingPlayerID)
	assert.False(t, game.Ended)
	assert.Equal(t, uint64(30), game.PrizePool)
}

func TestFinalize_EmptyBatchFails(t *testing.T) {
	game := &models.Game{ID: 1, TotalBids: 2}
	players := playersForGame(game, 2)

	_, _, _, err := auction.Finalize(game, players, auction.Settlement{})
	var sErr *auction.SettlementError
	require.ErrorAs(t, err, &sErr)
	assert.False(t, game.Ended)
}

func TestFinalize_EndsGameAndAssignsRoles(t *testing.T) {
	game := &models.Game{ID: 1, TotalBids: 3, PrizePool: 70}
	players := playersForGame(game, 3)

	closedAt := time.Unix(1700000500, 0)
	s := auction.Settlement{
		Updates: []auction.SettlementUpdate{
			{PlayerID: 1, TotalBidAmount: 10, RoyaltyEarned: 5, BidCount: 1, Safe: true},
			{PlayerID: 2, TotalBidAmount: 20, BidCount: 2},
			{PlayerID: 3, TotalBidAmount: 40, BidCount: 3},
		},
		Closer: auction.BidInput{
			Amount:       160,
			PlayerPubkey: "closer",
			PlayerPda:    "closer-player-pda",
			BidPda:       "closer-bid-pda",
			UserID:       9,
			Time:         closedAt,
		},
	}
	updated, finisher, finisherBid, err := auction.Finalize(game, players, s)
	require.NoError(t, err)

	assert.True(t, game.Ended)
	// 遲到的結尾出價不進獎金池
	assert.Equal(t, uint64(70), game.PrizePool)
	assert.Equal(t, uint64(3), game.TotalBids)

	// 記帳欄位一次性覆寫
	assert.True(t, updated[0].Safe)
	assert.Equal(t, uint64(5), updated[0].RoyaltyEarned)
	// 結束前最後一位出價者是 WINNER
	assert.Equal(t, models.RoleWinner, updated[2].Role)

	require.NotNil(t, finisher)
	assert.Equal(t, models.RoleFinisher, finisher.Role)
	assert.Equal(t, uint64(4), finisher.BidCount)
	assert.Equal(t, uint64(160), finisherBid.Amount)
	assert.Equal(t, closedAt, finisherBid.Timestamp)
}

func TestFinalize_IsIdempotentOnRoles(t *testing.T) {
	// 二次結算同一場遊戲時，WINNER 不會被改回其他身分
	game := &models.Game{ID: 1, TotalBids: 2}
	players := playersForGame(game, 2)
	s := auction.Settlement{
		Updates: []auction.SettlementUpdate{{PlayerID: 1, BidCount: 1}, {PlayerID: 2, BidCount: 2}},
		Closer:  auction.BidInput{Amount: 80, Time: time.Unix(1700000900, 0)},
	}
	updated, _, _, err := auction.Finalize(game, players, s)
	require.NoError(t, err)
	assert.Equal(t, models.RoleWinner, updated[1].Role)

	updated, _, _, err = auction.Finalize(game, updated, s)
	require.NoError(t, err)
	assert.Equal(t, models.RoleWinner, updated[1].Role)
	assert.True(t, game.Ended)
}
