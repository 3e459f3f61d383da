package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	solanaAdapter "solbid/adapters/solana"
	"solbid/auction"
	"solbid/models"
	"solbid/store"
)

func recordError(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	respondError(c, err)
	return rec
}

func TestRespondError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation error", auction.NewValidationError("bid too low"), http.StatusBadRequest},
		{"game not found", auction.ErrGameNotFound, http.StatusNotFound},
		{"store not found", store.ErrNotFound, http.StatusNotFound},
		{"game ended", auction.ErrGameEnded, http.StatusConflict},
		{"confirmation error", &solanaAdapter.ConfirmationError{Signature: "sig", Err: errors.New("timeout")}, http.StatusBadGateway},
		{"decode error", &solanaAdapter.DecodeError{Account: "game", Reason: "short buffer"}, http.StatusBadGateway},
		{"settlement error", &auction.SettlementError{MissingPlayerID: 9}, http.StatusUnprocessableEntity},
		{"persistence error", &store.PersistenceError{Op: "CreateGame", Err: errors.New("down")}, http.StatusInternalServerError},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := recordError(tc.err)
			assert.Equal(t, tc.expected, rec.Code)
		})
	}

	// 包過的錯誤也要對應到同樣的狀態碼
	t.Run("wrapped sentinel", func(t *testing.T) {
		rec := recordError(fmt.Errorf("load game: %w", auction.ErrGameNotFound))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestToGameResponse(t *testing.T) {
	imageUrl := "https://example.com/alice.png"
	now := time.Now().UTC().Truncate(time.Second)
	game := &models.Game{
		GameID:           12,
		Pda:              "GamePda",
		InitialBidAmount: 100,
		HighestBid:       400,
		LastBidTime:      now,
		TotalBids:        3,
		LastBidderPda:    "PlayerPda2",
		PrizePool:        700,
		Ended:            true,
		Players: []models.Player{
			{
				Pda:            "PlayerPda1",
				PlayerPubkey:   "Pubkey1",
				TotalBidAmount: 100,
				BidCount:       1,
				Role:           models.RoleBidder,
				User:           &models.User{Name: "alice", ImageUrl: &imageUrl},
				Bid:            &models.Bid{Pda: "BidPda1", Amount: 100, Timestamp: now},
			},
			{
				Pda:            "PlayerPda2",
				PlayerPubkey:   "Pubkey2",
				TotalBidAmount: 600,
				BidCount:       2,
				Safe:           true,
				Role:           models.RoleWinner,
			},
		},
	}

	resp := toGameResponse(game)

	assert.Equal(t, uint64(12), resp.GameID)
	assert.True(t, resp.Ended)
	assert.Len(t, resp.Players, 2)

	assert.Equal(t, "alice", resp.Players[0].UserName)
	assert.Equal(t, &imageUrl, resp.Players[0].UserImageUrl)
	assert.Equal(t, "BidPda1", resp.Players[0].Bid.Pda)
	assert.Equal(t, string(models.RoleBidder), resp.Players[0].Role)

	// 沒有關聯資料的玩家不應該觸發 nil 解參考
	assert.Empty(t, resp.Players[1].UserName)
	assert.Nil(t, resp.Players[1].UserImageUrl)
	assert.Nil(t, resp.Players[1].Bid)
	assert.Equal(t, string(models.RoleWinner), resp.Players[1].Role)
}
