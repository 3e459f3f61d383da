package api

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	solanaAdapter "solbid/adapters/solana"
	"solbid/auction"
	"solbid/models"
	"solbid/store"
)

const (
	actionCreateGame = "create-game"
	actionPlaceBid   = "place-bid"
)

type PrepareTransactionRequest struct {
	Action       string `json:"action" binding:"required,oneof=create-game place-bid"`
	GameID       uint64 `json:"gameId" binding:"required"`
	Amount       uint64 `json:"amount" binding:"required"`
	PlayerPubkey string `json:"playerPubkey" binding:"required"`
}

type PrepareTransactionResponse struct {
	Transaction          string `json:"transaction"`
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	GamePda              string `json:"gamePda"`
	PlayerPda            string `json:"playerPda"`
	BidPda               string `json:"bidPda"`
	EstimatedFee         uint64 `json:"estimatedFee"`
}

type SubmitTransactionRequest struct {
	Transaction string `json:"transaction" binding:"required"`
}

// PrepareTransaction 組一筆未簽名的交易給客戶端簽
// 出價交易要帶上所有歷史玩家和出價帳戶，這份清單只有鏡像知道全貌
func (impl *ServerImpl) PrepareTransaction(c *gin.Context) {
	var req PrepareTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	payer, err := solana.PublicKeyFromBase58(req.PlayerPubkey)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid player pubkey"})
		return
	}

	var built *solanaAdapter.BuiltTransaction
	switch req.Action {
	case actionCreateGame:
		// 同一個遊戲編號不能開第二場
		if _, err := impl.gameStore.GetGame(c.Request.Context(), req.GameID); err == nil {
			c.JSON(http.StatusConflict, gin.H{"message": "game already exists"})
			return
		} else if !isNotFound(err) {
			respondError(c, err)
			return
		}
		built, err = impl.gateway.BuildCreateGame(c.Request.Context(), payer, req.GameID, req.Amount)
	case actionPlaceBid:
		game, getErr := impl.gameStore.GetGame(c.Request.Context(), req.GameID)
		if getErr != nil {
			respondError(c, getErr)
			return
		}
		if game.Ended {
			respondError(c, auction.ErrGameEnded)
			return
		}
		if validateErr := auction.ValidateProposedBid(game, req.Amount); validateErr != nil {
			respondError(c, validateErr)
			return
		}
		extra := make([]solana.PublicKey, 0, 3*len(game.Players))
		for i := range game.Players {
			keys, keysErr := playerAccountKeys(&game.Players[i])
			if keysErr != nil {
				respondError(c, keysErr)
				return
			}
			extra = append(extra, keys...)
		}
		built, err = impl.gateway.BuildPlaceBid(c.Request.Context(), payer, req.GameID, req.Amount, game.TotalBids+1, extra)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	// 手續費只是給客戶端的參考值，估不到不擋流程
	fee, feeErr := impl.gateway.EstimateFee(c.Request.Context(), built.Transaction)
	if feeErr != nil {
		slog.Warn("fee estimation failed", slog.Any("error", feeErr))
	}

	raw, err := built.Transaction.MarshalBinary()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, PrepareTransactionResponse{
		Transaction:          base64.StdEncoding.EncodeToString(raw),
		Blockhash:            built.Blockhash.Blockhash.String(),
		LastValidBlockHeight: built.Blockhash.LastValidBlockHeight,
		GamePda:              built.GamePda.String(),
		PlayerPda:            built.PlayerPda.String(),
		BidPda:               built.BidPda.String(),
		EstimatedFee:         fee,
	})
}

// SubmitTransaction 轉送一筆已簽名的交易到帳本
// 只負責送出，確認和入帳仍然走 create/bid/finalize 路徑
func (impl *ServerImpl) SubmitTransaction(c *gin.Context) {
	var req SubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	tx, err := solana.TransactionFromBase64(req.Transaction)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid transaction encoding"})
		return
	}
	sig, err := impl.gateway.Submit(c.Request.Context(), tx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"message": "failed to submit transaction"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": sig.String()})
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, auction.ErrGameNotFound)
}

// playerAccountKeys 解析一位玩家在出價交易上要帶的帳戶地址
func playerAccountKeys(player *models.Player) ([]solana.PublicKey, error) {
	pda, err := solana.PublicKeyFromBase58(player.Pda)
	if err != nil {
		return nil, auction.NewValidationError("stored player pda %q is not a valid address", player.Pda)
	}
	pubkey, err := solana.PublicKeyFromBase58(player.PlayerPubkey)
	if err != nil {
		return nil, auction.NewValidationError("stored player pubkey %q is not a valid address", player.PlayerPubkey)
	}
	keys := []solana.PublicKey{pda, pubkey}
	if player.Bid != nil {
		bidPda, err := solana.PublicKeyFromBase58(player.Bid.Pda)
		if err != nil {
			return nil, auction.NewValidationError("stored bid pda %q is not a valid address", player.Bid.Pda)
		}
		keys = append(keys, bidPda)
	}
	return keys, nil
}
