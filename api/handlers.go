package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	solanaAdapter "solbid/adapters/solana"
	"solbid/adapters/ws"
	"solbid/auction"
	"solbid/models"
	"solbid/reconcile"
	"solbid/store"
)

// ---- 請求與回應格式 ----

type CreateGameRequest struct {
	GameID               uint64 `json:"gameId" binding:"required"`
	InitialBidAmount     uint64 `json:"initialBidAmount" binding:"required"`
	PlayerPubkey         string `json:"playerPubkey" binding:"required"`
	Signature            string `json:"signature" binding:"required"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

type PlaceBidRequest struct {
	Amount               uint64 `json:"amount" binding:"required"`
	PlayerPubkey         string `json:"playerPubkey" binding:"required"`
	Signature            string `json:"signature" binding:"required"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

type SettlementUpdateRequest struct {
	PlayerID       uint64 `json:"playerId" binding:"required"`
	TotalBidAmount uint64 `json:"totalBidAmount"`
	RoyaltyEarned  uint64 `json:"royaltyEarned"`
	BidCount       uint64 `json:"bidCount"`
	Safe           bool   `json:"safe"`
}

type FinalizeGameRequest struct {
	Amount               uint64                    `json:"amount" binding:"required"`
	PlayerPubkey         string                    `json:"playerPubkey" binding:"required"`
	Signature            string                    `json:"signature" binding:"required"`
	LastValidBlockHeight uint64                    `json:"lastValidBlockHeight"`
	PlayerData           []SettlementUpdateRequest `json:"playerData"`
}

type BidResponse struct {
	Pda       string    `json:"pda"`
	Amount    uint64    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

type PlayerResponse struct {
	ID             uint64       `json:"id"`
	PlayerPubkey   string       `json:"playerPubkey"`
	Pda            string       `json:"pda"`
	TotalBidAmount uint64       `json:"totalBidAmount"`
	BidCount       uint64       `json:"bidCount"`
	RoyaltyEarned  uint64       `json:"royaltyEarned"`
	Safe           bool         `json:"safe"`
	Role           string       `json:"role"`
	UserName       string       `json:"userName"`
	UserImageUrl   *string      `json:"userImageUrl,omitempty"`
	Bid            *BidResponse `json:"bid,omitempty"`
}

type GameResponse struct {
	GameID           uint64           `json:"gameId"`
	Pda              string           `json:"pda"`
	InitialBidAmount uint64           `json:"initialBidAmount"`
	HighestBid       uint64           `json:"highestBid"`
	LastBidTime      time.Time        `json:"lastBidTime"`
	TotalBids        uint64           `json:"totalBids"`
	LastBidderPda    string           `json:"lastBidderPda"`
	PrizePool        uint64           `json:"prizePool"`
	Ended            bool             `json:"ended"`
	Players          []PlayerResponse `json:"players,omitempty"`
}

func toGameResponse(game *models.Game) GameResponse {
	players := make([]PlayerResponse, 0, len(game.Players))
	for i := range game.Players {
		p := &game.Players[i]
		resp := PlayerResponse{
			ID:             p.ID,
			PlayerPubkey:   p.PlayerPubkey,
			Pda:            p.Pda,
			TotalBidAmount: p.TotalBidAmount,
			BidCount:       p.BidCount,
			RoyaltyEarned:  p.RoyaltyEarned,
			Safe:           p.Safe,
			Role:           string(p.Role),
		}
		if p.User != nil {
			resp.UserName = p.User.Name
			resp.UserImageUrl = p.User.ImageUrl
		}
		if p.Bid != nil {
			resp.Bid = &BidResponse{Pda: p.Bid.Pda, Amount: p.Bid.Amount, Timestamp: p.Bid.Timestamp}
		}
		players = append(players, resp)
	}
	return GameResponse{
		GameID:           game.GameID,
		Pda:              game.Pda,
		InitialBidAmount: game.InitialBidAmount,
		HighestBid:       game.HighestBid,
		LastBidTime:      game.LastBidTime,
		TotalBids:        game.TotalBids,
		LastBidderPda:    game.LastBidderPda,
		PrizePool:        game.PrizePool,
		Ended:            game.Ended,
		Players:          players,
	}
}

// respondError 把錯誤分類對應到狀態碼
func respondError(c *gin.Context, err error) {
	var validationErr *auction.ValidationError
	var settlementErr *auction.SettlementError
	var confirmErr *solanaAdapter.ConfirmationError
	var decodeErr *solanaAdapter.DecodeError
	var persistErr *store.PersistenceError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"message": validationErr.Error()})
	case errors.Is(err, auction.ErrGameNotFound) || errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "game not found"})
	case errors.Is(err, auction.ErrGameEnded):
		c.JSON(http.StatusConflict, gin.H{"message": "game has already ended"})
	case errors.As(err, &confirmErr):
		c.JSON(http.StatusBadGateway, gin.H{"message": confirmErr.Error()})
	case errors.As(err, &decodeErr):
		c.JSON(http.StatusBadGateway, gin.H{"message": decodeErr.Error()})
	case errors.As(err, &settlementErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": settlementErr.Error()})
	case errors.As(err, &persistErr):
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to persist, reconciliation scheduled"})
	default:
		slog.Error("unhandled error", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
	}
}

func parseGameID(c *gin.Context) (uint64, bool) {
	gameID, err := strconv.ParseUint(c.Param("gameID"), 10, 64)
	if err != nil || gameID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid game id"})
		return 0, false
	}
	return gameID, true
}

// ---- HTTP handlers ----

// CreateGame 把一場剛在鏈上建立的遊戲入帳
func (impl *ServerImpl) CreateGame(c *gin.Context) {
	var req CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	claims := currentClaims(c)

	summary, err := impl.coordinator.CreateGame(c.Request.Context(), reconcile.CreateGameInput{
		GameID:               req.GameID,
		InitialBidAmount:     req.InitialBidAmount,
		PlayerPubkey:         req.PlayerPubkey,
		Signature:            req.Signature,
		LastValidBlockHeight: req.LastValidBlockHeight,
		UserID:               claims.UserID,
		UserName:             claims.Username,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "game created successfully", "game": summary})
}

// PlaceBid 把一筆剛在鏈上確認的出價入帳
func (impl *ServerImpl) PlaceBid(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}
	var req PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	claims := currentClaims(c)

	summary, err := impl.coordinator.PlaceBid(c.Request.Context(), reconcile.PlaceBidInput{
		GameID:               gameID,
		Amount:               req.Amount,
		PlayerPubkey:         req.PlayerPubkey,
		Signature:            req.Signature,
		LastValidBlockHeight: req.LastValidBlockHeight,
		UserID:               claims.UserID,
		UserName:             claims.Username,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "game updated successfully", "game": summary})
}

// FinalizeGame 把一場已在鏈上結束的遊戲結算入帳
func (impl *ServerImpl) FinalizeGame(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}
	var req FinalizeGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	claims := currentClaims(c)

	updates := lo.Map(req.PlayerData, func(u SettlementUpdateRequest, _ int) auction.SettlementUpdate {
		return auction.SettlementUpdate{
			PlayerID:       u.PlayerID,
			TotalBidAmount: u.TotalBidAmount,
			RoyaltyEarned:  u.RoyaltyEarned,
			BidCount:       u.BidCount,
			Safe:           u.Safe,
		}
	})

	summary, err := impl.coordinator.Finalize(c.Request.Context(), reconcile.FinalizeInput{
		GameID:               gameID,
		Amount:               req.Amount,
		PlayerPubkey:         req.PlayerPubkey,
		Signature:            req.Signature,
		LastValidBlockHeight: req.LastValidBlockHeight,
		UserID:               claims.UserID,
		UserName:             claims.Username,
		Updates:              updates,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "game finalized successfully", "game": summary})
}

// GetGame 回傳一場遊戲和所有玩家、出價
func (impl *ServerImpl) GetGame(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}
	game, err := impl.gameStore.GetGame(c.Request.Context(), gameID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game": toGameResponse(game)})
}

// GetGamePdas 回傳組下一筆出價交易需要的地址
// 歷史玩家和出價帳戶都要附在交易裡，鏈上程式結算時逐一讀取
func (impl *ServerImpl) GetGamePdas(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}
	game, err := impl.gameStore.GetGame(c.Request.Context(), gameID)
	if err != nil {
		respondError(c, err)
		return
	}

	playersPda := make([]string, 0, len(game.Players))
	playersPubkey := make([]string, 0, len(game.Players))
	bidsPda := make([]string, 0, len(game.Players))
	for i := range game.Players {
		playersPda = append(playersPda, game.Players[i].Pda)
		playersPubkey = append(playersPubkey, game.Players[i].PlayerPubkey)
		if game.Players[i].Bid != nil {
			bidsPda = append(bidsPda, game.Players[i].Bid.Pda)
		}
	}

	nextSeq := game.TotalBids + 1
	nextBidPda, err := solanaAdapter.BidPDA(impl.programID, game.GameID, nextSeq)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"gamePda":       game.Pda,
		"nextSeq":       nextSeq,
		"nextBidPda":    nextBidPda.String(),
		"minNextBid":    auction.MinNextBid(game.HighestBid),
		"playersPda":    playersPda,
		"playersPubkey": playersPubkey,
		"bidsPda":       bidsPda,
	})
}

// ListLiveGames 回傳還沒結束的遊戲
func (impl *ServerImpl) ListLiveGames(c *gin.Context) {
	games, err := impl.gameStore.ListActiveGames(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"gameData": lo.Map(games, func(game models.Game, _ int) GameResponse {
			return toGameResponse(&game)
		}),
	})
}

// GetGameID 回傳遊戲編號計數器目前的值
func (impl *ServerImpl) GetGameID(c *gin.Context) {
	current, err := impl.gameStore.CurrentGameID(c.Request.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "game id counter not found"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currGameId": current})
}

// ---- websocket ----

// ServeWs 把連線升級成 websocket 並掛進廣播 hub
func (impl *ServerImpl) ServeWs(c *gin.Context) {
	claims := currentClaims(c)

	conn, err := impl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已經回覆過錯誤了
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := ws.NewClient(impl.hub, conn, claims.UserID, &socketCommands{impl: impl, claims: claims}, slog.Default())
	client.Start()
}

// socketCommands 把 socket 指令轉交給協調者，和 REST 路由共用同一條入帳路徑
type socketCommands struct {
	impl   *ServerImpl
	claims *Claims
}

func (s *socketCommands) CreateGame(ctx context.Context, userID uint64, req ws.CreateGameRequest) error {
	_, err := s.impl.coordinator.CreateGame(ctx, reconcile.CreateGameInput{
		GameID:               req.GameID,
		InitialBidAmount:     req.InitialBidAmount,
		PlayerPubkey:         req.PlayerPubkey,
		Signature:            req.Signature,
		LastValidBlockHeight: req.LastValidBlockHeight,
		UserID:               userID,
		UserName:             s.claims.Username,
	})
	return err
}

func (s *socketCommands) PlaceBid(ctx context.Context, userID uint64, req ws.PlaceBidRequest) error {
	_, err := s.impl.coordinator.PlaceBid(ctx, reconcile.PlaceBidInput{
		GameID:               req.GameID,
		Amount:               req.Amount,
		PlayerPubkey:         req.PlayerPubkey,
		Signature:            req.Signature,
		LastValidBlockHeight: req.LastValidBlockHeight,
		UserID:               userID,
		UserName:             s.claims.Username,
	})
	return err
}
