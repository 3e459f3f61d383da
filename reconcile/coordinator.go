package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	redisAdapter "solbid/adapters/redis"
	solanaAdapter "solbid/adapters/solana"
	"solbid/adapters/ws"
	"solbid/auction"
	"solbid/models"
	"solbid/store"
)

// CoordinatorConfig 是協調者的設定
type CoordinatorConfig struct {
	ProgramID      solana.PublicKey
	ClaimTTL       time.Duration
	PersistRetries int
	RetryDelay     time.Duration
}

// Coordinator 把已確認的帳本交易套用到鏡像資料庫並廣播結果
//
// 每個請求走同一條路徑：確認交易、讀取鏈上帳戶、認領簽章、
// 取得該場遊戲的單一寫入者鎖、套用狀態機、單一交易落庫、發佈事件。
// 帳本確認絕不重試；落庫失敗會進重試流，帳本上的錢已經動了。
type Coordinator struct {
	gateway  solanaAdapter.IGateway
	store    store.IGameStore
	registry redisAdapter.ISignatureRegistry
	events   redisAdapter.IProducer[ws.GameEvent]
	retry    redisAdapter.IProducer[PersistRequest]
	newLock  func(gameID uint64) redisAdapter.IAutoRenewMutex
	logger   *slog.Logger
	config   CoordinatorConfig
}

// NewCoordinator 建立一個新的協調者
func NewCoordinator(
	gateway solanaAdapter.IGateway,
	gameStore store.IGameStore,
	registry redisAdapter.ISignatureRegistry,
	events redisAdapter.IProducer[ws.GameEvent],
	retry redisAdapter.IProducer[PersistRequest],
	newLock func(gameID uint64) redisAdapter.IAutoRenewMutex,
	logger *slog.Logger,
	config CoordinatorConfig,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ClaimTTL <= 0 {
		config.ClaimTTL = 24 * time.Hour
	}
	if config.PersistRetries <= 0 {
		config.PersistRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 200 * time.Millisecond
	}
	return &Coordinator{
		gateway:  gateway,
		store:    gameStore,
		registry: registry,
		events:   events,
		retry:    retry,
		newLock:  newLock,
		logger:   logger.With(slog.String("caller", "Coordinator")),
		config:   config,
	}
}

// CreateGame 把一場已在鏈上建立的遊戲入帳
func (c *Coordinator) CreateGame(ctx context.Context, in CreateGameInput) (*ws.GameSummary, error) {
	const op = "Coordinator.CreateGame"

	sig, err := solana.SignatureFromBase58(in.Signature)
	if err != nil {
		return nil, auction.NewValidationError("invalid transaction signature: %v", err)
	}
	if _, err := solana.PublicKeyFromBase58(in.PlayerPubkey); err != nil {
		return nil, auction.NewValidationError("invalid player pubkey: %v", err)
	}

	gamePda, err := solanaAdapter.GamePDA(c.config.ProgramID, in.GameID)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	state, err := c.confirmAndRead(ctx, sig, in.LastValidBlockHeight, gamePda)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	if state.GameID != in.GameID {
		return nil, auction.NewValidationError("ledger account carries game %d, request says %d", state.GameID, in.GameID)
	}

	claimed, err := c.registry.Claim(ctx, in.Signature, c.config.ClaimTTL)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	if !claimed {
		// 重複提交，回傳既有狀態就好
		c.logger.Info("duplicate transaction ignored", slog.String("signature", in.Signature))
		return c.currentSummary(ctx, in.GameID)
	}
	claimKept := false
	defer func() {
		if !claimKept {
			c.releaseClaim(ctx, in.Signature)
		}
	}()

	mutex := c.newLock(in.GameID)
	lockCtx, err := mutex.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	defer mutex.Unlock()

	if err := c.store.EnsureUser(lockCtx, &models.User{ID: in.UserID, Name: in.UserName}); err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	playerPda, bidPda, err := c.derivePair(in.GameID, in.PlayerPubkey, 1)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	game := &models.Game{
		GameID:             in.GameID,
		Pda:                gamePda.String(),
		InitialBidAmount:   in.InitialBidAmount,
		PlatformFeePercent: state.PlatformFeePercent,
	}
	creator, bid, err := auction.ApplyBid(game, auction.BidInput{
		Amount:       in.InitialBidAmount,
		PlayerPubkey: in.PlayerPubkey,
		PlayerPda:    playerPda.String(),
		BidPda:       bidPda.String(),
		UserID:       in.UserID,
		Time:         state.LastBidAt(),
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	c.checkLedgerDrift(game, state)

	req := PersistRequest{Kind: PersistCreate, Signature: in.Signature, Game: *game, Player: *creator, Bid: *bid}
	claimKept, err = c.persist(lockCtx, req, func() error {
		return c.store.CreateGame(lockCtx, game, creator, bid)
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	summary := summarize(game, []models.Player{*creator}, map[uint64]string{in.UserID: in.UserName})
	c.publish(ws.TypeNewGame, summary)
	return &summary, nil
}

// PlaceBid 把一筆已在鏈上確認的出價入帳
// 鏈上判定遊戲結束的出價會改走結算路徑
func (c *Coordinator) PlaceBid(ctx context.Context, in PlaceBidInput) (*ws.GameSummary, error) {
	const op = "Coordinator.PlaceBid"

	sig, err := solana.SignatureFromBase58(in.Signature)
	if err != nil {
		return nil, auction.NewValidationError("invalid transaction signature: %v", err)
	}
	if _, err := solana.PublicKeyFromBase58(in.PlayerPubkey); err != nil {
		return nil, auction.NewValidationError("invalid player pubkey: %v", err)
	}

	gamePda, err := solanaAdapter.GamePDA(c.config.ProgramID, in.GameID)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	state, err := c.confirmAndRead(ctx, sig, in.LastValidBlockHeight, gamePda)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	claimed, err := c.registry.Claim(ctx, in.Signature, c.config.ClaimTTL)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	if !claimed {
		c.logger.Info("duplicate transaction ignored", slog.String("signature", in.Signature))
		return c.currentSummary(ctx, in.GameID)
	}
	claimKept := false
	defer func() {
		if !claimKept {
			c.releaseClaim(ctx, in.Signature)
		}
	}()

	mutex := c.newLock(in.GameID)
	lockCtx, err := mutex.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	defer mutex.Unlock()

	stored, err := c.store.GetGame(lockCtx, in.GameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, auction.ErrGameNotFound
		}
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	if err := c.store.EnsureUser(lockCtx, &models.User{ID: in.UserID, Name: in.UserName}); err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	// 鏈上程式已經判定這筆出價結束了遊戲，改走結算路徑
	if state.Ended || stored.Ended {
		summary, kept, err := c.settle(lockCtx, in.Signature, stored, state, settleCloser{
			Amount:       in.Amount,
			PlayerPubkey: in.PlayerPubkey,
			UserID:       in.UserID,
			UserName:     in.UserName,
		})
		claimKept = kept
		if err != nil {
			return nil, err
		}
		return summary, nil
	}

	// 帳本狀態是確認後讀回的，各欄位已經含這筆出價。鏡像落後時
	// （例如前一筆還在重試流裡）先補到帳本的前一筆再套用，否則衍生
	// 出來的序號和 PDA 會跟補寫中的那筆相撞
	if state.TotalBids > stored.TotalBids+1 {
		c.logger.Warn("mirror lags ledger, deriving bid sequence from ledger",
			slog.Uint64("gameId", in.GameID),
			slog.Uint64("mirrorTotalBids", stored.TotalBids),
			slog.Uint64("ledgerTotalBids", state.TotalBids))
		stored.TotalBids = state.TotalBids - 1
		if state.PrizePool >= in.Amount {
			stored.PrizePool = state.PrizePool - in.Amount
		}
	}

	seq := stored.TotalBids + 1
	playerPda, bidPda, err := c.derivePair(in.GameID, in.PlayerPubkey, seq)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	player, bid, err := auction.ApplyBid(stored, auction.BidInput{
		Amount:       in.Amount,
		PlayerPubkey: in.PlayerPubkey,
		PlayerPda:    playerPda.String(),
		BidPda:       bidPda.String(),
		UserID:       in.UserID,
		Time:         state.LastBidAt(),
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	c.checkLedgerDrift(stored, state)

	req := PersistRequest{Kind: PersistAppend, Signature: in.Signature, Game: *stored, Player: *player, Bid: *bid}
	claimKept, err = c.persist(lockCtx, req, func() error {
		return c.store.AppendBid(lockCtx, stored, player, bid)
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	players := append(stored.Players, *player)
	summary := summarize(stored, players, map[uint64]string{in.UserID: in.UserName})
	c.publish(ws.TypeGameUpdate, summary)
	return &summary, nil
}

// Finalize 把一場已在鏈上結束的遊戲入帳
// 和 PlaceBid 的結算分支走同一條路，差別是呼叫端明確要求結算
func (c *Coordinator) Finalize(ctx context.Context, in FinalizeInput) (*ws.GameSummary, error) {
	const op = "Coordinator.Finalize"

	sig, err := solana.SignatureFromBase58(in.Signature)
	if err != nil {
		return nil, auction.NewValidationError("invalid transaction signature: %v", err)
	}
	if _, err := solana.PublicKeyFromBase58(in.PlayerPubkey); err != nil {
		return nil, auction.NewValidationError("invalid player pubkey: %v", err)
	}

	gamePda, err := solanaAdapter.GamePDA(c.config.ProgramID, in.GameID)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	state, err := c.confirmAndRead(ctx, sig, in.LastValidBlockHeight, gamePda)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	if !state.Ended {
		return nil, auction.NewValidationError("game %d is not ended on the ledger", in.GameID)
	}

	claimed, err := c.registry.Claim(ctx, in.Signature, c.config.ClaimTTL)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	if !claimed {
		c.logger.Info("duplicate transaction ignored", slog.String("signature", in.Signature))
		return c.currentSummary(ctx, in.GameID)
	}
	claimKept := false
	defer func() {
		if !claimKept {
			c.releaseClaim(ctx, in.Signature)
		}
	}()

	mutex := c.newLock(in.GameID)
	lockCtx, err := mutex.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	defer mutex.Unlock()

	stored, err := c.store.GetGame(lockCtx, in.GameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, auction.ErrGameNotFound
		}
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	if err := c.store.EnsureUser(lockCtx, &models.User{ID: in.UserID, Name: in.UserName}); err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	summary, kept, err := c.settle(lockCtx, in.Signature, stored, state, settleCloser{
		Amount:       in.Amount,
		PlayerPubkey: in.PlayerPubkey,
		UserID:       in.UserID,
		UserName:     in.UserName,
		Updates:      in.Updates,
	})
	claimKept = kept
	if err != nil {
		return nil, err
	}
	return summary, nil
}

type settleCloser struct {
	Amount       uint64
	PlayerPubkey string
	UserID       uint64
	UserName     string
	Updates      []auction.SettlementUpdate
}

// settle 從鏈上玩家帳戶讀回結算後的記帳，套用到鏡像並廣播
// 結束的出價不動獎金池，追加的 FINISHER 只留下紀錄
// 回傳的 bool 表示簽章認領是否要保留，由呼叫端決定是否釋放
func (c *Coordinator) settle(ctx context.Context, signature string, stored *models.Game, state solanaAdapter.GameState, closer settleCloser) (*ws.GameSummary, bool, error) {
	const op = "Coordinator.settle"

	closerSeq := state.TotalBids
	if closerSeq <= stored.TotalBids {
		closerSeq = stored.TotalBids + 1
	}

	// 勝者是結束前的最後一位出價者，序號以帳本為準；
	// 鏡像落後時不能把更早的出價者誤判成勝者
	if pre := closerSeq - 1; stored.TotalBids < pre {
		c.logger.Warn("mirror lags ledger at settlement, adopting ledger values",
			slog.Uint64("gameId", stored.GameID),
			slog.Uint64("mirrorTotalBids", stored.TotalBids),
			slog.Uint64("ledgerTotalBids", state.TotalBids))
		stored.TotalBids = pre
		stored.HighestBid = state.HighestBid
		stored.PrizePool = state.PrizePool
	}

	updates := closer.Updates
	if len(updates) == 0 {
		// 先按鏈上同一套算式在本地預估結算，玩家帳戶讀得到時再以帳戶為準
		amounts := make([]uint64, 0, len(stored.Players))
		for i := range stored.Players {
			amount := stored.Players[i].TotalBidAmount
			if stored.Players[i].Bid != nil {
				amount = stored.Players[i].Bid.Amount
			}
			amounts = append(amounts, amount)
		}
		shares := auction.RoyaltyShares(amounts, auction.RoyaltyPot(amounts))

		updates = make([]auction.SettlementUpdate, 0, len(stored.Players))
		for i := range stored.Players {
			p := &stored.Players[i]
			update := auction.SettlementUpdate{
				PlayerID:       p.ID,
				TotalBidAmount: p.TotalBidAmount,
				RoyaltyEarned:  p.RoyaltyEarned,
				BidCount:       p.BidCount,
				Safe:           auction.SafeAt(p.BidCount, state.TotalBids),
			}
			if i < len(shares) && shares[i] > 0 {
				update.RoyaltyEarned = shares[i]
			}
			if ps, ok := c.readPlayerState(ctx, p.Pda); ok {
				update.TotalBidAmount = ps.TotalBidAmount
				update.RoyaltyEarned = ps.RoyaltyEarned
				update.BidCount = ps.BidCount
				update.Safe = ps.Safe
			}
			updates = append(updates, update)
		}
	}

	playerPda, bidPda, err := c.derivePair(stored.GameID, closer.PlayerPubkey, closerSeq)
	if err != nil {
		return nil, false, fmt.Errorf("[%s] err=%w", op, err)
	}

	players, finisher, finisherBid, err := auction.Finalize(stored, stored.Players, auction.Settlement{
		Updates: updates,
		Closer: auction.BidInput{
			Amount:       closer.Amount,
			PlayerPubkey: closer.PlayerPubkey,
			PlayerPda:    playerPda.String(),
			BidPda:       bidPda.String(),
			UserID:       closer.UserID,
			Time:         state.LastBidAt(),
		},
		CloserAt: closerSeq,
	})
	if err != nil {
		return nil, false, fmt.Errorf("[%s] err=%w", op, err)
	}

	req := PersistRequest{Kind: PersistFinalize, Signature: signature, Game: *stored, Players: players, Player: *finisher, Bid: *finisherBid}
	kept, err := c.persist(ctx, req, func() error {
		return c.store.FinalizeGame(ctx, stored, players, finisher, finisherBid)
	})
	if err != nil {
		return nil, kept, fmt.Errorf("[%s] err=%w", op, err)
	}

	summary := summarize(stored, append(players, *finisher), map[uint64]string{closer.UserID: closer.UserName})
	c.publish(ws.TypeGameUpdate, summary)
	return &summary, true, nil
}

// confirmAndRead 確認交易並讀回鏈上的 Game account
func (c *Coordinator) confirmAndRead(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64, gamePda solana.PublicKey) (solanaAdapter.GameState, error) {
	err := c.gateway.Confirm(ctx, sig, solanaAdapter.BlockhashContext{LastValidBlockHeight: lastValidBlockHeight})
	if err != nil {
		return solanaAdapter.GameState{}, err
	}

	data, found, err := c.gateway.ReadAccount(ctx, gamePda)
	if err != nil {
		return solanaAdapter.GameState{}, err
	}
	if !found {
		return solanaAdapter.GameState{}, auction.ErrGameNotFound
	}
	return solanaAdapter.DecodeGameState(data)
}

func (c *Coordinator) readPlayerState(ctx context.Context, pda string) (solanaAdapter.PlayerState, bool) {
	key, err := solana.PublicKeyFromBase58(pda)
	if err != nil {
		return solanaAdapter.PlayerState{}, false
	}
	data, found, err := c.gateway.ReadAccount(ctx, key)
	if err != nil || !found {
		return solanaAdapter.PlayerState{}, false
	}
	state, err := solanaAdapter.DecodePlayerState(data)
	if err != nil {
		c.logger.Warn("undecodable player account", slog.String("pda", pda), slog.Any("error", err))
		return solanaAdapter.PlayerState{}, false
	}
	return state, true
}

func (c *Coordinator) derivePair(gameID uint64, playerPubkey string, seq uint64) (solana.PublicKey, solana.PublicKey, error) {
	player, err := solana.PublicKeyFromBase58(playerPubkey)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	playerPda, err := solanaAdapter.PlayerPDA(c.config.ProgramID, gameID, player, seq)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	bidPda, err := solanaAdapter.BidPDA(c.config.ProgramID, gameID, seq)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	return playerPda, bidPda, nil
}

// checkLedgerDrift 比對鏡像和鏈上帳戶，不一致時以鏈上為準
func (c *Coordinator) checkLedgerDrift(game *models.Game, state solanaAdapter.GameState) {
	if game.TotalBids == state.TotalBids && game.HighestBid == state.HighestBid && game.PrizePool == state.PrizePool {
		return
	}
	c.logger.Warn("mirror drifted from ledger, adopting ledger values",
		slog.Uint64("gameId", game.GameID),
		slog.Uint64("mirrorTotalBids", game.TotalBids),
		slog.Uint64("ledgerTotalBids", state.TotalBids))
	game.TotalBids = state.TotalBids
	game.HighestBid = state.HighestBid
	game.PrizePool = state.PrizePool
}

// persist 以有限次數重試落庫，回傳的 bool 表示簽章認領是否要保留
// 重試耗盡後發進重試流交給背景 worker，這時簽章保持認領狀態避免重複入帳；
// 沒寫成也沒進重試流的，交回呼叫端釋放簽章讓整筆請求可以重送
func (c *Coordinator) persist(ctx context.Context, req PersistRequest, do func() error) (bool, error) {
	var err error
	for attempt := 0; attempt <= c.config.PersistRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
		err = do()
		if err == nil {
			return true, nil
		}
		if errors.Is(err, store.ErrDuplicate) {
			// 這筆交易已經入帳過了
			c.logger.Info("record already persisted", slog.String("signature", req.Signature))
			return true, nil
		}
		var persistErr *store.PersistenceError
		if !errors.As(err, &persistErr) {
			return false, err
		}
		c.logger.Warn("persist attempt failed",
			slog.Int("attempt", attempt+1),
			slog.String("signature", req.Signature),
			slog.Any("error", err))
	}

	if pubErr := c.retry.Publish(req); pubErr != nil {
		// 連重試流都進不去，只能放掉認領讓整筆請求重來
		return false, errors.Join(err, pubErr)
	}
	c.logger.Error("persist escalated to retry stream", slog.String("signature", req.Signature))
	return true, err
}

// releaseClaim 放掉一筆沒入帳也沒進重試流的簽章認領
// 不放掉的話，這筆已確認的交易要等認領的 TTL 過期才能重送
func (c *Coordinator) releaseClaim(ctx context.Context, signature string) {
	if err := c.registry.Release(context.WithoutCancel(ctx), signature); err != nil {
		c.logger.Error("failed to release signature claim",
			slog.String("signature", signature), slog.Any("error", err))
	}
}

func (c *Coordinator) currentSummary(ctx context.Context, gameID uint64) (*ws.GameSummary, error) {
	game, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, auction.ErrGameNotFound
		}
		return nil, err
	}
	summary := summarize(game, game.Players, nil)
	return &summary, nil
}

func (c *Coordinator) publish(kind string, summary ws.GameSummary) {
	if err := c.events.Publish(ws.GameEvent{Kind: kind, Game: summary}); err != nil {
		// 廣播失敗不影響已完成的入帳
		c.logger.Error("failed to publish game event", slog.Any("error", err))
	}
}

// summarize 組出廣播用的遊戲狀態，names 補上還沒進資料庫關聯的使用者名稱
func summarize(game *models.Game, players []models.Player, names map[uint64]string) ws.GameSummary {
	summaries := make([]ws.PlayerSummary, 0, len(players))
	for i := range players {
		p := &players[i]
		name := names[p.UserID]
		if p.User != nil {
			name = p.User.Name
		}
		summaries = append(summaries, ws.PlayerSummary{
			Pda:            p.Pda,
			PlayerPubkey:   p.PlayerPubkey,
			UserName:       name,
			TotalBidAmount: p.TotalBidAmount,
			BidCount:       p.BidCount,
			RoyaltyEarned:  p.RoyaltyEarned,
			Safe:           p.Safe,
			Role:           string(p.Role),
		})
	}
	return ws.GameSummary{
		GameID:           game.GameID,
		Pda:              game.Pda,
		InitialBidAmount: game.InitialBidAmount,
		HighestBid:       game.HighestBid,
		LastBidTime:      game.LastBidTime,
		TotalBids:        game.TotalBids,
		LastBidderPda:    game.LastBidderPda,
		PrizePool:        game.PrizePool,
		Ended:            game.Ended,
		Players:          summaries,
	}
}
