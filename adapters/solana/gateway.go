package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ConfirmationError 表示交易在帳本上確認失敗或逾時
// 資金移轉發生在外部系統，這裡絕不自動重送，只把失敗回報給呼叫端
type ConfirmationError struct {
	Signature string
	Err       error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("ledger confirmation failed for %s: %v", e.Signature, e.Err)
}

func (e *ConfirmationError) Unwrap() error {
	return e.Err
}

var (
	// ErrTransactionNotFound 表示帳本在輪詢期間始終查不到這筆交易
	ErrTransactionNotFound = errors.New("transaction not found on ledger")
	// ErrBlockhashExpired 表示交易引用的 blockhash 已經過期，不可能再被確認
	ErrBlockhashExpired = errors.New("transaction blockhash expired")
)

// BlockhashContext 是送出交易時取得的 blockhash 與其有效高度
// 確認時用來判斷交易是否已經不可能上鏈
type BlockhashContext struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// BuiltTransaction 是一筆組好但尚未簽名的交易，以及它推導出的各個帳戶地址
type BuiltTransaction struct {
	Transaction *solana.Transaction
	Blockhash   BlockhashContext
	GamePda     solana.PublicKey
	PlayerPda   solana.PublicKey
	BidPda      solana.PublicKey
}

// IGateway 定義了帳本閘道的操作介面
// 核心只透過這個介面接觸帳本，不自己組裝底層的 wire format
type IGateway interface {
	// BuildCreateGame 組出建立遊戲的交易並回傳推導出的地址
	BuildCreateGame(ctx context.Context, payer solana.PublicKey, gameID, initialBid uint64) (*BuiltTransaction, error)
	// BuildPlaceBid 組出出價交易，extra 是需要一併帶上的歷史帳戶
	BuildPlaceBid(ctx context.Context, bidder solana.PublicKey, gameID, amount, bidCount uint64, extra []solana.PublicKey) (*BuiltTransaction, error)
	// EstimateFee 估算一筆交易的手續費
	EstimateFee(ctx context.Context, tx *solana.Transaction) (uint64, error)
	// Submit 送出已簽名的交易，回傳簽章
	Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// Confirm 輪詢簽章直到確認、失敗或逾時
	Confirm(ctx context.Context, sig solana.Signature, bh BlockhashContext) error
	// ReadAccount 讀取帳戶的原始位元組，不存在時回傳 found=false
	ReadAccount(ctx context.Context, addr solana.PublicKey) (data []byte, found bool, err error)
}

// GatewayConfig 是 Gateway 的連線設定
type GatewayConfig struct {
	Endpoint        string
	ProgramID       solana.PublicKey
	PlatformAccount solana.PublicKey
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
}

// Gateway 透過 RPC 實作 IGateway
type Gateway struct {
	client *rpc.Client
	config GatewayConfig
	logger *slog.Logger
}

// NewGateway 建立一個新的帳本閘道
func NewGateway(config GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ConfirmTimeout <= 0 {
		config.ConfirmTimeout = 60 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	return &Gateway{
		client: rpc.New(config.Endpoint),
		config: config,
		logger: logger.With(slog.String("caller", "Gateway")),
	}
}

// 指令標籤，與鏈上程式的 dispatch 對應
const (
	instrCreateGame byte = 0
	instrPlaceBid   byte = 1
)

func (g *Gateway) latestBlockhash(ctx context.Context) (BlockhashContext, error) {
	out, err := g.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return BlockhashContext{}, fmt.Errorf("fail to fetch latest blockhash, err=%w", err)
	}
	return BlockhashContext{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

func (g *Gateway) BuildCreateGame(ctx context.Context, payer solana.PublicKey, gameID, initialBid uint64) (*BuiltTransaction, error) {
	const op = "Gateway.BuildCreateGame"

	gamePda, err := GamePDA(g.config.ProgramID, gameID)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	playerPda, err := PlayerPDA(g.config.ProgramID, gameID, payer, 1)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	bidPda, err := BidPDA(g.config.ProgramID, gameID, 1)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	data := make([]byte, 0, 17)
	data = append(data, instrCreateGame)
	data = append(data, leU64(gameID)...)
	data = append(data, leU64(initialBid)...)

	instruction := solana.NewInstruction(
		g.config.ProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(gamePda, true, false),
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(playerPda, true, false),
			solana.NewAccountMeta(bidPda, true, false),
		},
		data,
	)

	bh, err := g.latestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		bh.Blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] fail to build transaction, err=%w", op, err)
	}
	return &BuiltTransaction{
		Transaction: tx,
		Blockhash:   bh,
		GamePda:     gamePda,
		PlayerPda:   playerPda,
		BidPda:      bidPda,
	}, nil
}

func (g *Gateway) BuildPlaceBid(ctx context.Context, bidder solana.PublicKey, gameID, amount, bidCount uint64, extra []solana.PublicKey) (*BuiltTransaction, error) {
	const op = "Gateway.BuildPlaceBid"

	gamePda, err := GamePDA(g.config.ProgramID, gameID)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	playerPda, err := PlayerPDA(g.config.ProgramID, gameID, bidder, bidCount)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	bidPda, err := BidPDA(g.config.ProgramID, gameID, bidCount)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	data := make([]byte, 0, 17)
	data = append(data, instrPlaceBid)
	data = append(data, leU64(amount)...)
	data = append(data, leU64(bidCount)...)

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(g.config.PlatformAccount, true, false),
		solana.NewAccountMeta(gamePda, true, false),
		solana.NewAccountMeta(bidder, true, true),
		solana.NewAccountMeta(bidPda, true, false),
		solana.NewAccountMeta(playerPda, true, false),
	}
	// 結算需要逐一讀取歷史出價與玩家帳戶，所以要全部帶上
	for _, key := range extra {
		metas = append(metas, solana.NewAccountMeta(key, true, false))
	}

	bh, err := g.latestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{solana.NewInstruction(g.config.ProgramID, metas, data)},
		bh.Blockhash,
		solana.TransactionPayer(bidder),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] fail to build transaction, err=%w", op, err)
	}
	return &BuiltTransaction{
		Transaction: tx,
		Blockhash:   bh,
		GamePda:     gamePda,
		PlayerPda:   playerPda,
		BidPda:      bidPda,
	}, nil
}

func (g *Gateway) EstimateFee(ctx context.Context, tx *solana.Transaction) (uint64, error) {
	const op = "Gateway.EstimateFee"
	msgBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return 0, fmt.Errorf("[%s] fail to marshal message, err=%w", op, err)
	}
	out, err := g.client.GetFeeForMessage(ctx, base64.StdEncoding.EncodeToString(msgBytes), rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("[%s] fail to fetch fee, err=%w", op, err)
	}
	if out.Value == nil {
		return 0, fmt.Errorf("[%s] ledger returned no fee for message", op)
	}
	return *out.Value, nil
}

func (g *Gateway) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	const op = "Gateway.Submit"
	maxRetries := uint(5)
	sig, err := g.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight: true,
		MaxRetries:    &maxRetries,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("[%s] fail to submit transaction, err=%w", op, err)
	}
	g.logger.Info("transaction submitted", slog.String("signature", sig.String()))
	return sig, nil
}

// Confirm 輪詢簽章狀態直到 confirmed / finalized
// 交易失敗、blockhash 過期或逾時都回傳 ConfirmationError；不會自動重送
func (g *Gateway) Confirm(ctx context.Context, sig solana.Signature, bh BlockhashContext) error {
	const op = "Gateway.Confirm"

	ctx, cancel := context.WithTimeout(ctx, g.config.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(g.config.PollInterval)
	defer ticker.Stop()

	for {
		out, err := g.client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return &ConfirmationError{Signature: sig.String(), Err: err}
			}
			g.logger.Warn("fail to fetch signature status", slog.String("signature", sig.String()), slog.Any("error", err))
		} else if len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return &ConfirmationError{Signature: sig.String(), Err: fmt.Errorf("transaction failed: %v", status.Err)}
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				g.logger.Debug("transaction confirmed", slog.String("signature", sig.String()))
				return nil
			}
		} else if bh.LastValidBlockHeight > 0 {
			// 查不到交易時，先確認 blockhash 是否還有效
			height, heightErr := g.client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
			if heightErr == nil && height > bh.LastValidBlockHeight {
				return &ConfirmationError{Signature: sig.String(), Err: ErrBlockhashExpired}
			}
		}

		select {
		case <-ctx.Done():
			return &ConfirmationError{Signature: sig.String(), Err: fmt.Errorf("%w: %v", ErrTransactionNotFound, ctx.Err())}
		case <-ticker.C:
		}
	}
}

func (g *Gateway) ReadAccount(ctx context.Context, addr solana.PublicKey) ([]byte, bool, error) {
	const op = "Gateway.ReadAccount"
	out, err := g.client.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("[%s] fail to read account %s, err=%w", op, addr.String(), err)
	}
	if out.Value == nil {
		return nil, false, nil
	}
	return out.Value.Data.GetBinary(), true, nil
}
