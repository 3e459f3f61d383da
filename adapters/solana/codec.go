package solana

import (
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	// GameAccountSize 是鏈上 Game account 的固定長度
	// 七個 u64、一個 32 bytes 的公鑰、一個 bool，尾端補一個對齊用的位元組
	GameAccountSize = 90
	// PlayerAccountSize 是鏈上 Player account 的最小長度
	PlayerAccountSize = 25
)

// DecodeError 表示鏈上帳戶資料無法解碼
// 對單次讀取是致命的，但不影響其他帳戶或整個行程
type DecodeError struct {
	Account string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s account failed: %s", e.Account, e.Reason)
}

// GameState 是鏈上 Game account 的解碼結果
type GameState struct {
	GameID             uint64
	InitialBidAmount   uint64
	HighestBid         uint64
	LastBidTime        uint64
	TotalBids          uint64
	LastBidder         solana.PublicKey
	PrizePool          uint64
	PlatformFeePercent uint64
	Ended              bool
}

// LastBidAt 把鏈上的 unix 秒數轉成 time.Time
func (s GameState) LastBidAt() time.Time {
	return time.Unix(int64(s.LastBidTime), 0).UTC()
}

// PlayerState 是鏈上 Player account 的解碼結果
type PlayerState struct {
	TotalBidAmount uint64
	Safe           bool
	RoyaltyEarned  uint64
	BidCount       uint64
}

// DecodeGameState 解碼 Game account 的原始位元組
// 固定小端排列，長度不符直接回傳 DecodeError，不做部分解碼
func DecodeGameState(data []byte) (GameState, error) {
	if len(data) != GameAccountSize {
		return GameState{}, &DecodeError{
			Account: "game",
			Reason:  fmt.Sprintf("expect %d bytes, got %d", GameAccountSize, len(data)),
		}
	}

	dec := bin.NewBorshDecoder(data)
	var out GameState
	fields := []*uint64{
		&out.GameID, &out.InitialBidAmount, &out.HighestBid,
		&out.LastBidTime, &out.TotalBids,
	}
	for _, f := range fields {
		v, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return GameState{}, &DecodeError{Account: "game", Reason: err.Error()}
		}
		*f = v
	}

	keyBytes, err := dec.ReadNBytes(32)
	if err != nil {
		return GameState{}, &DecodeError{Account: "game", Reason: err.Error()}
	}
	out.LastBidder = solana.PublicKeyFromBytes(keyBytes)

	if out.PrizePool, err = dec.ReadUint64(bin.LE); err != nil {
		return GameState{}, &DecodeError{Account: "game", Reason: err.Error()}
	}
	if out.PlatformFeePercent, err = dec.ReadUint64(bin.LE); err != nil {
		return GameState{}, &DecodeError{Account: "game", Reason: err.Error()}
	}
	endedByte, err := dec.ReadByte()
	if err != nil {
		return GameState{}, &DecodeError{Account: "game", Reason: err.Error()}
	}
	out.Ended = endedByte != 0

	return out, nil
}

// DecodePlayerState 解碼 Player account 的原始位元組
// 長度不足 25 bytes 視為毀損
func DecodePlayerState(data []byte) (PlayerState, error) {
	if len(data) < PlayerAccountSize {
		return PlayerState{}, &DecodeError{
			Account: "player",
			Reason:  fmt.Sprintf("expect at least %d bytes, got %d", PlayerAccountSize, len(data)),
		}
	}

	dec := bin.NewBorshDecoder(data)
	var out PlayerState
	var err error
	if out.TotalBidAmount, err = dec.ReadUint64(bin.LE); err != nil {
		return PlayerState{}, &DecodeError{Account: "player", Reason: err.Error()}
	}
	safeByte, err := dec.ReadByte()
	if err != nil {
		return PlayerState{}, &DecodeError{Account: "player", Reason: err.Error()}
	}
	out.Safe = safeByte != 0
	if out.RoyaltyEarned, err = dec.ReadUint64(bin.LE); err != nil {
		return PlayerState{}, &DecodeError{Account: "player", Reason: err.Error()}
	}
	if out.BidCount, err = dec.ReadUint64(bin.LE); err != nil {
		return PlayerState{}, &DecodeError{Account: "player", Reason: err.Error()}
	}
	return out, nil
}
