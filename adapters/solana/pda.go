package solana

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PDA 種子前綴，必須與鏈上程式一致
var (
	seedGame   = []byte("game")
	seedPlayer = []byte("player")
	seedBid    = []byte("bid")
)

func leU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// GamePDA 推導遊戲帳戶的地址：seeds = ["game", gameID]
// 對相同輸入永遠得到相同地址，不同輸入不會碰撞
func GamePDA(programID solana.PublicKey, gameID uint64) (solana.PublicKey, error) {
	const op = "GamePDA"
	addr, _, err := solana.FindProgramAddress([][]byte{seedGame, leU64(gameID)}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("[%s] fail to derive address, gameID=%d, err=%w", op, gameID, err)
	}
	return addr, nil
}

// PlayerPDA 推導玩家帳戶的地址：seeds = ["player", gameID, playerKey, bidCount]
// 每一筆出價各有一個玩家帳戶，所以序號也是種子的一部分
func PlayerPDA(programID solana.PublicKey, gameID uint64, player solana.PublicKey, bidCount uint64) (solana.PublicKey, error) {
	const op = "PlayerPDA"
	addr, _, err := solana.FindProgramAddress(
		[][]byte{seedPlayer, leU64(gameID), player.Bytes(), leU64(bidCount)},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("[%s] fail to derive address, gameID=%d, bidCount=%d, err=%w", op, gameID, bidCount, err)
	}
	return addr, nil
}

// BidPDA 推導出價帳戶的地址：seeds = ["bid", gameID, bidNumber]
func BidPDA(programID solana.PublicKey, gameID uint64, bidNumber uint64) (solana.PublicKey, error) {
	const op = "BidPDA"
	addr, _, err := solana.FindProgramAddress(
		[][]byte{seedBid, leU64(gameID), leU64(bidNumber)},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("[%s] fail to derive address, gameID=%d, bidNumber=%d, err=%w", op, gameID, bidNumber, err)
	}
	return addr, nil
}
