package auction

// 這裡的算式鏡射鏈上程式的結算邏輯，只用於預先計算結算批次
// 與畫面顯示；實際的資金移轉完全由鏈上程式執行。

// PlatformFee 以最後五筆出價的總和乘上手續費率計算平台抽成
func PlatformFee(bidAmounts []uint64, feePercent uint64) uint64 {
	n := len(bidAmounts)
	start := 0
	if n > SafetyThreshold {
		start = n - SafetyThreshold
	}
	var sum uint64
	for _, a := range bidAmounts[start:] {
		sum += a
	}
	return sum * feePercent / 100
}

// RoyaltyPot 回傳用於分配 royalty 的金額：倒數第四筆出價的金額
// 出價不足六筆時沒有 royalty 可分
func RoyaltyPot(bidAmounts []uint64) uint64 {
	if len(bidAmounts) <= SafetyThreshold {
		return 0
	}
	return bidAmounts[len(bidAmounts)-4]
}

// RoyaltyShares 計算每位安全玩家可分得的 royalty
// 只有最後五筆之前的出價者有份，權重隨出價時間遞減：
//
//	share_i = (weight_i * amount_i * pot) / (Σweight * Σamount)
//	weight_i = n - i，n 為安全玩家數，i 從 0 起算
//
// 回傳的切片與安全玩家一一對應；分配總和不會超過 pot
func RoyaltyShares(bidAmounts []uint64, pot uint64) []uint64 {
	if len(bidAmounts) <= SafetyThreshold || pot == 0 {
		return nil
	}
	eligible := bidAmounts[:len(bidAmounts)-SafetyThreshold]
	n := uint64(len(eligible))

	var totalWeight, totalAmount uint64
	for i, a := range eligible {
		totalWeight += n - uint64(i)
		totalAmount += a
	}
	if totalWeight == 0 || totalAmount == 0 {
		return make([]uint64, len(eligible))
	}

	shares := make([]uint64, len(eligible))
	for i, a := range eligible {
		weight := n - uint64(i)
		shares[i] = weight * a * pot / (totalWeight * totalAmount)
	}
	return shares
}
