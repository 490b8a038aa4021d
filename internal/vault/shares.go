package vault

import (
	"fmt"
	"math/bits"
)

// ConvertToShares returns the shares minted for a deposit of amount into a
// vault holding totalAssets with totalShares outstanding. The first deposit
// is priced 1:1; later deposits get floor(amount*totalShares/totalAssets),
// so rounding never favours the depositor.
func ConvertToShares(amount, totalAssets, totalShares uint64) (uint64, error) {
	if totalShares == 0 {
		return amount, nil
	}
	if totalAssets == 0 {
		return 0, ErrInconsistentLedgerState
	}

	hi, lo := bits.Mul64(amount, totalShares)
	if hi >= totalAssets {
		return 0, fmt.Errorf("%w: %d * %d / %d", ErrArithmeticOverflow, amount, totalShares, totalAssets)
	}
	quo, _ := bits.Div64(hi, lo, totalAssets)
	return quo, nil
}

// checkedAdd returns a+b or ErrArithmeticOverflow.
func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrArithmeticOverflow, a, b)
	}
	return sum, nil
}
