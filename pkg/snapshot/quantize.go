package snapshot

import (
	"errors"
	"math/big"
)

// ErrAmountTooLarge is returned when a balance cannot be quantized to fit a
// uint64 without losing precision below whatever divisor it was last
// truncated to.
var ErrAmountTooLarge = errors.New("snapshot: amount cannot be represented without precision loss")

var ten = big.NewInt(10)

// pow10 returns 10^n as a fresh big.Int.
func pow10(n int) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// ConvertToSol quantizes a raw token amount (source-chain decimals, e.g.
// 18) down to the destination chain's representable precision: first
// truncate to gwei-level precision (divide by 10^9 — this initial
// truncation is the intended lossy step, not a precision failure), then
// keep truncating one more decimal place at a time until
// the value fits in a uint64. At the first decimal count where it fits,
// the remaining value must reconstruct the truncated figure exactly
// (remainder zero) or the amount is rejected as unrepresentable.
func ConvertToSol(amount *big.Int) (value uint64, decimals uint8, err error) {
	if amount.Sign() < 0 {
		return 0, 0, errors.New("snapshot: amount must be non-negative")
	}

	const initialDecimals = 9
	gwei := new(big.Int).Div(amount, pow10(initialDecimals))

	maxUint64 := new(big.Int).SetUint64(^uint64(0))

	for k := 0; k <= initialDecimals; k++ {
		decimalsAtK := initialDecimals - k
		divisor := pow10(k)
		q, r := new(big.Int), new(big.Int)
		q.DivMod(gwei, divisor, r)

		if q.Cmp(maxUint64) <= 0 {
			if r.Sign() != 0 {
				return 0, 0, ErrAmountTooLarge
			}
			return q.Uint64(), uint8(decimalsAtK), nil
		}
	}
	return 0, 0, ErrAmountTooLarge
}
