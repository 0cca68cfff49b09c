package hiring

import (
	"fmt"
	"math"
	"math/big"
)

// Cents is a US-dollar amount in whole cents.
type Cents int64

// Dollars converts a dollar figure to cents, rounding to the nearest cent.
func Dollars(d float64) Cents {
	return Cents(math.Round(d * 100))
}

// Dollars returns the amount as a float dollar figure.
func (c Cents) Dollars() float64 {
	return float64(c) / 100
}

func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}

const (
	// USDCDecimals is the precision of the USDC transfer token.
	USDCDecimals = 6
	// SuperTokenDecimals is the precision of the wrapped streaming token.
	SuperTokenDecimals = 18

	// FlowRateTolerancePercent is the share of the agreed rate an on-chain flow must reach.
	FlowRateTolerancePercent = 99
)

var (
	usdcPerCent  = big.NewInt(10_000)                                    // 10^6 / 100
	superPerCent = new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil) // 10^18 / 100
)

// CentsFromUSDC converts a raw USDC amount to cents, truncating sub-cent dust.
func CentsFromUSDC(raw *big.Int) Cents {
	if raw == nil {
		return 0
	}
	return Cents(new(big.Int).Quo(raw, usdcPerCent).Int64())
}

// USDCFromCents converts cents to a raw USDC amount.
func USDCFromCents(c Cents) *big.Int {
	return new(big.Int).Mul(big.NewInt(int64(c)), usdcPerCent)
}

// FlowRateFor returns the super-token wei per second needed to pay rate every interval.
func FlowRateFor(rate Cents, interval Interval) *big.Int {
	secs := int64(interval.Duration().Seconds())
	if secs <= 0 {
		return new(big.Int)
	}
	wei := new(big.Int).Mul(big.NewInt(int64(rate)), superPerCent)
	return wei.Quo(wei, big.NewInt(secs))
}

// FlowAccrual returns the cents streamed by flowRate over seconds.
func FlowAccrual(flowRate *big.Int, seconds int64) Cents {
	if flowRate == nil || seconds <= 0 {
		return 0
	}
	total := new(big.Int).Mul(flowRate, big.NewInt(seconds))
	return Cents(total.Quo(total, superPerCent).Int64())
}

// FlowRateSufficient reports whether actual is within tolerance of expected.
func FlowRateSufficient(actual, expected *big.Int) bool {
	if actual == nil || actual.Sign() <= 0 {
		return false
	}
	lhs := new(big.Int).Mul(actual, big.NewInt(100))
	rhs := new(big.Int).Mul(expected, big.NewInt(FlowRateTolerancePercent))
	return lhs.Cmp(rhs) >= 0
}
