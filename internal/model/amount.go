package model

import (
	"math/big"
	"regexp"
	"strings"
)

// weiHeuristicThreshold is the point above which a raw Aleo u64 literal is
// assumed to be wei-denominated rather than human-denominated. This
// heuristic is provisional pending authoritative denomination semantics
// from the Aleo program contract; it is isolated here as the single place
// to change if that resolution arrives.
var weiHeuristicThreshold = big.NewInt(1_000_000_000_000_000) // 10^15

var weiPerEther = new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// NormalizeAleoAmount converts a raw Aleo u64 literal into the
// human-denominated decimal string carried on TransferIntent.Amount.
func NormalizeAleoAmount(raw uint64) string {
	rawInt := new(big.Int).SetUint64(raw)
	if rawInt.Cmp(weiHeuristicThreshold) <= 0 {
		return rawInt.String()
	}
	r := new(big.Rat).SetInt(rawInt)
	r.Quo(r, weiPerEther)
	return formatRat(r, 18)
}

// formatRat renders r as a fixed-point decimal string with up to maxDecimals
// fractional digits, trimming trailing zeros (but keeping at least one digit
// after the point when the value is non-integral).
func formatRat(r *big.Rat, maxDecimals int) string {
	s := r.FloatString(maxDecimals)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-" {
		s = "0"
	}
	return s
}

var decimalAmountRE = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// maxAmount bounds any single intent's amount, guarding against malformed
// or adversarial literals turning into an unbounded transfer request.
var maxAmount = big.NewRat(1_000_000, 1) // 1,000,000 whole native tokens

// ParseAmount validates a human-denominated decimal amount string: empty,
// zero, negative, and non-numeric amounts are all ValidationErrors. Zero
// is rejected because a zero-value transfer settles nothing and is never
// a legitimate intent.
func ParseAmount(s string) (*big.Rat, error) {
	if s == "" {
		return nil, ValidationError("amount is empty")
	}
	if !decimalAmountRE.MatchString(s) {
		return nil, ValidationError("amount is not a non-negative decimal: " + s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, ValidationError("amount could not be parsed: " + s)
	}
	if r.Sign() <= 0 {
		return nil, ValidationError("amount must be positive: " + s)
	}
	if r.Cmp(maxAmount) > 0 {
		return nil, ValidationError("amount exceeds maximum bound: " + s)
	}
	return r, nil
}

// AmountToWei converts a validated human-denominated amount to its
// smallest-unit (wei) integer representation, rounding toward zero.
func AmountToWei(amount *big.Rat) *big.Int {
	scaled := new(big.Rat).Mul(amount, weiPerEther)
	wei := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return wei
}
