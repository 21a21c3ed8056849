// Package decimal converts chain-native raw integer balances into the
// canonical decimal strings the rest of the reconciliation engine compares
// and stores, using arbitrary-precision arithmetic throughout.
package decimal

import (
	"fmt"
	"math/big"
	"strings"
)

// Zero is the canonical representation of a zero balance.
const Zero = "0"

// ToDecimal divides the non-negative base-10 integer string raw by 10^decimals
// and renders the result as a normalized decimal string: no trailing
// fractional zeros, no redundant leading zero beyond the single digit before
// the point, "0" for a zero value. decimals == 0 returns raw verbatim
// (still validated and re-rendered through big.Int, so leading zeros in the
// input are stripped).
func ToDecimal(raw string, decimals uint8) (string, error) {
	raw = strings.TrimSpace(raw)
	i, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return "", fmt.Errorf("decimal: %q is not a valid integer", raw)
	}
	if i.Sign() < 0 {
		return "", fmt.Errorf("decimal: raw integer %q must be non-negative", raw)
	}
	if decimals == 0 {
		return i.String(), nil
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole := new(big.Int)
	frac := new(big.Int)
	whole.DivMod(i, scale, frac)

	fracStr := frac.String()
	if pad := int(decimals) - len(fracStr); pad > 0 {
		fracStr = strings.Repeat("0", pad) + fracStr
	}
	fracStr = strings.TrimRight(fracStr, "0")

	if fracStr == "" {
		return whole.String(), nil
	}
	return whole.String() + "." + fracStr, nil
}

// parse interprets a canonical (or merely well-formed) decimal string as an
// exact rational. The reduced denominator need not be a power of ten;
// ratToCanonical renders results back exactly using the operands' own
// fractional digit counts instead.
func parse(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		return nil, fmt.Errorf("decimal: %q is not a valid decimal", s)
	}
	return r, nil
}

// Equal reports whether two decimal strings denote the same value,
// independent of formatting (so "3" and "3.0" compare equal).
func Equal(a, b string) (bool, error) {
	ra, err := parse(a)
	if err != nil {
		return false, err
	}
	rb, err := parse(b)
	if err != nil {
		return false, err
	}
	return ra.Cmp(rb) == 0, nil
}

// decimalPlaces counts the digits after the decimal point in s, or 0 if s
// carries none.
func decimalPlaces(s string) int {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// Sub returns a - b, canonically formatted. The result may be negative.
func Sub(a, b string) (string, error) {
	ra, err := parse(a)
	if err != nil {
		return "", err
	}
	rb, err := parse(b)
	if err != nil {
		return "", err
	}

	scale := decimalPlaces(a)
	if db := decimalPlaces(b); db > scale {
		scale = db
	}

	return ratToCanonical(new(big.Rat).Sub(ra, rb), scale), nil
}

// ratToCanonical renders r exactly as a decimal string with exactly scale
// fractional digits before trailing-zero trimming. scale must be at least
// the number of fractional digits either operand that produced r was
// written with, so that r scaled by 10^scale is guaranteed to be an exact
// integer — r's own reduced denominator is not assumed to be a power of
// ten (it need not be: e.g. Sub("2.5", "0") reduces to num=5, den=2).
func ratToCanonical(r *big.Rat, scale int) string {
	neg := r.Sign() < 0
	abs := new(big.Rat).Abs(r)

	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	scaled := new(big.Rat).Mul(abs, new(big.Rat).SetInt(factor))
	// scaled is exact by construction (scale covers both operands' own
	// fractional precision), so its denominator is always 1.
	scaledInt := new(big.Int).Quo(scaled.Num(), scaled.Denom())

	digits := scaledInt.String()
	decimals := scale
	if decimals == 0 {
		if neg && scaledInt.Sign() != 0 {
			return "-" + digits
		}
		return digits
	}
	for len(digits) <= decimals {
		digits = "0" + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg && scaledInt.Sign() != 0 {
		out = "-" + out
	}
	return out
}
