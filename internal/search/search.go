// Package search implements the bounded binary search that locates the
// earliest block at which an (account, token) balance first equals a target
// value, the primitive every gap-filling strategy bottoms out on.
package search

import (
	"context"
	"fmt"

	"github.com/nearwatch/reconciler/internal/decimal"
	"github.com/nearwatch/reconciler/internal/tokenid"
)

// BalanceReader is the narrow balance-service contract this package needs.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account string, token tokenid.TokenID, height uint64) (string, error)
}

// FindChangeBlock returns the least block H in [start, end] such that
// balance_at(H) == target under canonical decimal comparison. found is false
// if no such block exists in the range. start must be <= end.
func FindChangeBlock(ctx context.Context, reader BalanceReader, account string, token tokenid.TokenID, start, end uint64, target string) (block uint64, found bool, err error) {
	if start > end {
		return 0, false, fmt.Errorf("search: invalid range [%d, %d]", start, end)
	}

	endBalance, err := reader.BalanceAt(ctx, account, token, end)
	if err != nil {
		return 0, false, err
	}
	endMatches, err := decimal.Equal(endBalance, target)
	if err != nil {
		return 0, false, err
	}
	if !endMatches {
		return 0, false, nil
	}

	startBalance, err := reader.BalanceAt(ctx, account, token, start)
	if err != nil {
		return 0, false, err
	}
	startMatches, err := decimal.Equal(startBalance, target)
	if err != nil {
		return 0, false, err
	}
	if startMatches {
		return start, true, nil
	}

	lo, hi := start+1, end
	for lo < hi {
		mid := lo + (hi-lo)/2
		midBalance, err := reader.BalanceAt(ctx, account, token, mid)
		if err != nil {
			return 0, false, err
		}
		midMatches, err := decimal.Equal(midBalance, target)
		if err != nil {
			return 0, false, err
		}
		if midMatches {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, true, nil
}
