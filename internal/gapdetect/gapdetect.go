// Package gapdetect is a pure query: for a stored (account, token) balance
// chain, it finds every point where balance_before of one record fails to
// match balance_after of its predecessor.
package gapdetect

import (
	"context"
	"fmt"

	"github.com/nearwatch/reconciler/internal/decimal"
	"gorm.io/gorm"
)

// Gap is one discontinuity in a stored chain: the record at EndBlock claims
// ExpectedBalanceBefore, but the previous record (at StartBlock) actually
// left the balance at ActualBalanceAfter.
type Gap struct {
	StartBlock            uint64
	EndBlock              uint64
	ActualBalanceAfter    string
	ExpectedBalanceBefore string
}

type chainRow struct {
	BlockHeight   uint64
	BalanceBefore string
	BalanceAfter  string
	PrevHeight    *uint64
	PrevAfter     *string
}

// Detector runs the gap query against the balance_changes table.
type Detector struct {
	db *gorm.DB
}

// New constructs a Detector over the given GORM handle.
func New(db *gorm.DB) *Detector {
	return &Detector{db: db}
}

// The window function pairs each row with its chain predecessor in a single
// pass, the natural PostgreSQL idiom for this access pattern.
const chainQuery = `
SELECT block_height,
       balance_before,
       balance_after,
       LAG(block_height) OVER w AS prev_height,
       LAG(balance_after) OVER w AS prev_after
FROM balance_changes
WHERE account_id = ? AND token_id = ? AND block_height <= ?
WINDOW w AS (PARTITION BY account_id, token_id ORDER BY block_height)
ORDER BY block_height ASC
`

// FindGaps returns every gap in (accountID, tokenID)'s stored chain up to
// and including upToBlock, in ascending block order.
func (d *Detector) FindGaps(ctx context.Context, accountID, tokenID string, upToBlock uint64) ([]Gap, error) {
	var rows []chainRow
	err := d.db.WithContext(ctx).Raw(chainQuery, accountID, tokenID, upToBlock).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gapdetect: query chain for %s/%s: %w", accountID, tokenID, err)
	}

	var gaps []Gap
	for _, r := range rows {
		if r.PrevHeight == nil {
			continue // first record in the chain; nothing to compare against
		}
		matches, err := decimal.Equal(*r.PrevAfter, r.BalanceBefore)
		if err != nil {
			return nil, fmt.Errorf("gapdetect: comparing balances for %s/%s at block %d: %w", accountID, tokenID, r.BlockHeight, err)
		}
		if matches {
			continue
		}
		gaps = append(gaps, Gap{
			StartBlock:            *r.PrevHeight,
			EndBlock:              r.BlockHeight,
			ActualBalanceAfter:    *r.PrevAfter,
			ExpectedBalanceBefore: r.BalanceBefore,
		})
	}
	return gaps, nil
}
