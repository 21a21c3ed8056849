// Package monitor drives one reconciliation cycle across every enabled
// monitored account: enumerate accounts least-recently synced first,
// enumerate their known tokens, and invoke the gap filler for each.
package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nearwatch/reconciler/internal/store"
	"github.com/nearwatch/reconciler/internal/tokenid"
)

// Store is the narrow persistence surface a monitor cycle needs.
type Store interface {
	EnabledAccounts(ctx context.Context) ([]store.MonitoredAccountRecord, error)
	DistinctTokenIDsForAccount(ctx context.Context, accountID string) ([]string, error)
	StampSynced(ctx context.Context, accountID string, at time.Time) error
}

// GapFiller is the slice of the gap filler orchestrator the monitor drives.
// Its second return value carries per-gap failures that don't abort the
// invocation (Strategy D); its error return carries failures that do.
type GapFiller interface {
	Fill(ctx context.Context, accountID string, token tokenid.TokenID, upToBlock uint64) ([]error, error)
}

// Clock is injected so tests can control StampSynced's timestamp.
type Clock func() time.Time

// Monitor runs reconciliation cycles over every enabled account.
type Monitor struct {
	store Store
	fill  GapFiller
	now   Clock
}

// New constructs a Monitor.
func New(st Store, fill GapFiller) *Monitor {
	return &Monitor{store: st, fill: fill, now: time.Now}
}

// CycleResult summarizes one call to RunCycle.
type CycleResult struct {
	AccountsVisited int
	TokensProcessed int
	Errors          []error
}

// RunCycle enumerates enabled accounts and fills gaps for each of their
// known tokens up to upToBlock. A per-token error (from the gap filler
// itself, not Strategy D's per-gap errors) is accumulated and does not
// prevent the remaining tokens, or the remaining accounts, from being
// attempted. An account's last_synced_at is stamped only if at least one
// of its tokens was processed without error.
func (m *Monitor) RunCycle(ctx context.Context, upToBlock uint64) (CycleResult, error) {
	accounts, err := m.store.EnabledAccounts(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("monitor: enabled accounts: %w", err)
	}

	var result CycleResult
	for _, account := range accounts {
		result.AccountsVisited++

		tokenIDs, err := m.store.DistinctTokenIDsForAccount(ctx, account.AccountID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("monitor: tokens for %s: %w", account.AccountID, err))
			continue
		}
		if len(tokenIDs) == 0 {
			continue // token discovery runs as a separate cycle, see internal/discovery.RunCycle
		}

		processed := 0
		for _, raw := range tokenIDs {
			token := tokenid.Parse(raw)
			gapErrs, err := m.fill.Fill(ctx, account.AccountID, token, upToBlock)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("monitor: fill %s/%s: %w", account.AccountID, raw, err))
				continue
			}
			for _, gapErr := range gapErrs {
				log.Printf("monitor: %s/%s: %v", account.AccountID, raw, gapErr)
			}
			processed++
			result.TokensProcessed++
		}

		if processed > 0 {
			if err := m.store.StampSynced(ctx, account.AccountID, m.now()); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("monitor: stamp synced %s: %w", account.AccountID, err))
			}
		}
	}

	return result, nil
}
