// Package gapfill is the core orchestrator: given a (account, token_id)
// pair, it composes four reconstruction strategies against a stored
// balance-change chain, querying the archival RPC only where the stored
// chain cannot answer, and inserting synthesized records idempotently.
package gapfill

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nearwatch/reconciler/internal/counterparty"
	"github.com/nearwatch/reconciler/internal/decimal"
	"github.com/nearwatch/reconciler/internal/gapdetect"
	"github.com/nearwatch/reconciler/internal/rpcclient"
	"github.com/nearwatch/reconciler/internal/search"
	"github.com/nearwatch/reconciler/internal/store"
	"github.com/nearwatch/reconciler/internal/tokenid"
)

// DefaultSeedLookback is Strategy A's search window below up_to_block when
// seeding an empty chain, approximately thirty days of NEAR blocks.
const DefaultSeedLookback uint64 = 2_592_000

// DefaultBackwardLookback is Strategy C's search window below the earliest
// stored record, approximately seven days of blocks.
const DefaultBackwardLookback uint64 = 600_000

// Balances is the point-in-time balance contract the filler searches and
// synthesizes records against.
type Balances interface {
	BalanceAt(ctx context.Context, account string, token tokenid.TokenID, height uint64) (string, error)
	BalanceChangeAt(ctx context.Context, account string, token tokenid.TokenID, height uint64) (before, after string, err error)
}

// BlockInfo resolves a block's timestamp and chunk hashes for record
// synthesis and receipt-scan attribution.
type BlockInfo interface {
	Block(ctx context.Context, height uint64) (*rpcclient.BlockHeader, []string, error)
}

// GapFinder is the gap detector's contract, narrowed for Strategy D.
type GapFinder interface {
	FindGaps(ctx context.Context, accountID, tokenID string, upToBlock uint64) ([]gapdetect.Gap, error)
}

// Store is the slice of the durable store the filler reads and writes.
type Store interface {
	HasAnyBalanceChange(ctx context.Context, accountID, tokenID string) (bool, error)
	LatestBalanceChange(ctx context.Context, accountID, tokenID string) (*store.BalanceChangeRecord, error)
	EarliestBalanceChange(ctx context.Context, accountID, tokenID string) (*store.BalanceChangeRecord, error)
	InsertBalanceChange(ctx context.Context, rec *store.BalanceChangeRecord) (bool, error)
}

// Filler runs the A->B->C->D reconstruction sequence for one (account,
// token_id) pair per Fill invocation.
type Filler struct {
	balances Balances
	blocks   BlockInfo
	rpc      counterparty.RPC
	store    Store
	gaps     GapFinder

	seedLookback     uint64
	backwardLookback uint64
}

// New constructs a Filler with the default lookback windows.
func New(balances Balances, blocks BlockInfo, rpc counterparty.RPC, st Store, gaps GapFinder) *Filler {
	return &Filler{
		balances:         balances,
		blocks:           blocks,
		rpc:              rpc,
		store:            st,
		gaps:             gaps,
		seedLookback:     DefaultSeedLookback,
		backwardLookback: DefaultBackwardLookback,
	}
}

// SetLookbacks overrides the default seed and backward lookback windows,
// chiefly for tests exercising specific scenario block ranges.
func (f *Filler) SetLookbacks(seed, backward uint64) {
	f.seedLookback = seed
	f.backwardLookback = backward
}

// Fill runs Strategy A (only when the chain is empty), then B, C, D in
// order for (accountID, token) up to upToBlock. Per-gap failures inside
// Strategy D are accumulated and returned alongside a nil error; failures
// in A, B or C abort the invocation and are returned directly.
func (f *Filler) Fill(ctx context.Context, accountID string, token tokenid.TokenID, upToBlock uint64) (gapErrors []error, err error) {
	seeded, err := f.store.HasAnyBalanceChange(ctx, accountID, token.String())
	if err != nil {
		return nil, fmt.Errorf("gapfill: checking existing chain for %s/%s: %w", accountID, token.String(), err)
	}

	if !seeded {
		if err := f.strategyA(ctx, accountID, token, upToBlock); err != nil {
			return nil, fmt.Errorf("gapfill: strategy A for %s/%s: %w", accountID, token.String(), err)
		}
	} else {
		if err := f.strategyB(ctx, accountID, token, upToBlock); err != nil {
			return nil, fmt.Errorf("gapfill: strategy B for %s/%s: %w", accountID, token.String(), err)
		}
		if err := f.strategyC(ctx, accountID, token); err != nil {
			return nil, fmt.Errorf("gapfill: strategy C for %s/%s: %w", accountID, token.String(), err)
		}
	}

	return f.strategyD(ctx, accountID, token, upToBlock), nil
}

// strategyA seeds an empty chain from the current balance at upToBlock,
// binary-searching back to its earliest occurrence within the seed window.
func (f *Filler) strategyA(ctx context.Context, accountID string, token tokenid.TokenID, upToBlock uint64) error {
	current, err := f.balances.BalanceAt(ctx, accountID, token, upToBlock)
	if err != nil {
		return err
	}
	isZero, err := decimal.Equal(current, decimal.Zero)
	if err != nil {
		return err
	}
	if isZero {
		return nil
	}

	windowStart := saturatingSub(upToBlock, f.seedLookback)
	block, found, err := search.FindChangeBlock(ctx, f.balances, accountID, token, windowStart, upToBlock, current)
	if err != nil {
		return err
	}
	if !found {
		return nil // the balance predates the seed window; nothing to do this invocation
	}
	return f.insertAttributedOrUnknown(ctx, accountID, token, block)
}

// strategyB extends the chain forward to upToBlock if the current balance
// has moved past the latest stored record.
func (f *Filler) strategyB(ctx context.Context, accountID string, token tokenid.TokenID, upToBlock uint64) error {
	latest, err := f.store.LatestBalanceChange(ctx, accountID, token.String())
	if err != nil {
		return err
	}
	if latest == nil {
		return nil
	}
	if latest.BlockHeight >= upToBlock {
		return nil
	}

	current, err := f.balances.BalanceAt(ctx, accountID, token, upToBlock)
	if err != nil {
		return err
	}
	matches, err := decimal.Equal(current, latest.BalanceAfter)
	if err != nil {
		return err
	}
	if matches {
		return nil
	}

	block, found, err := search.FindChangeBlock(ctx, f.balances, accountID, token, latest.BlockHeight+1, upToBlock, current)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return f.insertAttributedOrUnknown(ctx, accountID, token, block)
}

// strategyC extends the chain backward from the earliest stored record,
// falling back to a boundary SNAPSHOT when no receipt can attribute the
// change found within the backward window.
func (f *Filler) strategyC(ctx context.Context, accountID string, token tokenid.TokenID) error {
	earliest, err := f.store.EarliestBalanceChange(ctx, accountID, token.String())
	if err != nil {
		return err
	}
	if earliest == nil {
		return nil
	}
	if earliest.BlockHeight == 0 {
		return nil
	}
	// A zero balance_before only proves genesis when it comes from an
	// attributed record. A SNAPSHOT's balance_before == balance_after == 0
	// merely means no change crossed that particular window boundary; it
	// says nothing about what happened further back, so the search must
	// continue past it (see the progressive zero-balance discovery case).
	if earliest.Counterparty != store.CounterpartySnapshot {
		atOrigin, err := decimal.Equal(earliest.BalanceBefore, decimal.Zero)
		if err != nil {
			return err
		}
		if atOrigin {
			return nil
		}
	}

	start := saturatingSub(earliest.BlockHeight, f.backwardLookback)
	if start >= earliest.BlockHeight {
		return nil
	}

	block, found, err := search.FindChangeBlock(ctx, f.balances, accountID, token, start, earliest.BlockHeight-1, earliest.BalanceBefore)
	if err != nil {
		return err
	}
	if !found {
		return nil // no block in the window matches; try again next invocation
	}

	rec, needsSnapshot, err := f.synthesizeRecord(ctx, accountID, token, block)
	if err != nil {
		return err
	}
	if !needsSnapshot {
		_, err = f.store.InsertBalanceChange(ctx, rec)
		return err
	}
	return f.insertSnapshotAt(ctx, accountID, token, start)
}

// strategyD fills every inter-record gap reported by the gap detector.
// A failure on one gap is logged and does not prevent the remaining gaps
// from being attempted.
func (f *Filler) strategyD(ctx context.Context, accountID string, token tokenid.TokenID, upToBlock uint64) []error {
	gaps, err := f.gaps.FindGaps(ctx, accountID, token.String(), upToBlock)
	if err != nil {
		return []error{fmt.Errorf("gapfill: strategy D gap scan for %s/%s: %w", accountID, token.String(), err)}
	}

	var errs []error
	for _, g := range gaps {
		if err := f.fillGap(ctx, accountID, token, g); err != nil {
			wrapped := fmt.Errorf("gapfill: gap [%d,%d] for %s/%s: %w", g.StartBlock, g.EndBlock, accountID, token.String(), err)
			log.Printf("%v", wrapped)
			errs = append(errs, wrapped)
		}
	}
	return errs
}

func (f *Filler) fillGap(ctx context.Context, accountID string, token tokenid.TokenID, g gapdetect.Gap) error {
	if g.EndBlock == 0 {
		return errors.New("gapfill: zero-height gap end")
	}
	block, found, err := search.FindChangeBlock(ctx, f.balances, accountID, token, g.StartBlock, g.EndBlock-1, g.ExpectedBalanceBefore)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no block in [%d,%d) matches expected balance %s", g.StartBlock, g.EndBlock, g.ExpectedBalanceBefore)
	}
	return f.insertAttributedOrUnknown(ctx, accountID, token, block)
}

// insertAttributedOrUnknown synthesizes a record at height and inserts it,
// downgrading an unattributable change to counterparty UNKNOWN rather than
// failing the invocation (the SNAPSHOT fallback is exclusive to Strategy C).
func (f *Filler) insertAttributedOrUnknown(ctx context.Context, accountID string, token tokenid.TokenID, height uint64) error {
	rec, needsSnapshot, err := f.synthesizeRecord(ctx, accountID, token, height)
	if err != nil {
		return err
	}
	if needsSnapshot {
		rec.Counterparty = store.CounterpartyUnknown
	}
	_, err = f.store.InsertBalanceChange(ctx, rec)
	return err
}

// synthesizeRecord builds the balance-change record at height, attempting
// counterparty attribution last. When no receipt can attribute the change,
// it returns a record with attribution fields empty and needsSnapshot set;
// callers decide whether that means an UNKNOWN row or a SNAPSHOT fallback.
func (f *Filler) synthesizeRecord(ctx context.Context, accountID string, token tokenid.TokenID, height uint64) (rec *store.BalanceChangeRecord, needsSnapshot bool, err error) {
	before, after, err := f.balances.BalanceChangeAt(ctx, accountID, token, height)
	if err != nil {
		return nil, false, fmt.Errorf("balance change at %d: %w", height, err)
	}
	amount, err := decimal.Sub(after, before)
	if err != nil {
		return nil, false, fmt.Errorf("amount at %d: %w", height, err)
	}
	header, chunkHashes, err := f.blocks.Block(ctx, height)
	if err != nil {
		return nil, false, fmt.Errorf("block header at %d: %w", height, err)
	}

	rec = &store.BalanceChangeRecord{
		AccountID:        accountID,
		TokenID:          token.String(),
		BlockHeight:      height,
		BlockTimestampNs: header.TimestampNs,
		BlockTime:        time.Unix(0, header.TimestampNs).UTC(),
		Amount:           amount,
		BalanceBefore:    before,
		BalanceAfter:     after,
	}

	attr, err := counterparty.Resolve(ctx, f.rpc, accountID, height, chunkHashes)
	if errors.Is(err, counterparty.ErrNoReceiptAtBlock) {
		return rec, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("attribute counterparty at %d: %w", height, err)
	}

	rec.Counterparty = attr.Counterparty
	rec.SignerID = attr.SignerID
	rec.ReceiverID = attr.ReceiverID
	rec.TransactionHashes = attr.TransactionHashes
	rec.ReceiptIDs = attr.ReceiptIDs
	return rec, false, nil
}

// insertSnapshotAt inserts a SNAPSHOT record at the lookback boundary,
// first re-verifying that the balance did not actually change across it.
func (f *Filler) insertSnapshotAt(ctx context.Context, accountID string, token tokenid.TokenID, at uint64) error {
	before, after, err := f.balances.BalanceChangeAt(ctx, accountID, token, at)
	if err != nil {
		return err
	}
	unchanged, err := decimal.Equal(before, after)
	if err != nil {
		return err
	}
	if !unchanged {
		return fmt.Errorf("gapfill: refusing snapshot at %d for %s/%s: balance moved across boundary (%s -> %s)", at, accountID, token.String(), before, after)
	}

	header, _, err := f.blocks.Block(ctx, at)
	if err != nil {
		return err
	}

	rec := &store.BalanceChangeRecord{
		AccountID:        accountID,
		TokenID:          token.String(),
		BlockHeight:      at,
		BlockTimestampNs: header.TimestampNs,
		BlockTime:        time.Unix(0, header.TimestampNs).UTC(),
		Amount:           decimal.Zero,
		BalanceBefore:    after,
		BalanceAfter:     after,
		Counterparty:     store.CounterpartySnapshot,
	}
	_, err = f.store.InsertBalanceChange(ctx, rec)
	return err
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
