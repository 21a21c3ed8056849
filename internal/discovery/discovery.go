// Package discovery extends a monitored account's known token set by two
// routes: a full snapshot of its current multi-token holdings, and a scan
// of block receipts for fungible-token transfer calls involving it.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nearwatch/reconciler/internal/rpcclient"
	"github.com/nearwatch/reconciler/internal/store"
	"github.com/nearwatch/reconciler/internal/tokenid"
)

// IntentsContract is the NEAR Intents multi-token contract snapshotted for
// an account's currently-held multi-token balances.
const IntentsContract = "intents.near"

var ftTransferMethods = map[string]bool{
	"ft_transfer":      true,
	"ft_transfer_call": true,
	"ft_on_transfer":   true,
}

// RPC is the narrow RPC surface token discovery needs.
type RPC interface {
	ViewCallFinal(ctx context.Context, contract, method string, args map[string]any) (json.RawMessage, error)
}

// SnapshotIntentsTokens returns the complete, current list of multi-token
// IDs (already prefixed "intents.near:") held by account. Calling this
// periodically is how the token set tracks additions and removals over
// time — there is no incremental "new token" signal from the contract.
func SnapshotIntentsTokens(ctx context.Context, rpc RPC, account string) ([]string, error) {
	raw, err := rpc.ViewCallFinal(ctx, IntentsContract, "mt_tokens_for_owner", map[string]any{
		"account_id": account,
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: mt_tokens_for_owner for %s: %w", account, err)
	}

	var entries []struct {
		TokenID string `json:"token_id"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("discovery: parsing mt_tokens_for_owner response for %s: %w", account, err)
	}

	tokenIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		tokenIDs = append(tokenIDs, IntentsContract+":"+e.TokenID)
	}
	return tokenIDs, nil
}

// ExtractFTContracts scans receipt for an ft_transfer/ft_transfer_call/
// ft_on_transfer call involving account as predecessor or receiver, and
// returns the receiver_id (the FT contract address) if so. Returns "" if
// the receipt carries no such action.
func ExtractFTContracts(receipt rpcclient.Receipt, account string) string {
	if receipt.PredecessorID != account && receipt.ReceiverID != account {
		return ""
	}
	for _, action := range receipt.Actions() {
		if action.FunctionCall == nil {
			continue
		}
		if ftTransferMethods[action.FunctionCall.MethodName] {
			return receipt.ReceiverID
		}
	}
	return ""
}

// ExtractFTContractsFromChunk applies ExtractFTContracts across every
// receipt in a chunk, deduplicating the resulting contract set.
func ExtractFTContractsFromChunk(receipts []rpcclient.Receipt, account string) []string {
	seen := map[string]bool{}
	var contracts []string
	for _, r := range receipts {
		contract := ExtractFTContracts(r, account)
		if contract == "" || seen[contract] {
			continue
		}
		seen[contract] = true
		contracts = append(contracts, contract)
	}
	return contracts
}

// BlockFetcher is the narrow block/chunk surface the receipt-scan source
// needs to pull one cycle's worth of receipts.
type BlockFetcher interface {
	Block(ctx context.Context, height uint64) (*rpcclient.BlockHeader, []string, error)
	Chunk(ctx context.Context, chunkHash string) ([]rpcclient.Receipt, error)
}

// AccountStore is the narrow persistence surface a discovery cycle needs:
// which accounts to discover tokens for, and which token_ids each one
// already tracks, so an already-known token is never reseeded.
type AccountStore interface {
	EnabledAccounts(ctx context.Context) ([]store.MonitoredAccountRecord, error)
	DistinctTokenIDsForAccount(ctx context.Context, accountID string) ([]string, error)
}

// Seeder is the slice of the Gap Filler a discovery cycle drives. Calling
// Fill against a token_id with no stored history runs Strategy A, writing
// the first BalanceChange row for it — this is how a newly discovered
// token is picked up by the next monitor cycle's
// DistinctTokenIDsForAccount.
type Seeder interface {
	Fill(ctx context.Context, accountID string, token tokenid.TokenID, upToBlock uint64) ([]error, error)
}

// CycleResult summarizes one call to RunCycle.
type CycleResult struct {
	AccountsVisited int
	TokensSeeded    int
	Errors          []error
}

// RunCycle enumerates enabled accounts, discovers each one's current token
// set via the multi-token snapshot and a scan of upToBlock's receipts, and
// seeds any token_id not already tracked for that account by invoking the
// Gap Filler once against it. A failure discovering or seeding one
// account's tokens is accumulated and does not abort the cycle.
func RunCycle(ctx context.Context, rpc RPC, blocks BlockFetcher, accounts AccountStore, seed Seeder, upToBlock uint64) (CycleResult, error) {
	enabled, err := accounts.EnabledAccounts(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("discovery: enabled accounts: %w", err)
	}

	_, chunkHashes, err := blocks.Block(ctx, upToBlock)
	if err != nil {
		return CycleResult{}, fmt.Errorf("discovery: block %d: %w", upToBlock, err)
	}
	var receipts []rpcclient.Receipt
	for _, hash := range chunkHashes {
		chunkReceipts, err := blocks.Chunk(ctx, hash)
		if err != nil {
			return CycleResult{}, fmt.Errorf("discovery: chunk %s: %w", hash, err)
		}
		receipts = append(receipts, chunkReceipts...)
	}

	var result CycleResult
	for _, account := range enabled {
		result.AccountsVisited++

		known, err := accounts.DistinctTokenIDsForAccount(ctx, account.AccountID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("discovery: known tokens for %s: %w", account.AccountID, err))
			continue
		}
		knownSet := make(map[string]bool, len(known))
		for _, k := range known {
			knownSet[k] = true
		}

		var candidates []string
		snapshot, err := SnapshotIntentsTokens(ctx, rpc, account.AccountID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("discovery: snapshot for %s: %w", account.AccountID, err))
		} else {
			candidates = append(candidates, snapshot...)
		}
		candidates = append(candidates, ExtractFTContractsFromChunk(receipts, account.AccountID)...)

		for _, raw := range candidates {
			if knownSet[raw] {
				continue
			}
			knownSet[raw] = true

			if _, err := seed.Fill(ctx, account.AccountID, tokenid.Parse(raw), upToBlock); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("discovery: seed %s/%s: %w", account.AccountID, raw, err))
				continue
			}
			result.TokensSeeded++
		}
	}

	return result, nil
}
