// Package counterparty attributes a balance change's counterparty through
// an ordered chain of resolvers: the account's state-change cause first,
// falling back to a receipt scan over the block's chunks. The first
// resolver to produce an answer wins.
package counterparty

import (
	"context"
	"errors"
	"fmt"

	"github.com/nearwatch/reconciler/internal/rpcclient"
)

// ErrNoReceiptAtBlock is returned when neither the state-change cause nor
// any receipt in the block's chunks targets the account under
// investigation. Strategy C (past-gap reconstruction) catches this and
// transmutes it into a SNAPSHOT insertion; every other strategy instead
// writes the record with counterparty UNKNOWN.
var ErrNoReceiptAtBlock = errors.New("counterparty: no receipt found at block")

// Attribution is the outcome of a successful resolution.
type Attribution struct {
	Counterparty      string
	SignerID          *string
	ReceiverID        *string
	TransactionHashes []string
	ReceiptIDs        []string
}

// RPC is the narrow RPC surface the resolver chain needs.
type RPC interface {
	AccountStateChanges(ctx context.Context, accountID string, height uint64) ([]rpcclient.StateChangeCause, error)
	TxStatus(ctx context.Context, txHash, senderID string) (*rpcclient.TxOutcome, error)
	Chunk(ctx context.Context, chunkHash string) ([]rpcclient.Receipt, error)
}

// Resolve attributes the counterparty for a balance change affecting
// account at height, whose block carries the given chunk hashes.
func Resolve(ctx context.Context, rpc RPC, account string, height uint64, chunkHashes []string) (*Attribution, error) {
	attr, err := resolveFromStateChange(ctx, rpc, account, height)
	if err != nil {
		return nil, err
	}
	if attr != nil {
		return attr, nil
	}
	return resolveFromReceipts(ctx, rpc, account, chunkHashes)
}

// resolveFromStateChange attributes via the account's first state-change
// cause at height, when that cause is a transaction. A ReceiptProcessing
// cause (or any lookup failure) falls through to the receipt scan, with
// signer_id left null since a receipt never carries one.
func resolveFromStateChange(ctx context.Context, rpc RPC, account string, height uint64) (*Attribution, error) {
	causes, err := rpc.AccountStateChanges(ctx, account, height)
	if err != nil {
		return nil, fmt.Errorf("counterparty: account state changes for %s at %d: %w", account, height, err)
	}
	if len(causes) == 0 || !causes[0].IsTransactionProcessing() {
		return nil, nil
	}

	outcome, err := rpc.TxStatus(ctx, causes[0].TxHash, account)
	if err != nil {
		return nil, nil
	}

	cp := outcome.ReceiverID
	if cp == account {
		cp = outcome.SignerID
	}
	return &Attribution{
		Counterparty:      cp,
		SignerID:          nonEmpty(outcome.SignerID),
		ReceiverID:        nonEmpty(outcome.ReceiverID),
		TransactionHashes: []string{causes[0].TxHash},
	}, nil
}

// resolveFromReceipts scans the block's chunks for the first receipt
// targeting account, taking its predecessor_id as the counterparty.
func resolveFromReceipts(ctx context.Context, rpc RPC, account string, chunkHashes []string) (*Attribution, error) {
	for _, chunkHash := range chunkHashes {
		receipts, err := rpc.Chunk(ctx, chunkHash)
		if err != nil {
			return nil, fmt.Errorf("counterparty: chunk %s: %w", chunkHash, err)
		}
		for _, r := range receipts {
			if r.ReceiverID != account {
				continue
			}
			return &Attribution{
				Counterparty: r.PredecessorID,
				ReceiptIDs:   []string{r.ReceiptID},
			}, nil
		}
	}
	return nil, ErrNoReceiptAtBlock
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
