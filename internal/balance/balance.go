// Package balance unifies the three token_id dialects behind one
// (account, token, block) -> canonical decimal string contract, and absorbs
// the archival node's missing-block retry dance so every other component
// can treat a balance read as a simple, total function of its arguments.
package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/nearwatch/reconciler/internal/decimal"
	"github.com/nearwatch/reconciler/internal/rpcclient"
	"github.com/nearwatch/reconciler/internal/tokenid"
)

// RPCCaller is the narrow slice of rpcclient.Client the balance service
// needs, kept as an interface so tests can exercise routing logic and
// missing-block retries against a fake transport without a real archival
// node.
type RPCCaller interface {
	NativeBalance(ctx context.Context, accountID string, height uint64) (string, error)
	ViewCall(ctx context.Context, contract, method string, args map[string]any, height uint64) (json.RawMessage, error)
}

// MaxMissingBlockRetries bounds how many times BalanceAt decrements the
// requested height after an ErrMissingBlock before giving up.
const MaxMissingBlockRetries = 10

// ErrRPCUnavailable wraps any non-missing-block RPC failure, or missing-block
// exhaustion, surfaced to the caller as fatal for this balance read.
var ErrRPCUnavailable = errors.New("balance: rpc unavailable")

// NativeDecimals is the implied precision of the chain's native token.
const NativeDecimals = 24

// MetadataSource resolves the declared decimals of a fungible-token
// contract, lazily populating the metadata cache on first use.
type MetadataSource interface {
	DecimalsFor(ctx context.Context, contract string) (uint8, error)
}

// Service is the single entry point for point-in-time balance reads across
// all three token dialects.
type Service struct {
	rpc        RPCCaller
	metadata   MetadataSource
	maxRetries int
}

// New constructs a Service over the given RPC client and metadata source,
// defaulting its missing-block retry cap to MaxMissingBlockRetries.
func New(rpc RPCCaller, metadata MetadataSource) *Service {
	return &Service{rpc: rpc, metadata: metadata, maxRetries: MaxMissingBlockRetries}
}

// SetMaxMissingBlockRetries overrides the missing-block retry cap, letting
// callers thread the configured rpc.missingBlockRetries value through
// instead of the package default.
func (s *Service) SetMaxMissingBlockRetries(n int) {
	if n > 0 {
		s.maxRetries = n
	}
}

// BalanceAt returns the canonical decimal balance of account for token_id at
// the given block height, retrying on missing-block responses by
// decrementing the height up to the service's configured retry cap (see
// SetMaxMissingBlockRetries, MaxMissingBlockRetries by default).
func (s *Service) BalanceAt(ctx context.Context, account string, token tokenid.TokenID, height uint64) (string, error) {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		balance, err := s.balanceAtExact(ctx, account, token, height)
		if err == nil {
			return balance, nil
		}
		if !errors.Is(err, rpcclient.ErrMissingBlock) {
			return "", fmt.Errorf("%w: %v", ErrRPCUnavailable, err)
		}
		if attempt == s.maxRetries || height == 0 {
			return "", fmt.Errorf("%w: exhausted %d missing-block retries at height %d", ErrRPCUnavailable, s.maxRetries, height)
		}
		log.Printf("balance: block %d unavailable for %s/%s, retrying at %d", height, account, token.String(), height-1)
		height--
	}
	return "", fmt.Errorf("%w: unreachable", ErrRPCUnavailable)
}

func (s *Service) balanceAtExact(ctx context.Context, account string, token tokenid.TokenID, height uint64) (string, error) {
	switch t := token.(type) {
	case tokenid.Native:
		raw, err := s.rpc.NativeBalance(ctx, account, height)
		if err != nil {
			return "", err
		}
		return decimal.ToDecimal(raw, NativeDecimals)

	case tokenid.Multi:
		result, err := s.rpc.ViewCall(ctx, t.Contract, "balance_of", map[string]any{
			"account_id": account,
			"token_id":   t.SubID,
		}, height)
		if err != nil {
			return "", err
		}
		return unquoteJSONString(result)

	case tokenid.Fungible:
		decimals, err := s.metadata.DecimalsFor(ctx, t.Contract)
		if err != nil {
			return "", fmt.Errorf("balance: resolving decimals for %s: %w", t.Contract, err)
		}
		result, err := s.rpc.ViewCall(ctx, t.Contract, "ft_balance_of", map[string]any{
			"account_id": account,
		}, height)
		if err != nil {
			return "", err
		}
		raw, err := unquoteJSONString(result)
		if err != nil {
			return "", err
		}
		return decimal.ToDecimal(raw, decimals)

	default:
		return "", fmt.Errorf("balance: unrecognized token_id variant %T", token)
	}
}

// BalanceChangeAt returns (before, after) for the given block: the balance
// immediately prior to the block and the balance after it. At height 0
// "before" is defined as "0" since there is no prior block.
func (s *Service) BalanceChangeAt(ctx context.Context, account string, token tokenid.TokenID, height uint64) (before, after string, err error) {
	after, err = s.BalanceAt(ctx, account, token, height)
	if err != nil {
		return "", "", err
	}
	if height == 0 {
		return decimal.Zero, after, nil
	}
	before, err = s.BalanceAt(ctx, account, token, height-1)
	if err != nil {
		return "", "", err
	}
	return before, after, nil
}

// unquoteJSONString strips the surrounding quotes a view call returns for a
// string-typed result (NEP-141/NEP-245 amounts are serialized as JSON
// strings to preserve u128 precision).
func unquoteJSONString(raw []byte) (string, error) {
	s := string(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1], nil
	}
	return "", fmt.Errorf("balance: expected a quoted string amount, got %q", s)
}
