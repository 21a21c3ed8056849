// Package rpcclient talks to a NEAR-like archival JSON-RPC node: point-in-time
// account/contract reads, block and chunk lookups, transaction status, and
// account-level state-change causes. It is built directly on
// github.com/ethereum/go-ethereum/rpc, the transport-agnostic JSON-RPC 2.0
// client underneath go-ethereum's own ethclient — nothing EVM-specific is
// imported here.
package rpcclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	ethrpc "github.com/ethereum/go-ethereum/rpc"
)

// ErrMissingBlock is returned when the archival node reports the requested
// height is not available. Callers apply the retry-with-decrement policy;
// this package never retries on its own.
var ErrMissingBlock = errors.New("rpcclient: block not available at requested height")

// Client is a thin, context-aware wrapper over the node's JSON-RPC surface.
type Client struct {
	rpc *ethrpc.Client
}

// Dial connects to the archival RPC endpoint.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	c, err := ethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: dial %s: %w", endpoint, err)
	}
	return &Client{rpc: c}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// isMissingBlock detects the node's "unknown block" signal by substring
// match on the error text, the only interface the archival node exposes for
// this condition.
func isMissingBlock(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "422") || strings.Contains(msg, "UnknownBlock")
}

func wrapErr(err error, format string, args ...any) error {
	if isMissingBlock(err) {
		return ErrMissingBlock
	}
	return fmt.Errorf("rpcclient: "+format+": %w", append(args, err)...)
}

// BlockHeader is the subset of a block header the core needs.
type BlockHeader struct {
	Hash        string `json:"hash"`
	Height      uint64 `json:"height"`
	TimestampNs int64  `json:"timestamp_nanosec,string"`
}

type blockResult struct {
	Header BlockHeader `json:"header"`
	Chunks []struct {
		ChunkHash string `json:"chunk_hash"`
	} `json:"chunks"`
}

// Block returns the header and the chunk hashes for the given height.
func (c *Client) Block(ctx context.Context, height uint64) (*BlockHeader, []string, error) {
	var res blockResult
	if err := c.rpc.CallContext(ctx, &res, "block", map[string]any{"block_id": height}); err != nil {
		return nil, nil, wrapErr(err, "block(%d)", height)
	}
	hashes := make([]string, 0, len(res.Chunks))
	for _, ch := range res.Chunks {
		hashes = append(hashes, ch.ChunkHash)
	}
	return &res.Header, hashes, nil
}

// LatestBlockHeight returns the chain's current finalized block height, the
// default "up to" bound for a monitor cycle when no explicit height is
// requested.
func (c *Client) LatestBlockHeight(ctx context.Context) (uint64, error) {
	var res blockResult
	if err := c.rpc.CallContext(ctx, &res, "block", map[string]any{"finality": "final"}); err != nil {
		return 0, wrapErr(err, "latest_block_height")
	}
	return res.Header.Height, nil
}

// FunctionCallAction is the subset of a receipt action this engine inspects:
// the method name, used by token discovery's receipt scan.
type FunctionCallAction struct {
	MethodName string `json:"method_name"`
}

// ReceiptAction is one entry of a receipt's action list. Only the
// FunctionCall variant is populated for this engine's purposes; other
// variants (CreateAccount, Transfer, ...) are left as a nil FunctionCall.
type ReceiptAction struct {
	FunctionCall *FunctionCallAction `json:"FunctionCall,omitempty"`
}

// Receipt is the subset of a chunk's receipt the core inspects for
// counterparty attribution and token discovery.
type Receipt struct {
	PredecessorID string `json:"predecessor_id"`
	ReceiverID    string `json:"receiver_id"`
	ReceiptID     string `json:"receipt_id"`
	Receipt       struct {
		Action *struct {
			Actions []ReceiptAction `json:"actions"`
		} `json:"Action,omitempty"`
	} `json:"receipt"`
}

// Actions returns the receipt's action list, or nil if this receipt carries
// a Data variant rather than an Action variant.
func (r Receipt) Actions() []ReceiptAction {
	if r.Receipt.Action == nil {
		return nil
	}
	return r.Receipt.Action.Actions
}

type chunkResult struct {
	Receipts []Receipt `json:"receipts"`
}

// Chunk returns the receipts carried by the given chunk hash.
func (c *Client) Chunk(ctx context.Context, chunkHash string) ([]Receipt, error) {
	var res chunkResult
	if err := c.rpc.CallContext(ctx, &res, "chunk", map[string]any{"chunk_id": chunkHash}); err != nil {
		return nil, wrapErr(err, "chunk(%s)", chunkHash)
	}
	return res.Receipts, nil
}

// StateChangeCause is the cause of one account-level state change, as
// reported by EXPERIMENTAL_changes.
type StateChangeCause struct {
	Type        string `json:"type"`
	TxHash      string `json:"tx_hash,omitempty"`
	ReceiptHash string `json:"receipt_hash,omitempty"`
}

// IsTransactionProcessing reports whether this cause names a transaction
// directly, the strongest signal for counterparty attribution.
func (c StateChangeCause) IsTransactionProcessing() bool {
	return c.Type == "transaction_processing" && c.TxHash != ""
}

type stateChangeEntry struct {
	Cause StateChangeCause `json:"cause"`
}

type changesResult struct {
	Changes []stateChangeEntry `json:"changes"`
}

// AccountStateChanges returns, in RPC-reported order, the causes of every
// state change applied to accountID at the given height.
func (c *Client) AccountStateChanges(ctx context.Context, accountID string, height uint64) ([]StateChangeCause, error) {
	var res changesResult
	params := map[string]any{
		"changes_type": "account_changes",
		"account_ids":  []string{accountID},
		"block_id":     height,
	}
	if err := c.rpc.CallContext(ctx, &res, "EXPERIMENTAL_changes", params); err != nil {
		return nil, wrapErr(err, "account_state_changes(%s, %d)", accountID, height)
	}
	causes := make([]StateChangeCause, 0, len(res.Changes))
	for _, e := range res.Changes {
		causes = append(causes, e.Cause)
	}
	return causes, nil
}

// TxOutcome is the subset of a final transaction execution outcome the core
// needs for counterparty attribution.
type TxOutcome struct {
	SignerID   string
	ReceiverID string
}

type txStatusResult struct {
	Transaction struct {
		SignerID   string `json:"signer_id"`
		ReceiverID string `json:"receiver_id"`
	} `json:"transaction"`
}

// TxStatus fetches the final outcome of txHash, sent by senderID.
func (c *Client) TxStatus(ctx context.Context, txHash, senderID string) (*TxOutcome, error) {
	var res txStatusResult
	if err := c.rpc.CallContext(ctx, &res, "tx", []any{txHash, senderID}); err != nil {
		return nil, wrapErr(err, "tx_status(%s)", txHash)
	}
	return &TxOutcome{SignerID: res.Transaction.SignerID, ReceiverID: res.Transaction.ReceiverID}, nil
}

type viewAccountResult struct {
	Amount string `json:"amount"`
}

// NativeBalance returns the raw yocto-NEAR balance of accountID at height.
func (c *Client) NativeBalance(ctx context.Context, accountID string, height uint64) (string, error) {
	var res viewAccountResult
	params := map[string]any{
		"request_type": "view_account",
		"block_id":     height,
		"account_id":   accountID,
	}
	if err := c.rpc.CallContext(ctx, &res, "query", params); err != nil {
		return "", wrapErr(err, "native_balance(%s, %d)", accountID, height)
	}
	return res.Amount, nil
}

// resultBytes decodes a "call_function" view result, which the node encodes
// as a JSON array of byte values rather than a base64 string.
type resultBytes []byte

func (b *resultBytes) UnmarshalJSON(data []byte) error {
	var nums []byte
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	nums = make([]byte, len(raw))
	for i, n := range raw {
		nums[i] = byte(n)
	}
	*b = nums
	return nil
}

type viewCallResult struct {
	Result resultBytes `json:"result"`
}

// ViewCall performs a read-only contract call against contract.method at the
// given height, returning the JSON-encoded return value.
func (c *Client) ViewCall(ctx context.Context, contract, method string, args map[string]any, height uint64) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: marshal view-call args for %s.%s: %w", contract, method, err)
	}
	params := map[string]any{
		"request_type": "call_function",
		"block_id":     height,
		"account_id":   contract,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(argsJSON),
	}
	var res viewCallResult
	if err := c.rpc.CallContext(ctx, &res, "query", params); err != nil {
		return nil, wrapErr(err, "view_call(%s.%s, %d)", contract, method, height)
	}
	return json.RawMessage(res.Result), nil
}

// ViewCallFinal performs a read-only contract call against the latest
// finalized state rather than a pinned historical height. The metadata
// cache uses this for ft_metadata lookups, which don't need to be tied to
// any particular block.
func (c *Client) ViewCallFinal(ctx context.Context, contract, method string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: marshal view-call args for %s.%s: %w", contract, method, err)
	}
	params := map[string]any{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   contract,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(argsJSON),
	}
	var res viewCallResult
	if err := c.rpc.CallContext(ctx, &res, "query", params); err != nil {
		return nil, wrapErr(err, "view_call_final(%s.%s)", contract, method)
	}
	return json.RawMessage(res.Result), nil
}
