// Package metadata is the Counterparty Store: it lazily resolves and caches
// each fungible-token contract's declared decimals (and the rest of its
// ft_metadata payload), so the balance service never has to guess a token's
// precision twice.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nearwatch/reconciler/internal/store"
)

// RPCViewer is the narrow RPC surface this package needs: a finality-pinned
// view call, used for ft_metadata.
type RPCViewer interface {
	ViewCallFinal(ctx context.Context, contract, method string, args map[string]any) (json.RawMessage, error)
}

// Persistence is the narrow store surface this package needs.
type Persistence interface {
	CounterpartyByAccountID(ctx context.Context, accountID string) (*store.CounterpartyRecord, error)
	UpsertCounterparty(ctx context.Context, rec *store.CounterpartyRecord) error
}

// Cache is the metadata cache / counterparty store.
type Cache struct {
	rpc RPCViewer
	db  Persistence
	now func() time.Time
}

// New constructs a Cache over the given RPC viewer and persistence layer.
func New(rpc RPCViewer, db Persistence) *Cache {
	return &Cache{rpc: rpc, db: db, now: time.Now}
}

type ftMetadataResult struct {
	Spec     string `json:"spec"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Icon     string `json:"icon"`
	Decimals uint8  `json:"decimals"`
}

// DecimalsFor returns the declared decimals of contract, persisting the full
// ft_metadata payload on first resolution.
func (c *Cache) DecimalsFor(ctx context.Context, contract string) (uint8, error) {
	existing, err := c.db.CounterpartyByAccountID(ctx, contract)
	if err != nil {
		return 0, fmt.Errorf("metadata: lookup cached metadata for %s: %w", contract, err)
	}
	if existing != nil {
		return existing.TokenDecimals, nil
	}

	raw, err := c.rpc.ViewCallFinal(ctx, contract, "ft_metadata", nil)
	if err != nil {
		return 0, fmt.Errorf("metadata: ft_metadata view call on %s: %w", contract, err)
	}
	var meta ftMetadataResult
	if err := json.Unmarshal(raw, &meta); err != nil {
		return 0, fmt.Errorf("metadata: parse ft_metadata response from %s: %w", contract, err)
	}

	rec := &store.CounterpartyRecord{
		AccountID:      contract,
		AccountType:    store.AccountTypeFTToken,
		TokenSymbol:    meta.Symbol,
		TokenName:      meta.Name,
		TokenDecimals:  meta.Decimals,
		TokenIcon:      meta.Icon,
		LastVerifiedAt: c.now(),
	}
	if err := c.db.UpsertCounterparty(ctx, rec); err != nil {
		return 0, fmt.Errorf("metadata: persist metadata for %s: %w", contract, err)
	}
	return meta.Decimals, nil
}
