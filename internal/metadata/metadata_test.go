package metadata

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nearwatch/reconciler/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPCViewer struct {
	calls    int
	response string
}

func (f *fakeRPCViewer) ViewCallFinal(ctx context.Context, contract, method string, args map[string]any) (json.RawMessage, error) {
	f.calls++
	return json.RawMessage(f.response), nil
}

type fakePersistence struct {
	records map[string]*store.CounterpartyRecord
}

func (f *fakePersistence) CounterpartyByAccountID(ctx context.Context, accountID string) (*store.CounterpartyRecord, error) {
	return f.records[accountID], nil
}

func (f *fakePersistence) UpsertCounterparty(ctx context.Context, rec *store.CounterpartyRecord) error {
	if f.records == nil {
		f.records = map[string]*store.CounterpartyRecord{}
	}
	f.records[rec.AccountID] = rec
	return nil
}

func TestDecimalsFor_FetchesAndCachesOnMiss(t *testing.T) {
	rpc := &fakeRPCViewer{response: `{"spec":"ft-1.0.0","name":"Ariz Credits","symbol":"ARIZ","icon":"","decimals":6}`}
	db := &fakePersistence{}
	cache := New(rpc, db)

	decimals, err := cache.DecimalsFor(context.Background(), "arizcredits.near")
	require.NoError(t, err)
	assert.Equal(t, uint8(6), decimals)
	assert.Equal(t, 1, rpc.calls)

	rec := db.records["arizcredits.near"]
	require.NotNil(t, rec)
	assert.Equal(t, "ARIZ", rec.TokenSymbol)
	assert.Equal(t, store.AccountTypeFTToken, rec.AccountType)
}

func TestDecimalsFor_CacheHitSkipsRPC(t *testing.T) {
	rpc := &fakeRPCViewer{response: `{"decimals":6}`}
	db := &fakePersistence{records: map[string]*store.CounterpartyRecord{
		"arizcredits.near": {AccountID: "arizcredits.near", TokenDecimals: 6},
	}}
	cache := New(rpc, db)

	decimals, err := cache.DecimalsFor(context.Background(), "arizcredits.near")
	require.NoError(t, err)
	assert.Equal(t, uint8(6), decimals)
	assert.Equal(t, 0, rpc.calls)
}
