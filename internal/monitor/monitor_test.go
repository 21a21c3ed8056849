package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nearwatch/reconciler/internal/store"
	"github.com/nearwatch/reconciler/internal/tokenid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	accounts     []store.MonitoredAccountRecord
	tokensByAcct map[string][]string
	tokensErr    map[string]error
	synced       map[string]time.Time
}

func (f *fakeStore) EnabledAccounts(ctx context.Context) ([]store.MonitoredAccountRecord, error) {
	return f.accounts, nil
}

func (f *fakeStore) DistinctTokenIDsForAccount(ctx context.Context, accountID string) ([]string, error) {
	if err := f.tokensErr[accountID]; err != nil {
		return nil, err
	}
	return f.tokensByAcct[accountID], nil
}

func (f *fakeStore) StampSynced(ctx context.Context, accountID string, at time.Time) error {
	if f.synced == nil {
		f.synced = map[string]time.Time{}
	}
	f.synced[accountID] = at
	return nil
}

type fakeFiller struct {
	errByToken map[string]error
	calls      []string
}

func (f *fakeFiller) Fill(ctx context.Context, accountID string, token tokenid.TokenID, upToBlock uint64) ([]error, error) {
	f.calls = append(f.calls, accountID+"/"+token.String())
	if err := f.errByToken[token.String()]; err != nil {
		return nil, err
	}
	return nil, nil
}

func TestRunCycle_ProcessesEveryAccountAndToken(t *testing.T) {
	st := &fakeStore{
		accounts: []store.MonitoredAccountRecord{{AccountID: "alice.near"}, {AccountID: "bob.near"}},
		tokensByAcct: map[string][]string{
			"alice.near": {"near", "usdt.near"},
			"bob.near":   {"near"},
		},
	}
	filler := &fakeFiller{}
	m := New(st, filler)

	result, err := m.RunCycle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, result.AccountsVisited)
	assert.Equal(t, 3, result.TokensProcessed)
	assert.Empty(t, result.Errors)
	assert.Len(t, st.synced, 2)
}

func TestRunCycle_SkipsAccountWithNoKnownTokens(t *testing.T) {
	st := &fakeStore{
		accounts:     []store.MonitoredAccountRecord{{AccountID: "alice.near"}},
		tokensByAcct: map[string][]string{},
	}
	filler := &fakeFiller{}
	m := New(st, filler)

	result, err := m.RunCycle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TokensProcessed)
	assert.Empty(t, st.synced, "an account with no known tokens should not be stamped as synced")
}

func TestRunCycle_AccumulatesPerTokenErrorsWithoutAbortingCycle(t *testing.T) {
	st := &fakeStore{
		accounts: []store.MonitoredAccountRecord{{AccountID: "alice.near"}},
		tokensByAcct: map[string][]string{
			"alice.near": {"near", "broken.near"},
		},
	}
	filler := &fakeFiller{errByToken: map[string]error{"broken.near": errors.New("rpc down")}}
	m := New(st, filler)

	result, err := m.RunCycle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TokensProcessed)
	require.Len(t, result.Errors, 1)
	assert.Len(t, st.synced, 1, "at least one token succeeded, so the account is still stamped")
}
