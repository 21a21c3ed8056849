package counterparty

import (
	"context"
	"errors"
	"testing"

	"github.com/nearwatch/reconciler/internal/rpcclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct {
	causes        []rpcclient.StateChangeCause
	causesErr     error
	txOutcome     *rpcclient.TxOutcome
	txErr         error
	receiptsByHash map[string][]rpcclient.Receipt
}

func (f *fakeRPC) AccountStateChanges(ctx context.Context, accountID string, height uint64) ([]rpcclient.StateChangeCause, error) {
	return f.causes, f.causesErr
}

func (f *fakeRPC) TxStatus(ctx context.Context, txHash, senderID string) (*rpcclient.TxOutcome, error) {
	return f.txOutcome, f.txErr
}

func (f *fakeRPC) Chunk(ctx context.Context, chunkHash string) ([]rpcclient.Receipt, error) {
	return f.receiptsByHash[chunkHash], nil
}

func TestResolve_FromTransactionProcessing(t *testing.T) {
	rpc := &fakeRPC{
		causes:    []rpcclient.StateChangeCause{{Type: "transaction_processing", TxHash: "tx1"}},
		txOutcome: &rpcclient.TxOutcome{SignerID: "alice.near", ReceiverID: "bob.near"},
	}

	attr, err := Resolve(context.Background(), rpc, "alice.near", 100, nil)
	require.NoError(t, err)
	assert.Equal(t, "bob.near", attr.Counterparty)
	assert.Equal(t, []string{"tx1"}, attr.TransactionHashes)
	require.NotNil(t, attr.SignerID)
	assert.Equal(t, "alice.near", *attr.SignerID)
}

func TestResolve_CounterpartyIsWhicheverIsNotAccount(t *testing.T) {
	rpc := &fakeRPC{
		causes:    []rpcclient.StateChangeCause{{Type: "transaction_processing", TxHash: "tx1"}},
		txOutcome: &rpcclient.TxOutcome{SignerID: "bob.near", ReceiverID: "alice.near"},
	}

	attr, err := Resolve(context.Background(), rpc, "alice.near", 100, nil)
	require.NoError(t, err)
	assert.Equal(t, "bob.near", attr.Counterparty)
}

func TestResolve_ReceiptProcessingFallsThroughToReceiptScan(t *testing.T) {
	rpc := &fakeRPC{
		causes: []rpcclient.StateChangeCause{{Type: "receipt_processing", ReceiptHash: "rh1"}},
		receiptsByHash: map[string][]rpcclient.Receipt{
			"chunk1": {{PredecessorID: "carol.near", ReceiverID: "alice.near", ReceiptID: "r1"}},
		},
	}

	attr, err := Resolve(context.Background(), rpc, "alice.near", 100, []string{"chunk1"})
	require.NoError(t, err)
	assert.Equal(t, "carol.near", attr.Counterparty)
	assert.Nil(t, attr.SignerID, "signer_id must be left null when attributed from a receipt")
	assert.Equal(t, []string{"r1"}, attr.ReceiptIDs)
}

func TestResolve_NoReceiptTargetingAccountFails(t *testing.T) {
	rpc := &fakeRPC{
		receiptsByHash: map[string][]rpcclient.Receipt{
			"chunk1": {{PredecessorID: "carol.near", ReceiverID: "someone-else.near", ReceiptID: "r1"}},
		},
	}

	_, err := Resolve(context.Background(), rpc, "alice.near", 100, []string{"chunk1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoReceiptAtBlock))
}

func TestResolve_TxLookupFailureFallsBackToReceipts(t *testing.T) {
	rpc := &fakeRPC{
		causes: []rpcclient.StateChangeCause{{Type: "transaction_processing", TxHash: "tx1"}},
		txErr:  errors.New("tx not found"),
		receiptsByHash: map[string][]rpcclient.Receipt{
			"chunk1": {{PredecessorID: "carol.near", ReceiverID: "alice.near", ReceiptID: "r1"}},
		},
	}

	attr, err := Resolve(context.Background(), rpc, "alice.near", 100, []string{"chunk1"})
	require.NoError(t, err)
	assert.Equal(t, "carol.near", attr.Counterparty)
}
