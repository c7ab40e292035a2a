package orchestrator

import (
	"context"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"stealthpay/internal/extraction"
	"stealthpay/internal/indexer"
	"stealthpay/internal/ledger"
	"stealthpay/internal/models"
	"stealthpay/internal/stealth"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

const registry = "CREGISTRY"

// memLedger is a minimal in-memory ledger.Client
type memLedger struct {
	mu  sync.Mutex
	tip uint64
	txs map[uint64][]ledger.Transaction
}

func (m *memLedger) GetTip(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tip, nil
}

func (m *memLedger) GetTransactions(ctx context.Context, start uint64, limit uint32) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Transaction
	for v := start; v < start+uint64(limit); v++ {
		out = append(out, m.txs[v]...)
	}
	return out, nil
}

func (m *memLedger) publish(tx ledger.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.Version] = append(m.txs[tx.Version], tx)
	if tx.Version > m.tip {
		m.tip = tx.Version
	}
}

func TestSendScanClaim(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	chain := &memLedger{tip: 10, txs: make(map[uint64][]ledger.Transaction)}

	ix := indexer.New(indexer.Config{
		PollTimeout:    10 * time.Second,
		BatchSize:      5,
		LookbackWindow: 10,
		FetchWorkers:   2,
		Clock:          clock.NewTestClock(testTime),
	}, chain, store, extraction.NewExtractor(registry))

	// The recipient publishes meta keys; the sender only sees the public half.
	alice := newUser(t, "alice", "1234", "sigA")
	published := alice.MetaKeys.Public()

	sa, err := stealth.NewDeriver().DeriveStealthAddress(published.ScanPublic[:], published.SpendPublic[:])
	require.NoError(t, err)

	chain.publish(ledger.Transaction{
		Hash:      "send-tx",
		Version:   12,
		Timestamp: testTime,
		Payload:   ledger.Payload{Targets: []string{registry}},
		Events: []ledger.Event{{
			Type: ledger.EventType(registry, extraction.PaymentCreatedEvent),
			Data: map[string]any{
				"payment_id":        uint64(1),
				"stealth_address":   sa.Address,
				"ephemeral_pub_key": hex.EncodeToString(sa.EphemeralPublic[:]),
				"amount":            uint64(100),
				"coin_type":         "coinX",
			},
		}},
	})
	require.NoError(t, ix.PollOnce(ctx))

	o := newTestOrchestrator(store, &fakeSubmitter{})

	owned, err := o.ScanForClaimablePayments(ctx, alice)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, uint64(100), owned[0].Amount)
	require.Equal(t, "coinX", owned[0].CoinType)

	bob := newUser(t, "bob", "5678", "sigB")
	notBob, err := o.ScanForClaimablePayments(ctx, bob)
	require.NoError(t, err)
	require.Empty(t, notBob)

	req := ClaimRequest{
		User:            alice,
		PaymentID:       owned[0].PaymentID,
		StealthAddress:  owned[0].StealthAddress,
		EphemeralPublic: owned[0].EphemeralPublic,
	}
	result, err := o.ClaimPayment(ctx, req)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, uint64(100), result.Amount)

	_, err = o.ClaimPayment(ctx, req)
	require.ErrorIs(t, err, ErrClaimConflict)

	// The ledger later reports the same claim; replaying it changes nothing.
	chain.publish(ledger.Transaction{
		Hash:    result.TxHash,
		Version: 15,
		Events: []ledger.Event{{
			Type: ledger.EventType(registry, extraction.PaymentClaimedEvent),
			Data: map[string]any{
				"payment_id":      uint64(1),
				"stealth_address": sa.Address,
				"claimed_by":      alice.Address,
			},
		}},
	})
	require.NoError(t, ix.PollOnce(ctx))

	record, err := store.GetPayment(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.StatusClaimed, record.Status)
	require.Equal(t, result.TxHash, record.ClaimTxHash)

	owned, err = o.ScanForClaimablePayments(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, owned)
}
