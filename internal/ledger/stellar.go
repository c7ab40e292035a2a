package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"stealthpay/internal/integration/rpc_backend"
	"stealthpay/internal/ledger/retry"

	"github.com/stellar/go/clients/rpcclient"
	"github.com/stellar/go/ingest"
	"github.com/stellar/go/ingest/ledgerbackend"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

// StellarClient implements Client on top of a Stellar RPC server. Ledger
// sequence numbers are used as versions.
type StellarClient struct {
	builder           rpc_backend.LedgerBuilder
	rpc               *rpcclient.Client
	networkPassphrase string
	retry             retry.Strategy
}

// NewStellarClient creates a StellarClient. Each GetTransactions call
// prepares its own bounded ledger backend, so concurrent calls for
// different ranges do not share a cursor.
func NewStellarClient(cfg rpc_backend.ClientConfig, strategy retry.Strategy) (*StellarClient, error) {
	builder := rpc_backend.LedgerBuilder{ClientConfig: cfg}
	rpc, err := builder.BuildClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc client: %w", err)
	}
	if strategy == nil {
		strategy = retry.NewNoRetryStrategy()
	}

	return &StellarClient{
		builder:           builder,
		rpc:               rpc,
		networkPassphrase: cfg.NetworkPassphrase,
		retry:             strategy,
	}, nil
}

// GetTip returns the latest ledger known to the RPC server
func (c *StellarClient) GetTip(ctx context.Context) (uint64, error) {
	var tip uint64
	err := c.retry.Execute(ctx, "get_health", func() error {
		health, err := c.rpc.GetHealth(ctx)
		if err != nil {
			return err
		}
		tip = uint64(health.LatestLedger)
		return nil
	})
	if err != nil {
		return 0, NewRPCError("get_health", err)
	}
	return tip, nil
}

// GetTransactions streams ledgers [start, start+limit) and decodes every
// successful Soroban transaction in them
func (c *StellarClient) GetTransactions(ctx context.Context, start uint64, limit uint32) ([]Transaction, error) {
	if limit == 0 {
		return nil, nil
	}
	end := start + uint64(limit) - 1
	if start == 0 || end > math.MaxUint32 {
		return nil, fmt.Errorf("ledger range [%d, %d] is out of bounds", start, end)
	}

	var txs []Transaction
	err := c.retry.Execute(ctx, "get_ledgers", func() error {
		var err error
		txs, err = c.fetchRange(ctx, uint32(start), uint32(end))
		return err
	})
	if err != nil {
		return nil, NewRPCError("get_ledgers", err)
	}
	return txs, nil
}

func (c *StellarClient) fetchRange(ctx context.Context, start, end uint32) ([]Transaction, error) {
	backend, err := c.builder.Build()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			slog.Warn("Failed to close ledger backend", "error", err)
		}
	}()

	if err := backend.PrepareRange(ctx, ledgerbackend.BoundedRange(start, end)); err != nil {
		return nil, fmt.Errorf("failed to prepare range: %w", err)
	}

	var txs []Transaction
	for seq := start; seq <= end; seq++ {
		startTime := time.Now()
		lcm, err := backend.GetLedger(ctx, seq)
		if err != nil {
			return nil, fmt.Errorf("failed to get ledger %d: %w", seq, err)
		}

		ledgerTxs, err := c.decodeLedger(lcm)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ledger %d: %w", seq, err)
		}
		txs = append(txs, ledgerTxs...)

		slog.Debug("Ledger fetched",
			"sequence", seq,
			"soroban_txs", len(ledgerTxs),
			"fetch_ms", time.Since(startTime).Milliseconds(),
		)
	}
	return txs, nil
}

// decodeLedger turns a LedgerCloseMeta into Transactions
func (c *StellarClient) decodeLedger(lcm xdr.LedgerCloseMeta) ([]Transaction, error) {
	reader, err := ingest.NewLedgerTransactionReaderFromLedgerCloseMeta(c.networkPassphrase, lcm)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction reader: %w", err)
	}
	defer reader.Close()

	sequence := uint64(lcm.LedgerSequence())
	closedAt := lcm.ClosedAt()

	var txs []Transaction
	for {
		tx, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read transaction: %w", err)
		}

		if !tx.Successful() || !tx.IsSorobanTx() {
			continue
		}

		decoded := Transaction{
			Hash:      tx.Hash.HexString(),
			Version:   sequence,
			Timestamp: closedAt,
			Payload:   Payload{Targets: footprintContractIDs(tx)},
		}

		events, err := tx.GetContractEvents()
		if err != nil {
			slog.Warn("Failed to read contract events",
				"ledger", sequence,
				"tx_hash", decoded.Hash,
				"error", err,
			)
			decoded.DecodeError = err
		} else {
			decoded.Events = decodeEvents(events)
		}

		txs = append(txs, decoded)
	}
	return txs, nil
}

// footprintContractIDs extracts all contract IDs from the transaction footprint
func footprintContractIDs(tx ingest.LedgerTransaction) []string {
	var contractIDs []string
	seen := make(map[string]bool)

	sorobanData, ok := tx.GetSorobanData()
	if !ok {
		return contractIDs
	}

	extractFromKey := func(ledgerKey xdr.LedgerKey) {
		contractData, ok := ledgerKey.GetContractData()
		if !ok {
			return
		}
		contractID, err := contractData.Contract.String()
		if err != nil || contractID == "" || seen[contractID] {
			return
		}
		contractIDs = append(contractIDs, contractID)
		seen[contractID] = true
	}

	for _, ledgerKey := range sorobanData.Resources.Footprint.ReadWrite {
		extractFromKey(ledgerKey)
	}
	for _, ledgerKey := range sorobanData.Resources.Footprint.ReadOnly {
		extractFromKey(ledgerKey)
	}
	return contractIDs
}

// decodeEvents converts XDR contract events into Events typed
// "<contract strkey>::<first topic>"
func decodeEvents(events []xdr.ContractEvent) []Event {
	result := make([]Event, 0, len(events))
	for i, event := range events {
		contractID := "unknown"
		if event.ContractId != nil {
			raw, err := event.ContractId.MarshalBinary()
			if err == nil && len(raw) == 32 {
				if encoded, err := strkey.Encode(strkey.VersionByteContract, raw); err == nil {
					contractID = encoded
				}
			}
		}

		name := "unknown"
		topics := event.Body.V0.Topics
		if len(topics) > 0 {
			name = scValToString(topics[0])
		}

		data := map[string]any{}
		switch parsed := scValToInterface(event.Body.V0.Data).(type) {
		case map[string]any:
			data = parsed
		case nil:
		default:
			data["value"] = parsed
		}
		// Remaining topics are kept positionally for indexed fields.
		for j := 1; j < len(topics); j++ {
			data[fmt.Sprintf("topic_%d", j)] = scValToInterface(topics[j])
		}

		result = append(result, Event{
			Type:  EventType(contractID, name),
			Index: i,
			Data:  data,
		})
	}
	return result
}
