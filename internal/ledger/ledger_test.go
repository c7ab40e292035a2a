package ledger

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/require"
)

func TestRPCErrorMatchesSentinel(t *testing.T) {
	base := errors.New("connection refused")
	err := NewRPCError("get_health", base)

	require.ErrorIs(t, err, ErrChainRPC)
	require.ErrorIs(t, err, base)
	require.Contains(t, err.Error(), "get_health")

	// Wrapping twice keeps the innermost operation.
	again := NewRPCError("poll", fmt.Errorf("step: %w", err))
	var rpcErr *RPCError
	require.ErrorAs(t, again, &rpcErr)
	require.Equal(t, "get_health", rpcErr.Op)

	require.NoError(t, NewRPCError("noop", nil))
}

func sym(s string) xdr.ScVal {
	v := xdr.ScSymbol(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &v}
}

func u64(n uint64) xdr.ScVal {
	v := xdr.Uint64(n)
	return xdr.ScVal{Type: xdr.ScValTypeScvU64, U64: &v}
}

func i128(hi int64, lo uint64) xdr.ScVal {
	v := xdr.Int128Parts{Hi: xdr.Int64(hi), Lo: xdr.Uint64(lo)}
	return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: &v}
}

func bytesVal(b []byte) xdr.ScVal {
	v := xdr.ScBytes(b)
	return xdr.ScVal{Type: xdr.ScValTypeScvBytes, Bytes: &v}
}

func TestScValToInterface(t *testing.T) {
	require.Equal(t, uint64(42), scValToInterface(u64(42)))
	require.Equal(t, "100", scValToInterface(i128(0, 100)))
	require.Equal(t, "18446744073709551616", scValToInterface(i128(1, 0)))
	require.Equal(t, "-1", scValToInterface(i128(-1, math.MaxUint64)))
	require.Equal(t, "0a0b", scValToInterface(bytesVal([]byte{0x0a, 0x0b})))
	require.Equal(t, "PaymentCreated", scValToString(sym("PaymentCreated")))

	entries := xdr.ScMap{
		{Key: sym("payment_id"), Val: u64(7)},
		{Key: sym("amount"), Val: i128(0, 100)},
	}
	m := &entries
	mapVal := xdr.ScVal{Type: xdr.ScValTypeScvMap, Map: &m}

	require.Equal(t, map[string]any{
		"payment_id": uint64(7),
		"amount":     "100",
	}, scValToInterface(mapVal))
}

func TestDecodeEvents(t *testing.T) {
	entries := xdr.ScMap{
		{Key: sym("payment_id"), Val: u64(1)},
	}
	m := &entries

	events := decodeEvents([]xdr.ContractEvent{{
		Body: xdr.ContractEventBody{
			V: 0,
			V0: &xdr.ContractEventV0{
				Topics: []xdr.ScVal{sym("PaymentCreated"), u64(9)},
				Data:   xdr.ScVal{Type: xdr.ScValTypeScvMap, Map: &m},
			},
		},
	}})

	require.Len(t, events, 1)
	require.Equal(t, "unknown::PaymentCreated", events[0].Type)
	require.Equal(t, uint64(1), events[0].Data["payment_id"])
	require.Equal(t, uint64(9), events[0].Data["topic_1"])
}

func TestEventType(t *testing.T) {
	require.Equal(t, "CREG::PaymentClaimed", EventType("CREG", "PaymentClaimed"))
}
