// Package ledger abstracts the append-only ledger the indexer reads from.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrChainRPC classifies transient ledger and network failures. They are
// retried at the indexer's poll cadence or surfaced to an interactive
// caller for a manual retry.
var ErrChainRPC = errors.New("chain rpc error")

// RPCError wraps a failed ledger call with the operation that failed
type RPCError struct {
	Op  string
	Err error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("chain rpc %s: %v", e.Op, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// Is makes every RPCError match ErrChainRPC.
func (e *RPCError) Is(target error) bool {
	return target == ErrChainRPC
}

// NewRPCError wraps err, leaving nil untouched.
func NewRPCError(op string, err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return err
	}
	return &RPCError{Op: op, Err: err}
}

// Client is the narrow view of the ledger the core needs
type Client interface {
	// GetTip returns the latest closed version.
	GetTip(ctx context.Context) (uint64, error)

	// GetTransactions returns the successful transactions whose version is
	// in [start, start+limit), in version order.
	GetTransactions(ctx context.Context, start uint64, limit uint32) ([]Transaction, error)
}

// Transaction is a ledger transaction together with its emitted events
type Transaction struct {
	Hash      string
	Version   uint64
	Timestamp time.Time
	Payload   Payload
	Events    []Event

	// DecodeError is set when the events could not be read. Consumers
	// must not treat such a transaction as event-free.
	DecodeError error
}

// Payload describes what the transaction called.
type Payload struct {
	// Targets are the modules/contracts the transaction touched
	Targets []string
	// Function is the invoked entry point when the ledger exposes it
	Function string
}

// Event is a decoded event emitted by a transaction
type Event struct {
	// Type is "<module>::<name>", e.g. "CABC...::PaymentCreated"
	Type  string
	Index int
	Data  map[string]any
}

// EventType joins a module and an event name the way Event.Type does.
func EventType(module, name string) string {
	return module + "::" + name
}
