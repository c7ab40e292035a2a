package models

import "time"

// EventKind distinguishes the two registry events the indexer stores.
type EventKind string

const (
	EventPaymentCreated EventKind = "created"
	EventPaymentClaimed EventKind = "claimed"
)

// PaymentEvent is a typed registry event. It is stored keyed by
// (PaymentID, Kind) so replays overwrite rather than duplicate.
type PaymentEvent struct {
	PaymentID uint64    `json:"payment_id"`
	Kind      EventKind `json:"kind"`

	StealthAddress string `json:"stealth_address"`

	// PaymentCreated only
	EphemeralPublic []byte `json:"ephemeral_public,omitempty"`
	Amount          uint64 `json:"amount,omitempty"`
	CoinType        string `json:"coin_type,omitempty"`

	// PaymentClaimed only
	ClaimedBy string `json:"claimed_by,omitempty"`

	// Transaction context
	TxHash        string    `json:"tx_hash"`
	LedgerVersion uint64    `json:"ledger_version"`
	EventIndex    int       `json:"event_index"`
	Timestamp     time.Time `json:"timestamp"`
}

// DeadLetter records a stealth-related transaction that could not be
// decoded. The indexer never advances its checkpoint past such a
// transaction without writing one.
type DeadLetter struct {
	TxHash        string    `json:"tx_hash"`
	LedgerVersion uint64    `json:"ledger_version"`
	EventType     string    `json:"event_type"`
	Reason        string    `json:"reason"`
	Payload       []byte    `json:"payload,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Batch is the unit of work the indexer commits atomically.
type Batch struct {
	FromVersion uint64
	ToVersion   uint64
	Events      []PaymentEvent
	DeadLetters []DeadLetter

	// Checkpoint, when set, is persisted in the same transaction as the
	// events above.
	Checkpoint *uint64
}
