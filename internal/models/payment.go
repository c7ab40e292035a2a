package models

import "time"

// PaymentStatus is the lifecycle state of a stealth payment.
// Transitions are only pending -> claimed and pending -> failed.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusClaimed PaymentStatus = "claimed"
	StatusFailed  PaymentStatus = "failed"
)

// StealthPaymentRecord is the locally indexed view of one on-chain payment
type StealthPaymentRecord struct {
	// Identification
	PaymentID      uint64 `json:"payment_id"`
	StealthAddress string `json:"stealth_address"`

	// Published alongside the payment so the recipient can scan for it
	EphemeralPublic []byte `json:"ephemeral_public"`

	// Value
	Amount   uint64 `json:"amount"`
	CoinType string `json:"coin_type"`

	// Transaction context
	TxHash        string    `json:"tx_hash"`
	LedgerVersion uint64    `json:"ledger_version"`
	CreatedAt     time.Time `json:"created_at"`

	// Lifecycle
	Status        PaymentStatus `json:"status"`
	ClaimedBy     string        `json:"claimed_by,omitempty"`
	ClaimedAt     *time.Time    `json:"claimed_at,omitempty"`
	ClaimTxHash   string        `json:"claim_tx_hash,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
}

// IsFinal reports whether the record can no longer change state.
func (r *StealthPaymentRecord) IsFinal() bool {
	return r.Status == StatusClaimed || r.Status == StatusFailed
}

// PaymentStats summarises the payment table.
type PaymentStats struct {
	Pending     int `json:"pending"`
	Claimed     int `json:"claimed"`
	Failed      int `json:"failed"`
	DeadLetters int `json:"dead_letters"`
}
