package orchestrator

import (
	"context"
	"encoding/binary"
	"errors"
)

// ClaimMessageDomain prefixes every signed claim message
const ClaimMessageDomain = "stealthpay/claim/v1"

var (
	// ErrClaimConflict is returned when the payment is no longer pending.
	// From the caller's side it is an idempotent no-op.
	ErrClaimConflict = errors.New("payment already claimed")

	// ErrClaimVerification is returned when the caller cannot prove
	// ownership of the stealth address
	ErrClaimVerification = errors.New("claim ownership verification failed")

	// ErrClaimRejected is returned by a Submitter when the ledger refused
	// this claim transaction. The payment itself may still be claimable,
	// or may have been claimed by a concurrent transaction.
	ErrClaimRejected = errors.New("claim rejected by ledger")

	// ErrPaymentUnclaimable is returned by a Submitter when the ledger
	// reports that the payment can never be claimed, e.g. it was
	// refunded or expired
	ErrPaymentUnclaimable = errors.New("payment can no longer be claimed")
)

// ClaimTransaction is the signed claim handed to the ledger. Signature is
// an Ed25519 signature by the one-time key over Message.
type ClaimTransaction struct {
	PaymentID      uint64
	StealthAddress string
	Destination    string
	CoinType       string
	Amount         uint64

	StealthPublic []byte
	Message       []byte
	Signature     []byte
}

// Receipt confirms an accepted claim
type Receipt struct {
	TxHash        string
	LedgerVersion uint64
}

// Submitter publishes claim transactions. SubmitClaim returns only after
// the ledger confirmed the claim. A refused transaction fails with
// ErrClaimRejected; ErrPaymentUnclaimable is reserved for payments the
// ledger reports as terminally unclaimable.
type Submitter interface {
	SubmitClaim(ctx context.Context, tx *ClaimTransaction) (*Receipt, error)
}

// SubmitterFunc adapts a function to the Submitter interface
type SubmitterFunc func(ctx context.Context, tx *ClaimTransaction) (*Receipt, error)

// SubmitClaim calls f(ctx, tx)
func (f SubmitterFunc) SubmitClaim(ctx context.Context, tx *ClaimTransaction) (*Receipt, error) {
	return f(ctx, tx)
}

// ClaimMessage builds the byte string signed for a claim:
//
//	domain || u64be(paymentID) || lp(stealthAddress) || lp(destination) ||
//	lp(coinType) || u64be(amount)
//
// where lp(x) is u32be(len(x)) || x.
func ClaimMessage(paymentID uint64, stealthAddress, destination, coinType string, amount uint64) []byte {
	size := len(ClaimMessageDomain) + 8 + 4 + len(stealthAddress) + 4 + len(destination) + 4 + len(coinType) + 8
	msg := make([]byte, 0, size)

	msg = append(msg, ClaimMessageDomain...)
	msg = binary.BigEndian.AppendUint64(msg, paymentID)
	for _, field := range []string{stealthAddress, destination, coinType} {
		msg = binary.BigEndian.AppendUint32(msg, uint32(len(field)))
		msg = append(msg, field...)
	}
	msg = binary.BigEndian.AppendUint64(msg, amount)
	return msg
}
