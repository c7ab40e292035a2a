// Package orchestrator finds a user's stealth payments in the event store
// and claims them.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stealthpay/internal/keys"
	"stealthpay/internal/ledger"
	"stealthpay/internal/metrics"
	"stealthpay/internal/models"
	"stealthpay/internal/stealth"
	"stealthpay/internal/storage"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stellar/go/keypair"
)

// User is the recipient on whose behalf claims run
type User struct {
	ID string
	// Address receives the claimed funds
	Address  string
	MetaKeys *keys.MetaKeyPair
}

// ClaimRequest asks to claim one payment
type ClaimRequest struct {
	User            *User
	PaymentID       uint64
	StealthAddress  string
	EphemeralPublic []byte
}

// ClaimResult describes a successful claim
type ClaimResult struct {
	PaymentID uint64    `json:"payment_id"`
	Success   bool      `json:"success"`
	TxHash    string    `json:"tx_hash"`
	ClaimedBy string    `json:"claimed_by"`
	ClaimedAt time.Time `json:"claimed_at"`
	Amount    uint64    `json:"amount"`
	CoinType  string    `json:"coin_type"`
}

// Config contains optional ClaimOrchestrator settings
type Config struct {
	SubmitTimeout time.Duration
	Deriver       *stealth.Deriver
	Clock         clock.Clock
}

// ClaimOrchestrator scans and claims stealth payments. It holds no
// per-payment state; exclusivity comes from the store's conditional
// update, so any number of instances may run.
type ClaimOrchestrator struct {
	store         storage.EventStore
	submitter     Submitter
	deriver       *stealth.Deriver
	clock         clock.Clock
	submitTimeout time.Duration
}

// New creates a ClaimOrchestrator
func New(store storage.EventStore, submitter Submitter, cfg Config) *ClaimOrchestrator {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 60 * time.Second
	}
	if cfg.Deriver == nil {
		cfg.Deriver = stealth.NewDeriver()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &ClaimOrchestrator{
		store:         store,
		submitter:     submitter,
		deriver:       cfg.Deriver,
		clock:         cfg.Clock,
		submitTimeout: cfg.SubmitTimeout,
	}
}

// ScanForClaimablePayments returns the pending payments owned by user.
// Every pending payment is tested, so the cost grows with the pending set.
func (o *ClaimOrchestrator) ScanForClaimablePayments(ctx context.Context, user *User) ([]*models.StealthPaymentRecord, error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}()

	pending, err := o.store.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}

	var owned []*models.StealthPaymentRecord
	for _, record := range pending {
		ok, err := o.deriver.IsOwner(user.MetaKeys, record.EphemeralPublic, record.StealthAddress)
		if err != nil {
			// A bad ephemeral key on one record says nothing about
			// the others.
			slog.Debug("Skipping payment with unusable ephemeral key",
				"payment_id", record.PaymentID,
				"error", err,
			)
			continue
		}
		if ok {
			owned = append(owned, record)
		}
	}

	slog.Debug("Scanned pending payments",
		"user", user.ID,
		"pending", len(pending),
		"owned", len(owned),
	)
	return owned, nil
}

// ClaimPayment proves ownership of a pending payment, submits the signed
// claim and records it once the ledger confirms. At most one claim per
// payment succeeds; the others get ErrClaimConflict.
func (o *ClaimOrchestrator) ClaimPayment(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	result, err := o.claim(ctx, req)
	metrics.Claims.WithLabelValues(claimOutcome(err)).Inc()
	return result, err
}

func (o *ClaimOrchestrator) claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	if err := validateUser(req.User); err != nil {
		return nil, err
	}

	record, err := o.store.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: payment %d is %s", ErrClaimConflict, record.PaymentID, record.Status)
	}

	if err := o.verifyOwnership(req, record); err != nil {
		slog.Warn("Rejected claim: ownership proof mismatch, possible spoofing",
			"payment_id", req.PaymentID,
			"user", req.User.ID,
			"error", err,
		)
		return nil, err
	}

	tx, err := o.buildClaim(req.User, record)
	if err != nil {
		return nil, err
	}

	receipt, err := o.submit(ctx, tx)
	if err != nil {
		return nil, err
	}

	claimedAt := o.clock.Now()
	err = o.store.MarkClaimed(ctx, record.PaymentID, req.User.Address, claimedAt, receipt.TxHash)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotPending):
		// The indexer may have seen our own claim event first.
		current, getErr := o.store.GetPayment(ctx, record.PaymentID)
		if getErr == nil && current.Status == models.StatusClaimed && current.ClaimTxHash == receipt.TxHash {
			return resultFrom(current, receipt.TxHash), nil
		}
		return nil, fmt.Errorf("%w: payment %d: %v", ErrClaimConflict, record.PaymentID, err)
	default:
		return nil, fmt.Errorf("failed to record claim of payment %d (tx %s): %w", record.PaymentID, receipt.TxHash, err)
	}

	slog.Info("Payment claimed",
		"payment_id", record.PaymentID,
		"user", req.User.ID,
		"tx_hash", receipt.TxHash,
		"amount", record.Amount,
		"coin_type", record.CoinType,
	)

	return &ClaimResult{
		PaymentID: record.PaymentID,
		Success:   true,
		TxHash:    receipt.TxHash,
		ClaimedBy: req.User.Address,
		ClaimedAt: claimedAt,
		Amount:    record.Amount,
		CoinType:  record.CoinType,
	}, nil
}

// verifyOwnership checks the request against the indexed record and the
// user's keys
func (o *ClaimOrchestrator) verifyOwnership(req ClaimRequest, record *models.StealthPaymentRecord) error {
	if req.StealthAddress != record.StealthAddress {
		return fmt.Errorf("%w: stealth address does not match payment %d", ErrClaimVerification, record.PaymentID)
	}
	if !bytes.Equal(req.EphemeralPublic, record.EphemeralPublic) {
		return fmt.Errorf("%w: ephemeral key does not match payment %d", ErrClaimVerification, record.PaymentID)
	}

	owner, err := o.deriver.IsOwner(req.User.MetaKeys, record.EphemeralPublic, record.StealthAddress)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClaimVerification, err)
	}
	if !owner {
		return fmt.Errorf("%w: payment %d does not belong to user", ErrClaimVerification, record.PaymentID)
	}
	return nil
}

// buildClaim recovers the one-time key and signs the claim message
func (o *ClaimOrchestrator) buildClaim(user *User, record *models.StealthPaymentRecord) (*ClaimTransaction, error) {
	priv, err := stealth.RecoverStealthPrivateKey(user.MetaKeys, record.EphemeralPublic)
	if err != nil {
		return nil, err
	}
	defer func() {
		for i := range priv {
			priv[i] = 0
		}
	}()

	pub, err := stealth.PublicKeyOf(priv[:])
	if err != nil {
		return nil, err
	}

	msg := ClaimMessage(record.PaymentID, record.StealthAddress, user.Address, record.CoinType, record.Amount)
	sig, err := stealth.Sign(priv[:], msg)
	if err != nil {
		return nil, err
	}

	// The ledger checks the signature against the stealth account, so
	// check it the same way before spending a submission on it.
	kp, err := keypair.ParseAddress(record.StealthAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: stealth address: %v", stealth.ErrCrypto, err)
	}
	if err := kp.Verify(msg, sig); err != nil {
		return nil, fmt.Errorf("%w: claim signature does not verify: %v", stealth.ErrCrypto, err)
	}

	return &ClaimTransaction{
		PaymentID:      record.PaymentID,
		StealthAddress: record.StealthAddress,
		Destination:    user.Address,
		CoinType:       record.CoinType,
		Amount:         record.Amount,
		StealthPublic:  pub[:],
		Message:        msg,
		Signature:      sig,
	}, nil
}

// submit sends the claim under the submit timeout. A rejected transaction
// leaves the payment pending: the rejection may come from a concurrent
// claim that the indexer will record. Only a payment the ledger reports
// as unclaimable is marked failed.
func (o *ClaimOrchestrator) submit(ctx context.Context, tx *ClaimTransaction) (*Receipt, error) {
	submitCtx, cancel := context.WithTimeout(ctx, o.submitTimeout)
	defer cancel()

	receipt, err := o.submitter.SubmitClaim(submitCtx, tx)
	switch {
	case err == nil:
		return receipt, nil
	case errors.Is(err, ErrClaimConflict):
		return nil, err
	case errors.Is(err, ErrPaymentUnclaimable):
		if markErr := o.store.MarkFailed(ctx, tx.PaymentID, err.Error()); markErr != nil {
			slog.Warn("Failed to mark unclaimable payment as failed",
				"payment_id", tx.PaymentID,
				"error", markErr,
			)
		}
		return nil, err
	case errors.Is(err, ErrClaimRejected):
		slog.Warn("Claim transaction rejected, payment left pending",
			"payment_id", tx.PaymentID,
			"error", err,
		)
		return nil, err
	default:
		return nil, ledger.NewRPCError("submit_claim", err)
	}
}

func validateUser(user *User) error {
	if user == nil || user.MetaKeys == nil {
		return fmt.Errorf("%w: user meta keys are required", keys.ErrInvalidInput)
	}
	if user.Address == "" {
		return fmt.Errorf("%w: user destination address is required", keys.ErrInvalidInput)
	}
	return nil
}

func resultFrom(record *models.StealthPaymentRecord, txHash string) *ClaimResult {
	result := &ClaimResult{
		PaymentID: record.PaymentID,
		Success:   true,
		TxHash:    txHash,
		ClaimedBy: record.ClaimedBy,
		Amount:    record.Amount,
		CoinType:  record.CoinType,
	}
	if record.ClaimedAt != nil {
		result.ClaimedAt = *record.ClaimedAt
	}
	return result
}

func claimOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrClaimConflict):
		return "conflict"
	case errors.Is(err, ErrClaimVerification):
		return "verification_failed"
	case errors.Is(err, ErrPaymentUnclaimable):
		return "unclaimable"
	case errors.Is(err, ErrClaimRejected):
		return "rejected"
	case errors.Is(err, ledger.ErrChainRPC):
		return "rpc_error"
	default:
		return "error"
	}
}
