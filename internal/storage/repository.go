package storage

import (
	"context"
	"errors"
	"time"

	"stealthpay/internal/models"
)

var (
	// ErrNotFound is returned when no payment has the requested id
	ErrNotFound = errors.New("payment not found")

	// ErrNotPending is returned when a status transition is attempted on
	// a payment that already left the pending state
	ErrNotPending = errors.New("payment is not pending")

	// ErrCheckpointRegression is returned when a checkpoint would move
	// backwards
	ErrCheckpointRegression = errors.New("checkpoint cannot decrease")
)

// EventStore is the durable, idempotent store of stealth payment events
type EventStore interface {
	// Ingestion
	UpsertPaymentEvent(ctx context.Context, event *models.PaymentEvent) error
	Commit(ctx context.Context, batch *models.Batch) error

	// Checkpoint
	GetCheckpoint(ctx context.Context) (uint64, bool, error)
	SetCheckpoint(ctx context.Context, version uint64) error

	// Payments
	ListPending(ctx context.Context) ([]*models.StealthPaymentRecord, error)
	GetPayment(ctx context.Context, paymentID uint64) (*models.StealthPaymentRecord, error)
	MarkClaimed(ctx context.Context, paymentID uint64, claimedBy string, claimedAt time.Time, txHash string) error
	MarkFailed(ctx context.Context, paymentID uint64, reason string) error

	// Dead letters & stats
	ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error)
	Stats(ctx context.Context) (*models.PaymentStats, error)

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}
