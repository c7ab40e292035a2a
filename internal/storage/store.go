package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"stealthpay/internal/models"

	"github.com/lightningnetwork/lnd/clock"
)

// SQLStore implements EventStore on top of PostgreSQL or SQLite
type SQLStore struct {
	db    backend
	clock clock.Clock
}

var _ EventStore = (*SQLStore)(nil)

func newSQLStore(ctx context.Context, db backend) (*SQLStore, error) {
	for _, stmt := range db.schema() {
		if _, err := db.exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", db.name(), err)
		}
	}

	slog.Debug("Event store ready", "backend", db.name())

	return &SQLStore{
		db:    db,
		clock: clock.NewDefaultClock(),
	}, nil
}

// SetClock replaces the clock used for bookkeeping timestamps
func (s *SQLStore) SetClock(c clock.Clock) {
	s.clock = c
}

// Backend returns the name of the SQL engine in use
func (s *SQLStore) Backend() string {
	return s.db.name()
}

// inTx runs fn in a transaction, committing only if fn succeeds
func (s *SQLStore) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.rollback(ctx); err != nil {
			slog.Warn("Failed to roll back transaction", "error", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertPaymentEvent stores one event and applies it to the payment table.
// Replaying the same event leaves the store unchanged.
func (s *SQLStore) UpsertPaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	return s.inTx(ctx, func(q querier) error {
		return applyEvent(ctx, q, event)
	})
}

// Commit applies a batch atomically: its events, its dead letters and,
// when set, the checkpoint advance
func (s *SQLStore) Commit(ctx context.Context, batch *models.Batch) error {
	return s.inTx(ctx, func(q querier) error {
		for i := range batch.Events {
			if err := applyEvent(ctx, q, &batch.Events[i]); err != nil {
				return err
			}
		}
		for i := range batch.DeadLetters {
			if err := insertDeadLetter(ctx, q, &batch.DeadLetters[i]); err != nil {
				return err
			}
		}
		if batch.Checkpoint != nil {
			if err := setCheckpoint(ctx, q, *batch.Checkpoint, s.clock.Now()); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyEvent(ctx context.Context, q querier, event *models.PaymentEvent) error {
	paymentID, err := toInt64("payment_id", event.PaymentID)
	if err != nil {
		return err
	}
	version, err := toInt64("ledger_version", event.LedgerVersion)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payment_events (
			payment_id, event_kind, stealth_address, ephemeral_public, amount,
			coin_type, claimed_by, tx_hash, ledger_version, event_index, event_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (payment_id, event_kind) DO UPDATE SET
			stealth_address = excluded.stealth_address,
			ephemeral_public = excluded.ephemeral_public,
			amount = excluded.amount,
			coin_type = excluded.coin_type,
			claimed_by = excluded.claimed_by,
			tx_hash = excluded.tx_hash,
			ledger_version = excluded.ledger_version,
			event_index = excluded.event_index,
			event_time = excluded.event_time
	`
	_, err = q.exec(ctx, query,
		paymentID,
		string(event.Kind),
		event.StealthAddress,
		hex.EncodeToString(event.EphemeralPublic),
		strconv.FormatUint(event.Amount, 10),
		event.CoinType,
		event.ClaimedBy,
		event.TxHash,
		version,
		int64(event.EventIndex),
		toMillis(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment event %d/%s: %w", event.PaymentID, event.Kind, err)
	}

	switch event.Kind {
	case models.EventPaymentCreated:
		return applyCreated(ctx, q, paymentID, event)
	case models.EventPaymentClaimed:
		return applyClaimed(ctx, q, paymentID, event.ClaimedBy, event.Timestamp, event.TxHash)
	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}
}

// applyCreated upserts the payment row without touching its status, then
// replays a claim that was indexed before the creation
func applyCreated(ctx context.Context, q querier, paymentID int64, event *models.PaymentEvent) error {
	version, err := toInt64("ledger_version", event.LedgerVersion)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO stealth_payments (
			payment_id, stealth_address, ephemeral_public, amount, coin_type,
			tx_hash, ledger_version, created_at, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		ON CONFLICT (payment_id) DO UPDATE SET
			stealth_address = excluded.stealth_address,
			ephemeral_public = excluded.ephemeral_public,
			amount = excluded.amount,
			coin_type = excluded.coin_type,
			tx_hash = excluded.tx_hash,
			ledger_version = excluded.ledger_version,
			created_at = excluded.created_at
	`
	_, err = q.exec(ctx, query,
		paymentID,
		event.StealthAddress,
		hex.EncodeToString(event.EphemeralPublic),
		strconv.FormatUint(event.Amount, 10),
		event.CoinType,
		event.TxHash,
		version,
		toMillis(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment %d: %w", event.PaymentID, err)
	}

	var (
		claimedBy string
		claimedAt int64
		txHash    string
	)
	err = q.queryRow(ctx, `
		SELECT claimed_by, event_time, tx_hash
		FROM payment_events
		WHERE payment_id = $1 AND event_kind = $2
	`, paymentID, string(models.EventPaymentClaimed)).Scan(&claimedBy, &claimedAt, &txHash)
	if errors.Is(err, errNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up claim for payment %d: %w", event.PaymentID, err)
	}
	return applyClaimed(ctx, q, paymentID, claimedBy, fromMillis(claimedAt), txHash)
}

// applyClaimed moves a pending payment to claimed. A payment that is not
// yet indexed or no longer pending is left alone.
func applyClaimed(ctx context.Context, q querier, paymentID int64, claimedBy string, claimedAt time.Time, txHash string) error {
	_, err := q.exec(ctx, `
		UPDATE stealth_payments
		SET status = 'claimed', claimed_by = $2, claimed_at = $3, claim_tx_hash = $4
		WHERE payment_id = $1 AND status = 'pending'
	`, paymentID, claimedBy, toMillis(claimedAt), txHash)
	if err != nil {
		return fmt.Errorf("failed to apply claim for payment %d: %w", paymentID, err)
	}
	return nil
}

func insertDeadLetter(ctx context.Context, q querier, dl *models.DeadLetter) error {
	version, err := toInt64("ledger_version", dl.LedgerVersion)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO dead_letters (
			tx_hash, event_type, ledger_version, reason, payload, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tx_hash, event_type) DO UPDATE SET
			ledger_version = excluded.ledger_version,
			reason = excluded.reason,
			payload = excluded.payload,
			recorded_at = excluded.recorded_at
	`
	_, err = q.exec(ctx, query,
		dl.TxHash,
		dl.EventType,
		version,
		dl.Reason,
		dl.Payload,
		toMillis(dl.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save dead letter for tx %s: %w", dl.TxHash, err)
	}
	return nil
}

// GetCheckpoint returns the last processed version and whether one has
// been stored yet
func (s *SQLStore) GetCheckpoint(ctx context.Context) (uint64, bool, error) {
	var version int64
	err := s.db.queryRow(ctx,
		`SELECT last_processed_version FROM indexer_checkpoint WHERE id = 1`,
	).Scan(&version)
	if errors.Is(err, errNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return uint64(version), true, nil
}

// SetCheckpoint stores version as the last processed version. Moving the
// checkpoint backwards fails with ErrCheckpointRegression.
func (s *SQLStore) SetCheckpoint(ctx context.Context, version uint64) error {
	return setCheckpoint(ctx, s.db, version, s.clock.Now())
}

func setCheckpoint(ctx context.Context, q querier, version uint64, now time.Time) error {
	v, err := toInt64("checkpoint", version)
	if err != nil {
		return err
	}

	affected, err := q.exec(ctx, `
		INSERT INTO indexer_checkpoint (id, last_processed_version, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			last_processed_version = excluded.last_processed_version,
			updated_at = excluded.updated_at
		WHERE indexer_checkpoint.last_processed_version <= excluded.last_processed_version
	`, v, toMillis(now))
	if err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: refusing to set %d", ErrCheckpointRegression, version)
	}
	return nil
}

const paymentColumns = `
	payment_id, stealth_address, ephemeral_public, amount, coin_type,
	tx_hash, ledger_version, created_at, status, claimed_by, claimed_at,
	claim_tx_hash, failure_reason
`

func scanPayment(r row) (*models.StealthPaymentRecord, error) {
	var (
		record    models.StealthPaymentRecord
		paymentID int64
		ephemeral string
		amount    string
		version   int64
		createdAt int64
		status    string
		claimedAt *int64
	)
	err := r.Scan(
		&paymentID,
		&record.StealthAddress,
		&ephemeral,
		&amount,
		&record.CoinType,
		&record.TxHash,
		&version,
		&createdAt,
		&status,
		&record.ClaimedBy,
		&claimedAt,
		&record.ClaimTxHash,
		&record.FailureReason,
	)
	if err != nil {
		return nil, err
	}

	record.PaymentID = uint64(paymentID)
	record.LedgerVersion = uint64(version)
	record.CreatedAt = fromMillis(createdAt)
	record.Status = models.PaymentStatus(status)
	if claimedAt != nil {
		t := fromMillis(*claimedAt)
		record.ClaimedAt = &t
	}

	record.EphemeralPublic, err = hex.DecodeString(ephemeral)
	if err != nil {
		return nil, fmt.Errorf("corrupt ephemeral key for payment %d: %w", paymentID, err)
	}
	record.Amount, err = strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for payment %d: %w", paymentID, err)
	}
	return &record, nil
}

// ListPending returns every pending payment ordered by id
func (s *SQLStore) ListPending(ctx context.Context) ([]*models.StealthPaymentRecord, error) {
	rs, err := s.db.query(ctx, `
		SELECT `+paymentColumns+`
		FROM stealth_payments
		WHERE status = 'pending'
		ORDER BY payment_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	defer rs.Close()

	var records []*models.StealthPaymentRecord
	for rs.Next() {
		record, err := scanPayment(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		records = append(records, record)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return records, nil
}

// GetPayment returns one payment or ErrNotFound
func (s *SQLStore) GetPayment(ctx context.Context, paymentID uint64) (*models.StealthPaymentRecord, error) {
	id, err := toInt64("payment_id", paymentID)
	if err != nil {
		return nil, err
	}
	return getPayment(ctx, s.db, id)
}

func getPayment(ctx context.Context, q querier, paymentID int64) (*models.StealthPaymentRecord, error) {
	record, err := scanPayment(q.queryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM stealth_payments
		WHERE payment_id = $1
	`, paymentID))
	if errors.Is(err, errNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %d: %w", paymentID, err)
	}
	return record, nil
}

// MarkClaimed moves a pending payment to claimed. Only one caller can win;
// the rest get ErrNotPending.
func (s *SQLStore) MarkClaimed(ctx context.Context, paymentID uint64, claimedBy string, claimedAt time.Time, txHash string) error {
	id, err := toInt64("payment_id", paymentID)
	if err != nil {
		return err
	}
	return s.transition(ctx, id, `
		UPDATE stealth_payments
		SET status = 'claimed', claimed_by = $2, claimed_at = $3, claim_tx_hash = $4
		WHERE payment_id = $1 AND status = 'pending'
	`, id, claimedBy, toMillis(claimedAt), txHash)
}

// MarkFailed moves a pending payment to failed
func (s *SQLStore) MarkFailed(ctx context.Context, paymentID uint64, reason string) error {
	id, err := toInt64("payment_id", paymentID)
	if err != nil {
		return err
	}
	return s.transition(ctx, id, `
		UPDATE stealth_payments
		SET status = 'failed', failure_reason = $2
		WHERE payment_id = $1 AND status = 'pending'
	`, id, reason)
}

// transition runs a conditional status update and explains a miss
func (s *SQLStore) transition(ctx context.Context, paymentID int64, query string, args ...any) error {
	affected, err := s.db.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update payment %d: %w", paymentID, err)
	}
	if affected == 1 {
		return nil
	}

	record, err := getPayment(ctx, s.db, paymentID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: payment %d is %s", ErrNotPending, paymentID, record.Status)
}

// ListDeadLetters returns the most recent dead letters
func (s *SQLStore) ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	rs, err := s.db.query(ctx, `
		SELECT tx_hash, event_type, ledger_version, reason, payload, recorded_at
		FROM dead_letters
		ORDER BY ledger_version DESC, tx_hash ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rs.Close()

	var letters []models.DeadLetter
	for rs.Next() {
		var (
			dl         models.DeadLetter
			version    int64
			recordedAt int64
		)
		if err := rs.Scan(&dl.TxHash, &dl.EventType, &version, &dl.Reason, &dl.Payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		dl.LedgerVersion = uint64(version)
		dl.RecordedAt = fromMillis(recordedAt)
		letters = append(letters, dl)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}
	return letters, nil
}

// Stats counts payments by status plus dead letters
func (s *SQLStore) Stats(ctx context.Context) (*models.PaymentStats, error) {
	rs, err := s.db.query(ctx, `
		SELECT status, COUNT(*) FROM stealth_payments GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}
	defer rs.Close()

	stats := &models.PaymentStats{}
	for rs.Next() {
		var (
			status string
			count  int64
		)
		if err := rs.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan payment count: %w", err)
		}
		switch models.PaymentStatus(status) {
		case models.StatusPending:
			stats.Pending = int(count)
		case models.StatusClaimed:
			stats.Claimed = int(count)
		case models.StatusFailed:
			stats.Failed = int(count)
		}
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment counts: %w", err)
	}

	var deadLetters int64
	if err := s.db.queryRow(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&deadLetters); err != nil {
		return nil, fmt.Errorf("failed to count dead letters: %w", err)
	}
	stats.DeadLetters = int(deadLetters)
	return stats, nil
}

// Ping checks database connectivity
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.ping(ctx)
}

// Close releases the connection pool
func (s *SQLStore) Close() error {
	return s.db.close()
}

func toInt64(field string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%s %d exceeds storable range", field, v)
	}
	return int64(v), nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
