package storage

// Payment ids, versions and times are BIGINT (unix millis for times).
// Amounts are decimal TEXT so the full uint64 range survives both engines.

const (
	createPaymentsTable = `
		CREATE TABLE IF NOT EXISTS stealth_payments (
			payment_id       BIGINT PRIMARY KEY,
			stealth_address  TEXT   NOT NULL,
			ephemeral_public TEXT   NOT NULL,
			amount           TEXT   NOT NULL,
			coin_type        TEXT   NOT NULL,
			tx_hash          TEXT   NOT NULL,
			ledger_version   BIGINT NOT NULL,
			created_at       BIGINT NOT NULL,
			status           TEXT   NOT NULL DEFAULT 'pending',
			claimed_by       TEXT   NOT NULL DEFAULT '',
			claimed_at       BIGINT,
			claim_tx_hash    TEXT   NOT NULL DEFAULT '',
			failure_reason   TEXT   NOT NULL DEFAULT ''
		)`

	createPaymentsStatusIndex = `
		CREATE INDEX IF NOT EXISTS idx_stealth_payments_status
		ON stealth_payments (status, payment_id)`

	createEventsTable = `
		CREATE TABLE IF NOT EXISTS payment_events (
			payment_id       BIGINT NOT NULL,
			event_kind       TEXT   NOT NULL,
			stealth_address  TEXT   NOT NULL,
			ephemeral_public TEXT   NOT NULL DEFAULT '',
			amount           TEXT   NOT NULL DEFAULT '0',
			coin_type        TEXT   NOT NULL DEFAULT '',
			claimed_by       TEXT   NOT NULL DEFAULT '',
			tx_hash          TEXT   NOT NULL,
			ledger_version   BIGINT NOT NULL,
			event_index      BIGINT NOT NULL,
			event_time       BIGINT NOT NULL,
			PRIMARY KEY (payment_id, event_kind)
		)`

	createCheckpointTable = `
		CREATE TABLE IF NOT EXISTS indexer_checkpoint (
			id                     INTEGER PRIMARY KEY,
			last_processed_version BIGINT NOT NULL,
			updated_at             BIGINT NOT NULL
		)`
)

var postgresSchema = []string{
	createPaymentsTable,
	createPaymentsStatusIndex,
	createEventsTable,
	`CREATE TABLE IF NOT EXISTS dead_letters (
		tx_hash        TEXT   NOT NULL,
		event_type     TEXT   NOT NULL,
		ledger_version BIGINT NOT NULL,
		reason         TEXT   NOT NULL,
		payload        BYTEA,
		recorded_at    BIGINT NOT NULL,
		PRIMARY KEY (tx_hash, event_type)
	)`,
	createCheckpointTable,
}

var sqliteSchema = []string{
	createPaymentsTable,
	createPaymentsStatusIndex,
	createEventsTable,
	`CREATE TABLE IF NOT EXISTS dead_letters (
		tx_hash        TEXT    NOT NULL,
		event_type     TEXT    NOT NULL,
		ledger_version BIGINT  NOT NULL,
		reason         TEXT    NOT NULL,
		payload        BLOB,
		recorded_at    BIGINT  NOT NULL,
		PRIMARY KEY (tx_hash, event_type)
	)`,
	createCheckpointTable,
}
