package extraction

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"stealthpay/internal/ledger"
	"stealthpay/internal/models"
)

// Registry event names
const (
	PaymentCreatedEvent = "PaymentCreated"
	PaymentClaimedEvent = "PaymentClaimed"
)

// ErrMalformedEvent is returned when a stealth registry event is missing a
// field or carries a value of the wrong shape.
var ErrMalformedEvent = errors.New("malformed registry event")

// Extractor turns ledger transactions into typed payment events for one
// registry module
type Extractor struct {
	moduleID    string
	createdType string
	claimedType string
}

// NewExtractor creates an Extractor for the registry identified by moduleID
func NewExtractor(moduleID string) *Extractor {
	return &Extractor{
		moduleID:    moduleID,
		createdType: ledger.EventType(moduleID, PaymentCreatedEvent),
		claimedType: ledger.EventType(moduleID, PaymentClaimedEvent),
	}
}

// ModuleID returns the registry module the extractor watches
func (e *Extractor) ModuleID() string {
	return e.moduleID
}

// IsStealthRelated reports whether tx called the registry or emitted one of
// its events
func (e *Extractor) IsStealthRelated(tx *ledger.Transaction) bool {
	for _, target := range tx.Payload.Targets {
		if target == e.moduleID {
			return true
		}
	}
	for _, event := range tx.Events {
		if e.isKnownType(event.Type) {
			return true
		}
	}
	return false
}

func (e *Extractor) isKnownType(eventType string) bool {
	return eventType == e.createdType || eventType == e.claimedType
}

// Extract decodes every registry event of tx. A single malformed event
// fails the whole transaction so it can be dead-lettered as a unit.
func (e *Extractor) Extract(tx *ledger.Transaction) ([]models.PaymentEvent, error) {
	if tx.DecodeError != nil {
		return nil, fmt.Errorf("%w: events unreadable: %v", ErrMalformedEvent, tx.DecodeError)
	}

	var events []models.PaymentEvent
	for _, event := range tx.Events {
		var (
			decoded models.PaymentEvent
			err     error
		)
		switch event.Type {
		case e.createdType:
			decoded, err = decodeCreated(event.Data)
		case e.claimedType:
			decoded, err = decodeClaimed(event.Data)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("event %d (%s): %w", event.Index, event.Type, err)
		}

		decoded.TxHash = tx.Hash
		decoded.LedgerVersion = tx.Version
		decoded.EventIndex = event.Index
		if decoded.Timestamp.IsZero() {
			decoded.Timestamp = tx.Timestamp
		}
		events = append(events, decoded)
	}
	return events, nil
}

// DeadLetterEventType picks the event type recorded for a failed tx: the
// first registry event it emitted, or the bare module when it emitted none.
func (e *Extractor) DeadLetterEventType(tx *ledger.Transaction) string {
	for _, event := range tx.Events {
		if e.isKnownType(event.Type) {
			return event.Type
		}
	}
	return e.moduleID
}

// RawPayload serialises the registry events of tx for a dead letter
func (e *Extractor) RawPayload(tx *ledger.Transaction) []byte {
	var raw []ledger.Event
	for _, event := range tx.Events {
		if e.isKnownType(event.Type) {
			raw = append(raw, event)
		}
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return []byte(fmt.Sprintf("%q", err.Error()))
	}
	return payload
}

func decodeCreated(data map[string]any) (models.PaymentEvent, error) {
	paymentID, err := uintField(data, "payment_id")
	if err != nil {
		return models.PaymentEvent{}, err
	}
	address, err := stringField(data, "stealth_address")
	if err != nil {
		return models.PaymentEvent{}, err
	}
	ephemeral, err := keyField(data, "ephemeral_pub_key")
	if err != nil {
		return models.PaymentEvent{}, err
	}
	amount, err := uintField(data, "amount")
	if err != nil {
		return models.PaymentEvent{}, err
	}
	coinType, err := stringField(data, "coin_type")
	if err != nil {
		return models.PaymentEvent{}, err
	}
	timestamp, err := timeField(data, "timestamp")
	if err != nil {
		return models.PaymentEvent{}, err
	}

	return models.PaymentEvent{
		PaymentID:       paymentID,
		Kind:            models.EventPaymentCreated,
		StealthAddress:  address,
		EphemeralPublic: ephemeral,
		Amount:          amount,
		CoinType:        coinType,
		Timestamp:       timestamp,
	}, nil
}

func decodeClaimed(data map[string]any) (models.PaymentEvent, error) {
	paymentID, err := uintField(data, "payment_id")
	if err != nil {
		return models.PaymentEvent{}, err
	}
	address, err := stringField(data, "stealth_address")
	if err != nil {
		return models.PaymentEvent{}, err
	}
	claimedBy, err := stringField(data, "claimed_by")
	if err != nil {
		return models.PaymentEvent{}, err
	}
	timestamp, err := timeField(data, "timestamp")
	if err != nil {
		return models.PaymentEvent{}, err
	}

	return models.PaymentEvent{
		PaymentID:      paymentID,
		Kind:           models.EventPaymentClaimed,
		StealthAddress: address,
		ClaimedBy:      claimedBy,
		Timestamp:      timestamp,
	}, nil
}

func stringField(data map[string]any, name string) (string, error) {
	raw, ok := data[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedEvent, name)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrMalformedEvent, name)
	}
	return s, nil
}

func keyField(data map[string]any, name string) ([]byte, error) {
	s, err := stringField(data, name)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not hex: %v", ErrMalformedEvent, name, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: %s must be 32 bytes, got %d", ErrMalformedEvent, name, len(key))
	}
	return key, nil
}

// uintField accepts the integer shapes ScVal decoding and JSON produce:
// uint64, non-negative int64, integral float64 and decimal strings.
func uintField(data map[string]any, name string) (uint64, error) {
	raw, ok := data[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedEvent, name)
	}
	switch v := raw.(type) {
	case uint64:
		return v, nil
	case int64:
		if v >= 0 {
			return uint64(v), nil
		}
	case int:
		if v >= 0 {
			return uint64(v), nil
		}
	case float64:
		if v >= 0 && v < math.MaxUint64 && v == math.Trunc(v) {
			return uint64(v), nil
		}
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %s must be an unsigned 64-bit integer, got %v", ErrMalformedEvent, name, raw)
}

// timeField reads an optional unix-seconds timestamp
func timeField(data map[string]any, name string) (time.Time, error) {
	if _, ok := data[name]; !ok {
		return time.Time{}, nil
	}
	secs, err := uintField(data, name)
	if err != nil {
		return time.Time{}, err
	}
	if secs > math.MaxInt64 {
		return time.Time{}, fmt.Errorf("%w: %s out of range", ErrMalformedEvent, name)
	}
	return time.Unix(int64(secs), 0).UTC(), nil
}
