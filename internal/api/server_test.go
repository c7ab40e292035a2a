package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"stealthpay/internal/indexer"
	"stealthpay/internal/models"
	"stealthpay/internal/storage"

	"github.com/stretchr/testify/require"
)

type staticStatus indexer.Status

func (s staticStatus) Status() indexer.Status {
	return indexer.Status(s)
}

func openStore(t *testing.T) *storage.SQLStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "api.sqlite"))
	require.NoError(t, err)
	return store
}

func TestHealth(t *testing.T) {
	store := openStore(t)
	srv := NewServer(0, store, staticStatus{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, store.Close())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, http.StatusServiceUnavailable, body.Code)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	t.Cleanup(func() { _ = store.Close() })

	checkpoint := uint64(50)
	require.NoError(t, store.Commit(ctx, &models.Batch{
		FromVersion: 1,
		ToVersion:   50,
		Events: []models.PaymentEvent{{
			PaymentID:       1,
			Kind:            models.EventPaymentCreated,
			StealthAddress:  "GSTEALTH",
			EphemeralPublic: make([]byte, 32),
			Amount:          5,
			CoinType:        "coinX",
			TxHash:          "tx-1",
			LedgerVersion:   3,
		}},
		DeadLetters: []models.DeadLetter{{
			TxHash:        "bad",
			LedgerVersion: 7,
			EventType:     "CREGISTRY::PaymentCreated",
			Reason:        "missing amount",
			RecordedAt:    time.Unix(0, 0),
		}},
		Checkpoint: &checkpoint,
	}))

	srv := NewServer(0, store, staticStatus{
		State:      indexer.StatePolling,
		Checkpoint: 50,
		Tip:        60,
		Lag:        10,
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, indexer.StatePolling, body.Indexer.State)
	require.Equal(t, uint64(10), body.Indexer.Lag)
	require.Equal(t, 1, body.Payments.Pending)
	require.Equal(t, 1, body.Payments.DeadLetters)
	require.Len(t, body.DeadLetters, 1)
	require.Equal(t, "bad", body.DeadLetters[0].TxHash)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIndexAndUnknownPath(t *testing.T) {
	store := openStore(t)
	t.Cleanup(func() { _ = store.Close() })
	srv := NewServer(0, store, staticStatus{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/status")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
