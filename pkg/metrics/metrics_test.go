package metrics

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTransaction(t *testing.T) {
	// Setup
	m := New()

	// Execute
	m.ObserveTransaction("purchase", time.Now(), nil)
	m.ObserveTransaction("purchase", time.Now(), types.NewStoreError(types.ErrInsufficientFunds, "no"))
	m.ObserveTransaction("purchase", time.Now(), errors.New("boom"))

	// Assert
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionCounter.WithLabelValues("purchase", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionCounter.WithLabelValues("purchase", "INSUFFICIENT_FUNDS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionCounter.WithLabelValues("purchase", "INTERNAL_ERROR")))
}

func TestObserveBalanceDelta(t *testing.T) {
	m := New()

	m.ObserveBalanceDelta(decimal.RequireFromString("-12.5"))
	m.ObserveBalanceDelta(decimal.NewFromInt(40))
	m.ObserveBalanceDelta(decimal.Zero)

	assert.Equal(t, 12.5, testutil.ToFloat64(m.BalanceMoved.WithLabelValues("debit")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.BalanceMoved.WithLabelValues("credit")))
}

func TestSubscribersGauge(t *testing.T) {
	m := New()

	m.SubscriberAdded("orders")
	m.SubscriberAdded("orders")
	m.SubscriberRemoved("orders")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncSubscribers.WithLabelValues("orders")))
}

func TestRecordDBPoolStats(t *testing.T) {
	m := New()

	m.RecordDBPoolStats(sql.DBStats{OpenConnections: 4, InUse: 1, Idle: 3})

	assert.Equal(t, 4.0, testutil.ToFloat64(m.DBConnPoolStats.WithLabelValues("open")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DBConnPoolStats.WithLabelValues("idle")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveTransaction("purchase", time.Now(), nil)
		m.ObserveBalanceDelta(decimal.NewFromInt(1))
		m.ObserveRequest("/", http.StatusOK, time.Millisecond)
		m.SubscriberAdded("orders")
		m.ObserveArchiveRun(nil)
		m.RecordDBPoolStats(sql.DBStats{})
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	// Setup
	m := New()
	m.ObserveRequest("/api/v1/orders", http.StatusOK, 5*time.Millisecond)

	// Execute
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "royalcharge_http_requests_total"))
}
