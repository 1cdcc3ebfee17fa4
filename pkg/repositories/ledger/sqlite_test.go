package ledger

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*SQLiteRepository, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewSQLiteRepository(conn), mock
}

func TestCreateOrderRollsBackDebitWhenInsertFails(t *testing.T) {
	// Setup
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
		WithArgs(int64(-3000), sqlmock.AnyArg(), "a@x.com", int64(-3000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	// Execute
	_, err := repo.CreateOrder(context.Background(), &entities.Order{
		UserID:   "a@x.com",
		Type:     entities.OrderTypeProduct,
		PriceUSD: decimal.NewFromInt(30),
	})

	// Assert
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeOrderRollsBackStatusWhenCreditFails(t *testing.T) {
	// Setup
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "type", "product_name", "price_cents", "price_egp", "coins_amount", "date",
		"status", "player_id", "screenshot", "admin_reply", "finalized_by", "finalized_at", "idempotency_key",
	}).AddRow(
		"order-1", "a@x.com", "recharge", "deposit via Vodafone Cash", int64(4000), "0", int64(0),
		"2026-03-01T12:00:00.000000000Z", "pending", "", "", "", "", nil, nil,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = ?")).WithArgs("order-1").WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	// Execute
	_, err := repo.FinalizeOrder(context.Background(), "order-1", entities.Finalization{
		Status: entities.OrderStatusCompleted,
		Actor:  "admin@royal.com",
		At:     time.Now(),
	})

	// Assert
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeOrderAlreadyFinalizedWritesNothing(t *testing.T) {
	// Setup
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "type", "product_name", "price_cents", "price_egp", "coins_amount", "date",
		"status", "player_id", "screenshot", "admin_reply", "finalized_by", "finalized_at", "idempotency_key",
	}).AddRow(
		"order-1", "a@x.com", "recharge", "deposit via Vodafone Cash", int64(4000), "0", int64(0),
		"2026-03-01T12:00:00.000000000Z", "completed", "", "", "", "admin@royal.com",
		"2026-03-01T12:05:00.000000000Z", nil,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = ?")).WithArgs("order-1").WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	// Execute
	_, err := repo.FinalizeOrder(context.Background(), "order-1", entities.Finalization{
		Status: entities.OrderStatusCompleted,
		At:     time.Now(),
	})

	// Assert
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusyDatabaseMapsToErrStoreBusy(t *testing.T) {
	// Setup
	repo, mock := newMockRepo(t)
	mock.ExpectBegin().WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})

	// Execute
	_, err := repo.AdjustBalance(context.Background(), "a@x.com", decimal.NewFromInt(1))

	// Assert
	assert.ErrorIs(t, err, ErrStoreBusy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustBalanceGuardDistinguishesMissingAccount(t *testing.T) {
	// Setup
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance_cents FROM accounts")).
		WithArgs("ghost@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}))
	mock.ExpectRollback()

	// Execute
	_, err := repo.AdjustBalance(context.Background(), "ghost@x.com", decimal.NewFromInt(-5))

	// Assert
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
