package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlitedb "github.com/fadedpez/royalcharge/pkg/db"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/shopspring/decimal"
)

// timeLayout is fixed width so stored timestamps sort lexicographically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const accountColumns = `email, display_id, name, password_hash, balance_cents, is_admin, is_blocked,
	is_frozen, is_verified, profile_pic, country, vip, theme, created_at, updated_at`

const orderColumns = `id, user_id, type, product_name, price_cents, price_egp, coins_amount, date,
	status, player_id, screenshot, admin_reply, finalized_by, finalized_at, idempotency_key`

// SQLiteRepository implements Repository using SQLite. Balances are integer
// cents moved with guarded increments inside the same transaction as the
// order write they belong to.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// GetAccount retrieves an account by email
func (r *SQLiteRepository) GetAccount(ctx context.Context, email string) (*entities.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapErr("getting account", err)
	}
	return account, nil
}

// ListAccounts returns every account ordered by email
func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]*entities.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY email`)
	if err != nil {
		return nil, wrapErr("listing accounts", err)
	}
	defer rows.Close()

	accounts := make([]*entities.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, wrapErr("scanning account", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// CreateAccount inserts a new account
func (r *SQLiteRepository) CreateAccount(ctx context.Context, account *entities.Account) error {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.BalanceUSD = entities.RoundUSD(account.BalanceUSD)

	_, err := r.db.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.Email, account.ID, account.Name, account.PasswordHash, entities.ToCents(account.BalanceUSD),
		account.IsAdmin, account.IsBlocked, account.IsFrozen, account.IsVerified,
		account.ProfilePic, account.Country, account.VIP, account.Theme,
		formatTime(account.CreatedAt), formatTime(account.UpdatedAt),
	)
	if err != nil {
		if sqlitedb.IsUniqueViolation(err) {
			return ErrAccountExists
		}
		return wrapErr("creating account", err)
	}
	return nil
}

// UpdateAccount merges a patch into an account. The balance column is never written here.
func (r *SQLiteRepository) UpdateAccount(ctx context.Context, email string, patch entities.AccountPatch) (*entities.Account, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("beginning transaction", err)
	}
	defer tx.Rollback()

	account, err := scanAccount(tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapErr("getting account", err)
	}

	patch.Apply(account)
	account.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `UPDATE accounts SET
			name = ?, password_hash = ?, is_admin = ?, is_blocked = ?, is_frozen = ?, is_verified = ?,
			profile_pic = ?, country = ?, vip = ?, theme = ?, updated_at = ?
		WHERE email = ?`,
		account.Name, account.PasswordHash, account.IsAdmin, account.IsBlocked, account.IsFrozen, account.IsVerified,
		account.ProfilePic, account.Country, account.VIP, account.Theme, formatTime(account.UpdatedAt),
		email,
	)
	if err != nil {
		return nil, wrapErr("updating account", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("committing account update", err)
	}
	return account, nil
}

// AdjustBalance atomically applies balance += delta
func (r *SQLiteRepository) AdjustBalance(ctx context.Context, email string, delta decimal.Decimal) (decimal.Decimal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, wrapErr("beginning transaction", err)
	}
	defer tx.Rollback()

	if err := applyDelta(ctx, tx, email, delta); err != nil {
		return decimal.Zero, err
	}

	balance, err := selectBalance(ctx, tx, email)
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, wrapErr("committing balance adjustment", err)
	}
	return balance, nil
}

// DeleteAccount removes an account
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, email string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE email = ?`, email)
	if err != nil {
		return wrapErr("deleting account", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapErr("getting rows affected", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// GetOrder retrieves an order by id
func (r *SQLiteRepository) GetOrder(ctx context.Context, id string) (*entities.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, wrapErr("getting order", err)
	}
	return order, nil
}

// ListOrders returns the orders visible in scope, newest first
func (r *SQLiteRepository) ListOrders(ctx context.Context, scope entities.OrderScope) ([]*entities.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if !scope.All {
		query += ` WHERE user_id = ?`
		args = append(args, scope.UserID)
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("listing orders", err)
	}
	defer rows.Close()

	orders := make([]*entities.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, wrapErr("scanning order", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// CreateOrder inserts a pending order and applies its creation delta in one transaction
func (r *SQLiteRepository) CreateOrder(ctx context.Context, order *entities.Order) (*Receipt, error) {
	kind, err := order.Kind()
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("beginning transaction", err)
	}
	defer tx.Rollback()

	if order.IdempotencyKey != "" {
		receipt, err := findReplay(ctx, tx, order.UserID, order.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, tx.Commit()
		}
	}

	prepareOrder(order)
	delta := entities.RoundUSD(kind.CreationDelta(order))
	if err := applyDelta(ctx, tx, order.UserID, delta); err != nil {
		return nil, err
	}

	if err := insertOrder(ctx, tx, order); err != nil {
		if sqlitedb.IsUniqueViolation(err) && order.IdempotencyKey != "" {
			tx.Rollback()
			return r.replay(ctx, order.UserID, order.IdempotencyKey)
		}
		return nil, wrapErr("inserting order", err)
	}

	balance, err := selectBalance(ctx, tx, order.UserID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("committing order", err)
	}

	return &Receipt{
		Order:        order.Clone(),
		Delta:        delta,
		BalanceAfter: balance,
	}, nil
}

// FinalizeOrder moves a pending order to a terminal status and applies its
// finalization delta in one transaction. The status update is guarded on
// pending so a second caller affects no rows and gets ErrAlreadyFinalized.
func (r *SQLiteRepository) FinalizeOrder(ctx context.Context, id string, f entities.Finalization) (*Receipt, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("beginning transaction", err)
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, wrapErr("getting order", err)
	}

	kind, err := order.Kind()
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, `UPDATE orders
		SET status = ?, admin_reply = ?, finalized_by = ?, finalized_at = ?
		WHERE id = ? AND status = ?`,
		f.Status, f.Reply, f.Actor, formatTime(f.At), id, entities.OrderStatusPending,
	)
	if err != nil {
		return nil, wrapErr("finalizing order", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, wrapErr("getting rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, ErrAlreadyFinalized
	}

	delta := entities.RoundUSD(kind.FinalizationDelta(order, f.Status))
	if !delta.IsZero() {
		if err := applyDelta(ctx, tx, order.UserID, delta); err != nil {
			return nil, err
		}
	}

	balance, err := selectBalance(ctx, tx, order.UserID)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("committing finalization", err)
	}

	f.Apply(order)
	order.FinalizedAt = utcTime(order.FinalizedAt)
	return &Receipt{
		Order:        order,
		Delta:        delta,
		BalanceAfter: balance,
	}, nil
}

// DeleteAllOrders clears the ledger
func (r *SQLiteRepository) DeleteAllOrders(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders`)
	if err != nil {
		return 0, wrapErr("deleting orders", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// replay looks up a previously committed order outside any write transaction
func (r *SQLiteRepository) replay(ctx context.Context, userID, key string) (*Receipt, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("beginning transaction", err)
	}
	defer tx.Rollback()

	receipt, err := findReplay(ctx, tx, userID, key)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, wrapErr("replaying order", errors.New("idempotency conflict without a stored order"))
	}
	return receipt, tx.Commit()
}

func findReplay(ctx context.Context, tx *sql.Tx, userID, key string) (*Receipt, error) {
	existing, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = ? AND idempotency_key = ?`, userID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("looking up idempotency key", err)
	}

	balance, err := selectBalance(ctx, tx, userID)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}
	return &Receipt{
		Order:        existing,
		Delta:        decimal.Zero,
		BalanceAfter: balance,
		Replayed:     true,
	}, nil
}

// applyDelta runs the guarded increment. A zero delta still requires the account to exist.
func applyDelta(ctx context.Context, tx *sql.Tx, email string, delta decimal.Decimal) error {
	cents := entities.ToCents(delta)
	if cents == 0 {
		_, err := selectBalance(ctx, tx, email)
		return err
	}

	result, err := tx.ExecContext(ctx, `UPDATE accounts
		SET balance_cents = balance_cents + ?, updated_at = ?
		WHERE email = ? AND balance_cents + ? >= 0`,
		cents, formatTime(time.Now()), email, cents,
	)
	if err != nil {
		return wrapErr("updating balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapErr("getting rows affected", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	// No row matched: either the account is gone or the guard refused the debit
	if _, err := selectBalance(ctx, tx, email); err != nil {
		return err
	}
	return ErrInsufficientFunds
}

func selectBalance(ctx context.Context, tx *sql.Tx, email string) (decimal.Decimal, error) {
	var cents int64
	err := tx.QueryRowContext(ctx, `SELECT balance_cents FROM accounts WHERE email = ?`, email).Scan(&cents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, wrapErr("reading balance", err)
	}
	return entities.FromCents(cents), nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, order *entities.Order) error {
	var key sql.NullString
	if order.IdempotencyKey != "" {
		key = sql.NullString{String: order.IdempotencyKey, Valid: true}
	}

	_, err := tx.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.Type, order.ProductName, entities.ToCents(order.PriceUSD),
		order.PriceEGP.String(), order.CoinsAmount, formatTime(order.Date), order.Status,
		order.PlayerID, order.Screenshot, order.AdminReply, order.FinalizedBy, nil, key,
	)
	return err
}

func scanAccount(row rowScanner) (*entities.Account, error) {
	var account entities.Account
	var cents int64
	var createdAt, updatedAt string

	err := row.Scan(
		&account.Email, &account.ID, &account.Name, &account.PasswordHash, &cents,
		&account.IsAdmin, &account.IsBlocked, &account.IsFrozen, &account.IsVerified,
		&account.ProfilePic, &account.Country, &account.VIP, &account.Theme,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.BalanceUSD = entities.FromCents(cents)
	if account.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if account.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &account, nil
}

func scanOrder(row rowScanner) (*entities.Order, error) {
	var order entities.Order
	var cents int64
	var priceEGP, date string
	var finalizedAt, key sql.NullString

	err := row.Scan(
		&order.ID, &order.UserID, &order.Type, &order.ProductName, &cents,
		&priceEGP, &order.CoinsAmount, &date, &order.Status,
		&order.PlayerID, &order.Screenshot, &order.AdminReply, &order.FinalizedBy, &finalizedAt, &key,
	)
	if err != nil {
		return nil, err
	}

	order.PriceUSD = entities.FromCents(cents)
	if order.PriceEGP, err = decimal.NewFromString(priceEGP); err != nil {
		return nil, fmt.Errorf("invalid price_egp %q: %w", priceEGP, err)
	}
	if order.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if finalizedAt.Valid {
		at, err := parseTime(finalizedAt.String)
		if err != nil {
			return nil, err
		}
		order.FinalizedAt = &at
	}
	order.IdempotencyKey = key.String
	return &order, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing timestamp '%s': %w", s, err)
	}
	return t, nil
}

// utcTime makes a returned timestamp match what a later read yields
func utcTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	stored := t.UTC()
	return &stored
}

// wrapErr maps lock contention to ErrStoreBusy and annotates everything else
func wrapErr(action string, err error) error {
	if sqlitedb.IsBusy(err) {
		return fmt.Errorf("%s: %w: %v", action, ErrStoreBusy, err)
	}
	return fmt.Errorf("error %s: %w", action, err)
}
