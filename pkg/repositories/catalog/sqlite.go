package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/shopspring/decimal"
)

const configKey = "app_config"

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) ListProducts(ctx context.Context) ([]*entities.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, image, category_id, price_usd, amount, is_custom_amount, usd_to_coin_rate
		FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error listing products: %w", err)
	}
	defer rows.Close()

	products := make([]*entities.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *SQLiteRepository) GetProduct(ctx context.Context, id string) (*entities.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT id, name, image, category_id, price_usd, amount, is_custom_amount, usd_to_coin_rate
		FROM products WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *SQLiteRepository) SaveProduct(ctx context.Context, p *entities.Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, image, category_id, price_usd, amount, is_custom_amount, usd_to_coin_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			image = excluded.image,
			category_id = excluded.category_id,
			price_usd = excluded.price_usd,
			amount = excluded.amount,
			is_custom_amount = excluded.is_custom_amount,
			usd_to_coin_rate = excluded.usd_to_coin_rate`,
		p.ID, p.Name, p.Image, p.CategoryID, p.PriceUSD.String(), p.Amount, p.IsCustomAmount, p.USDToCoinRate.String(),
	)
	if err != nil {
		return fmt.Errorf("error saving product: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteProduct(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "products", id, ErrProductNotFound)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]*entities.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title, image FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error listing categories: %w", err)
	}
	defer rows.Close()

	categories := make([]*entities.Category, 0)
	for rows.Next() {
		var c entities.Category
		if err := rows.Scan(&c.ID, &c.Title, &c.Image); err != nil {
			return nil, fmt.Errorf("error scanning category: %w", err)
		}
		categories = append(categories, &c)
	}
	return categories, rows.Err()
}

func (r *SQLiteRepository) SaveCategory(ctx context.Context, c *entities.Category) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, title, image) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, image = excluded.image`,
		c.ID, c.Title, c.Image,
	)
	if err != nil {
		return fmt.Errorf("error saving category: %w", err)
	}
	return nil
}

// DeleteCategory removes the category and uncategorizes its products in one transaction
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting category: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	} else if n == 0 {
		return ErrCategoryNotFound
	}

	if _, err := tx.ExecContext(ctx, `UPDATE products SET category_id = '' WHERE category_id = ?`, id); err != nil {
		return fmt.Errorf("error uncategorizing products: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRepository) ListMethods(ctx context.Context) ([]*entities.RechargeMethod, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, account_id, recipient_name, instructions, image, color
		FROM recharge_methods ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error listing recharge methods: %w", err)
	}
	defer rows.Close()

	methods := make([]*entities.RechargeMethod, 0)
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

func (r *SQLiteRepository) GetMethod(ctx context.Context, id string) (*entities.RechargeMethod, error) {
	m, err := scanMethod(r.db.QueryRowContext(ctx, `
		SELECT id, label, account_id, recipient_name, instructions, image, color
		FROM recharge_methods WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMethodNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *SQLiteRepository) SaveMethod(ctx context.Context, m *entities.RechargeMethod) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recharge_methods (id, label, account_id, recipient_name, instructions, image, color)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			account_id = excluded.account_id,
			recipient_name = excluded.recipient_name,
			instructions = excluded.instructions,
			image = excluded.image,
			color = excluded.color`,
		m.ID, m.Label, m.AccountID, m.RecipientName, m.Instructions, m.Image, m.Color,
	)
	if err != nil {
		return fmt.Errorf("error saving recharge method: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteMethod(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "recharge_methods", id, ErrMethodNotFound)
}

func (r *SQLiteRepository) GetConfig(ctx context.Context) (*entities.AppConfig, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, configKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.DefaultAppConfig(), nil
		}
		return nil, fmt.Errorf("error getting config: %w", err)
	}

	cfg := entities.DefaultAppConfig()
	if err := json.Unmarshal([]byte(raw), cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	return cfg, nil
}

func (r *SQLiteRepository) SaveConfig(ctx context.Context, cfg *entities.AppConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		configKey, string(raw),
	)
	if err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*entities.Product, error) {
	var p entities.Product
	var price, rate string
	if err := row.Scan(&p.ID, &p.Name, &p.Image, &p.CategoryID, &price, &p.Amount, &p.IsCustomAmount, &rate); err != nil {
		return nil, err
	}

	var err error
	if p.PriceUSD, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("invalid price_usd %q: %w", price, err)
	}
	if p.USDToCoinRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("invalid usd_to_coin_rate %q: %w", rate, err)
	}
	return &p, nil
}

func scanMethod(row rowScanner) (*entities.RechargeMethod, error) {
	var m entities.RechargeMethod
	if err := row.Scan(&m.ID, &m.Label, &m.AccountID, &m.RecipientName, &m.Instructions, &m.Image, &m.Color); err != nil {
		return nil, err
	}
	return &m, nil
}

func deleteByID(ctx context.Context, db *sql.DB, table, id string, notFound error) error {
	result, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting from %s: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
