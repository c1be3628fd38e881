package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

var ErrOptimisticLock = fmt.Errorf("optimistic lock conflict: %w", domain.ErrConflict)

//go:embed schema.sql
var schemaSQL string

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type MySQLAdapter struct {
	db *sql.DB
}

var _ port.UnitOfWork = (*MySQLAdapter)(nil)

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the tables if they do not exist yet.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) repos() mysqlRepos { return mysqlRepos{q: m.db} }

func (m *MySQLAdapter) Products() port.ProductRepository   { return m.repos().Products() }
func (m *MySQLAdapter) Images() port.ImageRepository       { return m.repos().Images() }
func (m *MySQLAdapter) LineItems() port.LineItemRepository { return m.repos().LineItems() }
func (m *MySQLAdapter) Orders() port.OrderRepository       { return m.repos().Orders() }

func (m *MySQLAdapter) Atomic(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, mysqlRepos{q: tx}); err != nil {
		return lockConflict(err)
	}

	if err := tx.Commit(); err != nil {
		return lockConflict(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// lockConflict marks deadlocks and lock wait timeouts as conflicts. The
// transaction is rolled back, so the caller may retry.
func lockConflict(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == errDeadlock || myErr.Number == errLockWaitTimeout) {
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}
	return err
}

type mysqlRepos struct {
	q querier
}

func (r mysqlRepos) Products() port.ProductRepository   { return mysqlProducts{r.q} }
func (r mysqlRepos) Images() port.ImageRepository       { return mysqlImages{r.q} }
func (r mysqlRepos) LineItems() port.LineItemRepository { return mysqlLineItems{r.q} }
func (r mysqlRepos) Orders() port.OrderRepository       { return mysqlOrders{r.q} }

type mysqlProducts struct{ q querier }

const productColumns = `id, name, description, short_description, sku, price, compare_at_price,
	track_inventory, stock, version, created_at, updated_at`

func (m mysqlProducts) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	return m.find(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
}

func (m mysqlProducts) LockByID(ctx context.Context, id string) (*domain.Product, error) {
	return m.find(ctx, `SELECT `+productColumns+` FROM products WHERE id = ? FOR UPDATE`, id)
}

func (m mysqlProducts) find(ctx context.Context, query, id string) (*domain.Product, error) {
	var p domain.Product
	err := m.q.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Description, &p.ShortDescription,
		&p.SKU, &p.Price, &p.CompareAtPrice, &p.TrackInventory, &p.Stock, &p.Version, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (m mysqlProducts) Create(ctx context.Context, p *domain.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := m.q.ExecContext(ctx, `
		INSERT INTO products (id, name, description, short_description, sku, price, compare_at_price,
		                      track_inventory, stock, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.ShortDescription, p.SKU, p.Price, p.CompareAtPrice,
		p.TrackInventory, p.Stock, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (m mysqlProducts) Update(ctx context.Context, p *domain.Product) error {
	now := time.Now().UTC()
	result, err := m.q.ExecContext(ctx, `
		UPDATE products
		SET name = ?, description = ?, short_description = ?, sku = ?, price = ?, compare_at_price = ?,
		    track_inventory = ?, stock = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		p.Name, p.Description, p.ShortDescription, p.SKU, p.Price, p.CompareAtPrice,
		p.TrackInventory, p.Stock, now, p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		existing, err := m.FindByID(ctx, p.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return &domain.NotFoundError{Entity: "product", ID: p.ID}
		}
		return ErrOptimisticLock
	}

	p.Version++
	p.UpdatedAt = now
	return nil
}

func (m mysqlProducts) Delete(ctx context.Context, id string) error {
	if _, err := m.q.ExecContext(ctx, `DELETE FROM product_images WHERE product_id = ?`, id); err != nil {
		return fmt.Errorf("delete product images: %w", err)
	}
	result, err := m.q.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &domain.NotFoundError{Entity: "product", ID: id}
	}
	return nil
}

func (m mysqlProducts) DecrementStock(ctx context.Context, id string, quantity int) (bool, error) {
	result, err := m.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, version = version + 1, updated_at = ?
		WHERE id = ? AND track_inventory = 1 AND stock >= ?`,
		quantity, time.Now().UTC(), id, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (m mysqlProducts) IncrementStock(ctx context.Context, id string, quantity int) error {
	_, err := m.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + ?, version = version + 1, updated_at = ?
		WHERE id = ? AND track_inventory = 1`,
		quantity, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return nil
}

type mysqlImages struct{ q querier }

func (m mysqlImages) PrimaryImageURL(ctx context.Context, productID string) (string, error) {
	var url string
	err := m.q.QueryRowContext(ctx, `
		SELECT url FROM product_images
		WHERE product_id = ? AND is_primary = 1
		LIMIT 1`, productID,
	).Scan(&url)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query primary image: %w", err)
	}
	return url, nil
}

func (m mysqlImages) ListByProduct(ctx context.Context, productID string) ([]domain.ProductImage, error) {
	rows, err := m.q.QueryContext(ctx, `
		SELECT id, product_id, url, is_primary, position
		FROM product_images WHERE product_id = ?
		ORDER BY position`, productID)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	var images []domain.ProductImage
	for rows.Next() {
		var img domain.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL, &img.IsPrimary, &img.Position); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (m mysqlImages) ReplaceForProduct(ctx context.Context, productID string, images []domain.ProductImage) error {
	if _, err := m.q.ExecContext(ctx, `DELETE FROM product_images WHERE product_id = ?`, productID); err != nil {
		return fmt.Errorf("clear images: %w", err)
	}

	for _, img := range domain.NormalizeImages(images) {
		if img.ID == "" {
			img.ID = uuid.NewString()
		}
		_, err := m.q.ExecContext(ctx, `
			INSERT INTO product_images (id, product_id, url, is_primary, position)
			VALUES (?, ?, ?, ?, ?)`,
			img.ID, productID, img.URL, img.IsPrimary, img.Position,
		)
		if err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
	}
	return nil
}
