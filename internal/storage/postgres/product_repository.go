package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

const productColumns = `id, name, category, quantity, price, qr_code, created_by, created_at, updated_at`

type productRepository struct {
	store *Store
}

// NewProductRepository создаёт PostgreSQL-реализацию каталога.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{store: store}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Quantity, &p.Price, &p.QRCode, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *productRepository) Create(ctx context.Context, p domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, p.ID, p.Name, p.Category, p.Quantity, p.Price, p.QRCode, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if constraint, ok := isUniqueViolation(err); ok {
			if constraint == "products_qr_code_key" {
				return &domain.ConflictError{Field: "qr_code", Value: p.QRCode, Err: err}
			}
			return &domain.ConflictError{Field: "id", Value: p.ID, Err: err}
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	return r.getBy(ctx, "id", id)
}

func (r *productRepository) GetByQR(ctx context.Context, qrCode string) (domain.Product, error) {
	return r.getBy(ctx, "qr_code", qrCode)
}

func (r *productRepository) getBy(ctx context.Context, column, value string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanProduct(r.store.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE `+column+` = $1`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ProductNotFound(value)
		}
		return domain.Product{}, fmt.Errorf("select product by %s: %w", column, err)
	}
	return p, nil
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

// Update меняет только поля, заданные в патче.
func (r *productRepository) Update(ctx context.Context, id string, patch domain.ProductPatch, at time.Time) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanProduct(r.store.db.QueryRowContext(ctx, `
		UPDATE products
		SET name       = COALESCE($2::text, name),
		    category   = COALESCE($3::text, category),
		    quantity   = COALESCE($4::bigint, quantity),
		    price      = COALESCE($5::numeric, price),
		    updated_at = $6
		WHERE id = $1
		RETURNING `+productColumns,
		id, patch.Name, patch.Category, patch.Quantity, patch.Price, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ProductNotFound(id)
		}
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

func (r *productRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// TryDecrement — одно условное UPDATE: проверка и списание атомарны на уровне строки.
func (r *productRepository) TryDecrement(ctx context.Context, id string, amount int64, at time.Time) (bool, error) {
	if amount <= 0 {
		return false, domain.InvalidField("quantity", domain.ErrItemQtyInvalid)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.db.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $2, updated_at = $3
		WHERE id = $1 AND quantity >= $2
	`, id, amount, at)
	if err != nil {
		return false, fmt.Errorf("decrement product stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// DecrementAll блокирует строки в порядке id (SELECT ... FOR UPDATE) и списывает всё в одной транзакции.
func (r *productRepository) DecrementAll(ctx context.Context, deltas []domain.StockDelta, at time.Time) error {
	deltas, err := sortedDeltas(deltas)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		for _, d := range deltas {
			var (
				name      string
				available int64
			)
			err := tx.QueryRowContext(ctx,
				`SELECT name, quantity FROM products WHERE id = $1 FOR UPDATE`, d.ProductID,
			).Scan(&name, &available)
			if errors.Is(err, sql.ErrNoRows) {
				return &domain.StockConflictError{ProductID: d.ProductID, Requested: d.Quantity}
			}
			if err != nil {
				return fmt.Errorf("lock product %s: %w", d.ProductID, err)
			}
			if available < d.Quantity {
				return &domain.StockConflictError{
					ProductID: d.ProductID,
					Name:      name,
					Requested: d.Quantity,
					Available: available,
				}
			}
		}
		for _, d := range deltas {
			if _, err := tx.ExecContext(ctx,
				`UPDATE products SET quantity = quantity - $2, updated_at = $3 WHERE id = $1`,
				d.ProductID, d.Quantity, at,
			); err != nil {
				return fmt.Errorf("decrement product %s: %w", d.ProductID, err)
			}
		}
		return nil
	})
}

// Restock возвращает количество; отсутствующие товары пропускаются.
func (r *productRepository) Restock(ctx context.Context, deltas []domain.StockDelta, at time.Time) error {
	deltas, err := sortedDeltas(deltas)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		for _, d := range deltas {
			if _, err := tx.ExecContext(ctx,
				`UPDATE products SET quantity = quantity + $2, updated_at = $3 WHERE id = $1`,
				d.ProductID, d.Quantity, at,
			); err != nil {
				return fmt.Errorf("restock product %s: %w", d.ProductID, err)
			}
		}
		return nil
	})
}

// sortedDeltas сворачивает дубли и упорядочивает по id, чтобы транзакции брали блокировки в одном порядке.
func sortedDeltas(deltas []domain.StockDelta) ([]domain.StockDelta, error) {
	merged, err := domain.MergeDeltas(deltas)
	if err != nil {
		return nil, err
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
