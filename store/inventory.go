package store

import (
	"context"

	models "online-market/model"
)

const (
	qInsertProduct = `INSERT INTO products (name, description, category, price, stock) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	qProductByID   = `SELECT id, name, description, category, price, stock, created_at FROM products WHERE id = $1`
	qListProducts  = `SELECT id, name, description, category, price, stock, created_at FROM products ORDER BY id`
	qUpdateStock   = `UPDATE products SET stock = $1 WHERE id = $2`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(r rowScanner) (models.Product, error) {
	var p models.Product
	err := r.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.Stock, &p.CreatedAt)
	return p, err
}

func getProduct(ctx context.Context, q querier, id int64, lock string) (models.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, qProductByID+lock, id))
	if err != nil {
		return models.Product{}, notFoundOr(err, "product", id)
	}
	return p, nil
}

// CreateProduct inserts a product and returns its id.
func (s *PostgresStore) CreateProduct(ctx context.Context, p models.Product) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, qInsertProduct, p.Name, p.Description, p.Category, p.Price, p.Stock).Scan(&id)
	return id, mapErr(err)
}

func (s *PostgresStore) GetProduct(ctx context.Context, id int64) (models.Product, error) {
	return getProduct(ctx, s.DB, id, "")
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.DB.QueryContext(ctx, qListProducts)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProduct locks the product row so that the stock check and the stock
// write that follows cannot interleave with another debit.
func (t *pgTx) GetProduct(ctx context.Context, id int64) (models.Product, error) {
	return getProduct(ctx, t.q, id, forUpdate)
}

// UpdateProductStock sets the absolute stock. products.stock has a
// CHECK (stock >= 0) constraint.
func (t *pgTx) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	return execOne(ctx, t.q, "product", id, qUpdateStock, stock, id)
}
