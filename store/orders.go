package store

import (
	"context"
	"database/sql"

	models "online-market/model"
)

const (
	orderCols = `id, user_id, status, description, payment_method, city, province, country, total, created_at`

	qOrderByID     = `SELECT ` + orderCols + ` FROM orders WHERE id = $1`
	qInsertOrder   = `INSERT INTO orders (user_id, status, description, payment_method, city, province, country, total, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	qUpdateOrder   = `UPDATE orders SET status = $1, description = $2, payment_method = $3, city = $4, province = $5, country = $6, total = $7 WHERE id = $8`
	qInsertOLine   = `INSERT INTO order_lines (order_id, product_id, quantity) VALUES ($1, $2, $3) RETURNING id`
	qOLinesByOrder = `SELECT id, order_id, product_id, quantity FROM order_lines WHERE order_id = $1 ORDER BY id`
	qListOrders    = `SELECT ` + orderCols + ` FROM orders ORDER BY id`
	qOrdersByUser  = `SELECT ` + orderCols + ` FROM orders WHERE user_id = $1 ORDER BY id`
	// order_lines cascade.
	qDeleteOrder = `DELETE FROM orders WHERE id = $1`
)

func scanOrder(r rowScanner) (models.Order, error) {
	var o models.Order
	err := r.Scan(
		&o.ID, &o.UserID, &o.Status, &o.Description, &o.PaymentMethod,
		&o.City, &o.Province, &o.Country, &o.Total, &o.CreatedAt,
	)
	return o, err
}

func getOrder(ctx context.Context, q querier, id int64, lock string) (models.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, qOrderByID+lock, id))
	if err != nil {
		return models.Order{}, notFoundOr(err, "order", id)
	}
	return o, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (models.Order, error) {
	return getOrder(ctx, s.DB, id, "")
}

func (s *PostgresStore) GetOrderLinesByOrder(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	rows, err := s.DB.QueryContext(ctx, qOLinesByOrder, orderID)
	if err != nil {
		return nil, mapErr(err)
	}
	return scanOrderLines(rows)
}

// ListOrders returns every order, or only userID's when userID > 0.
func (s *PostgresStore) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if userID > 0 {
		rows, err = s.DB.QueryContext(ctx, qOrdersByUser, userID)
	} else {
		rows, err = s.DB.QueryContext(ctx, qListOrders)
	}
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrderLines(rows *sql.Rows) ([]models.OrderLine, error) {
	defer rows.Close()
	out := []models.OrderLine{}
	for rows.Next() {
		var l models.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *pgTx) GetOrder(ctx context.Context, id int64) (models.Order, error) {
	return getOrder(ctx, t.q, id, forUpdate)
}

func (t *pgTx) InsertOrder(ctx context.Context, o *models.Order) error {
	err := t.q.QueryRowContext(ctx, qInsertOrder,
		o.UserID, o.Status, o.Description, o.PaymentMethod, o.City, o.Province, o.Country, o.Total, o.CreatedAt,
	).Scan(&o.ID)
	return mapErr(err)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o models.Order) error {
	return execOne(ctx, t.q, "order", o.ID, qUpdateOrder,
		o.Status, o.Description, o.PaymentMethod, o.City, o.Province, o.Country, o.Total, o.ID)
}

func (t *pgTx) InsertOrderLine(ctx context.Context, line *models.OrderLine) error {
	err := t.q.QueryRowContext(ctx, qInsertOLine, line.OrderID, line.ProductID, line.Quantity).Scan(&line.ID)
	return mapErr(err)
}

func (t *pgTx) DeleteOrder(ctx context.Context, id int64) error {
	return execOne(ctx, t.q, "order", id, qDeleteOrder, id)
}
