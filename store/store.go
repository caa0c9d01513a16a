package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	models "online-market/model"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same scan code
// serves locked and unlocked reads.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore is a Store backed by Postgres. Concurrency control is done
// with row locks taken inside transactions; there is no process-local locking.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	return &PostgresStore{DB: db}, nil
}

func (s *PostgresStore) Close() error { return s.DB.Close() }

// WithTx opens a transaction, hands it to fn and commits. The deferred
// rollback covers early returns and panics.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err != nil {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()

	if err = fn(&pgTx{q: sqlTx}); err != nil {
		return mapErr(err)
	}
	if err = sqlTx.Commit(); err != nil {
		return mapErr(err)
	}
	committed = true
	return nil
}

// pgTx implements Tx on a *sql.Tx; every read appends FOR UPDATE.
type pgTx struct {
	q querier
}

// mapErr folds driver errors into the model's error kinds.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505":
			return models.Conflict(err)
		case "23503", "23514":
			return models.InvalidArgument("constraint %s violated", pqErr.Constraint)
		}
	}
	return err
}

func notFoundOr(err error, entity string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotFound(entity, id)
	}
	return mapErr(err)
}

// ---- carts ----

const (
	qEnsureCart = `INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	qCartByID   = `SELECT id, user_id, total FROM carts WHERE id = $1`
	qCartByUser = `SELECT id, user_id, total FROM carts WHERE user_id = $1`
	qCartTotal  = `UPDATE carts SET total = $1 WHERE id = $2`

	qLineByID      = `SELECT id, cart_id, product_id, quantity FROM cart_lines WHERE id = $1`
	qLineByProduct = `SELECT id, cart_id, product_id, quantity FROM cart_lines WHERE cart_id = $1 AND product_id = $2`
	qLinesByCart   = `SELECT id, cart_id, product_id, quantity FROM cart_lines WHERE cart_id = $1 ORDER BY product_id`
	qInsertLine    = `INSERT INTO cart_lines (cart_id, product_id, quantity) VALUES ($1, $2, $3) RETURNING id`
	qUpdateLine    = `UPDATE cart_lines SET cart_id = $1, product_id = $2, quantity = $3 WHERE id = $4`
	qDeleteLine    = `DELETE FROM cart_lines WHERE id = $1`
	qDeleteLines   = `DELETE FROM cart_lines WHERE cart_id = $1`

	forUpdate = ` FOR UPDATE`
)

func scanCart(row *sql.Row) (models.Cart, error) {
	var c models.Cart
	err := row.Scan(&c.ID, &c.UserID, &c.Total)
	return c, err
}

func scanLines(rows *sql.Rows) ([]models.CartLine, error) {
	defer rows.Close()
	out := []models.CartLine{}
	for rows.Next() {
		var l models.CartLine
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func getCart(ctx context.Context, q querier, id int64, lock string) (models.Cart, error) {
	c, err := scanCart(q.QueryRowContext(ctx, qCartByID+lock, id))
	if err != nil {
		return models.Cart{}, notFoundOr(err, "cart", id)
	}
	return c, nil
}

func getCartLine(ctx context.Context, q querier, id int64, lock string) (models.CartLine, error) {
	var l models.CartLine
	err := q.QueryRowContext(ctx, qLineByID+lock, id).Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity)
	if err != nil {
		return models.CartLine{}, notFoundOr(err, "cart line", id)
	}
	return l, nil
}

func getCartLines(ctx context.Context, q querier, cartID int64, lock string) ([]models.CartLine, error) {
	rows, err := q.QueryContext(ctx, qLinesByCart+lock, cartID)
	if err != nil {
		return nil, mapErr(err)
	}
	return scanLines(rows)
}

// EnsureCart creates the user's cart if it does not exist yet and returns it.
func (s *PostgresStore) EnsureCart(ctx context.Context, userID int64) (models.Cart, error) {
	if _, err := s.DB.ExecContext(ctx, qEnsureCart, userID); err != nil {
		return models.Cart{}, mapErr(err)
	}
	return s.GetCartByUser(ctx, userID)
}

func (s *PostgresStore) GetCart(ctx context.Context, id int64) (models.Cart, error) {
	return getCart(ctx, s.DB, id, "")
}

func (s *PostgresStore) GetCartByUser(ctx context.Context, userID int64) (models.Cart, error) {
	c, err := scanCart(s.DB.QueryRowContext(ctx, qCartByUser, userID))
	if err != nil {
		return models.Cart{}, notFoundOr(err, "cart for user", userID)
	}
	return c, nil
}

func (s *PostgresStore) GetCartLine(ctx context.Context, id int64) (models.CartLine, error) {
	return getCartLine(ctx, s.DB, id, "")
}

func (s *PostgresStore) GetCartLinesByCart(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	return getCartLines(ctx, s.DB, cartID, "")
}

func (t *pgTx) GetCart(ctx context.Context, id int64) (models.Cart, error) {
	return getCart(ctx, t.q, id, forUpdate)
}

func (t *pgTx) UpdateCartTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	return execOne(ctx, t.q, "cart", id, qCartTotal, total, id)
}

func (t *pgTx) GetCartLine(ctx context.Context, id int64) (models.CartLine, error) {
	return getCartLine(ctx, t.q, id, forUpdate)
}

func (t *pgTx) FindCartLine(ctx context.Context, cartID, productID int64) (models.CartLine, error) {
	var l models.CartLine
	err := t.q.QueryRowContext(ctx, qLineByProduct+forUpdate, cartID, productID).
		Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity)
	if err != nil {
		return models.CartLine{}, notFoundOr(err, "cart line for product", productID)
	}
	return l, nil
}

func (t *pgTx) GetCartLinesByCart(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	return getCartLines(ctx, t.q, cartID, forUpdate)
}

func (t *pgTx) InsertCartLine(ctx context.Context, line *models.CartLine) error {
	err := t.q.QueryRowContext(ctx, qInsertLine, line.CartID, line.ProductID, line.Quantity).Scan(&line.ID)
	return mapErr(err)
}

func (t *pgTx) UpdateCartLine(ctx context.Context, line models.CartLine) error {
	return execOne(ctx, t.q, "cart line", line.ID, qUpdateLine, line.CartID, line.ProductID, line.Quantity, line.ID)
}

func (t *pgTx) DeleteCartLine(ctx context.Context, id int64) error {
	return execOne(ctx, t.q, "cart line", id, qDeleteLine, id)
}

func (t *pgTx) DeleteCartLinesByCart(ctx context.Context, cartID int64) (int64, error) {
	res, err := t.q.ExecContext(ctx, qDeleteLines, cartID)
	if err != nil {
		return 0, mapErr(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// execOne runs a write that must touch exactly one row.
func execOne(ctx context.Context, q querier, entity string, id int64, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return mapErr(err)
	}
	ra, _ := res.RowsAffected()
	if ra == 0 {
		return models.NotFound(entity, id)
	}
	return nil
}
