package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	models "online-market/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// decimalArg matches a decimal query argument by value, so "25" equals "25.00".
type decimalArg string

func (d decimalArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	got, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return got.Equal(decimal.RequireFromString(string(d)))
}

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{DB: db}, mock
}

func q(query string) string { return regexp.QuoteMeta(query) }

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(q(qCartByID + forUpdate)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "total"}).AddRow(int64(7), int64(3), "5"))
	mock.ExpectExec(q(qCartTotal)).
		WithArgs(decimalArg("25"), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(ctx, func(tx Tx) error {
		c, err := tx.GetCart(ctx, 7)
		if err != nil {
			return err
		}
		return tx.UpdateCartTotal(ctx, c.ID, c.Total.Add(decimal.NewFromInt(20)))
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTx_RollsBackOnNotFound(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(q(qProductByID + forUpdate)).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "category", "price", "stock", "created_at"}))
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx Tx) error {
		_, err := tx.GetProduct(ctx, 99)
		return err
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTx_SerializationFailureIsConflict(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(q(qUpdateStock)).
		WithArgs(3, int64(1)).
		WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateProductStock(ctx, 1, 3)
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTx_CommitFailureIsConflict(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40P01"})

	err := s.WithTx(context.Background(), func(tx Tx) error { return nil })
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = s.WithTx(context.Background(), func(tx Tx) error { panic("boom") })
	}()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateCartTotal_NoRowsIsNotFound(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(q(qCartTotal)).
		WithArgs(decimalArg("0"), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateCartTotal(ctx, 4, decimal.Zero)
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetProduct_ScansDecimalPrice(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(q(qProductByID)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "category", "price", "stock", "created_at"}).
			AddRow(int64(1), "Yerba", "1kg", "food", "10.50", 5, created))

	p, err := s.GetProduct(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if !p.Price.Equal(decimal.RequireFromString("10.5")) || p.Stock != 5 || p.Name != "Yerba" {
		t.Fatalf("unexpected product: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnsureCart_InsertsThenReads(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(q(qEnsureCart)).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q(qCartByUser)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "total"}).AddRow(int64(9), int64(42), "0"))

	c, err := s.EnsureCart(context.Background(), 42)
	if err != nil {
		t.Fatalf("EnsureCart failed: %v", err)
	}
	if c.ID != 9 || c.UserID != 42 || !c.Total.IsZero() {
		t.Fatalf("unexpected cart: %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetCartLinesByCart_Success(t *testing.T) {
	s, mock := newMock(t)

	rows := sqlmock.NewRows([]string{"id", "cart_id", "product_id", "quantity"}).
		AddRow(int64(1), int64(5), int64(11), 2).
		AddRow(int64(2), int64(5), int64(12), 1)
	mock.ExpectQuery(q(qLinesByCart)).WithArgs(int64(5)).WillReturnRows(rows)

	got, err := s.GetCartLinesByCart(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetCartLinesByCart failed: %v", err)
	}
	if len(got) != 2 || got[0].ProductID != 11 || got[0].Quantity != 2 {
		t.Fatalf("unexpected cart lines: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertCartLine_UniqueViolationIsConflict(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(q(qInsertLine)).
		WithArgs(int64(5), int64(11), 3).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "cart_lines_cart_id_product_id_key"})
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx Tx) error {
		return tx.InsertCartLine(ctx, &models.CartLine{CartID: 5, ProductID: 11, Quantity: 3})
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDeleteCartLinesByCart_ReturnsCount(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(q(qDeleteLines)).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	var n int64
	err := s.WithTx(ctx, func(tx Tx) error {
		var err error
		n, err = tx.DeleteCartLinesByCart(ctx, 5)
		return err
	})
	if err != nil || n != 3 {
		t.Fatalf("expected 3 deleted lines, got %d (%v)", n, err)
	}
}

func TestInsertOrder_ReturnsID(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(q(qInsertOrder)).
		WithArgs(int64(3), models.StatusPending, "", "cash", "Rosario", "Santa Fe", "AR", decimalArg("25.00"), now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(77)))
	mock.ExpectCommit()

	o := models.Order{
		UserID: 3, Status: models.StatusPending, PaymentMethod: "cash",
		City: "Rosario", Province: "Santa Fe", Country: "AR",
		Total: decimal.NewFromInt(25), CreatedAt: now,
	}
	err := s.WithTx(ctx, func(tx Tx) error { return tx.InsertOrder(ctx, &o) })
	if err != nil {
		t.Fatalf("InsertOrder failed: %v", err)
	}
	if o.ID != 77 {
		t.Fatalf("expected order id 77, got %d", o.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPendingEventsAndMarkSent(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(q(qPendingEvents)).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "type", "key", "payload", "created_at"}).
			AddRow(int64(1), "0b7e", models.EventOrderCreated, "77", []byte(`{"order_id":77}`), now))
	mock.ExpectExec(q(qMarkSent)).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(qMarkSent)).WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 0))

	evs, err := s.PendingEvents(ctx, 10)
	if err != nil {
		t.Fatalf("PendingEvents failed: %v", err)
	}
	if len(evs) != 1 || evs[0].Key != "77" || string(evs[0].Payload) != `{"order_id":77}` {
		t.Fatalf("unexpected events: %+v", evs)
	}
	if err := s.MarkEventSent(ctx, 1); err != nil {
		t.Fatalf("MarkEventSent failed: %v", err)
	}
	if err := s.MarkEventSent(ctx, 2); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown event, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListOrders_FiltersByUser(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()
	cols := []string{"id", "user_id", "status", "description", "payment_method", "city", "province", "country", "total", "created_at"}

	mock.ExpectQuery(q(qOrdersByUser)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), int64(3), models.StatusPending, "", "card", "", "", "", "12.50", now).
			AddRow(int64(4), int64(3), "Paid", "", "cash", "", "", "", "3", now))
	mock.ExpectQuery(q(qListOrders)).
		WillReturnRows(sqlmock.NewRows(cols))

	orders, err := s.ListOrders(ctx, 3)
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if len(orders) != 2 || orders[1].Status != "Paid" || !orders[0].Total.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected orders: %+v", orders)
	}
	all, err := s.ListOrders(ctx, 0)
	if err != nil || len(all) != 0 {
		t.Fatalf("expected empty list, got %v (%v)", all, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteOrder_NoRowsIsNotFound(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(q(qDeleteOrder)).WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx Tx) error { return tx.DeleteOrder(ctx, 9) })
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
