package service

import (
	"testing"

	models "online-market/model"
	"online-market/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAvailabilityDoesNotMutate(t *testing.T) {
	p := models.Product{ID: 1, Price: decimal.NewFromInt(10), Stock: 3}
	var l Ledger

	require.NoError(t, l.CheckAvailability(p, 3))
	require.NoError(t, l.CheckAvailability(p, 3))

	err := l.CheckAvailability(p, 4)
	require.ErrorIs(t, err, models.ErrInsufficientStock)
	var ise *models.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 3, ise.Available)
	assert.Equal(t, 4, ise.Requested)
	assert.Equal(t, 3, p.Stock)
}

func TestLedgerDebitAndCredit(t *testing.T) {
	f := newFixture(t)
	created := f.product(t, "rice", "2", 5)
	var l Ledger

	err := f.store.WithTx(f.ctx, func(tx store.Tx) error {
		p, err := tx.GetProduct(f.ctx, created.ID)
		if err != nil {
			return err
		}
		if err := l.Debit(f.ctx, tx, &p, 5); err != nil {
			return err
		}
		assert.Equal(t, 0, p.Stock)
		if err := l.Debit(f.ctx, tx, &p, 1); err == nil {
			t.Errorf("debit below zero must fail")
		}
		return l.Credit(f.ctx, tx, &p, 2)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, f.stock(t, created.ID))
}

func TestLedgerRejectsNonPositiveQuantities(t *testing.T) {
	f := newFixture(t)
	created := f.product(t, "rice", "2", 5)
	var l Ledger

	err := f.store.WithTx(f.ctx, func(tx store.Tx) error {
		p, err := tx.GetProduct(f.ctx, created.ID)
		if err != nil {
			return err
		}
		assert.ErrorIs(t, l.Debit(f.ctx, tx, &p, 0), models.ErrInvalidArgument)
		assert.ErrorIs(t, l.Credit(f.ctx, tx, &p, -1), models.ErrInvalidArgument)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, created.ID))
}

// Any interleaving of debits and credits leaves stock non-negative.
func TestStockNeverNegative(t *testing.T) {
	f := newFixture(t)
	created := f.product(t, "rice", "2", 3)
	var l Ledger

	ops := []int{-2, -2, +1, -3, -1, +4, -5, -4, +2, -1}
	for _, op := range ops {
		_ = f.store.WithTx(f.ctx, func(tx store.Tx) error {
			p, err := tx.GetProduct(f.ctx, created.ID)
			if err != nil {
				return err
			}
			if op < 0 {
				return l.Debit(f.ctx, tx, &p, -op)
			}
			return l.Credit(f.ctx, tx, &p, op)
		})
		require.GreaterOrEqual(t, f.stock(t, created.ID), 0)
	}
}
