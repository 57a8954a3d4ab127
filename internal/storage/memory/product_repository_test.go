package memory_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/storage/memory"
)

func newProduct(id string, qty int64, createdAt time.Time) domain.Product {
	return domain.Product{
		ID:        id,
		Name:      "Product " + id,
		Category:  "tools",
		Quantity:  qty,
		Price:     decimal.RequireFromString("10.00"),
		QRCode:    "INV-" + id,
		CreatedBy: "owner-1",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestProductRepository_CreateGetByQR(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()
	p := newProduct("p1", 5, time.Now().UTC())

	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.GetByQR(ctx, p.QRCode)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)

	_, err = repo.GetByQR(ctx, "INV-UNKNOWN")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestProductRepository_CreateDuplicateQR(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()
	p := newProduct("p1", 5, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, p))

	dup := newProduct("p2", 1, time.Now().UTC())
	dup.QRCode = p.QRCode

	err := repo.Create(ctx, dup)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "qr_code", conflict.Field)
}

func TestProductRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newProduct("a", 1, base)))
	require.NoError(t, repo.Create(ctx, newProduct("b", 1, base.Add(time.Hour))))
	require.NoError(t, repo.Create(ctx, newProduct("c", 1, base.Add(30*time.Minute))))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{"b", "c", "a"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestProductRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newProduct("p1", 5, created)))

	qty := int64(42)
	at := created.Add(time.Minute)
	updated, err := repo.Update(ctx, "p1", domain.ProductPatch{Quantity: &qty}, at)
	require.NoError(t, err)
	require.Equal(t, int64(42), updated.Quantity)
	require.Equal(t, at, updated.UpdatedAt)

	_, err = repo.Update(ctx, "missing", domain.ProductPatch{Quantity: &qty}, at)
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	deleted, err := repo.Delete(ctx, "p1")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = repo.Delete(ctx, "p1")
	require.NoError(t, err)
	require.False(t, deleted)

	_, err = repo.GetByQR(ctx, "INV-p1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProductRepository_TryDecrement(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()
	created := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, newProduct("p1", 5, created)))

	ok, err := repo.TryDecrement(ctx, "p1", 3, created.Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.TryDecrement(ctx, "p1", 3, created.Add(2*time.Second))
	require.NoError(t, err)
	require.False(t, ok)

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Quantity)
	require.Equal(t, created.Add(time.Second), got.UpdatedAt)

	ok, err = repo.TryDecrement(ctx, "missing", 1, created)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = repo.TryDecrement(ctx, "p1", 0, created)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestProductRepository_TryDecrementConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()
	const stock = 50
	require.NoError(t, repo.Create(ctx, newProduct("hot", stock, time.Now().UTC())))

	var (
		wg   sync.WaitGroup
		wins atomic.Int64
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.TryDecrement(ctx, "hot", 1, time.Now().UTC())
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, "hot")
	require.NoError(t, err)
	require.Equal(t, int64(stock), wins.Load())
	require.Equal(t, int64(0), got.Quantity)
}

func TestProductRepository_DecrementAll(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, newProduct("a", 5, now)))
	require.NoError(t, repo.Create(ctx, newProduct("b", 1, now)))

	err := repo.DecrementAll(ctx, []domain.StockDelta{
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 2},
	}, now)
	var conflict *domain.StockConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "b", conflict.ProductID)
	require.Equal(t, int64(1), conflict.Available)

	a, _ := repo.Get(ctx, "a")
	b, _ := repo.Get(ctx, "b")
	require.Equal(t, int64(5), a.Quantity, "nothing applied on conflict")
	require.Equal(t, int64(1), b.Quantity)

	// Дубли одного товара складываются до проверки.
	err = repo.DecrementAll(ctx, []domain.StockDelta{
		{ProductID: "a", Quantity: 3},
		{ProductID: "a", Quantity: 3},
	}, now)
	require.ErrorIs(t, err, domain.ErrStockConflict)

	require.NoError(t, repo.DecrementAll(ctx, []domain.StockDelta{
		{ProductID: "a", Quantity: 5},
		{ProductID: "b", Quantity: 1},
	}, now))
	a, _ = repo.Get(ctx, "a")
	require.Equal(t, int64(0), a.Quantity)

	require.NoError(t, repo.Restock(ctx, []domain.StockDelta{{ProductID: "a", Quantity: 5}, {ProductID: "gone", Quantity: 1}}, now))
	a, _ = repo.Get(ctx, "a")
	require.Equal(t, int64(5), a.Quantity)
}

func TestProductRepository_DecrementAllRejectsOverflowingSum(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, newProduct("big", math.MaxInt64, now)))

	err := repo.DecrementAll(ctx, []domain.StockDelta{
		{ProductID: "big", Quantity: math.MaxInt64},
		{ProductID: "big", Quantity: 1},
	}, now)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.ErrorIs(t, err, domain.ErrQuantityOverflow)

	got, err := repo.Get(ctx, "big")
	require.NoError(t, err)
	require.Equal(t, int64(math.MaxInt64), got.Quantity)
}

func TestProductRepository_DecrementAllConcurrentNoDeadlock(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProductRepository()
	now := time.Now().UTC()
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
		require.NoError(t, repo.Create(ctx, newProduct(ids[i], 1000, now)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(shift int) {
			defer wg.Done()
			deltas := make([]domain.StockDelta, 0, len(ids))
			for j := range ids {
				deltas = append(deltas, domain.StockDelta{ProductID: ids[(j+shift)%len(ids)], Quantity: 1})
			}
			if err := repo.DecrementAll(ctx, deltas, time.Now().UTC()); err != nil && !errors.Is(err, domain.ErrStockConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		p, err := repo.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, int64(1000-64), p.Quantity)
	}
}
