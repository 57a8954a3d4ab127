package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

func sampleProduct(id string, qty int64, createdAt time.Time) domain.Product {
	return domain.Product{
		ID:        id,
		Name:      "Product " + id,
		Category:  "tools",
		Quantity:  qty,
		Price:     decimal.RequireFromString("10.50"),
		QRCode:    "INV-" + id,
		CreatedBy: "owner-1",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func sampleOrder(id, buyerID string, createdAt time.Time) domain.Order {
	item := domain.NewLineItem(sampleProduct("p-1", 0, createdAt), 3)
	return domain.Order{
		ID:          id,
		BuyerID:     buyerID,
		LineItems:   []domain.LineItem{item},
		TotalAmount: item.Subtotal,
		Status:      domain.OrderStatusCompleted,
		CreatedAt:   createdAt,
	}
}

func TestProductRepository_PostgresCRUD(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	p1 := sampleProduct("p-1", 5, now.Add(-time.Minute))
	p2 := sampleProduct("p-2", 1, now)

	if err := repo.Create(ctx, p1); err != nil {
		t.Fatalf("create p1: %v", err)
	}
	if err := repo.Create(ctx, p2); err != nil {
		t.Fatalf("create p2: %v", err)
	}

	dup := sampleProduct("p-3", 1, now)
	dup.QRCode = p1.QRCode
	var conflict *domain.ConflictError
	if err := repo.Create(ctx, dup); !errors.As(err, &conflict) || conflict.Field != "qr_code" {
		t.Fatalf("expected qr_code conflict, got %v", err)
	}

	got, err := repo.GetByQR(ctx, p1.QRCode)
	if err != nil {
		t.Fatalf("get by qr: %v", err)
	}
	if got.ID != p1.ID || !got.Price.Equal(p1.Price) {
		t.Fatalf("unexpected product: %+v", got)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != p2.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	name := "Renamed"
	updated, err := repo.Update(ctx, p1.ID, domain.ProductPatch{Name: &name}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name || updated.Quantity != 5 || updated.Category != p1.Category {
		t.Fatalf("update must touch only supplied fields: %+v", updated)
	}
	if _, err := repo.Update(ctx, "missing", domain.ProductPatch{Name: &name}, now); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}

	deleted, err := repo.Delete(ctx, p2.ID)
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	if deleted, _ := repo.Delete(ctx, p2.ID); deleted {
		t.Fatal("second delete must report false")
	}
}

func TestProductRepository_PostgresDecrements(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)
	ctx := context.Background()
	now := time.Now().UTC().Round(time.Microsecond)

	if err := repo.Create(ctx, sampleProduct("a", 5, now)); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := repo.Create(ctx, sampleProduct("b", 1, now)); err != nil {
		t.Fatalf("create b: %v", err)
	}

	if ok, err := repo.TryDecrement(ctx, "a", 3, now); err != nil || !ok {
		t.Fatalf("first decrement: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.TryDecrement(ctx, "a", 3, now); err != nil || ok {
		t.Fatalf("second decrement must fail: ok=%v err=%v", ok, err)
	}

	err := repo.DecrementAll(ctx, []domain.StockDelta{{ProductID: "a", Quantity: 1}, {ProductID: "b", Quantity: 2}}, now)
	var conflict *domain.StockConflictError
	if !errors.As(err, &conflict) || conflict.ProductID != "b" || conflict.Available != 1 {
		t.Fatalf("expected stock conflict on b, got %v", err)
	}
	a, _ := repo.Get(ctx, "a")
	if a.Quantity != 2 {
		t.Fatalf("all-or-nothing must not touch a, got %d", a.Quantity)
	}

	if err := repo.DecrementAll(ctx, []domain.StockDelta{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 1}}, now); err != nil {
		t.Fatalf("decrement all: %v", err)
	}
	if err := repo.Restock(ctx, []domain.StockDelta{{ProductID: "a", Quantity: 2}}, now); err != nil {
		t.Fatalf("restock: %v", err)
	}
	a, _ = repo.Get(ctx, "a")
	if a.Quantity != 2 {
		t.Fatalf("expected 2 after restock, got %d", a.Quantity)
	}
}

func TestProductRepository_PostgresLastUnitRace(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Create(ctx, sampleProduct("last", 1, now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		wg   sync.WaitGroup
		wins atomic.Int64
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := repo.TryDecrement(ctx, "last", 1, time.Now().UTC()); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
	p, _ := repo.Get(ctx, "last")
	if p.Quantity != 0 {
		t.Fatalf("expected final stock 0, got %d", p.Quantity)
	}
}

func TestOrderRepository_PostgresLedger(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("order-1", "buyer-1", now.Add(-2*time.Minute))
	order2 := sampleOrder("order-2", "buyer-1", now.Add(-time.Minute))
	order3 := sampleOrder("order-3", "buyer-2", now)

	for _, o := range []domain.Order{order1, order2, order3} {
		if err := repo.Append(ctx, o); err != nil {
			t.Fatalf("append %s: %v", o.ID, err)
		}
	}
	if err := repo.Append(ctx, order1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	got, err := repo.Get(ctx, order1.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.LineItems) != 1 || !got.TotalAmount.Equal(order1.TotalAmount) || !got.LineItems[0].Subtotal.Equal(order1.LineItems[0].Subtotal) {
		t.Fatalf("unexpected order payload: %+v", got)
	}

	if _, err := repo.GetForBuyer(ctx, order1.ID, "buyer-2"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found for foreign buyer, got %v", err)
	}

	mine, err := repo.ListByBuyer(ctx, "buyer-1")
	if err != nil {
		t.Fatalf("list by buyer: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != order2.ID {
		t.Fatalf("unexpected buyer listing: %+v", mine)
	}

	all, err := repo.List(ctx)
	if err != nil || len(all) != 3 || all[0].ID != order3.ID {
		t.Fatalf("unexpected full listing: %+v err=%v", all, err)
	}

	updated, err := repo.UpdateStatus(ctx, order1.ID, domain.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled || !updated.TotalAmount.Equal(order1.TotalAmount) {
		t.Fatalf("unexpected order after status update: %+v", updated)
	}
	if _, err := repo.UpdateStatus(ctx, "missing", domain.OrderStatusCancelled); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
