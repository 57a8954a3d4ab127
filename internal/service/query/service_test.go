package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/service/query"
	"github.com/vladislavdragonenkov/ims/internal/storage/memory"
)

func seedOrders(t *testing.T, orders domain.OrderRepository) {
	t.Helper()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	item := domain.LineItem{ProductID: "p", Name: "P", UnitPrice: decimal.NewFromInt(1), Quantity: 1, Subtotal: decimal.NewFromInt(1)}
	for i, tc := range []struct{ id, buyer string }{{"o1", "alice"}, {"o2", "bob"}, {"o3", "alice"}} {
		require.NoError(t, orders.Append(context.Background(), domain.Order{
			ID:          tc.id,
			BuyerID:     tc.buyer,
			LineItems:   []domain.LineItem{item},
			TotalAmount: item.Subtotal,
			Status:      domain.OrderStatusCompleted,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestGetOrderScoping(t *testing.T) {
	ctx := context.Background()
	orders := memory.NewOrderRepository()
	seedOrders(t, orders)
	svc := query.NewService(memory.NewProductRepository(), orders)

	alice := domain.Principal{ActorID: "alice", Role: domain.RoleBuyer}
	bob := domain.Principal{ActorID: "bob", Role: domain.RoleBuyer}
	owner := domain.Principal{ActorID: "shop", Role: domain.RoleOwner}

	got, err := svc.GetOrder(ctx, "o1", alice)
	require.NoError(t, err)
	require.Equal(t, "alice", got.BuyerID)

	_, err = svc.GetOrder(ctx, "o1", bob)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, errMissing := svc.GetOrder(ctx, "nope", bob)
	require.Equal(t, errMissing.Error() != "", err.Error() != "")

	got, err = svc.GetOrder(ctx, "o2", owner)
	require.NoError(t, err)
	require.Equal(t, "bob", got.BuyerID)

	_, err = svc.GetOrder(ctx, "o1", domain.Principal{ActorID: "x", Role: "admin"})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestListOrdersScoping(t *testing.T) {
	ctx := context.Background()
	orders := memory.NewOrderRepository()
	seedOrders(t, orders)
	svc := query.NewService(memory.NewProductRepository(), orders)

	all, err := svc.ListOrders(ctx, domain.Principal{ActorID: "shop", Role: domain.RoleOwner})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "o3", all[0].ID)

	mine, err := svc.ListOrders(ctx, domain.Principal{ActorID: "alice", Role: domain.RoleBuyer})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, []string{"o3", "o1"}, []string{mine[0].ID, mine[1].ID})

	none, err := svc.ListOrders(ctx, domain.Principal{ActorID: "carol", Role: domain.RoleBuyer})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestListCatalog(t *testing.T) {
	ctx := context.Background()
	products := memory.NewProductRepository()
	now := time.Now().UTC()
	require.NoError(t, products.Create(ctx, domain.Product{ID: "a", Name: "A", Category: "c", QRCode: "INV-A", CreatedBy: "o", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, products.Create(ctx, domain.Product{ID: "b", Name: "B", Category: "c", QRCode: "INV-B", CreatedBy: "o", CreatedAt: now.Add(time.Second), UpdatedAt: now}))
	svc := query.NewService(products, memory.NewOrderRepository())

	list, err := svc.ListCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "b", list[0].ID)
	require.True(t, list[0].LowStock())
}
