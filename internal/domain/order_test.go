package domain_test

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	product := domain.Product{ID: "p-1", Name: "Widget", Price: decimal.RequireFromString("10.00")}
	item := domain.NewLineItem(product, 3)
	return domain.Order{
		ID:          "order-1",
		BuyerID:     "buyer-1",
		LineItems:   []domain.LineItem{item},
		TotalAmount: domain.SumLineItems([]domain.LineItem{item}),
		Status:      domain.OrderStatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestNewLineItemSnapshotsProduct(t *testing.T) {
	product := domain.Product{ID: "p-1", Name: "Widget", Price: decimal.RequireFromString("19.99")}

	item := domain.NewLineItem(product, 3)

	require.Equal(t, "p-1", item.ProductID)
	require.Equal(t, "Widget", item.Name)
	require.True(t, item.Subtotal.Equal(decimal.RequireFromString("59.97")), item.Subtotal.String())
}

func TestSumLineItemsIsExact(t *testing.T) {
	// 0.1 * 3 в float64 даёт 0.30000000000000004.
	p := domain.Product{ID: "p", Price: decimal.RequireFromString("0.1")}
	items := []domain.LineItem{domain.NewLineItem(p, 1), domain.NewLineItem(p, 1), domain.NewLineItem(p, 1)}

	require.True(t, domain.SumLineItems(items).Equal(decimal.RequireFromString("0.3")))
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	require.Empty(t, order.ValidateInvariants())
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no buyer",
			mut:  func(o *domain.Order) { o.BuyerID = "" },
			want: domain.ErrBuyerRequired,
		},
		{
			name: "no items",
			mut:  func(o *domain.Order) { o.LineItems = nil },
			want: domain.ErrItemsRequired,
		},
		{
			name: "qty invalid",
			mut:  func(o *domain.Order) { o.LineItems[0].Quantity = 0 },
			want: domain.ErrItemQtyInvalid,
		},
		{
			name: "subtotal mismatch",
			mut:  func(o *domain.Order) { o.LineItems[0].Subtotal = decimal.NewFromInt(1) },
			want: domain.ErrSubtotalMismatch,
		},
		{
			name: "amount mismatch",
			mut:  func(o *domain.Order) { o.TotalAmount = decimal.NewFromInt(999) },
			want: domain.ErrAmountMismatch,
		},
		{
			name: "unknown status",
			mut:  func(o *domain.Order) { o.Status = "shipped" },
			want: domain.ErrStatusInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			require.Contains(t, order.ValidateInvariants(), tc.want)
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	for _, raw := range []string{"pending", "completed", "cancelled"} {
		status, err := domain.ParseOrderStatus(raw)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatus(raw), status)
	}

	_, err := domain.ParseOrderStatus("canceled")
	require.ErrorIs(t, err, domain.ErrValidation)
	require.ErrorIs(t, err, domain.ErrStatusInvalid)
}

func TestAggregateDeltasMergesDuplicates(t *testing.T) {
	items := []domain.LineItem{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 4},
	}

	deltas, err := domain.AggregateDeltas(items)
	require.NoError(t, err)

	require.Equal(t, []domain.StockDelta{
		{ProductID: "b", Quantity: 5},
		{ProductID: "a", Quantity: 2},
	}, deltas)
}

func TestMergeDeltasRejectsOverflow(t *testing.T) {
	_, err := domain.MergeDeltas([]domain.StockDelta{
		{ProductID: "a", Quantity: math.MaxInt64},
		{ProductID: "a", Quantity: 1},
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.ErrorIs(t, err, domain.ErrQuantityOverflow)

	merged, err := domain.MergeDeltas([]domain.StockDelta{
		{ProductID: "a", Quantity: math.MaxInt64 - 1},
		{ProductID: "a", Quantity: 1},
	})
	require.NoError(t, err)
	require.Equal(t, []domain.StockDelta{{ProductID: "a", Quantity: math.MaxInt64}}, merged)
}

func TestMergeDeltasRejectsNonPositive(t *testing.T) {
	_, err := domain.MergeDeltas([]domain.StockDelta{{ProductID: "a", Quantity: 0}})
	require.ErrorIs(t, err, domain.ErrItemQtyInvalid)
}
