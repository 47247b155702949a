package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sembako32/backend/internal/domain"
	"sembako32/backend/internal/store"
)

type fakeReader struct {
	offerings    []domain.SupplierOffering
	purchases    []domain.FlowLine
	sales        []domain.FlowLine
	offeringsErr error
	purchasesErr error
	salesErr     error
}

func (f fakeReader) ListOfferings(_ context.Context, _ domain.InventoryFilter) ([]domain.SupplierOffering, error) {
	return f.offerings, f.offeringsErr
}

func (f fakeReader) ListCompletedPurchaseLines(_ context.Context, _ domain.InventoryFilter) ([]domain.FlowLine, error) {
	return f.purchases, f.purchasesErr
}

func (f fakeReader) ListActiveSaleLines(_ context.Context, _ domain.InventoryFilter) ([]domain.FlowLine, error) {
	return f.sales, f.salesErr
}

func TestAggregateReportsStoredStockWithFlows(t *testing.T) {
	r := fakeReader{
		offerings: []domain.SupplierOffering{
			{ID: "OFF-1", SupplierID: "SUP-1", ProductID: "PRD-1", StockQuantity: 15, BuyPrice: decimal.NewFromInt(1000)},
		},
		purchases: []domain.FlowLine{{OfferingID: "OFF-1", Qty: 20}},
		sales:     []domain.FlowLine{{OfferingID: "OFF-1", Qty: 5}},
	}

	flows, err := Aggregate(context.Background(), r, domain.InventoryFilter{})
	require.NoError(t, err)
	require.Len(t, flows, 1)

	assert.Equal(t, "PRD-1", flows[0].ProductID)
	assert.Equal(t, 15, flows[0].CurrentStock)
	assert.Equal(t, 20, flows[0].TotalInflow)
	assert.Equal(t, 5, flows[0].TotalOutflow)
	assert.Equal(t, 0, flows[0].OpeningStock())
	assert.True(t, decimal.NewFromInt(15000).Equal(flows[0].StockValue))
}

func TestAggregateKeepsStoredStockWhenHistoryDisagrees(t *testing.T) {
	r := fakeReader{
		offerings: []domain.SupplierOffering{{ID: "OFF-1", ProductID: "PRD-1", StockQuantity: 3}},
		purchases: []domain.FlowLine{{OfferingID: "OFF-1", Qty: 2}},
		sales:     []domain.FlowLine{{OfferingID: "OFF-1", Qty: 1}},
	}

	flows, err := Aggregate(context.Background(), r, domain.InventoryFilter{GroupBy: domain.GroupByOffering})
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, 3, flows[0].CurrentStock)
	assert.Equal(t, 2, flows[0].OpeningStock())

	r.offerings[0].StockQuantity = 0
	r.purchases = []domain.FlowLine{{OfferingID: "OFF-1", Qty: 9}}
	flows, err = Aggregate(context.Background(), r, domain.InventoryFilter{GroupBy: domain.GroupByOffering})
	require.NoError(t, err)
	assert.Equal(t, 0, flows[0].CurrentStock)
	assert.Equal(t, -8, flows[0].OpeningStock())
}

func TestAggregateGroupsOfferingsByProduct(t *testing.T) {
	r := fakeReader{
		offerings: []domain.SupplierOffering{
			{ID: "OFF-B", SupplierID: "SUP-2", ProductID: "PRD-1", StockQuantity: 4, BuyPrice: decimal.NewFromInt(10)},
			{ID: "OFF-A", SupplierID: "SUP-1", ProductID: "PRD-1", StockQuantity: 6, BuyPrice: decimal.NewFromInt(20)},
			{ID: "OFF-C", SupplierID: "SUP-1", ProductID: "PRD-0", StockQuantity: 1},
		},
		purchases: []domain.FlowLine{
			{OfferingID: "OFF-A", Qty: 5},
			{OfferingID: "OFF-B", Qty: 3},
			{OfferingID: "OFF-GONE", Qty: 100},
		},
		sales: []domain.FlowLine{
			{OfferingID: "OFF-A", Qty: 2},
			{OfferingID: "OFF-A", Qty: 1},
		},
	}

	flows, err := Aggregate(context.Background(), r, domain.InventoryFilter{GroupBy: domain.GroupByProduct})
	require.NoError(t, err)
	require.Len(t, flows, 2)

	assert.Equal(t, "PRD-0", flows[0].ProductID)
	assert.Equal(t, "PRD-1", flows[1].ProductID)
	assert.Empty(t, flows[1].OfferingID)
	assert.Equal(t, 10, flows[1].CurrentStock)
	assert.Equal(t, 8, flows[1].TotalInflow)
	assert.Equal(t, 3, flows[1].TotalOutflow)
	assert.True(t, decimal.NewFromInt(160).Equal(flows[1].StockValue))
}

func TestAggregateOfferingRowsAreOrdered(t *testing.T) {
	r := fakeReader{
		offerings: []domain.SupplierOffering{
			{ID: "OFF-2", ProductID: "PRD-1"},
			{ID: "OFF-1", ProductID: "PRD-1"},
			{ID: "OFF-0", ProductID: "PRD-2"},
		},
	}

	flows, err := Aggregate(context.Background(), r, domain.InventoryFilter{GroupBy: domain.GroupByOffering})
	require.NoError(t, err)
	require.Len(t, flows, 3)
	assert.Equal(t, []string{"OFF-1", "OFF-2", "OFF-0"}, []string{flows[0].OfferingID, flows[1].OfferingID, flows[2].OfferingID})
}

func TestAggregateFailsWholeOnAnyReadError(t *testing.T) {
	boom := errors.New("connection reset")
	cases := map[string]fakeReader{
		"offerings": {offeringsErr: boom},
		"purchases": {purchasesErr: boom},
		"sales":     {salesErr: boom},
	}

	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			r.offerings = append(r.offerings, domain.SupplierOffering{ID: "OFF-1", ProductID: "PRD-1", StockQuantity: 1})
			flows, err := Aggregate(context.Background(), r, domain.InventoryFilter{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, store.ErrDataUnavailable))
			assert.Nil(t, flows)
		})
	}
}

func TestReportRowsUsesProductAttributes(t *testing.T) {
	flows := []domain.OfferingFlow{
		{ProductID: "PRD-1", CurrentStock: 15, TotalInflow: 20, TotalOutflow: 5, StockValue: decimal.NewFromInt(900)},
		{ProductID: "PRD-X", CurrentStock: 1},
	}
	products := []domain.Product{{ID: "PRD-1", Name: "Beras 5kg", Unit: "karung", MinStock: 20}}

	rows := ReportRows(flows, products)
	require.Len(t, rows, 2)

	assert.Equal(t, "Beras 5kg", rows[0].Nama)
	assert.Equal(t, "karung", rows[0].Satuan)
	assert.Equal(t, 20, rows[0].TotalMasuk)
	assert.Equal(t, 5, rows[0].TotalKeluar)
	assert.Equal(t, 15, rows[0].Stok)
	assert.Equal(t, 0, rows[0].StokAwal)
	assert.Equal(t, 20, rows[0].MinStok)
	assert.Equal(t, "PRD-X", rows[1].Nama)
}
