package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sembako32/backend/internal/domain"
	"sembako32/backend/internal/store"
)

func TestCancelSaleReversesEveryLineOnce(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, domain.SaleOrder{
		Status: domain.SaleStatusUnpaid,
		Lines: []domain.SaleLine{
			{OfferingID: "OFF-BERAS-SM", Qty: 10},
			{OfferingID: "OFF-GULA-TJ", Qty: 15},
		},
	})
	require.NoError(t, err)

	result, err := s.CancelSale(ctx, sale.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, result.Applied)

	result, err = s.CancelSale(ctx, sale.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, result.Applied, "second cancel must not apply")

	for id, want := range map[string]int{"OFF-BERAS-SM": 40, "OFF-GULA-TJ": 60} {
		offering, err := s.GetOffering(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, offering.StockQuantity, id)
	}
}

func TestCancelSaleMissingOfferingChangesNothing(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, domain.SaleOrder{
		Status: domain.SaleStatusPaid,
		Lines: []domain.SaleLine{
			{OfferingID: "OFF-TELUR-TJ", Qty: 5},
			{OfferingID: "OFF-TEPUNG-SM", Qty: 4},
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.DeleteOffering(ctx, "OFF-TEPUNG-SM"))

	_, err = s.CancelSale(ctx, sale.ID, time.Now().UTC())
	assert.ErrorIs(t, err, store.ErrStockRecordMissing)

	telur, err := s.GetOffering(ctx, "OFF-TELUR-TJ")
	require.NoError(t, err)
	assert.Equal(t, 20, telur.StockQuantity)
	current, err := s.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusPaid, current.Status)
}

func TestCancelSaleRejectsStockOverflow(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.CreateOffering(ctx, domain.SupplierOffering{
		ID:            "OFF-GULA-SM",
		SupplierID:    "SUP-SUMBER-MAKMUR",
		ProductID:     "PRD-GULA-1KG",
		StockQuantity: 10,
	})
	require.NoError(t, err)

	sale, err := s.CreateSale(ctx, domain.SaleOrder{
		Status: domain.SaleStatusUnpaid,
		Lines:  []domain.SaleLine{{OfferingID: "OFF-GULA-SM", Qty: 10}},
	})
	require.NoError(t, err)

	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		SupplierID: "SUP-SUMBER-MAKMUR",
		Lines:      []domain.PurchaseLine{{OfferingID: "OFF-GULA-SM", Qty: store.MaxQuantity - 5}},
	})
	require.NoError(t, err)
	_, err = s.CompletePurchaseOrder(ctx, po.ID, time.Now().UTC())
	require.NoError(t, err)

	_, err = s.CancelSale(ctx, sale.ID, time.Now().UTC())
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	offering, err := s.GetOffering(ctx, "OFF-GULA-SM")
	require.NoError(t, err)
	assert.Equal(t, store.MaxQuantity-5, offering.StockQuantity)
	current, err := s.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusUnpaid, current.Status)
}

func TestCompletePurchaseOrderRejectsStockOverflow(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		SupplierID: "SUP-SUMBER-MAKMUR",
		Lines:      []domain.PurchaseLine{{OfferingID: "OFF-BERAS-SM", Qty: store.MaxQuantity}},
	})
	require.NoError(t, err)

	_, err = s.CompletePurchaseOrder(ctx, po.ID, time.Now().UTC())
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	offering, err := s.GetOffering(ctx, "OFF-BERAS-SM")
	require.NoError(t, err)
	assert.Equal(t, 40, offering.StockQuantity)
	pending, err := s.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusPending, pending.Status)
}

func TestActiveSaleLinesExcludeCancelledSales(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.CreateSale(ctx, domain.SaleOrder{Status: domain.SaleStatusUnpaid, Lines: []domain.SaleLine{{OfferingID: "OFF-GULA-TJ", Qty: 2}}})
	require.NoError(t, err)
	dropped, err := s.CreateSale(ctx, domain.SaleOrder{Status: domain.SaleStatusUnpaid, Lines: []domain.SaleLine{{OfferingID: "OFF-GULA-TJ", Qty: 3}}})
	require.NoError(t, err)
	_, err = s.CancelSale(ctx, dropped.ID, time.Now().UTC())
	require.NoError(t, err)

	lines, err := s.ListActiveSaleLines(ctx, domain.InventoryFilter{ProductID: "PRD-GULA-1KG"})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Qty)
}

func TestCompletePurchaseOrderCreditsStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		SupplierID: "SUP-SUMBER-MAKMUR",
		Lines:      []domain.PurchaseLine{{OfferingID: "OFF-MINYAK-SM", Qty: 24}},
	})
	require.NoError(t, err)
	_, err = s.CompletePurchaseOrder(ctx, po.ID, time.Now().UTC())
	require.NoError(t, err)

	offering, err := s.GetOffering(ctx, "OFF-MINYAK-SM")
	require.NoError(t, err)
	assert.Equal(t, 42, offering.StockQuantity)

	lines, err := s.ListCompletedPurchaseLines(ctx, domain.InventoryFilter{SupplierID: "SUP-SUMBER-MAKMUR"})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 24, lines[0].Qty)
}
