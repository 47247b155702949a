package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sembako32/backend/internal/cache"
	"sembako32/backend/internal/domain"
	"sembako32/backend/internal/store"
	"sembako32/backend/internal/store/memory"
)

var (
	adminActor = domain.Actor{Username: "admin", Role: domain.RoleAdmin}
	budiActor  = domain.Actor{Username: "budi", Role: domain.RoleSales}
	sariActor  = domain.Actor{Username: "sari", Role: domain.RoleSales}
)

type recordingMarker struct {
	mu      sync.Mutex
	records map[string]cache.CancelRecord
	getErr  error
	markErr error
}

func newRecordingMarker() *recordingMarker {
	return &recordingMarker{records: make(map[string]cache.CancelRecord)}
}

func (m *recordingMarker) Get(_ context.Context, saleID string) (*cache.CancelRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	record, ok := m.records[saleID]
	if !ok {
		return nil, false, nil
	}
	return &record, true, nil
}

func (m *recordingMarker) Mark(_ context.Context, record cache.CancelRecord, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	if _, exists := m.records[record.SaleID]; !exists {
		m.records[record.SaleID] = record
	}
	return nil
}

// flakyRepo wraps the memory store and lets a test replace individual
// operations.
type flakyRepo struct {
	*memory.Store
	saleLinesErr error
	cancelSale   func(ctx context.Context, id string, at time.Time) (*store.CancelResult, error)
	getSaleCalls atomic.Int32
}

func (r *flakyRepo) ListActiveSaleLines(ctx context.Context, filter domain.InventoryFilter) ([]domain.FlowLine, error) {
	if r.saleLinesErr != nil {
		return nil, r.saleLinesErr
	}
	return r.Store.ListActiveSaleLines(ctx, filter)
}

func (r *flakyRepo) GetSale(ctx context.Context, id string) (*domain.SaleOrder, error) {
	r.getSaleCalls.Add(1)
	return r.Store.GetSale(ctx, id)
}

func (r *flakyRepo) CancelSale(ctx context.Context, id string, at time.Time) (*store.CancelResult, error) {
	if r.cancelSale != nil {
		return r.cancelSale(ctx, id, at)
	}
	return r.Store.CancelSale(ctx, id, at)
}

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopCancelMarker{}, Options{}), repo
}

func seedStockedOffering(t *testing.T, svc *Service, stock int) domain.SupplierOffering {
	t.Helper()
	ctx := WithActor(context.Background(), adminActor)

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Kecap Manis 600ml", Unit: "botol", MinStock: 5})
	require.NoError(t, err)
	supplier, err := svc.CreateSupplier(ctx, domain.SupplierCreateRequest{Name: "CV Rasa Nusantara"})
	require.NoError(t, err)
	offering, err := svc.CreateOffering(ctx, domain.OfferingCreateRequest{
		SupplierID:   supplier.ID,
		ProductID:    product.ID,
		InitialStock: stock,
		BuyPrice:     decimal.NewFromInt(18000),
		SellPrice:    decimal.NewFromInt(21000),
	})
	require.NoError(t, err)
	return offering
}

func stockOf(t *testing.T, repo store.Repository, offeringID string) int {
	t.Helper()
	offering, err := repo.GetOffering(context.Background(), offeringID)
	require.NoError(t, err)
	return offering.StockQuantity
}

func createSale(t *testing.T, svc *Service, actor domain.Actor, lines ...domain.SaleLineRequest) domain.SaleOrder {
	t.Helper()
	resp, err := svc.CreateSale(WithActor(context.Background(), actor), domain.SaleCreateRequest{
		CustomerName: "Toko Berkah",
		Lines:        lines,
	})
	require.NoError(t, err)
	return resp.Sale
}

func TestCancelSaleRestoresStock(t *testing.T) {
	svc, repo := newTestService()
	offering := seedStockedOffering(t, svc, 10)

	sale := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: offering.ID, Qty: 3})
	assert.Equal(t, domain.SaleStatusUnpaid, sale.Status)
	assert.Equal(t, 7, stockOf(t, repo, offering.ID))

	resp, err := svc.CancelSale(WithActor(context.Background(), budiActor), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCancelled, resp.Status)
	assert.False(t, resp.AlreadyCancelled)
	assert.NotEmpty(t, resp.CancelledAt)
	assert.Equal(t, 10, stockOf(t, repo, offering.ID))

	got, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCancelled, got.Sale.Status)
}

func TestCancelSaleIsIdempotent(t *testing.T) {
	svc, repo := newTestService()
	offering := seedStockedOffering(t, svc, 10)
	sale := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: offering.ID, Qty: 3})
	ctx := WithActor(context.Background(), budiActor)

	_, err := svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)

	again, err := svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyCancelled)
	assert.Equal(t, domain.SaleStatusCancelled, again.Status)
	assert.Equal(t, 10, stockOf(t, repo, offering.ID))

	movements, err := svc.ListStockMovements(ctx, offering.ID, 50)
	require.NoError(t, err)
	reversals := 0
	for _, m := range movements.Movements {
		if m.SourceType == domain.MovementSourceSaleCancel {
			reversals++
		}
	}
	assert.Equal(t, 1, reversals)
}

func TestConcurrentCancelSaleAppliesOneReversal(t *testing.T) {
	svc, repo := newTestService()
	first := seedStockedOffering(t, svc, 10)
	sale := createSale(t, svc, budiActor,
		domain.SaleLineRequest{OfferingID: first.ID, Qty: 4},
		domain.SaleLineRequest{OfferingID: "OFF-GULA-TJ", Qty: 6},
	)
	require.Equal(t, 6, stockOf(t, repo, first.ID))
	require.Equal(t, 54, stockOf(t, repo, "OFF-GULA-TJ"))

	const callers = 16
	var (
		wg      sync.WaitGroup
		applied atomic.Int32
		failed  atomic.Int32
	)
	ctx := WithActor(context.Background(), adminActor)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.CancelSale(ctx, sale.ID)
			if err != nil {
				failed.Add(1)
				return
			}
			if !resp.AlreadyCancelled {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), failed.Load())
	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, 10, stockOf(t, repo, first.ID))
	assert.Equal(t, 60, stockOf(t, repo, "OFF-GULA-TJ"))
}

func TestCancelSaleMissingOfferingIsAllOrNothing(t *testing.T) {
	svc, repo := newTestService()
	doomed := seedStockedOffering(t, svc, 10)
	sale := createSale(t, svc, budiActor,
		domain.SaleLineRequest{OfferingID: "OFF-BERAS-SM", Qty: 5},
		domain.SaleLineRequest{OfferingID: doomed.ID, Qty: 2},
	)
	require.Equal(t, 35, stockOf(t, repo, "OFF-BERAS-SM"))

	adminCtx := WithActor(context.Background(), adminActor)
	require.NoError(t, svc.DeleteOffering(adminCtx, doomed.ID))

	_, err := svc.CancelSale(adminCtx, sale.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrStockRecordMissing))
	assert.Equal(t, 35, stockOf(t, repo, "OFF-BERAS-SM"))

	got, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusUnpaid, got.Sale.Status)
}

func TestCancelSalePolicy(t *testing.T) {
	svc, _ := newTestService()
	sale := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: "OFF-TELUR-TJ", Qty: 1})

	_, err := svc.CancelSale(WithActor(context.Background(), sariActor), sale.ID)
	assert.True(t, errors.Is(err, store.ErrForbidden))

	_, err = svc.CancelSale(context.Background(), sale.ID)
	assert.True(t, errors.Is(err, store.ErrForbidden))

	resp, err := svc.CancelSale(WithActor(context.Background(), budiActor), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCancelled, resp.Status)
}

func TestCancelSaleCustomPolicy(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, nil, Options{CancelPolicy: func(actor domain.Actor, _ domain.SaleOrder) bool {
		return actor.Role == domain.RoleAdmin
	}})
	sale := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: "OFF-TELUR-TJ", Qty: 1})

	_, err := svc.CancelSale(WithActor(context.Background(), budiActor), sale.ID)
	assert.True(t, errors.Is(err, store.ErrForbidden))
}

func TestCancelSaleRejectsUnknownAndEmptyIDs(t *testing.T) {
	svc, _ := newTestService()
	ctx := WithActor(context.Background(), adminActor)

	_, err := svc.CancelSale(ctx, "sale-missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = svc.CancelSale(ctx, "   ")
	assert.True(t, errors.Is(err, store.ErrInvalidInput))
}

func TestCancelPaidSale(t *testing.T) {
	svc, repo := newTestService()
	sale := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: "OFF-MINYAK-SM", Qty: 8})
	ctx := WithActor(context.Background(), budiActor)

	paid, err := svc.MarkSalePaid(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusPaid, paid.Sale.Status)
	assert.Equal(t, 10, stockOf(t, repo, "OFF-MINYAK-SM"))

	_, err = svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, 18, stockOf(t, repo, "OFF-MINYAK-SM"))

	_, err = svc.MarkSalePaid(ctx, sale.ID)
	assert.True(t, errors.Is(err, store.ErrInvalidInput))
}

func TestCancelSaleStoreFailureIsPersistenceFailure(t *testing.T) {
	repo := &flakyRepo{Store: memory.NewSeeded()}
	svc := New(repo, nil, Options{})
	sale := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: "OFF-GULA-TJ", Qty: 2})

	repo.cancelSale = func(_ context.Context, _ string, _ time.Time) (*store.CancelResult, error) {
		return nil, errors.New("connection refused")
	}

	_, err := svc.CancelSale(WithActor(context.Background(), adminActor), sale.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrPersistenceFailure))
	assert.Equal(t, 58, stockOf(t, repo, "OFF-GULA-TJ"))
}

func TestCancelSaleIgnoresCallerCancellation(t *testing.T) {
	repo := &flakyRepo{Store: memory.NewSeeded()}
	svc := New(repo, nil, Options{CancelTimeout: 200 * time.Millisecond})
	sale := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: "OFF-GULA-TJ", Qty: 2})

	var txCtxErr error
	repo.cancelSale = func(ctx context.Context, id string, at time.Time) (*store.CancelResult, error) {
		txCtxErr = ctx.Err()
		return repo.Store.CancelSale(ctx, id, at)
	}

	ctx, cancel := context.WithCancel(WithActor(context.Background(), adminActor))
	cancel()

	resp, err := svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.NoError(t, txCtxErr)
	assert.Equal(t, domain.SaleStatusCancelled, resp.Status)
	assert.Equal(t, 60, stockOf(t, repo, "OFF-GULA-TJ"))
}

func TestCancelSaleTimeoutIsPersistenceFailure(t *testing.T) {
	repo := &flakyRepo{Store: memory.NewSeeded()}
	svc := New(repo, nil, Options{CancelTimeout: 20 * time.Millisecond})
	sale := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: "OFF-GULA-TJ", Qty: 2})

	repo.cancelSale = func(ctx context.Context, _ string, _ time.Time) (*store.CancelResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := svc.CancelSale(WithActor(context.Background(), adminActor), sale.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrPersistenceFailure))

	got, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusUnpaid, got.Sale.Status)
}

func TestCancelMarkerShortCircuitsRepeatCancellation(t *testing.T) {
	repo := &flakyRepo{Store: memory.NewSeeded()}
	marker := newRecordingMarker()
	svc := New(repo, marker, Options{})
	sale := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: "OFF-TELUR-TJ", Qty: 5})
	ctx := WithActor(context.Background(), budiActor)

	_, err := svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)
	record, ok := marker.records[sale.ID]
	require.True(t, ok)
	assert.Equal(t, "budi", record.CreatedBy)

	calls := repo.getSaleCalls.Load()
	again, err := svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyCancelled)
	assert.Equal(t, calls, repo.getSaleCalls.Load())

	_, err = svc.CancelSale(WithActor(context.Background(), sariActor), sale.ID)
	assert.True(t, errors.Is(err, store.ErrForbidden))
}

func TestCancelMarkerFailuresAreIgnored(t *testing.T) {
	repo := memory.NewSeeded()
	marker := newRecordingMarker()
	marker.getErr = errors.New("redis down")
	marker.markErr = errors.New("redis down")
	svc := New(repo, marker, Options{})
	sale := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: "OFF-TELUR-TJ", Qty: 5})

	resp, err := svc.CancelSale(WithActor(context.Background(), budiActor), sale.ID)
	require.NoError(t, err)
	assert.False(t, resp.AlreadyCancelled)
	assert.Equal(t, 25, stockOf(t, repo, "OFF-TELUR-TJ"))
}

func TestCancelSaleWritesAuditLog(t *testing.T) {
	svc, _ := newTestService()
	sale := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: "OFF-TELUR-TJ", Qty: 1})

	_, err := svc.CancelSale(WithActor(context.Background(), budiActor), sale.ID)
	require.NoError(t, err)

	logs, err := svc.ListAuditLogs(WithActor(context.Background(), adminActor), 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "sale_cancel", logs[0].Action)
	assert.Equal(t, sale.ID, logs[0].EntityID)
	assert.Equal(t, "budi", logs[0].ActorUsername)
}

func TestInventoryReportCountsPurchasesAndActiveSales(t *testing.T) {
	svc, repo := newTestService()
	adminCtx := WithActor(context.Background(), adminActor)
	offering := seedStockedOffering(t, svc, 0)

	po, err := svc.CreatePurchaseOrder(adminCtx, domain.PurchaseOrderCreateRequest{
		SupplierID: offering.SupplierID,
		Lines:      []domain.PurchaseLineRequest{{OfferingID: offering.ID, Qty: 20, UnitPrice: decimal.NewFromInt(18000)}},
	})
	require.NoError(t, err)

	report, err := svc.InventoryReport(context.Background(), domain.InventoryFilter{ProductID: offering.ProductID})
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, 0, report.Items[0].TotalMasuk, "pending purchases are not inflow")

	_, err = svc.CompletePurchaseOrder(adminCtx, po.PurchaseOrder.ID)
	require.NoError(t, err)
	createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: offering.ID, Qty: 5})
	cancelled := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: offering.ID, Qty: 4})
	_, err = svc.CancelSale(adminCtx, cancelled.ID)
	require.NoError(t, err)
	require.Equal(t, 15, stockOf(t, repo, offering.ID))

	report, err = svc.InventoryReport(context.Background(), domain.InventoryFilter{ProductID: offering.ProductID})
	require.NoError(t, err)
	require.Len(t, report.Items, 1)

	row := report.Items[0]
	assert.Equal(t, domain.GroupByProduct, report.GroupBy)
	assert.Equal(t, offering.ProductID, row.ProductID)
	assert.Equal(t, "Kecap Manis 600ml", row.Nama)
	assert.Equal(t, 20, row.TotalMasuk)
	assert.Equal(t, 5, row.TotalKeluar)
	assert.Equal(t, 15, row.Stok)
	assert.Equal(t, 0, row.StokAwal)
	assert.True(t, decimal.NewFromInt(270000).Equal(row.NilaiStok))

	_, err = svc.CompletePurchaseOrder(adminCtx, po.PurchaseOrder.ID)
	assert.True(t, errors.Is(err, store.ErrInvalidInput))
}

func TestInventoryReportStockMatchesStoredQuantity(t *testing.T) {
	svc, repo := newTestService()
	createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: "OFF-BERAS-SM", Qty: 7})
	createSale(t, svc, sariActor, domain.SaleLineRequest{OfferingID: "OFF-BERAS-TJ", Qty: 2})

	report, err := svc.InventoryReport(context.Background(), domain.InventoryFilter{GroupBy: domain.GroupByOffering})
	require.NoError(t, err)
	require.NotEmpty(t, report.Items)
	for _, row := range report.Items {
		assert.Equal(t, stockOf(t, repo, row.OfferingID), row.Stok, row.OfferingID)
	}
}

func TestInventoryReportRejectsUnknownGrouping(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.InventoryReport(context.Background(), domain.InventoryFilter{GroupBy: "warehouse"})
	assert.True(t, errors.Is(err, store.ErrInvalidInput))
}

func TestInventoryReportReadFailureIsDataUnavailable(t *testing.T) {
	repo := &flakyRepo{Store: memory.NewSeeded(), saleLinesErr: errors.New("statement timeout")}
	svc := New(repo, nil, Options{})

	report, err := svc.InventoryReport(context.Background(), domain.InventoryFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrDataUnavailable))
	assert.Empty(t, report.Items)

	_, err = svc.LowStockAlerts(context.Background(), domain.InventoryFilter{})
	assert.True(t, errors.Is(err, store.ErrDataUnavailable))
}

func TestLowStockAlertsForSeededCatalog(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.LowStockAlerts(context.Background(), domain.InventoryFilter{})
	require.NoError(t, err)
	require.Len(t, resp.Alerts, 2)

	assert.Equal(t, "PRD-TEPUNG-1KG", resp.Alerts[0].ProductID)
	assert.Equal(t, 9, resp.Alerts[0].Stok)
	assert.Equal(t, 6, resp.Alerts[0].Kekurangan)
	assert.Equal(t, "PRD-MINYAK-2L", resp.Alerts[1].ProductID)
	assert.Equal(t, 18, resp.Alerts[1].Stok)
}

func TestLowStockAlertsIncludeProductsWithoutOfferings(t *testing.T) {
	svc, _ := newTestService()
	ctx := WithActor(context.Background(), adminActor)

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{ID: "PRD-GARAM-250G", Name: "Garam 250g", Unit: "pak", MinStock: 10})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteOffering(ctx, "OFF-TELUR-TJ"))

	resp, err := svc.LowStockAlerts(context.Background(), domain.InventoryFilter{})
	require.NoError(t, err)
	require.Len(t, resp.Alerts, 4)
	assert.Equal(t, "PRD-GARAM-250G", resp.Alerts[0].ProductID)
	assert.Equal(t, 0, resp.Alerts[0].Stok)
	assert.Equal(t, 10, resp.Alerts[0].Kekurangan)
	assert.Equal(t, "PRD-TELUR-1KG", resp.Alerts[1].ProductID)
	assert.Equal(t, 0, resp.Alerts[1].Stok)
	assert.Equal(t, "PRD-TEPUNG-1KG", resp.Alerts[2].ProductID)

	resp, err = svc.LowStockAlerts(context.Background(), domain.InventoryFilter{ProductID: "PRD-GARAM-250G"})
	require.NoError(t, err)
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, "PRD-GARAM-250G", resp.Alerts[0].ProductID)

	resp, err = svc.LowStockAlerts(context.Background(), domain.InventoryFilter{SupplierID: "SUP-SUMBER-MAKMUR"})
	require.NoError(t, err)
	for _, alert := range resp.Alerts {
		assert.NotEqual(t, "PRD-GARAM-250G", alert.ProductID)
	}
}

func TestQuantitiesBeyondStoreRangeAreInvalid(t *testing.T) {
	svc, _ := newTestService()
	adminCtx := WithActor(context.Background(), adminActor)

	_, err := svc.CreateSale(WithActor(context.Background(), budiActor), domain.SaleCreateRequest{
		Lines: []domain.SaleLineRequest{{OfferingID: "OFF-GULA-TJ", Qty: store.MaxQuantity + 1}},
	})
	assert.True(t, errors.Is(err, store.ErrInvalidInput))

	_, err = svc.CreatePurchaseOrder(adminCtx, domain.PurchaseOrderCreateRequest{
		SupplierID: "SUP-TANI-JAYA",
		Lines:      []domain.PurchaseLineRequest{{OfferingID: "OFF-GULA-TJ", Qty: store.MaxQuantity + 1}},
	})
	assert.True(t, errors.Is(err, store.ErrInvalidInput))

	_, err = svc.CreateOffering(adminCtx, domain.OfferingCreateRequest{
		SupplierID:   "SUP-SUMBER-MAKMUR",
		ProductID:    "PRD-GULA-1KG",
		InitialStock: store.MaxQuantity + 1,
	})
	assert.True(t, errors.Is(err, store.ErrInvalidInput))

	_, err = svc.CreateProduct(adminCtx, domain.ProductCreateRequest{Name: "Garam", MinStock: store.MaxQuantity + 1})
	assert.True(t, errors.Is(err, store.ErrInvalidInput))
}

func TestCancelSaleNeverWrapsStock(t *testing.T) {
	svc, repo := newTestService()
	offering := seedStockedOffering(t, svc, 10)
	adminCtx := WithActor(context.Background(), adminActor)

	sale := createSale(t, svc, budiActor, domain.SaleLineRequest{OfferingID: offering.ID, Qty: 10})

	po, err := svc.CreatePurchaseOrder(adminCtx, domain.PurchaseOrderCreateRequest{
		SupplierID: offering.SupplierID,
		Lines:      []domain.PurchaseLineRequest{{OfferingID: offering.ID, Qty: store.MaxQuantity - 5}},
	})
	require.NoError(t, err)
	_, err = svc.CompletePurchaseOrder(adminCtx, po.PurchaseOrder.ID)
	require.NoError(t, err)

	_, err = svc.CancelSale(adminCtx, sale.ID)
	assert.True(t, errors.Is(err, store.ErrInvalidInput))
	assert.Equal(t, store.MaxQuantity-5, stockOf(t, repo, offering.ID))

	current, err := repo.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusUnpaid, current.Status)
}

func TestCreateSaleRejectsOversell(t *testing.T) {
	svc, repo := newTestService()
	ctx := WithActor(context.Background(), budiActor)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{Lines: []domain.SaleLineRequest{
		{OfferingID: "OFF-TEPUNG-SM", Qty: 5},
		{OfferingID: "OFF-TEPUNG-SM", Qty: 5},
	}})
	assert.True(t, errors.Is(err, store.ErrInsufficientStock))
	assert.Equal(t, 9, stockOf(t, repo, "OFF-TEPUNG-SM"))

	_, err = svc.CreateSale(ctx, domain.SaleCreateRequest{Lines: []domain.SaleLineRequest{{OfferingID: "OFF-TEPUNG-SM", Qty: 0}}})
	assert.True(t, errors.Is(err, store.ErrInvalidInput))

	_, err = svc.CreateSale(context.Background(), domain.SaleCreateRequest{Lines: []domain.SaleLineRequest{{OfferingID: "OFF-TEPUNG-SM", Qty: 1}}})
	assert.True(t, errors.Is(err, store.ErrForbidden))
}

func TestCatalogWritesRequireAdmin(t *testing.T) {
	svc, _ := newTestService()
	ctx := WithActor(context.Background(), budiActor)

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Sarden"})
	assert.True(t, errors.Is(err, store.ErrForbidden))
	_, err = svc.CreateSupplier(ctx, domain.SupplierCreateRequest{Name: "PT Laut"})
	assert.True(t, errors.Is(err, store.ErrForbidden))
	_, err = svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{SupplierID: "SUP-TANI-JAYA"})
	assert.True(t, errors.Is(err, store.ErrForbidden))
}

func TestCreatePurchaseOrderRejectsForeignOffering(t *testing.T) {
	svc, _ := newTestService()
	ctx := WithActor(context.Background(), adminActor)

	_, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: "SUP-TANI-JAYA",
		Lines:      []domain.PurchaseLineRequest{{OfferingID: "OFF-BERAS-SM", Qty: 3}},
	})
	assert.True(t, errors.Is(err, store.ErrInvalidInput))
}
