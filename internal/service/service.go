package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"sembako32/backend/internal/cache"
	"sembako32/backend/internal/domain"
	"sembako32/backend/internal/inventory"
	"sembako32/backend/internal/store"
	"sembako32/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// CancelPolicy reports whether actor may cancel sale.
type CancelPolicy func(actor domain.Actor, sale domain.SaleOrder) bool

// DefaultCancelPolicy lets admins cancel any sale and everyone else cancel
// only the sales they created.
func DefaultCancelPolicy(actor domain.Actor, sale domain.SaleOrder) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	return actor.Username != "" && actor.Username == sale.CreatedBy
}

type Options struct {
	CancelTimeout   time.Duration
	CancelMarkerTTL time.Duration
	CancelPolicy    CancelPolicy
}

type Service struct {
	repo            store.Repository
	marker          cache.CancelMarker
	cancelTimeout   time.Duration
	cancelMarkerTTL time.Duration
	cancelPolicy    CancelPolicy
}

func New(repo store.Repository, marker cache.CancelMarker, opts Options) *Service {
	if marker == nil {
		marker = cache.NoopCancelMarker{}
	}
	if opts.CancelTimeout <= 0 {
		opts.CancelTimeout = 10 * time.Second
	}
	if opts.CancelMarkerTTL <= 0 {
		opts.CancelMarkerTTL = 24 * time.Hour
	}
	if opts.CancelPolicy == nil {
		opts.CancelPolicy = DefaultCancelPolicy
	}

	return &Service{
		repo:            repo,
		marker:          marker,
		cancelTimeout:   opts.CancelTimeout,
		cancelMarkerTTL: opts.CancelMarkerTTL,
		cancelPolicy:    opts.CancelPolicy,
	}
}

func (s *Service) InventoryReport(ctx context.Context, filter domain.InventoryFilter) (domain.InventoryReportResponse, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return domain.InventoryReportResponse{}, err
	}

	flows, err := inventory.Aggregate(ctx, s.repo, filter)
	if err != nil {
		return domain.InventoryReportResponse{}, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.InventoryReportResponse{}, readError(err)
	}

	return domain.InventoryReportResponse{
		GroupBy:     filter.GroupBy,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Items:       inventory.ReportRows(flows, products),
	}, nil
}

func (s *Service) LowStockAlerts(ctx context.Context, filter domain.InventoryFilter) (domain.LowStockResponse, error) {
	filter.GroupBy = domain.GroupByProduct
	filter, err := normalizeFilter(filter)
	if err != nil {
		return domain.LowStockResponse{}, err
	}

	flows, err := inventory.Aggregate(ctx, s.repo, filter)
	if err != nil {
		return domain.LowStockResponse{}, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.LowStockResponse{}, readError(err)
	}

	// Supplier-scoped views only judge what that supplier carries.
	if filter.SupplierID == "" {
		flows = inventory.WithUnstockedProducts(flows, products, filter.ProductID)
	}

	return domain.LowStockResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Alerts:      inventory.EvaluateLowStock(flows, products),
	}, nil
}

// CancelSale moves a sale to Batal and credits its lines back to stock at
// most once. Cancelling an already cancelled sale succeeds without touching
// stock. Once the store transaction starts it is not interrupted by the
// caller going away; it is bounded by the configured cancel timeout instead.
func (s *Service) CancelSale(ctx context.Context, saleID string) (domain.CancelSaleResponse, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.CancelSaleResponse{}, store.ErrInvalidInput
	}
	actor, _ := ActorFromContext(ctx)

	if record, ok := s.lookupCancelMarker(ctx, saleID); ok {
		if !s.cancelPolicy(actor, domain.SaleOrder{ID: record.SaleID, CreatedBy: record.CreatedBy}) {
			return domain.CancelSaleResponse{}, store.ErrForbidden
		}
		return domain.CancelSaleResponse{
			ID:               record.SaleID,
			Status:           domain.SaleStatusCancelled,
			AlreadyCancelled: true,
			CancelledAt:      record.CancelledAt.UTC().Format(time.RFC3339),
		}, nil
	}

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.CancelSaleResponse{}, persistenceError(err)
	}
	if !s.cancelPolicy(actor, *sale) {
		return domain.CancelSaleResponse{}, store.ErrForbidden
	}
	if sale.Status == domain.SaleStatusCancelled {
		s.markCancelled(ctx, *sale)
		return toCancelResponse(*sale, true), nil
	}

	detached := context.WithoutCancel(ctx)
	txCtx, cancel := context.WithTimeout(detached, s.cancelTimeout)
	defer cancel()

	result, err := s.repo.CancelSale(txCtx, saleID, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, store.ErrStockRecordMissing) {
			log.Printf("[service] WARN: cancel sale %s failed: %v", saleID, err)
		}
		return domain.CancelSaleResponse{}, persistenceError(err)
	}

	if result.Applied {
		s.logAudit(detached, "sale_cancel", "sale", result.Sale.ID, fmt.Sprintf("lines=%d previous_status=%s", len(result.Sale.Lines), sale.Status))
	}
	s.markCancelled(detached, result.Sale)
	return toCancelResponse(result.Sale, !result.Applied), nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, readError(err)
	}
	return products, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.ID = strings.ToUpper(strings.TrimSpace(req.ID))
	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.Name == "" || req.MinStock < 0 || req.MinStock > store.MaxQuantity {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.ID == "" {
		req.ID = xid.New("prd")
	}

	saved, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:        req.ID,
		Name:      req.Name,
		Unit:      req.Unit,
		MinStock:  req.MinStock,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Product{}, persistenceError(err)
	}

	s.logAudit(ctx, "product_create", "product", saved.ID, fmt.Sprintf("name=%s min_stock=%d", saved.Name, saved.MinStock))
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	suppliers, err := s.repo.ListSuppliers(ctx)
	if err != nil {
		return nil, readError(err)
	}
	return suppliers, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	saved, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Phone:     req.Phone,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Supplier{}, persistenceError(err)
	}

	s.logAudit(ctx, "supplier_create", "supplier", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListOfferings(ctx context.Context, filter domain.InventoryFilter) ([]domain.SupplierOffering, error) {
	filter.SupplierID = strings.TrimSpace(filter.SupplierID)
	filter.ProductID = strings.TrimSpace(filter.ProductID)
	offerings, err := s.repo.ListOfferings(ctx, filter)
	if err != nil {
		return nil, readError(err)
	}
	return offerings, nil
}

func (s *Service) CreateOffering(ctx context.Context, req domain.OfferingCreateRequest) (domain.SupplierOffering, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.SupplierOffering{}, err
	}

	req.SupplierID = strings.TrimSpace(req.SupplierID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.SupplierID == "" || req.ProductID == "" || req.InitialStock < 0 || req.InitialStock > store.MaxQuantity {
		return domain.SupplierOffering{}, store.ErrInvalidInput
	}
	if req.BuyPrice.IsNegative() || req.SellPrice.IsNegative() || req.SellPriceRetail.IsNegative() {
		return domain.SupplierOffering{}, store.ErrInvalidInput
	}

	saved, err := s.repo.CreateOffering(ctx, domain.SupplierOffering{
		ID:              xid.New("off"),
		SupplierID:      req.SupplierID,
		ProductID:       req.ProductID,
		StockQuantity:   req.InitialStock,
		BuyPrice:        req.BuyPrice,
		SellPrice:       req.SellPrice,
		SellPriceRetail: req.SellPriceRetail,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return domain.SupplierOffering{}, persistenceError(err)
	}

	s.logAudit(ctx, "offering_create", "offering", saved.ID, fmt.Sprintf("supplier=%s product=%s stock=%d", saved.SupplierID, saved.ProductID, saved.StockQuantity))
	return *saved, nil
}

func (s *Service) DeleteOffering(ctx context.Context, offeringID string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	offeringID = strings.TrimSpace(offeringID)
	if offeringID == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteOffering(ctx, offeringID); err != nil {
		return persistenceError(err)
	}
	s.logAudit(ctx, "offering_delete", "offering", offeringID, "")
	return nil
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrderResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	actor, _ := ActorFromContext(ctx)

	req.SupplierID = strings.TrimSpace(req.SupplierID)
	if req.SupplierID == "" || len(req.Lines) == 0 {
		return domain.PurchaseOrderResponse{}, store.ErrInvalidInput
	}

	lines := make([]domain.PurchaseLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		line.OfferingID = strings.TrimSpace(line.OfferingID)
		if line.OfferingID == "" || line.Qty < 1 || line.Qty > store.MaxQuantity || line.UnitPrice.IsNegative() {
			return domain.PurchaseOrderResponse{}, store.ErrInvalidInput
		}
		lines = append(lines, domain.PurchaseLine{
			OfferingID: line.OfferingID,
			Qty:        line.Qty,
			UnitPrice:  line.UnitPrice,
		})
	}

	saved, err := s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		ID:         xid.New("po"),
		SupplierID: req.SupplierID,
		Status:     domain.PurchaseStatusPending,
		CreatedBy:  actor.Username,
		CreatedAt:  time.Now().UTC(),
		Lines:      lines,
	})
	if err != nil {
		return domain.PurchaseOrderResponse{}, persistenceError(err)
	}

	s.logAudit(ctx, "purchase_order_create", "purchase_order", saved.ID, fmt.Sprintf("lines=%d", len(saved.Lines)))
	return domain.PurchaseOrderResponse{PurchaseOrder: *saved}, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	purchaseOrderID = strings.TrimSpace(purchaseOrderID)
	if purchaseOrderID == "" {
		return domain.PurchaseOrderResponse{}, store.ErrInvalidInput
	}
	po, err := s.repo.GetPurchaseOrder(ctx, purchaseOrderID)
	if err != nil {
		return domain.PurchaseOrderResponse{}, readError(err)
	}
	return domain.PurchaseOrderResponse{PurchaseOrder: *po}, nil
}

func (s *Service) CompletePurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrderResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	purchaseOrderID = strings.TrimSpace(purchaseOrderID)
	if purchaseOrderID == "" {
		return domain.PurchaseOrderResponse{}, store.ErrInvalidInput
	}

	completed, err := s.repo.CompletePurchaseOrder(ctx, purchaseOrderID, time.Now().UTC())
	if err != nil {
		return domain.PurchaseOrderResponse{}, persistenceError(err)
	}

	s.logAudit(ctx, "purchase_order_complete", "purchase_order", completed.ID, fmt.Sprintf("lines=%d", len(completed.Lines)))
	return domain.PurchaseOrderResponse{PurchaseOrder: *completed}, nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.SaleResponse{}, store.ErrForbidden
	}
	if len(req.Lines) == 0 {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}

	lines := make([]domain.SaleLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		line.OfferingID = strings.TrimSpace(line.OfferingID)
		if line.OfferingID == "" || line.Qty < 1 || line.Qty > store.MaxQuantity || line.UnitPrice.IsNegative() {
			return domain.SaleResponse{}, store.ErrInvalidInput
		}
		lines = append(lines, domain.SaleLine{
			OfferingID: line.OfferingID,
			Qty:        line.Qty,
			UnitPrice:  line.UnitPrice,
		})
	}

	status := domain.SaleStatusUnpaid
	if req.Paid {
		status = domain.SaleStatusPaid
	}

	saved, err := s.repo.CreateSale(ctx, domain.SaleOrder{
		ID:           xid.New("sale"),
		CustomerName: strings.TrimSpace(req.CustomerName),
		Status:       status,
		CreatedBy:    actor.Username,
		CreatedAt:    time.Now().UTC(),
		Lines:        lines,
	})
	if err != nil {
		return domain.SaleResponse{}, persistenceError(err)
	}

	s.logAudit(ctx, "sale_create", "sale", saved.ID, fmt.Sprintf("lines=%d status=%s", len(saved.Lines), saved.Status))
	return domain.SaleResponse{Sale: *saved}, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.SaleResponse, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.SaleResponse{}, readError(err)
	}
	return domain.SaleResponse{Sale: *sale}, nil
}

func (s *Service) MarkSalePaid(ctx context.Context, saleID string) (domain.SaleResponse, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.SaleResponse{}, store.ErrForbidden
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}

	sale, err := s.repo.MarkSalePaid(ctx, saleID, time.Now().UTC())
	if err != nil {
		return domain.SaleResponse{}, persistenceError(err)
	}

	s.logAudit(ctx, "sale_pay", "sale", sale.ID, "")
	return domain.SaleResponse{Sale: *sale}, nil
}

func (s *Service) ListStockMovements(ctx context.Context, offeringID string, limit int) (domain.StockMovementListResponse, error) {
	offeringID = strings.TrimSpace(offeringID)
	if offeringID == "" {
		return domain.StockMovementListResponse{}, store.ErrInvalidInput
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}

	movements, err := s.repo.ListStockMovements(ctx, offeringID, limit)
	if err != nil {
		return domain.StockMovementListResponse{}, readError(err)
	}
	return domain.StockMovementListResponse{OfferingID: offeringID, Movements: movements}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	logs, err := s.repo.ListAuditLogs(ctx, limit)
	if err != nil {
		return nil, readError(err)
	}
	return logs, nil
}

func (s *Service) lookupCancelMarker(ctx context.Context, saleID string) (*cache.CancelRecord, bool) {
	record, ok, err := s.marker.Get(ctx, saleID)
	if err != nil {
		log.Printf("[service] WARN: cancel marker lookup failed sale=%s: %v", saleID, err)
		return nil, false
	}
	if !ok || record == nil {
		return nil, false
	}
	return record, true
}

func (s *Service) markCancelled(ctx context.Context, sale domain.SaleOrder) {
	if sale.Status != domain.SaleStatusCancelled {
		return
	}
	record := cache.CancelRecord{SaleID: sale.ID, CreatedBy: sale.CreatedBy}
	if sale.CancelledAt != nil {
		record.CancelledAt = *sale.CancelledAt
	}
	if err := s.marker.Mark(ctx, record, s.cancelMarkerTTL); err != nil {
		log.Printf("[service] WARN: cancel marker write failed sale=%s: %v", sale.ID, err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func toCancelResponse(sale domain.SaleOrder, alreadyCancelled bool) domain.CancelSaleResponse {
	resp := domain.CancelSaleResponse{
		ID:               sale.ID,
		Status:           sale.Status,
		AlreadyCancelled: alreadyCancelled,
	}
	if sale.CancelledAt != nil {
		resp.CancelledAt = sale.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func normalizeFilter(filter domain.InventoryFilter) (domain.InventoryFilter, error) {
	filter.SupplierID = strings.TrimSpace(filter.SupplierID)
	filter.ProductID = strings.TrimSpace(filter.ProductID)
	filter.GroupBy = strings.ToLower(strings.TrimSpace(filter.GroupBy))
	switch filter.GroupBy {
	case "":
		filter.GroupBy = domain.GroupByProduct
	case domain.GroupByProduct, domain.GroupByOffering:
	default:
		return filter, store.ErrInvalidInput
	}
	return filter, nil
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: admin role required", store.ErrForbidden)
	}
	return nil
}

var knownErrors = []error{
	store.ErrNotFound,
	store.ErrForbidden,
	store.ErrInvalidInput,
	store.ErrInsufficientStock,
	store.ErrStockRecordMissing,
	store.ErrDataUnavailable,
	store.ErrPersistenceFailure,
}

func isKnownError(err error) bool {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

// persistenceError passes domain errors through and reports anything else
// from the store as a retryable persistence failure.
func persistenceError(err error) error {
	if err == nil || isKnownError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrPersistenceFailure, err)
}

func readError(err error) error {
	if err == nil || isKnownError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrDataUnavailable, err)
}
