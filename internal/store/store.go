package store

import (
	"context"
	"errors"
	"math"
	"time"

	"sembako32/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrStockRecordMissing = errors.New("stock record missing")
	ErrDataUnavailable    = errors.New("data unavailable")
	ErrPersistenceFailure = errors.New("persistence failure")
)

// MaxQuantity bounds line quantities and offering stock. It matches the
// INTEGER columns of the postgres schema.
const MaxQuantity = math.MaxInt32

// CancelResult reports what CancelSale did. Applied is false when the sale
// was already cancelled, either before the call or by a concurrent caller
// that won the status transition.
type CancelResult struct {
	Sale    domain.SaleOrder
	Applied bool
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListOfferings(ctx context.Context, filter domain.InventoryFilter) ([]domain.SupplierOffering, error)
	GetOffering(ctx context.Context, id string) (*domain.SupplierOffering, error)
	CreateOffering(ctx context.Context, offering domain.SupplierOffering) (*domain.SupplierOffering, error)
	DeleteOffering(ctx context.Context, id string) error
	ListCompletedPurchaseLines(ctx context.Context, filter domain.InventoryFilter) ([]domain.FlowLine, error)
	ListActiveSaleLines(ctx context.Context, filter domain.InventoryFilter) ([]domain.FlowLine, error)
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	CompletePurchaseOrder(ctx context.Context, id string, at time.Time) (*domain.PurchaseOrder, error)
	CreateSale(ctx context.Context, sale domain.SaleOrder) (*domain.SaleOrder, error)
	GetSale(ctx context.Context, id string) (*domain.SaleOrder, error)
	MarkSalePaid(ctx context.Context, id string, at time.Time) (*domain.SaleOrder, error)
	CancelSale(ctx context.Context, id string, at time.Time) (*CancelResult, error)
	ListStockMovements(ctx context.Context, offeringID string, limit int) ([]domain.StockMovement, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}
