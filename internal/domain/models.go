package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	MinStock  int       `json:"min_stock"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	MinStock int    `json:"min_stock"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// SupplierOffering is one supplier's priced, stocked listing of a product.
// Stock is tracked per offering, never per product globally.
type SupplierOffering struct {
	ID              string          `json:"id"`
	SupplierID      string          `json:"supplier_id"`
	ProductID       string          `json:"product_id"`
	StockQuantity   int             `json:"stock_quantity"`
	BuyPrice        decimal.Decimal `json:"buy_price"`
	SellPrice       decimal.Decimal `json:"sell_price"`
	SellPriceRetail decimal.Decimal `json:"sell_price_retail"`
	CreatedAt       time.Time       `json:"created_at"`
}

type OfferingCreateRequest struct {
	SupplierID      string          `json:"supplier_id"`
	ProductID       string          `json:"product_id"`
	InitialStock    int             `json:"initial_stock"`
	BuyPrice        decimal.Decimal `json:"buy_price"`
	SellPrice       decimal.Decimal `json:"sell_price"`
	SellPriceRetail decimal.Decimal `json:"sell_price_retail"`
}

type PurchaseLine struct {
	ID              string          `json:"id"`
	PurchaseOrderID string          `json:"purchase_order_id"`
	OfferingID      string          `json:"offering_id"`
	Qty             int             `json:"qty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
}

type PurchaseOrder struct {
	ID          string         `json:"id"`
	SupplierID  string         `json:"supplier_id"`
	Status      string         `json:"status"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Lines       []PurchaseLine `json:"lines"`
}

type PurchaseLineRequest struct {
	OfferingID string          `json:"offering_id"`
	Qty        int             `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID string                `json:"supplier_id"`
	Lines      []PurchaseLineRequest `json:"lines"`
}

type PurchaseOrderResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
}

type SaleLine struct {
	ID          string          `json:"id"`
	SaleOrderID string          `json:"sale_order_id"`
	OfferingID  string          `json:"offering_id"`
	Qty         int             `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type SaleOrder struct {
	ID           string     `json:"id"`
	CustomerName string     `json:"customer_name"`
	Status       string     `json:"status"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	Lines        []SaleLine `json:"lines"`
}

type SaleLineRequest struct {
	OfferingID string          `json:"offering_id"`
	Qty        int             `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type SaleCreateRequest struct {
	CustomerName string            `json:"customer_name"`
	Paid         bool              `json:"paid"`
	Lines        []SaleLineRequest `json:"lines"`
}

type SaleResponse struct {
	Sale SaleOrder `json:"sale"`
}

type CancelSaleResponse struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	AlreadyCancelled bool   `json:"already_cancelled"`
	CancelledAt      string `json:"cancelled_at,omitempty"`
}

// FlowLine is the projection of a purchase or sale line the flow
// aggregation needs.
type FlowLine struct {
	OfferingID string
	Qty        int
}

type StockMovement struct {
	ID           string    `json:"id"`
	OfferingID   string    `json:"offering_id"`
	Delta        int       `json:"delta"`
	SourceType   string    `json:"source_type"`
	SourceID     string    `json:"source_id"`
	SourceLineID string    `json:"source_line_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type StockMovementListResponse struct {
	OfferingID string          `json:"offering_id"`
	Movements  []StockMovement `json:"movements"`
}

type InventoryFilter struct {
	SupplierID string
	ProductID  string
	GroupBy    string
}

// OfferingFlow is the aggregated stock flow of one offering, or of one
// product when rows are grouped. OfferingID and SupplierID are empty on
// product rows.
type OfferingFlow struct {
	OfferingID   string
	SupplierID   string
	ProductID    string
	CurrentStock int
	TotalInflow  int
	TotalOutflow int
	StockValue   decimal.Decimal
}

// OpeningStock is derived for display and may be negative when the
// historical lines disagree with the stored quantity.
func (f OfferingFlow) OpeningStock() int {
	return f.CurrentStock - f.TotalInflow + f.TotalOutflow
}

type InventoryReportRow struct {
	ProductID   string          `json:"productId"`
	OfferingID  string          `json:"offeringId,omitempty"`
	SupplierID  string          `json:"supplierId,omitempty"`
	Nama        string          `json:"nama"`
	Satuan      string          `json:"satuan"`
	StokAwal    int             `json:"stokAwal"`
	TotalMasuk  int             `json:"totalMasuk"`
	TotalKeluar int             `json:"totalKeluar"`
	Stok        int             `json:"stok"`
	MinStok     int             `json:"minStok"`
	NilaiStok   decimal.Decimal `json:"nilaiStok"`
}

type InventoryReportResponse struct {
	GroupBy     string               `json:"group_by"`
	GeneratedAt string               `json:"generated_at"`
	Items       []InventoryReportRow `json:"items"`
}

type LowStockAlert struct {
	ProductID  string `json:"productId"`
	Nama       string `json:"nama"`
	Satuan     string `json:"satuan"`
	Stok       int    `json:"stok"`
	MinStok    int    `json:"minStok"`
	Kekurangan int    `json:"kekurangan"`
}

type LowStockResponse struct {
	GeneratedAt string          `json:"generated_at"`
	Alerts      []LowStockAlert `json:"alerts"`
}

type Actor struct {
	Username string
	Role     string
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	SaleStatusUnpaid    = "Belum Lunas"
	SaleStatusPaid      = "Lunas"
	SaleStatusCancelled = "Batal"
)

const (
	PurchaseStatusPending   = "Pending"
	PurchaseStatusCompleted = "Selesai"
)

const (
	MovementSourceInitial    = "initial"
	MovementSourcePurchase   = "purchase"
	MovementSourceSale       = "sale"
	MovementSourceSaleCancel = "sale_cancel"
)

const (
	GroupByProduct  = "product"
	GroupByOffering = "offering"
)

const (
	RoleAdmin = "admin"
	RoleSales = "sales"
)
