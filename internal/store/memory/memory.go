package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sembako32/backend/internal/domain"
	"sembako32/backend/internal/store"
	"sembako32/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	suppliers        map[string]domain.Supplier
	offerings        map[string]domain.SupplierOffering
	purchaseOrders   map[string]domain.PurchaseOrder
	sales            map[string]domain.SaleOrder
	movements        []domain.StockMovement
	reversedSaleLine map[string]struct{}
	auditLogs        []domain.AuditLog
}

func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		suppliers:        make(map[string]domain.Supplier),
		offerings:        make(map[string]domain.SupplierOffering),
		purchaseOrders:   make(map[string]domain.PurchaseOrder),
		sales:            make(map[string]domain.SaleOrder),
		movements:        make([]domain.StockMovement, 0, 128),
		reversedSaleLine: make(map[string]struct{}),
		auditLogs:        make([]domain.AuditLog, 0, 64),
	}
}

// NewSeeded returns a store with a small demo catalog so the server is
// usable without a database.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "PRD-BERAS-5KG", Name: "Beras Premium 5kg", Unit: "karung", MinStock: 20},
		{ID: "PRD-MINYAK-2L", Name: "Minyak Goreng 2L", Unit: "pouch", MinStock: 30},
		{ID: "PRD-GULA-1KG", Name: "Gula Pasir 1kg", Unit: "pak", MinStock: 25},
		{ID: "PRD-TEPUNG-1KG", Name: "Tepung Terigu 1kg", Unit: "pak", MinStock: 15},
		{ID: "PRD-TELUR-1KG", Name: "Telur Ayam 1kg", Unit: "kg", MinStock: 10},
	}
	for _, p := range products {
		p.CreatedAt = now
		s.products[p.ID] = p
	}

	suppliers := []domain.Supplier{
		{ID: "SUP-SUMBER-MAKMUR", Name: "CV Sumber Makmur", Phone: "0812-1111-2222"},
		{ID: "SUP-TANI-JAYA", Name: "UD Tani Jaya", Phone: "0813-3333-4444"},
	}
	for _, sup := range suppliers {
		sup.CreatedAt = now
		s.suppliers[sup.ID] = sup
	}

	offerings := []domain.SupplierOffering{
		{ID: "OFF-BERAS-SM", SupplierID: "SUP-SUMBER-MAKMUR", ProductID: "PRD-BERAS-5KG", StockQuantity: 40, BuyPrice: decimal.NewFromInt(68000), SellPrice: decimal.NewFromInt(72000), SellPriceRetail: decimal.NewFromInt(75000)},
		{ID: "OFF-BERAS-TJ", SupplierID: "SUP-TANI-JAYA", ProductID: "PRD-BERAS-5KG", StockQuantity: 12, BuyPrice: decimal.NewFromInt(66500), SellPrice: decimal.NewFromInt(71000), SellPriceRetail: decimal.NewFromInt(74000)},
		{ID: "OFF-MINYAK-SM", SupplierID: "SUP-SUMBER-MAKMUR", ProductID: "PRD-MINYAK-2L", StockQuantity: 18, BuyPrice: decimal.NewFromInt(34000), SellPrice: decimal.NewFromInt(36500), SellPriceRetail: decimal.NewFromInt(38000)},
		{ID: "OFF-GULA-TJ", SupplierID: "SUP-TANI-JAYA", ProductID: "PRD-GULA-1KG", StockQuantity: 60, BuyPrice: decimal.NewFromInt(16000), SellPrice: decimal.NewFromInt(17200), SellPriceRetail: decimal.NewFromInt(18000)},
		{ID: "OFF-TEPUNG-SM", SupplierID: "SUP-SUMBER-MAKMUR", ProductID: "PRD-TEPUNG-1KG", StockQuantity: 9, BuyPrice: decimal.NewFromInt(11000), SellPrice: decimal.NewFromInt(12000), SellPriceRetail: decimal.NewFromInt(12500)},
		{ID: "OFF-TELUR-TJ", SupplierID: "SUP-TANI-JAYA", ProductID: "PRD-TELUR-1KG", StockQuantity: 25, BuyPrice: decimal.NewFromInt(27000), SellPrice: decimal.NewFromInt(28500), SellPriceRetail: decimal.NewFromInt(30000)},
	}
	for _, o := range offerings {
		o.CreatedAt = now
		s.offerings[o.ID] = o
		s.appendMovement(o.ID, o.StockQuantity, domain.MovementSourceInitial, o.ID, "", now)
	}

	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.MinStock < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if _, exists := s.suppliers[supplier.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliers[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) ListOfferings(_ context.Context, filter domain.InventoryFilter) ([]domain.SupplierOffering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offerings := make([]domain.SupplierOffering, 0, len(s.offerings))
	for _, o := range s.offerings {
		if !matchesFilter(o, filter) {
			continue
		}
		offerings = append(offerings, o)
	}
	slices.SortFunc(offerings, func(a, b domain.SupplierOffering) int {
		return strings.Compare(a.ID, b.ID)
	})
	return offerings, nil
}

func (s *Store) GetOffering(_ context.Context, id string) (*domain.SupplierOffering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offering, exists := s.offerings[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &offering, nil
}

func (s *Store) CreateOffering(_ context.Context, offering domain.SupplierOffering) (*domain.SupplierOffering, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offering.SupplierID == "" || offering.ProductID == "" || offering.StockQuantity < 0 || offering.StockQuantity > store.MaxQuantity {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.suppliers[offering.SupplierID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.products[offering.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.offerings {
		if existing.SupplierID == offering.SupplierID && existing.ProductID == offering.ProductID {
			return nil, store.ErrInvalidInput
		}
	}
	if offering.ID == "" {
		offering.ID = xid.New("off")
	}
	if offering.CreatedAt.IsZero() {
		offering.CreatedAt = time.Now().UTC()
	}
	s.offerings[offering.ID] = offering
	if offering.StockQuantity > 0 {
		s.appendMovement(offering.ID, offering.StockQuantity, domain.MovementSourceInitial, offering.ID, "", offering.CreatedAt)
	}
	created := offering
	return &created, nil
}

// DeleteOffering removes an offering from the catalog. Lines that still
// reference it are left untouched.
func (s *Store) DeleteOffering(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.offerings[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.offerings, id)
	return nil
}

func (s *Store) ListCompletedPurchaseLines(_ context.Context, filter domain.InventoryFilter) ([]domain.FlowLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]domain.FlowLine, 0, 64)
	for _, po := range s.purchaseOrders {
		if po.Status != domain.PurchaseStatusCompleted {
			continue
		}
		for _, line := range po.Lines {
			if !s.lineMatchesFilter(line.OfferingID, filter) {
				continue
			}
			lines = append(lines, domain.FlowLine{OfferingID: line.OfferingID, Qty: line.Qty})
		}
	}
	return lines, nil
}

func (s *Store) ListActiveSaleLines(_ context.Context, filter domain.InventoryFilter) ([]domain.FlowLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]domain.FlowLine, 0, 64)
	for _, sale := range s.sales {
		if sale.Status == domain.SaleStatusCancelled {
			continue
		}
		for _, line := range sale.Lines {
			if !s.lineMatchesFilter(line.OfferingID, filter) {
				continue
			}
			lines = append(lines, domain.FlowLine{OfferingID: line.OfferingID, Qty: line.Qty})
		}
	}
	return lines, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.SupplierID == "" || len(po.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.suppliers[po.SupplierID]; !exists {
		return nil, store.ErrNotFound
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	po.Status = domain.PurchaseStatusPending
	po.CompletedAt = nil

	lines := make([]domain.PurchaseLine, 0, len(po.Lines))
	for _, line := range po.Lines {
		if line.OfferingID == "" || line.Qty < 1 || line.Qty > store.MaxQuantity {
			return nil, store.ErrInvalidInput
		}
		offering, exists := s.offerings[line.OfferingID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if offering.SupplierID != po.SupplierID {
			return nil, store.ErrInvalidInput
		}
		line.ID = xid.New("pol")
		line.PurchaseOrderID = po.ID
		lines = append(lines, line)
	}
	po.Lines = lines

	s.purchaseOrders[po.ID] = clonePurchaseOrder(po)
	saved := clonePurchaseOrder(po)
	return &saved, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, exists := s.purchaseOrders[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := clonePurchaseOrder(po)
	return &dup, nil
}

func (s *Store) CompletePurchaseOrder(_ context.Context, id string, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, exists := s.purchaseOrders[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.PurchaseStatusPending {
		return nil, store.ErrInvalidInput
	}
	credits := make(map[string]int, len(po.Lines))
	for _, line := range po.Lines {
		if _, ok := s.offerings[line.OfferingID]; !ok {
			return nil, store.ErrStockRecordMissing
		}
		credits[line.OfferingID] += line.Qty
	}
	if !s.creditsFit(credits) {
		return nil, store.ErrInvalidInput
	}

	for _, line := range po.Lines {
		offering := s.offerings[line.OfferingID]
		offering.StockQuantity += line.Qty
		s.offerings[line.OfferingID] = offering
		s.appendMovement(line.OfferingID, line.Qty, domain.MovementSourcePurchase, po.ID, line.ID, at)
	}

	po.Status = domain.PurchaseStatusCompleted
	po.CompletedAt = &at
	s.purchaseOrders[id] = po
	dup := clonePurchaseOrder(po)
	return &dup, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.SaleOrder) (*domain.SaleOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.Status != domain.SaleStatusUnpaid && sale.Status != domain.SaleStatusPaid {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.sales[sale.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	required := make(map[string]int, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.OfferingID == "" || line.Qty < 1 || line.Qty > store.MaxQuantity {
			return nil, store.ErrInvalidInput
		}
		if _, exists := s.offerings[line.OfferingID]; !exists {
			return nil, store.ErrNotFound
		}
		required[line.OfferingID] += line.Qty
	}
	for offeringID, qty := range required {
		if s.offerings[offeringID].StockQuantity < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	lines := make([]domain.SaleLine, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		line.ID = xid.New("sl")
		line.SaleOrderID = sale.ID
		offering := s.offerings[line.OfferingID]
		offering.StockQuantity -= line.Qty
		s.offerings[line.OfferingID] = offering
		s.appendMovement(line.OfferingID, -line.Qty, domain.MovementSourceSale, sale.ID, line.ID, sale.CreatedAt)
		lines = append(lines, line)
	}
	sale.Lines = lines
	sale.CancelledAt = nil
	if sale.Status == domain.SaleStatusPaid && sale.PaidAt == nil {
		paidAt := sale.CreatedAt
		sale.PaidAt = &paidAt
	}

	s.sales[sale.ID] = cloneSale(sale)
	saved := cloneSale(sale)
	return &saved, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.SaleOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) MarkSalePaid(_ context.Context, id string, at time.Time) (*domain.SaleOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	switch sale.Status {
	case domain.SaleStatusPaid:
	case domain.SaleStatusUnpaid:
		sale.Status = domain.SaleStatusPaid
		sale.PaidAt = &at
		s.sales[id] = sale
	default:
		return nil, store.ErrInvalidInput
	}
	dup := cloneSale(sale)
	return &dup, nil
}

// CancelSale flips the sale to Batal and credits every line back to its
// offering under a single lock, so either all reversals and the status
// change are visible or none are.
func (s *Store) CancelSale(_ context.Context, id string, at time.Time) (*store.CancelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleStatusCancelled {
		return &store.CancelResult{Sale: cloneSale(sale), Applied: false}, nil
	}

	credits := make(map[string]int, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.Qty < 0 {
			return nil, store.ErrInvalidInput
		}
		if _, ok := s.offerings[line.OfferingID]; !ok {
			return nil, store.ErrStockRecordMissing
		}
		if _, reversed := s.reversedSaleLine[line.ID]; reversed {
			return nil, store.ErrPersistenceFailure
		}
		credits[line.OfferingID] += line.Qty
	}
	if !s.creditsFit(credits) {
		return nil, store.ErrInvalidInput
	}

	for _, line := range sale.Lines {
		offering := s.offerings[line.OfferingID]
		offering.StockQuantity += line.Qty
		s.offerings[line.OfferingID] = offering
		s.reversedSaleLine[line.ID] = struct{}{}
		s.appendMovement(line.OfferingID, line.Qty, domain.MovementSourceSaleCancel, sale.ID, line.ID, at)
	}

	sale.Status = domain.SaleStatusCancelled
	sale.CancelledAt = &at
	s.sales[id] = sale
	return &store.CancelResult{Sale: cloneSale(sale), Applied: true}, nil
}

// creditsFit reports whether every offering can take its credit without
// exceeding store.MaxQuantity. Callers hold the write lock.
func (s *Store) creditsFit(credits map[string]int) bool {
	for offeringID, qty := range credits {
		if qty > store.MaxQuantity || s.offerings[offeringID].StockQuantity > store.MaxQuantity-qty {
			return false
		}
	}
	return true
}

func (s *Store) ListStockMovements(_ context.Context, offeringID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, 16)
	for i := len(s.movements) - 1; i >= 0; i-- {
		if s.movements[i].OfferingID != offeringID {
			continue
		}
		result = append(result, s.movements[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, len(s.auditLogs))
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		result = append(result, s.auditLogs[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// appendMovement expects s.mu to be held for writing.
func (s *Store) appendMovement(offeringID string, delta int, sourceType string, sourceID string, sourceLineID string, at time.Time) {
	s.movements = append(s.movements, domain.StockMovement{
		ID:           xid.New("mv"),
		OfferingID:   offeringID,
		Delta:        delta,
		SourceType:   sourceType,
		SourceID:     sourceID,
		SourceLineID: sourceLineID,
		CreatedAt:    at,
	})
}

// lineMatchesFilter expects s.mu to be held. Lines whose offering no
// longer exists only match an empty filter.
func (s *Store) lineMatchesFilter(offeringID string, filter domain.InventoryFilter) bool {
	if filter.SupplierID == "" && filter.ProductID == "" {
		return true
	}
	offering, ok := s.offerings[offeringID]
	if !ok {
		return false
	}
	return matchesFilter(offering, filter)
}

func matchesFilter(offering domain.SupplierOffering, filter domain.InventoryFilter) bool {
	if filter.SupplierID != "" && offering.SupplierID != filter.SupplierID {
		return false
	}
	if filter.ProductID != "" && offering.ProductID != filter.ProductID {
		return false
	}
	return true
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	lines := make([]domain.PurchaseLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	return dup
}

func cloneSale(src domain.SaleOrder) domain.SaleOrder {
	dup := src
	lines := make([]domain.SaleLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	return dup
}
