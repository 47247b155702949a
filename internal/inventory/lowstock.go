package inventory

import (
	"sort"

	"github.com/shopspring/decimal"

	"sembako32/backend/internal/domain"
)

// EvaluateLowStock returns an alert for every product-level flow whose stock
// is below the product's minimum, most urgent first. Flows for products not
// in the catalog are skipped.
func EvaluateLowStock(flows []domain.OfferingFlow, products []domain.Product) []domain.LowStockAlert {
	byID := make(map[string]domain.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	alerts := make([]domain.LowStockAlert, 0, 16)
	for _, flow := range flows {
		product, ok := byID[flow.ProductID]
		if !ok {
			continue
		}
		if flow.CurrentStock >= product.MinStock {
			continue
		}
		alerts = append(alerts, domain.LowStockAlert{
			ProductID:  product.ID,
			Nama:       product.Name,
			Satuan:     product.Unit,
			Stok:       flow.CurrentStock,
			MinStok:    product.MinStock,
			Kekurangan: product.MinStock - flow.CurrentStock,
		})
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Stok == alerts[j].Stok {
			return alerts[i].ProductID < alerts[j].ProductID
		}
		return alerts[i].Stok < alerts[j].Stok
	})
	return alerts
}

// WithUnstockedProducts appends a zero-stock flow for every catalog product
// that has no flow, optionally restricted to productID. A product without
// any offering holds no stock at all.
func WithUnstockedProducts(flows []domain.OfferingFlow, products []domain.Product, productID string) []domain.OfferingFlow {
	seen := make(map[string]struct{}, len(flows))
	for _, flow := range flows {
		seen[flow.ProductID] = struct{}{}
	}

	out := append(make([]domain.OfferingFlow, 0, len(flows)+len(products)), flows...)
	for _, product := range products {
		if productID != "" && product.ID != productID {
			continue
		}
		if _, ok := seen[product.ID]; ok {
			continue
		}
		out = append(out, domain.OfferingFlow{ProductID: product.ID, StockValue: decimal.Zero})
	}
	return out
}
