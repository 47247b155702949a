// Package inventory derives stock flow statistics and low-stock alerts from
// the purchase and sale streams held by a store.Repository.
package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"sembako32/backend/internal/domain"
	"sembako32/backend/internal/store"
)

// Reader is the read side of the ledger the aggregation needs.
type Reader interface {
	ListOfferings(ctx context.Context, filter domain.InventoryFilter) ([]domain.SupplierOffering, error)
	ListCompletedPurchaseLines(ctx context.Context, filter domain.InventoryFilter) ([]domain.FlowLine, error)
	ListActiveSaleLines(ctx context.Context, filter domain.InventoryFilter) ([]domain.FlowLine, error)
}

// Aggregate loads offerings, completed purchase lines and active sale lines
// and folds them into one flow per offering. The three loads are not taken
// from a shared snapshot. Any failed load aborts the whole aggregation.
func Aggregate(ctx context.Context, r Reader, filter domain.InventoryFilter) ([]domain.OfferingFlow, error) {
	offerings, err := r.ListOfferings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: list offerings: %v", store.ErrDataUnavailable, err)
	}
	inflow, err := r.ListCompletedPurchaseLines(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: list purchase lines: %v", store.ErrDataUnavailable, err)
	}
	outflow, err := r.ListActiveSaleLines(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: list sale lines: %v", store.ErrDataUnavailable, err)
	}

	flows := BuildFlows(offerings, inflow, outflow)
	if filter.GroupBy == domain.GroupByOffering {
		return flows, nil
	}
	return GroupByProduct(flows), nil
}

// BuildFlows emits one flow per offering. CurrentStock is always the stored
// quantity; lines whose offering is not in the set are ignored.
func BuildFlows(offerings []domain.SupplierOffering, inflow []domain.FlowLine, outflow []domain.FlowLine) []domain.OfferingFlow {
	inflowByOffering := sumByOffering(inflow)
	outflowByOffering := sumByOffering(outflow)

	flows := make([]domain.OfferingFlow, 0, len(offerings))
	for _, offering := range offerings {
		flows = append(flows, domain.OfferingFlow{
			OfferingID:   offering.ID,
			SupplierID:   offering.SupplierID,
			ProductID:    offering.ProductID,
			CurrentStock: offering.StockQuantity,
			TotalInflow:  inflowByOffering[offering.ID],
			TotalOutflow: outflowByOffering[offering.ID],
			StockValue:   offering.BuyPrice.Mul(decimal.NewFromInt(int64(offering.StockQuantity))),
		})
	}

	sort.Slice(flows, func(i, j int) bool {
		if flows[i].ProductID == flows[j].ProductID {
			return flows[i].OfferingID < flows[j].OfferingID
		}
		return flows[i].ProductID < flows[j].ProductID
	})
	return flows
}

// GroupByProduct sums offering flows per product.
func GroupByProduct(flows []domain.OfferingFlow) []domain.OfferingFlow {
	index := make(map[string]int, len(flows))
	grouped := make([]domain.OfferingFlow, 0, len(flows))
	for _, flow := range flows {
		pos, ok := index[flow.ProductID]
		if !ok {
			index[flow.ProductID] = len(grouped)
			grouped = append(grouped, domain.OfferingFlow{
				ProductID:  flow.ProductID,
				StockValue: decimal.Zero,
			})
			pos = len(grouped) - 1
		}
		row := &grouped[pos]
		row.CurrentStock += flow.CurrentStock
		row.TotalInflow += flow.TotalInflow
		row.TotalOutflow += flow.TotalOutflow
		row.StockValue = row.StockValue.Add(flow.StockValue)
	}

	sort.Slice(grouped, func(i, j int) bool {
		return grouped[i].ProductID < grouped[j].ProductID
	})
	return grouped
}

// ReportRows decorates flows with product attributes. Flows whose product is
// unknown keep the product id as their display name.
func ReportRows(flows []domain.OfferingFlow, products []domain.Product) []domain.InventoryReportRow {
	byID := make(map[string]domain.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	rows := make([]domain.InventoryReportRow, 0, len(flows))
	for _, flow := range flows {
		product, ok := byID[flow.ProductID]
		name := product.Name
		if !ok {
			name = flow.ProductID
		}
		rows = append(rows, domain.InventoryReportRow{
			ProductID:   flow.ProductID,
			OfferingID:  flow.OfferingID,
			SupplierID:  flow.SupplierID,
			Nama:        name,
			Satuan:      product.Unit,
			StokAwal:    flow.OpeningStock(),
			TotalMasuk:  flow.TotalInflow,
			TotalKeluar: flow.TotalOutflow,
			Stok:        flow.CurrentStock,
			MinStok:     product.MinStock,
			NilaiStok:   flow.StockValue,
		})
	}
	return rows
}

func sumByOffering(lines []domain.FlowLine) map[string]int {
	totals := make(map[string]int, len(lines))
	for _, line := range lines {
		totals[line.OfferingID] += line.Qty
	}
	return totals
}
