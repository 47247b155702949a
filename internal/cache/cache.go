package cache

import (
	"context"
	"time"
)

// CancelMarker remembers sales whose cancellation has already committed so
// repeat requests can answer without opening a store transaction. The store
// stays authoritative; a miss only means the marker does not know.
type CancelMarker interface {
	Get(ctx context.Context, saleID string) (*CancelRecord, bool, error)
	Mark(ctx context.Context, record CancelRecord, ttl time.Duration) error
}

// CancelRecord carries enough of the cancelled sale to answer a repeat
// request, including the creator for the cancel policy.
type CancelRecord struct {
	SaleID      string    `json:"sale_id"`
	CreatedBy   string    `json:"created_by"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type NoopCancelMarker struct{}

func (NoopCancelMarker) Get(_ context.Context, _ string) (*CancelRecord, bool, error) {
	return nil, false, nil
}

func (NoopCancelMarker) Mark(_ context.Context, _ CancelRecord, _ time.Duration) error {
	return nil
}

func cancelKey(saleID string) string {
	return "sale-cancelled:" + saleID
}
