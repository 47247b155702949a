package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"sembako32/backend/internal/domain"
	"sembako32/backend/internal/store"
	"sembako32/backend/internal/xid"
)

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.SupplierID == "" || len(po.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	po.Status = domain.PurchaseStatusPending
	po.CompletedAt = nil

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var supplierExists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1)`, po.SupplierID).Scan(&supplierExists); err != nil {
		return nil, err
	}
	if !supplierExists {
		return nil, store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, supplier_id, status, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, po.ID, po.SupplierID, po.Status, po.CreatedBy, po.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	lines := make([]domain.PurchaseLine, 0, len(po.Lines))
	for _, line := range po.Lines {
		if line.OfferingID == "" || line.Qty < 1 || line.Qty > store.MaxQuantity {
			return nil, store.ErrInvalidInput
		}
		var offeringSupplier string
		err := tx.QueryRowContext(ctx, `SELECT supplier_id FROM supplier_offerings WHERE id = $1`, line.OfferingID).Scan(&offeringSupplier)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if offeringSupplier != po.SupplierID {
			return nil, store.ErrInvalidInput
		}

		line.ID = xid.New("pol")
		line.PurchaseOrderID = po.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_lines (id, purchase_order_id, offering_id, qty, unit_price)
			VALUES ($1,$2,$3,$4,$5)
		`, line.ID, line.PurchaseOrderID, line.OfferingID, line.Qty, line.UnitPrice)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	po.Lines = lines

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return loadPurchaseOrder(ctx, s.db, id, false)
}

// CompletePurchaseOrder credits every line to its offering and moves the
// order to Selesai in one transaction.
func (s *Store) CompletePurchaseOrder(ctx context.Context, id string, at time.Time) (*domain.PurchaseOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	po, err := loadPurchaseOrder(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if po.Status != domain.PurchaseStatusPending {
		return nil, store.ErrInvalidInput
	}

	for _, line := range byOffering(po.Lines, func(l domain.PurchaseLine) string { return l.OfferingID }) {
		if err := creditOffering(ctx, tx, line.OfferingID, line.Qty); err != nil {
			return nil, err
		}
		if err := insertMovement(ctx, tx, line.OfferingID, line.Qty, domain.MovementSourcePurchase, po.ID, line.ID, at); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE purchase_orders
		SET status = $2, completed_at = $3
		WHERE id = $1
	`, po.ID, domain.PurchaseStatusCompleted, at); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	po.Status = domain.PurchaseStatusCompleted
	completedAt := at
	po.CompletedAt = &completedAt
	return po, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.SaleOrder) (*domain.SaleOrder, error) {
	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.Status != domain.SaleStatusUnpaid && sale.Status != domain.SaleStatusPaid {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.CancelledAt = nil
	if sale.Status == domain.SaleStatusPaid && sale.PaidAt == nil {
		paidAt := sale.CreatedAt
		sale.PaidAt = &paidAt
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sale_orders (id, customer_name, status, created_by, created_at, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, sale.ID, sale.CustomerName, sale.Status, sale.CreatedBy, sale.CreatedAt, nullTime(sale.PaidAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	for _, line := range sale.Lines {
		if line.OfferingID == "" || line.Qty < 1 || line.Qty > store.MaxQuantity {
			return nil, store.ErrInvalidInput
		}
	}

	lines := make([]domain.SaleLine, 0, len(sale.Lines))
	for _, line := range byOffering(sale.Lines, func(l domain.SaleLine) string { return l.OfferingID }) {
		res, err := tx.ExecContext(ctx, `
			UPDATE supplier_offerings
			SET stock_quantity = stock_quantity - $2, updated_at = now()
			WHERE id = $1 AND stock_quantity >= $2
		`, line.OfferingID, line.Qty)
		if err != nil {
			if isCheckViolation(err) {
				return nil, store.ErrInsufficientStock
			}
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM supplier_offerings WHERE id = $1)`, line.OfferingID).Scan(&exists); err != nil {
				return nil, err
			}
			if !exists {
				return nil, store.ErrNotFound
			}
			return nil, store.ErrInsufficientStock
		}

		line.ID = xid.New("sl")
		line.SaleOrderID = sale.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_lines (id, sale_order_id, offering_id, qty, unit_price)
			VALUES ($1,$2,$3,$4,$5)
		`, line.ID, line.SaleOrderID, line.OfferingID, line.Qty, line.UnitPrice)
		if err != nil {
			return nil, err
		}
		if err := insertMovement(ctx, tx, line.OfferingID, -line.Qty, domain.MovementSourceSale, sale.ID, line.ID, sale.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	sale.Lines = lines

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.SaleOrder, error) {
	return loadSale(ctx, s.db, id, false)
}

func (s *Store) MarkSalePaid(ctx context.Context, id string, at time.Time) (*domain.SaleOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := loadSale(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	switch sale.Status {
	case domain.SaleStatusPaid:
		return sale, nil
	case domain.SaleStatusUnpaid:
	default:
		return nil, store.ErrInvalidInput
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sale_orders SET status = $2, paid_at = $3 WHERE id = $1
	`, id, domain.SaleStatusPaid, at); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	sale.Status = domain.SaleStatusPaid
	paidAt := at
	sale.PaidAt = &paidAt
	return sale, nil
}

// CancelSale reverses every line of a sale and marks it Batal. The sale row
// is locked first so concurrent cancellations serialize on it; the status
// update is the last write and only succeeds while the sale is not yet Batal.
func (s *Store) CancelSale(ctx context.Context, id string, at time.Time) (*store.CancelResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := loadSale(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if sale.Status == domain.SaleStatusCancelled {
		return &store.CancelResult{Sale: *sale, Applied: false}, nil
	}

	for _, line := range byOffering(sale.Lines, func(l domain.SaleLine) string { return l.OfferingID }) {
		if line.Qty < 0 {
			return nil, store.ErrInvalidInput
		}
		if err := creditOffering(ctx, tx, line.OfferingID, line.Qty); err != nil {
			return nil, err
		}
		if err := insertMovement(ctx, tx, line.OfferingID, line.Qty, domain.MovementSourceSaleCancel, sale.ID, line.ID, at); err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: sale line %s already reversed", store.ErrPersistenceFailure, line.ID)
			}
			return nil, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE sale_orders
		SET status = $2, cancelled_at = $3
		WHERE id = $1 AND status <> $2
	`, sale.ID, domain.SaleStatusCancelled, at)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		_ = tx.Rollback()
		current, err := loadSale(ctx, s.db, id, false)
		if err != nil {
			return nil, err
		}
		return &store.CancelResult{Sale: *current, Applied: false}, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	sale.Status = domain.SaleStatusCancelled
	cancelledAt := at
	sale.CancelledAt = &cancelledAt
	return &store.CancelResult{Sale: *sale, Applied: true}, nil
}

func creditOffering(ctx context.Context, q queryer, offeringID string, qty int) error {
	var stock int
	err := q.QueryRowContext(ctx, `
		UPDATE supplier_offerings
		SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1
		RETURNING stock_quantity
	`, offeringID, qty).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: offering %s", store.ErrStockRecordMissing, offeringID)
		}
		if isNumericOutOfRange(err) {
			return fmt.Errorf("%w: stock of offering %s out of range", store.ErrInvalidInput, offeringID)
		}
		return err
	}
	return nil
}

// byOffering returns the lines ordered by offering id so that every
// transaction locks offering rows in the same order.
func byOffering[L any](lines []L, offeringID func(L) string) []L {
	sorted := slices.Clone(lines)
	slices.SortStableFunc(sorted, func(a, b L) int {
		return strings.Compare(offeringID(a), offeringID(b))
	})
	return sorted
}

func loadPurchaseOrder(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.PurchaseOrder, error) {
	query := `
		SELECT id, supplier_id, status, created_by, created_at, completed_at
		FROM purchase_orders
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		po          domain.PurchaseOrder
		completedAt sql.NullTime
	)
	err := q.QueryRowContext(ctx, query, id).Scan(&po.ID, &po.SupplierID, &po.Status, &po.CreatedBy, &po.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	po.CreatedAt = po.CreatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		po.CompletedAt = &t
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, purchase_order_id, offering_id, qty, unit_price
		FROM purchase_lines
		WHERE purchase_order_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	po.Lines = make([]domain.PurchaseLine, 0, 8)
	for rows.Next() {
		var line domain.PurchaseLine
		if err := rows.Scan(&line.ID, &line.PurchaseOrderID, &line.OfferingID, &line.Qty, &line.UnitPrice); err != nil {
			_ = rows.Close()
			return nil, err
		}
		po.Lines = append(po.Lines, line)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	return &po, nil
}

func loadSale(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.SaleOrder, error) {
	query := `
		SELECT id, customer_name, status, created_by, created_at, paid_at, cancelled_at
		FROM sale_orders
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		sale        domain.SaleOrder
		paidAt      sql.NullTime
		cancelledAt sql.NullTime
	)
	err := q.QueryRowContext(ctx, query, id).Scan(&sale.ID, &sale.CustomerName, &sale.Status, &sale.CreatedBy, &sale.CreatedAt, &paidAt, &cancelledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		sale.PaidAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		sale.CancelledAt = &t
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, sale_order_id, offering_id, qty, unit_price
		FROM sale_lines
		WHERE sale_order_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	sale.Lines = make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ID, &line.SaleOrderID, &line.OfferingID, &line.Qty, &line.UnitPrice); err != nil {
			_ = rows.Close()
			return nil, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	return &sale, nil
}
