package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sembako32/backend/internal/domain"
	"sembako32/backend/internal/store"
	"sembako32/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit, min_stock, created_at
		FROM products
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Unit, &p.MinStock, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, unit, min_stock, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Unit, &p.MinStock, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.MinStock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, unit, min_stock, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, product.ID, product.Name, product.Unit, product.MinStock, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, created_at
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.CreatedAt); err != nil {
			return nil, err
		}
		sup.CreatedAt = sup.CreatedAt.UTC()
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) ListOfferings(ctx context.Context, filter domain.InventoryFilter) ([]domain.SupplierOffering, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, product_id, stock_quantity, buy_price, sell_price, sell_price_retail, created_at
		FROM supplier_offerings
		WHERE ($1 = '' OR supplier_id = $1) AND ($2 = '' OR product_id = $2)
		ORDER BY id
	`, filter.SupplierID, filter.ProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offerings := make([]domain.SupplierOffering, 0, 64)
	for rows.Next() {
		var o domain.SupplierOffering
		if err := rows.Scan(&o.ID, &o.SupplierID, &o.ProductID, &o.StockQuantity, &o.BuyPrice, &o.SellPrice, &o.SellPriceRetail, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.CreatedAt = o.CreatedAt.UTC()
		offerings = append(offerings, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return offerings, nil
}

func (s *Store) GetOffering(ctx context.Context, id string) (*domain.SupplierOffering, error) {
	var o domain.SupplierOffering
	err := s.db.QueryRowContext(ctx, `
		SELECT id, supplier_id, product_id, stock_quantity, buy_price, sell_price, sell_price_retail, created_at
		FROM supplier_offerings
		WHERE id = $1
	`, id).Scan(&o.ID, &o.SupplierID, &o.ProductID, &o.StockQuantity, &o.BuyPrice, &o.SellPrice, &o.SellPriceRetail, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return &o, nil
}

func (s *Store) CreateOffering(ctx context.Context, offering domain.SupplierOffering) (*domain.SupplierOffering, error) {
	if offering.SupplierID == "" || offering.ProductID == "" || offering.StockQuantity < 0 || offering.StockQuantity > store.MaxQuantity {
		return nil, store.ErrInvalidInput
	}
	if offering.ID == "" {
		offering.ID = xid.New("off")
	}
	if offering.CreatedAt.IsZero() {
		offering.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO supplier_offerings (
			id, supplier_id, product_id, stock_quantity, buy_price, sell_price, sell_price_retail, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, offering.ID, offering.SupplierID, offering.ProductID, offering.StockQuantity,
		offering.BuyPrice, offering.SellPrice, offering.SellPriceRetail, offering.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if offering.StockQuantity > 0 {
		if err := insertMovement(ctx, tx, offering.ID, offering.StockQuantity, domain.MovementSourceInitial, offering.ID, "", offering.CreatedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := offering
	return &created, nil
}

func (s *Store) DeleteOffering(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM supplier_offerings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCompletedPurchaseLines(ctx context.Context, filter domain.InventoryFilter) ([]domain.FlowLine, error) {
	return s.listFlowLines(ctx, `
		SELECT pl.offering_id, pl.qty
		FROM purchase_lines pl
		JOIN purchase_orders po ON po.id = pl.purchase_order_id
		LEFT JOIN supplier_offerings so ON so.id = pl.offering_id
		WHERE po.status = $1
			AND ($2 = '' OR so.supplier_id = $2)
			AND ($3 = '' OR so.product_id = $3)
	`, domain.PurchaseStatusCompleted, filter)
}

func (s *Store) ListActiveSaleLines(ctx context.Context, filter domain.InventoryFilter) ([]domain.FlowLine, error) {
	return s.listFlowLines(ctx, `
		SELECT sl.offering_id, sl.qty
		FROM sale_lines sl
		JOIN sale_orders so2 ON so2.id = sl.sale_order_id
		LEFT JOIN supplier_offerings so ON so.id = sl.offering_id
		WHERE so2.status <> $1
			AND ($2 = '' OR so.supplier_id = $2)
			AND ($3 = '' OR so.product_id = $3)
	`, domain.SaleStatusCancelled, filter)
}

func (s *Store) listFlowLines(ctx context.Context, query string, status string, filter domain.InventoryFilter) ([]domain.FlowLine, error) {
	rows, err := s.db.QueryContext(ctx, query, status, filter.SupplierID, filter.ProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.FlowLine, 0, 256)
	for rows.Next() {
		var line domain.FlowLine
		if err := rows.Scan(&line.OfferingID, &line.Qty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) ListStockMovements(ctx context.Context, offeringID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, offering_id, delta, source_type, source_id, COALESCE(source_line_id, ''), created_at
		FROM stock_movements
		WHERE offering_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, offeringID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.OfferingID, &m.Delta, &m.SourceType, &m.SourceID, &m.SourceLineID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func insertMovement(ctx context.Context, q queryer, offeringID string, delta int, sourceType string, sourceID string, sourceLineID string, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO stock_movements (id, offering_id, delta, source_type, source_id, source_line_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, xid.New("mv"), offeringID, delta, sourceType, sourceID, nullIfEmpty(sourceLineID), at)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}

func isNumericOutOfRange(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22003"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
