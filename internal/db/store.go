package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// RegionRef identifies a stored region.
type RegionRef struct {
	ID   int64
	Name string
}

// ProductRef identifies a stored product.
type ProductRef struct {
	ID                 int64
	Name               string
	ClassificationCode string
	IsRussian          bool
}

// PurchaseRef identifies a stored purchase.
type PurchaseRef struct {
	ID   int64
	Name string
}

// PurchaseInput carries a purchase to be stored.
type PurchaseInput struct {
	Name              string
	Region            RegionRef
	Date              time.Time
	Price             decimal.Decimal
	Product           ProductRef
	ObjectDescription string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the persistence layer over a DuckDB handle.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying handle for read-only reporting queries.
func (s *Store) DB() *sql.DB { return s.db }

// Session is a transaction-scoped unit of work obtained from Store.InSession.
type Session struct {
	tx *sql.Tx
}

// InSession runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise, including on panic.
func (s *Store) InSession(ctx context.Context, fn func(*Session) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("Failed to roll back session.", "error", rbErr)
			}
		}
	}()

	if err := fn(&Session{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	committed = true
	return nil
}

// UpsertRegion returns the region with the given name, creating it if absent.
func (s *Session) UpsertRegion(ctx context.Context, name string) (RegionRef, bool, error) {
	return upsertRegion(ctx, s.tx, name)
}

// UpsertProduct returns the product with the given name, creating it if
// absent. An existing product is returned unchanged.
func (s *Session) UpsertProduct(ctx context.Context, name, classificationCode string, isRussian bool) (ProductRef, bool, error) {
	ref := ProductRef{Name: name, ClassificationCode: classificationCode, IsRussian: isRussian}
	err := s.tx.QueryRowContext(ctx, `
		INSERT INTO products (name, classification_code, is_russian)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO NOTHING
		RETURNING product_id;`,
		name, classificationCode, isRussian,
	).Scan(&ref.ID)
	if err == nil {
		return ref, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ProductRef{}, false, fmt.Errorf("insert product %q: %w", name, err)
	}

	err = s.tx.QueryRowContext(ctx,
		`SELECT product_id, name, classification_code, is_russian FROM products WHERE name = ?;`, name,
	).Scan(&ref.ID, &ref.Name, &ref.ClassificationCode, &ref.IsRussian)
	if err != nil {
		return ProductRef{}, false, fmt.Errorf("select product %q: %w", name, err)
	}
	return ref, false, nil
}

// UpsertPurchase stores a purchase unless one with the same name exists.
func (s *Session) UpsertPurchase(ctx context.Context, in PurchaseInput) (PurchaseRef, bool, error) {
	ref := PurchaseRef{Name: in.Name}
	err := s.tx.QueryRowContext(ctx, `
		INSERT INTO purchases (name, region_id, purchase_date, price, product_id, object_description)
		VALUES (?, ?, CAST(? AS DATE), CAST(? AS DECIMAL(18,2)), ?, ?)
		ON CONFLICT (name) DO NOTHING
		RETURNING purchase_id;`,
		in.Name, in.Region.ID, in.Date.Format(time.DateOnly), in.Price.StringFixed(2), in.Product.ID, in.ObjectDescription,
	).Scan(&ref.ID)
	if err == nil {
		return ref, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return PurchaseRef{}, false, fmt.Errorf("insert purchase %q: %w", in.Name, err)
	}

	err = s.tx.QueryRowContext(ctx, `SELECT purchase_id FROM purchases WHERE name = ?;`, in.Name).Scan(&ref.ID)
	if err != nil {
		return PurchaseRef{}, false, fmt.Errorf("select purchase %q: %w", in.Name, err)
	}
	return ref, false, nil
}

// PurchaseExists reports whether a purchase with the given name is stored.
func (s *Session) PurchaseExists(ctx context.Context, name string) (bool, error) {
	return purchaseExists(ctx, s.tx, name)
}

// PurchaseExists is the session-less variant used before any writes.
func (s *Store) PurchaseExists(ctx context.Context, name string) (bool, error) {
	return purchaseExists(ctx, s.db, name)
}

// FindProduct looks a product up by name.
func (s *Store) FindProduct(ctx context.Context, name string) (ProductRef, bool, error) {
	var ref ProductRef
	err := s.db.QueryRowContext(ctx,
		`SELECT product_id, name, classification_code, is_russian FROM products WHERE name = ?;`, name,
	).Scan(&ref.ID, &ref.Name, &ref.ClassificationCode, &ref.IsRussian)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ProductRef{}, false, nil
		}
		return ProductRef{}, false, fmt.Errorf("find product %q: %w", name, err)
	}
	return ref, true, nil
}

// SaveRegions seeds region names and returns how many were new.
func (s *Store) SaveRegions(ctx context.Context, names []string) (int, error) {
	created := 0
	err := s.InSession(ctx, func(sess *Session) error {
		for _, name := range names {
			_, isNew, err := sess.UpsertRegion(ctx, name)
			if err != nil {
				return err
			}
			if isNew {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// ListRegions returns the stored region names in alphabetical order.
func (s *Store) ListRegions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM regions ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("query regions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate regions: %w", err)
	}
	return names, nil
}

func upsertRegion(ctx context.Context, q querier, name string) (RegionRef, bool, error) {
	ref := RegionRef{Name: name}
	err := q.QueryRowContext(ctx,
		`INSERT INTO regions (name) VALUES (?) ON CONFLICT (name) DO NOTHING RETURNING region_id;`, name,
	).Scan(&ref.ID)
	if err == nil {
		return ref, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return RegionRef{}, false, fmt.Errorf("insert region %q: %w", name, err)
	}
	if err := q.QueryRowContext(ctx, `SELECT region_id FROM regions WHERE name = ?;`, name).Scan(&ref.ID); err != nil {
		return RegionRef{}, false, fmt.Errorf("select region %q: %w", name, err)
	}
	return ref, false, nil
}

func purchaseExists(ctx context.Context, q querier, name string) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM purchases WHERE name = ? LIMIT 1;`, name).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check purchase %q: %w", name, err)
	}
	return true, nil
}
