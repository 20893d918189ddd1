package variant

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrVariantNotFound = errors.New("variant not found")

// SQLiteRepository persists product variants. Sub-variants are identified by
// (product_id, hash); each product has at most one primary variant.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) RunMigrations() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

const variantColumns = `id, product_id, hash, title, subtract, state, options, is_primary, created_at`

func (r *SQLiteRepository) ListVariants(ctx context.Context, productID int64) ([]domain.Variant, error) {
	query := `SELECT ` + variantColumns + `
		FROM product_variants
		WHERE product_id = ? AND is_primary = 0
		ORDER BY id`

	return r.queryVariants(ctx, r.db, query, productID)
}

func (r *SQLiteRepository) CurrentHashes(ctx context.Context, productID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT hash FROM product_variants WHERE product_id = ? AND is_primary = 0 ORDER BY id`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashes: %w", err)
	}
	defer rows.Close()

	hashes := []string{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return hashes, nil
}

// SyncVariants makes the stored sub-variants of productID match variants:
// hashes no longer present are deleted, new hashes are inserted and the rest
// are updated in place. It returns the stored set.
func (r *SQLiteRepository) SyncVariants(ctx context.Context, productID int64, variants []domain.Variant) ([]domain.Variant, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin sync: %w", err)
	}
	defer tx.Rollback()

	existing, err := r.queryVariants(ctx, tx,
		`SELECT `+variantColumns+` FROM product_variants WHERE product_id = ? AND is_primary = 0`,
		productID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		wanted[v.Hash] = struct{}{}
	}
	stored := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		stored[v.Hash] = struct{}{}
		if _, keep := wanted[v.Hash]; keep {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_variants WHERE id = ?`, v.ID); err != nil {
			return nil, fmt.Errorf("failed to delete variant %d: %w", v.ID, err)
		}
	}

	for _, v := range variants {
		options, err := json.Marshal(nonNil(v.Options))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal options: %w", err)
		}

		if _, ok := stored[v.Hash]; ok {
			_, err = tx.ExecContext(ctx,
				`UPDATE product_variants SET title = ?, subtract = ?, state = ?, options = ?
				 WHERE product_id = ? AND hash = ? AND is_primary = 0`,
				v.Title, v.Subtract, v.State, string(options), productID, v.Hash)
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO product_variants (product_id, hash, title, subtract, state, options, is_primary)
				 VALUES (?, ?, ?, ?, ?, ?, 0)`,
				productID, v.Hash, v.Title, v.Subtract, v.State, string(options))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save variant %s: %w", v.Hash, err)
		}
		stored[v.Hash] = struct{}{}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit sync: %w", err)
	}

	return r.ListVariants(ctx, productID)
}

func (r *SQLiteRepository) MainVariant(ctx context.Context, productID int64) (domain.Variant, error) {
	variants, err := r.queryVariants(ctx, r.db,
		`SELECT `+variantColumns+` FROM product_variants WHERE product_id = ? AND is_primary = 1`,
		productID)
	if err != nil {
		return domain.Variant{}, err
	}
	if len(variants) == 0 {
		return domain.Variant{}, ErrVariantNotFound
	}
	return variants[0], nil
}

// SaveMainVariant creates or updates the primary variant of v.ProductID.
func (r *SQLiteRepository) SaveMainVariant(ctx context.Context, v domain.Variant) (domain.Variant, error) {
	options, err := json.Marshal(nonNil(v.Options))
	if err != nil {
		return domain.Variant{}, fmt.Errorf("failed to marshal options: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE product_variants SET title = ?, subtract = ?, state = ?, options = ?
		 WHERE product_id = ? AND is_primary = 1`,
		v.Title, v.Subtract, v.State, string(options), v.ProductID)
	if err != nil {
		return domain.Variant{}, fmt.Errorf("failed to update main variant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO product_variants (product_id, hash, title, subtract, state, options, is_primary)
			 VALUES (?, '', ?, ?, ?, ?, 1)`,
			v.ProductID, v.Title, v.Subtract, v.State, string(options))
		if err != nil {
			return domain.Variant{}, fmt.Errorf("failed to insert main variant: %w", err)
		}
	}

	return r.MainVariant(ctx, v.ProductID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *SQLiteRepository) queryVariants(ctx context.Context, q querier, query string, args ...any) ([]domain.Variant, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer rows.Close()

	variants := []domain.Variant{}
	for rows.Next() {
		var (
			v       domain.Variant
			options string
		)
		err := rows.Scan(
			&v.ID,
			&v.ProductID,
			&v.Hash,
			&v.Title,
			&v.Subtract,
			&v.State,
			&options,
			&v.Primary,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &v.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options of variant %d: %w", v.ID, err)
		}
		variants = append(variants, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return variants, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
