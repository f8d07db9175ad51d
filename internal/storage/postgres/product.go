package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ruxstar-pod/internal/domain/pricing"
	"github.com/xenking/ruxstar-pod/internal/domain/product"
	"github.com/xenking/ruxstar-pod/pkg/opt"
)

const productColumns = `id, name, category, image, base_price, quantity_slabs,
	turnaround_options, print_types, sizes, colors, active`

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the active catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Product, error) {
		return scanProduct(row)
	})
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// GetByID returns a product, active or not, or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// Upsert inserts or replaces a catalog entry.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	slabs, err := marshalOpt(p.QuantitySlabs)
	if err != nil {
		return fmt.Errorf("encoding slabs of %q: %w", p.ID, err)
	}
	turnarounds, err := marshalOpt(p.TurnaroundOptions)
	if err != nil {
		return fmt.Errorf("encoding turnarounds of %q: %w", p.ID, err)
	}

	_, err = r.pool.Exec(ctx, `INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			image = EXCLUDED.image,
			base_price = EXCLUDED.base_price,
			quantity_slabs = EXCLUDED.quantity_slabs,
			turnaround_options = EXCLUDED.turnaround_options,
			print_types = EXCLUDED.print_types,
			sizes = EXCLUDED.sizes,
			colors = EXCLUDED.colors,
			active = EXCLUDED.active`,
		p.ID, p.Name, p.Category, p.Image, p.BasePrice, slabs, turnarounds,
		nonNil(p.SupportedPrintTypes), nonNil(p.Sizes), nonNil(p.Colors), p.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.Row) (product.Product, error) {
	var (
		p           product.Product
		slabs       []byte
		turnarounds []byte
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Category, &p.Image, &p.BasePrice, &slabs,
		&turnarounds, &p.SupportedPrintTypes, &p.Sizes, &p.Colors, &p.Active,
	); err != nil {
		return product.Product{}, err
	}

	var err error
	if p.QuantitySlabs, err = unmarshalOpt[[]pricing.Slab](slabs); err != nil {
		return product.Product{}, fmt.Errorf("decoding slabs of %q: %w", p.ID, err)
	}
	if p.TurnaroundOptions, err = unmarshalOpt[[]pricing.Turnaround](turnarounds); err != nil {
		return product.Product{}, fmt.Errorf("decoding turnarounds of %q: %w", p.ID, err)
	}
	return p, nil
}

// unmarshalOpt decodes a nullable JSONB column. SQL NULL and JSON null are
// both absent.
func unmarshalOpt[T any](data []byte) (opt.Opt[T], error) {
	var v opt.Opt[T]
	if data == nil {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return opt.Opt[T]{}, err
	}
	return v, nil
}

func marshalOpt[T any](v opt.Opt[T]) ([]byte, error) {
	if !v.IsSet() {
		return nil, nil
	}
	return json.Marshal(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
