package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ruxstar-pod/internal/domain/vendor"
)

var _ vendor.Repository = (*VendorRepository)(nil)

// VendorRepository implements vendor.Repository backed by PostgreSQL.
type VendorRepository struct {
	pool *pgxpool.Pool
}

// NewVendorRepository returns a VendorRepository that uses the given pool.
func NewVendorRepository(pool *pgxpool.Pool) *VendorRepository {
	return &VendorRepository{pool: pool}
}

// FirstAvailable returns the earliest onboarded vendor.
func (r *VendorRepository) FirstAvailable(ctx context.Context) (*vendor.Vendor, error) {
	var v vendor.Vendor
	err := r.pool.QueryRow(ctx, `SELECT id, name, email, city, capabilities,
			onboarding_complete, created_at
		FROM vendors
		WHERE onboarding_complete
		ORDER BY created_at, id
		LIMIT 1`,
	).Scan(&v.ID, &v.Name, &v.Email, &v.City, &v.Capabilities, &v.OnboardingComplete, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vendor.ErrNoneAvailable
		}
		return nil, fmt.Errorf("finding available vendor: %w", err)
	}
	return &v, nil
}

// Upsert inserts or replaces a vendor. CreatedAt is kept on update.
func (r *VendorRepository) Upsert(ctx context.Context, v vendor.Vendor) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO vendors
			(id, name, email, city, capabilities, onboarding_complete, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			city = EXCLUDED.city,
			capabilities = EXCLUDED.capabilities,
			onboarding_complete = EXCLUDED.onboarding_complete`,
		v.ID, v.Name, v.Email, v.City, nonNil(v.Capabilities), v.OnboardingComplete, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting vendor %q: %w", v.ID, err)
	}
	return nil
}
