package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/ruxstar-pod/db"
	"github.com/xenking/ruxstar-pod/internal/catalog"
	"github.com/xenking/ruxstar-pod/internal/domain/auth"
	"github.com/xenking/ruxstar-pod/internal/domain/vendor"
	"github.com/xenking/ruxstar-pod/internal/storage/postgres"
)

// demoVendors are created in order, so the first is the one new orders are
// routed to.
var demoVendors = []vendor.Vendor{
	{
		ID:                 "vendor-1",
		Name:               "Print Hub Koramangala",
		Email:              "orders@printhub.example.com",
		City:               "Bengaluru",
		Capabilities:       []string{"DTF", "DTG", "Screen", "Sublimation"},
		OnboardingComplete: true,
	},
	{
		ID:                 "vendor-2",
		Name:               "Inkworks Andheri",
		Email:              "hello@inkworks.example.com",
		City:               "Mumbai",
		Capabilities:       []string{"DTF", "Vinyl"},
		OnboardingComplete: true,
	},
	{
		ID:           "vendor-3",
		Name:         "Sticker Lab",
		Email:        "team@stickerlab.example.com",
		City:         "Pune",
		Capabilities: []string{"Vinyl"},
	},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
		keyVendor    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to a products JSON array (defaults to the embedded demo catalog)")
	flag.StringVar(&apiKey, "api-key", "", "vendor API key to seed (or POD_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or POD_API_KEY_PEPPER env)")
	flag.StringVar(&keyVendor, "api-key-vendor", demoVendors[0].ID, "vendor the seeded API key acts as")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("POD_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or POD_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("POD_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper, keyVendor); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper, keyVendor string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedVendors(ctx, postgres.NewVendorRepository(pool)); err != nil {
		return errors.Wrap(err, "seed vendors")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper, keyVendor); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedVendors(ctx context.Context, repo *postgres.VendorRepository) error {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range demoVendors {
		v.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := repo.Upsert(ctx, v); err != nil {
			return errors.Wrapf(err, "upsert vendor %s", v.ID)
		}
		slog.Info("upserted vendor",
			slog.String("id", v.ID),
			slog.String("name", v.Name),
			slog.Bool("onboarded", v.OnboardingComplete),
		)
	}
	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	data := db.Products
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))

		var err error
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	products, err := catalog.DecodeList(jx.DecodeBytes(data))
	if err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper, vendorID string) error {
	slog.Info("seeding vendor API key", slog.String("vendor_id", vendorID))

	info := auth.APIKeyInfo{
		ID:       "default-" + vendorID,
		KeyHash:  auth.HashKey([]byte(pepper), apiKey),
		Name:     "Default vendor key",
		VendorID: vendorID,
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}
