package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/ruxstar-pod/internal/catalog"
	"github.com/xenking/ruxstar-pod/internal/domain/product"
	"github.com/xenking/ruxstar-pod/internal/storage/postgres"
)

const progressEvery = 1000

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		strict      bool
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog feed files")
	flag.StringVar(&pattern, "pattern", "*.ndjson*", "glob selecting feed files inside data-dir, applied in name order")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&strict, "strict", false, "fail on the first malformed line instead of skipping it")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and validate feeds without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL, strict, dryRun); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, strict, dryRun bool) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "match feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no feed files match %s in %s", pattern, dataDir)
	}
	sort.Strings(files)

	slog.Info("parsing feeds", slog.Int("files", len(files)))

	feeds, err := parseFeeds(ctx, files, strict)
	if err != nil {
		return errors.Wrap(err, "parse feeds")
	}

	// Later files override earlier ones.
	products := catalog.Merge(feeds...)
	slog.Info("feeds merged", slog.Int("products", len(products)))

	if dryRun {
		slog.Info("dry run, nothing written")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolOptions{MaxConns: 4})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := writeProducts(ctx, postgres.NewProductRepository(pool), products); err != nil {
		return errors.Wrap(err, "write products to database")
	}

	return nil
}

// parseFeeds decodes every file concurrently. The result keeps file order.
func parseFeeds(ctx context.Context, files []string, strict bool) ([][]product.Product, error) {
	feeds := make([][]product.Product, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			products, err := parseFile(ctx, i, f, strict)
			if err != nil {
				return errors.Wrapf(err, "file %s", f)
			}
			feeds[i] = products
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return feeds, nil
}

func parseFile(ctx context.Context, idx int, path string, strict bool) ([]product.Product, error) {
	r, err := catalog.OpenFeed(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var onBad func(*catalog.LineError)
	if !strict {
		onBad = func(e *catalog.LineError) {
			slog.Warn("skipping malformed line",
				slog.String("file", path),
				slog.Int("line", e.Line),
				slog.String("error", e.Err.Error()),
			)
		}
	}

	var products []product.Product
	stats, err := catalog.ReadFeed(ctx, r, func(p product.Product) error {
		products = append(products, p)
		return nil
	}, onBad)
	if err != nil {
		return nil, err
	}

	slog.Info("feed parsed",
		slog.Int("file", idx+1),
		slog.String("path", path),
		slog.Int("products", stats.Products),
		slog.Int("skipped", stats.Skipped),
	)
	return products, nil
}

// writeProducts upserts the merged catalog.
func writeProducts(ctx context.Context, repo *postgres.ProductRepository, products []product.Product) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	for i, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		if (i+1)%progressEvery == 0 || i+1 == len(products) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(products)))
		}
	}

	return nil
}
