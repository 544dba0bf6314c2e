// Command catalog-ingest imports gzipped NDJSON product feed files into
// PostgreSQL. Feed files from different suppliers overlap, so product IDs are
// deduplicated with a bloom filter before writing; the first occurrence of an
// ID wins. Writes go through batched upserts.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/velvette/pricing-engine/internal/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	batchSize     = 500
	progressEvery = 100_000
)

type feedProduct struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Brand       string          `json:"brand"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"imageUrl"`
	Featured    bool            `json:"featured"`
	InStock     bool            `json:"inStock"`
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing product feed files")
	flag.StringVar(&pattern, "pattern", "catalog-*.ndjson.gz", "glob pattern for feed files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "glob feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no feed files matching %s in %s", pattern, dataDir)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("ingesting feed files", slog.Int("files", len(files)))

	return ingestFeeds(ctx, files, func(ctx context.Context, products <-chan feedProduct) error {
		return writeProducts(ctx, pool, products)
	})
}

// ingestFeeds runs the parse/write pipeline. Parsers and the writer share one
// errgroup context, so a failure on either side cancels the other: a write
// error unblocks parsers stuck on a full channel, and a parse error closes
// the channel so the writer drains and stops.
func ingestFeeds(
	ctx context.Context,
	files []string,
	write func(context.Context, <-chan feedProduct) error,
) error {
	dedupe := newDeduper()
	products := make(chan feedProduct, batchSize*2)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := write(ctx, products); err != nil {
			return errors.Wrap(err, "write products")
		}
		return nil
	})

	parsers, parseCtx := errgroup.WithContext(ctx)
	for i, f := range files {
		parsers.Go(parseFeedFile(parseCtx, i, f, dedupe, products))
	}

	g.Go(func() error {
		defer close(products)
		if err := parsers.Wait(); err != nil {
			return errors.Wrap(err, "parse feed files")
		}
		return nil
	})

	return g.Wait()
}

// deduper tracks seen product IDs across feed files. The bloom filter trades
// a small false positive rate for bounded memory: a false positive drops a
// genuinely new product, which the next feed run picks up.
type deduper struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func newDeduper() *deduper {
	return &deduper{filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR)}
}

// seen reports whether id was already ingested, marking it as seen otherwise.
func (d *deduper) seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.filter.TestString(id) {
		return true
	}
	d.filter.AddString(id)
	return false
}

func parseFeedFile(
	ctx context.Context,
	idx int,
	path string,
	dedupe *deduper,
	out chan<- feedProduct,
) func() error {
	return func() error {
		var total, kept, malformed uint64

		if err := streamGzFile(ctx, path, func(line []byte) error {
			total++
			if total%progressEvery == 0 {
				slog.Info("ingest progress",
					slog.Int("file", idx+1),
					slog.Uint64("lines", total),
				)
			}

			var p feedProduct
			if err := json.Unmarshal(line, &p); err != nil {
				malformed++
				return nil
			}
			if p.ID == "" || p.Name == "" || p.Price.IsNegative() {
				malformed++
				return nil
			}
			if dedupe.seen(p.ID) {
				return nil
			}

			kept++
			select {
			case out <- p:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}); err != nil {
			return errors.Wrapf(err, "stream feed file %s", path)
		}

		slog.Info("feed file complete",
			slog.String("path", path),
			slog.Uint64("lines", total),
			slog.Uint64("kept", kept),
			slog.Uint64("malformed", malformed),
		)

		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, description, brand, category, price, image_url, featured, in_stock)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    brand = EXCLUDED.brand,
    category = EXCLUDED.category,
    price = EXCLUDED.price,
    image_url = EXCLUDED.image_url,
    featured = EXCLUDED.featured,
    in_stock = EXCLUDED.in_stock,
    updated_at = now()
`

// writeProducts drains the channel and flushes upserts in batches.
func writeProducts(ctx context.Context, pool *pgxpool.Pool, products <-chan feedProduct) error {
	var (
		batch   pgx.Batch
		written int
	)

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := pool.SendBatch(ctx, &batch).Close(); err != nil {
			return errors.Wrap(err, "flush product batch")
		}
		written += batch.Len()
		batch = pgx.Batch{}

		slog.Info("write progress", slog.Int("written", written))
		return nil
	}

	for p := range products {
		batch.Queue(upsertProductSQL,
			p.ID, p.Name, p.Description, p.Brand, p.Category,
			p.Price, p.ImageURL, p.Featured, p.InStock,
		)
		if batch.Len() >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}

	slog.Info("products written", slog.Int("total", written))
	return nil
}
