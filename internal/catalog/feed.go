package catalog

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/multierr"

	"github.com/xenking/ruxstar-pod/internal/domain/product"
)

const maxLine = 1 << 20

// LineError reports a feed line that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return "line " + strconv.Itoa(e.Line) + ": " + e.Err.Error()
}

func (e *LineError) Unwrap() error { return e.Err }

// FeedStats summarizes a feed read.
type FeedStats struct {
	Products int
	Skipped  int
}

// ReadFeed decodes newline-delimited products from r and passes each to fn.
// Blank lines are ignored. A bad line is handed to onBad and skipped; when
// onBad is nil the first bad line aborts the read. Errors from fn always
// abort.
func ReadFeed(ctx context.Context, r io.Reader, fn func(product.Product) error, onBad func(*LineError)) (FeedStats, error) {
	var stats FeedStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		p, err := DecodeProduct(jx.DecodeBytes(raw))
		if err != nil {
			lineErr := &LineError{Line: line, Err: err}
			if onBad == nil {
				return stats, lineErr
			}
			onBad(lineErr)
			stats.Skipped++
			continue
		}
		if err := fn(p); err != nil {
			return stats, errors.Wrapf(err, "line %d", line)
		}
		stats.Products++
	}
	if err := scanner.Err(); err != nil {
		return stats, errors.Wrap(err, "scan feed")
	}
	return stats, nil
}

// OpenFeed opens a feed file, transparently decompressing names ending in
// .gz.
func OpenFeed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	return &gzipFile{Reader: gz, f: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	return multierr.Combine(g.Reader.Close(), g.f.Close())
}
