package postgres

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/ruxstar-pod/internal/domain/order"
)

var _ order.Uploader = (*FileStore)(nil)

// FileStore keeps uploaded design files gzip-compressed in the database.
type FileStore struct {
	pool    *pgxpool.Pool
	baseURL string
	newID   func() string
}

// NewFileStore returns a FileStore whose URLs are rooted at baseURL.
func NewFileStore(pool *pgxpool.Pool, baseURL string) *FileStore {
	return &FileStore{
		pool:    pool,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		newID:   uuid.NewString,
	}
}

// Upload compresses and stores f, returning its download URL.
func (s *FileStore) Upload(ctx context.Context, ownerID string, f order.DesignFile) (string, error) {
	data, err := compress(f.Data)
	if err != nil {
		return "", errors.Wrap(err, "compress design")
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id := s.newID()
	if _, err := s.pool.Exec(ctx, `INSERT INTO design_files
			(id, owner_id, name, content_type, size, data)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, ownerID, f.Name, contentType, len(f.Data), data,
	); err != nil {
		return "", fmt.Errorf("storing design file for %q: %w", ownerID, err)
	}
	return s.URL(id), nil
}

// URL returns the download URL of file id.
func (s *FileStore) URL(id string) string {
	return s.baseURL + "/api/files/" + id
}

// Get returns the decompressed file, or order.ErrFileNotFound.
func (s *FileStore) Get(ctx context.Context, id string) (*order.DesignFile, error) {
	var (
		f    order.DesignFile
		size int64
		data []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT name, content_type, size, data FROM design_files WHERE id = $1`, id,
	).Scan(&f.Name, &f.ContentType, &size, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrFileNotFound
		}
		return nil, fmt.Errorf("getting design file %q: %w", id, err)
	}

	if f.Data, err = decompress(data, size); err != nil {
		return nil, errors.Wrapf(err, "decompress design file %q", id)
	}
	return &f, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		_ = gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte, size int64) ([]byte, error) {
	gz, err := pgzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = gz.Close() }()

	out := bytes.NewBuffer(make([]byte, 0, size))
	if _, err := io.Copy(out, gz); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
