package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// RunArtifacts are the files produced by one backtest run.
type RunArtifacts struct {
	RunID   string
	Ledger  []byte
	Report  []byte
	Metrics []byte
}

// Archiver uploads run artifacts to cold storage.
type Archiver interface {
	ArchiveRun(ctx context.Context, art RunArtifacts) (prefix string, err error)
}
