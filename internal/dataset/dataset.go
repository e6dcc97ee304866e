// Package dataset loads historical order book rows for backtests. A dataset
// is a CSV file with at least a "timestamp" and an "order_book" column, the
// latter holding one JSON snapshot per row.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// Row is one raw dataset record. Line is the 1-based CSV line number.
type Row struct {
	Line      int
	Timestamp string
	OrderBook string
}

const (
	colTimestamp = "timestamp"
	colOrderBook = "order_book"
)

// Read parses rows from r. Rows with the wrong number of fields are
// returned with an empty OrderBook so that the caller can count and skip
// them; only a missing header is fatal.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset: empty file")
		}
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}

	tsIdx, bookIdx := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case colTimestamp:
			tsIdx = i
		case colOrderBook:
			bookIdx = i
		}
	}
	if bookIdx < 0 {
		return nil, fmt.Errorf("dataset: missing %q column", colOrderBook)
	}

	var rows []Row
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				rows = append(rows, Row{Line: line})
				continue
			}
			return nil, fmt.Errorf("dataset: read line %d: %w", line, err)
		}

		row := Row{Line: line}
		if bookIdx < len(rec) {
			row.OrderBook = rec[bookIdx]
		}
		if tsIdx >= 0 && tsIdx < len(rec) {
			row.Timestamp = rec[tsIdx]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Open returns a reader for path, which is either a local file or an
// s3://bucket/key URL served by blobs.
func Open(ctx context.Context, path string, blobs domain.BlobReader) (io.ReadCloser, error) {
	if rest, ok := strings.CutPrefix(path, "s3://"); ok {
		if blobs == nil {
			return nil, fmt.Errorf("dataset: %s needs object storage configured", path)
		}
		key := rest
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			key = rest[i+1:]
		}
		rc, err := blobs.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("dataset: get %s: %w", path, err)
		}
		return rc, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open: %w", err)
	}
	return f, nil
}

// Load opens path and reads all rows.
func Load(ctx context.Context, path string, blobs domain.BlobReader) ([]Row, error) {
	rc, err := Open(ctx, path, blobs)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Read(rc)
}
