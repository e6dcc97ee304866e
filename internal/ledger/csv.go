package ledger

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// Header is the ledger CSV column order.
var Header = []string{"timestamp", "side", "price", "amount", "profit"}

const timeLayout = time.RFC3339Nano

// CSVWriter streams trades as CSV rows. The header is written before the
// first row. Safe for concurrent use.
type CSVWriter struct {
	mu          sync.Mutex
	w           *csv.Writer
	closer      io.Closer
	wroteHeader bool
}

// NewCSVWriter writes to w. If w is an io.Closer, Close closes it.
func NewCSVWriter(w io.Writer) *CSVWriter {
	cw := &CSVWriter{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	return cw
}

// CreateCSV opens path for appending. The header is only written when the
// file is new or empty.
func CreateCSV(path string) (*CSVWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ledger: stat %s: %w", path, err)
	}
	cw := NewCSVWriter(f)
	cw.wroteHeader = info.Size() > 0
	return cw, nil
}

// Write appends one trade and flushes it.
func (c *CSVWriter) Write(t domain.Trade) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.wroteHeader {
		if err := c.w.Write(Header); err != nil {
			return fmt.Errorf("ledger: write header: %w", err)
		}
		c.wroteHeader = true
	}
	if err := c.w.Write(record(t)); err != nil {
		return fmt.Errorf("ledger: write row: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the underlying writer.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return err
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Encode renders trades, header included, as CSV bytes.
func Encode(trades []domain.Trade) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, t := range trades {
		if err := w.Write(record(t)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("ledger: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses CSV produced by Encode or CSVWriter.
func Decode(r io.Reader) ([]domain.Trade, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ledger: decode: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	trades := make([]domain.Trade, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(Header) {
			return nil, fmt.Errorf("ledger: row %d: %d columns", i+1, len(row))
		}
		ts, err := time.Parse(timeLayout, row[0])
		if err != nil {
			return nil, fmt.Errorf("ledger: row %d timestamp: %w", i+1, err)
		}
		side, err := domain.ParseSide(row[1])
		if err != nil {
			return nil, fmt.Errorf("ledger: row %d: %w", i+1, err)
		}
		var nums [3]decimal.Decimal
		for j := range nums {
			nums[j], err = decimal.NewFromString(row[2+j])
			if err != nil {
				return nil, fmt.Errorf("ledger: row %d %s: %w", i+1, Header[2+j], err)
			}
		}
		trades = append(trades, domain.Trade{
			Timestamp: ts,
			Side:      side,
			Price:     nums[0],
			Amount:    nums[1],
			Profit:    nums[2],
		})
	}
	return trades, nil
}

func record(t domain.Trade) []string {
	return []string{
		t.Timestamp.UTC().Format(timeLayout),
		string(t.Side),
		t.Price.String(),
		t.Amount.String(),
		t.Profit.String(),
	}
}
