// Package sqlite is the single-file store used when no PostgreSQL DSN is
// configured. It implements the same run, ledger, audit and sample stores
// on gorm with the pure Go SQLite driver.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

type runModel struct {
	ID             string `gorm:"primaryKey"`
	Mode           string
	Symbol         string
	Generator      string
	FillModel      string
	InitialBalance float64
	StartedAt      time.Time
	FinishedAt     *time.Time
	Metrics        string
	NoTrades       bool
}

func (runModel) TableName() string { return "runs" }

type tradeModel struct {
	RunID     string `gorm:"primaryKey"`
	Seq       int    `gorm:"primaryKey"`
	Timestamp time.Time
	Side      string
	Price     string
	Amount    string
	Profit    string
}

func (tradeModel) TableName() string { return "ledger_trades" }

type auditModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	RunID     string
	Event     string `gorm:"index"`
	Detail    string
	CreatedAt time.Time `gorm:"index"`
}

func (auditModel) TableName() string { return "audit_log" }

type sampleModel struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	RunID      string
	Symbol     string
	Timestamp  time.Time
	FeatureSet string `gorm:"index"`
	Features   string
	Label      int
	Profit     float64
}

func (sampleModel) TableName() string { return "training_samples" }

// Store implements the domain stores on one SQLite file.
type Store struct {
	db *gorm.DB
}

var (
	_ domain.RunStore    = (*Store)(nil)
	_ domain.LedgerStore = (*Store)(nil)
	_ domain.AuditStore  = (*Store)(nil)
	_ domain.SampleStore = (*Store)(nil)
)

// Open opens or creates the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &auditModel{}, &sampleModel{}); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create inserts a run header.
func (s *Store) Create(ctx context.Context, run domain.Run) error {
	m := runModel{
		ID:             run.ID,
		Mode:           run.Mode,
		Symbol:         run.Symbol,
		Generator:      run.Generator,
		FillModel:      run.FillModel,
		InitialBalance: run.InitialBalance,
		StartedAt:      run.StartedAt,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("sqlite: create run %s: %w", run.ID, err)
	}
	return nil
}

// Finish stores the end time and metrics of a run.
func (s *Store) Finish(ctx context.Context, id string, finishedAt time.Time, metrics map[string]float64, noTrades bool) error {
	encoded, err := encodeMetrics(metrics)
	if err != nil {
		return fmt.Errorf("sqlite: marshal metrics: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(map[string]any{
		"finished_at": finishedAt,
		"metrics":     encoded,
		"no_trades":   noTrades,
	})
	if res.Error != nil {
		return fmt.Errorf("sqlite: finish run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("sqlite: finish run %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns a run or domain.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (domain.Run, error) {
	var m runModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Run{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("sqlite: get run %s: %w", id, err)
	}
	metrics, err := decodeMetrics(m.Metrics)
	if err != nil {
		return domain.Run{}, fmt.Errorf("sqlite: unmarshal metrics: %w", err)
	}
	return domain.Run{
		ID:             m.ID,
		Mode:           m.Mode,
		Symbol:         m.Symbol,
		Generator:      m.Generator,
		FillModel:      m.FillModel,
		InitialBalance: m.InitialBalance,
		StartedAt:      m.StartedAt,
		FinishedAt:     m.FinishedAt,
		Metrics:        metrics,
		NoTrades:       m.NoTrades,
	}, nil
}

func toTradeModel(runID string, seq int, t domain.Trade) tradeModel {
	return tradeModel{
		RunID:     runID,
		Seq:       seq,
		Timestamp: t.Timestamp,
		Side:      string(t.Side),
		Price:     t.Price.String(),
		Amount:    t.Amount.String(),
		Profit:    t.Profit.String(),
	}
}

// InsertBatch writes a ledger with sequence numbers 0..n-1.
func (s *Store) InsertBatch(ctx context.Context, runID string, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	rows := make([]tradeModel, 0, len(trades))
	for i, t := range trades {
		rows = append(rows, toTradeModel(runID, i, t))
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 500).Error
	if err != nil {
		return fmt.Errorf("sqlite: insert ledger %s: %w", runID, err)
	}
	return nil
}

// Append writes one trade.
func (s *Store) Append(ctx context.Context, runID string, seq int, trade domain.Trade) error {
	row := toTradeModel(runID, seq, trade)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("sqlite: append ledger trade %s/%d: %w", runID, seq, err)
	}
	return nil
}

// ListByRun returns a run's ledger in sequence order.
func (s *Store) ListByRun(ctx context.Context, runID string) ([]domain.Trade, error) {
	var rows []tradeModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list ledger %s: %w", runID, err)
	}
	trades := make([]domain.Trade, 0, len(rows))
	for _, r := range rows {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse price: %w", err)
		}
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse amount: %w", err)
		}
		profit, err := decimal.NewFromString(r.Profit)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse profit: %w", err)
		}
		trades = append(trades, domain.Trade{
			Timestamp: r.Timestamp.UTC(),
			Side:      domain.Side(r.Side),
			Price:     price,
			Amount:    amount,
			Profit:    profit,
		})
	}
	return trades, nil
}

// Log appends an audit entry.
func (s *Store) Log(ctx context.Context, runID, event string, detail map[string]any) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	row := auditModel{RunID: runID, Event: event, Detail: string(data), CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries newest first.
func (s *Store) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	q := s.db.WithContext(ctx).Model(&auditModel{})
	if opts.Since != nil {
		q = q.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		q = q.Where("created_at <= ?", *opts.Until)
	}
	q = q.Order("created_at DESC, id DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var rows []auditModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	entries := make([]domain.AuditEntry, 0, len(rows))
	for _, r := range rows {
		e := domain.AuditEntry{ID: r.ID, RunID: r.RunID, Event: r.Event, CreatedAt: r.CreatedAt}
		if r.Detail != "" {
			if err := json.Unmarshal([]byte(r.Detail), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Insert stores a training sample.
func (s *Store) Insert(ctx context.Context, sample domain.TrainingSample) error {
	features, err := json.Marshal(sample.Features)
	if err != nil {
		return fmt.Errorf("sqlite: marshal features: %w", err)
	}
	row := sampleModel{
		RunID:      sample.RunID,
		Symbol:     sample.Symbol,
		Timestamp:  sample.Timestamp,
		FeatureSet: string(sample.FeatureSet),
		Features:   string(features),
		Label:      sample.Label,
		Profit:     sample.Profit,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("sqlite: insert training sample: %w", err)
	}
	return nil
}

// Count returns the number of samples for a feature set.
func (s *Store) Count(ctx context.Context, featureSet domain.FeatureSet) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&sampleModel{}).Where("feature_set = ?", string(featureSet)).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("sqlite: count training samples: %w", err)
	}
	return n, nil
}

// Metrics are stored as JSON text; infinities become the strings "inf" and
// "-inf".
func encodeMetrics(m map[string]float64) (string, error) {
	if m == nil {
		return "", nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case math.IsInf(v, 1):
			out[k] = "inf"
		case math.IsInf(v, -1):
			out[k] = "-inf"
		case math.IsNaN(v):
			out[k] = "nan"
		default:
			out[k] = v
		}
	}
	data, err := json.Marshal(out)
	return string(data), err
}

func decodeMetrics(s string) (map[string]float64, error) {
	if s == "" {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case float64:
			out[k] = x
		case string:
			switch x {
			case "inf":
				out[k] = math.Inf(1)
			case "-inf":
				out[k] = math.Inf(-1)
			default:
				out[k] = math.NaN()
			}
		}
	}
	return out, nil
}
