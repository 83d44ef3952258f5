package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"BlockPulse/internal/domain/models"
	"BlockPulse/internal/domain/repository"
)

const (
	BlockTable = "block_data"
	PriceTable = "price_data"
)

// Schema returns the idempotent DDL for the observation tables.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (block_height UInt64, block_timestamp DateTime64(3, 'UTC')) ENGINE=MergeTree ORDER BY block_timestamp", database, BlockTable),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (price_usd Decimal(18, 2), price_timestamp DateTime64(3, 'UTC')) ENGINE=MergeTree ORDER BY price_timestamp", database, PriceTable),
	}
}

// ClickHouseStorage implements Storage for ClickHouse. The *sql.DB pool is
// shared by every scheduler and the query side.
type ClickHouseStorage struct {
	db         *sql.DB
	blockTable string
	priceTable string
}

// NewClickHouseStorage creates ClickHouse storage.
func NewClickHouseStorage(db *sql.DB, database string) *ClickHouseStorage {
	return &ClickHouseStorage{
		db:         db,
		blockTable: database + "." + BlockTable,
		priceTable: database + "." + PriceTable,
	}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Store appends one row to the table for the observation's source.
func (s *ClickHouseStorage) Store(ctx context.Context, obs models.Observation) error {
	var (
		table string
		q     string
		arg   any
	)
	switch obs.Source {
	case models.SourceChainHeight:
		table = s.blockTable
		q = fmt.Sprintf("INSERT INTO %s (block_height, block_timestamp) VALUES (?, ?)", table)
		arg = obs.Height
	case models.SourcePriceIndex:
		table = s.priceTable
		q = fmt.Sprintf("INSERT INTO %s (price_usd, price_timestamp) VALUES (?, ?)", table)
		arg = obs.Price.RoundBank(models.PriceScale)
	default:
		return &repository.StoreError{Op: "insert", Target: string(obs.Source), Err: errors.New("unknown source")}
	}

	if _, err := s.db.ExecContext(ctx, q, arg, obs.ObservedAt.UTC()); err != nil {
		return &repository.StoreError{Op: "insert", Target: table, Err: err}
	}
	return nil
}

func (s *ClickHouseStorage) LatestBlock(ctx context.Context) (*models.LatestBlock, error) {
	q := fmt.Sprintf("SELECT block_height, block_timestamp FROM %s ORDER BY block_timestamp DESC, block_height DESC LIMIT 1", s.blockTable)
	var b models.LatestBlock
	err := s.db.QueryRowContext(ctx, q).Scan(&b.BlockHeight, &b.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, &repository.StoreError{Op: "select", Target: s.blockTable, Err: err}
	}
	b.Timestamp = b.Timestamp.UTC()
	return &b, nil
}

func (s *ClickHouseStorage) LatestPrice(ctx context.Context) (*models.LatestPrice, error) {
	q := fmt.Sprintf("SELECT price_usd, price_timestamp FROM %s ORDER BY price_timestamp DESC LIMIT 1", s.priceTable)
	var p models.LatestPrice
	err := s.db.QueryRowContext(ctx, q).Scan(&p.Price, &p.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, &repository.StoreError{Op: "select", Target: s.priceTable, Err: err}
	}
	p.Price = models.NewPrice(p.Price.Decimal)
	p.Timestamp = p.Timestamp.UTC()
	return &p, nil
}

// Joined pairs block and price rows whose timestamps fall in the same
// bucket of q.Granularity. Ordering is by bucket, then height, then price,
// so repeated reads of the same data return the same sequence.
func (s *ClickHouseStorage) Joined(ctx context.Context, q models.HistoryQuery) ([]models.JoinedRow, error) {
	tf := repository.NormalizeTimeframe(q.Granularity)
	blockWhere, blockArgs := timeRange("block_timestamp", q.From, q.To)
	priceWhere, priceArgs := timeRange("price_timestamp", q.From, q.To)

	query := fmt.Sprintf(`SELECT b.block_height, p.price_usd, b.bucket
FROM (SELECT block_height, toStartOfInterval(block_timestamp, %[1]s) AS bucket FROM %[2]s%[3]s) AS b
INNER JOIN (SELECT price_usd, toStartOfInterval(price_timestamp, %[1]s) AS bucket FROM %[4]s%[5]s) AS p
ON b.bucket = p.bucket
ORDER BY b.bucket, b.block_height, p.price_usd
LIMIT ?`, tf.Interval(), s.blockTable, blockWhere, s.priceTable, priceWhere)

	args := make([]any, 0, len(blockArgs)+len(priceArgs)+1)
	args = append(args, blockArgs...)
	args = append(args, priceArgs...)
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &repository.StoreError{Op: "select", Target: "joined", Err: err}
	}
	defer rows.Close()

	out := make([]models.JoinedRow, 0)
	for rows.Next() {
		var r models.JoinedRow
		if err := rows.Scan(&r.BlockHeight, &r.Price, &r.Timestamp); err != nil {
			return nil, &repository.StoreError{Op: "scan", Target: "joined", Err: err}
		}
		r.Price = models.NewPrice(r.Price.Decimal)
		r.Timestamp = r.Timestamp.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &repository.StoreError{Op: "select", Target: "joined", Err: err}
	}
	return out, nil
}

func timeRange(col string, from, to time.Time) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !from.IsZero() {
		conds = append(conds, col+" >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		conds = append(conds, col+" <= ?")
		args = append(args, to.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool is owned by pkg/clickhouse.Client.
func (s *ClickHouseStorage) Close() error {
	return nil
}

var _ repository.Storage = (*ClickHouseStorage)(nil)
