// Package pgstore — реализация tracking.Store поверх Postgres.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/micron-tracking/internal/domain/bins"
	"github.com/Spok95/micron-tracking/internal/domain/catalog"
	"github.com/Spok95/micron-tracking/internal/domain/inventory"
	"github.com/Spok95/micron-tracking/internal/domain/orders"
	"github.com/Spok95/micron-tracking/internal/tracking"
)

// Коды Postgres, при которых операцию имеет смысл повторить.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ tracking.Store = (*Store)(nil)

func New(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

// WithinTx: READ COMMITTED + SELECT ... FOR UPDATE на ячейках и партии.
// Ожидание блокировки ограничено lock_timeout, после чего ошибка считается конфликтом.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx tracking.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
			return err
		}
	}
	if err := fn(ctx, newTx(tx)); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

func (s *Store) BinUsage(ctx context.Context, binID int64) (*bins.Bin, *bins.Usage, error) {
	return bins.NewRepo(s.pool).Usage(ctx, binID)
}

// classify переводит ошибки блокировок/сериализации в tracking.ErrConcurrencyConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %s (%s)", tracking.ErrConcurrencyConflict, pgErr.Message, pgErr.Code)
		}
	}
	return err
}

type pgTx struct {
	bins      *bins.Repo
	orders    *orders.Repo
	catalog   *catalog.Repo
	inventory *inventory.Repo
}

func newTx(tx pgx.Tx) *pgTx {
	return &pgTx{
		bins:      bins.NewRepo(tx),
		orders:    orders.NewRepo(tx),
		catalog:   catalog.NewRepo(tx),
		inventory: inventory.NewRepo(tx),
	}
}

func (t *pgTx) BinByBarcode(ctx context.Context, barcode string) (*bins.Bin, error) {
	return t.bins.GetByBarcode(ctx, barcode)
}

func (t *pgTx) LockBins(ctx context.Context, ids ...int64) (map[int64]bins.Bin, error) {
	return t.bins.Lock(ctx, ids...)
}

func (t *pgTx) BinUsed(ctx context.Context, binID int64) (int, error) {
	return t.bins.Used(ctx, binID)
}

func (t *pgTx) LockItem(ctx context.Context, itemID int64) (*orders.Item, error) {
	return t.orders.LockItem(ctx, itemID)
}

func (t *pgTx) SaveItem(ctx context.Context, it *orders.Item) error {
	return t.orders.SaveProgress(ctx, it)
}

func (t *pgTx) Sequence(ctx context.Context, partID int64) (catalog.Sequence, error) {
	return t.catalog.Sequence(ctx, partID)
}

func (t *pgTx) SourceRow(ctx context.Context, binID, itemID int64) (*inventory.Row, error) {
	return t.inventory.SourceRow(ctx, binID, itemID)
}

func (t *pgTx) AddInventory(ctx context.Context, binID, itemID, stageID int64, qty int) error {
	return t.inventory.Add(ctx, binID, itemID, stageID, qty)
}

func (t *pgTx) ClearInventory(ctx context.Context, binID, itemID, stageID int64) error {
	return t.inventory.Clear(ctx, binID, itemID, stageID)
}

func (t *pgTx) AppendMovement(ctx context.Context, m *inventory.Movement) error {
	return t.inventory.AppendMovement(ctx, m)
}

func (t *pgTx) OpenOperation(ctx context.Context, itemID, stageID, binID int64, qty int, operator string) error {
	return t.inventory.OpenOperation(ctx, itemID, stageID, binID, qty, operator)
}

func (t *pgTx) CompleteOperation(ctx context.Context, itemID, stageID, binID int64, out inventory.Outcome) (bool, error) {
	return t.inventory.CompleteOperation(ctx, itemID, stageID, binID, out)
}
