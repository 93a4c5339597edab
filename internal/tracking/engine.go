package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/Spok95/micron-tracking/internal/infra/metrics"
)

const (
	opAllocate = "allocate"
	opTransfer = "transfer"
)

type Options struct {
	// DefaultQty — сколько выдавать, если в запросе количество не указано.
	DefaultQty int
	// MaxRetries — сколько раз повторять операцию при ErrConcurrencyConflict.
	MaxRetries uint64
	RetryBase  time.Duration
}

// Engine выполняет выдачу в ячейки и перемещения между этапами.
// Каждая операция — одна транзакция Store; состояние между вызовами не кешируется.
type Engine struct {
	store  Store
	locker Locker
	log    *slog.Logger
	opts   Options
}

func New(store Store, locker Locker, log *slog.Logger, opts Options) *Engine {
	if locker == nil {
		locker = NopLocker()
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.DefaultQty <= 0 {
		opts.DefaultQty = 200
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 50 * time.Millisecond
	}
	return &Engine{store: store, locker: locker, log: log, opts: opts}
}

// GetBinUsage — used/available ячейки по текущим строкам bin_inventory.
func (e *Engine) GetBinUsage(ctx context.Context, binID int64) (*Usage, error) {
	b, u, err := e.store.BinUsage(ctx, binID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: bin %d", ErrNotFound, binID)
	}
	return &Usage{Bin: *b, Used: u.Used, Available: u.Available(), Percent: u.Percent()}, nil
}

// run выполняет fn в транзакции, повторяя при конфликтах с экспоненциальной паузой.
func (e *Engine) run(ctx context.Context, op string, keys []string, fn func(ctx context.Context, tx Tx) error) error {
	b := retry.WithMaxRetries(e.opts.MaxRetries, retry.NewExponential(e.opts.RetryBase))
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.IncRetry(op)
		}
		release, err := e.locker.Acquire(ctx, keys...)
		if err != nil {
			if errors.Is(err, ErrConcurrencyConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		defer release()

		err = e.store.WithinTx(ctx, fn)
		if errors.Is(err, ErrConcurrencyConflict) {
			e.log.Debug("conflict, retrying", "op", op, "attempt", attempt)
			return retry.RetryableError(err)
		}
		return err
	})
}

// fail логирует неудачную попытку с контекстом, по которому её можно восстановить.
func (e *Engine) fail(log *slog.Logger, op string, started time.Time, err error) {
	metrics.ObserveOperation(op, Reason(err), started)
	if IsBusiness(err) {
		log.Warn(op+" rejected", "reason", Reason(err), "err", err)
		return
	}
	log.Error(op+" failed", "err", err)
}

func binKey(barcode string) string { return "bin:" + barcode }
func itemKey(id int64) string      { return fmt.Sprintf("batch:%d", id) }

func newAttempt() uuid.UUID { return uuid.New() }
