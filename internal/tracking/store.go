package tracking

import (
	"context"

	"github.com/Spok95/micron-tracking/internal/domain/bins"
	"github.com/Spok95/micron-tracking/internal/domain/catalog"
	"github.com/Spok95/micron-tracking/internal/domain/inventory"
	"github.com/Spok95/micron-tracking/internal/domain/orders"
)

// Store — транзакционное хранилище, с которым работает движок.
type Store interface {
	// WithinTx выполняет fn одной атомарной единицей: при ошибке ничего не сохраняется.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// BinUsage — чтение вне транзакции. (nil, nil, nil), если ячейки нет.
	BinUsage(ctx context.Context, binID int64) (*bins.Bin, *bins.Usage, error)
}

// Tx — примитивы внутри транзакции. Отсутствующие строки — (nil, nil).
type Tx interface {
	BinByBarcode(ctx context.Context, barcode string) (*bins.Bin, error)
	// LockBins блокирует ячейки до конца транзакции в порядке возрастания id
	// и отдаёт их актуальные строки.
	LockBins(ctx context.Context, ids ...int64) (map[int64]bins.Bin, error)
	BinUsed(ctx context.Context, binID int64) (int, error)

	// LockItem читает и блокирует партию.
	LockItem(ctx context.Context, itemID int64) (*orders.Item, error)
	SaveItem(ctx context.Context, it *orders.Item) error
	Sequence(ctx context.Context, partID int64) (catalog.Sequence, error)

	SourceRow(ctx context.Context, binID, itemID int64) (*inventory.Row, error)
	AddInventory(ctx context.Context, binID, itemID, stageID int64, qty int) error
	ClearInventory(ctx context.Context, binID, itemID, stageID int64) error

	AppendMovement(ctx context.Context, m *inventory.Movement) error
	OpenOperation(ctx context.Context, itemID, stageID, binID int64, qty int, operator string) error
	CompleteOperation(ctx context.Context, itemID, stageID, binID int64, out inventory.Outcome) (bool, error)
}

// Locker — необязательная блокировка поверх транзакций (несколько реплик).
// Недоступная блокировка возвращает ErrConcurrencyConflict.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

type nopLocker struct{}

func (nopLocker) Acquire(context.Context, ...string) (func(), error) { return func() {}, nil }

// NopLocker — Locker, который ничего не блокирует.
func NopLocker() Locker { return nopLocker{} }
