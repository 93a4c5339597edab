package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/micron-tracking/internal/domain/bins"
	"github.com/Spok95/micron-tracking/internal/domain/catalog"
	"github.com/Spok95/micron-tracking/internal/domain/inventory"
	"github.com/Spok95/micron-tracking/internal/domain/orders"
)

// Queries — чтение для отчётов, сканера и администрирования справочников.
// Движок через него не ходит.
type Queries struct {
	bins      *bins.Repo
	orders    *orders.Repo
	catalog   *catalog.Repo
	inventory *inventory.Repo
}

func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{
		bins:      bins.NewRepo(pool),
		orders:    orders.NewRepo(pool),
		catalog:   catalog.NewRepo(pool),
		inventory: inventory.NewRepo(pool),
	}
}

// ScanBin возвращает (nil, nil), если ячейки нет.
func (q *Queries) ScanBin(ctx context.Context, barcode string) (*bins.Scan, error) {
	b, err := q.bins.GetByBarcode(ctx, barcode)
	if err != nil || b == nil {
		return nil, err
	}
	used, err := q.bins.Used(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	contents, err := q.bins.Contents(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return &bins.Scan{Bin: *b, Usage: bins.NewUsage(*b, used), Contents: contents}, nil
}

func (q *Queries) Zones(ctx context.Context) ([]bins.ZoneSummary, error) {
	return q.bins.Zones(ctx)
}

func (q *Queries) BinsByZone(ctx context.Context, zone string) ([]bins.Summary, error) {
	return q.bins.ListByZone(ctx, zone)
}

func (q *Queries) RemainingItems(ctx context.Context) ([]orders.Item, error) {
	return q.orders.ListRemaining(ctx)
}

func (q *Queries) Movements(ctx context.Context, f inventory.MovementFilter) ([]inventory.MovementView, inventory.MovementStats, error) {
	list, err := q.inventory.ListMovements(ctx, f)
	if err != nil {
		return nil, inventory.MovementStats{}, err
	}
	stats, err := q.inventory.Stats(ctx, f)
	if err != nil {
		return nil, inventory.MovementStats{}, err
	}
	return list, stats, nil
}

func (q *Queries) Operations(ctx context.Context, itemID int64) ([]inventory.Operation, error) {
	return q.inventory.Operations(ctx, itemID)
}

func (q *Queries) PurchaseOrders(ctx context.Context) ([]orders.Summary, error) {
	return q.orders.List(ctx)
}

func (q *Queries) PurchaseOrder(ctx context.Context, id int64) (*orders.Detail, error) {
	return q.orders.Detail(ctx, id)
}

func (q *Queries) Parts(ctx context.Context) ([]catalog.Part, error) {
	return q.catalog.ListParts(ctx)
}

/* Администрирование */

func (q *Queries) CreatePart(ctx context.Context, number, name, category string, stages []catalog.NewStage) (*catalog.Part, error) {
	return q.catalog.CreatePart(ctx, number, name, category, stages)
}

func (q *Queries) CreatePurchaseOrder(ctx context.Context, in orders.NewOrder) (*orders.PurchaseOrder, error) {
	return q.orders.Create(ctx, in)
}

func (q *Queries) CreateBin(ctx context.Context, barcode, name, zone, location string, capacity int) (*bins.Bin, error) {
	return q.bins.Create(ctx, barcode, name, zone, location, capacity)
}

func (q *Queries) SetBinActive(ctx context.Context, id int64, active bool) (*bins.Bin, error) {
	return q.bins.SetActive(ctx, id, active)
}
