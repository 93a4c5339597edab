package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/micron-tracking/internal/domain/inventory"
	"github.com/Spok95/micron-tracking/internal/domain/orders"
	"github.com/Spok95/micron-tracking/internal/infra/metrics"
)

// AllocateRequest: Quantity == nil — взять Options.DefaultQty.
type AllocateRequest struct {
	BinBarcode string
	ItemID     int64
	Quantity   *int
	Operator   string
}

type AllocateResult struct {
	Allocated        int    `json:"allocated_quantity"`
	RemainingInOrder int    `json:"remaining_in_order"`
	TotalOrdered     int    `json:"total_ordered"`
	Stage            string `json:"stage_name"`
	BinBarcode       string `json:"bin_barcode"`
	BinAvailable     int    `json:"bin_available"`
	OrderNumber      string `json:"order_number"`
	PartNumber       string `json:"part_number"`
}

// Allocate выдаёт до запрошенного количества невыданного остатка партии в ячейку
// на первый этап. Количество урезается до остатка заказа и свободного места.
func (e *Engine) Allocate(ctx context.Context, req AllocateRequest) (*AllocateResult, error) {
	started := time.Now()
	req.BinBarcode = strings.TrimSpace(req.BinBarcode)
	want := e.opts.DefaultQty
	if req.Quantity != nil {
		want = *req.Quantity
	}
	attempt := newAttempt()
	log := e.log.With(
		slog.String("op", opAllocate),
		slog.String("attempt_id", attempt.String()),
		slog.String("bin", req.BinBarcode),
		slog.Int64("item_id", req.ItemID),
		slog.Int("requested", want),
	)

	var res *AllocateResult
	err := e.run(ctx, opAllocate, []string{binKey(req.BinBarcode), itemKey(req.ItemID)},
		func(ctx context.Context, tx Tx) error {
			r, err := allocate(ctx, tx, req, want, attempt)
			res = r
			return err
		})
	if err != nil {
		e.fail(log, opAllocate, started, err)
		return nil, err
	}

	metrics.ObserveOperation(opAllocate, "ok", started)
	metrics.AddUnits("allocated", res.Allocated)
	log.Info("allocated",
		"allocated", res.Allocated,
		"remaining", res.RemainingInOrder,
		"stage", res.Stage,
	)
	return res, nil
}

func allocate(ctx context.Context, tx Tx, req AllocateRequest, want int, attempt uuid.UUID) (*AllocateResult, error) {
	bin, err := tx.BinByBarcode(ctx, req.BinBarcode)
	if err != nil {
		return nil, err
	}
	if bin == nil {
		return nil, fmt.Errorf("%w: bin %q", ErrNotFound, req.BinBarcode)
	}
	locked, err := tx.LockBins(ctx, bin.ID)
	if err != nil {
		return nil, err
	}
	// статус проверяем по строке под блокировкой: ячейку могли отключить
	// между чтением по штрихкоду и FOR UPDATE
	*bin = locked[bin.ID]
	if !bin.Active() {
		return nil, fmt.Errorf("%w: bin %q is inactive", ErrNotFound, req.BinBarcode)
	}

	item, err := tx.LockItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: batch %d", ErrNotFound, req.ItemID)
	}
	seq, err := tx.Sequence(ctx, item.PartID)
	if err != nil {
		return nil, err
	}
	first, ok := seq.First()
	if !ok {
		return nil, fmt.Errorf("%w: part %d has no stages", ErrNotFound, item.PartID)
	}

	remaining := item.Remaining()
	if remaining <= 0 {
		return nil, fmt.Errorf("%w: batch %d ordered %d, allocated %d", ErrExhaustedOrder, item.ID, item.Ordered, item.Allocated)
	}

	used, err := tx.BinUsed(ctx, bin.ID)
	if err != nil {
		return nil, err
	}
	avail := available(bin, used, 0)
	if avail <= 0 {
		return nil, fmt.Errorf("%w: bin %q used %d of %d", ErrBinFull, bin.Barcode, used, bin.Capacity)
	}

	qty := min(want, remaining, avail)
	if qty <= 0 {
		return nil, fmt.Errorf("%w: requested %d", ErrNoCapacity, want)
	}

	item.Allocated += qty
	item.Status = orders.StatusFor(item.Allocated, item.Ordered)
	if item.CurrentStageID == nil {
		id := first.ID
		item.CurrentStageID = &id
	}
	if err := tx.SaveItem(ctx, item); err != nil {
		return nil, err
	}
	if err := tx.AddInventory(ctx, bin.ID, item.ID, first.ID, qty); err != nil {
		return nil, err
	}
	if err := tx.AppendMovement(ctx, &inventory.Movement{
		ItemID:    item.ID,
		ToBinID:   bin.ID,
		ToStageID: first.ID,
		Quantity:  qty,
		Type:      inventory.TransferIncoming,
		ScannedBy: req.Operator,
		Note:      "initial allocation",
		AttemptID: attempt,
	}); err != nil {
		return nil, err
	}
	if err := tx.OpenOperation(ctx, item.ID, first.ID, bin.ID, qty, req.Operator); err != nil {
		return nil, err
	}

	return &AllocateResult{
		Allocated:        qty,
		RemainingInOrder: item.Remaining(),
		TotalOrdered:     item.Ordered,
		Stage:            first.Name,
		BinBarcode:       bin.Barcode,
		BinAvailable:     avail - qty,
		OrderNumber:      item.OrderNumber,
		PartNumber:       item.PartNumber,
	}, nil
}
