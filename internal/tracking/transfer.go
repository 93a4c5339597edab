package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/micron-tracking/internal/domain/catalog"
	"github.com/Spok95/micron-tracking/internal/domain/inventory"
	"github.com/Spok95/micron-tracking/internal/infra/metrics"
)

type TransferRequest struct {
	FromBarcode string
	ToBarcode   string
	ItemID      int64
	Rejected    int
	Rework      int
	Operator    string
	Note        string
}

type TransferResult struct {
	Transferred int    `json:"transferred_quantity"`
	Rejected    int    `json:"rejected_quantity"`
	Rework      int    `json:"rework_quantity"`
	FromStage   string `json:"from_stage"`
	ToStage     string `json:"to_stage"`
	Finalized   bool   `json:"finalized"` // перенос с последнего этапа, этап не меняется
	FromBin     string `json:"from_bin"`
	ToBin       string `json:"to_bin"`
	ToAvailable int    `json:"to_available"`
	OrderNumber string `json:"order_number"`
	PartNumber  string `json:"part_number"`

	// openOpMissing — в исходной ячейке не было открытой операции этапа.
	openOpMissing bool
}

// Transfer переносит весь материал партии из ячейки-источника на следующий этап
// в ячейку-приёмник, отделяя брак и доработку. Места в приёмнике должно хватить
// на всё количество: частичного переноса нет.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	started := time.Now()
	req.FromBarcode = strings.TrimSpace(req.FromBarcode)
	req.ToBarcode = strings.TrimSpace(req.ToBarcode)
	attempt := newAttempt()
	log := e.log.With(
		slog.String("op", opTransfer),
		slog.String("attempt_id", attempt.String()),
		slog.String("from_bin", req.FromBarcode),
		slog.String("to_bin", req.ToBarcode),
		slog.Int64("item_id", req.ItemID),
		slog.Int("rejected", req.Rejected),
		slog.Int("rework", req.Rework),
	)

	keys := []string{binKey(req.FromBarcode), binKey(req.ToBarcode), itemKey(req.ItemID)}
	var res *TransferResult
	err := e.run(ctx, opTransfer, keys, func(ctx context.Context, tx Tx) error {
		r, err := transfer(ctx, tx, req, attempt)
		res = r
		return err
	})
	if err != nil {
		e.fail(log, opTransfer, started, err)
		return nil, err
	}

	if res.openOpMissing {
		log.Warn("no open stage operation at source", "stage", res.FromStage)
	}
	metrics.ObserveOperation(opTransfer, "ok", started)
	metrics.AddUnits("transferred", res.Transferred)
	metrics.AddUnits("rejected", res.Rejected)
	metrics.AddUnits("rework", res.Rework)
	log.Info("transferred",
		"transferred", res.Transferred,
		"from_stage", res.FromStage,
		"to_stage", res.ToStage,
		"finalized", res.Finalized,
	)
	return res, nil
}

func transfer(ctx context.Context, tx Tx, req TransferRequest, attempt uuid.UUID) (*TransferResult, error) {
	if req.Rejected < 0 || req.Rework < 0 {
		return nil, fmt.Errorf("%w: negative rejected %d / rework %d", ErrInvalidSplit, req.Rejected, req.Rework)
	}

	from, err := tx.BinByBarcode(ctx, req.FromBarcode)
	if err != nil {
		return nil, err
	}
	if from == nil {
		return nil, fmt.Errorf("%w: bin %q", ErrNotFound, req.FromBarcode)
	}
	to, err := tx.BinByBarcode(ctx, req.ToBarcode)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, fmt.Errorf("%w: bin %q", ErrNotFound, req.ToBarcode)
	}
	locked, err := tx.LockBins(ctx, from.ID, to.ID)
	if err != nil {
		return nil, err
	}
	*from, *to = locked[from.ID], locked[to.ID]
	if !to.Active() {
		return nil, fmt.Errorf("%w: bin %q is inactive", ErrNotFound, req.ToBarcode)
	}

	item, err := tx.LockItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: batch %d", ErrNotFound, req.ItemID)
	}

	row, err := tx.SourceRow(ctx, from.ID, item.ID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: batch %d in bin %q", ErrNoMaterial, item.ID, from.Barcode)
	}
	current := row.Quantity
	if req.Rejected+req.Rework > current {
		return nil, fmt.Errorf("%w: %d + %d > %d", ErrInvalidSplit, req.Rejected, req.Rework, current)
	}
	qty := current - req.Rejected - req.Rework

	seq, err := tx.Sequence(ctx, item.PartID)
	if err != nil {
		return nil, err
	}
	cur, ok := seq.Find(row.StageID)
	if !ok {
		return nil, fmt.Errorf("%w: stage %d of part %d", ErrNotFound, row.StageID, item.PartID)
	}
	step := seq.Next(cur)
	next := step.Target()

	used, err := tx.BinUsed(ctx, to.ID)
	if err != nil {
		return nil, err
	}
	freed := 0
	if to.ID == from.ID {
		freed = current
	}
	avail := available(to, used, freed)
	if qty > avail {
		return nil, fmt.Errorf("%w: bin %q has %d free, need %d", ErrBinFull, to.Barcode, avail, qty)
	}

	if err := tx.ClearInventory(ctx, from.ID, item.ID, cur.ID); err != nil {
		return nil, err
	}
	if qty > 0 {
		if err := tx.AddInventory(ctx, to.ID, item.ID, next.ID, qty); err != nil {
			return nil, err
		}
	}

	fromBin, fromStage := from.ID, cur.ID
	if err := tx.AppendMovement(ctx, &inventory.Movement{
		ItemID:      item.ID,
		FromBinID:   &fromBin,
		ToBinID:     to.ID,
		FromStageID: &fromStage,
		ToStageID:   next.ID,
		Quantity:    qty,
		Rejected:    req.Rejected,
		Rework:      req.Rework,
		Type:        inventory.TransferStage,
		ScannedBy:   req.Operator,
		Note:        req.Note,
		AttemptID:   attempt,
	}); err != nil {
		return nil, err
	}

	_, advancing := step.(catalog.Advance)
	item.Rejected += req.Rejected
	item.Rework += req.Rework
	// готовым считается только то, что ушло с последнего этапа
	if !advancing {
		item.Produced += qty
	}
	// указатель этапа не откатывается, если переносят отставшую часть партии
	if ptr, ok := pointerStage(seq, item.CurrentStageID); !ok || next.Order > ptr.Order {
		id := next.ID
		item.CurrentStageID = &id
	}
	if err := tx.SaveItem(ctx, item); err != nil {
		return nil, err
	}

	found, err := tx.CompleteOperation(ctx, item.ID, cur.ID, from.ID, inventory.Outcome{
		Output:   qty,
		Good:     qty,
		Rejected: req.Rejected,
		Rework:   req.Rework,
	})
	if err != nil {
		return nil, err
	}
	if advancing && qty > 0 {
		if err := tx.OpenOperation(ctx, item.ID, next.ID, to.ID, qty, req.Operator); err != nil {
			return nil, err
		}
	}

	return &TransferResult{
		Transferred:   qty,
		Rejected:      req.Rejected,
		Rework:        req.Rework,
		FromStage:     cur.Name,
		ToStage:       next.Name,
		Finalized:     !advancing,
		FromBin:       from.Barcode,
		ToBin:         to.Barcode,
		ToAvailable:   avail - qty,
		OrderNumber:   item.OrderNumber,
		PartNumber:    item.PartNumber,
		openOpMissing: !found,
	}, nil
}

func pointerStage(seq catalog.Sequence, id *int64) (catalog.Stage, bool) {
	if id == nil {
		return catalog.Stage{}, false
	}
	return seq.Find(*id)
}
