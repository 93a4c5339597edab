package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/micron-tracking/internal/infra/db"
)

var (
	ErrNoItems         = errors.New("orders: purchase order has no items")
	ErrPartWithoutFlow = errors.New("orders: part has no stages")
)

type Repo struct{ q db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{q: q} }

/* Purchase orders */

// Create создаёт заказ с позициями одной транзакцией.
// current_stage_id каждой позиции — первый этап детали.
func (r *Repo) Create(ctx context.Context, in NewOrder) (*PurchaseOrder, error) {
	in.Number = strings.TrimSpace(in.Number)
	if in.Number == "" {
		return nil, fmt.Errorf("orders: po number is required")
	}
	if len(in.Items) == 0 {
		return nil, ErrNoItems
	}

	tx, err := r.q.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	po := PurchaseOrder{
		Number: in.Number, CustomerName: in.CustomerName,
		OrderDate: in.OrderDate, DeliveryDate: in.DeliveryDate, Notes: in.Notes,
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (po_number, customer_name, order_date, delivery_date, notes, status)
		VALUES ($1,$2,$3,$4,$5,'in_progress')
		RETURNING id, status, created_at
	`, po.Number, po.CustomerName, po.OrderDate, po.DeliveryDate, po.Notes).
		Scan(&po.ID, &po.Status, &po.CreatedAt); err != nil {
		return nil, err
	}

	for _, ni := range in.Items {
		if ni.Quantity <= 0 {
			return nil, fmt.Errorf("orders: quantity for part %d must be > 0", ni.PartID)
		}
		var firstStage int64
		err := tx.QueryRow(ctx, `
			SELECT id FROM stages
			WHERE part_id = $1
			ORDER BY stage_order
			LIMIT 1
		`, ni.PartID).Scan(&firstStage)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: part %d", ErrPartWithoutFlow, ni.PartID)
		}
		if err != nil {
			return nil, err
		}

		it := Item{OrderID: po.ID, PartID: ni.PartID, Ordered: ni.Quantity, CurrentStageID: &firstStage, Status: StatusNotStarted}
		if err := tx.QueryRow(ctx, `
			INSERT INTO po_items (po_id, part_id, ordered_quantity, current_stage_id, status)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id, created_at, updated_at
		`, po.ID, ni.PartID, ni.Quantity, firstStage, string(StatusNotStarted)).
			Scan(&it.ID, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		po.Items = append(po.Items, it)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *Repo) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.q.Query(ctx, `
		SELECT po.id, po.po_number, po.customer_name, po.order_date, po.delivery_date, po.notes, po.status, po.created_at,
		       COUNT(poi.id)::int,
		       COALESCE(SUM(poi.ordered_quantity), 0)::int,
		       COALESCE(SUM(poi.allocated_quantity), 0)::int,
		       COALESCE(SUM(poi.produced_quantity), 0)::int,
		       COALESCE(SUM(poi.rejected_quantity), 0)::int,
		       COALESCE(SUM(poi.rework_quantity), 0)::int
		FROM purchase_orders po
		LEFT JOIN po_items poi ON poi.po_id = po.id
		GROUP BY po.id
		ORDER BY po.order_date DESC, po.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(
			&s.ID, &s.Number, &s.CustomerName, &s.OrderDate, &s.DeliveryDate, &s.Notes, &s.Status, &s.CreatedAt,
			&s.Totals.Items, &s.Totals.Ordered, &s.Totals.Allocated,
			&s.Totals.Produced, &s.Totals.Rejected, &s.Totals.Rework,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Detail — заказ, его позиции и ячейки, где лежит каждая позиция. (nil, nil), если заказа нет.
func (r *Repo) Detail(ctx context.Context, id int64) (*Detail, error) {
	var d Detail
	err := r.q.QueryRow(ctx, `
		SELECT id, po_number, customer_name, order_date, delivery_date, notes, status, created_at
		FROM purchase_orders WHERE id = $1
	`, id).Scan(&d.ID, &d.Number, &d.CustomerName, &d.OrderDate, &d.DeliveryDate, &d.Notes, &d.Status, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	items, err := r.listItems(ctx, `WHERE poi.po_id = $1 ORDER BY poi.id`, id)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		bins, err := r.itemBins(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		d.Items = append(d.Items, ItemDetail{Item: it, Bins: bins})
		d.Totals.Items++
		d.Totals.Ordered += it.Ordered
		d.Totals.Allocated += it.Allocated
		d.Totals.Produced += it.Produced
		d.Totals.Rejected += it.Rejected
		d.Totals.Rework += it.Rework
	}
	return &d, nil
}

func (r *Repo) itemBins(ctx context.Context, itemID int64) ([]BinRow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT b.bin_barcode, b.bin_name, b.zone, b.location, s.stage_name, bi.quantity, bi.good_quantity
		FROM bin_inventory bi
		JOIN bins b ON b.id = bi.bin_id
		JOIN stages s ON s.id = bi.stage_id
		WHERE bi.po_item_id = $1 AND bi.quantity > 0
		ORDER BY b.bin_barcode
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BinRow
	for rows.Next() {
		var br BinRow
		if err := rows.Scan(&br.BinBarcode, &br.BinName, &br.Zone, &br.Location, &br.StageName, &br.Quantity, &br.GoodQuantity); err != nil {
			return nil, err
		}
		out = append(out, br)
	}
	return out, rows.Err()
}

/* Items */

const itemSelect = `
	SELECT poi.id, poi.po_id, poi.part_id, poi.ordered_quantity, poi.allocated_quantity,
	       poi.produced_quantity, poi.rejected_quantity, poi.rework_quantity,
	       poi.current_stage_id, poi.status, poi.created_at, poi.updated_at,
	       po.po_number, p.part_number, p.part_name
	FROM po_items poi
	JOIN purchase_orders po ON po.id = poi.po_id
	JOIN parts p ON p.id = poi.part_id
`

func scanItem(row pgx.Row, it *Item) error {
	return row.Scan(
		&it.ID, &it.OrderID, &it.PartID, &it.Ordered, &it.Allocated,
		&it.Produced, &it.Rejected, &it.Rework,
		&it.CurrentStageID, &it.Status, &it.CreatedAt, &it.UpdatedAt,
		&it.OrderNumber, &it.PartNumber, &it.PartName,
	)
}

func (r *Repo) listItems(ctx context.Context, tail string, args ...any) ([]Item, error) {
	rows, err := r.q.Query(ctx, itemSelect+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := scanItem(rows, &it); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) GetItem(ctx context.Context, id int64) (*Item, error) {
	var it Item
	if err := scanItem(r.q.QueryRow(ctx, itemSelect+` WHERE poi.id = $1`, id), &it); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

// LockItem — то же, что GetItem, но строка po_items блокируется до конца транзакции.
func (r *Repo) LockItem(ctx context.Context, id int64) (*Item, error) {
	var it Item
	if err := scanItem(r.q.QueryRow(ctx, itemSelect+` WHERE poi.id = $1 FOR UPDATE OF poi`, id), &it); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

// SaveProgress записывает счётчики позиции. Вызывать только под LockItem.
func (r *Repo) SaveProgress(ctx context.Context, it *Item) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE po_items
		SET allocated_quantity = $2,
		    produced_quantity  = $3,
		    rejected_quantity  = $4,
		    rework_quantity    = $5,
		    current_stage_id   = $6,
		    status             = $7,
		    updated_at         = now()
		WHERE id = $1
	`, it.ID, it.Allocated, it.Produced, it.Rejected, it.Rework, it.CurrentStageID, string(it.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("orders: item %d not found", it.ID)
	}
	return nil
}

// ListRemaining — позиции, по которым ещё есть что выдавать в ячейки.
func (r *Repo) ListRemaining(ctx context.Context) ([]Item, error) {
	return r.listItems(ctx, `
		WHERE poi.ordered_quantity - poi.allocated_quantity > 0
		ORDER BY po.order_date DESC, poi.id ASC
	`)
}
