package bins

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/micron-tracking/internal/infra/db"
)

type Repo struct{ q db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{q: q} }

const binColumns = `id, bin_barcode, bin_name, zone, location, capacity, status, created_at`

func scanBin(row pgx.Row) (*Bin, error) {
	var b Bin
	if err := row.Scan(&b.ID, &b.Barcode, &b.Name, &b.Zone, &b.Location, &b.Capacity, &b.Status, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *Repo) Create(ctx context.Context, barcode, name, zone, location string, capacity int) (*Bin, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, fmt.Errorf("bins: barcode is required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("bins: capacity must be > 0")
	}
	return scanBin(r.q.QueryRow(ctx, `
		INSERT INTO bins (bin_barcode, bin_name, zone, location, capacity)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING `+binColumns,
		barcode, name, zone, location, capacity))
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Bin, error) {
	return scanBin(r.q.QueryRow(ctx, `SELECT `+binColumns+` FROM bins WHERE id = $1`, id))
}

func (r *Repo) GetByBarcode(ctx context.Context, barcode string) (*Bin, error) {
	return scanBin(r.q.QueryRow(ctx, `SELECT `+binColumns+` FROM bins WHERE bin_barcode = $1`, barcode))
}

func (r *Repo) SetActive(ctx context.Context, id int64, active bool) (*Bin, error) {
	st := StatusInactive
	if active {
		st = StatusActive
	}
	return scanBin(r.q.QueryRow(ctx, `
		UPDATE bins SET status = $2 WHERE id = $1
		RETURNING `+binColumns, id, string(st)))
}

// Lock берёт строки ячеек FOR UPDATE строго по возрастанию id, чтобы
// встречные перемещения A→B и B→A не ловили дедлок.
// Lock берёт FOR UPDATE на ячейки в порядке возрастания id и возвращает
// заблокированные строки: статус и ёмкость читаются уже под блокировкой.
func (r *Repo) Lock(ctx context.Context, ids ...int64) (map[int64]Bin, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	locked := make(map[int64]Bin, len(sorted))
	for _, id := range sorted {
		if _, ok := locked[id]; ok {
			continue
		}
		b, err := scanBin(r.q.QueryRow(ctx, `SELECT `+binColumns+` FROM bins WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, fmt.Errorf("bins: bin %d vanished", id)
		}
		locked[id] = *b
	}
	return locked, nil
}

// Used — Σ quantity по всем строкам bin_inventory ячейки.
func (r *Repo) Used(ctx context.Context, binID int64) (int, error) {
	var used int
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)::int
		FROM bin_inventory
		WHERE bin_id = $1
	`, binID).Scan(&used)
	return used, err
}

// Usage возвращает (nil, nil), если ячейки нет.
func (r *Repo) Usage(ctx context.Context, binID int64) (*Bin, *Usage, error) {
	b, err := r.GetByID(ctx, binID)
	if err != nil || b == nil {
		return nil, nil, err
	}
	used, err := r.Used(ctx, binID)
	if err != nil {
		return nil, nil, err
	}
	u := NewUsage(*b, used)
	return b, &u, nil
}

func (r *Repo) Contents(ctx context.Context, binID int64) ([]Content, error) {
	rows, err := r.q.Query(ctx, `
		SELECT bi.po_item_id, po.po_number, po.customer_name, p.part_number, p.part_name,
		       s.id, s.stage_name, s.stage_order,
		       bi.quantity, bi.good_quantity,
		       poi.ordered_quantity, poi.produced_quantity, bi.last_updated
		FROM bin_inventory bi
		JOIN po_items poi ON poi.id = bi.po_item_id
		JOIN purchase_orders po ON po.id = poi.po_id
		JOIN parts p ON p.id = poi.part_id
		JOIN stages s ON s.id = bi.stage_id
		WHERE bi.bin_id = $1 AND bi.quantity > 0
		ORDER BY bi.last_updated DESC
	`, binID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Content
	for rows.Next() {
		var c Content
		if err := rows.Scan(
			&c.ItemID, &c.OrderNumber, &c.CustomerName, &c.PartNumber, &c.PartName,
			&c.StageID, &c.StageName, &c.StageOrder,
			&c.Quantity, &c.GoodQuantity,
			&c.Ordered, &c.Produced, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) ListByZone(ctx context.Context, zone string) ([]Summary, error) {
	rows, err := r.q.Query(ctx, `
		SELECT b.id, b.bin_barcode, b.bin_name, b.zone, b.location, b.capacity, b.status, b.created_at,
		       COUNT(DISTINCT bi.po_item_id)::int,
		       COALESCE(SUM(bi.quantity), 0)::int
		FROM bins b
		LEFT JOIN bin_inventory bi ON bi.bin_id = b.id AND bi.quantity > 0
		WHERE b.zone = $1
		GROUP BY b.id
		ORDER BY b.bin_barcode
	`, zone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Barcode, &s.Name, &s.Zone, &s.Location, &s.Capacity, &s.Status, &s.CreatedAt,
			&s.ActiveBatches, &s.Used); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) Zones(ctx context.Context) ([]ZoneSummary, error) {
	rows, err := r.q.Query(ctx, `
		SELECT b.zone,
		       COUNT(DISTINCT b.id)::int,
		       COUNT(DISTINCT CASE WHEN bi.quantity > 0 THEN b.id END)::int
		FROM bins b
		LEFT JOIN bin_inventory bi ON bi.bin_id = b.id
		GROUP BY b.zone
		ORDER BY b.zone
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ZoneSummary
	for rows.Next() {
		var z ZoneSummary
		if err := rows.Scan(&z.Zone, &z.TotalBins, &z.OccupiedBins); err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}
