package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/micron-tracking/internal/infra/db"
)

type Repo struct{ q db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{q: q} }

// SourceRow — строка партии в ячейке с наибольшим stage_order и quantity > 0.
// (nil, nil), если материала нет.
func (r *Repo) SourceRow(ctx context.Context, binID, itemID int64) (*Row, error) {
	var row Row
	err := r.q.QueryRow(ctx, `
		SELECT bi.bin_id, bi.po_item_id, bi.stage_id, s.stage_order, bi.quantity, bi.good_quantity, bi.last_updated
		FROM bin_inventory bi
		JOIN stages s ON s.id = bi.stage_id
		WHERE bi.bin_id = $1 AND bi.po_item_id = $2 AND bi.quantity > 0
		ORDER BY s.stage_order DESC
		LIMIT 1
	`, binID, itemID).Scan(&row.BinID, &row.ItemID, &row.StageID, &row.StageOrder, &row.Quantity, &row.Good, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Add прибавляет qty к quantity и good_quantity строки (bin, item, stage).
// Сначала UPDATE, при отсутствии строки INSERT. Ячейка уже должна быть заблокирована.
func (r *Repo) Add(ctx context.Context, binID, itemID, stageID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("inventory: qty must be > 0")
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE bin_inventory
		SET quantity = quantity + $4,
		    good_quantity = good_quantity + $4,
		    last_updated = now()
		WHERE bin_id = $1 AND po_item_id = $2 AND stage_id = $3
	`, binID, itemID, stageID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO bin_inventory (bin_id, po_item_id, stage_id, quantity, good_quantity)
		VALUES ($1,$2,$3,$4,$4)
	`, binID, itemID, stageID, qty)
	return err
}

// Clear обнуляет строку. Сама строка остаётся (quantity = 0 — «пусто»).
func (r *Repo) Clear(ctx context.Context, binID, itemID, stageID int64) error {
	_, err := r.q.Exec(ctx, `
		UPDATE bin_inventory
		SET quantity = 0, good_quantity = 0, last_updated = now()
		WHERE bin_id = $1 AND po_item_id = $2 AND stage_id = $3
	`, binID, itemID, stageID)
	return err
}

/* Журнал */

func (r *Repo) AppendMovement(ctx context.Context, m *Movement) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO movements (po_item_id, from_bin_id, to_bin_id, from_stage_id, to_stage_id,
		                       quantity_moved, rejected_count, rework_count, transfer_type,
		                       scanned_by, notes, attempt_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id, movement_timestamp
	`, m.ItemID, m.FromBinID, m.ToBinID, m.FromStageID, m.ToStageID,
		m.Quantity, m.Rejected, m.Rework, string(m.Type),
		m.ScannedBy, m.Note, m.AttemptID).Scan(&m.ID, &m.CreatedAt)
}

// OpenOperation открывает операцию на (item, stage, bin). Если такая уже
// in_progress, добавляет qty к её input_quantity.
func (r *Repo) OpenOperation(ctx context.Context, itemID, stageID, binID int64, qty int, operator string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE stage_operations
		SET input_quantity = input_quantity + $4
		WHERE po_item_id = $1 AND stage_id = $2 AND bin_id = $3 AND status = 'in_progress'
	`, itemID, stageID, binID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO stage_operations (po_item_id, stage_id, bin_id, input_quantity, operator_name, status)
		VALUES ($1,$2,$3,$4,$5,'in_progress')
	`, itemID, stageID, binID, qty, operator)
	return err
}

// CompleteOperation закрывает открытую операцию. false — открытой операции не было.
func (r *Repo) CompleteOperation(ctx context.Context, itemID, stageID, binID int64, out Outcome) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE stage_operations
		SET output_quantity = $4,
		    good_quantity = $5,
		    rejected_quantity = $6,
		    rework_quantity = $7,
		    status = 'completed',
		    completed_at = now()
		WHERE po_item_id = $1 AND stage_id = $2 AND bin_id = $3 AND status = 'in_progress'
	`, itemID, stageID, binID, out.Output, out.Good, out.Rejected, out.Rework)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) Operations(ctx context.Context, itemID int64) ([]Operation, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, po_item_id, stage_id, bin_id, input_quantity, output_quantity,
		       good_quantity, rejected_quantity, rework_quantity, operator_name,
		       status, started_at, completed_at
		FROM stage_operations
		WHERE po_item_id = $1
		ORDER BY started_at, id
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.ItemID, &op.StageID, &op.BinID, &op.Input, &op.Output,
			&op.Good, &op.Rejected, &op.Rework, &op.Operator,
			&op.Status, &op.StartedAt, &op.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func movementWhere(f MovementFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("m.transfer_type = $%d", string(f.Type))
	}
	if f.ItemID != 0 {
		add("m.po_item_id = $%d", f.ItemID)
	}
	if f.BinID != 0 {
		args = append(args, f.BinID)
		conds = append(conds, fmt.Sprintf("(m.to_bin_id = $%d OR m.from_bin_id = $%d)", len(args), len(args)))
	}
	if f.From != nil {
		add("m.movement_timestamp >= $%d", *f.From)
	}
	if f.To != nil {
		add("m.movement_timestamp <= $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// ListMovements — журнал, новые сверху.
func (r *Repo) ListMovements(ctx context.Context, f MovementFilter) ([]MovementView, error) {
	where, args := movementWhere(f)
	args = append(args, f.EffectiveLimit())
	rows, err := r.q.Query(ctx, `
		SELECT m.id, m.po_item_id, m.from_bin_id, m.to_bin_id, m.from_stage_id, m.to_stage_id,
		       m.quantity_moved, m.rejected_count, m.rework_count, m.transfer_type,
		       m.scanned_by, m.notes, m.attempt_id, m.movement_timestamp,
		       po.po_number, p.part_number,
		       COALESCE(fb.bin_barcode, ''), tb.bin_barcode,
		       COALESCE(fs.stage_name, ''), ts.stage_name
		FROM movements m
		JOIN po_items poi ON poi.id = m.po_item_id
		JOIN purchase_orders po ON po.id = poi.po_id
		JOIN parts p ON p.id = poi.part_id
		LEFT JOIN bins fb ON fb.id = m.from_bin_id
		JOIN bins tb ON tb.id = m.to_bin_id
		LEFT JOIN stages fs ON fs.id = m.from_stage_id
		JOIN stages ts ON ts.id = m.to_stage_id
		`+where+`
		ORDER BY m.movement_timestamp DESC, m.id DESC
		LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MovementView
	for rows.Next() {
		var v MovementView
		if err := rows.Scan(
			&v.ID, &v.ItemID, &v.FromBinID, &v.ToBinID, &v.FromStageID, &v.ToStageID,
			&v.Quantity, &v.Rejected, &v.Rework, &v.Type,
			&v.ScannedBy, &v.Note, &v.AttemptID, &v.CreatedAt,
			&v.OrderNumber, &v.PartNumber,
			&v.FromBarcode, &v.ToBarcode,
			&v.FromStageName, &v.ToStageName,
		); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Stats — агрегаты по тому же фильтру, без лимита.
func (r *Repo) Stats(ctx context.Context, f MovementFilter) (MovementStats, error) {
	where, args := movementWhere(f)
	var s MovementStats
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*)::int,
		       COUNT(*) FILTER (WHERE m.transfer_type = 'incoming')::int,
		       COUNT(*) FILTER (WHERE m.transfer_type = 'stage_transfer')::int,
		       COALESCE(SUM(m.quantity_moved), 0)::int,
		       COALESCE(SUM(m.rejected_count), 0)::int,
		       COALESCE(SUM(m.rework_count), 0)::int
		FROM movements m
		`+where, args...).Scan(&s.Total, &s.Incoming, &s.Transfers, &s.Units, &s.Rejected, &s.Rework)
	return s, err
}
