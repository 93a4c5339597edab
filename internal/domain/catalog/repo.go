package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/micron-tracking/internal/infra/db"
)

var ErrNoStages = errors.New("catalog: part must have at least one stage")

type Repo struct{ q db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{q: q} }

/* Parts */

// CreatePart создаёт деталь и её маршрут; stage_order назначается 1..N в порядке stages.
func (r *Repo) CreatePart(ctx context.Context, number, name, category string, stages []NewStage) (*Part, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("catalog: part number is required")
	}
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	if name == "" {
		name = number
	}

	tx, err := r.q.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p := Part{Number: number, Name: name, Category: category}
	if err := tx.QueryRow(ctx, `
		INSERT INTO parts (part_number, part_name, category)
		VALUES ($1,$2,$3)
		RETURNING id, created_at
	`, number, name, category).Scan(&p.ID, &p.CreatedAt); err != nil {
		return nil, err
	}

	for i, ns := range stages {
		t := ns.Type
		if t == "" {
			t = StageMachining
		}
		st := Stage{PartID: p.ID, Name: ns.Name, Order: i + 1, Type: t}
		if err := tx.QueryRow(ctx, `
			INSERT INTO stages (part_id, stage_name, stage_order, stage_type)
			VALUES ($1,$2,$3,$4)
			RETURNING id
		`, p.ID, st.Name, st.Order, string(st.Type)).Scan(&st.ID); err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, st)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) GetPart(ctx context.Context, id int64) (*Part, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, part_number, part_name, category, created_at
		FROM parts WHERE id = $1
	`, id)
	var p Part
	if err := row.Scan(&p.ID, &p.Number, &p.Name, &p.Category, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	seq, err := r.Sequence(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Stages = seq
	return &p, nil
}

func (r *Repo) ListParts(ctx context.Context) ([]Part, error) {
	rows, err := r.q.Query(ctx, `
		SELECT p.id, p.part_number, p.part_name, p.category, p.created_at,
		       s.id, s.stage_name, s.stage_order, s.stage_type
		FROM parts p
		LEFT JOIN stages s ON s.part_id = p.id
		ORDER BY p.part_number, s.stage_order
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Part
	idx := map[int64]int{}
	for rows.Next() {
		var p Part
		var sID *int64
		var sName, sType *string
		var sOrder *int
		if err := rows.Scan(&p.ID, &p.Number, &p.Name, &p.Category, &p.CreatedAt,
			&sID, &sName, &sOrder, &sType); err != nil {
			return nil, err
		}
		i, ok := idx[p.ID]
		if !ok {
			out = append(out, p)
			i = len(out) - 1
			idx[p.ID] = i
		}
		// деталь без этапов — LEFT JOIN отдаёт NULL-ы
		if sID != nil {
			out[i].Stages = append(out[i].Stages, Stage{
				ID: *sID, PartID: p.ID, Name: *sName, Order: *sOrder, Type: StageType(*sType),
			})
		}
	}
	return out, rows.Err()
}

/* Stages */

// Sequence возвращает маршрут детали (пустой, если этапов нет).
func (r *Repo) Sequence(ctx context.Context, partID int64) (Sequence, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, part_id, stage_name, stage_order, stage_type
		FROM stages
		WHERE part_id = $1
		ORDER BY stage_order
	`, partID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stage
	for rows.Next() {
		var s Stage
		if err := rows.Scan(&s.ID, &s.PartID, &s.Name, &s.Order, &s.Type); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewSequence(out), nil
}

func (r *Repo) FirstStage(ctx context.Context, partID int64) (*Stage, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, part_id, stage_name, stage_order, stage_type
		FROM stages
		WHERE part_id = $1
		ORDER BY stage_order
		LIMIT 1
	`, partID)
	var s Stage
	if err := row.Scan(&s.ID, &s.PartID, &s.Name, &s.Order, &s.Type); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
