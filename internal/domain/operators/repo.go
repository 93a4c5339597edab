package operators

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/micron-tracking/internal/infra/db"
)

type Repo struct{ q db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{q: q} }

const operatorColumns = `id, telegram_id, username, first_name, last_name, role, active, created_at, updated_at`

func scanOperator(row pgx.Row) (*Operator, error) {
	var o Operator
	if err := row.Scan(&o.ID, &o.TelegramID, &o.Username, &o.FirstName, &o.LastName, &o.Role, &o.Active, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *Repo) GetByTelegramID(ctx context.Context, tgID int64) (*Operator, error) {
	return scanOperator(r.q.QueryRow(ctx, `
		SELECT `+operatorColumns+`
		FROM operators WHERE telegram_id = $1
	`, tgID))
}

// UpsertFromTelegram обновляет профиль по Telegram. Роль supervisor не понижается.
func (r *Repo) UpsertFromTelegram(ctx context.Context, tg Telegram, role Role) (*Operator, error) {
	o, err := scanOperator(r.q.QueryRow(ctx, `
		INSERT INTO operators (telegram_id, username, first_name, last_name, role)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (telegram_id)
		DO UPDATE SET
			username   = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			role       = CASE WHEN operators.role = 'supervisor' THEN operators.role ELSE EXCLUDED.role END,
			updated_at = now()
		RETURNING `+operatorColumns+`
	`, tg.ID, tg.Username, tg.FirstName, tg.LastName, role))
	if err == nil && o == nil {
		return nil, pgx.ErrNoRows
	}
	return o, err
}

func (r *Repo) SetActive(ctx context.Context, tgID int64, active bool) (*Operator, error) {
	return scanOperator(r.q.QueryRow(ctx, `
		UPDATE operators SET active = $2, updated_at = now()
		WHERE telegram_id = $1
		RETURNING `+operatorColumns+`
	`, tgID, active))
}

func (r *Repo) ListByRole(ctx context.Context, role Role) ([]Operator, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+operatorColumns+`
		FROM operators
		WHERE role = $1 AND active
		ORDER BY id
	`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Operator
	for rows.Next() {
		o, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}
