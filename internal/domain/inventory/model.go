package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Row — строка bin_inventory: сколько единиц партии лежит в ячейке на этапе.
// quantity = 0 означает «строки нет».
type Row struct {
	BinID      int64
	ItemID     int64
	StageID    int64
	StageOrder int
	Quantity   int
	Good       int
	UpdatedAt  time.Time
}

type TransferType string

const (
	TransferIncoming TransferType = "incoming"
	TransferStage    TransferType = "stage_transfer"
)

// Movement — неизменяемая запись журнала. Для incoming From* пустые.
type Movement struct {
	ID          int64        `json:"id"`
	ItemID      int64        `json:"po_item_id"`
	FromBinID   *int64       `json:"from_bin_id"`
	ToBinID     int64        `json:"to_bin_id"`
	FromStageID *int64       `json:"from_stage_id"`
	ToStageID   int64        `json:"to_stage_id"`
	Quantity    int          `json:"quantity"`
	Rejected    int          `json:"rejected_quantity"`
	Rework      int          `json:"rework_quantity"`
	Type        TransferType `json:"type"`
	ScannedBy   string       `json:"scanned_by"`
	Note        string       `json:"notes"`
	AttemptID   uuid.UUID    `json:"attempt_id"`
	CreatedAt   time.Time    `json:"created_at"`
}

type OpStatus string

const (
	OpInProgress OpStatus = "in_progress"
	OpCompleted  OpStatus = "completed"
)

// Operation — работа над партией на этапе в конкретной ячейке.
type Operation struct {
	ID          int64      `json:"id"`
	ItemID      int64      `json:"po_item_id"`
	StageID     int64      `json:"stage_id"`
	BinID       int64      `json:"bin_id"`
	Input       int        `json:"input_quantity"`
	Output      int        `json:"output_quantity"`
	Good        int        `json:"good_quantity"`
	Rejected    int        `json:"rejected_quantity"`
	Rework      int        `json:"rework_quantity"`
	Operator    string     `json:"operator"`
	Status      OpStatus   `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Outcome — итог закрытия операции при переносе.
type Outcome struct {
	Output   int
	Good     int
	Rejected int
	Rework   int
}

const (
	DefaultMovementLimit = 100
	MaxMovementLimit     = 1000
)

// MovementFilter — фильтр журнала. Нулевые поля не ограничивают выборку.
type MovementFilter struct {
	Type   TransferType
	ItemID int64
	BinID  int64
	From   *time.Time
	To     *time.Time
	Limit  int
}

// EffectiveLimit приводит Limit к [1, MaxMovementLimit], по умолчанию DefaultMovementLimit.
func (f MovementFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultMovementLimit
	case f.Limit > MaxMovementLimit:
		return MaxMovementLimit
	default:
		return f.Limit
	}
}

// Match — та же логика фильтра, что и в SQL; используется хранилищем в памяти.
func (f MovementFilter) Match(m Movement) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.ItemID != 0 && m.ItemID != f.ItemID {
		return false
	}
	if f.BinID != 0 && m.ToBinID != f.BinID && (m.FromBinID == nil || *m.FromBinID != f.BinID) {
		return false
	}
	if f.From != nil && m.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && m.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// MovementView — запись журнала с подписями для отчётов и выгрузки.
type MovementView struct {
	Movement
	OrderNumber   string `json:"order_number"`
	PartNumber    string `json:"part_number"`
	FromBarcode   string `json:"from_barcode"`
	ToBarcode     string `json:"to_barcode"`
	FromStageName string `json:"from_stage_name"`
	ToStageName   string `json:"to_stage_name"`
}

type MovementStats struct {
	Total     int `json:"total"`
	Incoming  int `json:"incoming"`
	Transfers int `json:"transfers"`
	Units     int `json:"units"`
	Rejected  int `json:"rejected_quantity"`
	Rework    int `json:"rework_quantity"`
}

// Add учитывает запись в агрегатах.
func (s *MovementStats) Add(m Movement) {
	s.Total++
	switch m.Type {
	case TransferIncoming:
		s.Incoming++
	case TransferStage:
		s.Transfers++
	}
	s.Units += m.Quantity
	s.Rejected += m.Rejected
	s.Rework += m.Rework
}
