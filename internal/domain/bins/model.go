package bins

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type Bin struct {
	ID        int64     `json:"id"`
	Barcode   string    `json:"bin_barcode"`
	Name      string    `json:"name"`
	Zone      string    `json:"zone"`
	Location  string    `json:"location"`
	Capacity  int       `json:"capacity"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (b Bin) Active() bool { return b.Status == StatusActive }

// Usage — занятость ячейки. Всегда считается из строк bin_inventory, не хранится.
type Usage struct {
	BinID    int64 `json:"bin_id"`
	Capacity int   `json:"capacity"`
	Used     int   `json:"used"`
}

func NewUsage(b Bin, used int) Usage {
	return Usage{BinID: b.ID, Capacity: b.Capacity, Used: used}
}

func (u Usage) Available() int { return u.Capacity - u.Used }

// Percent — заполненность в процентах (0..100+).
func (u Usage) Percent() float64 {
	if u.Capacity <= 0 {
		return 0
	}
	return float64(u.Used) * 100 / float64(u.Capacity)
}

// Summary — ячейка с агрегатами по содержимому (для списков и сканера).
type Summary struct {
	Bin
	ActiveBatches int `json:"active_batches"`
	Used          int `json:"used"`
}

type ZoneSummary struct {
	Zone         string `json:"zone"`
	TotalBins    int    `json:"total_bins"`
	OccupiedBins int    `json:"occupied_bins"`
}

// Content — ненулевая строка содержимого ячейки с человекочитаемыми полями.
type Content struct {
	ItemID       int64     `json:"po_item_id"`
	OrderNumber  string    `json:"order_number"`
	CustomerName string    `json:"customer_name"`
	PartNumber   string    `json:"part_number"`
	PartName     string    `json:"part_name"`
	StageID      int64     `json:"stage_id"`
	StageName    string    `json:"stage_name"`
	StageOrder   int       `json:"stage_order"`
	Quantity     int       `json:"quantity"`
	GoodQuantity int       `json:"good_quantity"`
	Ordered      int       `json:"ordered_quantity"`
	Produced     int       `json:"produced_quantity"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Scan — всё, что видит оператор, отсканировав ячейку.
type Scan struct {
	Bin      Bin       `json:"bin"`
	Usage    Usage     `json:"usage"`
	Contents []Content `json:"contents"`
}
