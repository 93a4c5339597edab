package orders

import "time"

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
)

type PurchaseOrder struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	CustomerName string     `json:"customer_name"`
	OrderDate    time.Time  `json:"order_date"`
	DeliveryDate *time.Time `json:"delivery_date"`
	Notes        string     `json:"notes"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	Items        []Item     `json:"items"`
}

// Item — позиция заказа («партия»), единица учёта на маршруте.
type Item struct {
	ID             int64     `json:"id"`
	OrderID        int64     `json:"po_id"`
	PartID         int64     `json:"part_id"`
	Ordered        int       `json:"ordered_quantity"`
	Allocated      int       `json:"allocated_quantity"`
	Produced       int       `json:"produced_quantity"`
	Rejected       int       `json:"rejected_quantity"`
	Rework         int       `json:"rework_quantity"`
	CurrentStageID *int64    `json:"current_stage_id"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// для отображения
	OrderNumber string `json:"order_number"`
	PartNumber  string `json:"part_number"`
	PartName    string `json:"part_name"`
}

// Remaining — сколько ещё можно выдать в ячейки.
func (i Item) Remaining() int { return i.Ordered - i.Allocated }

// StatusFor: in_progress, как только заказ выдан полностью.
func StatusFor(allocated, ordered int) Status {
	if allocated >= ordered {
		return StatusInProgress
	}
	return StatusNotStarted
}

type NewItem struct {
	PartID   int64 `json:"part_id"`
	Quantity int   `json:"quantity"`
}

type NewOrder struct {
	Number       string     `json:"number"`
	CustomerName string     `json:"customer_name"`
	OrderDate    time.Time  `json:"order_date"`
	DeliveryDate *time.Time `json:"delivery_date"`
	Notes        string     `json:"notes"`
	Items        []NewItem  `json:"items"`
}

// Totals — агрегаты по заказу для списков.
type Totals struct {
	Items     int `json:"items"`
	Ordered   int `json:"ordered_quantity"`
	Allocated int `json:"allocated_quantity"`
	Produced  int `json:"produced_quantity"`
	Rejected  int `json:"rejected_quantity"`
	Rework    int `json:"rework_quantity"`
}

func (t Totals) Remaining() int { return t.Ordered - t.Allocated }

type Summary struct {
	PurchaseOrder
	Totals Totals `json:"totals"`
}

// BinRow — где физически лежит партия (для детализации заказа).
type BinRow struct {
	BinBarcode   string `json:"bin_barcode"`
	BinName      string `json:"bin_name"`
	Zone         string `json:"zone"`
	Location     string `json:"location"`
	StageName    string `json:"stage_name"`
	Quantity     int    `json:"quantity"`
	GoodQuantity int    `json:"good_quantity"`
}

type ItemDetail struct {
	Item
	Bins []BinRow `json:"bins"`
}

type Detail struct {
	PurchaseOrder
	Totals Totals       `json:"totals"`
	Items  []ItemDetail `json:"items"`
}
