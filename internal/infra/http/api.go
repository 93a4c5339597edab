package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Spok95/micron-tracking/internal/domain/bins"
	"github.com/Spok95/micron-tracking/internal/domain/catalog"
	"github.com/Spok95/micron-tracking/internal/domain/inventory"
	"github.com/Spok95/micron-tracking/internal/domain/orders"
	"github.com/Spok95/micron-tracking/internal/export"
	"github.com/Spok95/micron-tracking/internal/tracking"
)

type Engine interface {
	Allocate(ctx context.Context, req tracking.AllocateRequest) (*tracking.AllocateResult, error)
	Transfer(ctx context.Context, req tracking.TransferRequest) (*tracking.TransferResult, error)
	GetBinUsage(ctx context.Context, binID int64) (*tracking.Usage, error)
}

// Queries — чтение и справочники. Методы Get-типа возвращают (nil, nil), если записи нет.
type Queries interface {
	ScanBin(ctx context.Context, barcode string) (*bins.Scan, error)
	Zones(ctx context.Context) ([]bins.ZoneSummary, error)
	BinsByZone(ctx context.Context, zone string) ([]bins.Summary, error)
	RemainingItems(ctx context.Context) ([]orders.Item, error)
	Movements(ctx context.Context, f inventory.MovementFilter) ([]inventory.MovementView, inventory.MovementStats, error)
	Operations(ctx context.Context, itemID int64) ([]inventory.Operation, error)
	PurchaseOrders(ctx context.Context) ([]orders.Summary, error)
	PurchaseOrder(ctx context.Context, id int64) (*orders.Detail, error)
	Parts(ctx context.Context) ([]catalog.Part, error)

	CreatePart(ctx context.Context, number, name, category string, stages []catalog.NewStage) (*catalog.Part, error)
	CreatePurchaseOrder(ctx context.Context, in orders.NewOrder) (*orders.PurchaseOrder, error)
	CreateBin(ctx context.Context, barcode, name, zone, location string, capacity int) (*bins.Bin, error)
	SetBinActive(ctx context.Context, id int64, active bool) (*bins.Bin, error)
}

type API struct {
	engine   Engine
	queries  Queries
	validate *validator.Validate
	log      *slog.Logger
	loc      *time.Location
}

func NewAPI(engine Engine, queries Queries, log *slog.Logger, loc *time.Location) *API {
	if loc == nil {
		loc = time.UTC
	}
	return &API{
		engine:   engine,
		queries:  queries,
		validate: validator.New(),
		log:      log,
		loc:      loc,
	}
}

func (a *API) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/allocate", a.allocate)
	r.Post("/transfer", a.transfer)

	r.Get("/bins", a.listBins)
	r.Post("/bins", a.createBin)
	r.Get("/bins/zones", a.zones)
	r.Get("/bins/scan/{barcode}", a.scanBin)
	r.Get("/bins/{id}/usage", a.binUsage)
	r.Put("/bins/{id}/active", a.setBinActive)

	r.Get("/po-items/remaining", a.remainingItems)
	r.Get("/po-items/{id}/operations", a.operations)

	r.Get("/movements", a.movements)
	r.Get("/movements/export", a.exportMovements)

	r.Get("/purchase-orders", a.listPurchaseOrders)
	r.Post("/purchase-orders", a.createPurchaseOrder)
	r.Get("/purchase-orders/{id}", a.purchaseOrder)

	r.Get("/parts", a.listParts)
	r.Post("/parts", a.createPart)
	return r
}

/* Движок */

type allocateRequest struct {
	BinBarcode string `json:"bin_barcode" validate:"required"`
	ItemID     int64  `json:"po_item_id" validate:"required,gt=0"`
	Quantity   *int   `json:"quantity"`
	Operator   string `json:"operator"`
}

func (a *API) allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.engine.Allocate(r.Context(), tracking.AllocateRequest{
		BinBarcode: req.BinBarcode,
		ItemID:     req.ItemID,
		Quantity:   req.Quantity,
		Operator:   req.Operator,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonOK(w, res)
}

type transferRequest struct {
	FromBarcode string `json:"from_bin_barcode" validate:"required"`
	ToBarcode   string `json:"to_bin_barcode" validate:"required"`
	ItemID      int64  `json:"po_item_id" validate:"required,gt=0"`
	Rejected    int    `json:"rejected_quantity" validate:"gte=0"`
	Rework      int    `json:"rework_quantity" validate:"gte=0"`
	Operator    string `json:"operator"`
	Note        string `json:"notes"`
}

func (a *API) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.engine.Transfer(r.Context(), tracking.TransferRequest{
		FromBarcode: req.FromBarcode,
		ToBarcode:   req.ToBarcode,
		ItemID:      req.ItemID,
		Rejected:    req.Rejected,
		Rework:      req.Rework,
		Operator:    req.Operator,
		Note:        req.Note,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonOK(w, res)
}

func (a *API) binUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	u, err := a.engine.GetBinUsage(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonOK(w, u)
}

/* Ячейки */

func (a *API) scanBin(w http.ResponseWriter, r *http.Request) {
	scan, err := a.queries.ScanBin(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		a.fail(w, err)
		return
	}
	if scan == nil {
		a.jsonError(w, "bin not found", http.StatusNotFound)
		return
	}
	a.jsonOK(w, map[string]any{
		"bin":       scan.Bin,
		"used":      scan.Usage.Used,
		"available": scan.Usage.Available(),
		"percent":   scan.Usage.Percent(),
		"contents":  scan.Contents,
	})
}

func (a *API) listBins(w http.ResponseWriter, r *http.Request) {
	zone := r.URL.Query().Get("zone")
	if zone == "" {
		a.zones(w, r)
		return
	}
	list, err := a.queries.BinsByZone(r.Context(), zone)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonOK(w, list)
}

func (a *API) zones(w http.ResponseWriter, r *http.Request) {
	list, err := a.queries.Zones(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonOK(w, list)
}

type createBinRequest struct {
	Barcode  string `json:"bin_barcode" validate:"required,max=64"`
	Name     string `json:"name"`
	Zone     string `json:"zone" validate:"required"`
	Location string `json:"location"`
	Capacity int    `json:"capacity" validate:"required,gt=0"`
}

func (a *API) createBin(w http.ResponseWriter, r *http.Request) {
	var req createBinRequest
	if !a.decode(w, r, &req) {
		return
	}
	b, err := a.queries.CreateBin(r.Context(), req.Barcode, req.Name, req.Zone, req.Location, req.Capacity)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonCreated(w, b)
}

func (a *API) setBinActive(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := a.queries.SetBinActive(r.Context(), id, req.Active)
	if err != nil {
		a.fail(w, err)
		return
	}
	if b == nil {
		a.jsonError(w, "bin not found", http.StatusNotFound)
		return
	}
	a.jsonOK(w, b)
}

/* Партии и журнал */

func (a *API) remainingItems(w http.ResponseWriter, r *http.Request) {
	list, err := a.queries.RemainingItems(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonOK(w, list)
}

func (a *API) operations(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	list, err := a.queries.Operations(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonOK(w, list)
}

func (a *API) movements(w http.ResponseWriter, r *http.Request) {
	f, err := parseMovementFilter(r)
	if err != nil {
		a.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, stats, err := a.queries.Movements(r.Context(), f)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonOK(w, map[string]any{"movements": list, "stats": stats})
}

func (a *API) exportMovements(w http.ResponseWriter, r *http.Request) {
	f, err := parseMovementFilter(r)
	if err != nil {
		a.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, stats, err := a.queries.Movements(r.Context(), f)
	if err != nil {
		a.fail(w, err)
		return
	}
	data, err := export.Movements(list, stats, a.loc)
	if err != nil {
		a.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.MovementsFileName(time.Now().In(a.loc))+`"`)
	_, _ = w.Write(data)
}

func parseMovementFilter(r *http.Request) (inventory.MovementFilter, error) {
	q := r.URL.Query()
	var f inventory.MovementFilter
	switch t := inventory.TransferType(q.Get("type")); t {
	case "", inventory.TransferIncoming, inventory.TransferStage:
		f.Type = t
	default:
		return f, errors.New("type must be incoming or stage_transfer")
	}
	var err error
	if f.ItemID, err = queryInt(q.Get("po_item_id")); err != nil {
		return f, errors.New("invalid po_item_id")
	}
	if f.BinID, err = queryInt(q.Get("bin_id")); err != nil {
		return f, errors.New("invalid bin_id")
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		return f, errors.New("invalid limit")
	}
	f.Limit = int(limit)
	if f.From, err = queryTime(q.Get("from"), false); err != nil {
		return f, errors.New("invalid from")
	}
	if f.To, err = queryTime(q.Get("to"), true); err != nil {
		return f, errors.New("invalid to")
	}
	return f, nil
}

func queryInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// queryTime принимает RFC3339 или дату; дата в to означает конец дня.
func queryTime(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

/* Заказы и детали */

func (a *API) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	list, err := a.queries.PurchaseOrders(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonOK(w, list)
}

func (a *API) purchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	d, err := a.queries.PurchaseOrder(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	if d == nil {
		a.jsonError(w, "purchase order not found", http.StatusNotFound)
		return
	}
	a.jsonOK(w, d)
}

type createOrderRequest struct {
	Number       string `json:"po_number" validate:"required"`
	CustomerName string `json:"customer_name"`
	OrderDate    string `json:"order_date" validate:"omitempty,datetime=2006-01-02"`
	DeliveryDate string `json:"delivery_date" validate:"omitempty,datetime=2006-01-02"`
	Notes        string `json:"notes"`
	Items        []struct {
		PartID   int64 `json:"part_id" validate:"required,gt=0"`
		Quantity int   `json:"quantity" validate:"required,gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

func (a *API) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !a.decode(w, r, &req) {
		return
	}
	in := orders.NewOrder{
		Number:       req.Number,
		CustomerName: req.CustomerName,
		OrderDate:    time.Now().In(a.loc),
		Notes:        req.Notes,
	}
	// формат уже проверен валидатором
	if req.OrderDate != "" {
		in.OrderDate, _ = time.ParseInLocation(time.DateOnly, req.OrderDate, a.loc)
	}
	if req.DeliveryDate != "" {
		d, _ := time.ParseInLocation(time.DateOnly, req.DeliveryDate, a.loc)
		in.DeliveryDate = &d
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, orders.NewItem{PartID: it.PartID, Quantity: it.Quantity})
	}

	po, err := a.queries.CreatePurchaseOrder(r.Context(), in)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonCreated(w, po)
}

func (a *API) listParts(w http.ResponseWriter, r *http.Request) {
	list, err := a.queries.Parts(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonOK(w, list)
}

type createPartRequest struct {
	Number   string `json:"part_number" validate:"required"`
	Name     string `json:"part_name"`
	Category string `json:"category"`
	Stages   []struct {
		Name string `json:"name" validate:"required"`
		Type string `json:"type" validate:"omitempty,oneof=machining inspection finishing assembly packing"`
	} `json:"stages" validate:"required,min=1,dive"`
}

func (a *API) createPart(w http.ResponseWriter, r *http.Request) {
	var req createPartRequest
	if !a.decode(w, r, &req) {
		return
	}
	stages := make([]catalog.NewStage, 0, len(req.Stages))
	for _, s := range req.Stages {
		stages = append(stages, catalog.NewStage{Name: s.Name, Type: catalog.StageType(s.Type)})
	}
	p, err := a.queries.CreatePart(r.Context(), req.Number, req.Name, req.Category, stages)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.jsonCreated(w, p)
}

/* Помощники */

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fe.Field()+": "+fe.Tag())
			}
			a.jsonError(w, "validation failed: "+strings.Join(msgs, ", "), http.StatusUnprocessableEntity)
			return false
		}
		a.jsonError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		a.jsonError(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// statusFor сопоставляет ошибки движка и справочников с HTTP-кодами.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tracking.ErrNotFound), errors.Is(err, tracking.ErrNoMaterial):
		return http.StatusNotFound
	case errors.Is(err, tracking.ErrExhaustedOrder), errors.Is(err, tracking.ErrBinFull), errors.Is(err, tracking.ErrNoCapacity):
		return http.StatusConflict
	case errors.Is(err, tracking.ErrInvalidSplit),
		errors.Is(err, catalog.ErrNoStages),
		errors.Is(err, orders.ErrNoItems),
		errors.Is(err, orders.ErrPartWithoutFlow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tracking.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return http.StatusConflict
		case "23503": // foreign_key_violation
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

func (a *API) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		a.log.Error("api request failed", "err", err)
		a.jsonError(w, "internal error", code)
		return
	}
	a.jsonError(w, err.Error(), code)
}

func (a *API) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (a *API) jsonCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(data)
}

func (a *API) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
