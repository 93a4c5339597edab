// Package memstore — хранилище движка в памяти. Каждая транзакция работает
// над копией состояния и публикует её целиком при успехе, поэтому транзакции
// сериализуемы. Используется в тестах и для локального запуска без БД.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Spok95/micron-tracking/internal/domain/bins"
	"github.com/Spok95/micron-tracking/internal/domain/catalog"
	"github.com/Spok95/micron-tracking/internal/domain/inventory"
	"github.com/Spok95/micron-tracking/internal/domain/orders"
	"github.com/Spok95/micron-tracking/internal/tracking"
)

type invKey struct{ bin, item, stage int64 }

type state struct {
	nextID    int64
	parts     map[int64]catalog.Part
	orders    map[int64]orders.PurchaseOrder
	items     map[int64]orders.Item
	bins      map[int64]bins.Bin
	inv       map[invKey]inventory.Row
	movements []inventory.Movement
	ops       []inventory.Operation
}

func newState() *state {
	return &state{
		parts:  map[int64]catalog.Part{},
		orders: map[int64]orders.PurchaseOrder{},
		items:  map[int64]orders.Item{},
		bins:   map[int64]bins.Bin{},
		inv:    map[invKey]inventory.Row{},
	}
}

func (s *state) clone() *state {
	c := &state{
		nextID:    s.nextID,
		parts:     make(map[int64]catalog.Part, len(s.parts)),
		orders:    make(map[int64]orders.PurchaseOrder, len(s.orders)),
		items:     make(map[int64]orders.Item, len(s.items)),
		bins:      make(map[int64]bins.Bin, len(s.bins)),
		inv:       make(map[invKey]inventory.Row, len(s.inv)),
		movements: append([]inventory.Movement(nil), s.movements...),
		ops:       append([]inventory.Operation(nil), s.ops...),
	}
	for k, v := range s.parts {
		c.parts[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.bins {
		c.bins[k] = v
	}
	for k, v := range s.inv {
		c.inv[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *state) used(binID int64) int {
	total := 0
	for k, r := range s.inv {
		if k.bin == binID {
			total += r.Quantity
		}
	}
	return total
}

func (s *state) stage(id int64) (catalog.Stage, bool) {
	for _, p := range s.parts {
		for _, st := range p.Stages {
			if st.ID == id {
				return st, true
			}
		}
	}
	return catalog.Stage{}, false
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ tracking.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx tracking.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) BinUsage(_ context.Context, binID int64) (*bins.Bin, *bins.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.st.bins[binID]
	if !ok {
		return nil, nil, nil
	}
	u := bins.NewUsage(b, s.st.used(binID))
	return &b, &u, nil
}

/* Наполнение */

func (s *Store) AddPart(number string, stageNames ...string) catalog.Part {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := catalog.Part{ID: s.st.id(), Number: number, Name: number, CreatedAt: s.now()}
	for i, name := range stageNames {
		p.Stages = append(p.Stages, catalog.Stage{
			ID: s.st.id(), PartID: p.ID, Name: name, Order: i + 1, Type: catalog.StageMachining,
		})
	}
	s.st.parts[p.ID] = p
	return p
}

func (s *Store) AddBin(barcode, zone string, capacity int) bins.Bin {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := bins.Bin{
		ID: s.st.id(), Barcode: barcode, Name: barcode, Zone: zone,
		Capacity: capacity, Status: bins.StatusActive, CreatedAt: s.now(),
	}
	s.st.bins[b.ID] = b
	return b
}

func (s *Store) SetBinActive(id int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.st.bins[id]
	b.Status = bins.StatusInactive
	if active {
		b.Status = bins.StatusActive
	}
	s.st.bins[id] = b
}

// AddOrder создаёт заказ; current_stage_id позиций — первый этап детали.
func (s *Store) AddOrder(number string, items ...orders.NewItem) (orders.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	po := orders.PurchaseOrder{ID: s.st.id(), Number: number, OrderDate: now, Status: "in_progress", CreatedAt: now}
	for _, ni := range items {
		p, ok := s.st.parts[ni.PartID]
		if !ok || len(p.Stages) == 0 {
			return orders.PurchaseOrder{}, fmt.Errorf("%w: part %d", orders.ErrPartWithoutFlow, ni.PartID)
		}
		first, _ := catalog.NewSequence(p.Stages).First()
		stageID := first.ID
		it := orders.Item{
			ID: s.st.id(), OrderID: po.ID, PartID: p.ID, Ordered: ni.Quantity,
			CurrentStageID: &stageID, Status: orders.StatusNotStarted,
			CreatedAt: now, UpdatedAt: now,
			OrderNumber: number, PartNumber: p.Number, PartName: p.Name,
		}
		s.st.items[it.ID] = it
		po.Items = append(po.Items, it)
	}
	s.st.orders[po.ID] = po
	return po, nil
}

// PutInventory кладёт строку напрямую, минуя движок.
func (s *Store) PutInventory(binID, itemID, stageID int64, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, _ := s.st.stage(stageID)
	s.st.inv[invKey{binID, itemID, stageID}] = inventory.Row{
		BinID: binID, ItemID: itemID, StageID: stageID, StageOrder: st.Order,
		Quantity: qty, Good: qty, UpdatedAt: s.now(),
	}
}

/* Чтение для проверок */

func (s *Store) Item(id int64) orders.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.items[id]
}

func (s *Store) Quantity(binID, itemID, stageID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.inv[invKey{binID, itemID, stageID}].Quantity
}

func (s *Store) Used(binID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.used(binID)
}

func (s *Store) Movements() []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.Movement(nil), s.st.movements...)
}

func (s *Store) Operations(itemID int64) []inventory.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []inventory.Operation
	for _, op := range s.st.ops {
		if op.ItemID == itemID {
			out = append(out, op)
		}
	}
	return out
}

// ListMovements — журнал, новые сверху, с тем же фильтром, что и в Postgres.
func (s *Store) ListMovements(f inventory.MovementFilter) ([]inventory.Movement, inventory.MovementStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		out   []inventory.Movement
		stats inventory.MovementStats
	)
	for i := len(s.st.movements) - 1; i >= 0; i-- {
		m := s.st.movements[i]
		if !f.Match(m) {
			continue
		}
		stats.Add(m)
		if len(out) < f.EffectiveLimit() {
			out = append(out, m)
		}
	}
	return out, stats
}

/* Транзакция */

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) BinByBarcode(_ context.Context, barcode string) (*bins.Bin, error) {
	for _, b := range t.st.bins {
		if b.Barcode == barcode {
			return &b, nil
		}
	}
	return nil, nil
}

func (t *tx) LockBins(_ context.Context, ids ...int64) (map[int64]bins.Bin, error) {
	locked := make(map[int64]bins.Bin, len(ids))
	for _, id := range ids {
		b, ok := t.st.bins[id]
		if !ok {
			return nil, fmt.Errorf("memstore: bin %d vanished", id)
		}
		locked[id] = b
	}
	return locked, nil
}

func (t *tx) BinUsed(_ context.Context, binID int64) (int, error) {
	return t.st.used(binID), nil
}

func (t *tx) LockItem(_ context.Context, itemID int64) (*orders.Item, error) {
	it, ok := t.st.items[itemID]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (t *tx) SaveItem(_ context.Context, it *orders.Item) error {
	if _, ok := t.st.items[it.ID]; !ok {
		return fmt.Errorf("memstore: item %d not found", it.ID)
	}
	cp := *it
	cp.UpdatedAt = t.now()
	t.st.items[it.ID] = cp
	return nil
}

func (t *tx) Sequence(_ context.Context, partID int64) (catalog.Sequence, error) {
	return catalog.NewSequence(t.st.parts[partID].Stages), nil
}

func (t *tx) SourceRow(_ context.Context, binID, itemID int64) (*inventory.Row, error) {
	var rows []inventory.Row
	for k, r := range t.st.inv {
		if k.bin == binID && k.item == itemID && r.Quantity > 0 {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StageOrder > rows[j].StageOrder })
	return &rows[0], nil
}

func (t *tx) AddInventory(_ context.Context, binID, itemID, stageID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("memstore: qty must be > 0")
	}
	k := invKey{binID, itemID, stageID}
	r, ok := t.st.inv[k]
	if !ok {
		st, _ := t.st.stage(stageID)
		r = inventory.Row{BinID: binID, ItemID: itemID, StageID: stageID, StageOrder: st.Order}
	}
	r.Quantity += qty
	r.Good += qty
	r.UpdatedAt = t.now()
	t.st.inv[k] = r
	return nil
}

func (t *tx) ClearInventory(_ context.Context, binID, itemID, stageID int64) error {
	k := invKey{binID, itemID, stageID}
	if r, ok := t.st.inv[k]; ok {
		r.Quantity, r.Good = 0, 0
		r.UpdatedAt = t.now()
		t.st.inv[k] = r
	}
	return nil
}

func (t *tx) AppendMovement(_ context.Context, m *inventory.Movement) error {
	m.ID = t.st.id()
	m.CreatedAt = t.now()
	t.st.movements = append(t.st.movements, *m)
	return nil
}

func (t *tx) OpenOperation(_ context.Context, itemID, stageID, binID int64, qty int, operator string) error {
	for i, op := range t.st.ops {
		if op.ItemID == itemID && op.StageID == stageID && op.BinID == binID && op.Status == inventory.OpInProgress {
			t.st.ops[i].Input += qty
			return nil
		}
	}
	t.st.ops = append(t.st.ops, inventory.Operation{
		ID: t.st.id(), ItemID: itemID, StageID: stageID, BinID: binID,
		Input: qty, Operator: operator, Status: inventory.OpInProgress, StartedAt: t.now(),
	})
	return nil
}

func (t *tx) CompleteOperation(_ context.Context, itemID, stageID, binID int64, out inventory.Outcome) (bool, error) {
	for i, op := range t.st.ops {
		if op.ItemID == itemID && op.StageID == stageID && op.BinID == binID && op.Status == inventory.OpInProgress {
			now := t.now()
			op.Output, op.Good, op.Rejected, op.Rework = out.Output, out.Good, out.Rejected, out.Rework
			op.Status = inventory.OpCompleted
			op.CompletedAt = &now
			t.st.ops[i] = op
			return true, nil
		}
	}
	return false, nil
}
