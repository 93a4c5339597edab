package tracking_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Spok95/micron-tracking/internal/domain/catalog"
	"github.com/Spok95/micron-tracking/internal/domain/inventory"
	"github.com/Spok95/micron-tracking/internal/domain/orders"
	"github.com/Spok95/micron-tracking/internal/infra/memstore"
	"github.com/Spok95/micron-tracking/internal/tracking"
)

type fixture struct {
	store  *memstore.Store
	eng    *tracking.Engine
	part   catalog.Part
	orders int
}

func newFixture(t *testing.T, stages ...string) *fixture {
	t.Helper()
	if len(stages) == 0 {
		stages = []string{"Turning", "Milling", "Inspection"}
	}
	s := memstore.New()
	return &fixture{
		store: s,
		eng:   newEngine(s, nil),
		part:  s.AddPart("P-100", stages...),
	}
}

func newEngine(s tracking.Store, l tracking.Locker) *tracking.Engine {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return tracking.New(s, l, log, tracking.Options{
		DefaultQty: 200,
		MaxRetries: 3,
		RetryBase:  time.Millisecond,
	})
}

func (f *fixture) order(t *testing.T, qty int) int64 {
	t.Helper()
	f.orders++
	po, err := f.store.AddOrder(fmt.Sprintf("PO-%d", f.orders), orders.NewItem{PartID: f.part.ID, Quantity: qty})
	if err != nil {
		t.Fatal(err)
	}
	return po.Items[0].ID
}

func (f *fixture) stage(i int) int64 { return f.part.Stages[i].ID }

func ptr(n int) *int { return &n }

func TestAllocatePartialFill(t *testing.T) {
	f := newFixture(t)
	bin := f.store.AddBin("BIN-A", "Z1", 200)
	item := f.order(t, 500)

	res, err := f.eng.Allocate(context.Background(), tracking.AllocateRequest{
		BinBarcode: "BIN-A", ItemID: item, Quantity: ptr(500), Operator: "ivan",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Allocated != 200 || res.RemainingInOrder != 300 {
		t.Fatalf("result = %+v", res)
	}
	if res.Stage != "Turning" || res.TotalOrdered != 500 || res.BinAvailable != 0 {
		t.Errorf("result = %+v", res)
	}

	it := f.store.Item(item)
	if it.Allocated != 200 || it.Status != orders.StatusNotStarted {
		t.Errorf("item = %+v", it)
	}
	if got := f.store.Quantity(bin.ID, item, f.stage(0)); got != 200 {
		t.Errorf("inventory = %d", got)
	}

	mv := f.store.Movements()
	if len(mv) != 1 {
		t.Fatalf("movements = %d", len(mv))
	}
	m := mv[0]
	if m.Type != inventory.TransferIncoming || m.FromBinID != nil || m.FromStageID != nil ||
		m.ToBinID != bin.ID || m.ToStageID != f.stage(0) || m.Quantity != 200 || m.ScannedBy != "ivan" {
		t.Errorf("movement = %+v", m)
	}

	ops := f.store.Operations(item)
	if len(ops) != 1 || ops[0].Status != inventory.OpInProgress || ops[0].Input != 200 || ops[0].BinID != bin.ID {
		t.Errorf("ops = %+v", ops)
	}
}

func TestAllocateDefaultQuantity(t *testing.T) {
	f := newFixture(t)
	f.store.AddBin("BIN-A", "Z1", 1000)
	item := f.order(t, 500)

	res, err := f.eng.Allocate(context.Background(), tracking.AllocateRequest{BinBarcode: "BIN-A", ItemID: item})
	if err != nil {
		t.Fatal(err)
	}
	if res.Allocated != 200 {
		t.Errorf("allocated = %d, want default 200", res.Allocated)
	}
}

func TestAllocateAccumulates(t *testing.T) {
	f := newFixture(t)
	bin := f.store.AddBin("BIN-A", "Z1", 1000)
	item := f.order(t, 100)
	ctx := context.Background()

	for _, q := range []int{40, 60} {
		if _, err := f.eng.Allocate(ctx, tracking.AllocateRequest{BinBarcode: "BIN-A", ItemID: item, Quantity: ptr(q)}); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.store.Quantity(bin.ID, item, f.stage(0)); got != 100 {
		t.Errorf("inventory = %d, want 100", got)
	}
	ops := f.store.Operations(item)
	if len(ops) != 1 || ops[0].Input != 100 {
		t.Errorf("ops = %+v", ops)
	}
	if len(f.store.Movements()) != 2 {
		t.Errorf("movements = %d, want 2", len(f.store.Movements()))
	}
	it := f.store.Item(item)
	if it.Status != orders.StatusInProgress || it.Remaining() != 0 {
		t.Errorf("item = %+v", it)
	}
}

func TestAllocateErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown bin", func(t *testing.T) {
		f := newFixture(t)
		item := f.order(t, 10)
		_, err := f.eng.Allocate(ctx, tracking.AllocateRequest{BinBarcode: "NOPE", ItemID: item})
		if !errors.Is(err, tracking.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("inactive bin", func(t *testing.T) {
		f := newFixture(t)
		b := f.store.AddBin("BIN-A", "Z1", 100)
		f.store.SetBinActive(b.ID, false)
		item := f.order(t, 10)
		_, err := f.eng.Allocate(ctx, tracking.AllocateRequest{BinBarcode: "BIN-A", ItemID: item})
		if !errors.Is(err, tracking.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("unknown batch", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddBin("BIN-A", "Z1", 100)
		_, err := f.eng.Allocate(ctx, tracking.AllocateRequest{BinBarcode: "BIN-A", ItemID: 9999})
		if !errors.Is(err, tracking.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("exhausted order", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddBin("BIN-A", "Z1", 1000)
		item := f.order(t, 50)
		if _, err := f.eng.Allocate(ctx, tracking.AllocateRequest{BinBarcode: "BIN-A", ItemID: item}); err != nil {
			t.Fatal(err)
		}
		_, err := f.eng.Allocate(ctx, tracking.AllocateRequest{BinBarcode: "BIN-A", ItemID: item})
		if !errors.Is(err, tracking.ErrExhaustedOrder) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("full bin", func(t *testing.T) {
		f := newFixture(t)
		bin := f.store.AddBin("BIN-A", "Z1", 100)
		first := f.order(t, 100)
		second := f.order(t, 100)
		if _, err := f.eng.Allocate(ctx, tracking.AllocateRequest{BinBarcode: "BIN-A", ItemID: first}); err != nil {
			t.Fatal(err)
		}
		_, err := f.eng.Allocate(ctx, tracking.AllocateRequest{BinBarcode: "BIN-A", ItemID: second})
		if !errors.Is(err, tracking.ErrBinFull) {
			t.Fatalf("err = %v", err)
		}
		if f.store.Item(second).Allocated != 0 || f.store.Used(bin.ID) != 100 {
			t.Error("failed allocation changed state")
		}
	})

	for _, q := range []int{0, -5} {
		f := newFixture(t)
		f.store.AddBin("BIN-A", "Z1", 100)
		item := f.order(t, 100)
		_, err := f.eng.Allocate(ctx, tracking.AllocateRequest{BinBarcode: "BIN-A", ItemID: item, Quantity: ptr(q)})
		if !errors.Is(err, tracking.ErrNoCapacity) {
			t.Errorf("qty %d: err = %v", q, err)
		}
		if len(f.store.Movements()) != 0 {
			t.Errorf("qty %d: movement written", q)
		}
	}
}

func TestAllocateMonotonic(t *testing.T) {
	f := newFixture(t)
	for _, code := range []string{"B1", "B2", "B3", "B4"} {
		f.store.AddBin(code, "Z1", 70)
	}
	item := f.order(t, 250)
	ctx := context.Background()

	prev := 0
	for _, code := range []string{"B1", "B2", "B3", "B4"} {
		_, err := f.eng.Allocate(ctx, tracking.AllocateRequest{BinBarcode: code, ItemID: item, Quantity: ptr(100)})
		if err != nil {
			t.Fatalf("%s: %v", code, err)
		}
		it := f.store.Item(item)
		if it.Allocated < prev || it.Allocated > it.Ordered {
			t.Fatalf("allocated went %d -> %d (ordered %d)", prev, it.Allocated, it.Ordered)
		}
		prev = it.Allocated
	}
	if prev != 250 {
		t.Errorf("allocated = %d, want 250", prev)
	}
}

func TestConcurrentAllocateNeverOverflows(t *testing.T) {
	f := newFixture(t)
	bin := f.store.AddBin("BIN-A", "Z1", 200)

	const workers = 8
	items := make([]int64, workers)
	for i := range items {
		items[i] = f.order(t, 150)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for _, id := range items {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			res, err := f.eng.Allocate(context.Background(), tracking.AllocateRequest{
				BinBarcode: "BIN-A", ItemID: id, Quantity: ptr(150),
			})
			if err != nil {
				if !errors.Is(err, tracking.ErrBinFull) {
					t.Errorf("unexpected err: %v", err)
				}
				return
			}
			mu.Lock()
			total += res.Allocated
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	used := f.store.Used(bin.ID)
	if used > bin.Capacity {
		t.Fatalf("bin overflow: used %d > capacity %d", used, bin.Capacity)
	}
	if total != used || used != 200 {
		t.Errorf("allocated total = %d, used = %d", total, used)
	}
}

func TestGetBinUsage(t *testing.T) {
	f := newFixture(t)
	bin := f.store.AddBin("BIN-A", "Z1", 200)
	item := f.order(t, 500)
	if _, err := f.eng.Allocate(context.Background(), tracking.AllocateRequest{BinBarcode: "BIN-A", ItemID: item, Quantity: ptr(50)}); err != nil {
		t.Fatal(err)
	}

	u, err := f.eng.GetBinUsage(context.Background(), bin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.Used != 50 || u.Available != 150 || u.Percent != 25 {
		t.Errorf("usage = %+v", u)
	}

	if _, err := f.eng.GetBinUsage(context.Background(), 424242); !errors.Is(err, tracking.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}
