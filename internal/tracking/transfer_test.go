package tracking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Spok95/micron-tracking/internal/domain/inventory"
	"github.com/Spok95/micron-tracking/internal/tracking"
)

// seed выдаёт qty партии в ячейку code на первый этап.
func (f *fixture) seed(t *testing.T, code string, item int64, qty int) {
	t.Helper()
	_, err := f.eng.Allocate(context.Background(), tracking.AllocateRequest{BinBarcode: code, ItemID: item, Quantity: ptr(qty)})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTransferSplitsAndAdvances(t *testing.T) {
	f := newFixture(t)
	b1 := f.store.AddBin("BIN-1", "Z1", 200)
	b2 := f.store.AddBin("BIN-2", "Z1", 200)
	item := f.order(t, 100)
	f.seed(t, "BIN-1", item, 100)

	res, err := f.eng.Transfer(context.Background(), tracking.TransferRequest{
		FromBarcode: "BIN-1", ToBarcode: "BIN-2", ItemID: item,
		Rejected: 10, Rework: 5, Operator: "petr", Note: "shift 2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Transferred != 85 || res.Rejected != 10 || res.Rework != 5 {
		t.Fatalf("result = %+v", res)
	}
	if res.FromStage != "Turning" || res.ToStage != "Milling" || res.Finalized {
		t.Errorf("stages = %+v", res)
	}

	if got := f.store.Quantity(b1.ID, item, f.stage(0)); got != 0 {
		t.Errorf("source row = %d, want 0", got)
	}
	if got := f.store.Quantity(b2.ID, item, f.stage(1)); got != 85 {
		t.Errorf("destination row = %d, want 85", got)
	}

	it := f.store.Item(item)
	if it.CurrentStageID == nil || *it.CurrentStageID != f.stage(1) {
		t.Errorf("current stage = %v", it.CurrentStageID)
	}
	if it.Rejected != 10 || it.Rework != 5 || it.Produced != 0 {
		t.Errorf("item counters = %+v", it)
	}

	mv := f.store.Movements()
	last := mv[len(mv)-1]
	if last.Type != inventory.TransferStage || *last.FromBinID != b1.ID || last.ToBinID != b2.ID ||
		*last.FromStageID != f.stage(0) || last.ToStageID != f.stage(1) ||
		last.Quantity != 85 || last.Rejected != 10 || last.Rework != 5 || last.Note != "shift 2" {
		t.Errorf("movement = %+v", last)
	}

	ops := f.store.Operations(item)
	if len(ops) != 2 {
		t.Fatalf("ops = %+v", ops)
	}
	done, open := ops[0], ops[1]
	if done.Status != inventory.OpCompleted || done.Output != 85 || done.Good != 85 || done.Rejected != 10 || done.Rework != 5 {
		t.Errorf("completed op = %+v", done)
	}
	if open.Status != inventory.OpInProgress || open.StageID != f.stage(1) || open.BinID != b2.ID || open.Input != 85 {
		t.Errorf("opened op = %+v", open)
	}
}

func TestTransferConservation(t *testing.T) {
	tests := []struct {
		qty, rejected, rework int
	}{
		{100, 0, 0},
		{100, 100, 0},
		{100, 0, 100},
		{100, 33, 17},
		{7, 3, 4},
	}
	for _, tt := range tests {
		f := newFixture(t)
		f.store.AddBin("BIN-1", "Z1", 200)
		b2 := f.store.AddBin("BIN-2", "Z1", 200)
		item := f.order(t, tt.qty)
		f.seed(t, "BIN-1", item, tt.qty)

		res, err := f.eng.Transfer(context.Background(), tracking.TransferRequest{
			FromBarcode: "BIN-1", ToBarcode: "BIN-2", ItemID: item, Rejected: tt.rejected, Rework: tt.rework,
		})
		if err != nil {
			t.Fatalf("%+v: %v", tt, err)
		}
		if res.Transferred+res.Rejected+res.Rework != tt.qty {
			t.Errorf("%+v: %d + %d + %d != %d", tt, res.Transferred, res.Rejected, res.Rework, tt.qty)
		}
		if got := f.store.Used(b2.ID); got != res.Transferred {
			t.Errorf("%+v: destination used = %d", tt, got)
		}
		// всё ушло в брак/доработку: новая операция не открывается
		if res.Transferred == 0 && len(f.store.Operations(item)) != 1 {
			t.Errorf("%+v: ops = %+v", tt, f.store.Operations(item))
		}
	}
}

func TestTransferInvalidSplitLeavesState(t *testing.T) {
	f := newFixture(t)
	b1 := f.store.AddBin("BIN-1", "Z1", 200)
	f.store.AddBin("BIN-2", "Z1", 200)
	item := f.order(t, 100)
	f.seed(t, "BIN-1", item, 100)
	before := len(f.store.Movements())

	for _, req := range []tracking.TransferRequest{
		{FromBarcode: "BIN-1", ToBarcode: "BIN-2", ItemID: item, Rejected: 60, Rework: 60},
		{FromBarcode: "BIN-1", ToBarcode: "BIN-2", ItemID: item, Rejected: -1},
	} {
		_, err := f.eng.Transfer(context.Background(), req)
		if !errors.Is(err, tracking.ErrInvalidSplit) {
			t.Fatalf("err = %v", err)
		}
	}
	if got := f.store.Quantity(b1.ID, item, f.stage(0)); got != 100 {
		t.Errorf("source = %d, want 100", got)
	}
	if len(f.store.Movements()) != before {
		t.Error("movement written on failure")
	}
	if it := f.store.Item(item); it.Rejected != 0 || *it.CurrentStageID != f.stage(0) {
		t.Errorf("item changed: %+v", it)
	}
}

func TestTransferDestinationFull(t *testing.T) {
	f := newFixture(t)
	b1 := f.store.AddBin("BIN-1", "Z1", 200)
	b2 := f.store.AddBin("BIN-2", "Z1", 100)
	item := f.order(t, 100)
	other := f.order(t, 50)
	f.seed(t, "BIN-1", item, 100)
	f.seed(t, "BIN-2", other, 50)

	_, err := f.eng.Transfer(context.Background(), tracking.TransferRequest{
		FromBarcode: "BIN-1", ToBarcode: "BIN-2", ItemID: item, Rejected: 10, Rework: 5,
	})
	if !errors.Is(err, tracking.ErrBinFull) {
		t.Fatalf("err = %v", err)
	}
	if got := f.store.Quantity(b1.ID, item, f.stage(0)); got != 100 {
		t.Errorf("source = %d, want 100", got)
	}
	if got := f.store.Used(b2.ID); got != 50 {
		t.Errorf("destination used = %d, want 50", got)
	}
}

func TestTransferErrors(t *testing.T) {
	f := newFixture(t)
	f.store.AddBin("BIN-1", "Z1", 200)
	b2 := f.store.AddBin("BIN-2", "Z1", 200)
	f.store.AddBin("EMPTY", "Z1", 200)
	item := f.order(t, 100)
	f.seed(t, "BIN-1", item, 100)
	ctx := context.Background()

	tests := []struct {
		name string
		req  tracking.TransferRequest
		want error
	}{
		{"unknown source", tracking.TransferRequest{FromBarcode: "X", ToBarcode: "BIN-2", ItemID: item}, tracking.ErrNotFound},
		{"unknown destination", tracking.TransferRequest{FromBarcode: "BIN-1", ToBarcode: "X", ItemID: item}, tracking.ErrNotFound},
		{"unknown batch", tracking.TransferRequest{FromBarcode: "BIN-1", ToBarcode: "BIN-2", ItemID: 777}, tracking.ErrNotFound},
		{"no material", tracking.TransferRequest{FromBarcode: "EMPTY", ToBarcode: "BIN-2", ItemID: item}, tracking.ErrNoMaterial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.eng.Transfer(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	f.store.SetBinActive(b2.ID, false)
	_, err := f.eng.Transfer(ctx, tracking.TransferRequest{FromBarcode: "BIN-1", ToBarcode: "BIN-2", ItemID: item})
	if !errors.Is(err, tracking.ErrNotFound) {
		t.Errorf("inactive destination: err = %v", err)
	}
}

func TestTransferThroughTerminalStage(t *testing.T) {
	f := newFixture(t, "Turning", "Packing")
	f.store.AddBin("BIN-1", "Z1", 200)
	b2 := f.store.AddBin("BIN-2", "Z1", 200)
	b3 := f.store.AddBin("SHIP", "Z9", 200)
	item := f.order(t, 100)
	f.seed(t, "BIN-1", item, 100)
	ctx := context.Background()

	res, err := f.eng.Transfer(ctx, tracking.TransferRequest{FromBarcode: "BIN-1", ToBarcode: "BIN-2", ItemID: item, Rejected: 4})
	if err != nil {
		t.Fatal(err)
	}
	if res.Finalized || res.ToStage != "Packing" {
		t.Fatalf("result = %+v", res)
	}
	if it := f.store.Item(item); it.Produced != 0 {
		t.Errorf("produced before leaving the last stage = %d, want 0", it.Produced)
	}

	res, err = f.eng.Transfer(ctx, tracking.TransferRequest{FromBarcode: "BIN-2", ToBarcode: "SHIP", ItemID: item, Rework: 6})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Finalized || res.FromStage != "Packing" || res.ToStage != "Packing" || res.Transferred != 90 {
		t.Fatalf("finalize result = %+v", res)
	}
	it := f.store.Item(item)
	if it.Produced != 90 || it.Rejected != 4 || it.Rework != 6 {
		t.Errorf("counters after finalize = %+v", it)
	}
	if *it.CurrentStageID != f.stage(1) {
		t.Errorf("stage moved off terminal: %d", *it.CurrentStageID)
	}
	if f.store.Quantity(b2.ID, item, f.stage(1)) != 0 || f.store.Quantity(b3.ID, item, f.stage(1)) != 90 {
		t.Error("finalize did not move material")
	}
	for _, op := range f.store.Operations(item) {
		if op.BinID == b3.ID {
			t.Errorf("operation opened on finalize: %+v", op)
		}
	}
}

func TestTransferPrefersMostAdvancedStage(t *testing.T) {
	f := newFixture(t)
	b1 := f.store.AddBin("BIN-1", "Z1", 500)
	b2 := f.store.AddBin("BIN-2", "Z1", 500)
	item := f.order(t, 100)
	f.store.PutInventory(b1.ID, item, f.stage(0), 30)
	f.store.PutInventory(b1.ID, item, f.stage(1), 20)

	res, err := f.eng.Transfer(context.Background(), tracking.TransferRequest{FromBarcode: "BIN-1", ToBarcode: "BIN-2", ItemID: item})
	if err != nil {
		t.Fatal(err)
	}
	if res.FromStage != "Milling" || res.Transferred != 20 {
		t.Fatalf("result = %+v", res)
	}
	if f.store.Quantity(b1.ID, item, f.stage(0)) != 30 {
		t.Error("less advanced row touched")
	}
	if f.store.Quantity(b2.ID, item, f.stage(2)) != 20 {
		t.Error("material not at stage 3")
	}
	// операции на этапе 2 не было: перенос всё равно проходит
	if len(f.store.Operations(item)) != 1 {
		t.Errorf("ops = %+v", f.store.Operations(item))
	}
}

func TestTransferStagePointerNeverMovesBack(t *testing.T) {
	f := newFixture(t)
	f.store.AddBin("A", "Z1", 500)
	f.store.AddBin("B", "Z1", 500)
	f.store.AddBin("C", "Z1", 500)
	f.store.AddBin("D", "Z1", 500)
	item := f.order(t, 100)
	f.seed(t, "A", item, 60)
	f.seed(t, "C", item, 40)
	ctx := context.Background()

	steps := []tracking.TransferRequest{
		{FromBarcode: "A", ToBarcode: "B", ItemID: item}, // 1 -> 2
		{FromBarcode: "B", ToBarcode: "A", ItemID: item}, // 2 -> 3
		{FromBarcode: "C", ToBarcode: "D", ItemID: item}, // отставшая часть 1 -> 2
	}
	lastOrder := 0
	for i, req := range steps {
		if _, err := f.eng.Transfer(ctx, req); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		it := f.store.Item(item)
		order := 0
		for _, st := range f.part.Stages {
			if st.ID == *it.CurrentStageID {
				order = st.Order
			}
		}
		if order < lastOrder {
			t.Fatalf("step %d: stage order went %d -> %d", i, lastOrder, order)
		}
		lastOrder = order
	}
	if lastOrder != 3 {
		t.Errorf("final stage order = %d, want 3", lastOrder)
	}
}

func TestTransferWithinSameBin(t *testing.T) {
	f := newFixture(t)
	b := f.store.AddBin("BIN-1", "Z1", 100)
	item := f.order(t, 100)
	f.seed(t, "BIN-1", item, 100)

	res, err := f.eng.Transfer(context.Background(), tracking.TransferRequest{FromBarcode: "BIN-1", ToBarcode: "BIN-1", ItemID: item})
	if err != nil {
		t.Fatal(err)
	}
	if res.Transferred != 100 || res.ToAvailable != 0 {
		t.Errorf("result = %+v", res)
	}
	if f.store.Used(b.ID) != 100 || f.store.Quantity(b.ID, item, f.stage(1)) != 100 {
		t.Error("material not moved to the next stage in place")
	}
}

func TestTransferSingleStagePartCountsProduced(t *testing.T) {
	f := newFixture(t, "Assembly")
	f.store.AddBin("BIN-1", "Z1", 200)
	b2 := f.store.AddBin("SHIP", "Z9", 200)
	item := f.order(t, 100)
	f.seed(t, "BIN-1", item, 100)

	res, err := f.eng.Transfer(context.Background(), tracking.TransferRequest{FromBarcode: "BIN-1", ToBarcode: "SHIP", ItemID: item, Rejected: 10})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Finalized || res.Transferred != 90 {
		t.Fatalf("result = %+v", res)
	}
	it := f.store.Item(item)
	if it.Produced != 90 || it.Rejected != 10 {
		t.Errorf("counters = %+v", it)
	}
	if f.store.Quantity(b2.ID, item, f.stage(0)) != 90 {
		t.Error("material not in shipping bin")
	}
}

func TestFinalizeWithRejectsKeepsCountersWithinOrder(t *testing.T) {
	f := newFixture(t, "Turning", "Packing")
	f.store.AddBin("BIN-1", "Z1", 200)
	f.store.AddBin("BIN-2", "Z1", 200)
	f.store.AddBin("SHIP", "Z9", 200)
	item := f.order(t, 100)
	f.seed(t, "BIN-1", item, 100)
	ctx := context.Background()

	steps := []tracking.TransferRequest{
		{FromBarcode: "BIN-1", ToBarcode: "BIN-2", ItemID: item, Rejected: 4},
		{FromBarcode: "BIN-2", ToBarcode: "SHIP", ItemID: item, Rejected: 20, Rework: 6},
	}
	for i, req := range steps {
		if _, err := f.eng.Transfer(ctx, req); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		it := f.store.Item(item)
		if sum := it.Produced + it.Rejected + it.Rework; sum > it.Ordered {
			t.Fatalf("step %d: produced %d + rejected %d + rework %d = %d > ordered %d",
				i, it.Produced, it.Rejected, it.Rework, sum, it.Ordered)
		}
	}
	it := f.store.Item(item)
	if it.Produced != 70 || it.Rejected != 24 || it.Rework != 6 {
		t.Errorf("counters = %+v", it)
	}
}
