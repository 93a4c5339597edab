package tracking_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/Spok95/micron-tracking/internal/domain/bins"
	"github.com/Spok95/micron-tracking/internal/tracking"
)

// flakyStore отдаёт ErrConcurrencyConflict первые failures раз.
type flakyStore struct {
	tracking.Store
	failures int32
	calls    atomic.Int32
}

func (s *flakyStore) WithinTx(ctx context.Context, fn func(context.Context, tracking.Tx) error) error {
	if s.calls.Add(1) <= s.failures {
		return tracking.ErrConcurrencyConflict
	}
	return s.Store.WithinTx(ctx, fn)
}

// staleStore отдаёт ячейки по штрихкоду такими, какими они были до
// отключения: чтение без блокировки видит status = active.
type staleStore struct{ tracking.Store }

func (s staleStore) WithinTx(ctx context.Context, fn func(context.Context, tracking.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx tracking.Tx) error {
		return fn(ctx, staleTx{tx})
	})
}

type staleTx struct{ tracking.Tx }

func (t staleTx) BinByBarcode(ctx context.Context, barcode string) (*bins.Bin, error) {
	b, err := t.Tx.BinByBarcode(ctx, barcode)
	if b != nil {
		b.Status = bins.StatusActive
	}
	return b, err
}

type busyLocker struct {
	busy     int32
	calls    atomic.Int32
	released atomic.Int32
}

func (l *busyLocker) Acquire(context.Context, ...string) (func(), error) {
	if l.calls.Add(1) <= l.busy {
		return nil, tracking.ErrConcurrencyConflict
	}
	return func() { l.released.Add(1) }, nil
}

func TestRetryOnConflict(t *testing.T) {
	f := newFixture(t)
	f.store.AddBin("BIN-A", "Z1", 200)
	item := f.order(t, 100)

	flaky := &flakyStore{Store: f.store, failures: 2}
	eng := newEngine(flaky, nil)
	res, err := eng.Allocate(context.Background(), tracking.AllocateRequest{BinBarcode: "BIN-A", ItemID: item})
	if err != nil {
		t.Fatal(err)
	}
	if res.Allocated != 100 || flaky.calls.Load() != 3 {
		t.Errorf("allocated = %d after %d calls", res.Allocated, flaky.calls.Load())
	}
}

func TestRetryGivesUp(t *testing.T) {
	f := newFixture(t)
	f.store.AddBin("BIN-A", "Z1", 200)
	item := f.order(t, 100)

	flaky := &flakyStore{Store: f.store, failures: 100}
	eng := newEngine(flaky, nil)
	_, err := eng.Allocate(context.Background(), tracking.AllocateRequest{BinBarcode: "BIN-A", ItemID: item})
	if !errors.Is(err, tracking.ErrConcurrencyConflict) {
		t.Fatalf("err = %v", err)
	}
	// первая попытка + MaxRetries
	if got := flaky.calls.Load(); got != 4 {
		t.Errorf("calls = %d, want 4", got)
	}
	if f.store.Item(item).Allocated != 0 {
		t.Error("state changed")
	}
}

func TestBusinessErrorsAreNotRetried(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyStore{Store: f.store}
	eng := newEngine(flaky, nil)
	_, err := eng.Allocate(context.Background(), tracking.AllocateRequest{BinBarcode: "NOPE", ItemID: 1})
	if !errors.Is(err, tracking.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if flaky.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", flaky.calls.Load())
	}
}

func TestLockerConflictRetried(t *testing.T) {
	f := newFixture(t)
	f.store.AddBin("BIN-1", "Z1", 200)
	f.store.AddBin("BIN-2", "Z1", 200)
	item := f.order(t, 100)
	f.seed(t, "BIN-1", item, 100)

	l := &busyLocker{busy: 1}
	eng := newEngine(f.store, l)
	if _, err := eng.Transfer(context.Background(), tracking.TransferRequest{FromBarcode: "BIN-1", ToBarcode: "BIN-2", ItemID: item}); err != nil {
		t.Fatal(err)
	}
	if l.calls.Load() != 2 || l.released.Load() != 1 {
		t.Errorf("acquire calls = %d, releases = %d", l.calls.Load(), l.released.Load())
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{tracking.ErrBinFull, "bin_full"},
		{errors.Join(errors.New("ctx"), tracking.ErrInvalidSplit), "invalid_split"},
		{tracking.ErrConcurrencyConflict, "conflict"},
		{errors.New("db down"), "error"},
	}
	for _, tt := range tests {
		if got := tracking.Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if tracking.IsBusiness(tracking.ErrConcurrencyConflict) || !tracking.IsBusiness(tracking.ErrNoMaterial) {
		t.Error("IsBusiness misclassified")
	}
}

func TestBinDeactivatedBeforeLock(t *testing.T) {
	f := newFixture(t)
	src := f.store.AddBin("BIN-A", "Z1", 200)
	dst := f.store.AddBin("BIN-B", "Z1", 200)
	item := f.order(t, 100)
	f.seed(t, "BIN-A", item, 50)
	f.store.SetBinActive(src.ID, false)
	f.store.SetBinActive(dst.ID, false)

	eng := newEngine(staleStore{f.store}, nil)
	ctx := context.Background()

	_, err := eng.Allocate(ctx, tracking.AllocateRequest{BinBarcode: "BIN-B", ItemID: item})
	if !errors.Is(err, tracking.ErrNotFound) {
		t.Fatalf("allocate: err = %v", err)
	}
	_, err = eng.Transfer(ctx, tracking.TransferRequest{FromBarcode: "BIN-A", ToBarcode: "BIN-B", ItemID: item})
	if !errors.Is(err, tracking.ErrNotFound) {
		t.Fatalf("transfer: err = %v", err)
	}
	if f.store.Used(dst.ID) != 0 || f.store.Quantity(src.ID, item, f.stage(0)) != 50 {
		t.Error("state changed")
	}
}
