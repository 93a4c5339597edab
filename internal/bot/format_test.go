package bot

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Spok95/micron-tracking/internal/domain/bins"
	"github.com/Spok95/micron-tracking/internal/domain/orders"
	"github.com/Spok95/micron-tracking/internal/tracking"
)

func TestParseQty(t *testing.T) {
	q, err := parseQty("")
	if err != nil || q != nil {
		t.Fatalf("empty: %v %v", q, err)
	}
	q, err = parseQty(" 150 ")
	if err != nil || q == nil || *q != 150 {
		t.Fatalf("150: %v %v", q, err)
	}
	for _, in := range []string{"0", "-5", "abc", "1.5"} {
		if _, err := parseQty(in); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}

func TestParseSplit(t *testing.T) {
	tests := []struct {
		in       string
		rej, rew int
		wantErr  bool
	}{
		{"0", 0, 0, false},
		{"5 3", 5, 3, false},
		{"5,3", 5, 3, false},
		{"7", 7, 0, false},
		{"", 0, 0, true},
		{"1 2 3", 0, 0, true},
		{"-1 0", 0, 0, true},
		{"x 1", 0, 0, true},
	}
	for _, tt := range tests {
		rej, rew, err := parseSplit(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err = %v", tt.in, err)
		}
		if !tt.wantErr && (rej != tt.rej || rew != tt.rew) {
			t.Fatalf("%q: got %d/%d, want %d/%d", tt.in, rej, rew, tt.rej, tt.rew)
		}
	}
}

func TestDescribeErrorHidesInternals(t *testing.T) {
	msg := describeError(errors.New("pq: connection refused"))
	if strings.Contains(msg, "connection") {
		t.Fatalf("internal error leaked: %q", msg)
	}
	if got := describeError(fmt.Errorf("x: %w", tracking.ErrBinFull)); !strings.Contains(got, "заполнена") {
		t.Fatalf("bin full: %q", got)
	}
}

func TestFormatTransferFinalized(t *testing.T) {
	out := formatTransfer(&tracking.TransferResult{
		Transferred: 90, Rejected: 10, FromBin: "A-01", ToBin: "SHIP-1",
		FromStage: "Inspection", ToStage: "Inspection", Finalized: true,
	})
	if !strings.Contains(out, "Финальный") || !strings.Contains(out, "Годных: 90, брак: 10") {
		t.Fatalf("unexpected: %s", out)
	}
}

func TestFormatScan(t *testing.T) {
	b := bins.Bin{Barcode: "A-01", Zone: "A", Capacity: 200, Status: bins.StatusActive}
	out := formatScan(&bins.Scan{Bin: b, Usage: bins.NewUsage(b, 50), Contents: []bins.Content{
		{OrderNumber: "PO-1", PartNumber: "P-1", StageName: "Turning", Quantity: 50},
	}})
	for _, want := range []string{"A-01", "зона A", "Занято 50 из 200 (25%)", "PO-1 / P-1 — Turning: 50"} {
		if !strings.Contains(out, want) {
			t.Fatalf("%q not in %q", want, out)
		}
	}

	empty := formatScan(&bins.Scan{Bin: b, Usage: bins.NewUsage(b, 0)})
	if !strings.HasSuffix(empty, "Пусто.") {
		t.Fatalf("empty bin: %q", empty)
	}
}

func TestFormatRemaining(t *testing.T) {
	if got := formatRemaining(nil); !strings.Contains(got, "выданы") {
		t.Fatalf("empty: %q", got)
	}
	got := formatRemaining([]orders.Item{{OrderNumber: "PO-1", PartNumber: "P-1", Ordered: 300, Allocated: 120}})
	if !strings.Contains(got, "PO-1 / P-1: 180 из 300") {
		t.Fatalf("got %q", got)
	}
}

func TestItemsKeyboardLimit(t *testing.T) {
	items := make([]orders.Item, maxButtons+5)
	for i := range items {
		items[i] = orders.Item{ID: int64(i + 1), Ordered: 10}
	}
	kb := itemsKeyboard("alloc:item", items)
	// плюс строка навигации
	if len(kb.InlineKeyboard) != maxButtons+1 {
		t.Fatalf("rows = %d", len(kb.InlineKeyboard))
	}
	if d := kb.InlineKeyboard[0][0].CallbackData; d == nil || *d != "alloc:item:1" {
		t.Fatalf("callback = %v", d)
	}
}

func TestContentsKeyboardSkipsDuplicates(t *testing.T) {
	kb := contentsKeyboard("move:item", []bins.Content{
		{ItemID: 1, Quantity: 10},
		{ItemID: 1, Quantity: 5},
		{ItemID: 2, Quantity: 0},
	})
	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d", len(kb.InlineKeyboard))
	}
}
