package catalog

import "testing"

func threeStages() Sequence {
	// намеренно не по порядку
	return NewSequence([]Stage{
		{ID: 12, Name: "Inspection", Order: 2},
		{ID: 13, Name: "Finished Goods", Order: 3},
		{ID: 11, Name: "Turning", Order: 1},
	})
}

func TestNewSequenceSortsByOrder(t *testing.T) {
	seq := threeStages()
	for i, want := range []int64{11, 12, 13} {
		if seq[i].ID != want {
			t.Errorf("seq[%d].ID = %d, want %d", i, seq[i].ID, want)
		}
	}
	first, ok := seq.First()
	if !ok || first.ID != 11 {
		t.Errorf("First = %+v, %v", first, ok)
	}
	last, ok := seq.Last()
	if !ok || last.ID != 13 {
		t.Errorf("Last = %+v, %v", last, ok)
	}
}

func TestSequenceNext(t *testing.T) {
	seq := threeStages()

	tests := []struct {
		name     string
		current  int64
		terminal bool
		target   int64
	}{
		{"first advances", 11, false, 12},
		{"middle advances", 12, false, 13},
		{"last stays", 13, true, 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur, ok := seq.Find(tt.current)
			if !ok {
				t.Fatalf("stage %d not found", tt.current)
			}
			step := seq.Next(cur)
			switch s := step.(type) {
			case Advance:
				if tt.terminal {
					t.Fatalf("got Advance to %d, want Terminal", s.To.ID)
				}
				if s.From.ID != tt.current {
					t.Errorf("From = %d, want %d", s.From.ID, tt.current)
				}
			case Terminal:
				if !tt.terminal {
					t.Fatalf("got Terminal, want Advance")
				}
			}
			if step.Target().ID != tt.target {
				t.Errorf("Target = %d, want %d", step.Target().ID, tt.target)
			}
			if step.Target().Order < cur.Order {
				t.Errorf("stage order went backwards: %d -> %d", cur.Order, step.Target().Order)
			}
		})
	}
}

func TestSequenceGapsInOrder(t *testing.T) {
	seq := NewSequence([]Stage{{ID: 1, Order: 1}, {ID: 5, Order: 5}, {ID: 9, Order: 9}})
	cur, _ := seq.Find(1)
	if got := seq.Next(cur).Target().ID; got != 5 {
		t.Errorf("Next skips to %d, want 5", got)
	}
}

func TestEmptySequence(t *testing.T) {
	var seq Sequence
	if _, ok := seq.First(); ok {
		t.Error("First on empty sequence should be false")
	}
	if seq.IsTerminal(Stage{ID: 1}) {
		t.Error("IsTerminal on empty sequence should be false")
	}
}
