package catalog

import (
	"sort"
	"time"
)

type StageType string

const (
	StageMachining  StageType = "machining"
	StageInspection StageType = "inspection"
	StageFinishing  StageType = "finishing"
	StageAssembly   StageType = "assembly"
	StagePacking    StageType = "packing"
)

type Stage struct {
	ID     int64     `json:"id"`
	PartID int64     `json:"part_id"`
	Name   string    `json:"name"`
	Order  int       `json:"stage_order"`
	Type   StageType `json:"type"`
}

type Part struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Stages    []Stage   `json:"stages"`
	CreatedAt time.Time `json:"created_at"`
}

type NewStage struct {
	Name string    `json:"name"`
	Type StageType `json:"type"`
}

// Sequence — этапы детали по возрастанию stage_order. Единственный допустимый маршрут.
type Sequence []Stage

func NewSequence(stages []Stage) Sequence {
	seq := make(Sequence, len(stages))
	copy(seq, stages)
	sort.Slice(seq, func(i, j int) bool { return seq[i].Order < seq[j].Order })
	return seq
}

func (s Sequence) First() (Stage, bool) {
	if len(s) == 0 {
		return Stage{}, false
	}
	return s[0], true
}

func (s Sequence) Last() (Stage, bool) {
	if len(s) == 0 {
		return Stage{}, false
	}
	return s[len(s)-1], true
}

func (s Sequence) Find(stageID int64) (Stage, bool) {
	for _, st := range s {
		if st.ID == stageID {
			return st, true
		}
	}
	return Stage{}, false
}

func (s Sequence) IsTerminal(st Stage) bool {
	last, ok := s.Last()
	return ok && last.ID == st.ID
}

// Step — исход продвижения партии: Advance (есть следующий этап) или Terminal.
type Step interface {
	// Target этап, на котором окажется материал.
	Target() Stage
	isStep()
}

type Advance struct {
	From Stage
	To   Stage
}

type Terminal struct {
	At Stage
}

func (a Advance) Target() Stage  { return a.To }
func (t Terminal) Target() Stage { return t.At }
func (Advance) isStep()          {}
func (Terminal) isStep()         {}

// Next — этап с минимальным stage_order больше текущего; если такого нет — Terminal.
func (s Sequence) Next(current Stage) Step {
	for _, st := range s {
		if st.Order > current.Order {
			return Advance{From: current, To: st}
		}
	}
	return Terminal{At: current}
}
