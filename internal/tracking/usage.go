package tracking

import "github.com/Spok95/micron-tracking/internal/domain/bins"

// Usage — ответ GetBinUsage.
type Usage struct {
	Bin       bins.Bin `json:"bin"`
	Used      int      `json:"used"`
	Available int      `json:"available"`
	Percent   float64  `json:"percent"`
}

// available — свободное место в ячейке на момент чтения внутри транзакции.
// freed учитывает количество, которое та же операция забирает из этой ячейки.
func available(b *bins.Bin, used, freed int) int {
	return b.Capacity - (used - freed)
}
