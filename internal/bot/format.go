package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Spok95/micron-tracking/internal/domain/bins"
	"github.com/Spok95/micron-tracking/internal/domain/orders"
	"github.com/Spok95/micron-tracking/internal/tracking"
)

var errBadSplit = errors.New("ожидается два неотрицательных числа: брак и доработка")

// parseQty: пусто или «-» — количество по умолчанию (nil).
func parseQty(text string) (*int, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "-" {
		return nil, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("количество должно быть целым числом > 0")
	}
	return &n, nil
}

// parseSplit разбирает «брак доработка». Одно число — только брак, «0» — без потерь.
func parseSplit(text string) (rejected, rework int, err error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '/' || r == ';'
	})
	if len(fields) == 0 || len(fields) > 2 {
		return 0, 0, errBadSplit
	}
	vals := make([]int, 2)
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return 0, 0, errBadSplit
		}
		vals[i] = n
	}
	return vals[0], vals[1], nil
}

// describeError — текст для оператора. Технические ошибки не раскрываем.
func describeError(err error) string {
	switch {
	case errors.Is(err, tracking.ErrNotFound):
		return "Не найдено: проверьте штрихкод ячейки и позицию заказа."
	case errors.Is(err, tracking.ErrExhaustedOrder):
		return "По этой позиции заказа всё количество уже выдано."
	case errors.Is(err, tracking.ErrBinFull):
		return "Ячейка заполнена, места не хватает."
	case errors.Is(err, tracking.ErrNoCapacity):
		return "Нечего выдавать: проверьте количество."
	case errors.Is(err, tracking.ErrNoMaterial):
		return "В исходной ячейке нет материала этой позиции."
	case errors.Is(err, tracking.ErrInvalidSplit):
		return "Брак и доработка больше, чем лежит в ячейке."
	case errors.Is(err, tracking.ErrConcurrencyConflict):
		return "Ячейка сейчас занята другой операцией, попробуйте ещё раз."
	}
	return "Внутренняя ошибка, операция не выполнена."
}

func formatAllocate(r *tracking.AllocateResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Выдано %d шт. в ячейку %s\n", r.Allocated, r.BinBarcode)
	fmt.Fprintf(&sb, "Заказ %s, деталь %s\n", r.OrderNumber, r.PartNumber)
	fmt.Fprintf(&sb, "Этап: %s\n", r.Stage)
	fmt.Fprintf(&sb, "Осталось выдать: %d из %d\n", r.RemainingInOrder, r.TotalOrdered)
	fmt.Fprintf(&sb, "Свободно в ячейке: %d", r.BinAvailable)
	return sb.String()
}

func formatTransfer(r *tracking.TransferResult) string {
	var sb strings.Builder
	if r.Finalized {
		fmt.Fprintf(&sb, "🏁 Финальный перенос %s → %s\n", r.FromBin, r.ToBin)
	} else {
		fmt.Fprintf(&sb, "✅ Перемещено %s → %s\n", r.FromBin, r.ToBin)
	}
	fmt.Fprintf(&sb, "Заказ %s, деталь %s\n", r.OrderNumber, r.PartNumber)
	fmt.Fprintf(&sb, "Этап: %s → %s\n", r.FromStage, r.ToStage)
	fmt.Fprintf(&sb, "Годных: %d, брак: %d, доработка: %d\n", r.Transferred, r.Rejected, r.Rework)
	fmt.Fprintf(&sb, "Свободно в приёмнике: %d", r.ToAvailable)
	return sb.String()
}

func formatScan(s *bins.Scan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Ячейка %s", badge(s.Bin.Active()), s.Bin.Barcode)
	if s.Bin.Zone != "" {
		fmt.Fprintf(&sb, " (зона %s)", s.Bin.Zone)
	}
	fmt.Fprintf(&sb, "\nЗанято %d из %d (%.0f%%), свободно %d\n",
		s.Usage.Used, s.Usage.Capacity, s.Usage.Percent(), s.Usage.Available())
	if len(s.Contents) == 0 {
		sb.WriteString("Пусто.")
		return sb.String()
	}
	for _, c := range s.Contents {
		fmt.Fprintf(&sb, "\n• %s / %s — %s: %d шт.", c.OrderNumber, c.PartNumber, c.StageName, c.Quantity)
	}
	return sb.String()
}

func formatRemaining(items []orders.Item) string {
	if len(items) == 0 {
		return "Все позиции заказов выданы."
	}
	var sb strings.Builder
	sb.WriteString("Невыданные остатки:")
	for _, it := range items {
		fmt.Fprintf(&sb, "\n• %s / %s: %d из %d", it.OrderNumber, it.PartNumber, it.Remaining(), it.Ordered)
	}
	return sb.String()
}

func itemLabel(it orders.Item) string {
	return fmt.Sprintf("%s / %s (ост. %d)", it.OrderNumber, it.PartNumber, it.Remaining())
}

func badge(active bool) string {
	if active {
		return "🟢"
	}
	return "🚫"
}
