package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/micron-tracking/internal/domain/inventory"
)

const movementsSheet = "Movements"

var movementHeader = []interface{}{
	"timestamp",
	"po_number",
	"part_number",
	"type",
	"from_bin",
	"to_bin",
	"from_stage",
	"to_stage",
	"quantity",
	"rejected",
	"rework",
	"scanned_by",
	"notes",
}

// Movements строит xlsx с журналом перемещений и строкой итогов.
func Movements(list []inventory.MovementView, stats inventory.MovementStats, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), movementsSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(movementsSheet, "A1", &movementHeader); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	row := 2
	for _, m := range list {
		excelRow := []interface{}{
			m.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
			m.OrderNumber,
			m.PartNumber,
			string(m.Type),
			m.FromBarcode,
			m.ToBarcode,
			m.FromStageName,
			m.ToStageName,
			m.Quantity,
			m.Rejected,
			m.Rework,
			m.ScannedBy,
			m.Note,
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(movementsSheet, cell, &excelRow); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		row++
	}

	totals := []interface{}{
		fmt.Sprintf("total: %d", stats.Total), "", "", "", "", "", "", "",
		stats.Units, stats.Rejected, stats.Rework,
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(movementsSheet, cell, &totals); err != nil {
		return nil, fmt.Errorf("totals: %w", err)
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func MovementsFileName(now time.Time) string {
	return fmt.Sprintf("movements_%s.xlsx", now.Format("20060102_150405"))
}
