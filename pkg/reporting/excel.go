package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/quangdm-dev/zentrade/internal/engine"
)

// ExcelReporter writes the session's fills and summary to an XLSX workbook.
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

type excelStyles struct {
	header  int
	buyRow  int
	sellRow int
}

// WriteSessionXLSX writes the snapshot to path with a Fills sheet and a
// Summary sheet.
func (r *ExcelReporter) WriteSessionXLSX(snap engine.Snapshot, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const fillsSheet = "Fills"
	const summarySheet = "Summary"

	fx.SetSheetName(fx.GetSheetName(0), fillsSheet)
	if _, err := fx.NewSheet(summarySheet); err != nil {
		return err
	}

	styles, err := r.createStyles(fx)
	if err != nil {
		return err
	}
	if err := r.writeFillsSheet(fx, fillsSheet, snap, styles); err != nil {
		return err
	}
	if err := r.writeSummarySheet(fx, summarySheet, snap, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F5496"},
			Pattern: 1,
		},
	})
	if err != nil {
		return styles, err
	}

	styles.buyRow, err = fx.NewStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"E2EFDA"},
			Pattern: 1,
		},
	})
	if err != nil {
		return styles, err
	}

	styles.sellRow, err = fx.NewStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"FCE4EC"},
			Pattern: 1,
		},
	})
	return styles, err
}

func (r *ExcelReporter) writeFillsSheet(fx *excelize.File, sheet string, snap engine.Snapshot, styles excelStyles) error {
	headers := []string{"Time", "Side", "Size", "Price", "Fee", "Slippage %", "Order Type", "Execution", "Profit %"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	if err := fx.SetRowStyle(sheet, 1, 1, styles.header); err != nil {
		return err
	}

	for i, tr := range snap.Trades {
		row := i + 2
		var profit interface{}
		if tr.HasProfit {
			profit = tr.Profit * 100
		}
		values := []interface{}{
			tr.Time.Format("2006-01-02 15:04:05"),
			tr.Type.String(),
			tr.Size,
			tr.Price,
			tr.Fee,
			tr.Slippage * 100,
			string(tr.OrderType),
			tr.ExecutionTime.String(),
			profit,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		rowStyle := styles.buyRow
		if tr.Type.String() == "sell" {
			rowStyle = styles.sellRow
		}
		if err := fx.SetRowStyle(sheet, row, row, rowStyle); err != nil {
			return err
		}
	}

	return fx.SetColWidth(sheet, "A", "I", 18)
}

func (r *ExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, snap engine.Snapshot, styles excelStyles) error {
	rows := [][]interface{}{
		{"Product", snap.ProductID},
		{"Mode", snap.Mode},
		{"Strategy", snap.Strategy},
		{"Last price", snap.Price},
		{"Start capital", snap.StartCapital},
		{"End capital", snap.Consolidated},
		{"Profit %", snap.Profit * 100},
		{"Buy & hold", snap.BuyHold},
		{"Vs. buy & hold %", snap.VsBuyHold * 100},
		{"Days", snap.DayCount},
		{"Profit per day %", snap.ProfitPerDay * 100},
		{"Buys", snap.BuyCount},
		{"Sells", snap.SellCount},
		{"Losing sells", snap.LossCount},
	}
	for i, r := range rows {
		keyCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valCell, _ := excelize.CoordinatesToCellName(2, i+1)
		if err := fx.SetCellValue(sheet, keyCell, r[0]); err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, valCell, r[1]); err != nil {
			return err
		}
	}
	if err := fx.SetCellStyle(sheet, "A1", "A14", styles.header); err != nil {
		return err
	}
	return fx.SetColWidth(sheet, "A", "B", 22)
}
