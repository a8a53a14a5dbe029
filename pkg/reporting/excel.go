package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"
)

// ExcelReporter writes a session report workbook
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// ExcelStyles holds the style ids used across sheets
type ExcelStyles struct {
	HeaderStyle   int
	CurrencyStyle int
	QuantityStyle int
}

// WriteSessionXLSX writes the fills and summary sheets to path
func (r *ExcelReporter) WriteSessionXLSX(report *SessionReport, path string) error {
	// Ensure directory exists before creating file
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

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeFillsSheet(fx, fillsSheet, report, styles); err != nil {
		return err
	}
	if err := r.writeSummarySheet(fx, summarySheet, report, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	// Header style - dark background with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return styles, err
	}

	// Currency style (right aligned, $ format)
	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 7,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	if err != nil {
		return styles, err
	}

	// Quantity style (right aligned, plain decimals)
	styles.QuantityStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 4,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	return styles, err
}

func (r *ExcelReporter) writeFillsSheet(fx *excelize.File, sheet string, report *SessionReport, styles ExcelStyles) error {
	headers := []string{"Time", "Symbol", "Side", "Quantity", "Price", "Notional", "Fill ID", "Order ID"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}

	for i, fill := range report.Fills {
		row := i + 2
		values := []interface{}{
			fill.Timestamp.Format("2006-01-02 15:04:05.000"),
			fill.Symbol,
			string(fill.Side),
			fill.Quantity,
			fill.Price,
			fill.Quantity * fill.Price,
			fill.FillID,
			fill.OrderID,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		qtyCell, _ := excelize.CoordinatesToCellName(4, row)
		fx.SetCellStyle(sheet, qtyCell, qtyCell, styles.QuantityStyle)
		priceCell, _ := excelize.CoordinatesToCellName(5, row)
		notionalCell, _ := excelize.CoordinatesToCellName(6, row)
		fx.SetCellStyle(sheet, priceCell, notionalCell, styles.CurrencyStyle)
	}

	fx.SetColWidth(sheet, "A", "A", 24)
	fx.SetColWidth(sheet, "B", "F", 14)
	fx.SetColWidth(sheet, "G", "H", 38)
	return nil
}

func (r *ExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, report *SessionReport, styles ExcelStyles) error {
	snap := report.Snapshot

	rows := []struct {
		label string
		value interface{}
		style int
	}{
		{"Generated At", report.GeneratedAt.Format("2006-01-02 15:04:05"), 0},
		{"Cash", snap.Account.Cash.InexactFloat64(), styles.CurrencyStyle},
		{"Realized PnL", snap.Account.RealizedPnL.InexactFloat64(), styles.CurrencyStyle},
		{"Unrealized PnL", snap.Account.UnrealizedPnL.InexactFloat64(), styles.CurrencyStyle},
		{"Session PnL", snap.SessionPnL().InexactFloat64(), styles.CurrencyStyle},
		{"Equity", snap.Equity.InexactFloat64(), styles.CurrencyStyle},
		{"Fill Count", len(report.Fills), 0},
	}

	for i, row := range rows {
		labelCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valueCell, _ := excelize.CoordinatesToCellName(2, i+1)
		if err := fx.SetCellValue(sheet, labelCell, row.label); err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, valueCell, row.value); err != nil {
			return err
		}
		if row.style != 0 {
			fx.SetCellStyle(sheet, valueCell, valueCell, row.style)
		}
	}

	// Per-position block below the account summary
	startRow := len(rows) + 2
	headers := []string{"Symbol", "Quantity", "Avg Cost", "Unrealized PnL"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, startRow)
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}

	symbols := make([]string, 0, len(snap.Positions))
	for symbol := range snap.Positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for i, symbol := range symbols {
		pos := snap.Positions[symbol]
		row := startRow + i + 1
		values := []interface{}{
			pos.Symbol,
			pos.Quantity.InexactFloat64(),
			pos.AvgCost.InexactFloat64(),
			report.unrealizedFor(pos).InexactFloat64(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	fx.SetColWidth(sheet, "A", "A", 18)
	fx.SetColWidth(sheet, "B", "D", 16)
	return nil
}
