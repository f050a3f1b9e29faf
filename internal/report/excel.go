package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"autotrader/internal/models"
	"autotrader/internal/performance"
)

// Sheet names in the exported workbook.
const (
	SheetTrades  = "Trades"
	SheetDaily   = "Daily"
	SheetSummary = "Summary"
)

// WriteXLSX exports trades, their daily report and the aggregate summary to
// a workbook at path.
func WriteXLSX(path string, trades []models.Trade) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), SheetTrades)
	if _, err := fx.NewSheet(SheetDaily); err != nil {
		return err
	}
	if _, err := fx.NewSheet(SheetSummary); err != nil {
		return err
	}

	header, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	tradeRows := make([][]interface{}, 0, len(trades))
	for _, t := range trades {
		tradeRows = append(tradeRows, []interface{}{
			t.Timestamp.UTC().Format("2006-01-02 15:04:05"), t.Symbol, string(t.Side), string(t.Mode),
			t.Quantity, t.EntryPrice, t.ExitPrice, t.PnL, t.BalanceAfter, t.ProbAtEntry,
			string(t.ExitReason), t.HoldDuration.String(),
		})
	}
	if err := writeSheet(fx, SheetTrades, header,
		[]interface{}{"Exit Time", "Symbol", "Side", "Mode", "Qty", "Entry", "Exit", "PnL", "Balance", "P(up)", "Reason", "Hold"},
		tradeRows); err != nil {
		return err
	}

	daily := performance.DailySummaries(trades)
	dailyRows := make([][]interface{}, 0, len(daily))
	for _, d := range daily {
		dailyRows = append(dailyRows, []interface{}{
			d.Date, d.Symbol, d.Trades, d.Wins, d.Losses, d.WinRate, d.NetPnL, d.MaxDrawdown, d.Notes,
		})
	}
	if err := writeSheet(fx, SheetDaily, header,
		[]interface{}{"Date", "Symbol", "Trades", "Wins", "Losses", "Win Rate", "Net PnL", "Max DD", "Notes"},
		dailyRows); err != nil {
		return err
	}

	s := performance.Summarize(trades)
	if err := writeSheet(fx, SheetSummary, header,
		[]interface{}{"Metric", "Value"},
		[][]interface{}{
			{"Trades", s.Trades},
			{"Wins", s.Wins},
			{"Losses", s.Losses},
			{"Win Rate", s.WinRate},
			{"Avg Win", s.AvgWin},
			{"Avg Loss", s.AvgLoss},
			{"Expectancy", s.Expectancy},
			{"Net PnL", s.NetPnL},
			{"Max Drawdown", s.MaxDrawdown},
		}); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func writeSheet(fx *excelize.File, sheet string, style int, header []interface{}, rows [][]interface{}) error {
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := fx.SetCellStyle(sheet, "A1", last, style); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
