package reporting

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/quangdm-dev/zentrade/internal/engine"
)

// ConsoleReporter renders engine snapshots to stdout: a one-line status per
// period close and full tables for startup and session summary.
type ConsoleReporter struct {
	quiet bool
}

// NewConsoleReporter creates a console reporter. With quiet set, per-period
// status lines are suppressed and only the tables print.
func NewConsoleReporter(quiet bool) *ConsoleReporter {
	return &ConsoleReporter{quiet: quiet}
}

// PrintStartup renders the session parameters before trading begins.
func (r *ConsoleReporter) PrintStartup(selector, mode, strategy, periodLength string, deposit float64) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SESSION")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Selector", selector},
		{"Mode", mode},
		{"Strategy", strategy},
		{"Period", periodLength},
		{"Deposit", fmt.Sprintf("%.2f", deposit)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 12, Align: text.AlignLeft},
		{Number: 2, WidthMin: 24, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// ReportPeriod prints the one-line period status: close, signal, balance
// and running profit.
func (r *ConsoleReporter) ReportPeriod(snap engine.Snapshot) {
	if r.quiet || snap.InPreroll {
		return
	}
	signal := string(snap.Signal)
	if signal == "" {
		signal = "-"
	}
	fmt.Printf("%s  %s  close %.8g  vol %.4f  signal %-4s  asset %.8f  %s %.2f  profit %+.2f%%\n",
		snap.Period.Time.Format("2006-01-02 15:04"),
		snap.ProductID,
		snap.Period.Close,
		snap.Period.Volume,
		signal,
		snap.Balance.Asset,
		snap.Currency,
		snap.Balance.Currency,
		snap.Profit*100,
	)
}

// PrintSummary renders the fill history and session economics tables.
func (r *ConsoleReporter) PrintSummary(snap engine.Snapshot) {
	if len(snap.Trades) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle("FILLS")
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Time", "Side", "Size", "Price", "Fee", "Slippage", "Profit"})

		for _, tr := range snap.Trades {
			profit := "-"
			if tr.HasProfit {
				profit = fmt.Sprintf("%+.2f%%", tr.Profit*100)
			}
			t.AppendRow(table.Row{
				tr.Time.Format("2006-01-02 15:04:05"),
				tr.Type.String(),
				fmt.Sprintf("%.8f", tr.Size),
				fmt.Sprintf("%.8g", tr.Price),
				fmt.Sprintf("%.8g", tr.Fee),
				fmt.Sprintf("%.4f%%", tr.Slippage*100),
				profit,
			})
		}
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
			{Number: 6, Align: text.AlignRight},
			{Number: 7, Align: text.AlignRight},
		})
		t.Render()
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SESSION SUMMARY")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Last price", fmt.Sprintf("%.8g %s", snap.Price, snap.Currency)},
		{"Start capital", fmt.Sprintf("%.2f %s", snap.StartCapital, snap.Currency)},
		{"End capital", fmt.Sprintf("%.2f %s", snap.Consolidated, snap.Currency)},
		{"Profit", fmt.Sprintf("%+.2f%%", snap.Profit*100)},
		{"Buy & hold", fmt.Sprintf("%.2f %s", snap.BuyHold, snap.Currency)},
		{"Vs. buy & hold", fmt.Sprintf("%+.2f%%", snap.VsBuyHold*100)},
		{"Days", fmt.Sprintf("%d", snap.DayCount)},
		{"Profit per day", fmt.Sprintf("%+.4f%%", snap.ProfitPerDay*100)},
		{"Buys / sells", fmt.Sprintf("%d / %d", snap.BuyCount, snap.SellCount)},
		{"Losing sells", fmt.Sprintf("%d", snap.LossCount)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})

	t.Render()
	fmt.Println()
}
