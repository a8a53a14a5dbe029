package reporting

import (
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ConsoleReporter renders a session report as terminal tables
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a console reporter writing to out
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// Render writes the positions, account, and fills tables
func (r *ConsoleReporter) Render(report *SessionReport) {
	r.renderPositions(report)
	r.renderAccount(report)
	r.renderFills(report)
}

func (r *ConsoleReporter) renderPositions(report *SessionReport) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("Positions")
	t.AppendHeader(table.Row{"Symbol", "Quantity", "Avg Cost", "Mark", "Unrealized PnL"})

	symbols := make([]string, 0, len(report.Snapshot.Positions))
	for symbol := range report.Snapshot.Positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		pos := report.Snapshot.Positions[symbol]
		mark := "-"
		if m, ok := report.Snapshot.Marks[symbol]; ok {
			mark = m.StringFixed(4)
		}
		t.AppendRow(table.Row{
			pos.Symbol,
			pos.Quantity.StringFixed(8),
			pos.AvgCost.StringFixed(4),
			mark,
			report.unrealizedFor(pos).StringFixed(2),
		})
	}
	if len(symbols) == 0 {
		t.AppendRow(table.Row{"(flat)", "", "", "", ""})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	t.SetStyle(table.StyleLight)
	t.Render()
}

func (r *ConsoleReporter) renderAccount(report *SessionReport) {
	acct := report.Snapshot.Account

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("Account")
	t.AppendRows([]table.Row{
		{"Cash", acct.Cash.StringFixed(2)},
		{"Realized PnL", acct.RealizedPnL.StringFixed(2)},
		{"Unrealized PnL", acct.UnrealizedPnL.StringFixed(2)},
		{"Session PnL", report.Snapshot.SessionPnL().StringFixed(2)},
	})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Equity", report.Snapshot.Equity.StringFixed(2)})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	t.SetStyle(table.StyleLight)
	t.Render()
}

func (r *ConsoleReporter) renderFills(report *SessionReport) {
	if len(report.Fills) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("Fills")
	t.AppendHeader(table.Row{"Time", "Symbol", "Side", "Quantity", "Price", "Fill ID"})

	for _, fill := range report.Fills {
		t.AppendRow(table.Row{
			fill.Timestamp.Format("15:04:05.000"),
			fill.Symbol,
			fill.Side,
			fill.Quantity,
			fill.Price,
			fill.FillID,
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	t.SetStyle(table.StyleLight)
	t.Render()
}
