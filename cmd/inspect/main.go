package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/levanduc-dev/tick-trader/internal/journal"
	"github.com/levanduc-dev/tick-trader/internal/ledger"
	"github.com/levanduc-dev/tick-trader/pkg/reporting"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// inspect replays a fill journal into a fresh ledger and renders the
// resulting positions and account, optionally exporting a workbook.
// Because replay is deterministic, the output is exactly the state the
// engine would recover on its next start.
func main() {
	journalPath := flag.String("journal", "data/fills.jsonl", "path to the fill journal")
	initialCash := flag.Float64("cash", 0, "initial cash the session started with")
	xlsxPath := flag.String("xlsx", "", "optional path for an Excel session report")
	flag.Parse()

	book := ledger.NewLedger(*initialCash, nil)
	var fills []types.Fill
	count, err := journal.Replay(*journalPath, func(fill types.Fill) error {
		fills = append(fills, fill)
		book.Recover(fill)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("replayed %d fills from %s\n\n", count, *journalPath)

	report := reporting.NewSessionReport(book.Snapshot(), fills)
	reporting.NewConsoleReporter(os.Stdout).Render(report)

	if *xlsxPath != "" {
		if err := reporting.NewExcelReporter().WriteSessionXLSX(report, *xlsxPath); err != nil {
			fmt.Fprintf(os.Stderr, "excel export failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nsession report written to %s\n", *xlsxPath)
	}
}
