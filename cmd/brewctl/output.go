package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// printTable writes rows under headers: a rounded table on a terminal and
// CSV when piped. Short rows are padded with empty cells.
func printTable(cmd *cobra.Command, headers []string, rows [][]string, aligns ...columnAlignment) {
	out := cmd.OutOrStdout()
	if len(headers) == 0 {
		return
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "(none)")
		return
	}
	width := len(headers)
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(padRow(headers, width))
	for _, row := range rows {
		tw.AppendRow(padRow(row, width))
	}
	configs := make([]table.ColumnConfig, width)
	for i := range configs {
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft, Align: text.AlignLeft}
		if i < len(aligns) && aligns[i] == alignRight {
			configs[i].Align = text.AlignRight
		}
	}
	tw.SetColumnConfigs(configs)
	if !isTerminal(out) {
		tw.RenderCSV()
		return
	}
	tw.SetStyle(table.StyleRounded)
	tw.Render()
}

func padRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	return row
}

// emit writes v as JSON in --json mode and calls table otherwise.
func (c *commandContext) emit(cmd *cobra.Command, v any, table func()) error {
	if c.jsonOutput() {
		return writeJSON(cmd, v)
	}
	table()
	return nil
}

// emitRows is emit for listings that render straight from rows.
func (c *commandContext) emitRows(cmd *cobra.Command, v any, headers []string, rows func() [][]string, aligns ...columnAlignment) error {
	return c.emit(cmd, v, func() { printTable(cmd, headers, rows(), aligns...) })
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatMoney(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func deref(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
