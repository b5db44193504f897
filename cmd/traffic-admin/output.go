package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/bigkaa/trafficadmin/internal/entity"
)

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("нет записей")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

// printEntityTable печатает таблицу сущности; первый столбец — идентификатор.
func printEntityTable(t entity.Table) {
	headers := make([]string, 0, len(t.Columns)+1)
	headers = append(headers, "ID")
	for _, col := range t.Columns {
		headers = append(headers, strings.ToUpper(col.Label))
	}

	rows := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := make([]string, 0, len(r.Cells)+1)
		row = append(row, dash(r.ID))
		for _, cell := range r.Cells {
			row = append(row, cellText(cell))
		}
		rows = append(rows, row)
	}
	printTable(headers, rows)
}

// cellText: тон статуса печатается рядом со значением.
func cellText(c entity.Cell) string {
	text := dash(c.Text)
	if c.Kind == entity.CellStatus && c.Tone != "" && c.Tone != entity.ToneNeutral {
		return text + " [" + string(c.Tone) + "]"
	}
	return text
}

func printForm(fields []entity.FormField) {
	rows := make([][2]string, 0, len(fields))
	for _, f := range fields {
		value := ""
		if f.Value != nil {
			value = fmt.Sprint(f.Value)
		}
		if f.Disabled {
			value += " (read-only)"
		}
		rows = append(rows, [2]string{f.Name, dash(value)})
	}
	printKV(rows)
}

func sortedPairs(values map[string]string) [][2]string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][2]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, [2]string{k, values[k]})
	}
	return rows
}

func formatCount(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
