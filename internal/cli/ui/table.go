// Package ui renders CLI output: aligned tables, key/value details and
// status lines.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Table renders rows under a header with aligned columns
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table with the given headers
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{writer: w, headers: headers, noColor: noColor}
}

// AddRow adds a row. Missing cells render empty; extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	header := newColor(t.noColor, color.Bold, color.FgCyan)
	rule := newColor(t.noColor, color.FgHiBlack)

	t.line(widths, t.headers, header)
	rules := make([]string, len(widths))
	for i, w := range widths {
		rules[i] = strings.Repeat("─", w)
	}
	t.line(widths, rules, rule)
	for _, row := range t.rows {
		t.line(widths, row, nil)
	}
}

func (t *Table) line(widths []int, cells []string, c *color.Color) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = padRight(cell, widths[i])
	}
	text := strings.TrimRight(strings.Join(parts, "  "), " ")
	if c != nil {
		c.Fprintln(t.writer, text)
		return
	}
	fmt.Fprintln(t.writer, text)
}

// Details renders "key: value" lines under a title
type Details struct {
	writer  io.Writer
	title   string
	keys    []string
	values  []string
	noColor bool
}

// NewDetails creates a details block
func NewDetails(w io.Writer, title string, noColor bool) *Details {
	return &Details{writer: w, title: title, noColor: noColor}
}

// Add appends a key/value line
func (d *Details) Add(key, value string) {
	d.keys = append(d.keys, key)
	d.values = append(d.values, value)
}

// Render writes the block
func (d *Details) Render() {
	if d.title != "" {
		newColor(d.noColor, color.Bold, color.FgCyan).Fprintln(d.writer, d.title)
	}

	width := 0
	for _, k := range d.keys {
		width = max(width, len(k)+1)
	}
	key := newColor(d.noColor, color.FgCyan)
	for i, k := range d.keys {
		fmt.Fprint(d.writer, "  ")
		key.Fprint(d.writer, padRight(k+":", width))
		fmt.Fprintf(d.writer, " %s\n", d.values[i])
	}
}

func newColor(noColor bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if noColor {
		c.DisableColor()
	}
	return c
}

// padRight pads s with spaces to width runes
func padRight(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
