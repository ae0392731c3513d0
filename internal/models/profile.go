package models

import "strings"

// UserProfile is a user's tabular data in file order, most recent rows
// first by convention.
type UserProfile struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (p *UserProfile) Empty() bool {
	return p == nil || len(p.Columns) == 0
}

// Render returns the profile as a markdown table, or "" when empty.
func (p *UserProfile) Render() string {
	if p.Empty() {
		return ""
	}

	var sb strings.Builder
	writeRow(&sb, p.Columns, len(p.Columns))
	sb.WriteString("|")
	for range p.Columns {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")
	for _, row := range p.Rows {
		writeRow(&sb, row, len(p.Columns))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func writeRow(sb *strings.Builder, cells []string, width int) {
	sb.WriteString("|")
	for i := 0; i < width; i++ {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		cell = strings.ReplaceAll(strings.TrimSpace(cell), "|", `\|`)
		cell = strings.ReplaceAll(cell, "\n", " ")
		sb.WriteString(" " + cell + " |")
	}
	sb.WriteString("\n")
}
