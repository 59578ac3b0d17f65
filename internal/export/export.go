// Package export renders assignments and temp rows for download, the CLI and
// the archive.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"sprintbook/internal/domain"
)

type Format string

const (
	CSV      Format = "csv"
	JSON     Format = "json"
	Table    Format = "table"
	Markdown Format = "markdown"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return CSV, nil
	case CSV, JSON, Table, Markdown:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType is the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case JSON:
		return "application/json"
	case CSV:
		return "text/csv; charset=utf-8"
	case Markdown:
		return "text/markdown; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

func flag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// AssignmentsTable lays assignments out one row each with a column per sprint.
func AssignmentsTable(rows []domain.Assignment) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"ID", "Tribe", "App", "Resource", "Role", "Type", "S1", "S2", "S3", "S4", "S5", "S6", "Edited", "Updated"})
	for _, a := range rows {
		s := a.Slots
		tw.AppendRow(table.Row{a.ID, a.Tribe, a.App, a.ResourceName, a.Role, string(a.AssignmentType),
			flag(s[0]), flag(s[1]), flag(s[2]), flag(s[3]), flag(s[4]), flag(s[5]), a.Edited, a.UpdatedAt})
	}
	return tw
}

func TempsTable(rows []domain.TempAssignment) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"ID", "Tribe", "App", "Resource", "Role", "Type", "Reserved"})
	for _, t := range rows {
		tw.AppendRow(table.Row{t.ID, t.Tribe, t.App, t.ResourceName, t.Role, string(t.AssignType), t.Reserved})
	}
	return tw
}

func WriteAssignments(w io.Writer, rows []domain.Assignment, f Format) error {
	if f == JSON {
		return writeJSON(w, rows)
	}
	return render(w, AssignmentsTable(rows), f)
}

func WriteTemps(w io.Writer, rows []domain.TempAssignment, f Format) error {
	if f == JSON {
		return writeJSON(w, rows)
	}
	return render(w, TempsTable(rows), f)
}

func render(w io.Writer, tw table.Writer, f Format) error {
	var out string
	switch f {
	case CSV:
		out = tw.RenderCSV()
	case Markdown:
		out = tw.RenderMarkdown()
	default:
		out = tw.Render()
	}
	_, err := io.WriteString(w, out+"\n")
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
