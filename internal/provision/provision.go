// Package provision reads provisioning sheets: the per-quarter list of which
// tribe may book which resource/role and how many sprints it reserved.
package provision

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"sprintbook/internal/domain"
	"sprintbook/internal/slots"
)

type Format string

const (
	CSV  Format = "csv"
	YAML Format = "yaml"
)

// ParseFormat accepts a format name or a file name with a known extension.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "csv" || strings.HasSuffix(s, ".csv"):
		return CSV, nil
	case s == "yaml" || s == "yml" || strings.HasSuffix(s, ".yaml") || strings.HasSuffix(s, ".yml"):
		return YAML, nil
	}
	return "", fmt.Errorf("unsupported sheet format %q (want csv or yaml)", s)
}

// Row is one sheet line. Line is the 1-based line in the source, header
// included, so users can find it in their spreadsheet.
type Row struct {
	Line     int    `json:"line,omitempty" yaml:"-"`
	Tribe    string `json:"tribe" yaml:"tribe"`
	App      string `json:"app" yaml:"app"`
	Role     string `json:"role" yaml:"role"`
	Reserved int    `json:"reserved_sprints" yaml:"reserved_sprints"`
	Resource string `json:"resource" yaml:"resource"`
}

var requiredColumns = []string{"tribe", "app", "role", "reserved_sprints", "resource"}

var columnAliases = map[string]string{
	"tribe":            "tribe",
	"app":              "app",
	"role":             "role",
	"reserved sprints": "reserved_sprints",
	"reserved_sprints": "reserved_sprints",
	"resource":         "resource",
}

// Parse reads rows from r. Values are returned as written; Clean normalizes them.
func Parse(r io.Reader, format Format) ([]Row, error) {
	switch format {
	case CSV:
		return parseCSV(r)
	case YAML:
		return parseYAML(r)
	}
	return nil, fmt.Errorf("unsupported sheet format %q", format)
}

func parseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty sheet")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := map[string]int{}
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if canon, ok := columnAliases[name]; ok {
			if _, dup := index[canon]; !dup {
				index[canon] = i
			}
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	field := func(rec []string, col string) string {
		if i := index[col]; i < len(rec) {
			return rec[i]
		}
		return ""
	}
	rows := []Row{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read sheet: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if blank(rec) {
			continue
		}
		rows = append(rows, Row{
			Line:     line,
			Tribe:    field(rec, "tribe"),
			App:      field(rec, "app"),
			Role:     field(rec, "role"),
			Reserved: atoiLenient(field(rec, "reserved_sprints")),
			Resource: field(rec, "resource"),
		})
	}
	return rows, nil
}

func parseYAML(r io.Reader) ([]Row, error) {
	var doc struct {
		Rows []Row `yaml:"rows"`
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid sheet yaml: %w", err)
	}
	for i := range doc.Rows {
		doc.Rows[i].Line = i + 1
	}
	if doc.Rows == nil {
		doc.Rows = []Row{}
	}
	return doc.Rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// atoiLenient treats anything unparseable as 0, like an empty cell.
func atoiLenient(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

var spaces = regexp.MustCompile(`\s+`)

func canon(s string) string {
	return spaces.ReplaceAllString(strings.TrimSpace(s), " ")
}

func capitalize(s string) string {
	s = canon(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Clean collapses whitespace, capitalizes resource and role, clamps Reserved
// to 0..6 and drops repeated (tribe, app, resource, role) lines keeping the first.
func Clean(rows []Row) []Row {
	type key struct{ tribe, app, resource, role string }
	seen := map[key]struct{}{}
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		r.Tribe = canon(r.Tribe)
		r.App = canon(r.App)
		r.Resource = capitalize(r.Resource)
		r.Role = capitalize(r.Role)
		r.Reserved = min(max(r.Reserved, 0), slots.Count)
		k := key{r.Tribe, r.App, r.Resource, r.Role}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Conflict reports a resource reserved for more sprints than a quarter has.
type Conflict struct {
	Resource      string `json:"resource"`
	TotalReserved int    `json:"total_reserved"`
	Rows          []int  `json:"rows"`
	Preview       []Row  `json:"rows_preview"`
}

// Validate returns one conflict per resource whose summed reservation exceeds
// six sprints, ordered by resource.
func Validate(rows []Row) []Conflict {
	groups := map[string][]Row{}
	for _, r := range rows {
		groups[r.Resource] = append(groups[r.Resource], r)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	conflicts := []Conflict{}
	for _, name := range names {
		grp := groups[name]
		total := 0
		for _, r := range grp {
			total += r.Reserved
		}
		if total <= slots.Count {
			continue
		}
		c := Conflict{Resource: name, TotalReserved: total, Preview: grp}
		for _, r := range grp {
			c.Rows = append(c.Rows, r.Line)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts
}

// AssignTypes derives the type per resource: Dedicated when exactly one tribe
// holds it and reserved all six sprints, Shared otherwise.
func AssignTypes(rows []Row) map[string]domain.AssignType {
	type agg struct {
		total  int
		tribes map[string]struct{}
	}
	byResource := map[string]*agg{}
	for _, r := range rows {
		a, ok := byResource[r.Resource]
		if !ok {
			a = &agg{tribes: map[string]struct{}{}}
			byResource[r.Resource] = a
		}
		a.total += r.Reserved
		a.tribes[r.Tribe] = struct{}{}
	}
	out := make(map[string]domain.AssignType, len(byResource))
	for name, a := range byResource {
		if len(a.tribes) == 1 && a.total == slots.Count {
			out[name] = domain.Dedicated
		} else {
			out[name] = domain.Shared
		}
	}
	return out
}

// Validation is the outcome of checking a sheet without importing it.
type Validation struct {
	OK        bool                         `json:"ok"`
	Rows      []Row                        `json:"rows"`
	Conflicts []Conflict                   `json:"conflicts"`
	Types     map[string]domain.AssignType `json:"assign_types"`
}

// Check cleans rows and reports conflicts and derived types.
func Check(rows []Row) Validation {
	cleaned := Clean(rows)
	conflicts := Validate(cleaned)
	return Validation{
		OK:        len(conflicts) == 0,
		Rows:      cleaned,
		Conflicts: conflicts,
		Types:     AssignTypes(cleaned),
	}
}
