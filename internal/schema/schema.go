// Package schema holds the static description of the listings table that
// generated queries are constrained to.
package schema

import (
	"fmt"
	"strings"
)

// Column describes one column of the table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	// Note is a human hint rendered next to the column in the prompt DDL.
	Note string
}

// Descriptor is immutable once built. Accessors return copies.
type Descriptor struct {
	table      string
	columns    []Column
	projection []string
	excluded   map[string]struct{}
}

// New builds a descriptor. Every projected and excluded column must exist in columns.
func New(table string, columns []Column, projection []string, excluded []string) (*Descriptor, error) {
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns", table)
	}

	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c.Name] = struct{}{}
	}
	for _, name := range projection {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("projected column %q is not in table %s", name, table)
		}
	}

	ex := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("excluded column %q is not in table %s", name, table)
		}
		ex[name] = struct{}{}
	}

	return &Descriptor{
		table:      table,
		columns:    append([]Column(nil), columns...),
		projection: append([]string(nil), projection...),
		excluded:   ex,
	}, nil
}

// Listings returns the descriptor of public.listings.
// district and author are never allowed in filters.
func Listings() *Descriptor {
	d, err := New("listings",
		[]Column{
			{Name: "id", Type: "serial4"},
			{Name: "author", Type: "text", Nullable: true},
			{Name: "author_type", Type: "text", Nullable: true},
			{Name: "url", Type: "text", Nullable: true},
			{Name: "location", Type: "text", Nullable: true, Note: "Город"},
			{Name: "deal_type", Type: "text", Nullable: true},
			{Name: "accommodation_type", Type: "text", Nullable: true},
			{Name: "floor", Type: "int4", Nullable: true},
			{Name: "floors_count", Type: "int4", Nullable: true},
			{Name: "rooms_count", Type: "int4", Nullable: true},
			{Name: "total_meters", Type: "float8", Nullable: true},
			{Name: "price", Type: "int8", Nullable: true},
			{Name: "district", Type: "text", Nullable: true, Note: "Район"},
			{Name: "street", Type: "text", Nullable: true},
			{Name: "house_number", Type: "text", Nullable: true},
			{Name: "underground", Type: "text", Nullable: true, Note: "Метро"},
			{Name: "residential_complex", Type: "text", Nullable: true},
		},
		[]string{"url", "floor", "floors_count", "rooms_count", "total_meters", "price", "underground"},
		[]string{"district", "author"},
	)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Descriptor) Table() string { return d.table }

func (d *Descriptor) Columns() []Column {
	return append([]Column(nil), d.columns...)
}

// ColumnNames returns the column names in table order.
func (d *Descriptor) ColumnNames() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Projection returns the columns every generated query must select, in order.
func (d *Descriptor) Projection() []string {
	return append([]string(nil), d.projection...)
}

// Excluded returns the columns that must not appear in filters, in table order.
func (d *Descriptor) Excluded() []string {
	var out []string
	for _, c := range d.columns {
		if _, ok := d.excluded[c.Name]; ok {
			out = append(out, c.Name)
		}
	}
	return out
}

// Filterable reports whether name is a known column that may be used in a WHERE clause.
func (d *Descriptor) Filterable(name string) bool {
	if _, ok := d.excluded[name]; ok {
		return false
	}
	for _, c := range d.columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// DDL renders the CREATE TABLE statement embedded in generation prompts.
func (d *Descriptor) DDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE public.%s (\n", d.table)
	for _, c := range d.columns {
		null := "NOT NULL"
		if c.Nullable {
			null = "NULL"
		}
		fmt.Fprintf(&b, "\t%s %s %s,", c.Name, c.Type, null)
		if c.Note != "" {
			fmt.Fprintf(&b, " -- %s", c.Note)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\tCONSTRAINT %s_pkey PRIMARY KEY (id)\n);", d.table)
	return b.String()
}
