package results

import "github.com/paulmach/orb"

// Table is a normalized result set. All columns have the same number of values,
// missing bindings are nil. If Geometry is set the table is the spatial variant
// and the named column holds Geometry values.
type Table struct {
	Columns  []Column
	Geometry string
}

// Column is a named sequence of converted values. Kind is the kind of the first
// non-nil value, KindString for columns without any value.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// Len returns the number of rows
func (t *Table) Len() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

// Names returns column names in order
func (t *Table) Names() []string {
	res := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		res[i] = c.Name
	}
	return res
}

// Column returns column by name
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Row returns values of the i-th row in column order
func (t *Table) Row(i int) []any {
	res := make([]any, len(t.Columns))
	for j, c := range t.Columns {
		res[j] = c.Values[i]
	}
	return res
}

// Spatial reports if the table has a designated geometry column
func (t *Table) Spatial() bool { return t.Geometry != "" }

// GeometryAt returns geometry of the i-th row, false for plain tables and missing values
func (t *Table) GeometryAt(i int) (Geometry, bool) {
	if !t.Spatial() {
		return Geometry{}, false
	}
	c, ok := t.Column(t.Geometry)
	if !ok {
		return Geometry{}, false
	}
	g, ok := c.Values[i].(Geometry)
	return g, ok
}

// Bound returns the bounding box of all geometries. Empty bound for plain tables.
func (t *Table) Bound() orb.Bound {
	var res orb.Bound
	first := true
	for i := 0; i < t.Len(); i++ {
		g, ok := t.GeometryAt(i)
		if !ok || g.Geometry == nil {
			continue
		}
		if first {
			res, first = g.Bound(), false
			continue
		}
		res = res.Union(g.Bound())
	}
	return res
}

// CRS returns the coordinate reference system of the first geometry
func (t *Table) CRS() string {
	for i := 0; i < t.Len(); i++ {
		if g, ok := t.GeometryAt(i); ok {
			return g.CRS
		}
	}
	return ""
}
