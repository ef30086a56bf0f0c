// Package render writes result tables as aligned text, csv, json or geojson.
package render

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/paulmach/orb/geojson"

	"github.com/umputun/graphly/pkg/results"
)

// Format is an output format name
type Format string

// supported formats
const (
	Text    Format = "text"
	CSV     Format = "csv"
	JSON    Format = "json"
	GeoJSON Format = "geojson"
)

// Ext returns file extension for the format
func (f Format) Ext() string {
	if f == Text || f == "" {
		return "txt"
	}
	return string(f)
}

// ErrNotSpatial returned on attempt to write geojson for a table without geometry
var ErrNotSpatial = errors.New("table has no geometry column")

// Write renders the table in the given format
func Write(w io.Writer, tbl *results.Table, f Format) error {
	switch f {
	case Text, "":
		return writeText(w, tbl)
	case CSV:
		return writeCSV(w, tbl)
	case JSON:
		return writeJSON(w, tbl)
	case GeoJSON:
		return writeGeoJSON(w, tbl)
	}
	return fmt.Errorf("unknown format %q", f)
}

// Value formats a single table value as text. Dates are formatted without time, nil as empty string.
func Value(kind results.Kind, v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case int64:
		return strconv.FormatInt(vv, 10)
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(vv)
	case time.Time:
		if kind == results.KindDate {
			return vv.Format(results.DateLayout)
		}
		return vv.Format(results.DateTimeLayout)
	case results.Geometry:
		return vv.String()
	}
	return fmt.Sprintf("%v", v)
}

func writeText(w io.Writer, tbl *results.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := color.New(color.FgYellow, color.Bold).SprintFunc()
	names := tbl.Names()
	for i := range names {
		names[i] = header(names[i])
	}
	if _, err := fmt.Fprintln(tw, strings.Join(names, "\t")); err != nil {
		return err
	}
	for i := 0; i < tbl.Len(); i++ {
		if _, err := fmt.Fprintln(tw, strings.Join(rowStrings(tbl, i), "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func writeCSV(w io.Writer, tbl *results.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tbl.Names()); err != nil {
		return err
	}
	for i := 0; i < tbl.Len(); i++ {
		if err := cw.Write(rowStrings(tbl, i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonTable struct {
	Columns  []string `json:"columns"`
	Geometry string   `json:"geometry,omitempty"`
	Rows     [][]any  `json:"rows"`
}

func writeJSON(w io.Writer, tbl *results.Table) error {
	res := jsonTable{Columns: tbl.Names(), Geometry: tbl.Geometry, Rows: make([][]any, 0, tbl.Len())}
	for i := 0; i < tbl.Len(); i++ {
		row := make([]any, len(tbl.Columns))
		for j, c := range tbl.Columns {
			row[j] = jsonValue(c.Kind, c.Values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// writeGeoJSON makes a feature per row with geometry, all other columns go to properties
func writeGeoJSON(w io.Writer, tbl *results.Table) error {
	if !tbl.Spatial() {
		return ErrNotSpatial
	}
	fc := geojson.NewFeatureCollection()
	for i := 0; i < tbl.Len(); i++ {
		g, ok := tbl.GeometryAt(i)
		if !ok || g.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(g.Geometry)
		for _, c := range tbl.Columns {
			if c.Name == tbl.Geometry {
				continue
			}
			f.Properties[c.Name] = jsonValue(c.Kind, c.Values[i])
		}
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("can't marshal geojson: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// jsonValue keeps numbers and booleans as is, everything else as text
func jsonValue(kind results.Kind, v any) any {
	switch v.(type) {
	case nil, int64, float64, bool:
		return v
	}
	return Value(kind, v)
}

func rowStrings(tbl *results.Table, i int) []string {
	res := make([]string, len(tbl.Columns))
	for j, c := range tbl.Columns {
		res[j] = Value(c.Kind, c.Values[i])
	}
	return res
}
