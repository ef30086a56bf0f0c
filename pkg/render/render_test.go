package render

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/graphly/pkg/results"
)

func plainTable() *results.Table {
	return &results.Table{Columns: []results.Column{
		{Name: "place", Kind: results.KindString, Values: []any{"Kreis 1", nil}},
		{Name: "count", Kind: results.KindInteger, Values: []any{int64(56), int64(47)}},
		{Name: "time", Kind: results.KindDate, Values: []any{time.Date(1408, 12, 31, 0, 0, 0, 0, time.UTC), nil}},
	}}
}

func spatialTable() *results.Table {
	return &results.Table{Geometry: "geometry", Columns: []results.Column{
		{Name: "place", Values: []any{"Enge", "Hirslanden", "Nowhere"}},
		{Name: "geometry", Kind: results.KindGeometry, Values: []any{
			results.Geometry{Geometry: orb.Point{8.53172, 47.3641}},
			results.Geometry{Geometry: orb.Point{8.56628, 47.36464}},
			nil,
		}},
	}}
}

func TestWrite_Text(t *testing.T) {
	color.NoColor = true
	buf := bytes.Buffer{}
	require.NoError(t, Write(&buf, plainTable(), Text))
	assert.Equal(t, "place    count  time\nKreis 1  56     1408-12-31\n         47     \n", buf.String())
}

func TestWrite_CSV(t *testing.T) {
	buf := bytes.Buffer{}
	require.NoError(t, Write(&buf, spatialTable(), CSV))
	assert.Equal(t, "place,geometry\nEnge,POINT(8.53172 47.3641)\nHirslanden,POINT(8.56628 47.36464)\nNowhere,\n", buf.String())
}

func TestWrite_JSON(t *testing.T) {
	buf := bytes.Buffer{}
	require.NoError(t, Write(&buf, plainTable(), JSON))
	res := jsonTable{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
	assert.Equal(t, []string{"place", "count", "time"}, res.Columns)
	assert.Equal(t, [][]any{{"Kreis 1", 56.0, "1408-12-31"}, {nil, 47.0, nil}}, res.Rows)
}

func TestWrite_GeoJSON(t *testing.T) {
	buf := bytes.Buffer{}
	require.NoError(t, Write(&buf, spatialTable(), GeoJSON))
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2, "row without geometry skipped")
	assert.Equal(t, "Point", fc.Features[0].Geometry.Type)
	assert.Equal(t, []float64{8.53172, 47.3641}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, map[string]any{"place": "Enge"}, fc.Features[0].Properties)

	err := Write(&buf, plainTable(), GeoJSON)
	assert.ErrorIs(t, err, ErrNotSpatial)
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, plainTable(), Format("xml"))
	assert.EqualError(t, err, `unknown format "xml"`)
}

func TestValue(t *testing.T) {
	ts := time.Date(2001, 10, 26, 21, 32, 32, 0, time.UTC)
	assert.Equal(t, "2001-10-26T21:32:32Z", Value(results.KindDateTime, ts))
	assert.Equal(t, "2001-10-26", Value(results.KindDate, ts))
	assert.Equal(t, "56.59", Value(results.KindFloat, 56.59))
	assert.Equal(t, "true", Value(results.KindBoolean, true))
	assert.Equal(t, "", Value(results.KindString, nil))
}

func TestFormat_Ext(t *testing.T) {
	assert.Equal(t, "txt", Text.Ext())
	assert.Equal(t, "csv", CSV.Ext())
	assert.Equal(t, "geojson", GeoJSON.Ext())
}
