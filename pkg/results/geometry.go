package results

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// Geometry is a parsed well-known-text value with optional coordinate reference system.
type Geometry struct {
	orb.Geometry
	CRS string // crs iri from a geosparql literal, empty means default (CRS84)
}

var (
	wktDimension      = regexp.MustCompile(`\b(POINT|LINESTRING|POLYGON|MULTIPOINT|MULTILINESTRING|MULTIPOLYGON|GEOMETRYCOLLECTION)\s*(?:ZM|Z|M)\b`)
	wktEmpty          = regexp.MustCompile(`^[A-Z]+\s+EMPTY$`)
	wktExtraOrdinates = regexp.MustCompile(`(` + wktNum + `)\s+(` + wktNum + `)(?:\s+` + wktNum + `)+`)
)

const wktNum = `[-+]?(?:\d+\.?\d*|\.\d+)(?:E[-+]?\d+)?`

// ParseWKT parses a wkt literal. GeoSPARQL literals may start with a crs iri in angle brackets,
// i.e. "<http://www.opengis.net/def/crs/EPSG/0/4326> POINT(47.3 8.5)".
// Z, M and ZM coordinates are reduced to x y, EMPTY geometries result in nil orb.Geometry.
func ParseWKT(raw string) (Geometry, error) {
	s := strings.TrimSpace(raw)
	res := Geometry{}
	if strings.HasPrefix(s, "<") {
		end := strings.Index(s, ">")
		if end < 0 {
			return Geometry{}, fmt.Errorf("unterminated crs in %q", raw)
		}
		res.CRS = s[1:end]
		s = strings.TrimSpace(s[end+1:])
	}

	s = wktDimension.ReplaceAllString(strings.ToUpper(s), "$1")
	if wktEmpty.MatchString(s) {
		return res, nil // empty geometry kept as nil, skipped by bound and geojson
	}
	g, err := wkt.Unmarshal(wktExtraOrdinates.ReplaceAllString(s, "$1 $2"))
	if err != nil {
		return Geometry{}, fmt.Errorf("can't parse wkt %q: %w", raw, err)
	}
	res.Geometry = g
	return res, nil
}

// String returns wkt representation, prefixed by crs if set
func (g Geometry) String() string {
	if g.Geometry == nil {
		return ""
	}
	if g.CRS == "" {
		return wkt.MarshalString(g.Geometry)
	}
	return fmt.Sprintf("<%s> %s", g.CRS, wkt.MarshalString(g.Geometry))
}
