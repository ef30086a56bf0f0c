package results

import (
	"fmt"
	"strconv"
	"time"
)

// Kind is a closed set of value kinds a binding can be converted to.
type Kind int

// supported kinds
const (
	KindString Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindDate
	KindDateTime
	KindGeometry
)

// datatype IRIs recognized by the normalizer
const (
	XSD = "http://www.w3.org/2001/XMLSchema#"

	XSDString   = XSD + "string"
	XSDInteger  = XSD + "integer"
	XSDInt      = XSD + "int"
	XSDLong     = XSD + "long"
	XSDFloat    = XSD + "float"
	XSDDouble   = XSD + "double"
	XSDDecimal  = XSD + "decimal"
	XSDBoolean  = XSD + "boolean"
	XSDDate     = XSD + "date"
	XSDDateTime = XSD + "dateTime"

	GeoWKTLiteral = "http://www.opengis.net/ont/geosparql#wktLiteral"
	VirtGeometry  = "http://www.openlinksw.com/schemas/virtrdf#Geometry"
)

// DateLayout is the only accepted xsd:date lexical form.
const DateLayout = "2006-01-02"

// DateTimeLayout is the only accepted xsd:dateTime lexical form, UTC with a trailing Z
// and without fractional seconds.
const DateTimeLayout = "2006-01-02T15:04:05Z"

var datatypes = map[string]Kind{
	XSDString:     KindString,
	XSDInteger:    KindInteger,
	XSDInt:        KindInteger,
	XSDLong:       KindInteger,
	XSDFloat:      KindFloat,
	XSDDouble:     KindFloat,
	XSDDecimal:    KindFloat,
	XSDBoolean:    KindBoolean,
	XSDDate:       KindDate,
	XSDDateTime:   KindDateTime,
	GeoWKTLiteral: KindGeometry,
	VirtGeometry:  KindGeometry,
}

// KindOf returns the kind registered for the datatype IRI.
func KindOf(datatype string) (Kind, bool) {
	k, ok := datatypes[datatype]
	return k, ok
}

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindDateTime:
		return "dateTime"
	case KindGeometry:
		return "geometry"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Convert turns the raw lexical value into the Go value for the kind:
// string, int64, float64, bool, time.Time or Geometry.
func (k Kind) Convert(raw string) (any, error) {
	switch k {
	case KindString:
		return raw, nil
	case KindInteger:
		return strconv.ParseInt(raw, 10, 64)
	case KindFloat:
		return strconv.ParseFloat(raw, 64)
	case KindBoolean:
		return strconv.ParseBool(raw)
	case KindDate:
		return time.Parse(DateLayout, raw)
	case KindDateTime:
		return parseDateTime(raw)
	case KindGeometry:
		return ParseWKT(raw)
	}
	return nil, fmt.Errorf("no conversion for %s", k)
}

// parseDateTime is strict, time.Parse alone would accept fractional seconds not present in the layout
func parseDateTime(raw string) (time.Time, error) {
	if len(raw) != len(DateTimeLayout) {
		return time.Time{}, fmt.Errorf("date-time %q doesn't match %s", raw, DateTimeLayout)
	}
	return time.Parse(DateTimeLayout, raw)
}
