package co2bed

import (
	"slices"
	"strings"
)

// Field is a logical column a reference file can provide.
type Field string

const (
	FieldName        Field = "name"
	FieldASCIIName   Field = "ascii_name"
	FieldAltNames    Field = "alternate_names"
	FieldCountry     Field = "country"
	FieldSubdivision Field = "subdivision"
	FieldRegion      Field = "region" // ISO 3166-2 style "CC-SUB"
	FieldCoordinates Field = "coordinates"
	FieldLatitude    Field = "latitude"
	FieldLongitude   Field = "longitude"
	FieldPopulation  Field = "population"
	FieldType        Field = "type"
	FieldScheduled   Field = "scheduled_service"
	FieldIATA        Field = "iata"
	FieldICAO        Field = "icao"
	FieldIdent       Field = "ident"
	FieldLocode      Field = "unlocode"
)

// Schema maps logical fields to the header names of one reference file.
// Coordinates come either from a single "lat, lon" column or from a
// latitude/longitude pair; at least one of the two shapes must be present.
type Schema struct {
	Delimiter rune
	Columns   map[Field]string
	Required  []Field
}

// DefaultCitySchema matches the semicolon-delimited GeoNames
// "cities with a population > 1000" export.
func DefaultCitySchema() Schema {
	return Schema{
		Delimiter: ';',
		Columns: map[Field]string{
			FieldName:        "Name",
			FieldASCIIName:   "ASCII Name",
			FieldAltNames:    "Alternate Names",
			FieldCountry:     "Country Code",
			FieldSubdivision: "Admin1 Code",
			FieldCoordinates: "Coordinates",
			FieldPopulation:  "Population",
		},
		Required: []Field{FieldName},
	}
}

// DefaultAirportSchema matches the OurAirports airports.csv layout.
func DefaultAirportSchema() Schema {
	return Schema{
		Delimiter: ',',
		Columns: map[Field]string{
			FieldIdent:     "ident",
			FieldType:      "type",
			FieldName:      "name",
			FieldLatitude:  "latitude_deg",
			FieldLongitude: "longitude_deg",
			FieldCountry:   "iso_country",
			FieldRegion:    "iso_region",
			FieldScheduled: "scheduled_service",
			FieldICAO:      "icao_code",
			FieldIATA:      "iata_code",
		},
		Required: []Field{FieldName, FieldType},
	}
}

// DefaultSeaportSchema matches a semicolon-delimited UN/LOCODE port list.
func DefaultSeaportSchema() Schema {
	return Schema{
		Delimiter: ';',
		Columns: map[Field]string{
			FieldLocode:      "UNLOCODE",
			FieldName:        "name",
			FieldLatitude:    "latitude",
			FieldLongitude:   "longitude",
			FieldType:        "port_type",
			FieldCountry:     "country",
			FieldSubdivision: "subdivision",
		},
		Required: []Field{FieldName},
	}
}

// columns is a bound schema: field -> position in the row.
type columns map[Field]int

// get returns the trimmed value of f, or "" if the column is absent or short.
func (c columns) get(row []string, f Field) string {
	i, ok := c[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c columns) has(f Field) bool {
	_, ok := c[f]
	return ok
}

// bind resolves the schema against a header row. Header names match
// case-insensitively; a UTF-8 BOM on the first header is ignored.
func (s Schema) bind(source string, header []string) (columns, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		key := normalizeKey(h)
		if _, dup := pos[key]; !dup {
			pos[key] = i
		}
	}

	cols := make(columns, len(s.Columns))
	for f, name := range s.Columns {
		if i, ok := pos[normalizeKey(name)]; ok {
			cols[f] = i
		}
	}

	var missing []string
	for _, f := range s.Required {
		if !cols.has(f) {
			missing = append(missing, s.columnName(f))
		}
	}
	if !cols.has(FieldCoordinates) && !(cols.has(FieldLatitude) && cols.has(FieldLongitude)) {
		switch {
		case s.Columns[FieldCoordinates] != "":
			missing = append(missing, s.columnName(FieldCoordinates))
		default:
			if !cols.has(FieldLatitude) {
				missing = append(missing, s.columnName(FieldLatitude))
			}
			if !cols.has(FieldLongitude) {
				missing = append(missing, s.columnName(FieldLongitude))
			}
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, &MissingColumnsError{Source: source, Columns: missing}
	}
	return cols, nil
}

func (s Schema) columnName(f Field) string {
	if name := s.Columns[f]; name != "" {
		return name
	}
	return string(f)
}
