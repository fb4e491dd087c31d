package co2bed

import (
	"fmt"
	"slices"
	"strings"
)

// Kind is the facility type a LocationRecord describes.
type Kind uint8

const (
	KindCity Kind = iota
	KindAirport
	KindSeaport

	kindCount = 3
)

func (k Kind) String() string {
	switch k {
	case KindCity:
		return "city"
	case KindAirport:
		return "airport"
	case KindSeaport:
		return "seaport"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Kinds lists every facility kind in index order.
var Kinds = [kindCount]Kind{KindCity, KindAirport, KindSeaport}

// Mode is the transport mode of a leg.
type Mode string

const (
	ModeRoad Mode = "road"
	ModeAir  Mode = "air"
	ModeSea  Mode = "sea"
)

// Kind returns the facility kind resolved for the mode.
// Road legs resolve to cities, air legs to airports and sea legs to seaports.
func (m Mode) Kind() (Kind, bool) {
	switch m {
	case ModeRoad:
		return KindCity, true
	case ModeAir:
		return KindAirport, true
	case ModeSea:
		return KindSeaport, true
	}
	return 0, false
}

// ParseMode normalizes s and returns the matching Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(normalizeKey(s))
	if _, ok := m.Kind(); !ok {
		return m, fmt.Errorf("%w: %q (want road, air or sea)", ErrInvalidMode, s)
	}
	return m, nil
}

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p Point) valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// euCountries holds the ISO 3166-1 alpha-2 codes of EU member states.
var euCountries = map[string]bool{
	"at": true, "be": true, "bg": true, "hr": true, "cy": true, "cz": true,
	"dk": true, "ee": true, "fi": true, "fr": true, "de": true, "gr": true,
	"hu": true, "ie": true, "it": true, "lv": true, "lt": true, "lu": true,
	"mt": true, "nl": true, "pl": true, "pt": true, "ro": true, "sk": true,
	"si": true, "es": true, "se": true,
}

// InEuropeanUnion reports whether the ISO 3166-1 alpha-2 country code is an EU member.
func InEuropeanUnion(country string) bool {
	return euCountries[normalizeKey(country)]
}

// LocationRecord is one facility loaded from a reference file.
// Records are immutable once the loader hands them to the Index.
type LocationRecord struct {
	point        Point
	name         string
	country      string
	subdivision  string
	inEU         bool
	kind         Kind
	serviceClass string
	population   int64
	aliases      []string
	seq          int // load order within the kind, used for stable tie-breaks
}

func newRecord(kind Kind, name string, p Point, country, subdivision string) *LocationRecord {
	country = normalizeKey(country)
	return &LocationRecord{
		kind:        kind,
		name:        name,
		point:       p,
		country:     country,
		subdivision: normalizeKey(subdivision),
		inEU:        InEuropeanUnion(country),
	}
}

// Point returns the record's coordinates.
func (r *LocationRecord) Point() Point { return r.point }

// DisplayName is the label reported back to callers, e.g. "Copenhagen Kastrup Airport (CPH)".
func (r *LocationRecord) DisplayName() string { return r.name }

// CountryCode is the lowercase ISO 3166-1 alpha-2 code, possibly empty.
func (r *LocationRecord) CountryCode() string { return r.country }

// SubdivisionCode is the lowercase region/state code, possibly empty.
func (r *LocationRecord) SubdivisionCode() string { return r.subdivision }

// InEuropeanUnion reports whether the record's country is an EU member state.
func (r *LocationRecord) InEuropeanUnion() bool { return r.inEU }

// Kind returns the facility kind.
func (r *LocationRecord) Kind() Kind { return r.kind }

// ServiceClass is the airport type or port type; empty for cities.
func (r *LocationRecord) ServiceClass() string { return r.serviceClass }

// Population is the city population, zero for facilities.
func (r *LocationRecord) Population() int64 { return r.population }

// AliasKeys returns the normalized keys that map to this record.
func (r *LocationRecord) AliasKeys() []string { return slices.Clone(r.aliases) }

func (r *LocationRecord) String() string {
	return fmt.Sprintf("%s %q (%s) [%.5f, %.5f]", r.kind, r.name, r.country, r.point.Lat, r.point.Lon)
}

// normalizeKey lowercases and trims s. Index keys and queries share it.
func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
