package co2bed

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/bluele/gcache"
)

// Constraints restrict which facilities a resolution may return.
type Constraints struct {
	InEuropeanUnion bool
	SubdivisionCode string // optional, lowercase region/state code
}

// Identifier is a parsed location query: "name", "name,CC" or "name,CC,ST".
type Identifier struct {
	Name        string
	Country     string
	Subdivision string
}

// ParseIdentifier splits raw on commas and normalizes each part.
func ParseIdentifier(raw string) (Identifier, error) {
	parts := strings.Split(raw, ",")
	id := Identifier{Name: normalizeKey(parts[0])}
	if len(parts) > 1 {
		id.Country = normalizeKey(parts[1])
	}
	if len(parts) > 2 {
		id.Subdivision = normalizeKey(parts[2])
	}
	if id.Name == "" {
		return id, fmt.Errorf("%w: no location name in %q", ErrMalformedIdentifier, raw)
	}
	return id, nil
}

// Key is the index key for the identifier: "name,cc" when a country was
// given, otherwise "name".
func (id Identifier) Key() string {
	if id.Country != "" {
		return id.Name + "," + id.Country
	}
	return id.Name
}

// Stage is the resolution step that produced a record.
type Stage uint8

const (
	StageExact Stage = iota
	StageNearest
	StageNearestRelaxed
)

func (s Stage) String() string {
	switch s {
	case StageExact:
		return "exact"
	case StageNearest:
		return "nearest"
	case StageNearestRelaxed:
		return "nearest_relaxed"
	}
	return "unknown"
}

// Resolver turns location identifiers into facility records. It only reads
// the Index and is safe for concurrent use.
type Resolver struct {
	index           *Index
	airportClasses  map[string]bool
	seaportClasses  map[string]bool
	suggestDistance int
	cache           gcache.Cache
	metrics         *Metrics
	logger          *slog.Logger

	// scanned is called every time the candidate set of a kind is scanned.
	scanned func(Kind)
}

// NewResolver returns a Resolver over ix configured by opts.
func NewResolver(ix *Index, opts ...Option) *Resolver {
	return newResolver(ix, newConfig(opts...))
}

func newResolver(ix *Index, cfg *Config) *Resolver {
	r := &Resolver{
		index:           ix,
		airportClasses:  toSet(cfg.AirportClasses),
		seaportClasses:  toSet(cfg.SeaportClasses),
		suggestDistance: cfg.SuggestDistance,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}
	if cfg.CacheSize > 0 {
		r.cache = gcache.New(cfg.CacheSize).LRU().Build()
	}
	return r
}

// Resolve returns the facility for raw under mode and constraints: an
// exact index match if one is eligible, otherwise the eligible facility
// nearest to the city raw names.
func (r *Resolver) Resolve(raw string, mode Mode, c Constraints) (*LocationRecord, error) {
	kind, ok := mode.Kind()
	if !ok {
		return nil, fmt.Errorf("%w: %q (want road, air or sea)", ErrInvalidMode, string(mode))
	}
	id, err := ParseIdentifier(raw)
	if err != nil {
		return nil, err
	}
	c.SubdivisionCode = normalizeKey(c.SubdivisionCode)

	cacheKey := resolutionKey{mode: mode, key: id.Key(), subdivision: id.Subdivision, constraints: c}
	if r.cache != nil {
		if v, err := r.cache.Get(cacheKey); err == nil {
			r.metrics.cacheLookup(true)
			return v.(*LocationRecord), nil
		}
		r.metrics.cacheLookup(false)
	}

	rec, stage, err := r.resolve(raw, id, kind, c)
	if err != nil {
		r.metrics.resolution(mode, "error")
		r.logger.Debug("resolution failed", "input", raw, "mode", string(mode), "error", err)
		return nil, err
	}
	r.metrics.resolution(mode, stage.String())
	r.logger.Debug("resolved location",
		"input", raw,
		"mode", string(mode),
		"stage", stage.String(),
		"used", rec.name,
	)
	if r.cache != nil {
		_ = r.cache.Set(cacheKey, rec)
	}
	return rec, nil
}

// resolutionKey identifies a cached resolution.
type resolutionKey struct {
	mode        Mode
	key         string
	subdivision string
	constraints Constraints
}

func (r *Resolver) resolve(raw string, id Identifier, kind Kind, c Constraints) (*LocationRecord, Stage, error) {
	keep := r.filter(kind, c.InEuropeanUnion, c.SubdivisionCode)
	key := id.Key()

	if rec := preferred(r.index.lookup(kind, key), id.Subdivision, keep); rec != nil {
		return rec, StageExact, nil
	}

	ref := preferred(r.index.lookup(KindCity, key), id.Subdivision, nil)
	if ref == nil {
		return nil, 0, r.unresolvable(raw, id)
	}

	if rec := r.nearest(kind, ref.point, keep); rec != nil {
		return rec, StageNearest, nil
	}
	if kind == KindSeaport && c.SubdivisionCode != "" {
		if rec := r.nearest(kind, ref.point, r.filter(kind, c.InEuropeanUnion, "")); rec != nil {
			return rec, StageNearestRelaxed, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: no %s facilities for %q with eu=%t",
		ErrNoEligibleFacility, kind, raw, c.InEuropeanUnion)
}

// filter returns the eligibility and jurisdiction predicate for kind.
func (r *Resolver) filter(kind Kind, inEU bool, subdivision string) func(*LocationRecord) bool {
	return func(rec *LocationRecord) bool {
		return r.eligible(rec) &&
			rec.inEU == inEU &&
			(subdivision == "" || rec.subdivision == subdivision)
	}
}

func (r *Resolver) eligible(rec *LocationRecord) bool {
	switch rec.kind {
	case KindAirport:
		return r.airportClasses[rec.serviceClass]
	case KindSeaport:
		return r.seaportClasses[rec.serviceClass]
	}
	return true
}

// nearest scans every record of kind in load order and returns the accepted
// one closest to p. Ties keep the first record seen.
func (r *Resolver) nearest(kind Kind, p Point, keep func(*LocationRecord) bool) *LocationRecord {
	if r.scanned != nil {
		r.scanned(kind)
	}
	var (
		best  *LocationRecord
		bestD = math.Inf(1)
	)
	for _, rec := range r.index.kinds[kind].all {
		if !keep(rec) {
			continue
		}
		if d := GreatCircleDistanceKm(p, rec.point); d < bestD {
			best, bestD = rec, d
		}
	}
	return best
}

func (r *Resolver) unresolvable(raw string, id Identifier) error {
	if s, ok := r.index.Suggest(KindCity, id.Name, r.suggestDistance); ok {
		return fmt.Errorf("%w: %q not found as a city, use \"City,CC\" format (did you mean %q?)",
			ErrUnresolvableReference, raw, s)
	}
	return fmt.Errorf("%w: %q not found as a city, use \"City,CC\" format", ErrUnresolvableReference, raw)
}

// preferred returns the first accepted record, favoring one in subdivision
// when the query named it. keep may be nil.
func preferred(recs []*LocationRecord, subdivision string, keep func(*LocationRecord) bool) *LocationRecord {
	accept := func(rec *LocationRecord) bool { return keep == nil || keep(rec) }
	if subdivision != "" {
		for _, rec := range recs {
			if rec.subdivision == subdivision && accept(rec) {
				return rec
			}
		}
	}
	for _, rec := range recs {
		if accept(rec) {
			return rec
		}
	}
	return nil
}

func toSet(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[normalizeKey(v)] = true
	}
	return m
}
