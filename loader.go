package co2bed

import (
	"compress/bzip2"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"
)

// dedupePrecision is the geohash length used to detect duplicate rows.
// Six characters is a cell of roughly 1.2km x 0.6km.
const dedupePrecision = 6

// SourceStats summarizes one reference file load.
type SourceStats struct {
	Rows       int // data rows read, header excluded
	Indexed    int // distinct records kept
	Malformed  int // rows skipped for bad coordinates or a missing name
	Ineligible int // rows filtered out by the airport service filter
	Duplicates int // rows merged into an earlier record
}

// keyRank is one alias of a record. Lower ranks sort first when
// several records share a key.
type keyRank struct {
	key  string
	rank int
}

const (
	rankCode = 0
	rankName = 1
)

type kindBuilder struct {
	records []*LocationRecord
	keys    [][]keyRank // parallel to records
	dedupe  map[string]int
}

// indexBuilder accumulates records from the three sources. It is used by a
// single goroutine and discarded once the Index is built.
type indexBuilder struct {
	cfg   *Config
	kinds [kindCount]*kindBuilder
}

func newIndexBuilder(cfg *Config) *indexBuilder {
	b := &indexBuilder{cfg: cfg}
	for i := range b.kinds {
		b.kinds[i] = &kindBuilder{dedupe: make(map[string]int)}
	}
	return b
}

// buildIndex loads every source through cfg's opener and returns the
// finished Index. Any unreadable source fails the whole build.
func buildIndex(cfg *Config) (*Index, [kindCount]SourceStats, error) {
	var stats [kindCount]SourceStats
	b := newIndexBuilder(cfg)
	for _, kind := range Kinds {
		rc, err := cfg.opener(kind)
		if err != nil {
			return nil, stats, fmt.Errorf("opening %s reference data: %w", kind, err)
		}
		st, err := b.read(kind, rc)
		rc.Close()
		if err != nil {
			return nil, stats, fmt.Errorf("loading %s reference data: %w", kind, err)
		}
		stats[kind] = st
		cfg.Logger.Info("reference data loaded",
			"source", kind.String(),
			"rows", st.Rows,
			"indexed", st.Indexed,
			"skipped_malformed", st.Malformed,
			"skipped_ineligible", st.Ineligible,
			"duplicates", st.Duplicates,
		)
		cfg.Metrics.loaded(kind, st)
	}
	return b.index(), stats, nil
}

// BuildIndex builds an Index from in-memory sources using the given options
// for schemas and eligibility. It is the reader-based counterpart of Engine.Load.
func BuildIndex(cities, airports, seaports io.Reader, opts ...Option) (*Index, error) {
	cfg := newConfig(append(opts, WithReaders(cities, airports, seaports))...)
	ix, _, err := buildIndex(cfg)
	return ix, err
}

func (b *indexBuilder) read(kind Kind, r io.Reader) (SourceStats, error) {
	var st SourceStats
	schema := b.cfg.schema(kind)

	cr := csv.NewReader(r)
	cr.Comma = schema.Delimiter
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return st, errors.New("empty reference file")
	}
	if err != nil {
		return st, fmt.Errorf("reading header: %w", err)
	}
	cols, err := schema.bind(kind.String(), header)
	if err != nil {
		return st, err
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				st.Rows++
				st.Malformed++
				continue
			}
			return st, fmt.Errorf("reading row %d: %w", st.Rows+1, err)
		}
		st.Rows++
		switch kind {
		case KindCity:
			b.addCity(cols, row, &st)
		case KindAirport:
			b.addAirport(cols, row, &st)
		case KindSeaport:
			b.addSeaport(cols, row, &st)
		}
	}
	return st, nil
}

func (b *indexBuilder) addCity(cols columns, row []string, st *SourceStats) {
	name := cols.get(row, FieldName)
	p, ok := parsePoint(cols, row)
	if !ok || name == "" {
		st.Malformed++
		return
	}

	// GeoNames admin1 codes sometimes carry the country prefix ("DE.16").
	sub := cols.get(row, FieldSubdivision)
	if i := strings.LastIndexByte(sub, '.'); i >= 0 {
		sub = sub[i+1:]
	}

	rec := newRecord(KindCity, name, p, cols.get(row, FieldCountry), sub)
	rec.population, _ = strconv.ParseInt(cols.get(row, FieldPopulation), 10, 64)

	keys := []keyRank{{name, rankCode}, {cols.get(row, FieldASCIIName), rankCode}}
	if alt := cols.get(row, FieldAltNames); alt != "" {
		for _, a := range strings.Split(alt, ",") {
			keys = append(keys, keyRank{a, rankCode})
		}
	}

	dk := normalizeKey(name) + "|" + rec.country + "|" + geohash.EncodeWithPrecision(p.Lat, p.Lon, dedupePrecision)
	b.kinds[KindCity].add(rec, keys, dk, st)
}

func (b *indexBuilder) addAirport(cols columns, row []string, st *SourceStats) {
	name := cols.get(row, FieldName)
	p, ok := parsePoint(cols, row)
	if !ok || name == "" {
		st.Malformed++
		return
	}

	class := normalizeKey(cols.get(row, FieldType))
	scheduled := normalizeKey(cols.get(row, FieldScheduled))
	if !b.cfg.airportServiceEligible(class, scheduled, cols.has(FieldScheduled)) {
		st.Ineligible++
		return
	}

	country, sub := splitRegion(cols.get(row, FieldRegion))
	if country == "" {
		country = cols.get(row, FieldCountry)
	}

	iata := strings.ToUpper(cols.get(row, FieldIATA))
	icao := strings.ToUpper(cols.get(row, FieldICAO))
	if icao == "" {
		if ident := strings.ToUpper(cols.get(row, FieldIdent)); looksLikeICAO(ident) {
			icao = ident
		}
	}

	display := name
	switch {
	case iata != "":
		display = fmt.Sprintf("%s (%s)", name, iata)
	case icao != "":
		display = fmt.Sprintf("%s (%s)", name, icao)
	}

	rec := newRecord(KindAirport, display, p, country, sub)
	rec.serviceClass = class

	keys := []keyRank{{iata, rankCode}, {icao, rankCode}, {name, rankName}}
	primary := iata
	if primary == "" {
		primary = icao
	}
	if primary == "" {
		primary = name
	}
	dk := normalizeKey(primary) + "|" + geohash.EncodeWithPrecision(p.Lat, p.Lon, dedupePrecision)
	b.kinds[KindAirport].add(rec, keys, dk, st)
}

func (b *indexBuilder) addSeaport(cols columns, row []string, st *SourceStats) {
	name := cols.get(row, FieldName)
	p, ok := parsePoint(cols, row)
	if !ok || name == "" {
		st.Malformed++
		return
	}

	locode := strings.ToUpper(strings.ReplaceAll(cols.get(row, FieldLocode), " ", ""))
	country := cols.get(row, FieldCountry)
	if country == "" && len(locode) >= 2 {
		country = locode[:2]
	}

	rec := newRecord(KindSeaport, name, p, country, cols.get(row, FieldSubdivision))
	rec.serviceClass = normalizeKey(cols.get(row, FieldType))

	keys := []keyRank{{locode, rankCode}, {spacedLocode(locode), rankCode}, {name, rankName}}
	primary := locode
	if primary == "" {
		primary = name
	}
	dk := normalizeKey(primary) + "|" + geohash.EncodeWithPrecision(p.Lat, p.Lon, dedupePrecision)
	b.kinds[KindSeaport].add(rec, keys, dk, st)
}

// spacedLocode returns the published "CC LLL" form of a compact UN/LOCODE,
// so that both spellings resolve to the same port.
func spacedLocode(locode string) string {
	if len(locode) != 5 {
		return ""
	}
	return locode[:2] + " " + locode[2:]
}

// add stores rec unless a record with the same dedupe key exists. On a
// duplicate the aliases are merged and the more populous record is kept,
// which leaves facilities (population 0) with the first row seen.
func (kb *kindBuilder) add(rec *LocationRecord, keys []keyRank, dedupeKey string, st *SourceStats) {
	keys = compactKeys(keys)
	if i, ok := kb.dedupe[dedupeKey]; ok {
		st.Duplicates++
		if old := kb.records[i]; rec.population > old.population {
			rec.seq = old.seq
			kb.records[i] = rec
		}
		kb.keys[i] = compactKeys(append(kb.keys[i], keys...))
		return
	}
	rec.seq = len(kb.records)
	kb.dedupe[dedupeKey] = rec.seq
	kb.records = append(kb.records, rec)
	kb.keys = append(kb.keys, keys)
	st.Indexed++
}

// compactKeys normalizes keys, drops empties and keeps the lowest rank
// for keys that appear more than once. Order of first appearance is kept.
func compactKeys(keys []keyRank) []keyRank {
	out := make([]keyRank, 0, len(keys))
	seen := make(map[string]int, len(keys))
	for _, k := range keys {
		k.key = normalizeKey(k.key)
		if k.key == "" {
			continue
		}
		if i, ok := seen[k.key]; ok {
			out[i].rank = min(out[i].rank, k.rank)
			continue
		}
		seen[k.key] = len(out)
		out = append(out, k)
	}
	return out
}

func (b *indexBuilder) index() *Index {
	ix := &Index{}
	for _, kind := range Kinds {
		ix.kinds[kind] = b.kinds[kind].build()
	}
	return ix
}

type rankedRecord struct {
	rec  *LocationRecord
	rank int
}

// build turns the accumulated records into a read-only kindIndex. Every
// alias is stored bare and qualified with the record's country ("name,cc").
func (kb *kindBuilder) build() kindIndex {
	buckets := make(map[string][]rankedRecord)
	put := func(key string, rec *LocationRecord, rank int) {
		b := buckets[key]
		// A record's entries are appended during its own iteration, so a
		// repeat can only be the last element.
		if n := len(b); n > 0 && b[n-1].rec == rec {
			b[n-1].rank = min(b[n-1].rank, rank)
			return
		}
		buckets[key] = append(b, rankedRecord{rec, rank})
	}

	for i, rec := range kb.records {
		aliases := make([]string, 0, len(kb.keys[i]))
		for _, k := range kb.keys[i] {
			aliases = append(aliases, k.key)
			put(k.key, rec, k.rank)
			if rec.country != "" {
				put(k.key+","+rec.country, rec, k.rank)
			}
		}
		rec.aliases = aliases
	}

	ki := kindIndex{
		keys: make(map[string][]*LocationRecord, len(buckets)),
		all:  kb.records,
	}
	for key, b := range buckets {
		slices.SortStableFunc(b, func(x, y rankedRecord) int {
			if x.rank != y.rank {
				return x.rank - y.rank
			}
			return compareRecords(x.rec, y.rec)
		})
		recs := make([]*LocationRecord, len(b))
		for i, r := range b {
			recs[i] = r.rec
		}
		ki.keys[key] = recs
	}
	ki.buildCells()
	return ki
}

// compareRecords orders records that share a key: cities by population
// (largest first), airports by service class (large before medium), then
// load order.
func compareRecords(a, b *LocationRecord) int {
	if a.population != b.population {
		if a.population > b.population {
			return -1
		}
		return 1
	}
	if ca, cb := serviceClassRank(a.serviceClass), serviceClassRank(b.serviceClass); ca != cb {
		return ca - cb
	}
	return a.seq - b.seq
}

func serviceClassRank(class string) int {
	switch class {
	case "large_airport":
		return 0
	case "medium_airport":
		return 1
	}
	return 2
}

// parsePoint reads either the combined "lat, lon" column or the
// latitude/longitude pair.
func parsePoint(cols columns, row []string) (Point, bool) {
	var latS, lonS string
	if c := cols.get(row, FieldCoordinates); c != "" {
		parts := strings.Split(c, ",")
		if len(parts) != 2 {
			return Point{}, false
		}
		latS, lonS = parts[0], parts[1]
	} else {
		latS, lonS = cols.get(row, FieldLatitude), cols.get(row, FieldLongitude)
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latS), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(lonS), 64)
	if errLat != nil || errLon != nil {
		return Point{}, false
	}
	p := Point{Lat: lat, Lon: lon}
	return p, p.valid()
}

// splitRegion splits an ISO 3166-2 code such as "DK-84" into country and
// subdivision.
func splitRegion(region string) (string, string) {
	country, sub, _ := strings.Cut(normalizeKey(region), "-")
	return country, sub
}

func looksLikeICAO(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// openReferenceFile opens path, preferring a ".bz2" or ".gz" sibling when
// one exists.
func openReferenceFile(path string) (io.ReadCloser, error) {
	if fh, err := os.Open(path + ".bz2"); err == nil {
		return readCloser{Reader: bzip2.NewReader(fh), close: fh.Close}, nil
	}
	if fh, err := os.Open(path + ".gz"); err == nil {
		zr, err := gzip.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, fmt.Errorf("opening %s.gz: %w", path, err)
		}
		return readCloser{Reader: zr, close: func() error {
			zr.Close()
			return fh.Close()
		}}, nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	return fh, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (rc readCloser) Close() error { return rc.close() }
