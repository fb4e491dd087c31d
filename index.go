package co2bed

import (
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/golang/geo/s2"
)

// facilityCellLevel is the S2 level of the per-kind spatial index used by
// Nearest. Level 6 cells are roughly 150km across, which keeps the sparse
// airport and seaport sets to a handful of records per neighborhood.
const facilityCellLevel = 6

// maxSuggestDistance caps the edit distance Suggest accepts, bounding the
// cost of the key scan.
const maxSuggestDistance = 3

// Index holds one lookup table per facility kind. It is read-only after
// construction and safe for concurrent use without locking.
type Index struct {
	kinds [kindCount]kindIndex
}

type kindIndex struct {
	keys  map[string][]*LocationRecord // normalized alias -> records, best first
	all   []*LocationRecord            // load order
	cells map[s2.CellID][]int          // S2 cell -> positions in all
}

func (ix *Index) kind(k Kind) *kindIndex {
	if ix == nil || int(k) >= kindCount {
		return nil
	}
	return &ix.kinds[k]
}

// Lookup returns the records indexed under key for the given kind, best
// first. The key is normalized before lookup; "name" and "name,cc" forms
// are both indexed.
func (ix *Index) Lookup(kind Kind, key string) []*LocationRecord {
	return slices.Clone(ix.lookup(kind, normalizeKey(key)))
}

// lookup is Lookup without the copy; callers must not modify the result.
func (ix *Index) lookup(kind Kind, key string) []*LocationRecord {
	ki := ix.kind(kind)
	if ki == nil {
		return nil
	}
	return ki.keys[key]
}

// All returns every record of the kind in load order.
func (ix *Index) All(kind Kind) []*LocationRecord {
	ki := ix.kind(kind)
	if ki == nil {
		return nil
	}
	return slices.Clone(ki.all)
}

// Len returns the number of records of the kind.
func (ix *Index) Len(kind Kind) int {
	ki := ix.kind(kind)
	if ki == nil {
		return 0
	}
	return len(ki.all)
}

// KeyCount returns the number of distinct lookup keys of the kind.
func (ix *Index) KeyCount(kind Kind) int {
	ki := ix.kind(kind)
	if ki == nil {
		return 0
	}
	return len(ki.keys)
}

func (ki *kindIndex) buildCells() {
	ki.cells = make(map[s2.CellID][]int)
	for i, rec := range ki.all {
		cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(rec.point.Lat, rec.point.Lon)).Parent(facilityCellLevel)
		ki.cells[cell] = append(ki.cells[cell], i)
	}
}

// cellAndNeighbors returns the cell followed by the cells sharing an edge
// or a vertex with it: the 3x3 block around it, fewer at a face vertex.
func cellAndNeighbors(cell s2.CellID) []s2.CellID {
	cells := make([]s2.CellID, 0, 9)
	cells = append(cells, cell)
	for _, n := range cell.AllNeighbors(cell.Level()) {
		if !slices.Contains(cells, n) {
			cells = append(cells, n)
		}
	}
	return cells
}

// Nearest returns the record of the kind closest to p among those accepted
// by keep (nil accepts all), with its distance in kilometers.
//
// The search looks at the S2 cell containing p and its neighbors first and
// only scans the whole kind when that neighborhood has no accepted record,
// so a closer record just outside the neighborhood can be missed. Resolve
// does not use it; it always scans every candidate.
func (ix *Index) Nearest(kind Kind, p Point, keep func(*LocationRecord) bool) (*LocationRecord, float64, bool) {
	ki := ix.kind(kind)
	if ki == nil || math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || !p.valid() {
		return nil, 0, false
	}

	var (
		best  *LocationRecord
		bestD = math.Inf(1)
	)
	consider := func(rec *LocationRecord) {
		if keep != nil && !keep(rec) {
			return
		}
		d := GreatCircleDistanceKm(p, rec.point)
		if d < bestD || (d == bestD && best != nil && rec.seq < best.seq) {
			best, bestD = rec, d
		}
	}

	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon)).Parent(facilityCellLevel)
	for _, c := range cellAndNeighbors(cell) {
		for _, i := range ki.cells[c] {
			consider(ki.all[i])
		}
	}
	if best == nil {
		for _, rec := range ki.all {
			consider(rec)
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return best, bestD, true
}

// Suggest returns the unqualified key of the kind closest to query by edit
// distance, if one is within maxDist. Ties go to the lexicographically
// smaller key. Exact matches are not suggestions.
func (ix *Index) Suggest(kind Kind, query string, maxDist int) (string, bool) {
	ki := ix.kind(kind)
	q := normalizeKey(query)
	if ki == nil || q == "" || maxDist <= 0 {
		return "", false
	}
	if maxDist > maxSuggestDistance {
		maxDist = maxSuggestDistance
	}

	qLen := utf8.RuneCountInString(q)
	best, bestD := "", maxDist+1
	for key := range ki.keys {
		if strings.ContainsRune(key, ',') {
			continue
		}
		if diff := utf8.RuneCountInString(key) - qLen; diff > maxDist || -diff > maxDist {
			continue
		}
		d := levenshtein.ComputeDistance(q, key)
		if d == 0 {
			continue
		}
		if d < bestD || (d == bestD && key < best) {
			best, bestD = key, d
		}
	}
	return best, best != ""
}
