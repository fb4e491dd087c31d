package co2bed

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SourceStats(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		kind Kind
		want SourceStats
	}{
		{KindCity, SourceStats{Rows: 15, Indexed: 13, Malformed: 1, Duplicates: 1}},
		{KindAirport, SourceStats{Rows: 16, Indexed: 12, Malformed: 1, Ineligible: 3}},
		{KindSeaport, SourceStats{Rows: 11, Indexed: 9, Malformed: 1, Duplicates: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, e.Stats(tt.kind))
			assert.Equal(t, tt.want.Indexed, e.index.Len(tt.kind))
		})
	}
}

func TestLoad_DuplicateCityKeepsPopulousRow(t *testing.T) {
	e := newTestEngine(t)

	recs := e.index.Lookup(KindCity, "Berlin,DE")
	require.Len(t, recs, 1)
	assert.EqualValues(t, 3426354, recs[0].Population())
	assert.Equal(t, Point{Lat: 52.52437, Lon: 13.41053}, recs[0].Point())
	assert.Contains(t, recs[0].AliasKeys(), "berlino")
}

func TestLoad_DuplicatePortKeepsFirstRow(t *testing.T) {
	e := newTestEngine(t)

	recs := e.index.Lookup(KindSeaport, "deham")
	require.Len(t, recs, 1)
	assert.Equal(t, Point{Lat: 53.5461, Lon: 9.9661}, recs[0].Point())
}

func TestLoad_CollisionOrder(t *testing.T) {
	e := newTestEngine(t)

	berlins := e.index.Lookup(KindCity, "berlin")
	require.Len(t, berlins, 2)
	assert.Equal(t, "de", berlins[0].CountryCode())
	assert.Equal(t, "us", berlins[1].CountryCode())

	springfields := e.index.Lookup(KindCity, "springfield,us")
	require.Len(t, springfields, 2)
	assert.Equal(t, "mo", springfields[0].SubdivisionCode())
	assert.Equal(t, "il", springfields[1].SubdivisionCode())
}

func TestLoad_AirportFields(t *testing.T) {
	e := newTestEngine(t)

	for _, key := range []string{"cph", "EKCH", "cph,dk", "Copenhagen Kastrup Airport"} {
		recs := e.index.Lookup(KindAirport, key)
		require.Len(t, recs, 1, "key=%q", key)
		assert.Equal(t, "Copenhagen Kastrup Airport (CPH)", recs[0].DisplayName())
	}

	rec := e.index.Lookup(KindAirport, "sgf")[0]
	assert.Equal(t, "us", rec.CountryCode())
	assert.Equal(t, "mo", rec.SubdivisionCode())
	assert.Equal(t, "medium_airport", rec.ServiceClass())
	assert.False(t, rec.InEuropeanUnion())

	assert.Empty(t, e.index.Lookup(KindAirport, "txl"))
	assert.Empty(t, e.index.Lookup(KindAirport, "rke"))
	assert.Empty(t, e.index.Lookup(KindAirport, "ekxx"))
}

func TestLoad_SeaportFields(t *testing.T) {
	e := newTestEngine(t)

	rec := e.index.Lookup(KindSeaport, "Port of Rotterdam")[0]
	assert.Equal(t, "nl", rec.CountryCode())
	assert.True(t, rec.InEuropeanUnion())
	assert.Equal(t, "commercial", rec.ServiceClass())

	marina := e.index.Lookup(KindSeaport, "dkhor")
	require.Len(t, marina, 1)
	assert.Equal(t, "marina", marina[0].ServiceClass())
}

func TestLoad_ScheduledServiceOptional(t *testing.T) {
	e := newTestEngine(t, WithScheduledServiceRequired(false))

	assert.Len(t, e.index.Lookup(KindAirport, "txl"), 1)
	assert.Equal(t, 2, e.Stats(KindAirport).Ineligible)
}

func TestLoad_CompressedSource(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"airports.csv", "seaports.csv"} {
		b, err := os.ReadFile(filepath.Join("testdata", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), b, 0o644))
	}

	src, err := os.ReadFile(filepath.Join("testdata", "geonames-all-cities-with-a-population-1000.csv"))
	require.NoError(t, err)
	f, err := os.Create(filepath.Join(dir, "cities.csv.gz"))
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write(src)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	e := New(WithDataDir(dir), WithFiles("cities.csv", "", ""), WithLogger(discardLogger()))
	ix, err := e.Load()
	require.NoError(t, err)
	assert.Equal(t, 13, ix.Len(KindCity))
}

func TestLoad_MissingFile(t *testing.T) {
	e := New(WithDataDir(t.TempDir()), WithLogger(discardLogger()))
	_, err := e.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Contains(t, err.Error(), "opening city reference data")
}

func TestBuildIndex_Errors(t *testing.T) {
	tests := []struct {
		name     string
		cities   string
		wantIs   error
		wantText string
	}{
		{
			name:     "empty file",
			cities:   "",
			wantText: "loading city reference data: empty reference file",
		},
		{
			name:     "missing columns",
			cities:   "Geoname ID;Population\n1;10\n",
			wantIs:   ErrMissingColumns,
			wantText: "city: missing required columns: Coordinates, Name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, a, s := miniReaders()
			_, err := BuildIndex(strings.NewReader(tt.cities), a, s, WithLogger(discardLogger()))
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			assert.Contains(t, err.Error(), tt.wantText)
		})
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestBuildIndex_ReadError(t *testing.T) {
	boom := errors.New("disk on fire")
	c, _, s := miniReaders()
	_, err := BuildIndex(c, io.MultiReader(strings.NewReader(miniAirports), failingReader{boom}), s,
		WithLogger(discardLogger()))
	assert.ErrorIs(t, err, boom)
}

func TestBuildIndex_CustomSchema(t *testing.T) {
	cities := "city|country|lat|lng\nAarhus|DK|56.15674|10.21076\n"
	schema := Schema{
		Delimiter: '|',
		Columns: map[Field]string{
			FieldName:      "city",
			FieldCountry:   "country",
			FieldLatitude:  "lat",
			FieldLongitude: "lng",
		},
		Required: []Field{FieldName},
	}
	_, a, s := miniReaders()
	ix, err := BuildIndex(strings.NewReader(cities), a, s,
		WithSchema(KindCity, schema), WithLogger(discardLogger()))
	require.NoError(t, err)

	recs := ix.Lookup(KindCity, "aarhus,dk")
	require.Len(t, recs, 1)
	assert.Equal(t, Point{Lat: 56.15674, Lon: 10.21076}, recs[0].Point())
}

func TestSplitRegion(t *testing.T) {
	tests := []struct{ in, country, sub string }{
		{"DK-84", "dk", "84"},
		{"US-IL", "us", "il"},
		{"GB-ENG", "gb", "eng"},
		{"", "", ""},
		{"DE", "de", ""},
	}
	for _, tt := range tests {
		country, sub := splitRegion(tt.in)
		if country != tt.country || sub != tt.sub {
			t.Errorf("splitRegion(%q) = %q, %q, want %q, %q", tt.in, country, sub, tt.country, tt.sub)
		}
	}
}

func TestLooksLikeICAO(t *testing.T) {
	tests := map[string]bool{
		"EKCH":    true,
		"K3N4":    true,
		"CPH":     false,
		"DK-0001": false,
		"ek-h":    false,
	}
	for in, want := range tests {
		if got := looksLikeICAO(in); got != want {
			t.Errorf("looksLikeICAO(%q) = %v, want %v", in, got, want)
		}
	}
}
