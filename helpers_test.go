package co2bed

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine returns a loaded Engine over the files in testdata/.
func newTestEngine(t testing.TB, opts ...Option) *Engine {
	t.Helper()
	base := []Option{WithDataDir("testdata"), WithLogger(discardLogger())}
	e := New(append(base, opts...)...)
	_, err := e.Load()
	require.NoError(t, err)
	return e
}

// countScans installs a counter on the engine's candidate scans.
func countScans(e *Engine) *int {
	n := new(int)
	e.resolver.scanned = func(Kind) { *n++ }
	return n
}

const (
	miniCities = "Name;ASCII Name;Alternate Names;Country Code;Admin1 Code;Population;Coordinates\n" +
		"Berlin;Berlin;Berlino;DE;16;3426354;52.52437, 13.41053\n"
	miniAirports = "ident,type,name,latitude_deg,longitude_deg,iso_country,iso_region,scheduled_service,icao_code,iata_code\n" +
		"EDDB,large_airport,Berlin Brandenburg Airport,52.351389,13.493889,DE,DE-BR,yes,EDDB,BER\n"
	miniSeaports = "UNLOCODE;name;latitude;longitude;port_type\n" +
		"DEHAM;Port of Hamburg;53.5461;9.9661;commercial\n"
)

func miniReaders() (io.Reader, io.Reader, io.Reader) {
	return strings.NewReader(miniCities), strings.NewReader(miniAirports), strings.NewReader(miniSeaports)
}
