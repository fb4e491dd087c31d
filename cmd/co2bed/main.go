// Command co2bed resolves shipment legs against the reference datasets and
// estimates their CO2 emissions.
//
// Usage:
//
//	co2bed calculate [-in legs.json]
//	co2bed resolve -mode air [-eu] [-state ST] "Berlin,DE"
//	co2bed nearest -kind seaport 53.55 9.99
//	co2bed validate
//
// Reference files are read from $CO2BED_DATA_DIR (default ./data).
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andreiashu/co2bed"
	"github.com/andreiashu/co2bed/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

const usage = `usage: co2bed [-metrics-file path] <command> [flags]

commands:
  calculate   price a JSON array of legs read from -in or stdin
  resolve     resolve one location identifier for a mode
  nearest     find the facility closest to a coordinate
  validate    load the reference data and run smoke checks
`

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("co2bed", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	metricsFile := global.String("metrics-file", "", "write Prometheus metrics to this file on exit")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	logger := config.NewLogger(cfg, stderr)

	reg := prometheus.NewRegistry()
	engine := co2bed.New(
		co2bed.WithDataDir(cfg.DataDir),
		co2bed.WithFiles(cfg.CitiesFile, cfg.AirportsFile, cfg.SeaportsFile),
		co2bed.WithRoadDistanceFactor(cfg.RoadDistanceFactor),
		co2bed.WithCacheSize(cfg.CacheSize),
		co2bed.WithWorkers(cfg.Workers),
		co2bed.WithLogger(logger),
		co2bed.WithMetrics(co2bed.NewMetrics(reg)),
	)

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "calculate":
		err = calculate(engine, cmdArgs, stdin, stdout, stderr)
	case "resolve":
		err = resolve(engine, cmdArgs, stdout, stderr)
	case "nearest":
		err = nearest(engine, cmdArgs, stdout, stderr)
	case "validate":
		err = validate(engine, stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		global.Usage()
		return 2
	}

	if *metricsFile != "" {
		if werr := prometheus.WriteToTextfile(*metricsFile, reg); werr != nil {
			logger.Error("writing metrics", "path", *metricsFile, "error", werr)
		}
	}

	var usageErr usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usageErr):
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func calculate(e *co2bed.Engine, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("calculate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "JSON file with the legs (default stdin)")
	if err := fs.Parse(args); err != nil {
		return usageError{err.Error()}
	}

	r := stdin
	if *in != "" {
		fh, err := os.Open(*in)
		if err != nil {
			return err
		}
		defer fh.Close()
		r = fh
	}

	legs, err := co2bed.DecodeLegs(r)
	if err != nil {
		return err
	}
	results, err := e.Calculate(legs)
	if err != nil {
		return err
	}
	return writeJSON(stdout, results)
}

func resolve(e *co2bed.Engine, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	mode := fs.String("mode", "road", "transport mode: road, air or sea")
	eu := fs.Bool("eu", false, "require a facility inside the European Union")
	state := fs.String("state", "", "require a facility in this subdivision")
	if err := fs.Parse(args); err != nil {
		return usageError{err.Error()}
	}
	if fs.NArg() != 1 {
		return usageError{"expected exactly one location identifier"}
	}

	m, err := co2bed.ParseMode(*mode)
	if err != nil {
		return usageError{err.Error()}
	}
	rec, err := e.Resolve(fs.Arg(0), m, co2bed.Constraints{InEuropeanUnion: *eu, SubdivisionCode: *state})
	if err != nil {
		return err
	}
	return writeJSON(stdout, recordView(rec, nil))
}

func nearest(e *co2bed.Engine, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("nearest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	kindName := fs.String("kind", "airport", "facility kind: city, airport or seaport")
	if err := fs.Parse(args); err != nil {
		return usageError{err.Error()}
	}
	if fs.NArg() != 2 {
		return usageError{"expected latitude and longitude"}
	}

	var kind co2bed.Kind
	found := false
	for _, k := range co2bed.Kinds {
		if k.String() == *kindName {
			kind, found = k, true
		}
	}
	if !found {
		return usageError{fmt.Sprintf("unknown kind %q", *kindName)}
	}
	lat, errLat := strconv.ParseFloat(fs.Arg(0), 64)
	lon, errLon := strconv.ParseFloat(fs.Arg(1), 64)
	if errLat != nil || errLon != nil {
		return usageError{"latitude and longitude must be numbers"}
	}

	rec, d, err := e.Nearest(kind, co2bed.Point{Lat: lat, Lon: lon})
	if err != nil {
		return err
	}
	return writeJSON(stdout, recordView(rec, &d))
}

func validate(e *co2bed.Engine, stdout io.Writer) error {
	report, err := e.Validate(co2bed.DefaultValidationChecks)
	if err != nil {
		return err
	}
	for _, k := range co2bed.Kinds {
		st := e.Stats(k)
		fmt.Fprintf(stdout, "%-8s %7d indexed  %6d malformed  %6d ineligible  %6d duplicates\n",
			k, report.Records[k], st.Malformed, st.Ineligible, st.Duplicates)
	}
	fmt.Fprintf(stdout, "%d checks passed\n", report.Checks)
	return nil
}

type recordJSON struct {
	Name            string       `json:"name"`
	Kind            string       `json:"kind"`
	Country         string       `json:"country,omitempty"`
	Subdivision     string       `json:"subdivision,omitempty"`
	InEuropeanUnion bool         `json:"eu"`
	Point           co2bed.Point `json:"point"`
	DistanceKm      *float64     `json:"distance_km,omitempty"`
}

func recordView(rec *co2bed.LocationRecord, distanceKm *float64) recordJSON {
	return recordJSON{
		Name:            rec.DisplayName(),
		Kind:            rec.Kind().String(),
		Country:         rec.CountryCode(),
		Subdivision:     rec.SubdivisionCode(),
		InEuropeanUnion: rec.InEuropeanUnion(),
		Point:           rec.Point(),
		DistanceKm:      distanceKm,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
