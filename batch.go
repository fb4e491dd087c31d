package co2bed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
)

// Leg is one entry of a batch calculation request.
type Leg struct {
	FromLocation string  `json:"from_location"`
	ToLocation   string  `json:"to_location"`
	Mode         string  `json:"mode"`
	WeightKg     float64 `json:"weight_kg"`
	EU           bool    `json:"eu"`
	State        string  `json:"state,omitempty"`

	err error // set by DecodeLegs when the element was malformed
}

// Result is the outcome of one leg. A successful row carries the used
// names, distance and CO2; a failed row carries only Error.
type Result struct {
	FromInput  string   `json:"from_input"`
	FromUsed   string   `json:"from_used,omitempty"`
	ToInput    string   `json:"to_input"`
	ToUsed     string   `json:"to_used,omitempty"`
	Mode       string   `json:"mode"`
	WeightKg   float64  `json:"weight_kg"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
	CO2Kg      *float64 `json:"co2_kg,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Failed reports whether the row is an error row.
func (r Result) Failed() bool { return r.Error != "" }

// DecodeLegs reads a JSON array of legs. Only a body that is not a single array
// is an error; each malformed element becomes a leg that Calculate reports
// as an error row, so one bad leg never rejects the batch.
func DecodeLegs(r io.Reader) ([]Leg, error) {
	dec := json.NewDecoder(r)
	var raw []json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: batch must be a JSON array of legs: %v", ErrMalformedIdentifier, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: batch must be a single JSON array of legs", ErrMalformedIdentifier)
	}
	legs := make([]Leg, len(raw))
	for i, m := range raw {
		legs[i] = decodeLeg(m)
	}
	return legs, nil
}

func decodeLeg(m json.RawMessage) Leg {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(m, &fields); err != nil || fields == nil {
		return Leg{err: fmt.Errorf("%w: leg must be a JSON object", ErrMalformedIdentifier)}
	}

	var (
		leg      Leg
		problems []string
	)
	check := func(problem string) {
		if problem != "" {
			problems = append(problems, problem)
		}
	}
	check(stringField(fields, "from_location", &leg.FromLocation, true))
	check(stringField(fields, "to_location", &leg.ToLocation, true))
	check(stringField(fields, "mode", &leg.Mode, true))
	check(stringField(fields, "state", &leg.State, false))

	if v, ok := present(fields, "weight_kg"); !ok {
		check(`"weight_kg" is required`)
	} else if err := json.Unmarshal(v, &leg.WeightKg); err != nil || leg.WeightKg < 0 {
		check(`"weight_kg" must be a non-negative number`)
	}

	if v, ok := present(fields, "eu"); !ok {
		check(`"eu" is required`)
	} else if err := json.Unmarshal(v, &leg.EU); err != nil {
		check(`"eu" must be a boolean`)
	}

	if len(problems) > 0 {
		leg.err = fmt.Errorf("%w: %s", ErrMalformedIdentifier, strings.Join(problems, "; "))
	}
	return leg
}

func present(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	v, ok := fields[name]
	if !ok || string(v) == "null" {
		return nil, false
	}
	return v, true
}

// stringField decodes fields[name] into dst and returns a problem
// description, or "" if the field is fine. A value of the wrong type is
// kept verbatim in dst so error rows can still echo the input.
func stringField(fields map[string]json.RawMessage, name string, dst *string, required bool) string {
	v, ok := present(fields, name)
	if !ok {
		if required {
			return fmt.Sprintf("%q is required", name)
		}
		return ""
	}
	if err := json.Unmarshal(v, dst); err != nil {
		*dst = string(v)
		return fmt.Sprintf("%q must be a string", name)
	}
	return ""
}

// Calculate resolves and prices every leg. Legs fail independently and
// results keep input order; the only error is a failed index load.
func (e *Engine) Calculate(legs []Leg) ([]Result, error) {
	if _, err := e.Load(); err != nil {
		return nil, err
	}

	results := make([]Result, len(legs))
	workers := min(max(e.cfg.Workers, 1), len(legs))
	if workers <= 1 {
		for i := range legs {
			results[i] = e.calculateLeg(legs[i])
		}
		return results, nil
	}

	next := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				results[i] = e.calculateLeg(legs[i])
			}
		}()
	}
	for i := range legs {
		next <- i
	}
	close(next)
	wg.Wait()
	return results, nil
}

// CalculateLeg resolves and prices a single leg.
func (e *Engine) CalculateLeg(leg Leg) (Result, error) {
	if _, err := e.Load(); err != nil {
		return Result{}, err
	}
	return e.calculateLeg(leg), nil
}

func (e *Engine) calculateLeg(leg Leg) Result {
	res := Result{
		FromInput: leg.FromLocation,
		ToInput:   leg.ToLocation,
		Mode:      leg.Mode,
		WeightKg:  leg.WeightKg,
	}

	from, to, mode, err := e.resolveLeg(leg)
	e.cfg.Metrics.leg(err)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	dist := e.DistanceKm(from.point, to.point, mode)
	co2 := EstimateEmissionsKg(dist, leg.WeightKg, mode)
	res.FromUsed = from.name
	res.ToUsed = to.name
	res.DistanceKm = ptr(round(dist, 2))
	res.CO2Kg = ptr(round(co2, 3))
	return res
}

func (e *Engine) resolveLeg(leg Leg) (from, to *LocationRecord, mode Mode, err error) {
	if leg.err != nil {
		return nil, nil, "", leg.err
	}
	if math.IsNaN(leg.WeightKg) || math.IsInf(leg.WeightKg, 0) || leg.WeightKg < 0 {
		return nil, nil, "", fmt.Errorf("%w: weight_kg must be a non-negative number", ErrMalformedIdentifier)
	}
	mode, err = ParseMode(leg.Mode)
	if err != nil {
		return nil, nil, "", err
	}
	c := Constraints{InEuropeanUnion: leg.EU, SubdivisionCode: leg.State}
	if from, err = e.resolver.Resolve(leg.FromLocation, mode, c); err != nil {
		return nil, nil, "", err
	}
	if to, err = e.resolver.Resolve(leg.ToLocation, mode, c); err != nil {
		return nil, nil, "", err
	}
	return from, to, mode, nil
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

func ptr[T any](v T) *T { return &v }
