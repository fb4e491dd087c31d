package co2bed

import (
	"fmt"
)

// ValidationCheck is a known resolution used to smoke-test reference data.
type ValidationCheck struct {
	Identifier  string
	Mode        Mode
	Constraints Constraints
	WantName    string
}

// DefaultValidationChecks are chosen to be unambiguous in the GeoNames,
// OurAirports and UN/LOCODE exports.
var DefaultValidationChecks = []ValidationCheck{
	{"Berlin,de", ModeRoad, Constraints{InEuropeanUnion: true}, "Berlin"},
	{"Copenhagen,dk", ModeRoad, Constraints{InEuropeanUnion: true}, "Copenhagen"},
	{"CPH", ModeAir, Constraints{InEuropeanUnion: true}, "Copenhagen Kastrup Airport (CPH)"},
	{"Copenhagen,dk", ModeAir, Constraints{InEuropeanUnion: true}, "Copenhagen Kastrup Airport (CPH)"},
	{"Hamburg,de", ModeSea, Constraints{InEuropeanUnion: true}, "Port of Hamburg"},
}

// ValidationReport summarizes a successful validation run.
type ValidationReport struct {
	Records [kindCount]int
	Checks  int
}

// Validate loads the reference data and checks that every kind has records
// and every check resolves to the expected facility.
func (e *Engine) Validate(checks []ValidationCheck) (ValidationReport, error) {
	var report ValidationReport
	ix, err := e.Load()
	if err != nil {
		return report, err
	}

	for _, kind := range Kinds {
		n := ix.Len(kind)
		if n == 0 {
			return report, fmt.Errorf("no %s records indexed", kind)
		}
		report.Records[kind] = n
	}

	for _, tc := range checks {
		rec, err := e.Resolve(tc.Identifier, tc.Mode, tc.Constraints)
		if err != nil {
			return report, fmt.Errorf("resolve(%q, %s): %w", tc.Identifier, tc.Mode, err)
		}
		if rec.DisplayName() != tc.WantName {
			return report, fmt.Errorf("resolve(%q, %s) = %q, want %q", tc.Identifier, tc.Mode, rec.DisplayName(), tc.WantName)
		}
		report.Checks++
	}
	return report, nil
}
