package co2bed

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, matched with errors.Is.
var (
	// ErrInvalidMode is returned when a mode is not road, air or sea.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrUnresolvableReference is returned when no city matches the identifier.
	ErrUnresolvableReference = errors.New("unresolvable reference city")
	// ErrNoEligibleFacility is returned when no facility passes the mode and jurisdiction filters.
	ErrNoEligibleFacility = errors.New("no eligible facility")
	// ErrMalformedIdentifier is returned for missing or mistyped leg fields.
	ErrMalformedIdentifier = errors.New("malformed identifier")
	// ErrMissingColumns is returned when a reference file lacks required columns.
	ErrMissingColumns = errors.New("missing required columns")
)

// MissingColumnsError lists the required columns a reference file header lacks.
type MissingColumnsError struct {
	Source  string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Source, ErrMissingColumns, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Is(target error) bool {
	return target == ErrMissingColumns
}
