package co2bed

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate_PartialFailureKeepsOrder(t *testing.T) {
	e := newTestEngine(t)
	legs := []Leg{
		{FromLocation: "Copenhagen,dk", ToLocation: "Berlin,de", Mode: "road", WeightKg: 1000, EU: true},
		{FromLocation: "Atlantis", ToLocation: "Berlin,de", Mode: "road", WeightKg: 1000, EU: true},
		{FromLocation: "Hamburg,de", ToLocation: "Rotterdam,nl", Mode: "sea", WeightKg: 2000, EU: true},
	}

	results, err := e.Calculate(legs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	road := results[0]
	assert.False(t, road.Failed())
	assert.Equal(t, "Copenhagen,dk", road.FromInput)
	assert.Equal(t, "Copenhagen", road.FromUsed)
	assert.Equal(t, "Berlin", road.ToUsed)
	require.NotNil(t, road.DistanceKm)
	assert.InDelta(t, 354.74, *road.DistanceKm, 0.05)
	assert.InDelta(t, 42.569, *road.CO2Kg, 0.01)

	failed := results[1]
	assert.True(t, failed.Failed())
	assert.Equal(t, "Atlantis", failed.FromInput)
	assert.Contains(t, failed.Error, "unresolvable reference city")
	assert.Nil(t, failed.DistanceKm)
	assert.Nil(t, failed.CO2Kg)
	assert.Empty(t, failed.FromUsed)

	sea := results[2]
	assert.False(t, sea.Failed())
	assert.Equal(t, "Port of Hamburg", sea.FromUsed)
	assert.Equal(t, "Port of Rotterdam", sea.ToUsed)
	assert.InDelta(t, 430.68, *sea.DistanceKm, 0.05)
	assert.InDelta(t, 21.534, *sea.CO2Kg, 0.01)
}

func TestCalculate_RoundsOutput(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.CalculateLeg(Leg{FromLocation: "CPH", ToLocation: "Berlin,de", Mode: "AIR", WeightKg: 1234, EU: true})
	require.NoError(t, err)
	require.False(t, res.Failed(), res.Error)

	assert.Equal(t, "Copenhagen Kastrup Airport (CPH)", res.FromUsed)
	assert.Equal(t, "Berlin Brandenburg Airport (BER)", res.ToUsed)
	assert.Equal(t, round(*res.DistanceKm, 2), *res.DistanceKm)
	assert.Equal(t, round(*res.CO2Kg, 3), *res.CO2Kg)
}

func TestCalculate_Workers(t *testing.T) {
	serial := newTestEngine(t)
	parallel := newTestEngine(t, WithWorkers(4))

	var legs []Leg
	for _, from := range []string{"Copenhagen,dk", "Berlin,de", "Hamburg,de", "Munich,de", "Paris,fr", "Nowhere", "Aarhus,dk"} {
		for _, mode := range []string{"road", "air", "sea", "rail"} {
			legs = append(legs, Leg{FromLocation: from, ToLocation: "Rotterdam,nl", Mode: mode, WeightKg: 500, EU: true})
		}
	}

	want, err := serial.Calculate(legs)
	require.NoError(t, err)
	got, err := parallel.Calculate(legs)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	empty, err := parallel.Calculate(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCalculate_LegErrors(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		leg  Leg
		want string
	}{
		{"invalid mode", Leg{FromLocation: "Berlin,de", ToLocation: "Hamburg,de", Mode: "rail", WeightKg: 1}, "invalid mode"},
		{"negative weight", Leg{FromLocation: "Berlin,de", ToLocation: "Hamburg,de", Mode: "road", WeightKg: -1}, "weight_kg must be a non-negative number"},
		{"empty origin", Leg{FromLocation: " ", ToLocation: "Hamburg,de", Mode: "road", WeightKg: 1}, "malformed identifier"},
		{"no eligible facility", Leg{FromLocation: "Oslo,no", ToLocation: "Berlin,de", Mode: "road", WeightKg: 1, EU: true, State: "zz"}, "no eligible facility"},
		{"unresolvable destination", Leg{FromLocation: "Berlin,de", ToLocation: "Berlinn", Mode: "air", WeightKg: 1, EU: true}, `did you mean "berlin"?`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.CalculateLeg(tt.leg)
			require.NoError(t, err)
			assert.True(t, res.Failed())
			assert.Contains(t, res.Error, tt.want)
		})
	}
}

func TestDecodeLegs(t *testing.T) {
	body := `[
		{"from_location": "Copenhagen,dk", "to_location": "Berlin,de", "mode": "road", "weight_kg": 1000, "eu": true},
		{"from_location": 42, "to_location": "Berlin,de", "mode": "road", "weight_kg": 1000, "eu": true},
		{"from_location": "Berlin,de", "to_location": "Hamburg,de", "mode": "road", "weight_kg": "heavy", "eu": "yes"},
		{"to_location": "Hamburg,de", "mode": "road", "weight_kg": 1, "eu": false, "state": "hh"},
		"not a leg"
	]`
	legs, err := DecodeLegs(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, legs, 5)

	assert.NoError(t, legs[0].err)
	assert.Equal(t, Leg{FromLocation: "Copenhagen,dk", ToLocation: "Berlin,de", Mode: "road", WeightKg: 1000, EU: true}, legs[0])

	assert.ErrorIs(t, legs[1].err, ErrMalformedIdentifier)
	assert.Equal(t, "42", legs[1].FromLocation)
	assert.Contains(t, legs[1].err.Error(), `"from_location" must be a string`)

	assert.Contains(t, legs[2].err.Error(), `"weight_kg" must be a non-negative number; "eu" must be a boolean`)

	assert.Contains(t, legs[3].err.Error(), `"from_location" is required`)
	assert.Equal(t, "hh", legs[3].State)

	assert.ErrorIs(t, legs[4].err, ErrMalformedIdentifier)

	e := newTestEngine(t)
	results, err := e.Calculate(legs)
	require.NoError(t, err)
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	assert.Equal(t, 4, failed)
	assert.Equal(t, "42", results[1].FromInput)
}

func TestDecodeLegs_NotAnArray(t *testing.T) {
	for _, body := range []string{
		`{"from_location": "Berlin"}`,
		`nope`,
		``,
		`[{"from_location": "Berlin"}] junk`,
		`[] []`,
	} {
		_, err := DecodeLegs(strings.NewReader(body))
		assert.ErrorIs(t, err, ErrMalformedIdentifier, "body=%q", body)
	}

	legs, err := DecodeLegs(strings.NewReader("[{\"from_location\": \"Berlin\"}]\n\n"))
	require.NoError(t, err)
	assert.Len(t, legs, 1)
}

func TestResult_JSON(t *testing.T) {
	ok := Result{FromInput: "CPH", FromUsed: "Copenhagen Kastrup Airport (CPH)", ToInput: "BER", ToUsed: "Berlin Brandenburg Airport (BER)",
		Mode: "air", WeightKg: 10, DistanceKm: ptr(355.15), CO2Kg: ptr(0.906)}
	b, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"from_input":"CPH","from_used":"Copenhagen Kastrup Airport (CPH)","to_input":"BER",
		"to_used":"Berlin Brandenburg Airport (BER)","mode":"air","weight_kg":10,"distance_km":355.15,"co2_kg":0.906}`, string(b))

	failed := Result{FromInput: "Atlantis", ToInput: "BER", Mode: "air", WeightKg: 10, Error: "boom"}
	b, err = json.Marshal(failed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"from_input":"Atlantis","to_input":"BER","mode":"air","weight_kg":10,"error":"boom"}`, string(b))
}
