package co2bed

// emissionFactors are kilograms of CO2 per tonne-kilometer.
var emissionFactors = map[Mode]float64{
	ModeRoad: 0.120,
	ModeAir:  0.255,
	ModeSea:  0.025,
}

// EmissionFactor returns the kg CO2 per tonne-km for mode. Unknown modes
// have a factor of 0.
func EmissionFactor(mode Mode) float64 {
	return emissionFactors[mode]
}

// EstimateEmissionsKg returns the CO2 mass in kilograms for moving weightKg
// over distanceKm. An unknown mode yields 0 rather than an error; Resolve
// is where unknown modes are rejected.
func EstimateEmissionsKg(distanceKm, weightKg float64, mode Mode) float64 {
	return distanceKm * (weightKg / 1000) * EmissionFactor(mode)
}
