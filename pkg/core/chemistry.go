package core

import "math"

// Physical constants
const (
	ZeroCelsius = 273.15 // K

	// Practical ranges for the empirical sulfide equilibrium polynomial
	MinTemperatureC = -2.0
	MaxTemperatureC = 40.0
	MaxSalinity     = 42.0 // per mille
)

// CelsiusToKelvin converts a temperature in °C to K
func CelsiusToKelvin(c float64) float64 {
	return c + ZeroCelsius
}

// KelvinToCelsius converts a temperature in K to °C
func KelvinToCelsius(k float64) float64 {
	return k - ZeroCelsius
}

// PHToActivity returns the hydrogen ion activity 10^(-pH)
func PHToActivity(pH float64) float64 {
	return math.Pow(10, -pH)
}

// RoundFloat rounds a float to n decimal places
func RoundFloat(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
