package console

import (
	"math"

	"gridcast/internal/models"
)

// Demand sensitivities of the local approximation, per unit of change from the
// initial reading. Humidity is expressed per 10 %.
const (
	TempSensitivity     = 2.1
	HumiditySensitivity = 1.5
	SolarSensitivity    = -0.005
)

// FallbackDelta is the demand shift implied by moving from initial to current weather.
// Higher temperature raises demand, a higher solar index lowers it.
func FallbackDelta(initial, current models.WeatherParams) float64 {
	initial, current = initial.Clamp(), current.Clamp()
	dTemp := (current.Temperature - initial.Temperature) * TempSensitivity
	dHumid := (current.Humidity - initial.Humidity) / 10 * HumiditySensitivity
	dSolar := (current.SolarIndex - initial.SolarIndex) * SolarSensitivity
	return dTemp + dHumid + dSolar
}

// ApplyFallback perturbs an already displayed series in place of a predictor call.
// It never recomputes from scratch: the input series is the baseline.
func ApplyFallback(series models.ForecastSeries, initial, current models.WeatherParams) models.ForecastSeries {
	delta := FallbackDelta(initial, current)
	out := series.Clone()
	if out == nil {
		return models.ForecastSeries{}
	}
	for i := range out {
		out[i].Predicted = roundHalfUp(out[i].Predicted + delta)
	}
	return out
}

// roundHalfUp rounds .5 towards positive infinity
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
