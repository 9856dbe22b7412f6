package models

import (
	"fmt"
	"math"
	"time"
)

// TimeRange is the reporting horizon a forecast covers
type TimeRange string

const (
	NextHour    TimeRange = "next-hour"
	NextDay     TimeRange = "next-day"
	NextWeek    TimeRange = "next-week"
	NextMonth   TimeRange = "next-month"
	NextYear    TimeRange = "next-year"
	CurrentYear TimeRange = "current-year"
)

// TimeRanges lists every horizon in display order
var TimeRanges = []TimeRange{NextHour, NextDay, NextWeek, NextMonth, NextYear, CurrentYear}

// ParseTimeRange validates a wire value
func ParseTimeRange(s string) (TimeRange, error) {
	for _, r := range TimeRanges {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown time range %q", s)
}

// Locked reports whether the range is served only by point-in-time model inference.
// Locked ranges cannot be simulated.
func (r TimeRange) Locked() bool {
	return r == NextYear || r == CurrentYear
}

// Unit is MU (MWh x 1000) for the yearly ranges, MW otherwise
func (r TimeRange) Unit() string {
	if r.Locked() {
		return "MU"
	}
	return "MW"
}

// Weather bounds accepted by the predictor
const (
	MinTemperature = 10.0
	MaxTemperature = 50.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
	MinSolarIndex  = 0.0
	MaxSolarIndex  = 1000.0
)

// WeatherParams are the environmental inputs of a simulation
type WeatherParams struct {
	Temperature float64 `json:"temp"`     // °C
	Humidity    float64 `json:"humidity"` // %
	SolarIndex  float64 `json:"solar"`
}

// DefaultWeather seeds the console before the live reading arrives
var DefaultWeather = WeatherParams{Temperature: 30, Humidity: 50, SolarIndex: 500}

// Clamp returns a copy with every field inside its declared bounds
func (w WeatherParams) Clamp() WeatherParams {
	return WeatherParams{
		Temperature: clamp(w.Temperature, MinTemperature, MaxTemperature),
		Humidity:    clamp(w.Humidity, MinHumidity, MaxHumidity),
		SolarIndex:  clamp(w.SolarIndex, MinSolarIndex, MaxSolarIndex),
	}
}

// ForecastPoint is a single labelled prediction
type ForecastPoint struct {
	Time      string   `json:"time"`
	Predicted float64  `json:"predicted"`
	Actual    *float64 `json:"actual,omitempty"`
}

// ForecastSeries is chronologically ordered
type ForecastSeries []ForecastPoint

// Clone returns an independent copy of the series
func (s ForecastSeries) Clone() ForecastSeries {
	if s == nil {
		return nil
	}
	out := make(ForecastSeries, len(s))
	for i, p := range s {
		out[i] = p
		if p.Actual != nil {
			v := *p.Actual
			out[i].Actual = &v
		}
	}
	return out
}

// City is one of the fixed set of cities contributing to the provincial load
type City string

const (
	Mumbai     City = "Mumbai"
	Pune       City = "Pune"
	Nagpur     City = "Nagpur"
	Nashik     City = "Nashik"
	Aurangabad City = "Aurangabad"
	Kolhapur   City = "Kolhapur"
)

// Cities is the fixed city set
var Cities = []City{Mumbai, Pune, Nagpur, Nashik, Aurangabad, Kolhapur}

// DefaultCityWeather matches the predictor's baseline conditions
var DefaultCityWeather = WeatherParams{Temperature: 28, Humidity: 68, SolarIndex: 500}

// ParseCity validates a city name
func ParseCity(s string) (City, error) {
	for _, c := range Cities {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown city %q", s)
}

// Policy bounds
const (
	MinTargetYear = 2025
	MaxTargetYear = 2035
	MinIEXFactor  = 0.5
	MaxIEXFactor  = 2.0
)

// PolicyParams are the macro parameters shared by all cities
type PolicyParams struct {
	TargetYear int     `json:"target_year"`
	IEXFactor  float64 `json:"iex_factor"`
}

// DefaultPolicy is used until the operator edits the macro parameters
var DefaultPolicy = PolicyParams{TargetYear: 2026, IEXFactor: 1.0}

// Clamp returns a copy with every field inside its declared bounds
func (p PolicyParams) Clamp() PolicyParams {
	year := p.TargetYear
	if year < MinTargetYear {
		year = MinTargetYear
	}
	if year > MaxTargetYear {
		year = MaxTargetYear
	}
	return PolicyParams{
		TargetYear: year,
		IEXFactor:  clamp(p.IEXFactor, MinIEXFactor, MaxIEXFactor),
	}
}

// OverloadThresholdMW is the provincial load above which the grid is flagged overloaded
const OverloadThresholdMW = 32000.0

// AggregateResult is the provincial load derived from per-city contributions
type AggregateResult struct {
	TotalMW   float64          `json:"total_mw"`
	Breakdown map[City]float64 `json:"breakdown"`
}

// Overloaded is derived on every read, never stored
func (r AggregateResult) Overloaded() bool {
	return r.TotalMW > OverloadThresholdMW
}

// Sum adds the per-city contributions
func (r AggregateResult) Sum() float64 {
	var total float64
	for _, v := range r.Breakdown {
		total += v
	}
	return total
}

// Clone returns a deep copy; the breakdown map is not shared
func (r AggregateResult) Clone() AggregateResult {
	out := AggregateResult{TotalMW: r.TotalMW}
	if r.Breakdown != nil {
		out.Breakdown = make(map[City]float64, len(r.Breakdown))
		for k, v := range r.Breakdown {
			out.Breakdown[k] = v
		}
	}
	return out
}

// BaselineSnapshot is a frozen aggregate kept for comparison
type BaselineSnapshot struct {
	ID      string          `json:"id"`
	TakenAt time.Time       `json:"taken_at"`
	Result  AggregateResult `json:"result"`
}

// SnapshotDiff is the change of a result relative to a snapshot
type SnapshotDiff struct {
	SnapshotID   string           `json:"snapshot_id"`
	TotalDeltaMW float64          `json:"total_delta_mw"`
	ByCity       map[City]float64 `json:"by_city"`
}

// PublicStatus is the citizen-facing grid status
type PublicStatus struct {
	CurrentMW    float64 `json:"current_mw"`
	CapacityMW   float64 `json:"capacity_mw"`
	LoadPct      float64 `json:"load_pct"`
	IsPeak       bool    `json:"is_peak"`
	IsCritical   bool    `json:"is_critical"`
	RenewablePct float64 `json:"renewable_pct"`
	Weather      struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"weather"`
	Tip          string  `json:"tip"`
	CO2SavedTons float64 `json:"co2_saved_tons"`
	Timestamp    string  `json:"timestamp"`
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
