package console

import (
	"testing"

	"gridcast/internal/models"
)

func series(values ...float64) models.ForecastSeries {
	out := make(models.ForecastSeries, len(values))
	for i, v := range values {
		out[i] = models.ForecastPoint{Time: string(rune('A' + i)), Predicted: v}
	}
	return out
}

func TestFallbackDelta(t *testing.T) {
	initial := models.WeatherParams{Temperature: 30, Humidity: 50, SolarIndex: 500}

	tests := []struct {
		name    string
		current models.WeatherParams
		want    float64
	}{
		{
			name:    "unchanged",
			current: initial,
			want:    0,
		},
		{
			name:    "hotter",
			current: models.WeatherParams{Temperature: 35, Humidity: 50, SolarIndex: 500},
			want:    10.5,
		},
		{
			name:    "more humid",
			current: models.WeatherParams{Temperature: 30, Humidity: 70, SolarIndex: 500},
			want:    3,
		},
		{
			name:    "sunnier",
			current: models.WeatherParams{Temperature: 30, Humidity: 50, SolarIndex: 700},
			want:    -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackDelta(initial, tt.current)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("FallbackDelta() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyFallback_HotterRaisesDemand(t *testing.T) {
	initial := models.WeatherParams{Temperature: 30, Humidity: 50, SolarIndex: 500}
	current := models.WeatherParams{Temperature: 35, Humidity: 50, SolarIndex: 500}

	got := ApplyFallback(series(100), initial, current)

	if len(got) != 1 || got[0].Predicted != 111 {
		t.Errorf("ApplyFallback() = %+v, want single point of 111", got)
	}
}

func TestApplyFallback_ZeroDeltaKeepsIntegerSeries(t *testing.T) {
	w := models.WeatherParams{Temperature: 28, Humidity: 68, SolarIndex: 500}
	in := series(18000, 18250, 0, 19999)

	got := ApplyFallback(in, w, w)

	for i := range in {
		if got[i].Predicted != in[i].Predicted {
			t.Errorf("point %d = %v, want %v", i, got[i].Predicted, in[i].Predicted)
		}
	}
}

func TestApplyFallback_Monotonic(t *testing.T) {
	initial := models.WeatherParams{Temperature: 30, Humidity: 50, SolarIndex: 500}
	base := series(100.4, 250, 999.6)

	prev := ApplyFallback(base, initial, initial)
	for temp := 31.0; temp <= 50; temp++ {
		current := initial
		current.Temperature = temp
		got := ApplyFallback(base, initial, current)
		for i := range got {
			if got[i].Predicted < prev[i].Predicted {
				t.Fatalf("temperature %v lowered point %d: %v < %v", temp, i, got[i].Predicted, prev[i].Predicted)
			}
		}
		prev = got
	}

	prev = ApplyFallback(base, initial, initial)
	for solar := 600.0; solar <= 1000; solar += 100 {
		current := initial
		current.SolarIndex = solar
		got := ApplyFallback(base, initial, current)
		for i := range got {
			if got[i].Predicted > prev[i].Predicted {
				t.Fatalf("solar %v raised point %d: %v > %v", solar, i, got[i].Predicted, prev[i].Predicted)
			}
		}
		prev = got
	}
}

func TestApplyFallback_DoesNotMutateInput(t *testing.T) {
	initial := models.DefaultWeather
	current := models.WeatherParams{Temperature: 40, Humidity: 50, SolarIndex: 500}
	in := series(100, 200)

	ApplyFallback(in, initial, current)

	if in[0].Predicted != 100 || in[1].Predicted != 200 {
		t.Errorf("ApplyFallback() modified its input: %+v", in)
	}
}

func TestApplyFallback_EmptyAndNil(t *testing.T) {
	current := models.WeatherParams{Temperature: 45, Humidity: 50, SolarIndex: 500}

	if got := ApplyFallback(nil, models.DefaultWeather, current); got == nil || len(got) != 0 {
		t.Errorf("ApplyFallback(nil) = %#v, want empty series", got)
	}
	if got := ApplyFallback(models.ForecastSeries{}, models.DefaultWeather, current); len(got) != 0 {
		t.Errorf("ApplyFallback(empty) = %#v, want empty series", got)
	}
}

func TestApplyFallback_ClampsInputs(t *testing.T) {
	initial := models.WeatherParams{Temperature: 30, Humidity: 50, SolarIndex: 500}
	outOfBounds := models.WeatherParams{Temperature: 90, Humidity: 50, SolarIndex: 500}
	atBound := models.WeatherParams{Temperature: 50, Humidity: 50, SolarIndex: 500}

	a := ApplyFallback(series(100), initial, outOfBounds)
	b := ApplyFallback(series(100), initial, atBound)

	if a[0].Predicted != b[0].Predicted {
		t.Errorf("out-of-bounds temperature not clamped: %v vs %v", a[0].Predicted, b[0].Predicted)
	}
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{110.5, 111},
		{110.49, 110},
		{-2.5, -2},
		{-2.51, -3},
		{7, 7},
	}
	for _, tt := range tests {
		if got := roundHalfUp(tt.in); got != tt.want {
			t.Errorf("roundHalfUp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
