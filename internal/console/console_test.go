package console

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gridcast/internal/api"
	"gridcast/internal/events"
	"gridcast/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnreachable = errors.New("dial tcp: connection refused")

// fakePredictor answers from per-test hooks and counts calls
type fakePredictor struct {
	mu    sync.Mutex
	calls map[string]int

	initialState func(ctx context.Context) (*api.InitialState, error)
	forecast     func(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error)
	simulate     func(ctx context.Context, req api.SimulationRequest) (models.ForecastSeries, error)
}

func (f *fakePredictor) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakePredictor) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakePredictor) GetInitialState(ctx context.Context) (*api.InitialState, error) {
	f.record("initial_state")
	if f.initialState == nil {
		return nil, errUnreachable
	}
	return f.initialState(ctx)
}

func (f *fakePredictor) GetForecast(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
	f.record("forecast")
	if f.forecast == nil {
		return models.ForecastSeries{}, nil
	}
	return f.forecast(ctx, r, offset)
}

func (f *fakePredictor) GetYearlyForecast(ctx context.Context) (models.ForecastSeries, error) {
	f.record("yearly")
	return series(12000, 12500), nil
}

func (f *fakePredictor) GetCurrentYearForecast(ctx context.Context) (models.ForecastSeries, error) {
	f.record("current_year")
	return series(11000), nil
}

func (f *fakePredictor) SimulateForecast(ctx context.Context, req api.SimulationRequest) (models.ForecastSeries, error) {
	f.record("simulate")
	if f.simulate == nil {
		return nil, errUnreachable
	}
	return f.simulate(ctx, req)
}

func (f *fakePredictor) Predict(ctx context.Context, req api.PredictRequest) (*models.AggregateResult, error) {
	f.record("predict")
	return nil, errUnreachable
}

func (f *fakePredictor) GetPublicStatus(ctx context.Context) (*models.PublicStatus, error) {
	f.record("public_status")
	return nil, errUnreachable
}

// recorder collects emitted events
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Notify(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func TestNew_Defaults(t *testing.T) {
	c := New(&fakePredictor{}, Options{})
	s := c.State()

	assert.Equal(t, models.NextDay, s.Range)
	assert.Equal(t, models.DefaultWeather, s.Initial)
	assert.Equal(t, models.DefaultWeather, s.Current)
	assert.NotNil(t, s.Series)
	assert.Empty(t, s.Series)
	assert.False(t, s.BaselineLoaded)
}

func TestLoadBaseline(t *testing.T) {
	live := models.WeatherParams{Temperature: 33, Humidity: 72, SolarIndex: 610}
	p := &fakePredictor{
		initialState: func(ctx context.Context) (*api.InitialState, error) {
			return &api.InitialState{Weather: live, SystemStatus: "ONLINE", ModelOnline: true}, nil
		},
	}
	rec := &recorder{}
	c := New(p, Options{Notifier: rec})

	require.NoError(t, c.LoadBaseline(context.Background()))
	require.NoError(t, c.LoadBaseline(context.Background()))

	s := c.State()
	assert.Equal(t, live, s.Initial)
	assert.Equal(t, live, s.Current)
	assert.True(t, s.BaselineLoaded)
	assert.True(t, s.ModelOnline)
	assert.Equal(t, "ONLINE", s.SystemStatus)
	assert.Equal(t, 1, p.count("initial_state"))
	assert.Equal(t, []events.Kind{events.BaselineLoaded}, rec.kinds())
}

func TestLoadBaseline_FailureKeepsDefaults(t *testing.T) {
	p := &fakePredictor{}
	c := New(p, Options{})

	err := c.LoadBaseline(context.Background())
	require.Error(t, err)

	s := c.State()
	assert.Equal(t, models.DefaultWeather, s.Initial)
	assert.Equal(t, models.DefaultWeather, s.Current)
	assert.False(t, s.BaselineLoaded)

	// no retry
	require.NoError(t, c.LoadBaseline(context.Background()))
	assert.Equal(t, 1, p.count("initial_state"))
}

func TestLoadBaseline_MalformedPayloadKeepsDefaults(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty object", body: `{}`},
		{name: "null", body: `null`},
		{name: "null weather", body: `{"weather":null}`},
		{name: "error object", body: `{"error":"down"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(api.NewPredictorClient(srv.URL, 5*time.Second), Options{})

			err := c.LoadBaseline(context.Background())
			require.ErrorIs(t, err, api.ErrMalformedPayload)

			s := c.State()
			assert.Equal(t, models.DefaultWeather, s.Initial)
			assert.Equal(t, models.DefaultWeather, s.Current)
			assert.False(t, s.BaselineLoaded)
		})
	}
}

func TestLoadBaseline_ClampsReading(t *testing.T) {
	p := &fakePredictor{
		initialState: func(ctx context.Context) (*api.InitialState, error) {
			return &api.InitialState{Weather: models.WeatherParams{Temperature: 55, Humidity: 40, SolarIndex: 1200}}, nil
		},
	}
	c := New(p, Options{})
	require.NoError(t, c.LoadBaseline(context.Background()))

	assert.Equal(t, models.WeatherParams{Temperature: 50, Humidity: 40, SolarIndex: 1000}, c.State().Initial)
}

func TestSelectRange(t *testing.T) {
	p := &fakePredictor{
		forecast: func(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
			return series(100, 110, 120), nil
		},
	}
	c := New(p, Options{})

	got, err := c.SelectRange(context.Background(), models.NextWeek, 2)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	s := c.State()
	assert.Equal(t, models.NextWeek, s.Range)
	assert.Equal(t, 2, s.Offset)
	assert.Equal(t, "MW", s.Unit)
	assert.False(t, s.Loading)
	require.NotNil(t, s.SeriesWeather)
	assert.Equal(t, s.Initial, *s.SeriesWeather)
}

func TestSelectRange_LockedRangesUseInference(t *testing.T) {
	p := &fakePredictor{}
	c := New(p, Options{})

	_, err := c.SelectRange(context.Background(), models.NextYear, 0)
	require.NoError(t, err)
	_, err = c.SelectRange(context.Background(), models.CurrentYear, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, p.count("yearly"))
	assert.Equal(t, 1, p.count("current_year"))
	assert.Equal(t, 0, p.count("forecast"))

	s := c.State()
	assert.Equal(t, "MU", s.Unit)
	assert.Nil(t, s.SeriesWeather)
}

func TestSelectRange_ClampsOffset(t *testing.T) {
	var gotOffset int
	p := &fakePredictor{
		forecast: func(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
			gotOffset = offset
			return series(1), nil
		},
	}
	c := New(p, Options{})

	_, err := c.SelectRange(context.Background(), models.NextDay, 99)
	require.NoError(t, err)
	assert.Equal(t, MaxOffset, gotOffset)

	_, err = c.SelectRange(context.Background(), models.NextDay, -4)
	require.NoError(t, err)
	assert.Equal(t, 0, gotOffset)
}

func TestSelectRange_FailureLeavesEmptySeries(t *testing.T) {
	fail := false
	p := &fakePredictor{
		forecast: func(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
			if fail {
				return nil, errUnreachable
			}
			return series(100), nil
		},
	}
	c := New(p, Options{})

	_, err := c.SelectRange(context.Background(), models.NextDay, 0)
	require.NoError(t, err)

	fail = true
	got, err := c.SelectRange(context.Background(), models.NextHour, 0)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	s := c.State()
	assert.Empty(t, s.Series)
	assert.False(t, s.Loading)
}

func TestSelectRange_LaterSelectionWins(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &fakePredictor{
		forecast: func(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
			if r == models.NextDay {
				close(started)
				// respond late, ignoring cancellation
				<-release
				return series(1, 1, 1), nil
			}
			return series(7, 7), nil
		},
	}
	rec := &recorder{}
	c := New(p, Options{Notifier: rec})

	errA := make(chan error, 1)
	go func() {
		_, err := c.SelectRange(context.Background(), models.NextDay, 0)
		errA <- err
	}()
	<-started

	got, err := c.SelectRange(context.Background(), models.NextWeek, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	close(release)
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("first selection never returned")
	}

	s := c.State()
	assert.Equal(t, models.NextWeek, s.Range)
	assert.Len(t, s.Series, 2)
	assert.Equal(t, 7.0, s.Series[0].Predicted)
	assert.Equal(t, []events.Kind{events.ForecastUpdated}, rec.kinds())
}

func TestSelectRange_CancelsOutstandingRequest(t *testing.T) {
	cancelled := make(chan struct{})
	p := &fakePredictor{
		forecast: func(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
			if r == models.NextMonth {
				<-ctx.Done()
				close(cancelled)
				return nil, ctx.Err()
			}
			return series(5), nil
		},
	}
	c := New(p, Options{})

	go c.SelectRange(context.Background(), models.NextMonth, 0)
	require.Eventually(t, func() bool { return p.count("forecast") == 1 }, time.Second, 5*time.Millisecond)

	_, err := c.SelectRange(context.Background(), models.NextHour, 0)
	require.NoError(t, err)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("outstanding request was not cancelled")
	}
	assert.Equal(t, models.NextHour, c.State().Range)
}

func TestSetWeather_Clamps(t *testing.T) {
	rec := &recorder{}
	c := New(&fakePredictor{}, Options{Notifier: rec})

	got := c.SetWeather(models.WeatherParams{Temperature: 70, Humidity: -3, SolarIndex: 400})

	want := models.WeatherParams{Temperature: 50, Humidity: 0, SolarIndex: 400}
	assert.Equal(t, want, got)
	assert.Equal(t, want, c.State().Current)
	assert.Equal(t, models.DefaultWeather, c.State().Initial)
	assert.Equal(t, []events.Kind{events.WeatherChanged}, rec.kinds())
}

func TestSimulate(t *testing.T) {
	var got api.SimulationRequest
	p := &fakePredictor{
		forecast: func(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
			return series(100), nil
		},
		simulate: func(ctx context.Context, req api.SimulationRequest) (models.ForecastSeries, error) {
			got = req
			return series(140, 150), nil
		},
	}
	c := New(p, Options{})
	_, err := c.SelectRange(context.Background(), models.NextHour, 1)
	require.NoError(t, err)

	weather := models.WeatherParams{Temperature: 40, Humidity: 60, SolarIndex: 300}
	c.SetWeather(weather)

	out, err := c.Simulate(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 2)

	assert.Equal(t, models.NextHour, got.Range)
	assert.Equal(t, 1, got.Offset)
	assert.Equal(t, weather, got.Params)

	s := c.State()
	assert.False(t, s.Simulating)
	assert.False(t, s.Fallback)
	require.NotNil(t, s.SeriesWeather)
	assert.Equal(t, weather, *s.SeriesWeather)
}

func TestSimulate_FallbackOnFailure(t *testing.T) {
	p := &fakePredictor{
		forecast: func(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
			return series(100), nil
		},
	}
	rec := &recorder{}
	c := New(p, Options{Notifier: rec})
	_, err := c.SelectRange(context.Background(), models.NextDay, 0)
	require.NoError(t, err)

	c.SetWeather(models.WeatherParams{Temperature: 35, Humidity: 50, SolarIndex: 500})

	out, err := c.Simulate(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 111.0, out[0].Predicted)

	s := c.State()
	assert.True(t, s.Fallback)
	assert.False(t, s.Simulating)
	assert.Equal(t, 1, p.count("simulate"))
	assert.Contains(t, rec.kinds(), events.SimulationFallback)
}

func TestSimulate_FallbackOnEmptyDisplay(t *testing.T) {
	c := New(&fakePredictor{}, Options{})
	c.SetWeather(models.WeatherParams{Temperature: 45, Humidity: 50, SolarIndex: 500})

	out, err := c.Simulate(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.False(t, c.State().Simulating)
}

func TestSimulate_LockedRange(t *testing.T) {
	p := &fakePredictor{}
	rec := &recorder{}
	c := New(p, Options{Range: models.NextYear, Notifier: rec})

	_, err := c.SelectRange(context.Background(), models.NextYear, 0)
	require.NoError(t, err)
	before := c.State().Series

	_, err = c.Simulate(context.Background())
	assert.ErrorIs(t, err, ErrModelLocked)

	s := c.State()
	assert.Equal(t, 0, p.count("simulate"))
	assert.False(t, s.Fallback)
	assert.False(t, s.Simulating)
	assert.Equal(t, before, s.Series)
	assert.NotContains(t, rec.kinds(), events.SimulationFallback)
}

func TestSimulate_SupersededBySelection(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &fakePredictor{
		forecast: func(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
			return series(42), nil
		},
		simulate: func(ctx context.Context, req api.SimulationRequest) (models.ForecastSeries, error) {
			close(started)
			<-release
			return series(999), nil
		},
	}
	c := New(p, Options{})

	errSim := make(chan error, 1)
	go func() {
		_, err := c.Simulate(context.Background())
		errSim <- err
	}()
	<-started

	_, err := c.SelectRange(context.Background(), models.NextWeek, 0)
	require.NoError(t, err)
	close(release)

	assert.ErrorIs(t, <-errSim, ErrSuperseded)
	s := c.State()
	assert.Equal(t, 42.0, s.Series[0].Predicted)
	assert.False(t, s.Simulating)
}

func TestRefresh(t *testing.T) {
	var ranges []models.TimeRange
	p := &fakePredictor{
		forecast: func(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
			ranges = append(ranges, r)
			return series(1), nil
		},
	}
	c := New(p, Options{})

	_, err := c.SelectRange(context.Background(), models.NextMonth, 3)
	require.NoError(t, err)
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.TimeRange{models.NextMonth, models.NextMonth}, ranges)
	assert.Equal(t, 3, c.State().Offset)
}

func TestStateIsACopy(t *testing.T) {
	p := &fakePredictor{
		forecast: func(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
			return series(100), nil
		},
	}
	c := New(p, Options{})
	_, err := c.SelectRange(context.Background(), models.NextDay, 0)
	require.NoError(t, err)

	s := c.State()
	s.Series[0].Predicted = -1

	assert.Equal(t, 100.0, c.State().Series[0].Predicted)
}
