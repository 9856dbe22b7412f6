// Package console orchestrates the forecast view: baseline weather, horizon selection,
// forecast retrieval and operator simulations with a local fallback.
package console

import (
	"context"
	"errors"
	"sync"

	"gridcast/internal/api"
	"gridcast/internal/events"
	"gridcast/internal/metrics"
	"gridcast/internal/models"

	"go.uber.org/zap"
)

var (
	// ErrSuperseded is returned when a newer selection or simulation replaced the request.
	// It is a cancellation, not a failure.
	ErrSuperseded = errors.New("request superseded by a newer one")

	// ErrModelLocked is returned when simulating a range served only by model inference
	ErrModelLocked = errors.New("range is model-locked and cannot be simulated")
)

// MaxOffset is the largest reporting-period index the predictor accepts
const MaxOffset = 20

// State is a copy of everything the forecast view displays
type State struct {
	Range          models.TimeRange      `json:"range"`
	Offset         int                   `json:"offset"`
	Unit           string                `json:"unit"`
	Series         models.ForecastSeries `json:"series"`
	SeriesWeather  *models.WeatherParams `json:"series_weather,omitempty"`
	Initial        models.WeatherParams  `json:"initial_weather"`
	Current        models.WeatherParams  `json:"current_weather"`
	Loading        bool                  `json:"loading"`
	Simulating     bool                  `json:"simulating"`
	Fallback       bool                  `json:"fallback"`
	BaselineLoaded bool                  `json:"baseline_loaded"`
	ModelOnline    bool                  `json:"model_online"`
	SystemStatus   string                `json:"system_status,omitempty"`
}

// Options configures a Console
type Options struct {
	Range    models.TimeRange
	Logger   *zap.Logger
	Notifier events.Notifier
}

// Console owns the selected horizon, the displayed series and the operator weather.
// Every request that replaces the displayed series takes a new generation; a
// response is applied only while its generation is still current.
type Console struct {
	predictor api.Predictor
	logger    *zap.Logger
	notifier  events.Notifier

	mu            sync.Mutex
	rng           models.TimeRange
	offset        int
	series        models.ForecastSeries
	seriesWeather *models.WeatherParams
	initial       models.WeatherParams
	current       models.WeatherParams
	loading       bool
	simulating    bool
	fallback      bool
	gen           uint64
	cancel        context.CancelFunc

	baselineStarted bool
	baselineLoaded  bool
	modelOnline     bool
	systemStatus    string
}

// New creates a console seeded with the default weather constants
func New(predictor api.Predictor, opts Options) *Console {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = events.Nop
	}
	if opts.Range == "" {
		opts.Range = models.NextDay
	}
	return &Console{
		predictor: predictor,
		logger:    opts.Logger,
		notifier:  opts.Notifier,
		rng:       opts.Range,
		series:    models.ForecastSeries{},
		initial:   models.DefaultWeather,
		current:   models.DefaultWeather,
	}
}

// LoadBaseline fetches the live weather reading once. On success both the initial
// reference and the operator weather take its value; on failure the defaults stay
// and no retry is made. Calls after the first are no-ops.
func (c *Console) LoadBaseline(ctx context.Context) error {
	c.mu.Lock()
	if c.baselineStarted {
		c.mu.Unlock()
		return nil
	}
	c.baselineStarted = true
	c.mu.Unlock()

	state, err := c.predictor.GetInitialState(ctx)
	if err != nil {
		c.logger.Warn("Initial state fetch failed, keeping default weather", zap.Error(err))
		return err
	}

	weather := state.Weather.Clamp()

	c.mu.Lock()
	c.initial = weather
	c.current = weather
	c.baselineLoaded = true
	c.modelOnline = state.ModelOnline
	c.systemStatus = state.SystemStatus
	snapshot := c.stateLocked()
	c.mu.Unlock()

	c.logger.Info("Baseline weather loaded",
		zap.Float64("temperature", weather.Temperature),
		zap.Float64("humidity", weather.Humidity),
		zap.Float64("solar_index", weather.SolarIndex),
		zap.Bool("model_online", state.ModelOnline))
	c.notifier.Notify(events.New(events.BaselineLoaded, snapshot))
	return nil
}

// SelectRange switches the horizon and fetches its forecast, cancelling any
// outstanding request. Failures leave an empty series; ErrSuperseded is returned
// when a newer request took over before the response arrived.
func (c *Console) SelectRange(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
	offset = clampOffset(offset)

	c.mu.Lock()
	c.rng = r
	c.offset = offset
	reqCtx, gen := c.beginLocked(ctx)
	c.loading = true
	c.simulating = false
	c.mu.Unlock()

	series, err := c.fetch(reqCtx, r, offset)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.discard("fetcher", gen, err)
		return nil, ErrSuperseded
	}
	c.endLocked()
	c.loading = false
	if err != nil {
		c.logger.Error("Forecast fetch failed",
			zap.String("range", string(r)), zap.Int("offset", offset), zap.Error(err))
		series = models.ForecastSeries{}
	}
	c.series = series
	c.fallback = false
	c.seriesWeather = nil
	if !r.Locked() {
		w := c.initial
		c.seriesWeather = &w
	}
	snapshot := c.stateLocked()
	c.mu.Unlock()

	c.notifier.Notify(events.New(events.ForecastUpdated, snapshot))
	return snapshot.Series, nil
}

// Refresh re-fetches the current selection
func (c *Console) Refresh(ctx context.Context) (models.ForecastSeries, error) {
	c.mu.Lock()
	r, offset := c.rng, c.offset
	c.mu.Unlock()
	return c.SelectRange(ctx, r, offset)
}

// SetWeather stores an operator edit, clamped to bounds
func (c *Console) SetWeather(w models.WeatherParams) models.WeatherParams {
	w = w.Clamp()

	c.mu.Lock()
	c.current = w
	c.mu.Unlock()

	c.notifier.Notify(events.New(events.WeatherChanged, w))
	return w
}

// Simulate recomputes the displayed series under the operator weather. Locked ranges
// return ErrModelLocked without any request. When the predictor cannot be reached the
// previously displayed series is perturbed locally instead.
func (c *Console) Simulate(ctx context.Context) (models.ForecastSeries, error) {
	c.mu.Lock()
	if c.rng.Locked() {
		r := c.rng
		c.mu.Unlock()
		c.logger.Debug("Simulation ignored for locked range", zap.String("range", string(r)))
		return nil, ErrModelLocked
	}
	params := c.current.Clamp()
	r, offset := c.rng, c.offset
	reqCtx, gen := c.beginLocked(ctx)
	c.simulating = true
	c.loading = false
	c.mu.Unlock()

	series, err := c.predictor.SimulateForecast(reqCtx, api.SimulationRequest{
		Range:  r,
		Offset: offset,
		Params: params,
	})

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.discard("simulation", gen, err)
		return nil, ErrSuperseded
	}
	c.endLocked()
	c.simulating = false

	kind := events.ForecastUpdated
	if err != nil {
		c.logger.Warn("Simulation request failed, using local fallback",
			zap.String("range", string(r)), zap.Error(err))
		c.series = ApplyFallback(c.series, c.initial, params)
		c.fallback = true
		kind = events.SimulationFallback
		metrics.SimulationFallbacksTotal.Inc()
	} else {
		c.series = series
		c.fallback = false
	}
	c.seriesWeather = &params
	snapshot := c.stateLocked()
	c.mu.Unlock()

	c.notifier.Notify(events.New(kind, snapshot))
	return snapshot.Series, nil
}

// State returns a copy of the current view
func (c *Console) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Close cancels any outstanding request
func (c *Console) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.loading = false
	c.simulating = false
}

func (c *Console) fetch(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
	switch r {
	case models.NextYear:
		return c.predictor.GetYearlyForecast(ctx)
	case models.CurrentYear:
		return c.predictor.GetCurrentYearForecast(ctx)
	default:
		return c.predictor.GetForecast(ctx, r, offset)
	}
}

// beginLocked supersedes the outstanding request and returns the context and
// generation of the new one
func (c *Console) beginLocked(parent context.Context) (context.Context, uint64) {
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.gen++
	c.cancel = cancel
	return ctx, c.gen
}

func (c *Console) endLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Console) discard(component string, gen uint64, err error) {
	metrics.SupersededResponsesTotal.WithLabelValues(component).Inc()
	c.logger.Debug("Discarding superseded response",
		zap.String("component", component), zap.Uint64("generation", gen), zap.Error(err))
}

func (c *Console) stateLocked() State {
	s := State{
		Range:          c.rng,
		Offset:         c.offset,
		Unit:           c.rng.Unit(),
		Series:         c.series.Clone(),
		Initial:        c.initial,
		Current:        c.current,
		Loading:        c.loading,
		Simulating:     c.simulating,
		Fallback:       c.fallback,
		BaselineLoaded: c.baselineLoaded,
		ModelOnline:    c.modelOnline,
		SystemStatus:   c.systemStatus,
	}
	if s.Series == nil {
		s.Series = models.ForecastSeries{}
	}
	if c.seriesWeather != nil {
		w := *c.seriesWeather
		s.SeriesWeather = &w
	}
	return s
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > MaxOffset {
		return MaxOffset
	}
	return offset
}
