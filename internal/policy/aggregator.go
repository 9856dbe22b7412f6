// Package policy aggregates per-city load into a provincial total under macro parameters.
package policy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gridcast/internal/api"
	"gridcast/internal/events"
	"gridcast/internal/metrics"
	"gridcast/internal/models"

	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last edit before recomputing
const DefaultDebounce = 300 * time.Millisecond

// totalToleranceMW is how far the reported total may drift from the sum of its breakdown
const totalToleranceMW = 0.5

var (
	// ErrNoResult is returned when snapshotting before any aggregate exists
	ErrNoResult = errors.New("no aggregate result yet")

	// ErrSuperseded is returned when a newer recomputation replaced the request
	ErrSuperseded = errors.New("aggregation superseded by a newer one")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("aggregator closed")
)

// Options configures an Aggregator
type Options struct {
	Debounce time.Duration
	Policy   models.PolicyParams
	Cities   map[models.City]models.WeatherParams
	Logger   *zap.Logger
	Notifier events.Notifier
}

// State is a copy of the policy view
type State struct {
	Policy     models.PolicyParams                  `json:"policy"`
	Cities     map[models.City]models.WeatherParams `json:"cities"`
	ActiveCity models.City                          `json:"active_city"`
	Result     *models.AggregateResult              `json:"result,omitempty"`
	Overloaded bool                                 `json:"overloaded"`
	Pending    bool                                 `json:"pending"`
	Snapshot   *models.BaselineSnapshot             `json:"snapshot,omitempty"`
	Diff       *models.SnapshotDiff                 `json:"diff,omitempty"`
}

// Aggregator recomputes the provincial load after every burst of parameter edits.
// It keeps a single pending timer: each edit stops the previous one, so only the
// final state of a burst is ever sent.
type Aggregator struct {
	predictor api.Predictor
	debounce  time.Duration
	logger    *zap.Logger
	notifier  events.Notifier
	snapshots *SnapshotManager

	base context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	policy   models.PolicyParams
	cities   map[models.City]models.WeatherParams
	active   models.City
	result   *models.AggregateResult
	timer    *time.Timer
	edits    uint64
	seq      uint64
	inflight context.CancelFunc
	closed   bool
}

// NewAggregator creates an aggregator. Cities missing from opts take the default weather.
func NewAggregator(predictor api.Predictor, opts Options) *Aggregator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = events.Nop
	}
	if opts.Policy == (models.PolicyParams{}) {
		opts.Policy = models.DefaultPolicy
	}

	cities := make(map[models.City]models.WeatherParams, len(models.Cities))
	for _, c := range models.Cities {
		w, ok := opts.Cities[c]
		if !ok {
			w = models.DefaultCityWeather
		}
		cities[c] = w.Clamp()
	}

	base, stop := context.WithCancel(context.Background())
	return &Aggregator{
		predictor: predictor,
		debounce:  opts.Debounce,
		logger:    opts.Logger,
		notifier:  opts.Notifier,
		snapshots: NewSnapshotManager(),
		base:      base,
		stop:      stop,
		policy:    opts.Policy.Clamp(),
		cities:    cities,
		active:    models.Cities[0],
	}
}

// SetPolicy updates the macro parameters and schedules a recomputation
func (a *Aggregator) SetPolicy(p models.PolicyParams) models.PolicyParams {
	p = p.Clamp()

	a.mu.Lock()
	a.policy = p
	a.scheduleLocked()
	a.mu.Unlock()

	a.notifier.Notify(events.New(events.PolicyChanged, p))
	return p
}

// SelectCity chooses which city SetActiveWeather edits. It changes no parameter.
func (a *Aggregator) SelectCity(city models.City) error {
	if _, err := models.ParseCity(string(city)); err != nil {
		return err
	}
	a.mu.Lock()
	a.active = city
	a.mu.Unlock()
	return nil
}

// SetActiveWeather edits the weather of the active city
func (a *Aggregator) SetActiveWeather(w models.WeatherParams) models.WeatherParams {
	a.mu.Lock()
	city := a.active
	a.mu.Unlock()

	w, _ = a.SetCityWeather(city, w)
	return w
}

// SetCityWeather edits one city's weather and schedules a recomputation
func (a *Aggregator) SetCityWeather(city models.City, w models.WeatherParams) (models.WeatherParams, error) {
	if _, err := models.ParseCity(string(city)); err != nil {
		return models.WeatherParams{}, err
	}
	w = w.Clamp()

	a.mu.Lock()
	a.cities[city] = w
	a.scheduleLocked()
	a.mu.Unlock()

	a.notifier.Notify(events.New(events.PolicyChanged, map[string]any{
		"city":    city,
		"weather": w,
	}))
	return w, nil
}

// Recompute runs an immediate recomputation, dropping any pending one
func (a *Aggregator) Recompute(ctx context.Context) (models.AggregateResult, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return models.AggregateResult{}, ErrClosed
	}
	a.edits++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	return a.recompute(ctx)
}

// Result returns a copy of the latest aggregate
func (a *Aggregator) Result() (models.AggregateResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		return models.AggregateResult{}, false
	}
	return a.result.Clone(), true
}

// Snapshot freezes the current aggregate for later comparison
func (a *Aggregator) Snapshot() (models.BaselineSnapshot, error) {
	result, ok := a.Result()
	if !ok {
		return models.BaselineSnapshot{}, ErrNoResult
	}
	snap := a.snapshots.Take(result)
	a.notifier.Notify(events.New(events.SnapshotTaken, snap))
	return snap, nil
}

// ClearSnapshot discards the frozen aggregate
func (a *Aggregator) ClearSnapshot() {
	if a.snapshots.Clear() {
		a.notifier.Notify(events.New(events.SnapshotCleared, nil))
	}
}

// State returns a copy of the policy view, with the diff against the snapshot if set
func (a *Aggregator) State() State {
	a.mu.Lock()
	s := State{
		Policy:     a.policy,
		Cities:     copyCities(a.cities),
		ActiveCity: a.active,
		Pending:    a.timer != nil,
	}
	if a.result != nil {
		r := a.result.Clone()
		s.Result = &r
		s.Overloaded = r.Overloaded()
	}
	a.mu.Unlock()

	if snap, ok := a.snapshots.Current(); ok {
		s.Snapshot = &snap
		if s.Result != nil {
			if diff, ok := a.snapshots.Diff(*s.Result); ok {
				s.Diff = &diff
			}
		}
	}
	return s
}

// Close stops the pending timer and cancels any request in flight
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.inflight != nil {
		a.inflight()
		a.inflight = nil
	}
	a.stop()
}

func (a *Aggregator) scheduleLocked() {
	if a.closed {
		return
	}
	a.edits++
	if a.timer != nil {
		a.timer.Stop()
	}
	edit := a.edits
	a.timer = time.AfterFunc(a.debounce, func() { a.fire(edit) })
}

// fire runs when the quiet period ends. A timer that could not be stopped in time
// sees a newer edit count and does nothing.
func (a *Aggregator) fire(edit uint64) {
	a.mu.Lock()
	if edit != a.edits || a.closed {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.mu.Unlock()

	if _, err := a.recompute(a.base); err != nil && !errors.Is(err, ErrSuperseded) {
		a.logger.Error("Aggregation failed, keeping previous result", zap.Error(err))
	}
}

func (a *Aggregator) recompute(parent context.Context) (models.AggregateResult, error) {
	a.mu.Lock()
	req := api.PredictRequest{
		TargetYear: a.policy.TargetYear,
		IEXFactor:  a.policy.IEXFactor,
		CityData:   copyCities(a.cities),
	}
	if a.inflight != nil {
		a.inflight()
	}
	ctx, cancel := context.WithCancel(parent)
	a.seq++
	seq := a.seq
	a.inflight = cancel
	a.mu.Unlock()

	result, err := a.predictor.Predict(ctx, req)

	a.mu.Lock()
	if seq != a.seq {
		a.mu.Unlock()
		metrics.SupersededResponsesTotal.WithLabelValues("aggregator").Inc()
		return models.AggregateResult{}, ErrSuperseded
	}
	a.inflight = nil
	cancel()
	if err == nil && (result == nil || len(result.Breakdown) == 0) {
		err = fmt.Errorf("%w: result has no per-city breakdown", api.ErrMalformedPayload)
	}
	if err != nil {
		a.mu.Unlock()
		metrics.AggregationsTotal.WithLabelValues("error").Inc()
		return models.AggregateResult{}, fmt.Errorf("failed to aggregate city load: %w", err)
	}

	a.normalize(result)
	a.result = result
	out := result.Clone()
	a.mu.Unlock()

	overloaded := out.Overloaded()
	metrics.RecordAggregate(out.TotalMW, overloaded)
	a.logger.Info("Provincial load updated",
		zap.Float64("total_mw", out.TotalMW),
		zap.Bool("overloaded", overloaded),
		zap.Int("target_year", req.TargetYear),
		zap.Float64("iex_factor", req.IEXFactor))
	a.notifier.Notify(events.New(events.AggregateUpdated, map[string]any{
		"result":     out,
		"overloaded": overloaded,
	}))
	return out, nil
}

// normalize keeps the total equal to the sum of the breakdown
func (a *Aggregator) normalize(r *models.AggregateResult) {
	sum := r.Sum()
	if math.Abs(sum-r.TotalMW) > totalToleranceMW {
		a.logger.Warn("Reported total disagrees with breakdown, using breakdown sum",
			zap.Float64("reported_mw", r.TotalMW), zap.Float64("sum_mw", sum))
		r.TotalMW = sum
	}
}

func copyCities(in map[models.City]models.WeatherParams) map[models.City]models.WeatherParams {
	out := make(map[models.City]models.WeatherParams, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
