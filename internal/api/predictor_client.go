package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gridcast/internal/metrics"
	"gridcast/internal/models"
)

const defaultBaseURL = "http://localhost:5000"

// ErrMalformedPayload is returned when a response parses as JSON but has the wrong shape
// for a payload that has no neutral substitute
var ErrMalformedPayload = errors.New("malformed predictor payload")

// PredictorClient is a client for the forecasting service
type PredictorClient struct {
	baseURL string
	client  *http.Client
}

// NewPredictorClient creates a new predictor client. A zero timeout leaves the
// transport defaults in place.
func NewPredictorClient(baseURL string, timeout time.Duration) *PredictorClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &PredictorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// BuildURL builds the URL for a predictor request
func (c *PredictorClient) BuildURL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// A reading with any field missing has no neutral substitute for the baseline.
type initialStateResponse struct {
	Weather *struct {
		Temperature *float64 `json:"temp"`
		Humidity    *float64 `json:"humidity"`
		SolarIndex  *float64 `json:"solar"`
	} `json:"weather"`
	SystemStatus string `json:"system_status"`
	ModelOnline  bool   `json:"model_online"`
}

// GetInitialState fetches the current weather reading used to seed simulation controls
func (c *PredictorClient) GetInitialState(ctx context.Context) (*InitialState, error) {
	body, err := c.do(ctx, "initial_state", http.MethodGet, c.BuildURL("/api/initial-state", nil), nil)
	if err != nil {
		return nil, err
	}

	var resp initialStateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	w := resp.Weather
	if w == nil || w.Temperature == nil || w.Humidity == nil || w.SolarIndex == nil {
		return nil, fmt.Errorf("%w: initial state has no complete weather reading", ErrMalformedPayload)
	}
	return &InitialState{
		Weather: models.WeatherParams{
			Temperature: *w.Temperature,
			Humidity:    *w.Humidity,
			SolarIndex:  *w.SolarIndex,
		},
		SystemStatus: resp.SystemStatus,
		ModelOnline:  resp.ModelOnline,
	}, nil
}

// GetForecast fetches the forecast series of a sub-annual range
func (c *PredictorClient) GetForecast(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error) {
	query := url.Values{}
	query.Set("range", string(r))
	query.Set("offset", strconv.Itoa(offset))

	body, err := c.do(ctx, "forecast", http.MethodGet, c.BuildURL("/api/forecast", query), nil)
	if err != nil {
		return nil, err
	}
	return DecodeSeries(body)
}

// GetYearlyForecast runs model inference for the next calendar year
func (c *PredictorClient) GetYearlyForecast(ctx context.Context) (models.ForecastSeries, error) {
	body, err := c.do(ctx, "forecast_yearly", http.MethodGet, c.BuildURL("/api/forecast/yearly", nil), nil)
	if err != nil {
		return nil, err
	}
	return DecodeSeries(body)
}

// GetCurrentYearForecast runs model inference for the current calendar year
func (c *PredictorClient) GetCurrentYearForecast(ctx context.Context) (models.ForecastSeries, error) {
	body, err := c.do(ctx, "forecast_current_year", http.MethodGet, c.BuildURL("/api/forecast/current-year", nil), nil)
	if err != nil {
		return nil, err
	}
	return DecodeSeries(body)
}

// SimulateForecast recomputes a forecast under operator weather
func (c *PredictorClient) SimulateForecast(ctx context.Context, req SimulationRequest) (models.ForecastSeries, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode simulation request: %w", err)
	}

	body, err := c.do(ctx, "forecast_simulate", http.MethodPost, c.BuildURL("/api/forecast", nil), payload)
	if err != nil {
		return nil, err
	}
	return DecodeSeries(body)
}

type predictData struct {
	TotalMW   *float64           `json:"total_mw"`
	Breakdown map[string]float64 `json:"breakdown"`
}

// The backend proxy wraps the result in data; the predictor itself returns it inline.
type predictResponse struct {
	Success *bool        `json:"success"`
	Message string       `json:"message"`
	Data    *predictData `json:"data"`
	predictData
}

// Predict asks for the provincial load under the given policy and per-city weather
func (c *PredictorClient) Predict(ctx context.Context, req PredictRequest) (*models.AggregateResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode predict request: %w", err)
	}

	body, err := c.do(ctx, "predict", http.MethodPost, c.BuildURL("/predict", nil), payload)
	if err != nil {
		return nil, err
	}

	var resp predictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if resp.Success != nil && !*resp.Success {
		return nil, fmt.Errorf("predictor rejected request: %s", resp.Message)
	}

	data := resp.predictData
	if resp.Data != nil {
		data = *resp.Data
	}
	if data.TotalMW == nil && data.Breakdown == nil {
		return nil, fmt.Errorf("%w: no total_mw or breakdown", ErrMalformedPayload)
	}

	result := &models.AggregateResult{Breakdown: make(map[models.City]float64, len(data.Breakdown))}
	for name, load := range data.Breakdown {
		city, err := models.ParseCity(name)
		if err != nil {
			continue
		}
		result.Breakdown[city] = load
	}
	if len(result.Breakdown) == 0 {
		return nil, fmt.Errorf("%w: no known city in breakdown", ErrMalformedPayload)
	}
	if data.TotalMW != nil {
		result.TotalMW = *data.TotalMW
	} else {
		result.TotalMW = result.Sum()
	}
	return result, nil
}

// GetPublicStatus fetches the citizen-facing grid status
func (c *PredictorClient) GetPublicStatus(ctx context.Context) (*models.PublicStatus, error) {
	body, err := c.do(ctx, "public_status", http.MethodGet, c.BuildURL("/api/public/status", nil), nil)
	if err != nil {
		return nil, err
	}

	var status models.PublicStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to decode public status: %w", err)
	}
	return &status, nil
}

// DecodeSeries decodes a forecast array. Any well-formed JSON that is not an array of
// points yields an empty series; only unparseable bodies are errors.
func DecodeSeries(body []byte) (models.ForecastSeries, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("failed to decode forecast: invalid JSON")
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return models.ForecastSeries{}, nil
	}

	var series models.ForecastSeries
	if err := json.Unmarshal(trimmed, &series); err != nil {
		return models.ForecastSeries{}, nil
	}
	if series == nil {
		series = models.ForecastSeries{}
	}
	return series, nil
}

func (c *PredictorClient) do(ctx context.Context, endpoint, method, target string, payload []byte) (body []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordPredictorCall(endpoint, time.Since(start), err)
	}()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
