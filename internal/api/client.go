package api

import (
	"context"
	"fmt"

	"gridcast/internal/models"
)

// Predictor is the remote demand-forecasting service
type Predictor interface {
	GetInitialState(ctx context.Context) (*InitialState, error)
	GetForecast(ctx context.Context, r models.TimeRange, offset int) (models.ForecastSeries, error)
	GetYearlyForecast(ctx context.Context) (models.ForecastSeries, error)
	GetCurrentYearForecast(ctx context.Context) (models.ForecastSeries, error)
	SimulateForecast(ctx context.Context, req SimulationRequest) (models.ForecastSeries, error)
	Predict(ctx context.Context, req PredictRequest) (*models.AggregateResult, error)
	GetPublicStatus(ctx context.Context) (*models.PublicStatus, error)
}

// InitialState is the payload of GET /api/initial-state
type InitialState struct {
	Weather      models.WeatherParams `json:"weather"`
	SystemStatus string               `json:"system_status"`
	ModelOnline  bool                 `json:"model_online"`
}

// SimulationRequest is the body of POST /api/forecast
type SimulationRequest struct {
	Range  models.TimeRange     `json:"range"`
	Offset int                  `json:"offset"`
	Params models.WeatherParams `json:"params"`
}

// PredictRequest is the body of POST /predict
type PredictRequest struct {
	TargetYear int                                  `json:"target_year"`
	IEXFactor  float64                              `json:"iex_factor"`
	CityData   map[models.City]models.WeatherParams `json:"city_data"`
}

// APIError is returned for any non-2xx predictor response
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s status %d, body: %s", e.Endpoint, e.StatusCode, e.Body)
}
