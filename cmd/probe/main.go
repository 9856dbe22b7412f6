package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"gridcast/internal/api"
	"gridcast/internal/config"
	"gridcast/internal/models"
)

// result is the outcome of one predictor call
type result struct {
	Name     string        `json:"name"`
	OK       bool          `json:"ok"`
	Points   int           `json:"points,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

func main() {
	baseURL := flag.String("url", "", "predictor base URL (default from config or PREDICTOR_URL)")
	timeout := flag.Duration("timeout", 30*time.Second, "overall probe timeout")
	asJSON := flag.Bool("json", false, "print results as JSON")
	flag.Parse()

	url := *baseURL
	if url == "" {
		if _, err := config.Load(config.GetConfigPath()); err == nil {
			url = config.Get().Predictor.BaseURL
		} else {
			url = config.GetPredictorURL()
		}
	}

	client := api.NewPredictorClient(url, 0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Printf("Probing predictor at %s", client.BuildURL("", nil))
	results := probe(ctx, client)

	if *asJSON {
		jsonData, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		printSummary(os.Stdout, results)
	}

	for _, r := range results {
		if !r.OK {
			os.Exit(1)
		}
	}
}

// probe calls every predictor endpoint concurrently, once per sub-annual range
func probe(ctx context.Context, p api.Predictor) []result {
	checks := map[string]func(context.Context) (int, string, error){
		"initial-state": func(ctx context.Context) (int, string, error) {
			s, err := p.GetInitialState(ctx)
			if err != nil {
				return 0, "", err
			}
			return 0, fmt.Sprintf("%.1f°C %.0f%% solar %.0f, model online %v",
				s.Weather.Temperature, s.Weather.Humidity, s.Weather.SolarIndex, s.ModelOnline), nil
		},
		"simulate/next-day": seriesCheck(func(ctx context.Context) (models.ForecastSeries, error) {
			return p.SimulateForecast(ctx, api.SimulationRequest{Range: models.NextDay, Params: models.DefaultWeather})
		}),
		"predict": func(ctx context.Context) (int, string, error) {
			cities := make(map[models.City]models.WeatherParams, len(models.Cities))
			for _, c := range models.Cities {
				cities[c] = models.DefaultCityWeather
			}
			r, err := p.Predict(ctx, api.PredictRequest{
				TargetYear: models.DefaultPolicy.TargetYear,
				IEXFactor:  models.DefaultPolicy.IEXFactor,
				CityData:   cities,
			})
			if err != nil {
				return 0, "", err
			}
			return len(r.Breakdown), fmt.Sprintf("%.1f MW, overloaded %v", r.TotalMW, r.Overloaded()), nil
		},
		"public/status": func(ctx context.Context) (int, string, error) {
			s, err := p.GetPublicStatus(ctx)
			if err != nil {
				return 0, "", err
			}
			return 0, fmt.Sprintf("%.0f / %.0f MW", s.CurrentMW, s.CapacityMW), nil
		},
	}
	checks["forecast/yearly"] = seriesCheck(p.GetYearlyForecast)
	checks["forecast/current-year"] = seriesCheck(p.GetCurrentYearForecast)
	for _, r := range models.TimeRanges {
		if r.Locked() {
			continue
		}
		rng := r
		checks["forecast/"+string(rng)] = seriesCheck(func(ctx context.Context) (models.ForecastSeries, error) {
			return p.GetForecast(ctx, rng, 0)
		})
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]result, 0, len(checks))
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check func(context.Context) (int, string, error)) {
			defer wg.Done()

			start := time.Now()
			points, detail, err := check(ctx)
			r := result{Name: name, OK: err == nil, Points: points, Detail: detail, Duration: time.Since(start)}
			if err != nil {
				r.Err = err.Error()
			}

			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func seriesCheck(fetch func(context.Context) (models.ForecastSeries, error)) func(context.Context) (int, string, error) {
	return func(ctx context.Context) (int, string, error) {
		s, err := fetch(ctx)
		if err != nil {
			return 0, "", err
		}
		if len(s) == 0 {
			return 0, "empty series", nil
		}
		return len(s), fmt.Sprintf("first %s=%.1f", s[0].Time, s[0].Predicted), nil
	}
}

func printSummary(w io.Writer, results []result) {
	failed := 0
	for _, r := range results {
		status := "ok"
		info := r.Detail
		if !r.OK {
			status = "FAIL"
			info = r.Err
			failed++
		}
		fmt.Fprintf(w, "%-24s %-4s %8s  %s\n", r.Name, status, r.Duration.Round(time.Millisecond), info)
	}
	fmt.Fprintf(w, "\n%d checks, %d failed\n", len(results), failed)
}
