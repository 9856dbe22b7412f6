package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gridcast/internal/models"

	"gopkg.in/yaml.v3"
)

// City seeds the initial weather of one city in the policy view
type City struct {
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	Humidity    float64 `yaml:"humidity"`
	SolarIndex  float64 `yaml:"solar_index"`
}

var (
	instance *Config
	once     sync.Once
)

type Config struct {
	Predictor struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"predictor"`
	Console struct {
		DefaultRange string `yaml:"default_range"`
	} `yaml:"console"`
	Policy struct {
		Debounce   time.Duration `yaml:"debounce"`
		TargetYear int           `yaml:"target_year"`
		IEXFactor  float64       `yaml:"iex_factor"`
	} `yaml:"policy"`
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Stream   string `yaml:"stream"`
	} `yaml:"redis"`
	Cities []City `yaml:"cities"`
}

func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file %s: %w", configPath, readErr)
			return
		}

		if parseErr := yaml.Unmarshal(data, instance); parseErr != nil {
			err = fmt.Errorf("failed to parse config: %w", parseErr)
			return
		}

		instance.applyDefaults()

		if validateErr := instance.validate(); validateErr != nil {
			err = validateErr
			return
		}
	})

	return instance, err
}

func Get() *Config {
	if instance == nil {
		panic("config not loaded - call config.Load() first")
	}
	return instance
}

// DefaultRange is the horizon the console opens on
func (c *Config) DefaultRange() models.TimeRange {
	r, err := models.ParseTimeRange(c.Console.DefaultRange)
	if err != nil {
		return models.NextDay
	}
	return r
}

// PolicyParams returns the configured macro parameters, clamped
func (c *Config) PolicyParams() models.PolicyParams {
	return models.PolicyParams{
		TargetYear: c.Policy.TargetYear,
		IEXFactor:  c.Policy.IEXFactor,
	}.Clamp()
}

// CityWeather returns the configured starting weather per city
func (c *Config) CityWeather() map[models.City]models.WeatherParams {
	out := make(map[models.City]models.WeatherParams, len(c.Cities))
	for _, city := range c.Cities {
		name, err := models.ParseCity(city.Name)
		if err != nil {
			continue
		}
		out[name] = models.WeatherParams{
			Temperature: city.Temperature,
			Humidity:    city.Humidity,
			SolarIndex:  city.SolarIndex,
		}.Clamp()
	}
	return out
}

func (c *Config) applyDefaults() {
	if url := GetPredictorURL(); url != "" {
		c.Predictor.BaseURL = url
	}
	if c.Console.DefaultRange == "" {
		c.Console.DefaultRange = string(models.NextDay)
	}
	if c.Policy.TargetYear == 0 {
		c.Policy.TargetYear = models.DefaultPolicy.TargetYear
	}
	if c.Policy.IEXFactor == 0 {
		c.Policy.IEXFactor = models.DefaultPolicy.IEXFactor
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

func (c *Config) validate() error {
	if c.Predictor.BaseURL == "" {
		return fmt.Errorf("predictor.base_url cannot be empty")
	}
	if c.Predictor.Timeout < 0 {
		return fmt.Errorf("predictor.timeout cannot be negative")
	}
	if _, err := models.ParseTimeRange(c.Console.DefaultRange); err != nil {
		return fmt.Errorf("console.default_range: %w", err)
	}
	if c.Policy.Debounce < 0 {
		return fmt.Errorf("policy.debounce cannot be negative")
	}
	seen := make(map[string]bool, len(c.Cities))
	for _, city := range c.Cities {
		if _, err := models.ParseCity(city.Name); err != nil {
			return fmt.Errorf("cities: %w", err)
		}
		if seen[city.Name] {
			return fmt.Errorf("cities: %s listed twice", city.Name)
		}
		seen[city.Name] = true
	}
	return nil
}
