package config

import "os"

// GetPredictorURL returns the predictor base URL override, empty when unset
func GetPredictorURL() string {
	return os.Getenv("PREDICTOR_URL")
}

// IsProduction reports whether GRIDCAST_ENV selects production logging and gin release mode
func IsProduction() bool {
	return os.Getenv("GRIDCAST_ENV") == "production"
}

// GetConfigPath returns the config file location
func GetConfigPath() string {
	return getEnv("GRIDCAST_CONFIG", "./config.yaml")
}
