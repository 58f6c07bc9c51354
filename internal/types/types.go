package types

import (
	"os"
	"strconv"
	"time"
)

// PriceRecord represents a single row of the AgMarkNet price grid.
// Values are kept exactly as rendered by the portal.
type PriceRecord struct {
	SerialNumber string `json:"S.No"`
	City         string `json:"City"`
	Commodity    string `json:"Commodity"`
	MinPrice     string `json:"Min Prize"`
	MaxPrice     string `json:"Max Prize"`
	ModalPrice   string `json:"Model Prize"`
	Date         string `json:"Date"`
}

// PriceQuery holds the three dropdown values for a search.
// Each must match the visible option text on the portal exactly.
type PriceQuery struct {
	Commodity string `json:"commodity"`
	State     string `json:"state"`
	Market    string `json:"market"`
}

// Missing returns the names of the query fields that are empty
func (q PriceQuery) Missing() []string {
	var missing []string
	if q.Commodity == "" {
		missing = append(missing, "commodity")
	}
	if q.State == "" {
		missing = append(missing, "state")
	}
	if q.Market == "" {
		missing = append(missing, "market")
	}
	return missing
}

// SearchOptions lists the selectable values of the search form
type SearchOptions struct {
	Commodities []string `json:"commodities"`
	States      []string `json:"states"`
}

// Parse modes for the result grid
const (
	ParseModeCells     = "cells"
	ParseModeFragments = "fragments"
)

// DefaultSearchURL is the AgMarkNet commodity/market search form
const DefaultSearchURL = "https://agmarknet.gov.in/SearchCmmMkt.aspx"

// Config holds the configuration for the scraper and API
type Config struct {
	SearchURL             string
	Port                  string
	Timeout               time.Duration
	ElementTimeout        time.Duration
	ResultTimeout         time.Duration
	MarketTimeout         time.Duration
	RequestDelay          time.Duration
	MaxRetries            int
	MaxConcurrentRequests int
	UseHeadlessBrowser    bool
	ChromePath            string
	ParseMode             string
	UserAgent             string
	GinMode               string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		SearchURL:             DefaultSearchURL,
		Port:                  "5000",
		Timeout:               2 * time.Minute,
		ElementTimeout:        10 * time.Second,
		ResultTimeout:         10 * time.Second,
		MarketTimeout:         15 * time.Second,
		RequestDelay:          1 * time.Second,
		MaxRetries:            3,
		MaxConcurrentRequests: 5,
		UseHeadlessBrowser:    false,
		ParseMode:             ParseModeCells,
		UserAgent:             "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		GinMode:               "release",
	}
}

// ConfigFromEnv returns the default configuration overridden by environment variables.
// Unparseable values are ignored and the default is kept.
func ConfigFromEnv() *Config {
	config := DefaultConfig()

	if v := os.Getenv("PORT"); v != "" {
		config.Port = v
	}
	if v := os.Getenv("AGMARKNET_URL"); v != "" {
		config.SearchURL = v
	}
	if v := os.Getenv("CHROME_PATH"); v != "" {
		config.ChromePath = v
	}
	if v := os.Getenv("PARSE_MODE"); v == ParseModeCells || v == ParseModeFragments {
		config.ParseMode = v
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		config.GinMode = v
	}

	envDuration("SCRAPE_TIMEOUT", &config.Timeout)
	envDuration("ELEMENT_TIMEOUT", &config.ElementTimeout)
	envDuration("RESULT_TIMEOUT", &config.ResultTimeout)
	envDuration("MARKET_TIMEOUT", &config.MarketTimeout)
	envDuration("REQUEST_DELAY", &config.RequestDelay)
	envInt("MAX_RETRIES", &config.MaxRetries)
	envInt("MAX_CONCURRENT_SCRAPES", &config.MaxConcurrentRequests)

	if v := os.Getenv("USE_HEADLESS_BROWSER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.UseHeadlessBrowser = b
		}
	}

	return config
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = n
		}
	}
}

// Logger defines the logging interface
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
