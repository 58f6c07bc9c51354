package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"agmarknet-api/extractor"
	"agmarknet-api/internal/types"
	"agmarknet-api/utils"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	config := types.ConfigFromEnv()

	var (
		commodityFlag = flag.String("commodity", "", "Commodity exactly as listed on the portal (e.g. Tomato)")
		stateFlag     = flag.String("state", "", "State exactly as listed on the portal (e.g. Maharashtra)")
		marketFlag    = flag.String("market", "", "Market exactly as listed on the portal (e.g. Mumbai)")
		optionsFlag   = flag.Bool("options", false, "List commodities and states instead of searching")
		outputFlag    = flag.String("output", "", "Output file path (default: stdout)")
		timeout       = flag.Duration("timeout", config.Timeout, "Overall scrape timeout")
		parseMode     = flag.String("parse-mode", config.ParseMode, "Result grid parser: cells or fragments")
		useBrowser    = flag.Bool("browser", config.UseHeadlessBrowser, "Fetch the search form with the headless browser when listing options")
		verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logger := utils.NewLogger(*verbose)

	if err := validateParseMode(*parseMode); err != nil {
		logger.Fatal(err)
	}

	config.Timeout = *timeout
	config.ParseMode = *parseMode
	config.UseHeadlessBrowser = *useBrowser

	opts := runOptions{
		query:       types.PriceQuery{Commodity: *commodityFlag, State: *stateFlag, Market: *marketFlag},
		listOptions: *optionsFlag,
		output:      *outputFlag,
	}
	if err := run(config, logger, opts); err != nil {
		logger.Fatal(err)
	}
}

type runOptions struct {
	query       types.PriceQuery
	listOptions bool
	output      string
}

func validateParseMode(mode string) error {
	switch mode {
	case types.ParseModeCells, types.ParseModeFragments:
		return nil
	default:
		return fmt.Errorf("invalid -parse-mode %q: must be %s or %s", mode, types.ParseModeCells, types.ParseModeFragments)
	}
}

// run does one search or option listing. Returning instead of exiting lets
// the deferred browser and HTTP cleanup run on every path.
func run(config *types.Config, logger *logrus.Logger, opts runOptions) error {
	if !opts.listOptions {
		if missing := opts.query.Missing(); len(missing) > 0 {
			return fmt.Errorf("flags required: %v", missing)
		}
	}

	prices := extractor.NewPriceExtractor(config, logger)
	defer prices.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout+30*time.Second)
	defer cancel()

	var result interface{}
	if opts.listOptions {
		list, err := prices.ListOptions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list options: %w", err)
		}
		result = list
	} else {
		records, err := prices.FetchPrices(ctx, opts.query)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		logger.Infof("Total records found: %d", len(records))
		result = records
	}

	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, jsonData, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		logger.Infof("Results written to: %s", opts.output)
		return nil
	}

	fmt.Println(string(jsonData))
	return nil
}
