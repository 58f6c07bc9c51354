package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agmarknet-api/adapters"
	"agmarknet-api/internal/types"

	"golang.org/x/sync/semaphore"
)

// PriceExtractor runs AgMarkNet searches, one browser session per call
type PriceExtractor struct {
	adapter *adapters.AgmarknetAdapter
	config  *types.Config
	logger  types.Logger
	slots   *semaphore.Weighted
}

// NewPriceExtractor creates a new price extractor.
// MaxConcurrentRequests caps the number of browsers alive at once; zero means no cap.
func NewPriceExtractor(config *types.Config, logger types.Logger) *PriceExtractor {
	e := &PriceExtractor{
		adapter: adapters.NewAgmarknetAdapter(config, logger),
		config:  config,
		logger:  logger,
	}
	if config.MaxConcurrentRequests > 0 {
		e.slots = semaphore.NewWeighted(int64(config.MaxConcurrentRequests))
	}
	return e
}

// FetchPrices runs one search and returns the price grid rows
func (e *PriceExtractor) FetchPrices(ctx context.Context, query types.PriceQuery) ([]types.PriceRecord, error) {
	if missing := query.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("missing query parameters: %s", strings.Join(missing, ", "))
	}

	if e.slots != nil {
		if err := e.slots.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer e.slots.Release(1)
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	e.logger.Infof("Starting %s search for commodity=%q state=%q market=%q",
		e.adapter.GetPortalName(), query.Commodity, query.State, query.Market)

	records, err := e.adapter.ScrapePrices(ctx, query)
	if err != nil {
		e.logger.Warnf("Search failed after %v: %v", time.Since(startTime), err)
		return nil, err
	}

	e.logger.Infof("Search completed in %v with %d records", time.Since(startTime), len(records))
	return records, nil
}

// ListOptions returns the commodities and states offered by the portal
func (e *PriceExtractor) ListOptions(ctx context.Context) (*types.SearchOptions, error) {
	options, err := e.adapter.ListOptions(ctx)
	if err != nil {
		return nil, err
	}

	e.logger.Debugf("Found %d commodities and %d states", len(options.Commodities), len(options.States))
	return options, nil
}

// Close cleans up resources
func (e *PriceExtractor) Close() {
	if e.adapter != nil {
		e.adapter.Close()
	}
}
