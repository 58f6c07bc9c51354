package adapters

import (
	"context"
	"fmt"
	"strings"

	"agmarknet-api/internal/types"
	"agmarknet-api/utils"

	"github.com/PuerkitoBio/goquery"
)

// BaseAdapter provides common functionality for portal adapters.
// It owns the HTTP and browser clients and the HTML helpers built on goquery.
type BaseAdapter struct {
	config        *types.Config        // Configuration settings (timeouts, browser settings, etc.)
	logger        types.Logger         // Structured logging interface
	httpClient    *utils.HTTPClient    // HTTP client for server-rendered pages
	browserClient *utils.BrowserClient // Headless browser client for the search workflow
}

// NewBaseAdapter creates a new base adapter with initialized HTTP and browser clients.
func NewBaseAdapter(config *types.Config, logger types.Logger) *BaseAdapter {
	return &BaseAdapter{
		config:        config,
		logger:        logger,
		httpClient:    utils.NewHTTPClient(config, logger),
		browserClient: utils.NewBrowserClient(config, logger),
	}
}

// GetPageContent retrieves the HTML content of a page using either HTTP client or headless browser.
// The choice between HTTP and browser is determined by the UseHeadlessBrowser configuration.
func (b *BaseAdapter) GetPageContent(ctx context.Context, url string) (string, error) {
	if b.config.UseHeadlessBrowser {
		return b.browserClient.GetPageContent(ctx, url)
	}

	body, err := b.httpClient.Get(ctx, url)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

// ParseHTML parses HTML content into a goquery document
func (b *BaseAdapter) ParseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// ExtractOptionTexts returns the visible texts of a select element's options,
// skipping blanks and "--Select--" style placeholders.
func (b *BaseAdapter) ExtractOptionTexts(doc *goquery.Document, selectSelector string) ([]string, error) {
	sel := doc.Find(selectSelector)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("element not found with selector: %s", selectSelector)
	}

	options := []string{}
	sel.First().Find("option").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" || strings.HasPrefix(text, "--") {
			return
		}
		options = append(options, text)
	})

	return options, nil
}

// Close cleans up resources
func (b *BaseAdapter) Close() {
	if b.httpClient != nil {
		b.httpClient.Close()
	}
}

// Config returns the adapter configuration
func (b *BaseAdapter) Config() *types.Config {
	return b.config
}
