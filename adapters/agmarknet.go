package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agmarknet-api/internal/types"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Element selectors on the search form
const (
	commoditySelector  = "#ddlCommodity"
	stateSelector      = "#ddlState"
	marketSelector     = "#ddlMarket"
	dateSelector       = "#txtDate"
	submitSelector     = "#btnGo"
	popupCloseSelector = ".popup-onload .close"
)

// The portal only accepts a date in this layout, e.g. 05-Jan-2025
const (
	SearchDateLayout     = "02-Jan-2006"
	SearchDateOffsetDays = 7
)

const pollInterval = 250 * time.Millisecond

// pollAttemptTimeout bounds one evaluation, which can hang while a postback swaps the document
const pollAttemptTimeout = 2 * time.Second

// settledJS declares settled(): the document has loaded and no navigation
// away from it has begun. The unload hook is installed on first call, so an
// autopostback fired by a change event flips settled() to false before the
// old document goes away.
const settledJS = `function settled() {
	var root = document.documentElement;
	if (!window.__unloadHook) {
		window.__unloadHook = true;
		window.addEventListener("beforeunload", function() { root.setAttribute("data-unloading", "1"); });
	}
	return document.readyState === "complete" && !root.hasAttribute("data-unloading");
}`

// selectOptionJS picks the option whose visible text matches exactly and fires
// the change event the page's postback handlers listen for. It reports
// "changed" when it moved the selection and "selected" once a later call finds
// the selection still in place.
var selectOptionJS = `(function(id, text) {
	` + settledJS + `
	if (!settled()) { return "loading"; }
	var el = document.getElementById(id);
	if (!el) { return "missing"; }
	for (var i = 0; i < el.options.length; i++) {
		if (el.options[i].text === text) {
			if (el.selectedIndex === i) { return "selected"; }
			el.selectedIndex = i;
			el.dispatchEvent(new Event("change", { bubbles: true }));
			return "changed";
		}
	}
	return "no-option";
})(%s, %s)`

// markStaleJS tags the elements a submit replaces. Waits after a submit only
// accept untagged elements, i.e. ones rendered by the page the submit loaded.
var markStaleJS = fmt.Sprintf(`(function() {
	[%q, %q].forEach(function(id) {
		var el = document.getElementById(id);
		if (el) { el.setAttribute("data-stale", "1"); }
	});
	return true;
})()`, marketSelector[1:], ResultGridID)

var dateReadyJS = fmt.Sprintf(`(function() {
	`+settledJS+`
	return settled() && !!document.getElementById(%q);
})()`, dateSelector[1:])

// marketReadyJS is true once the first submit has loaded a repopulated market list
var marketReadyJS = fmt.Sprintf(`(function() {
	`+settledJS+`
	var el = document.getElementById(%q);
	return settled() && !!el && !el.hasAttribute("data-stale") && el.options.length > 1;
})()`, marketSelector[1:])

var resultsReadyJS = fmt.Sprintf(`(function() {
	`+settledJS+`
	var el = document.getElementById(%q);
	return settled() && !!el && !el.hasAttribute("data-stale");
})()`, ResultGridID)

// AgmarknetAdapter drives the AgMarkNet commodity/market search form
type AgmarknetAdapter struct {
	*BaseAdapter
	layout TableLayout
	now    func() time.Time
}

// NewAgmarknetAdapter creates a new AgMarkNet adapter
func NewAgmarknetAdapter(config *types.Config, logger types.Logger) *AgmarknetAdapter {
	return &AgmarknetAdapter{
		BaseAdapter: NewBaseAdapter(config, logger),
		layout:      LayoutV1,
		now:         time.Now,
	}
}

// GetPortalName returns the portal name
func (a *AgmarknetAdapter) GetPortalName() string {
	return "agmarknet.gov.in"
}

// SearchDate returns the date typed into the form: always a week before today.
func (a *AgmarknetAdapter) SearchDate() string {
	return a.now().AddDate(0, 0, -SearchDateOffsetDays).Format(SearchDateLayout)
}

// ScrapePrices runs the whole search workflow in a fresh browser session
// and returns the parsed result grid. The session is closed on every path.
func (a *AgmarknetAdapter) ScrapePrices(ctx context.Context, query types.PriceQuery) ([]types.PriceRecord, error) {
	session, err := a.browserClient.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	browserCtx := session.Context()

	if err := a.Open(browserCtx); err != nil {
		return nil, err
	}

	a.DismissPopup(browserCtx)

	if err := a.FillSearchForm(browserCtx, query); err != nil {
		return nil, err
	}

	html, err := a.WaitForResults(browserCtx)
	if err != nil {
		return nil, err
	}

	records, err := ParsePriceTable(html, a.config.ParseMode, a.layout)
	if err != nil {
		return nil, err
	}

	a.logger.Debugf("Parsed %d price records for %s/%s/%s", len(records), query.Commodity, query.State, query.Market)
	return records, nil
}

// Open navigates the session to the search form
func (a *AgmarknetAdapter) Open(ctx context.Context) error {
	a.logger.Debugf("Opening search form %s", a.config.SearchURL)

	if err := chromedp.Run(ctx, chromedp.Navigate(a.config.SearchURL)); err != nil {
		return types.NewScrapeError(types.ErrCodeNavigation, "failed to open search form", err)
	}
	return nil
}

// DismissPopup closes the on-load announcement popup if the page shows one.
// A missing popup is the normal case; failures here never abort the scrape.
func (a *AgmarknetAdapter) DismissPopup(ctx context.Context) {
	var nodes []*cdp.Node
	err := a.runWithTimeout(ctx, a.config.ElementTimeout,
		chromedp.Nodes(popupCloseSelector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)),
	)
	if err != nil || len(nodes) == 0 {
		a.logger.Debug("Popup not found")
		return
	}

	if err := a.runWithTimeout(ctx, a.config.ElementTimeout, chromedp.MouseClickNode(nodes[0])); err != nil {
		a.logger.Warnf("Failed to close popup: %v", err)
		return
	}
	a.logger.Debug("Popup closed")
}

// FillSearchForm selects commodity and state, enters the date, submits,
// then selects the market once it is available and submits again.
func (a *AgmarknetAdapter) FillSearchForm(ctx context.Context, query types.PriceQuery) error {
	a.logger.Debug("Commodity")
	if err := a.selectByVisibleText(ctx, commoditySelector, query.Commodity); err != nil {
		return err
	}

	a.logger.Debug("State")
	if err := a.selectByVisibleText(ctx, stateSelector, query.State); err != nil {
		return err
	}

	date := a.SearchDate()
	a.logger.Debugf("Date %s", date)
	if err := a.waitUntil(ctx, a.config.ElementTimeout, dateReadyJS); err != nil {
		return a.lookupError(ctx, dateSelector, err)
	}
	err := a.runWithTimeout(ctx, a.config.ElementTimeout,
		chromedp.Clear(dateSelector, chromedp.ByQuery),
		chromedp.SendKeys(dateSelector, date, chromedp.ByQuery),
	)
	if err != nil {
		return a.lookupError(ctx, dateSelector, err)
	}

	a.logger.Debug("Click")
	if err := a.submit(ctx); err != nil {
		return err
	}

	if err := a.waitUntil(ctx, a.config.MarketTimeout, marketReadyJS); err != nil {
		return a.waitError(ctx, "market list was not populated", err)
	}

	a.logger.Debug("Market")
	if err := a.selectByVisibleText(ctx, marketSelector, query.Market); err != nil {
		return err
	}

	a.logger.Debug("Click")
	return a.submit(ctx)
}

// WaitForResults waits for the price grid and returns a snapshot of the page markup
func (a *AgmarknetAdapter) WaitForResults(ctx context.Context) (string, error) {
	if err := a.waitUntil(ctx, a.config.ResultTimeout, resultsReadyJS); err != nil {
		return "", a.waitError(ctx, "results grid did not appear", err)
	}

	var html string
	err := a.runWithTimeout(ctx, a.config.ElementTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		return "", a.lookupError(ctx, "html", err)
	}

	a.logger.Debugf("Captured results page (%d bytes)", len(html))
	return html, nil
}

// ListOptions returns the commodities and states offered by the search form
func (a *AgmarknetAdapter) ListOptions(ctx context.Context) (*types.SearchOptions, error) {
	html, err := a.GetPageContent(ctx, a.config.SearchURL)
	if err != nil {
		return nil, types.NewScrapeError(types.ErrCodeFetchFailed, "failed to fetch search form", err)
	}

	return a.ParseSearchOptions(html)
}

// ParseSearchOptions extracts the dropdown values from search form markup
func (a *AgmarknetAdapter) ParseSearchOptions(html string) (*types.SearchOptions, error) {
	doc, err := a.ParseHTML(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search form: %w", err)
	}

	commodities, err := a.ExtractOptionTexts(doc, commoditySelector)
	if err != nil {
		return nil, types.NewScrapeError(types.ErrCodeElementMissing, "commodity list", err)
	}
	states, err := a.ExtractOptionTexts(doc, stateSelector)
	if err != nil {
		return nil, types.NewScrapeError(types.ErrCodeElementMissing, "state list", err)
	}

	return &types.SearchOptions{Commodities: commodities, States: states}, nil
}

// selectByVisibleText keeps selecting until a settled page shows the option
// selected, so a selection lost to an autopostback is made again.
func (a *AgmarknetAdapter) selectByVisibleText(ctx context.Context, selector, text string) error {
	id, _ := json.Marshal(selector[1:])
	label, _ := json.Marshal(text)

	result, err := a.poll(ctx, a.config.ElementTimeout, fmt.Sprintf(selectOptionJS, id, label), func(result string) bool {
		return result == "selected" || result == "no-option"
	})
	switch {
	case result == "no-option":
		return types.NewScrapeError(types.ErrCodeOptionMissing,
			fmt.Sprintf("could not locate element with visible text: %s", text), nil)
	case err != nil:
		return a.lookupError(ctx, selector, err)
	}
	return nil
}

// submit clicks Go after tagging the current page, so the next wait cannot
// be satisfied by what the click is about to replace.
func (a *AgmarknetAdapter) submit(ctx context.Context) error {
	var marked bool
	err := a.runWithTimeout(ctx, a.config.ElementTimeout,
		chromedp.WaitVisible(submitSelector, chromedp.ByQuery),
		chromedp.Evaluate(markStaleJS, &marked),
		chromedp.Click(submitSelector, chromedp.ByQuery),
	)
	if err != nil {
		return a.lookupError(ctx, submitSelector, err)
	}
	return nil
}

// runWithTimeout bounds a group of actions the way an implicit wait bounds lookups
func (a *AgmarknetAdapter) runWithTimeout(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return chromedp.Run(stepCtx, actions...)
}

// waitUntil polls a JavaScript condition until it holds or timeout passes.
func (a *AgmarknetAdapter) waitUntil(ctx context.Context, timeout time.Duration, condition string) error {
	_, err := a.poll(ctx, timeout, "(("+condition+") ? \"ready\" : \"\")", func(result string) bool {
		return result == "ready"
	})
	return err
}

// poll evaluates expr until done accepts its result or timeout passes, and
// returns the last result seen. Evaluation errors are retried since postbacks
// replace the document mid-poll.
func (a *AgmarknetAdapter) poll(ctx context.Context, timeout time.Duration, expr string, done func(string) bool) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last string
	for {
		var result string
		if err := a.runWithTimeout(waitCtx, pollAttemptTimeout, chromedp.Evaluate(expr, &result)); err == nil {
			last = result
			if done(result) {
				return result, nil
			}
		}

		select {
		case <-waitCtx.Done():
			return last, waitCtx.Err()
		case <-ticker.C:
		}
	}
}

// lookupError turns a timed-out element lookup into ELEMENT_NOT_FOUND
func (a *AgmarknetAdapter) lookupError(ctx context.Context, selector string, err error) error {
	if ctx.Err() != nil {
		return types.NewScrapeError(types.ErrCodeTimeout, "scrape cancelled", ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewScrapeError(types.ErrCodeElementMissing, fmt.Sprintf("element %s not found", selector), err)
	}
	return types.NewScrapeError(types.ErrCodeBrowser, fmt.Sprintf("interaction with %s failed", selector), err)
}

func (a *AgmarknetAdapter) waitError(ctx context.Context, message string, err error) error {
	if ctx.Err() != nil {
		return types.NewScrapeError(types.ErrCodeTimeout, "scrape cancelled", ctx.Err())
	}
	return types.NewScrapeError(types.ErrCodeTimeout, message, err)
}
