package adapters

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"agmarknet-api/internal/types"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	portalCommodities = []string{"Onion", "Tomato"}
	portalStates      = []string{"Karnataka", "Maharashtra"}
	portalMarkets     = []string{"Mumbai", "Pune(Pimpri)", "Vashi"}
)

// fakePortal mimics the search form's postbacks. The first Go answers with
// the market list and a state-wide grid, the second with the market's grid.
type fakePortal struct {
	popup        bool
	autoPostback bool
	gridDelay    time.Duration

	mu            sync.Mutex
	submits       []url.Values
	autoPostbacks int
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if r.Method != http.MethodPost {
		fmt.Fprint(w, p.page(url.Values{"txtDate": {"01-Jan-2000"}}, p.popup, nil, ""))
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	if r.PostForm.Get("btnGo") == "" {
		p.autoPostbacks++
	} else {
		p.submits = append(p.submits, r.PostForm)
	}
	p.mu.Unlock()

	switch {
	case r.PostForm.Get("btnGo") == "":
		fmt.Fprint(w, p.page(r.PostForm, false, nil, ""))
	case r.PostForm.Get("ddlMarket") == "0":
		fmt.Fprint(w, p.page(r.PostForm, false, portalMarkets, gridHeader+cellRow(puneRow...)))
	case r.PostForm.Get("ddlMarket") == "Mumbai":
		time.Sleep(p.gridDelay)
		fmt.Fprint(w, p.page(r.PostForm, false, portalMarkets, gridHeader+cellRow(mumbaiRow...)))
	default:
		fmt.Fprint(w, p.page(r.PostForm, false, portalMarkets, ""))
	}
}

func (p *fakePortal) page(form url.Values, popup bool, markets []string, gridRows string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if popup {
		b.WriteString(`<div class="popup-onload" id="popup"><span class="close" ` +
			`onclick="document.getElementById('popup').style.display='none'">X</span> Prices are indicative</div>`)
	}
	b.WriteString(`<form method="post">`)
	commodityChange := ""
	if p.autoPostback {
		commodityChange = "this.form.submit()"
	}
	writeSelect(&b, "ddlCommodity", commodityChange, portalCommodities, form.Get("ddlCommodity"))
	writeSelect(&b, "ddlState", "", portalStates, form.Get("ddlState"))
	writeSelect(&b, "ddlMarket", "", markets, form.Get("ddlMarket"))
	fmt.Fprintf(&b, `<input type="text" id="txtDate" name="txtDate" value="%s">`, html.EscapeString(form.Get("txtDate")))
	b.WriteString(`<input type="submit" id="btnGo" name="btnGo" value="Go"></form>`)
	if gridRows != "" {
		fmt.Fprintf(&b, `<table id="%s">%s</table>`, ResultGridID, gridRows)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func writeSelect(b *strings.Builder, id, onchange string, options []string, selected string) {
	fmt.Fprintf(b, `<select id="%s" name="%s" onchange="%s"><option value="0">--Select--</option>`, id, id, onchange)
	for _, option := range options {
		attr := ""
		if option == selected {
			attr = " selected"
		}
		fmt.Fprintf(b, `<option value="%s"%s>%s</option>`, html.EscapeString(option), attr, html.EscapeString(option))
	}
	b.WriteString("</select>")
}

func (p *fakePortal) received() ([]url.Values, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.submits...), p.autoPostbacks
}

func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in short mode")
	}
	if path := os.Getenv("CHROME_PATH"); path != "" {
		return path
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("Chrome not found; set CHROME_PATH to run browser tests")
	return ""
}

// newBrowserTestAdapter points an adapter at portal and skips the test when
// Chrome is missing or cannot start here.
func newBrowserTestAdapter(t *testing.T, portal *fakePortal) *AgmarknetAdapter {
	t.Helper()
	chrome := findChrome(t)

	server := httptest.NewServer(portal)
	t.Cleanup(server.Close)

	config := types.DefaultConfig()
	config.SearchURL = server.URL + "/SearchCmmMkt.aspx"
	config.ChromePath = chrome
	config.ElementTimeout = 5 * time.Second
	config.MarketTimeout = 5 * time.Second
	config.ResultTimeout = 5 * time.Second

	adapter := newTestAdapter(config)
	t.Cleanup(adapter.Close)
	adapter.now = func() time.Time { return time.Date(2025, time.January, 12, 9, 30, 0, 0, time.UTC) }

	session, err := adapter.browserClient.NewSession(context.Background())
	if err != nil {
		t.Skipf("Chrome failed to start: %v", err)
	}
	session.Close()

	return adapter
}

func scrapeContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	return ctx
}

var mumbaiQuery = types.PriceQuery{Commodity: "Tomato", State: "Maharashtra", Market: "Mumbai"}

func TestScrapePrices_Browser(t *testing.T) {
	for _, popup := range []bool{true, false} {
		t.Run(fmt.Sprintf("popup=%v", popup), func(t *testing.T) {
			portal := &fakePortal{popup: popup, gridDelay: 700 * time.Millisecond}
			adapter := newBrowserTestAdapter(t, portal)

			records, err := adapter.ScrapePrices(scrapeContext(t), mumbaiQuery)

			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, types.PriceRecord{
				SerialNumber: "1",
				City:         "Mumbai",
				Commodity:    "Tomato",
				MinPrice:     "1000",
				MaxPrice:     "1600",
				ModalPrice:   "1300",
				Date:         "12 Oct 2026",
			}, records[0])

			submits, _ := portal.received()
			require.Len(t, submits, 2)
			assert.Equal(t, "Tomato", submits[0].Get("ddlCommodity"))
			assert.Equal(t, "Maharashtra", submits[0].Get("ddlState"))
			assert.Equal(t, "0", submits[0].Get("ddlMarket"))
			assert.Equal(t, "05-Jan-2025", submits[0].Get("txtDate"))
			assert.Equal(t, adapter.SearchDate(), submits[0].Get("txtDate"))
			assert.Equal(t, "Mumbai", submits[1].Get("ddlMarket"))
			assert.Equal(t, "05-Jan-2025", submits[1].Get("txtDate"))
		})
	}
}

func TestScrapePrices_BrowserAutoPostback(t *testing.T) {
	portal := &fakePortal{autoPostback: true}
	adapter := newBrowserTestAdapter(t, portal)

	records, err := adapter.ScrapePrices(scrapeContext(t), mumbaiQuery)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Mumbai", records[0].City)

	submits, autoPostbacks := portal.received()
	assert.GreaterOrEqual(t, autoPostbacks, 1)
	require.Len(t, submits, 2)
	assert.Equal(t, "Tomato", submits[0].Get("ddlCommodity"))
	assert.Equal(t, "Maharashtra", submits[0].Get("ddlState"))
}

func TestScrapePrices_BrowserUnknownCommodity(t *testing.T) {
	portal := &fakePortal{popup: true}
	adapter := newBrowserTestAdapter(t, portal)

	_, err := adapter.ScrapePrices(scrapeContext(t),
		types.PriceQuery{Commodity: "NotARealCrop123", State: "Maharashtra", Market: "Mumbai"})

	require.Error(t, err)
	assert.Equal(t, types.ErrCodeOptionMissing, types.ErrorCode(err))
	assert.Contains(t, err.Error(), "NotARealCrop123")

	submits, _ := portal.received()
	assert.Empty(t, submits)
}

func TestScrapePrices_BrowserGridMissing(t *testing.T) {
	portal := &fakePortal{}
	adapter := newBrowserTestAdapter(t, portal)
	adapter.config.ResultTimeout = 2 * time.Second

	_, err := adapter.ScrapePrices(scrapeContext(t),
		types.PriceQuery{Commodity: "Tomato", State: "Maharashtra", Market: "Vashi"})

	require.Error(t, err)
	assert.Equal(t, types.ErrCodeTimeout, types.ErrorCode(err))
	assert.Contains(t, err.Error(), "results grid did not appear")

	submits, _ := portal.received()
	assert.Len(t, submits, 2)
}

func TestDismissPopup_Browser(t *testing.T) {
	adapter := newBrowserTestAdapter(t, &fakePortal{popup: true})

	session, err := adapter.browserClient.NewSession(scrapeContext(t))
	require.NoError(t, err)
	defer session.Close()

	ctx := session.Context()
	require.NoError(t, adapter.Open(ctx))

	adapter.DismissPopup(ctx)

	var display string
	require.NoError(t, chromedp.Run(ctx,
		chromedp.Evaluate(`getComputedStyle(document.getElementById("popup")).display`, &display)))
	assert.Equal(t, "none", display)
}
