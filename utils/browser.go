package utils

import (
	"context"
	"fmt"

	"agmarknet-api/internal/types"

	"github.com/chromedp/chromedp"
)

// BrowserClient provides headless browser functionality
type BrowserClient struct {
	config *types.Config
	logger types.Logger
}

// NewBrowserClient creates a new browser client
func NewBrowserClient(config *types.Config, logger types.Logger) *BrowserClient {
	return &BrowserClient{
		config: config,
		logger: logger,
	}
}

// Session is a single headless Chrome process with one tab.
// A session must be closed once the caller is done with it.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Context returns the chromedp context of the session's tab
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close shuts down the tab and the browser process. It is safe to call more than once.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// allocatorOptions returns the Chrome flags used for every session
func (b *BrowserClient) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
		chromedp.WindowSize(1920, 1080),
	)
	if b.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.config.UserAgent))
	}
	if b.config.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(b.config.ChromePath))
	}
	return opts
}

// NewSession launches a fresh browser bound to ctx.
// Cancelling ctx also tears the browser down.
func (b *BrowserClient) NewSession(ctx context.Context) (*Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithErrorf(b.logger.Debugf))

	session := &Session{
		ctx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}

	// An empty Run starts the browser so launch failures surface here
	if err := chromedp.Run(browserCtx); err != nil {
		session.Close()
		return nil, types.NewScrapeError(types.ErrCodeBrowser, "failed to start browser", err)
	}

	b.logger.Debug("Browser session started")
	return session, nil
}

// GetPageContent retrieves the HTML content of a page using headless browser
func (b *BrowserClient) GetPageContent(ctx context.Context, url string) (string, error) {
	session, err := b.NewSession(ctx)
	if err != nil {
		return "", err
	}
	defer session.Close()

	browserCtx, cancel := context.WithTimeout(session.Context(), b.config.Timeout)
	defer cancel()

	var html string
	err = chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}

	b.logger.Debugf("Successfully retrieved page content from %s (%d bytes)", url, len(html))
	return html, nil
}
