package npb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

const (
	// DefaultURLPattern takes the four-digit year and the yyyymmdd date.
	DefaultURLPattern = "https://www.nikkansports.com/baseball/professional/score/%d/pf-score-%s.html"

	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// MinRequestInterval keeps consecutive page loads at least this far apart.
	MinRequestInterval = time.Second

	DefaultFetchTimeout = 30 * time.Second
)

// Fetcher loads the rendered HTML of one score page.
type Fetcher interface {
	FetchDate(ctx context.Context, date time.Time) (string, error)
}

// ClientOptions tunes the browser client. Zero values fall back to defaults.
type ClientOptions struct {
	URLPattern string
	Interval   time.Duration
	Timeout    time.Duration
	Headless   bool
}

// Client renders score pages in headless Chrome, one page at a time.
type Client struct {
	urlPattern string
	interval   time.Duration
	timeout    time.Duration
	logger     *logging.Logger

	mu          sync.Mutex
	lastRequest time.Time

	allocCtx context.Context
	cancel   context.CancelFunc
}

// NewClient starts the browser allocator. The browser itself launches on first fetch.
func NewClient(opts ClientOptions, logger *logging.Logger) *Client {
	if opts.URLPattern == "" {
		opts.URLPattern = DefaultURLPattern
	}
	if opts.Interval <= 0 {
		opts.Interval = MinRequestInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(UserAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	return &Client{
		urlPattern: opts.URLPattern,
		interval:   opts.Interval,
		timeout:    opts.Timeout,
		logger:     logger.Named("npb_client"),
		allocCtx:   allocCtx,
		cancel:     cancel,
	}
}

// Close shuts the browser down.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

// ScoreURL is the page address for date.
func (c *Client) ScoreURL(date time.Time) string {
	return ScoreURL(c.urlPattern, date)
}

// ScoreURL formats pattern with the year and compact date of date.
func ScoreURL(pattern string, date time.Time) string {
	d := league.Day(date)
	return fmt.Sprintf(pattern, d.Year(), d.Format("20060102"))
}

// FetchDate renders the score page for date. Calls are serialized and spaced by the
// client interval.
func (c *Client) FetchDate(ctx context.Context, date time.Time) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastRequest.IsZero() {
		if wait := c.interval - time.Since(c.lastRequest); wait > 0 {
			c.logger.Debug("rate limiting", "wait", wait)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	html, err := c.fetch(ctx, c.ScoreURL(date))
	c.lastRequest = time.Now()
	return html, err
}

func (c *Client) fetch(ctx context.Context, url string) (string, error) {
	browserCtx, cancel := chromedp.NewContext(c.allocCtx)
	defer cancel()
	browserCtx, cancel = context.WithTimeout(browserCtx, c.timeout)
	defer cancel()

	// Stop the browser tab when the caller gives up.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.OuterHTML(`html`, &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "render %s", url), league.ErrDependencyUnavailable)
	}
	if html == "" {
		return "", errors.Wrapf(league.ErrDependencyUnavailable, "empty document from %s", url)
	}
	return html, nil
}
