package scrape

import (
	"bytes"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// defaultUserAgents is the pool of realistic desktop browser identities
// rotated across attempts to reduce signature-based blocking.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// maxBodyBytes caps how much of a response body is read. Grant listing
// pages are small; anything larger is not worth parsing.
const maxBodyBytes = 10 * 1024 * 1024

// FetcherConfig controls retry, backoff, and timeout behaviour.
type FetcherConfig struct {
	// MaxRetries is the attempt budget per candidate URL.
	MaxRetries int
	// BackoffFactor scales the exponential backoff between attempts,
	// in seconds.
	BackoffFactor float64
	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
	// ReadTimeout bounds waiting for the response.
	ReadTimeout time.Duration
	// UserAgents overrides the default identity pool when non-empty.
	UserAgents []string
}

// DefaultFetcherConfig returns the stock fetch configuration.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		MaxRetries:     3,
		BackoffFactor:  1.0,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,
	}
}

// Fetcher retrieves parsed HTML for a logical resource despite transient
// network failures, anti-scraping defenses, and dead URLs. It consults a
// RateLimiter before every attempt and reports outcomes back to it.
//
// A Fetcher owns its HTTP client and is meant to serve one calling
// goroutine at a time.
type Fetcher struct {
	cfg     FetcherConfig
	client  *http.Client
	limiter *RateLimiter
	log     *zap.Logger
	clk     clock

	// lookupHost performs the cheap DNS reachability pre-check. Swappable
	// in tests.
	lookupHost func(host string) ([]string, error)
}

// NewFetcher creates a fetcher backed by the given rate limiter. Zero-value
// config fields fall back to defaults; a nil logger becomes a nop logger.
func NewFetcher(cfg FetcherConfig, limiter *RateLimiter, log *zap.Logger) *Fetcher {
	def := DefaultFetcherConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}
	if log == nil {
		log = zap.NewNop()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
			Transport: transport,
		},
		limiter:    limiter,
		log:        log,
		clk:        realClock{},
		lookupHost: net.LookupHost,
	}
}

// FetchWithFallbacks retrieves parsed HTML for a logical resource. The
// primary URL and then each fallback are tried in order; the first URL that
// yields usable content wins. Ordinary network and HTTP failures are never
// surfaced as errors -- exhausting every candidate returns nil, and callers
// are expected to fall back to sample data.
func (f *Fetcher) FetchWithFallbacks(primary string, fallbacks []string) *goquery.Document {
	candidates := append([]string{primary}, fallbacks...)

	for _, candidate := range candidates {
		domain := domainOf(candidate)
		if domain == "" {
			f.log.Debug("skipping candidate with unparseable URL",
				zap.String("url", candidate))
			continue
		}

		// Cheap reachability check: a domain that does not resolve is
		// skipped without consuming a rate slot or any retry budget.
		if addrs, err := f.lookupHost(domain); err != nil || len(addrs) == 0 {
			f.log.Debug("domain does not resolve, skipping candidate",
				zap.String("domain", domain))
			continue
		}

		if doc := f.fetchURL(candidate, domain); doc != nil {
			return doc
		}
	}

	return nil
}

// fetchURL tries a single candidate URL up to the retry budget, pacing each
// attempt through the rate limiter. Returns nil once the budget is spent or
// the URL is judged a permanent miss.
func (f *Fetcher) fetchURL(rawURL, domain string) *goquery.Document {
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		if err := f.limiter.Wait(domain); err != nil {
			// Cooling-down domains are skipped, not retried; the budget is
			// not charged.
			f.log.Info("domain in cooldown, abandoning candidate",
				zap.String("domain", domain),
				zap.Error(err))
			return nil
		}

		if attempt > 1 {
			f.clk.Sleep(f.backoff(attempt))
		}

		status, body, err := f.attempt(rawURL)

		switch classifyOutcome(status, err, len(bytes.TrimSpace(body)) == 0) {
		case outcomeSuccess:
			f.limiter.AdjustRate(domain, true)
			doc, perr := goquery.NewDocumentFromReader(bytes.NewReader(body))
			if perr != nil {
				f.log.Warn("failed to parse fetched markup",
					zap.String("url", rawURL),
					zap.Error(perr))
				return nil
			}
			return doc

		case outcomeRetryRotate:
			// Soft block. A fresh identity is picked on the next attempt;
			// pause briefly before presenting it.
			f.log.Debug("request forbidden, rotating identity",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt))
			f.clk.Sleep(time.Duration(f.cfg.BackoffFactor * float64(time.Second)))

		case outcomeAbandonURL:
			f.log.Debug("resource not found, abandoning candidate",
				zap.String("url", rawURL))
			return nil

		case outcomeCooldown:
			f.limiter.AdjustRate(domain, false)
			cooldown := time.Duration(60*math.Pow(2, float64(attempt))) * time.Second
			f.limiter.AddCooldown(domain, cooldown)

		case outcomeRetry:
			f.limiter.AdjustRate(domain, false)
			f.log.Debug("transient fetch failure",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Int("status", status),
				zap.Error(err))
		}
	}

	return nil
}

// attempt issues a single GET request with a freshly rotated identity and
// returns the status code and body. A non-nil error indicates a transport
// failure (connection error, timeout, truncated body).
func (f *Fetcher) attempt(rawURL string) (int, []byte, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, body, nil
}

// userAgent picks a random identity from the pool.
func (f *Fetcher) userAgent() string {
	return f.cfg.UserAgents[rand.Intn(len(f.cfg.UserAgents))]
}

// backoff computes the randomized exponential delay before the given
// attempt. Jitter up to half the base delay spreads retries from multiple
// sources against the same host.
func (f *Fetcher) backoff(attempt int) time.Duration {
	base := f.cfg.BackoffFactor * math.Pow(2, float64(attempt-2)) * float64(time.Second)
	jitter := rand.Float64() * 0.5 * base
	return time.Duration(base + jitter)
}

// domainOf extracts the host portion of a URL, the unit of rate limiting.
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
