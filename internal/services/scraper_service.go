package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/markusmobius/go-trafilatura"
	cache "github.com/patrickmn/go-cache"

	"datapipe/internal/security"
)

const (
	defaultMaxBodySize   = 10 * 1024 * 1024
	defaultMaxConcurrent = 10
	defaultGlobalRate    = 10.0
	defaultPerScopeRate  = 5.0
)

// ScraperOptions configures a Scraper
type ScraperOptions struct {
	Timeout         time.Duration
	BrowserFallback bool
	// AllowPrivate disables the private-address check (local development and tests)
	AllowPrivate bool
}

// Scraper fetches URLs and extracts their main text for ingest
type Scraper struct {
	client       *ScraperClient
	limiter      *RateLimiter
	robots       *RobotsChecker
	contentCache *cache.Cache
	resources    *ResourceManager
	opts         ScraperOptions
}

// NewScraper creates a scraper with robots.txt compliance, rate limits and a one hour content cache
func NewScraper(opts ScraperOptions) *Scraper {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	s := &Scraper{
		client:       NewScraperClient(opts.Timeout),
		limiter:      NewRateLimiter(defaultGlobalRate, defaultPerScopeRate),
		robots:       NewRobotsChecker(scraperUserAgent),
		contentCache: cache.New(time.Hour, 10*time.Minute),
		resources:    NewResourceManager(defaultMaxConcurrent, defaultMaxBodySize),
		opts:         opts,
	}

	log.Printf("✅ [SCRAPER] Initialized: max_concurrent=%d, global_rate=%.1f req/s, browser_fallback=%v",
		defaultMaxConcurrent, defaultGlobalRate, opts.BrowserFallback)
	return s
}

// NormalizeURL prefixes https:// when the URL has no scheme
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// Fetch downloads rawURL on behalf of scope and returns its extracted text
func (s *Scraper) Fetch(ctx context.Context, scope, rawURL string) (string, error) {
	startTime := time.Now()
	urlStr := NormalizeURL(rawURL)

	target, err := s.validateURL(ctx, urlStr)
	if err != nil {
		return "", err
	}

	if cached, found := s.contentCache.Get(urlStr); found {
		log.Printf("✅ [SCRAPER] Cache hit for URL: %s", urlStr)
		return cached.(string), nil
	}

	allowed, delay := s.robots.CanFetch(ctx, target)
	if !allowed {
		return "", fmt.Errorf("access blocked by robots.txt for: %s", urlStr)
	}

	if err := s.limiter.Wait(ctx, scope, target.Host, delay); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	if err := s.resources.Acquire(ctx); err != nil {
		return "", err
	}
	defer s.resources.Release()

	content, err := s.fetchStatic(ctx, target)
	if err != nil && s.opts.BrowserFallback {
		log.Printf("⚠️  [SCRAPER] Static fetch failed for %s (%v), trying browser render", urlStr, err)
		content, err = s.fetchRendered(ctx, urlStr)
	}
	if err != nil {
		log.Printf("❌ [SCRAPER] Failed to fetch URL %s: %v", urlStr, err)
		return "", err
	}

	s.contentCache.Set(urlStr, content, cache.DefaultExpiration)

	log.Printf("✅ [SCRAPER] Fetched URL: %s (latency: %dms, length: %d chars)",
		urlStr, time.Since(startTime).Milliseconds(), len(content))
	return content, nil
}

func (s *Scraper) fetchStatic(ctx context.Context, target *url.URL) (string, error) {
	resp, err := s.client.Get(ctx, target.String())
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, resp.Status)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !isSupportedContentType(contentType) {
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := s.resources.ReadBody(resp.Body)
	if err != nil {
		return "", err
	}

	if strings.Contains(contentType, "text/plain") {
		return strings.TrimSpace(string(body)), nil
	}
	return extractMainText(body, target)
}

func (s *Scraper) fetchRendered(ctx context.Context, urlStr string) (string, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
	)...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, timeoutCancel := context.WithTimeout(browserCtx, s.opts.Timeout)
	defer timeoutCancel()

	var html string
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(urlStr),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("browser render failed: %w", err)
	}

	target, _ := url.Parse(urlStr)
	return extractMainText([]byte(html), target)
}

func extractMainText(body []byte, target *url.URL) (string, error) {
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{OriginalURL: target})
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}
	if result == nil || strings.TrimSpace(result.ContentText) == "" {
		return "", fmt.Errorf("no content extracted from page")
	}

	content := result.ContentText
	if title := strings.TrimSpace(result.Metadata.Title); title != "" {
		content = title + "\n\n" + content
	}
	return content, nil
}

// validateURL rejects non-HTTP schemes and, unless allowed, hosts that resolve to internal networks
func (s *Scraper) validateURL(ctx context.Context, urlStr string) (*url.URL, error) {
	parsed, err := security.ParseFetchURL(urlStr)
	if err != nil {
		return nil, err
	}
	if s.opts.AllowPrivate {
		return parsed, nil
	}
	if err := security.CheckHost(ctx, parsed.Hostname(), security.DefaultResolver); err != nil {
		return nil, err
	}
	return parsed, nil
}

func isSupportedContentType(contentType string) bool {
	for _, ct := range []string{"text/html", "text/plain", "application/xhtml+xml"} {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}
