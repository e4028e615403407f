package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

const scraperUserAgent = "datapipe-bot/1.0"

// ScraperClient is the HTTP client used for URL ingest
type ScraperClient struct {
	httpClient *http.Client
	userAgent  string
}

// NewScraperClient creates a pooled HTTP client with a bounded redirect chain
func NewScraperClient(timeout time.Duration) *ScraperClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &ScraperClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects (max 10)")
				}
				return nil
			},
		},
		userAgent: scraperUserAgent,
	}
}

// Get performs a GET with browser-like accept headers
func (c *ScraperClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	return c.httpClient.Do(req)
}
