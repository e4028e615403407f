package services

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

const defaultCrawlDelay = time.Second

// RobotsChecker answers whether a URL may be fetched, caching robots.txt per origin
type RobotsChecker struct {
	cache     *cache.Cache
	userAgent string
	client    *http.Client
}

// NewRobotsChecker creates a checker that identifies itself as userAgent
func NewRobotsChecker(userAgent string) *RobotsChecker {
	return &RobotsChecker{
		cache:     cache.New(24*time.Hour, time.Hour),
		userAgent: userAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// CanFetch reports whether target is allowed and the crawl delay to honor.
// A missing or unreadable robots.txt allows everything.
func (rc *RobotsChecker) CanFetch(ctx context.Context, target *url.URL) (bool, time.Duration) {
	origin := target.Scheme + "://" + target.Host

	robots, ok := rc.lookup(ctx, origin)
	if !ok {
		return true, defaultCrawlDelay
	}

	group := robots.FindGroup(rc.userAgent)
	return group.Test(target.Path), crawlDelay(group)
}

func (rc *RobotsChecker) lookup(ctx context.Context, origin string) (*robotstxt.RobotsData, bool) {
	if cached, found := rc.cache.Get(origin); found {
		robots, ok := cached.(*robotstxt.RobotsData)
		return robots, ok && robots != nil
	}

	robots := rc.fetch(ctx, origin)
	// negative results are cached too so unreachable origins are not re-probed per item
	rc.cache.Set(origin, robots, cache.DefaultExpiration)
	return robots, robots != nil
}

func (rc *RobotsChecker) fetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, "GET", origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}

	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return robots
}

func crawlDelay(group *robotstxt.Group) time.Duration {
	if group == nil || group.CrawlDelay <= 0 {
		return defaultCrawlDelay
	}
	if group.CrawlDelay > 10*time.Second {
		return 10 * time.Second
	}
	return group.CrawlDelay
}
