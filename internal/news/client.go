package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/attendbot/backend/pkg/logger"
	"github.com/attendbot/backend/pkg/retry"
)

// HeadlineCache is the subset of the redis client the news fetcher uses.
type HeadlineCache interface {
	GetHeadlines(ctx context.Context) ([]string, bool, error)
	SetHeadlines(ctx context.Context, headlines []string, ttl time.Duration) error
}

// Client fetches current headlines. With an API key it calls the
// NewsAPI top-headlines endpoint; without one it falls back to scraping
// a lightweight news page.
type Client struct {
	apiKey      string
	fallbackURL string
	cache       HeadlineCache
	cacheTTL    time.Duration
	httpClient  *http.Client
	retryConfig retry.Config
}

func NewClient(apiKey, fallbackURL string, cache HeadlineCache, cacheTTL time.Duration) *Client {
	return &Client{
		apiKey:      apiKey,
		fallbackURL: fallbackURL,
		cache:       cache,
		cacheTTL:    cacheTTL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryConfig: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}
}

// Headlines returns up to maxResults current headlines, served from
// cache when available.
func (c *Client) Headlines(ctx context.Context, maxResults int) ([]string, error) {
	if c.cache != nil {
		cached, ok, err := c.cache.GetHeadlines(ctx)
		if err != nil {
			logger.Warn("Headline cache lookup failed", zap.Error(err))
		}
		if ok {
			return trim(cached, maxResults), nil
		}
	}

	headlines, err := retry.DoWithResult(ctx, c.retryConfig, func() ([]string, error) {
		if c.apiKey != "" {
			return c.fetchFromAPI(ctx, maxResults)
		}
		return c.scrapeFallback(ctx, maxResults)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch headlines: %w", err)
	}

	if c.cache != nil && len(headlines) > 0 {
		if err := c.cache.SetHeadlines(ctx, headlines, c.cacheTTL); err != nil {
			logger.Warn("Failed to cache headlines", zap.Error(err))
		}
	}

	logger.Info("Headlines fetched", zap.Int("count", len(headlines)))
	return headlines, nil
}

func (c *Client) fetchFromAPI(ctx context.Context, maxResults int) ([]string, error) {
	params := url.Values{}
	params.Add("country", "us")
	params.Add("pageSize", fmt.Sprintf("%d", maxResults))
	params.Add("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("https://newsapi.org/v2/top-headlines?%s", params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call news API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("news API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp struct {
		Articles []struct {
			Title string `json:"title"`
		} `json:"articles"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	headlines := make([]string, 0, len(apiResp.Articles))
	for _, a := range apiResp.Articles {
		if a.Title != "" {
			headlines = append(headlines, a.Title)
		}
	}

	return headlines, nil
}

func (c *Client) scrapeFallback(ctx context.Context, maxResults int) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.fallbackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("fallback page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	headlines := make([]string, 0, maxResults)
	doc.Find("li a, h2 a, h3").Each(func(i int, s *goquery.Selection) {
		if len(headlines) >= maxResults {
			return
		}
		text := strings.TrimSpace(s.Text())
		if len(text) > 20 {
			headlines = append(headlines, text)
		}
	})

	if len(headlines) == 0 {
		return nil, fmt.Errorf("no headlines found on fallback page")
	}

	logger.Info("Headlines scraped from fallback", zap.Int("count", len(headlines)))
	return headlines, nil
}

func trim(headlines []string, max int) []string {
	if len(headlines) > max {
		return headlines[:max]
	}
	return headlines
}
