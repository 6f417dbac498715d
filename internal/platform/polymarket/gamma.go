package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/evand/conditional-markets/internal/domain"
)

// gammaRatePerSec stays well under the documented Gamma limit of 300
// requests per 10 seconds.
const gammaRatePerSec = 18

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery, metadata, and search.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(gammaRatePerSec, 10),
	}
}

// GetMarkets returns a paginated list of joint markets. Markets that do not
// convert to the four-cell shape are skipped, not errored: the listing
// endpoint mixes market types.
func (g *GammaClient) GetMarkets(ctx context.Context, limit, offset int) ([]domain.JointMarket, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	path := "/markets?" + params.Encode()

	body, err := g.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	markets := make([]domain.JointMarket, 0, len(apiMarkets))
	for i := range apiMarkets {
		jm, err := apiMarkets[i].ToJointMarket()
		if err != nil {
			continue
		}
		markets = append(markets, jm)
	}

	return markets, nil
}

// GetMarket returns a single joint market by its ID.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (domain.JointMarket, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(id))

	body, err := g.doGet(ctx, path)
	if err != nil {
		return domain.JointMarket{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}

	var apiMarket APIMarket
	if err := json.Unmarshal(body, &apiMarket); err != nil {
		return domain.JointMarket{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}

	jm, err := apiMarket.ToJointMarket()
	if err != nil {
		return domain.JointMarket{}, fmt.Errorf("polymarket/gamma: market %s: %w", id, err)
	}
	return jm, nil
}

// GetMarketBySlug returns a single joint market looked up by its URL slug.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug string) (domain.JointMarket, error) {
	params := url.Values{}
	params.Set("slug", slug)

	path := "/markets?" + params.Encode()

	body, err := g.doGet(ctx, path)
	if err != nil {
		return domain.JointMarket{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return domain.JointMarket{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	if len(apiMarkets) == 0 {
		return domain.JointMarket{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}

	jm, err := apiMarkets[0].ToJointMarket()
	if err != nil {
		return domain.JointMarket{}, fmt.Errorf("polymarket/gamma: market slug=%s: %w", slug, err)
	}
	return jm, nil
}

// SearchMarkets searches for joint markets matching the given query string.
func (g *GammaClient) SearchMarkets(ctx context.Context, query string) ([]domain.JointMarket, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", "50")

	path := "/markets?" + params.Encode()

	body, err := g.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: search markets: %w", err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode search results: %w", err)
	}

	markets := make([]domain.JointMarket, 0, len(apiMarkets))
	for i := range apiMarkets {
		jm, err := apiMarkets[i].ToJointMarket()
		if err != nil {
			continue
		}
		markets = append(markets, jm)
	}

	return markets, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
