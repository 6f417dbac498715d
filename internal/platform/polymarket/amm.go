package polymarket

import (
	"bytes"
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

// ammRatePerSec keeps dry-run quote traffic well inside the venue's general
// API budget; reconciliation issues one quote per leg, sequentially.
const ammRatePerSec = 30

// AMMClient is the REST client for the venue's AMM state and quote
// endpoints: pool reserves per outcome, and server-side dry-run evaluation
// of market buys.
type AMMClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAMMClient creates a new AMM API client.
//
// baseURL is the AMM API root, e.g. "https://clob.polymarket.com".
func NewAMMClient(baseURL string) *AMMClient {
	return &AMMClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(ammRatePerSec, 10),
	}
}

// WithAPIKey attaches a bearer token to all requests. The pool and quote
// endpoints work unauthenticated but get a higher rate budget with a key.
func (a *AMMClient) WithAPIKey(key string) *AMMClient {
	a.apiKey = key
	return a
}

// GetPools returns the current pool per cell for the given market, plus the
// venue's own quoted probability per cell. The venue probabilities are a
// cross-check only; local pricing always derives from the reserves.
func (a *AMMClient) GetPools(ctx context.Context, market domain.JointMarket) (domain.PoolSet, map[domain.Cell]float64, error) {
	if !market.Complete() {
		return nil, nil, fmt.Errorf("polymarket/amm: market %s: %w", market.ID, domain.ErrIncompleteMarket)
	}

	params := url.Values{}
	params.Set("market", market.ID)
	path := "/amm/pools?" + params.Encode()

	body, err := a.doGet(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("polymarket/amm: get pools for %s: %w", market.ID, err)
	}

	var resp APIPoolsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("polymarket/amm: decode pools: %w", err)
	}

	byToken := make(map[string]*APIPool, len(resp.Pools))
	for i := range resp.Pools {
		byToken[resp.Pools[i].TokenID] = &resp.Pools[i]
	}

	pools := make(domain.PoolSet, len(domain.CellOrder))
	prices := make(map[domain.Cell]float64, len(domain.CellOrder))
	for _, ref := range market.Outcomes {
		ap, ok := byToken[ref.TokenID]
		if !ok {
			return nil, nil, fmt.Errorf("polymarket/amm: market %s missing pool for token %s: %w",
				market.ID, ref.TokenID, domain.ErrIncompleteMarket)
		}
		pool := ap.ToPool()
		if !pool.Valid() {
			return nil, nil, fmt.Errorf("polymarket/amm: market %s token %s: %w",
				market.ID, ref.TokenID, domain.ErrInvalidPool)
		}
		pools[ref.Cell] = pool
		if p, err := strconv.ParseFloat(ap.Price, 64); err == nil {
			prices[ref.Cell] = p
		}
	}

	return pools, prices, nil
}

// DryRunBuy asks the venue to evaluate spending amount on the given outcome
// side without executing, and returns the share count it would fill.
func (a *AMMClient) DryRunBuy(ctx context.Context, marketID, outcomeID string, side domain.Side, amount float64) (float64, error) {
	reqBody := APIQuoteRequest{
		MarketID: marketID,
		TokenID:  outcomeID,
		Side:     string(side),
		Amount:   amount,
		DryRun:   true,
	}

	body, err := a.doPost(ctx, "/amm/quote", reqBody)
	if err != nil {
		return 0, fmt.Errorf("polymarket/amm: dry-run buy %s/%s: %w", marketID, outcomeID, err)
	}

	var result APIQuoteResult
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("polymarket/amm: decode quote: %w", err)
	}

	if !result.Success {
		return 0, fmt.Errorf("polymarket/amm: %w: %s", domain.ErrQuoteUnavailable, result.ErrorMsg)
	}

	shares, err := strconv.ParseFloat(result.Shares, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/amm: %w: bad share count %q", domain.ErrQuoteUnavailable, result.Shares)
	}

	return shares, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (a *AMMClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return a.do(ctx, req)
}

func (a *AMMClient) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return a.do(ctx, req)
}

func (a *AMMClient) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
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

// --------------------------------------------------------------------------
// Combined provider
// --------------------------------------------------------------------------

// Provider combines Gamma discovery and AMM state behind
// domain.MarketDataProvider.
type Provider struct {
	gamma *GammaClient
	amm   *AMMClient
}

// NewProvider pairs a Gamma client with an AMM client.
func NewProvider(gamma *GammaClient, amm *AMMClient) *Provider {
	return &Provider{gamma: gamma, amm: amm}
}

func (p *Provider) GetMarket(ctx context.Context, id string) (domain.JointMarket, error) {
	return p.gamma.GetMarket(ctx, id)
}

func (p *Provider) GetPools(ctx context.Context, market domain.JointMarket) (domain.PoolSet, map[domain.Cell]float64, error) {
	return p.amm.GetPools(ctx, market)
}

var (
	_ domain.MarketDataProvider = (*Provider)(nil)
	_ domain.QuoteProvider      = (*AMMClient)(nil)
)
