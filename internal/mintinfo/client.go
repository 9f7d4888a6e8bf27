package mintinfo

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const maxBodyBytes = 4 << 20

// Client fetches mint info from the upstream data service.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a client for baseURL (e.g. "https://www.mightx.io/api").
// A nil httpClient uses a 10s-timeout default; a nil limiter disables
// throttling.
func NewClient(baseURL string, httpClient *http.Client, limiter *rate.Limiter) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		limiter: limiter,
	}
}

// NewLimiter returns a token bucket allowing perSecond requests with burst.
// perSecond <= 0 disables throttling.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// FetchMintInfo issues GET {base}/mint-info?mint-address={address} and
// returns the JSON body unchanged.
func (c *Client) FetchMintInfo(ctx context.Context, address string) (json.RawMessage, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, newError(CodeValidation, "mint address is required", nil)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, newError(CodeRateLimited, "upstream rate limit wait aborted", err)
		}
	}

	endpoint := c.baseURL + "/mint-info?" + url.Values{"mint-address": {address}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, newError(CodeValidation, "build upstream request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("mint info request failed", "address", address, "error", err)
		return nil, newError(CodeUpstreamUnavailable, "upstream request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		slog.Warn("mint info upstream not ok", "address", address, "status", resp.StatusCode)
		return nil, newError(CodeUpstreamNotOK, MsgNotOK, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, newError(CodeUpstreamUnavailable, "read upstream body", err)
	}
	if !json.Valid(body) {
		return nil, newError(CodeMalformed, "upstream returned invalid JSON", nil)
	}

	slog.Debug("mint info fetched", "address", address, "bytes", len(body), "duration_ms", time.Since(start).Milliseconds())
	return json.RawMessage(body), nil
}
