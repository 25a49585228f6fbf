// Package schwab is a client for the Charles Schwab market data API. It
// handles the OAuth refresh-token flow, keeps the short-lived access token
// fresh, and exposes candle history and quote snapshots.
package schwab

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"tradesignals/internal/model"
)

const (
	defaultBaseURL    = "https://api.schwabapi.com"
	defaultTimeout    = 15 * time.Second
	defaultRetries    = 3
	retryBackoff      = 2 * time.Second
	tokenSafetyWindow = 5 * time.Minute
)

// Config configures the client.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	// TOTPSecret enables MFA-protected token refresh when the account
	// requires it. Empty skips the MFA code entirely.
	TOTPSecret string

	BaseURL    string        // default: https://api.schwabapi.com
	Timeout    time.Duration // default: 15s
	MaxRetries int           // default: 3
}

// Client is a Schwab API client. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	// SessionExpiryHook fires when a token refresh is rejected, meaning
	// the refresh token itself has expired and needs re-authorization.
	SessionExpiryHook func()
}

// New creates a client. It does not talk to the API until the first call.
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, fmt.Errorf("schwab: client id, secret, and refresh token are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultRetries
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// FetchCandles returns minute candles in [startMs, endMs], ascending.
func (c *Client) FetchCandles(ctx context.Context, symbol string, startMs, endMs int64, freqMinutes int) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("periodType", "day")
	params.Set("frequencyType", "minute")
	params.Set("frequency", strconv.Itoa(freqMinutes))
	params.Set("startDate", strconv.FormatInt(startMs, 10))
	params.Set("endDate", strconv.FormatInt(endMs, 10))
	params.Set("needExtendedHoursData", "false")

	var resp struct {
		Candles []struct {
			Open     float64 `json:"open"`
			High     float64 `json:"high"`
			Low      float64 `json:"low"`
			Close    float64 `json:"close"`
			Volume   float64 `json:"volume"`
			Datetime int64   `json:"datetime"`
		} `json:"candles"`
		Empty bool `json:"empty"`
	}
	if err := c.get(ctx, "/marketdata/v1/pricehistory", params, &resp); err != nil {
		return nil, fmt.Errorf("schwab: price history: %w", err)
	}
	if resp.Empty {
		return nil, nil
	}

	candles := make([]model.Candle, 0, len(resp.Candles))
	for _, rc := range resp.Candles {
		candles = append(candles, model.Candle{
			Symbol: symbol,
			TS:     rc.Datetime,
			Open:   rc.Open,
			High:   rc.High,
			Low:    rc.Low,
			Close:  rc.Close,
			Volume: rc.Volume,
		})
	}
	// The API usually returns ascending order but does not promise it.
	sort.Slice(candles, func(i, j int) bool { return candles[i].TS < candles[j].TS })
	return candles, nil
}

// FetchQuote returns the latest session snapshot for symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("fields", "quote")

	var resp map[string]struct {
		Quote struct {
			OpenPrice   float64 `json:"openPrice"`
			HighPrice   float64 `json:"highPrice"`
			LowPrice    float64 `json:"lowPrice"`
			LastPrice   float64 `json:"lastPrice"`
			TotalVolume float64 `json:"totalVolume"`
			QuoteTime   int64   `json:"quoteTime"`
		} `json:"quote"`
	}
	if err := c.get(ctx, "/marketdata/v1/quotes", params, &resp); err != nil {
		return model.Quote{}, fmt.Errorf("schwab: quotes: %w", err)
	}
	entry, ok := resp[symbol]
	if !ok {
		return model.Quote{}, fmt.Errorf("schwab: no quote for %s", symbol)
	}
	return model.Quote{
		Symbol: symbol,
		Open:   entry.Quote.OpenPrice,
		High:   entry.Quote.HighPrice,
		Low:    entry.Quote.LowPrice,
		Close:  entry.Quote.LastPrice,
		Volume: entry.Quote.TotalVolume,
		TS:     entry.Quote.QuoteTime,
	}, nil
}

// Authenticated reports whether the client can currently obtain a valid
// access token. Used by the health worker.
func (c *Client) Authenticated(ctx context.Context) bool {
	_, err := c.ensureToken(ctx)
	return err == nil
}

// get runs an authenticated GET with bounded retry. A 401 invalidates the
// cached token and counts as a retryable failure.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}

		token, err := c.ensureToken(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		reqURL := c.cfg.BaseURL + path + "?" + params.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return json.Unmarshal(body, out)
		case resp.StatusCode == http.StatusUnauthorized:
			c.invalidateToken()
			lastErr = fmt.Errorf("unauthorized (attempt %d)", attempt+1)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body))
		default:
			return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body))
		}
	}
	return fmt.Errorf("after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

// ensureToken returns a valid access token, refreshing proactively a few
// minutes before expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Add(tokenSafetyWindow).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.cfg.RefreshToken)
	if c.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
		if err != nil {
			return "", fmt.Errorf("schwab: totp: %w", err)
		}
		form.Set("mfa_code", code)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("schwab: token refresh: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			if c.SessionExpiryHook != nil {
				c.SessionExpiryHook()
			}
		}
		return "", fmt.Errorf("schwab: token refresh status %d: %s", resp.StatusCode, truncate(body))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("schwab: token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("schwab: empty access token")
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

func truncate(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
