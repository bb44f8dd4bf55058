package wager

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"BetSentinel/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPSite talks to the site's JSON API with the account cookie.
type HTTPSite struct {
	BaseURL string
	Cookie  string
	Token   string
	Client  *http.Client
}

// NewHTTPSite creates a site client with optional proxy support.
func NewHTTPSite(baseURL, cookie, token, proxyURL string, timeout time.Duration) *HTTPSite {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSite{
		BaseURL: baseURL,
		Cookie:  cookie,
		Token:   token,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (s *HTTPSite) Name() string { return "http" }

type placeRequest struct {
	Stake string `json:"stake"`
	Side  string `json:"side,omitempty"`
}

type placeResponse struct {
	Round   string          `json:"round"`
	Win     bool            `json:"win"`
	Profit  decimal.Decimal `json:"profit"`
	Balance decimal.Decimal `json:"balance"`
	Error   string          `json:"error"`
}

func (s *HTTPSite) Place(ctx context.Context, bet Bet) (model.Outcome, error) {
	body, err := json.Marshal(placeRequest{Stake: bet.Stake.String(), Side: bet.Side})
	if err != nil {
		return model.Outcome{}, fmt.Errorf("marshal bet: %w", err)
	}
	var resp placeResponse
	if err := s.do(ctx, http.MethodPost, "/api/bets", body, &resp); err != nil {
		return model.Outcome{}, err
	}
	if resp.Error != "" {
		return model.Outcome{}, fmt.Errorf("%w: %s", ErrRejected, resp.Error)
	}
	return model.Outcome{
		Win:     resp.Win,
		Stake:   bet.Stake,
		Profit:  resp.Profit,
		Balance: decimal.NewNullDecimal(resp.Balance),
		Round:   resp.Round,
		At:      time.Now(),
	}, nil
}

func (s *HTTPSite) Balance(ctx context.Context) (decimal.Decimal, error) {
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/balance", nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

func (s *HTTPSite) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.Cookie != "" {
		req.Header.Set("Cookie", s.Cookie)
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d, body: %s", ErrRejected, resp.StatusCode, string(b))
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d, body: %s", method, path, resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
