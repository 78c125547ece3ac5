package card

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"tikiti/internal/status"
)

type Config struct {
	BaseURL string `json:"baseUrl" mapstructure:"base_url"`
	APIKey  string `json:"apiKey" mapstructure:"api_key"`
}

// Client is the synchronous card processor adapter. Unlike the STK flow the
// charge resolves in-band: the response is the terminal outcome.
type Client struct {
	baseURL string
	apiKey  string

	hc *http.Client
}

func New(cfg *Config) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,

		hc: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type ChargeRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Token     string          `json:"token"`
	Reference string          `json:"reference"`
	Email     string          `json:"email"`
}

type ChargeResult struct {
	Approved  bool   `json:"approved"`
	Reference string `json:"reference"`
	Reason    string `json:"reason,omitempty"`
}

// Charge submits the card payment. A declined charge is a GatewayError, not
// a transport failure; callers treat both the same way (fail the order and
// release inventory).
func (c *Client) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("charge: json.Marshal: %w", err)
	}

	_baseURL, _ := url.Parse(c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/v1/charges"), bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("charge: http.NewRequestWithContext: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, status.NewGatewayError("charge", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return nil, status.NewGatewayError("charge", fmt.Errorf("resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody))
	}

	var reply ChargeResult
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("charge: json.Decode: %w", err)
	}

	if !reply.Approved {
		return &reply, status.NewGatewayError("charge", fmt.Errorf("declined: %s", reply.Reason))
	}

	return &reply, nil
}
