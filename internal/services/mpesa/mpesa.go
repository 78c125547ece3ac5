package mpesa

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tikiti/internal/status"
	"tikiti/models"
	"tikiti/utils"
)

type Config struct {
	BaseURL        string `json:"baseUrl" mapstructure:"base_url"`
	ConsumerKey    string `json:"consumerKey" mapstructure:"consumer_key"`
	ConsumerSecret string `json:"consumerSecret" mapstructure:"consumer_secret"`
	ShortCode      string `json:"shortCode" mapstructure:"short_code"`
	Passkey        string `json:"passkey" mapstructure:"passkey"`
	CallbackURL    string `json:"callbackUrl" mapstructure:"callback_url"`
}

// Client talks to the Daraja API: OAuth token upkeep, STK push initiation and
// transaction status queries. All calls go through a circuit breaker so a
// dead gateway fails fast.
type Client struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackURL    string

	// access token is used to authenticate with the Daraja backend.
	accessToken string

	// mu is used to lock access token.
	mu sync.Mutex

	// toggleTokenRefresher is used to notify token refresher to refresh token.
	toggleTokenRefresher chan struct{}

	hc *http.Client
	cb *utils.CircuitBreaker
}

// New connects to Daraja, obtains the first access token and starts the
// background refresher.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	c := &Client{
		baseURL:        cfg.BaseURL,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortCode:      cfg.ShortCode,
		passkey:        cfg.Passkey,
		callbackURL:    cfg.CallbackURL,

		// make a buffered channel to avoid blocking.
		toggleTokenRefresher: make(chan struct{}, 1),

		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
		cb: utils.NewCircuitBreaker("mpesa"),
	}

	token, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.setAccessToken(token)

	go c.notifyAccessTokenExpired(ctx)

	return c, nil
}

// notifyAccessTokenExpired do infinite loop with period of time
// to perform auto renew token from the Daraja backend with
// exponential backOff strategy. Daraja tokens expire after an hour.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refreshed")
		}

		// reconnect with exponential backOff strategy
		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				log.Printf("notifyAccessTokenExpired: %v", err)

				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

// setAccessToken set access token to client.
func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

// getAccessToken get access token from client.
func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

type StkRequest struct {
	Phone       string
	Amount      decimal.Decimal
	Reference   string
	Description string
}

type StkResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Initiate sends an STK push to the payer's phone. The returned
// CheckoutRequestID correlates the eventual callback or poll result back to
// this attempt.
func (c *Client) Initiate(ctx context.Context, req *StkRequest) (*StkResponse, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	// Daraja only takes whole shillings.
	amount := req.Amount.Ceil().IntPart()
	if amount < 1 {
		return nil, status.NewValidationError("Amount must be at least 1")
	}

	result, err := c.cb.Execute(ctx, func() (interface{}, error) {
		return c.stkPush(ctx, phone, amount, req.Reference, req.Description)
	})
	if err != nil {
		return nil, err
	}

	reply := result.(*StkResponse)
	if reply.ResponseCode != "0" {
		return nil, status.NewGatewayError("stkPush", fmt.Errorf("ResponseCode: %s, ResponseDescription: %s", reply.ResponseCode, reply.ResponseDescription))
	}

	return reply, nil
}

// QueryStatus polls Daraja for the outcome of an earlier STK push and
// normalizes it to the same shape the callback produces.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*models.NormalizedResult, error) {
	result, err := c.cb.Execute(ctx, func() (interface{}, error) {
		return c.stkQuery(ctx, checkoutRequestID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.NormalizedResult), nil
}
