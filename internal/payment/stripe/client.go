package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type ClientConfig struct {
	// BaseURL is the Stripe API base; overridable for tests.
	BaseURL string `json:"baseUrl" mapstructure:"base_url"`

	// SecretKey is the sk_ API key.
	SecretKey string `json:"secretKey" mapstructure:"secret_key"`

	SuccessURL string `json:"successUrl" mapstructure:"success_url"`
	CancelURL  string `json:"cancelUrl" mapstructure:"cancel_url"`
}

type Client struct {
	baseURL    string
	secretKey  string
	successURL string
	cancelURL  string

	// hc is the http client.
	hc *http.Client
}

func newClient(c *ClientConfig) *Client {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Client{
		baseURL:    baseURL,
		secretKey:  c.SecretKey,
		successURL: c.SuccessURL,
		cancelURL:  c.CancelURL,

		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sessionReply struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
	Error     *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// createCheckoutSession posts a form-encoded Checkout Session request.
func (c *Client) createCheckoutSession(ctx context.Context, form url.Values) (*sessionReply, error) {
	form.Set("mode", "payment")
	form.Set("success_url", c.successURL+"?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", c.cancelURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("stripe: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe: http.Do: %w", err)
	}
	defer resp.Body.Close()

	var reply sessionReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("stripe: json.Decode: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if reply.Error != nil {
			return nil, fmt.Errorf("stripe: %s: %s", reply.Error.Type, reply.Error.Message)
		}
		return nil, fmt.Errorf("stripe: unexpected status %d", resp.StatusCode)
	}
	return &reply, nil
}
