package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/YossiGold99/PartyFlow-V2/internal/payment"
)

var centsPerUnit = decimal.NewFromInt(100)

// Checkout implements payment.Provider over Stripe hosted Checkout.
type Checkout struct {
	client *Client
}

func New(cfg *ClientConfig) *Checkout {
	return &Checkout{client: newClient(cfg)}
}

func (c *Checkout) Name() string { return "stripe" }

func (c *Checkout) CreateCheckoutSession(ctx context.Context, req *payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	// Stripe wants the unit amount in the currency's minor unit.
	unitAmount := req.UnitPrice.Mul(centsPerUnit).IntPart()

	form := url.Values{}
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][product_data][name]", "Ticket: "+req.EventTitle)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(unitAmount, 10))
	form.Set("line_items[0][quantity]", strconv.Itoa(req.Quantity))
	form.Set("metadata[order_id]", req.OrderID)
	for key, value := range req.Metadata {
		form.Set("metadata["+key+"]", value)
	}

	reply, err := c.client.createCheckoutSession(ctx, form)
	if err != nil {
		return nil, err
	}

	return &payment.CheckoutSession{
		Reference: reply.ID,
		URL:       reply.URL,
		ExpiresAt: time.Unix(reply.ExpiresAt, 0),
	}, nil
}

func (c *Checkout) Close(_ context.Context) error { return nil }

// --- webhook parsing ---

var (
	ErrBadSignature = errors.New("stripe: webhook signature verification failed")
	ErrStaleEvent   = errors.New("stripe: webhook timestamp outside tolerance")
)

// WebhookEvent is the subset of a Stripe event the reconciliation handler
// needs: which session, and what happened to it.
type WebhookEvent struct {
	Type       string
	SessionRef string
	Outcome    payment.Outcome
	Known      bool
}

const signatureTolerance = 5 * time.Minute

// ParseWebhook verifies the Stripe-Signature header (t=...,v1=... with
// HMAC-SHA256 over "<t>.<payload>") and maps the event type onto a
// payment outcome.
func ParseWebhook(payload []byte, sigHeader, secret string, now time.Time) (*WebhookEvent, error) {
	timestamp, signatures, err := splitSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	if now.Sub(time.Unix(timestamp, 0)) > signatureTolerance {
		return nil, ErrStaleEvent
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	verified := false
	for _, signature := range signatures {
		candidate, err := hex.DecodeString(signature)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			verified = true
			break
		}
	}
	if !verified {
		return nil, ErrBadSignature
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("stripe: webhook json.Unmarshal: %w", err)
	}

	parsed := &WebhookEvent{Type: event.Type, SessionRef: event.Data.Object.ID}
	switch event.Type {
	case "checkout.session.completed":
		parsed.Outcome, parsed.Known = payment.OutcomeSucceeded, true
	case "checkout.session.async_payment_failed":
		parsed.Outcome, parsed.Known = payment.OutcomeFailed, true
	case "checkout.session.expired":
		parsed.Outcome, parsed.Known = payment.OutcomeExpired, true
	}
	return parsed, nil
}

func splitSignatureHeader(header string) (int64, []string, error) {
	var (
		timestamp  int64 = -1
		signatures []string
	)
	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "t":
			ts, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return 0, nil, ErrBadSignature
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, parts[1])
		}
	}
	if timestamp < 0 || len(signatures) == 0 {
		return 0, nil, ErrBadSignature
	}
	return timestamp, signatures, nil
}
