package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YossiGold99/PartyFlow-V2/internal/payment"
)

const testSecret = "whsec_test"

func signPayload(t *testing.T, payload []byte, ts time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestParseWebhook_CompletedSession(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_123"}}}`)

	event, err := ParseWebhook(payload, signPayload(t, payload, now), testSecret, now)

	require.NoError(t, err)
	assert.True(t, event.Known)
	assert.Equal(t, "cs_123", event.SessionRef)
	assert.Equal(t, payment.OutcomeSucceeded, event.Outcome)
}

func TestParseWebhook_FailedAndExpired(t *testing.T) {
	now := time.Now()

	for eventType, outcome := range map[string]payment.Outcome{
		"checkout.session.async_payment_failed": payment.OutcomeFailed,
		"checkout.session.expired":              payment.OutcomeExpired,
	} {
		payload := []byte(`{"type":"` + eventType + `","data":{"object":{"id":"cs_9"}}}`)
		event, err := ParseWebhook(payload, signPayload(t, payload, now), testSecret, now)

		require.NoError(t, err)
		assert.True(t, event.Known)
		assert.Equal(t, outcome, event.Outcome)
	}
}

func TestParseWebhook_UnknownTypeIsNotAnError(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)

	event, err := ParseWebhook(payload, signPayload(t, payload, now), testSecret, now)

	require.NoError(t, err)
	assert.False(t, event.Known)
}

func TestParseWebhook_BadSignature(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_123"}}}`)

	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), "deadbeef")
	_, err := ParseWebhook(payload, header, testSecret, now)

	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestParseWebhook_TamperedPayload(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_123"}}}`)
	header := signPayload(t, payload, now)

	tampered := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_666"}}}`)
	_, err := ParseWebhook(tampered, header, testSecret, now)

	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestParseWebhook_StaleTimestamp(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_123"}}}`)
	header := signPayload(t, payload, now.Add(-10*time.Minute))

	_, err := ParseWebhook(payload, header, testSecret, now)

	assert.ErrorIs(t, err, ErrStaleEvent)
}

func TestParseWebhook_MalformedHeader(t *testing.T) {
	_, err := ParseWebhook([]byte(`{}`), "garbage", testSecret, time.Now())

	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestCheckout_CreateCheckoutSession(t *testing.T) {
	var gotForm map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for key := range r.PostForm {
			gotForm[key] = r.PostForm.Get(key)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_42","url":"https://checkout.stripe.com/pay/cs_42","expires_at":1700001800}`)
	}))
	defer server.Close()

	checkout := New(&ClientConfig{
		BaseURL:    server.URL,
		SecretKey:  "sk_test",
		SuccessURL: "https://example.com/ok",
		CancelURL:  "https://example.com/nope",
	})

	session, err := checkout.CreateCheckoutSession(context.Background(), &payment.CheckoutRequest{
		OrderID:    "ord1",
		EventTitle: "Summer Rave",
		UnitPrice:  decimal.NewFromFloat(49.90),
		Currency:   "ils",
		Quantity:   2,
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_42", session.Reference)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_42", session.URL)
	assert.Equal(t, int64(1700001800), session.ExpiresAt.Unix())

	assert.Equal(t, "payment", gotForm["mode"])
	assert.Equal(t, "ils", gotForm["line_items[0][price_data][currency]"])
	assert.Equal(t, "Ticket: Summer Rave", gotForm["line_items[0][price_data][product_data][name]"])
	assert.Equal(t, "4990", gotForm["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, "2", gotForm["line_items[0][quantity]"])
	assert.Equal(t, "ord1", gotForm["metadata[order_id]"])
}

func TestCheckout_CreateCheckoutSession_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"type":"card_error","message":"declined"}}`)
	}))
	defer server.Close()

	checkout := New(&ClientConfig{BaseURL: server.URL, SecretKey: "sk_test"})

	_, err := checkout.CreateCheckoutSession(context.Background(), &payment.CheckoutRequest{
		OrderID:   "ord1",
		UnitPrice: decimal.NewFromInt(10),
		Currency:  "ils",
		Quantity:  1,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "card_error")
}
