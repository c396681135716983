package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStripeClient_CreateCheckoutSession(t *testing.T) {
	var gotForm map[string]string
	var gotPath, gotIdem, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseForm()
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		gotIdem = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://pay/cs_1","status":"open","payment_status":"unpaid","customer":"cus_1","client_reference_id":"reg-1"}`))
	}))
	defer srv.Close()

	c := NewStripeClient(StripeConfig{BaseURL: srv.URL, SecretKey: "sk_test"})
	s, err := c.CreateCheckoutSession(context.Background(), CheckoutParams{
		CustomerID:     "cus_1",
		PriceID:        "price_pro",
		TrialDays:      14,
		RegistrationID: "reg-1",
		SuccessURL:     "https://app/ok",
		CancelURL:      "https://app/cancel",
		IdempotencyKey: "checkout:reg-1",
	})
	require.NoError(t, err)
	require.Equal(t, "cs_1", s.ID)
	require.Equal(t, "reg-1", s.RegistrationID())
	require.False(t, s.Completed())

	require.Equal(t, "/v1/checkout/sessions", gotPath)
	require.Equal(t, "Bearer sk_test", gotAuth)
	require.Equal(t, "checkout:reg-1", gotIdem)
	require.Equal(t, "subscription", gotForm["mode"])
	require.Equal(t, "reg-1", gotForm["client_reference_id"])
	require.Equal(t, "reg-1", gotForm["metadata[registration_uuid]"])
	require.Equal(t, "reg-1", gotForm["subscription_data[metadata][registration_uuid]"])
	require.Equal(t, "14", gotForm["subscription_data[trial_period_days]"])
	require.Equal(t, "price_pro", gotForm["line_items[0][price]"])
}

func TestStripeClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Request-Id", "req_123")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such checkout.session"}}`))
	}))
	defer srv.Close()

	c := NewStripeClient(StripeConfig{BaseURL: srv.URL, SecretKey: "sk"})
	_, err := c.GetCheckoutSession(context.Background(), "cs_missing")
	require.Error(t, err)
	pe, ok := IsProviderError(err)
	require.True(t, ok)
	require.True(t, pe.NotFound())
	require.False(t, pe.Retryable())
	require.Equal(t, "resource_missing", pe.Code)
	require.Equal(t, "req_123", pe.RequestID)
}

func TestStripeClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"sub_1","status":"trialing","customer":"cus_1","trial_end":1900000000}`))
	}))
	defer srv.Close()

	c := NewStripeClient(StripeConfig{BaseURL: srv.URL, SecretKey: "sk", RetryCount: 3, RetryWait: time.Millisecond})
	sub, err := c.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Equal(t, SubTrialing, sub.Status)
	require.NotNil(t, sub.TrialEndsAt())
	require.Equal(t, int64(1900000000), sub.TrialEndsAt().Unix())
}

func TestCheckoutSession_Completed(t *testing.T) {
	cases := []struct {
		status, payment string
		want            bool
	}{
		{SessionComplete, PaymentPaid, true},
		{SessionComplete, PaymentNoPaymentRequired, true},
		{SessionComplete, PaymentUnpaid, false},
		{SessionOpen, PaymentPaid, false},
		{SessionExpired, PaymentUnpaid, false},
	}
	for _, tc := range cases {
		s := &CheckoutSession{Status: tc.status, PaymentStatus: tc.payment}
		require.Equal(t, tc.want, s.Completed(), "%s/%s", tc.status, tc.payment)
	}
	var nilSession *CheckoutSession
	require.False(t, nilSession.Completed())

	s := &CheckoutSession{Metadata: map[string]string{MetadataRegistrationKey: "from-meta"}}
	require.Equal(t, "from-meta", s.RegistrationID())
}

func TestConstructEvent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload, _ := json.Marshal(map[string]any{
		"id":   "evt_1",
		"type": EventCheckoutCompleted,
		"data": map[string]any{"object": map[string]any{"id": "cs_1", "status": "complete", "payment_status": "paid"}},
	})
	header := SignPayload(payload, "whsec_test", now)

	ev, err := ConstructEvent(payload, header, "whsec_test", DefaultTolerance, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "evt_1", ev.ID)
	cs, err := ev.CheckoutSession()
	require.NoError(t, err)
	require.True(t, cs.Completed())

	_, err = ConstructEvent(payload, header, "other_secret", DefaultTolerance, now)
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = ConstructEvent(payload, header, "whsec_test", DefaultTolerance, now.Add(10*time.Minute))
	require.ErrorIs(t, err, ErrSignatureExpired)

	_, err = ConstructEvent(payload, "", "whsec_test", DefaultTolerance, now)
	require.ErrorIs(t, err, ErrNoSignature)

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '
	_, err = ConstructEvent(tampered, header, "whsec_test", DefaultTolerance, now)
	require.ErrorIs(t, err, ErrBadSignature)

	// rotación: una de varias firmas v1 alcanza
	rotated := "t=1700000000,v1=deadbeef," + header[len("t=1700000000,"):]
	_, err = ConstructEvent(payload, rotated, "whsec_test", DefaultTolerance, now)
	require.NoError(t, err)
}

func TestFake_CompleteAndIdempotency(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	c1, err := f.CreateCustomer(ctx, CreateCustomerParams{Email: "a@b.c", IdempotencyKey: "k"})
	require.NoError(t, err)
	c2, err := f.CreateCustomer(ctx, CreateCustomerParams{Email: "a@b.c", IdempotencyKey: "k"})
	require.NoError(t, err)
	require.Equal(t, c1.ID, c2.ID)

	s, err := f.CreateCheckoutSession(ctx, CheckoutParams{CustomerID: c1.ID, RegistrationID: "reg"})
	require.NoError(t, err)
	_, sub, err := f.CompleteSession(s.ID, SubActive)
	require.NoError(t, err)

	got, err := f.GetCheckoutSession(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, got.Completed())
	require.Equal(t, sub.ID, got.Subscription)

	f.FailNext("get_subscription", &ProviderError{Op: "get_subscription", StatusCode: 500})
	_, err = f.GetSubscription(ctx, sub.ID)
	require.Error(t, err)
	_, err = f.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, 2, f.Calls("get_subscription"))
}
