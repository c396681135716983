package billing

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/dropDatabas3/hellocare/internal/observability/logger"
)

// StripeConfig configura el cliente REST del proveedor.
type StripeConfig struct {
	BaseURL    string // https://api.stripe.com
	SecretKey  string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// StripeClient implementa Provider sobre la API REST (form-encoded) con resty.
type StripeClient struct {
	http *resty.Client
}

var _ Provider = (*StripeClient)(nil)

type stripeErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewStripeClient crea el cliente. Reintenta errores de red, 429 y 5xx.
func NewStripeClient(cfg StripeConfig) *StripeClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stripe.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.SecretKey).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(4*cfg.RetryWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	return &StripeClient{http: client}
}

func (c *StripeClient) CreateCustomer(ctx context.Context, p CreateCustomerParams) (*Customer, error) {
	form := map[string]string{
		"email": p.Email,
		"name":  p.Name,
	}
	if p.RegistrationID != "" {
		form["metadata["+MetadataRegistrationKey+"]"] = p.RegistrationID
	}
	var out Customer
	if err := c.post(ctx, "create_customer", "/v1/customers", p.IdempotencyKey, form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	form := map[string]string{
		"mode":                    "subscription",
		"customer":                p.CustomerID,
		"client_reference_id":     p.RegistrationID,
		"line_items[0][price]":    p.PriceID,
		"line_items[0][quantity]": "1",
		"success_url":             p.SuccessURL,
		"cancel_url":              p.CancelURL,

		"metadata[" + MetadataRegistrationKey + "]":                    p.RegistrationID,
		"subscription_data[metadata][" + MetadataRegistrationKey + "]": p.RegistrationID,
	}
	if p.TrialDays > 0 {
		form["subscription_data[trial_period_days]"] = strconv.Itoa(p.TrialDays)
	}
	var out CheckoutSession
	if err := c.post(ctx, "create_checkout_session", "/v1/checkout/sessions", p.IdempotencyKey, form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StripeClient) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	var out CheckoutSession
	if err := c.get(ctx, "get_checkout_session", "/v1/checkout/sessions/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StripeClient) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var out Subscription
	if err := c.get(ctx, "get_subscription", "/v1/subscriptions/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StripeClient) CancelSubscription(ctx context.Context, id string) (*Subscription, error) {
	var out Subscription
	form := map[string]string{"cancel_at_period_end": "true"}
	if err := c.post(ctx, "cancel_subscription", "/v1/subscriptions/"+url.PathEscape(id), "", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StripeClient) post(ctx context.Context, op, path, idemKey string, form map[string]string, out any) error {
	req := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(out).
		SetError(&stripeErrorEnvelope{})
	if idemKey != "" {
		req.SetHeader("Idempotency-Key", idemKey)
	}
	resp, err := req.Post(path)
	return c.check(ctx, op, resp, err)
}

func (c *StripeClient) get(ctx context.Context, op, path string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&stripeErrorEnvelope{}).
		Get(path)
	return c.check(ctx, op, resp, err)
}

func (c *StripeClient) check(ctx context.Context, op string, resp *resty.Response, err error) error {
	log := logger.From(ctx).With(logger.Layer("billing"), logger.Component("stripe"), logger.Op(op))
	if err != nil {
		log.Error("provider call failed", logger.Err(err))
		return &ProviderError{Op: op, Err: err}
	}
	if !resp.IsError() {
		return nil
	}
	pe := &ProviderError{
		Op:         op,
		StatusCode: resp.StatusCode(),
		RequestID:  resp.Header().Get("Request-Id"),
	}
	if env, ok := resp.Error().(*stripeErrorEnvelope); ok && env != nil {
		pe.Type = env.Error.Type
		pe.Code = env.Error.Code
		pe.Message = env.Error.Message
	}
	if pe.Message == "" {
		pe.Message = resp.Status()
	}
	log.Warn("provider returned error",
		logger.Status(pe.StatusCode),
		zap.String("provider_request_id", pe.RequestID),
		zap.String("error_type", pe.Type),
		zap.String("error_code", pe.Code),
	)
	return pe
}
