package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader es el header con la firma del webhook.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance es la antigüedad máxima aceptada del timestamp firmado.
const DefaultTolerance = 5 * time.Minute

// Tipos de evento que el onboarding procesa.
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
)

var (
	ErrNoSignature      = errors.New("billing: webhook has no valid signature")
	ErrSignatureExpired = errors.New("billing: webhook timestamp outside tolerance")
	ErrBadSignature     = errors.New("billing: webhook signature mismatch")
)

// Event es un evento de webhook ya verificado.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Invoice es el subconjunto de la factura que usamos.
type Invoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

// CheckoutSession decodifica data.object como sesión de checkout.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var s CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &s); err != nil {
		return nil, fmt.Errorf("billing: decode checkout session: %w", err)
	}
	return &s, nil
}

// Subscription decodifica data.object como suscripción.
func (e *Event) Subscription() (*Subscription, error) {
	var s Subscription
	if err := json.Unmarshal(e.Data.Object, &s); err != nil {
		return nil, fmt.Errorf("billing: decode subscription: %w", err)
	}
	return &s, nil
}

// Invoice decodifica data.object como factura.
func (e *Event) Invoice() (*Invoice, error) {
	var inv Invoice
	if err := json.Unmarshal(e.Data.Object, &inv); err != nil {
		return nil, fmt.Errorf("billing: decode invoice: %w", err)
	}
	return &inv, nil
}

// ConstructEvent verifica la firma "t=<unix>,v1=<hex>" (HMAC-SHA256 sobre "t.payload")
// y decodifica el evento. Acepta cualquiera de las firmas v1 presentes (rotación de secretos).
func ConstructEvent(payload []byte, header, secret string, tolerance time.Duration, now time.Time) (*Event, error) {
	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return nil, err
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return nil, ErrSignatureExpired
		}
	}
	expected := computeSignature(ts, payload, secret)
	ok := false
	for _, s := range sigs {
		if hmac.Equal(expected, s) {
			ok = true
			break
		}
	}
	if !ok {
		return nil, ErrBadSignature
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("billing: decode event: %w", err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, errors.New("billing: event without id or type")
	}
	return &ev, nil
}

// SignPayload arma un header de firma válido (CLI de pruebas y tests).
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeSignature(ts, payload, secret)))
}

func computeSignature(ts int64, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, [][]byte, error) {
	var (
		ts   int64
		sigs [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, ErrNoSignature
			}
			ts = n
		case "v1":
			b, err := hex.DecodeString(v)
			if err != nil {
				continue
			}
			sigs = append(sigs, b)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return 0, nil, ErrNoSignature
	}
	return ts, sigs, nil
}
