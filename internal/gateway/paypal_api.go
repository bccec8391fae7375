package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	PayPalSandboxURL = "https://api-m.sandbox.paypal.com"
	PayPalLiveURL    = "https://api-m.paypal.com"
)

// PayPalAPI is a minimal Orders v2 client: token, create, capture.
type PayPalAPI struct {
	http     *resty.Client
	clientID string
	secret   string

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewPayPalAPI(baseURL, clientID, secret string, timeout time.Duration) *PayPalAPI {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PayPalAPI{
		http:     resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		clientID: clientID,
		secret:   secret,
	}
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id,omitempty"`
	Description string       `json:"description,omitempty"`
	Amount      paypalAmount `json:"amount"`
}

type paypalCreateOrderReq struct {
	Intent        string               `json:"intent"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

type paypalOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type paypalError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue string `json:"issue"`
	} `json:"details"`
}

func (e paypalError) has(issue string) bool {
	for _, d := range e.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

// Capture is the settled payment a capture call produced.
type Capture struct {
	OrderID   string
	CaptureID string
	Status    string
}

func (p *PayPalAPI) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && time.Now().Before(p.expires) {
		return p.token, nil
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := p.http.R().
		SetContext(ctx).
		SetBasicAuth(p.clientID, p.secret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&out).
		Post("/v1/oauth2/token")
	if err != nil {
		return "", errors.Wrap(err, "paypal token")
	}
	if resp.IsError() || out.AccessToken == "" {
		return "", errors.Errorf("paypal token: status %d", resp.StatusCode())
	}
	p.token = out.AccessToken
	// refresh a minute early
	p.expires = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return p.token, nil
}

func (p *PayPalAPI) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description, reference string) (string, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return "", err
	}
	var (
		out     paypalOrder
		failure paypalError
	)
	resp, err := p.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(paypalCreateOrderReq{
			Intent: "CAPTURE",
			PurchaseUnits: []paypalPurchaseUnit{{
				ReferenceID: reference,
				Description: description,
				Amount:      paypalAmount{CurrencyCode: currency, Value: amount.StringFixed(2)},
			}},
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/v2/checkout/orders")
	if err != nil {
		return "", errors.Wrap(err, "paypal create order")
	}
	if resp.IsError() {
		return "", errors.Errorf("paypal create order: status %d: %s", resp.StatusCode(), failure.Message)
	}
	if out.ID == "" {
		return "", errors.New("paypal create order: empty order id")
	}
	log.WithFields(log.Fields{"paypal_order": out.ID, "status": out.Status}).Debug("paypal order created")
	return out.ID, nil
}

// CaptureOrder captures an approved order. A repeated requestID is answered
// from PayPal's idempotency cache. 4xx answers wrap ErrCaptureDeclined.
func (p *PayPalAPI) CaptureOrder(ctx context.Context, orderID, requestID string) (Capture, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return Capture{}, err
	}
	var (
		out     paypalOrder
		failure paypalError
	)
	resp, err := p.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader("PayPal-Request-Id", requestID).
		SetPathParam("id", orderID).
		SetBody(map[string]any{}).
		SetResult(&out).
		SetError(&failure).
		Post("/v2/checkout/orders/{id}/capture")
	if err != nil {
		return Capture{}, errors.Wrap(err, "paypal capture")
	}
	// An already captured order means an earlier request went through.
	if resp.StatusCode() >= 400 && resp.StatusCode() < 500 && !failure.has("ORDER_ALREADY_CAPTURED") {
		return Capture{}, errors.Wrapf(ErrCaptureDeclined, "paypal capture: status %d: %s", resp.StatusCode(), failure.Message)
	}
	if resp.IsError() {
		return Capture{}, errors.Errorf("paypal capture: status %d: %s", resp.StatusCode(), failure.Message)
	}

	c := Capture{OrderID: out.ID, Status: out.Status}
	if len(out.PurchaseUnits) > 0 && len(out.PurchaseUnits[0].Payments.Captures) > 0 {
		c.CaptureID = out.PurchaseUnits[0].Payments.Captures[0].ID
		c.Status = out.PurchaseUnits[0].Payments.Captures[0].Status
	}
	return c, nil
}
