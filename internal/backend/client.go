package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	ContentTypeJSON  = "application/json"
	ContentTypePlain = "text/plain;charset=utf-8"

	DefaultTimeout = 15 * time.Second
)

// Error is the single failure channel for transport, decoding and refusals.
type Error struct {
	Action  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("backend %s: %s: %v", e.Action, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("backend %s: %s", e.Action, e.Message)
	default:
		return fmt.Sprintf("backend %s: %v", e.Action, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrMalformed = errors.New("malformed response")
	// ErrRefused marks an explicit success:false; Error.Message is then the backend's own text.
	ErrRefused = errors.New("request refused")
)

// Client talks to the order/verification service. One endpoint, the
// action field selects the operation.
type Client struct {
	http        *resty.Client
	url         string
	contentType string
	timeout     time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithContentType sets the request content type. Script hosts that reject
// CORS preflights need ContentTypePlain; the body is JSON either way.
func WithContentType(ct string) Option {
	return func(c *Client) {
		if ct != "" {
			c.contentType = ct
		}
	}
}

func WithRestyClient(rc *resty.Client) Option {
	return func(c *Client) { c.http = rc }
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		contentType: ContentTypeJSON,
		timeout:     DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = resty.New()
	}
	c.http.SetTimeout(c.timeout)
	return c
}

func (c *Client) CheckPurchase(ctx context.Context, email, productID string) (PurchaseStatus, error) {
	var resp checkPurchaseResp
	err := c.post(ctx, ActionCheckPurchase, checkPurchaseReq{
		Action:    ActionCheckPurchase,
		Email:     email,
		ProductID: productID,
	}, &resp, &resp.envelope)
	if err != nil {
		return PurchaseStatus{}, err
	}
	if !*resp.Success {
		return PurchaseStatus{}, &Error{Action: ActionCheckPurchase, Message: resp.text(), Err: ErrRefused}
	}

	st := PurchaseStatus{Purchased: resp.Purchased}
	if resp.Purchased && resp.LastPurchaseDate != "" {
		if t, ok := parseTimestamp(resp.LastPurchaseDate); ok {
			st.LastPurchaseDate = &t
		} else {
			log.WithField("value", resp.LastPurchaseDate).Warn("backend: unparsable lastPurchaseDate")
		}
	}
	return st, nil
}

func (c *Client) CreateOrder(ctx context.Context, productID string, amount decimal.Decimal, email string) (OrderRef, error) {
	var resp createOrderResp
	err := c.post(ctx, ActionCreateOrder, createOrderReq{
		Action:    ActionCreateOrder,
		ProductID: productID,
		Amount:    json.Number(amount.String()),
		Email:     email,
	}, &resp, &resp.envelope)
	if err != nil {
		return OrderRef{}, err
	}
	if !*resp.Success {
		return OrderRef{}, &Error{Action: ActionCreateOrder, Message: resp.text(), Err: ErrRefused}
	}
	if resp.OrderID == "" {
		return OrderRef{}, &Error{Action: ActionCreateOrder, Message: "missing orderId", Err: ErrMalformed}
	}
	return OrderRef{
		OrderID:  resp.OrderID,
		Amount:   resp.Amount,
		Currency: resp.Currency,
		KeyID:    resp.KeyID,
	}, nil
}

func (c *Client) VerifyPayment(ctx context.Context, ev Evidence, productID, email string) (Result, error) {
	var resp resultResp
	err := c.post(ctx, ActionVerifyPayment, verifyPaymentReq{
		Action:    ActionVerifyPayment,
		OrderID:   ev.OrderID,
		PaymentID: ev.PaymentID,
		Signature: ev.Signature,
		ProductID: productID,
		Email:     email,
	}, &resp, &resp.envelope)
	if err != nil {
		return Result{}, err
	}
	return Result{Success: *resp.Success, Message: resp.text()}, nil
}

func (c *Client) ResendEmail(ctx context.Context, email, productID string) (Result, error) {
	var resp resultResp
	err := c.post(ctx, ActionResendEmail, resendEmailReq{
		Action:    ActionResendEmail,
		Email:     email,
		ProductID: productID,
	}, &resp, &resp.envelope)
	if err != nil {
		return Result{}, err
	}
	return Result{Success: *resp.Success, Message: resp.text()}, nil
}

// post sends body and decodes into out. env must point into out so the
// success flag can be checked for presence.
func (c *Client) post(ctx context.Context, action string, body, out any, env *envelope) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Action: action, Err: errors.Wrap(err, "encode request")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", c.contentType).
		SetHeader("Accept", ContentTypeJSON).
		SetBody(payload).
		Post(c.url)
	if err != nil {
		return &Error{Action: action, Message: "service unreachable", Err: err}
	}

	log.WithFields(log.Fields{
		"action":  action,
		"status":  resp.StatusCode(),
		"latency": resp.Time().String(),
	}).Debug("backend call")

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		// Some deployments refuse with an error status and the usual body.
		var refusal envelope
		if json.Unmarshal(resp.Body(), &refusal) == nil && refusal.Success != nil && !*refusal.Success && refusal.text() != "" {
			return &Error{
				Action:  action,
				Message: refusal.text(),
				Err:     errors.Wrapf(ErrRefused, "status %d", resp.StatusCode()),
			}
		}
		return &Error{
			Action:  action,
			Message: fmt.Sprintf("status %d", resp.StatusCode()),
			Err:     errors.Errorf("non-2xx response: %s", snippet(resp.Body())),
		}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &Error{Action: action, Err: errors.Wrap(ErrMalformed, err.Error())}
	}
	if env.Success == nil {
		return &Error{Action: action, Message: "missing success flag", Err: ErrMalformed}
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
