package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront-checkout/internal/backend"
)

const ProviderPayPal = "paypal"

// OrdersAPI is the slice of the PayPal API the approval flow needs.
type OrdersAPI interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description, reference string) (string, error)
	CaptureOrder(ctx context.Context, orderID, requestID string) (Capture, error)
}

// PayPal is the approval variant: the page shows an approval button, and
// approval triggers the provider order/capture round trip before success.
//
// A declined capture leaves the session open on the same PayPal order so
// the buyer can approve again. Any other capture failure closes it through
// OnUnconfirmed.
type PayPal struct {
	API OrdersAPI
}

func (PayPal) Name() string { return ProviderPayPal }

func (g PayPal) Open(_ context.Context, req OpenRequest, cb Callbacks) (Session, error) {
	if g.API == nil {
		return nil, errors.New("paypal: api client not configured")
	}
	if req.Currency == "" {
		return nil, errors.New("paypal: currency is required")
	}
	return &paypalSession{
		latch: latch{cb: cb},
		api:   g.API,
		req:   req,
		widget: Widget{
			Provider: ProviderPayPal,
			Options: map[string]any{
				"amount":      req.Amount.StringFixed(2),
				"currency":    req.Currency,
				"description": req.Product.Name,
			},
		},
	}, nil
}

type paypalSession struct {
	latch
	api    OrdersAPI
	req    OpenRequest
	widget Widget

	// orderID is the PayPal order this session captures. Once set it never
	// changes: a PayPal order can be captured only once.
	orderID  string
	declines int
}

type paypalApproval struct {
	OrderID string `json:"orderID"`
}

func (s *paypalSession) Widget() Widget { return s.widget }

func (s *paypalSession) Complete(ctx context.Context, payload json.RawMessage) error {
	if err := s.begin(); err != nil {
		return err
	}
	var a paypalApproval
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &a); err != nil {
			s.abort()
			return errors.Wrapf(ErrBadPayload, "paypal approval: %v", err)
		}
	}

	switch {
	case s.orderID != "" && a.OrderID != "" && a.OrderID != s.orderID:
		s.abort()
		return errors.Wrapf(ErrOrderMismatch, "paypal order %s, session captures %s", a.OrderID, s.orderID)
	case s.orderID == "" && a.OrderID != "":
		s.orderID = a.OrderID
	case s.orderID == "":
		id, err := s.api.CreateOrder(ctx, s.req.Amount, s.req.Currency, s.req.Product.Name, s.req.Product.ID.String())
		if err != nil {
			s.abort()
			return err
		}
		s.orderID = id
	}

	entry := log.WithField("paypal_order", s.orderID)
	requestID := "capture-" + s.orderID
	if s.declines > 0 {
		requestID = fmt.Sprintf("%s-%d", requestID, s.declines)
	}
	capture, err := s.api.CaptureOrder(ctx, s.orderID, requestID)
	if errors.Is(err, ErrCaptureDeclined) {
		s.declines++
		s.abort()
		return err
	}
	unconfirmed := backend.Evidence{Provider: ProviderPayPal, OrderID: s.orderID}
	if err != nil {
		entry.WithError(err).Error("paypal capture outcome unknown")
		s.unconfirm(ctx, unconfirmed, err)
		return nil
	}
	if capture.Status != "COMPLETED" || capture.CaptureID == "" {
		err := errors.Wrapf(ErrMissingPayment, "paypal capture %s status %q", s.orderID, capture.Status)
		entry.WithField("capture", capture.CaptureID).Warn("paypal capture not completed")
		s.unconfirm(ctx, unconfirmed, err)
		return nil
	}

	entry.WithField("capture", capture.CaptureID).Info("paypal payment captured")
	s.succeed(ctx, backend.Evidence{
		Provider: ProviderPayPal,
		OrderID:  capture.CaptureID,
	})
	return nil
}

func (s *paypalSession) Dismiss() { s.dismiss() }
