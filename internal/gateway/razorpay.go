package gateway

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/ariefcatur/go-storefront-checkout/internal/backend"
)

const ProviderRazorpay = "razorpay"

// Razorpay is the direct-checkout variant: the backend pre-creates the order
// and the widget completes it in place.
type Razorpay struct {
	StoreName string
}

func (Razorpay) Name() string { return ProviderRazorpay }

func (g Razorpay) Open(_ context.Context, req OpenRequest, cb Callbacks) (Session, error) {
	if req.Order.OrderID == "" || req.Order.KeyID == "" {
		return nil, errors.New("razorpay: order id and key are required")
	}
	return &razorpaySession{
		latch: latch{cb: cb},
		order: req.Order,
		widget: Widget{
			Provider: ProviderRazorpay,
			Options: map[string]any{
				"key":         req.Order.KeyID,
				"amount":      json.Number(req.Order.Amount.String()),
				"currency":    req.Order.Currency,
				"order_id":    req.Order.OrderID,
				"name":        g.StoreName,
				"description": req.Product.Name,
				"prefill":     map[string]string{"email": req.Email},
			},
		},
	}, nil
}

type razorpaySession struct {
	latch
	order  backend.OrderRef
	widget Widget
}

type razorpayResponse struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

func (s *razorpaySession) Widget() Widget { return s.widget }

func (s *razorpaySession) Complete(ctx context.Context, payload json.RawMessage) error {
	if err := s.begin(); err != nil {
		return err
	}
	var r razorpayResponse
	if err := json.Unmarshal(payload, &r); err != nil {
		s.abort()
		return errors.Wrapf(ErrBadPayload, "razorpay handler response: %v", err)
	}
	if r.PaymentID == "" || r.Signature == "" {
		s.abort()
		return ErrMissingPayment
	}
	if r.OrderID != "" && r.OrderID != s.order.OrderID {
		s.abort()
		return errors.Wrapf(ErrOrderMismatch, "got %s, opened %s", r.OrderID, s.order.OrderID)
	}

	s.succeed(ctx, backend.Evidence{
		Provider:  ProviderRazorpay,
		OrderID:   s.order.OrderID,
		PaymentID: r.PaymentID,
		Signature: r.Signature,
	})
	return nil
}

func (s *razorpaySession) Dismiss() { s.dismiss() }
