// Package gateway adapts payment providers to one open/complete/dismiss contract.
//
// The browser renders the provider widget from Session.Widget and reports back
// through Complete (payment finished or approved) or Dismiss (widget closed).
// A session fires OnSuccess at most once and never after it was dismissed.
package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront-checkout/internal/backend"
	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
)

var (
	ErrSessionClosed  = errors.New("checkout session closed")
	ErrBusy           = errors.New("payment is already being completed")
	ErrOrderMismatch  = errors.New("payment belongs to a different order")
	ErrMissingPayment = errors.New("incomplete payment response")
	ErrBadPayload     = errors.New("undecodable payment response")
	// ErrCaptureDeclined is a definite refusal: the provider moved no money.
	ErrCaptureDeclined = errors.New("payment capture declined")
)

type OpenRequest struct {
	Order   backend.OrderRef
	Product catalog.Product
	Email   string
	// Amount and Currency come from the purchase intent. Providers that
	// create their own order object use these instead of Order.
	Amount   decimal.Decimal
	Currency string
}

type Callbacks struct {
	OnSuccess func(ctx context.Context, ev backend.Evidence)
	OnDismiss func()
	// OnUnconfirmed reports a payment request whose outcome is unknown.
	// The session is closed afterwards: retrying could charge twice.
	OnUnconfirmed func(ctx context.Context, ev backend.Evidence, err error)
}

// Widget is what the page needs to render the provider checkout.
type Widget struct {
	Provider string         `json:"provider"`
	Options  map[string]any `json:"options"`
}

type Gateway interface {
	Name() string
	Open(ctx context.Context, req OpenRequest, cb Callbacks) (Session, error)
}

type Session interface {
	Widget() Widget
	Complete(ctx context.Context, payload json.RawMessage) error
	Dismiss()
}

type latchState int

const (
	latchOpen latchState = iota
	latchCompleting
	latchSucceeded
	latchUnconfirmed
	latchDismissed
)

// latch enforces the callback rules shared by every provider session.
type latch struct {
	mu    sync.Mutex
	state latchState
	cb    Callbacks
}

func (l *latch) begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case latchOpen:
		l.state = latchCompleting
		return nil
	case latchCompleting:
		return ErrBusy
	default:
		return ErrSessionClosed
	}
}

// abort reopens the session after a completion attempt that produced no evidence.
func (l *latch) abort() {
	l.mu.Lock()
	if l.state == latchCompleting {
		l.state = latchOpen
	}
	l.mu.Unlock()
}

func (l *latch) succeed(ctx context.Context, ev backend.Evidence) {
	l.mu.Lock()
	if l.state != latchCompleting {
		l.mu.Unlock()
		return
	}
	l.state = latchSucceeded
	l.mu.Unlock()

	if l.cb.OnSuccess != nil {
		l.cb.OnSuccess(ctx, ev)
	}
}

// unconfirm closes the session for good after a request that may have moved money.
func (l *latch) unconfirm(ctx context.Context, ev backend.Evidence, err error) {
	l.mu.Lock()
	if l.state != latchCompleting {
		l.mu.Unlock()
		return
	}
	l.state = latchUnconfirmed
	l.mu.Unlock()

	if l.cb.OnUnconfirmed != nil {
		l.cb.OnUnconfirmed(ctx, ev, err)
	}
}

// dismiss is ignored once completion started: the provider may already be moving money.
func (l *latch) dismiss() {
	l.mu.Lock()
	if l.state != latchOpen {
		l.mu.Unlock()
		return
	}
	l.state = latchDismissed
	l.mu.Unlock()

	if l.cb.OnDismiss != nil {
		l.cb.OnDismiss()
	}
}
