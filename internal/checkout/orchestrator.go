// Package checkout drives one buyer session through a purchase attempt:
// validate, check for a prior purchase, create the order, hand off to the
// payment gateway and verify the evidence it returns.
//
// The orchestrator owns the only mutable copy of the attempt. Every change
// goes through advance, which refuses illegal edges and continuations that
// belong to an attempt that was cancelled or replaced.
package checkout

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront-checkout/internal/backend"
	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/gateway"
	"github.com/ariefcatur/go-storefront-checkout/internal/validate"
)

var (
	ErrInProgress        = errors.New("a checkout is already in progress")
	ErrNotCancellable    = errors.New("checkout cannot be cancelled while the order service is processing it")
	ErrNoPendingPayment  = errors.New("no payment is awaiting completion")
	ErrNotTerminal       = errors.New("checkout has not finished")
	ErrResendUnavailable = errors.New("delivery email can only be resent for a previous purchase")
)

// Backend is the order/verification service as seen by the orchestrator.
type Backend interface {
	CheckPurchase(ctx context.Context, email, productID string) (backend.PurchaseStatus, error)
	CreateOrder(ctx context.Context, productID string, amount decimal.Decimal, email string) (backend.OrderRef, error)
	VerifyPayment(ctx context.Context, ev backend.Evidence, productID, email string) (backend.Result, error)
	ResendEmail(ctx context.Context, email, productID string) (backend.Result, error)
}

const guardReleaseTimeout = 3 * time.Second

type Orchestrator struct {
	backend  Backend
	gateway  gateway.Gateway
	guard    Guard
	currency string
	now      func() time.Time
	newID    func() string
	logger   *log.Entry

	mu        sync.Mutex
	seq       uint64
	gen       uint64
	selected  *catalog.Product
	intent    Intent
	session   gateway.Session
	cancel    context.CancelFunc
	guardKey  string
	listeners []Listener
}

type Option func(*Orchestrator)

func WithGuard(g Guard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

func WithCurrency(currency string) Option {
	return func(o *Orchestrator) {
		if currency != "" {
			o.currency = currency
		}
	}
}

func WithLogger(l *log.Entry) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

func New(b Backend, g gateway.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:  b,
		gateway:  g,
		currency: "INR",
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   log.WithField("component", "checkout"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.intent = Intent{Status: StatusIdle, UpdatedAt: o.now()}
	return o
}

// Subscribe registers l for every later transition.
func (o *Orchestrator) Subscribe(l Listener) {
	o.mu.Lock()
	o.listeners = append(o.listeners, l)
	o.mu.Unlock()
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Select records the product the buyer picked. It clears a finished attempt.
func (o *Orchestrator) Select(p catalog.Product) (Snapshot, error) {
	o.mu.Lock()
	if o.intent.Status.InFlight() {
		s := o.snapshotLocked()
		o.mu.Unlock()
		return s, ErrInProgress
	}
	t, release := o.resetLocked(&p)
	o.mu.Unlock()

	o.notify(t)
	release()
	return t.Snapshot, nil
}

// Start begins an attempt for product, or for the selected product when
// product has no id. It runs until the attempt reaches a terminal status
// or waits on the gateway. While an attempt is in flight Start does
// nothing and returns the current snapshot.
func (o *Orchestrator) Start(ctx context.Context, product catalog.Product, rawEmail string) Snapshot {
	o.mu.Lock()
	if o.intent.Status.InFlight() {
		s := o.snapshotLocked()
		o.mu.Unlock()
		o.logger.WithField("intent", s.Intent.ID).Debug("start ignored, attempt in flight")
		return s
	}
	if product.ID == "" && o.selected != nil {
		product = *o.selected
	}

	o.gen++
	gen := o.gen
	attemptCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.session = nil
	now := o.now()
	o.intent = Intent{ID: o.newID(), Product: product, Status: StatusIdle, StartedAt: now, UpdatedAt: now}
	t := o.moveLocked(StatusValidating)
	o.mu.Unlock()
	o.notify(t)

	o.run(attemptCtx, gen, product, rawEmail)
	return o.Snapshot()
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, product catalog.Product, rawEmail string) {
	pid := product.ID.String()
	if err := validate.ProductSelected(pid); err != nil {
		o.fail(gen, StatusValidating, &Failure{Reason: ReasonNoProductSelected, Message: msgNoProduct, Err: err})
		return
	}
	email, err := validate.NormalizeEmail(rawEmail)
	if err != nil {
		msg := msgInvalidEmail
		if errors.Is(err, validate.ErrEmptyEmail) {
			msg = msgEmptyEmail
		}
		o.fail(gen, StatusValidating, &Failure{Reason: ReasonInvalidEmail, Message: msg, Err: err})
		return
	}
	if !o.acquireGuard(ctx, gen, email, pid) {
		return
	}
	// The selection survives input failures so the buyer can correct the email in place.
	if !o.advance(gen, StatusValidating, StatusCheckingPurchase, func(in *Intent) {
		in.Email = email
		o.selected = nil
	}) {
		return
	}

	st, err := o.backend.CheckPurchase(ctx, email, pid)
	if err != nil {
		o.fail(gen, StatusCheckingPurchase, &Failure{Reason: ReasonBackendUnreachable, Message: msgBackendUnreachable, Err: err})
		return
	}
	if st.Purchased {
		o.advance(gen, StatusCheckingPurchase, StatusAlreadyPurchased, func(in *Intent) {
			in.LastPurchaseDate = st.LastPurchaseDate
		})
		return
	}
	if !o.advance(gen, StatusCheckingPurchase, StatusCreatingOrder, nil) {
		return
	}

	// From here the order may exist remotely, so the buyer's cancellation
	// no longer reaches the calls.
	ctx = context.WithoutCancel(ctx)
	ref, err := o.backend.CreateOrder(ctx, pid, product.Price, email)
	if err != nil {
		o.fail(gen, StatusCreatingOrder, &Failure{
			Reason:  ReasonOrderCreationFailed,
			Message: backendMessage(err, msgOrderFallback),
			Err:     err,
		})
		return
	}

	session, err := o.gateway.Open(ctx, gateway.OpenRequest{
		Order:    ref,
		Product:  product,
		Email:    email,
		Amount:   product.Price,
		Currency: o.currency,
	}, gateway.Callbacks{
		OnSuccess: func(ctx context.Context, ev backend.Evidence) { o.verify(ctx, gen, ev) },
		OnDismiss: func() { o.abandon(gen) },
		OnUnconfirmed: func(ctx context.Context, ev backend.Evidence, err error) {
			o.unconfirmed(gen, ev, err)
		},
	})
	if err != nil {
		o.fail(gen, StatusCreatingOrder, &Failure{Reason: ReasonGatewayUnavailable, Message: msgGatewayUnavailable, Err: err})
		return
	}
	o.advance(gen, StatusCreatingOrder, StatusAwaitingGateway, func(in *Intent) {
		in.Order = &ref
		o.session = session
	})
}

// acquireGuard reports whether the attempt may continue. A guard that
// cannot be reached does not block checkout.
func (o *Orchestrator) acquireGuard(ctx context.Context, gen uint64, email, productID string) bool {
	if o.guard == nil {
		return true
	}
	key := GuardKey(email, productID)

	o.mu.Lock()
	owner, stale := o.intent.ID, o.gen != gen
	o.mu.Unlock()
	if stale {
		return false
	}

	ok, err := o.guard.Acquire(ctx, key, owner)
	if err != nil {
		o.logger.WithError(err).WithField("intent", owner).Warn("duplicate-attempt guard unavailable, continuing without it")
		return true
	}
	if !ok {
		o.fail(gen, StatusValidating, &Failure{Reason: ReasonCheckoutInProgress, Message: msgInProgress})
		return false
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		o.releaseGuard(key, owner)
		return false
	}
	o.guardKey = key
	o.mu.Unlock()
	return true
}

// submitEvidence moves the attempt to Verifying with ev attached.
func (o *Orchestrator) submitEvidence(gen uint64, ev backend.Evidence) (email, productID string, ok bool) {
	ok = o.advance(gen, StatusAwaitingGateway, StatusVerifying, func(in *Intent) {
		in.Evidence = &ev
		email, productID = in.Email, in.Product.ID.String()
	})
	if !ok {
		o.logger.WithFields(log.Fields{
			"provider": ev.Provider,
			"payment":  ev.Reference(),
		}).Error("payment evidence for an attempt that is no longer awaiting it")
	}
	return email, productID, ok
}

func (o *Orchestrator) failUnconfirmed(gen uint64, ref string, err error) {
	o.fail(gen, StatusVerifying, &Failure{
		Reason:     ReasonVerificationUnreachable,
		Message:    verificationUnreachableMessage(ref),
		PaymentRef: ref,
		Err:        err,
	})
}

func (o *Orchestrator) verify(ctx context.Context, gen uint64, ev backend.Evidence) {
	email, pid, ok := o.submitEvidence(gen, ev)
	if !ok {
		return
	}

	ref := ev.Reference()
	res, err := o.backend.VerifyPayment(context.WithoutCancel(ctx), ev, pid, email)
	if err != nil {
		o.failUnconfirmed(gen, ref, err)
		return
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = msgRejectedFallback
		}
		o.fail(gen, StatusVerifying, &Failure{Reason: ReasonVerificationRejected, Message: msg, PaymentRef: ref})
		return
	}
	o.advance(gen, StatusVerifying, StatusFulfilled, nil)
}

// unconfirmed handles a provider payment whose outcome is unknown. There is
// nothing to verify, and retrying could charge again, so the buyer is sent
// to support with the provider reference.
func (o *Orchestrator) unconfirmed(gen uint64, ev backend.Evidence, err error) {
	if _, _, ok := o.submitEvidence(gen, ev); !ok {
		return
	}
	o.failUnconfirmed(gen, ev.Reference(), err)
}

func (o *Orchestrator) abandon(gen uint64) {
	o.advance(gen, StatusAwaitingGateway, StatusIdle, nil)
}

// Complete forwards the browser's gateway result to the open session.
// For providers that report success synchronously the attempt is
// terminal by the time Complete returns.
func (o *Orchestrator) Complete(ctx context.Context, payload json.RawMessage) (Snapshot, error) {
	o.mu.Lock()
	session := o.session
	awaiting := o.intent.Status == StatusAwaitingGateway
	o.mu.Unlock()
	if !awaiting || session == nil {
		return o.Snapshot(), ErrNoPendingPayment
	}
	if err := session.Complete(ctx, payload); err != nil {
		return o.Snapshot(), err
	}
	return o.Snapshot(), nil
}

// Dismiss reports that the buyer closed the gateway widget.
func (o *Orchestrator) Dismiss() Snapshot {
	o.mu.Lock()
	session := o.session
	awaiting := o.intent.Status == StatusAwaitingGateway
	o.mu.Unlock()
	if awaiting && session != nil {
		session.Dismiss()
	}
	return o.Snapshot()
}

// Cancel abandons the attempt and returns to Idle. Outstanding work is
// discarded when it finishes. Attempts waiting on order creation or
// verification are not cancellable.
func (o *Orchestrator) Cancel() (Snapshot, error) {
	o.mu.Lock()
	st := o.intent.Status
	if st == StatusAwaitingGateway {
		o.mu.Unlock()
		return o.Dismiss(), nil
	}
	if !st.Cancellable() {
		s := o.snapshotLocked()
		o.mu.Unlock()
		return s, ErrNotCancellable
	}
	t, release := o.resetLocked(nil)
	o.mu.Unlock()

	o.notify(t)
	release()
	return t.Snapshot, nil
}

// Close acknowledges a finished attempt and clears the selection.
func (o *Orchestrator) Close() (Snapshot, error) {
	o.mu.Lock()
	if o.intent.Status.InFlight() {
		s := o.snapshotLocked()
		o.mu.Unlock()
		return s, ErrNotTerminal
	}
	t, release := o.resetLocked(nil)
	o.mu.Unlock()

	o.notify(t)
	release()
	return t.Snapshot, nil
}

// Resend asks the backend to mail the delivery again for a product the
// buyer already owns. It does not change the attempt.
func (o *Orchestrator) Resend(ctx context.Context) (backend.Result, error) {
	o.mu.Lock()
	in := o.intent
	o.mu.Unlock()
	if in.Status != StatusAlreadyPurchased {
		return backend.Result{}, ErrResendUnavailable
	}
	res, err := o.backend.ResendEmail(ctx, in.Email, in.Product.ID.String())
	if err != nil {
		return backend.Result{}, err
	}
	o.logger.WithFields(log.Fields{
		"intent":  in.ID,
		"success": res.Success,
	}).Info("delivery email resend requested")
	return res, nil
}

func (o *Orchestrator) fail(gen uint64, from Status, f *Failure) bool {
	return o.advance(gen, from, StatusFailed, func(in *Intent) { in.Failure = f })
}

// advance moves the attempt gen from from to to. It reports false, and
// changes nothing, when the attempt was replaced or is elsewhere.
func (o *Orchestrator) advance(gen uint64, from, to Status, mutate func(*Intent)) bool {
	o.mu.Lock()
	if o.gen != gen || o.intent.Status != from {
		o.mu.Unlock()
		return false
	}
	if !CanTransition(from, to) {
		o.mu.Unlock()
		o.logger.WithFields(log.Fields{"from": from, "to": to}).Error("illegal checkout transition")
		return false
	}
	if mutate != nil {
		mutate(&o.intent)
	}
	t := o.moveLocked(to)
	release := func() {}
	if !to.InFlight() {
		release = o.detachLocked()
	}
	o.mu.Unlock()

	o.notify(t)
	release()
	return true
}

func (o *Orchestrator) moveLocked(to Status) Transition {
	from := o.intent.Status
	o.intent.Status = to
	o.intent.UpdatedAt = o.now()
	o.seq++
	return Transition{From: from, To: to, Snapshot: o.snapshotLocked()}
}

// resetLocked drops the current attempt and leaves a blank Idle intent.
func (o *Orchestrator) resetLocked(selected *catalog.Product) (Transition, func()) {
	from := o.intent.Status
	var dropped *Intent
	if o.intent.ID != "" {
		in := o.intent
		dropped = &in
	}
	o.gen++
	release := o.detachLocked()
	o.selected = selected
	o.intent = Intent{Status: StatusIdle, UpdatedAt: o.now()}
	o.seq++
	return Transition{From: from, To: StatusIdle, Snapshot: o.snapshotLocked(), Dropped: dropped}, release
}

// detachLocked unhooks the gateway session and returns the cleanup that
// must run after the lock is released.
func (o *Orchestrator) detachLocked() func() {
	o.session = nil
	cancel, key, owner := o.cancel, o.guardKey, o.intent.ID
	o.cancel, o.guardKey = nil, ""
	return func() {
		if cancel != nil {
			cancel()
		}
		if key != "" {
			o.releaseGuard(key, owner)
		}
	}
}

func (o *Orchestrator) releaseGuard(key, owner string) {
	if o.guard == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), guardReleaseTimeout)
	defer cancel()
	if err := o.guard.Release(ctx, key, owner); err != nil {
		o.logger.WithError(err).WithField("key", key).Warn("release duplicate-attempt guard")
	}
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{Seq: o.seq, Provider: o.gateway.Name(), Intent: o.intent}
	if o.selected != nil {
		p := *o.selected
		s.Selected = &p
	}
	if o.session != nil && o.intent.Status == StatusAwaitingGateway {
		w := o.session.Widget()
		s.Widget = &w
	}
	return s
}

func (o *Orchestrator) notify(ts ...Transition) {
	o.mu.Lock()
	listeners := append([]Listener(nil), o.listeners...)
	o.mu.Unlock()

	for _, t := range ts {
		fields := log.Fields{
			"intent": t.Snapshot.Intent.ID,
			"from":   t.From,
			"to":     t.To,
			"seq":    t.Snapshot.Seq,
		}
		if f := t.Snapshot.Intent.Failure; f != nil && t.To == StatusFailed {
			fields["reason"] = f.Reason
			if f.Err != nil {
				fields["error"] = f.Err.Error()
			}
		}
		o.logger.WithFields(fields).Info("checkout transition")
		for _, l := range listeners {
			l(t)
		}
	}
}

// backendMessage returns the backend's own refusal text, or fallback when
// the failure was not an explicit refusal.
func backendMessage(err error, fallback string) string {
	var be *backend.Error
	if errors.As(err, &be) && errors.Is(be.Err, backend.ErrRefused) && be.Message != "" {
		return be.Message
	}
	return fallback
}
