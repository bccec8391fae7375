package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-checkout/internal/backend"
	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/gateway"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	check  func(ctx context.Context, email, productID string) (backend.PurchaseStatus, error)
	create func(ctx context.Context, productID string, amount decimal.Decimal, email string) (backend.OrderRef, error)
	verify func(ctx context.Context, ev backend.Evidence, productID, email string) (backend.Result, error)
	resend func(ctx context.Context, email, productID string) (backend.Result, error)

	verified []backend.Evidence
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls: map[string]int{},
		check: func(context.Context, string, string) (backend.PurchaseStatus, error) {
			return backend.PurchaseStatus{}, nil
		},
		create: func(context.Context, string, decimal.Decimal, string) (backend.OrderRef, error) {
			return backend.OrderRef{OrderID: "order_1", Amount: decimal.NewFromInt(50000), Currency: "INR", KeyID: "rzp_test_key"}, nil
		},
		verify: func(context.Context, backend.Evidence, string, string) (backend.Result, error) {
			return backend.Result{Success: true}, nil
		},
		resend: func(context.Context, string, string) (backend.Result, error) {
			return backend.Result{Success: true, Message: "Email sent"}, nil
		},
	}
}

func (f *fakeBackend) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[action]
}

func (f *fakeBackend) hit(action string) {
	f.mu.Lock()
	f.calls[action]++
	f.mu.Unlock()
}

func (f *fakeBackend) CheckPurchase(ctx context.Context, email, productID string) (backend.PurchaseStatus, error) {
	f.hit(backend.ActionCheckPurchase)
	return f.check(ctx, email, productID)
}

func (f *fakeBackend) CreateOrder(ctx context.Context, productID string, amount decimal.Decimal, email string) (backend.OrderRef, error) {
	f.hit(backend.ActionCreateOrder)
	return f.create(ctx, productID, amount, email)
}

func (f *fakeBackend) VerifyPayment(ctx context.Context, ev backend.Evidence, productID, email string) (backend.Result, error) {
	f.hit(backend.ActionVerifyPayment)
	f.mu.Lock()
	f.verified = append(f.verified, ev)
	f.mu.Unlock()
	return f.verify(ctx, ev, productID, email)
}

func (f *fakeBackend) ResendEmail(ctx context.Context, email, productID string) (backend.Result, error) {
	f.hit(backend.ActionResendEmail)
	return f.resend(ctx, email, productID)
}

type transitionLog struct {
	mu  sync.Mutex
	all []Transition
}

func (l *transitionLog) listen(t Transition) {
	l.mu.Lock()
	l.all = append(l.all, t)
	l.mu.Unlock()
}

func (l *transitionLog) statuses() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Status, 0, len(l.all))
	for _, t := range l.all {
		out = append(out, t.To)
	}
	return out
}

var pixelPack = catalog.Product{ID: "7", Name: "Pixel Pack", Price: decimal.NewFromInt(500)}

func newTestOrchestrator(t *testing.T, fb *fakeBackend, opts ...Option) (*Orchestrator, *transitionLog) {
	t.Helper()
	n := 0
	opts = append([]Option{WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("intent-%d", n)
	})}, opts...)
	o := New(fb, gateway.Razorpay{StoreName: "Pixel Store"}, opts...)
	tl := &transitionLog{}
	o.Subscribe(tl.listen)
	return o, tl
}

func razorpayPayload(t *testing.T, orderID, paymentID string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(map[string]string{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
		"razorpay_signature":  "sig_1",
	})
	require.NoError(t, err)
	return b
}

func TestStart_AlreadyPurchased(t *testing.T) {
	fb := newFakeBackend()
	bought := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	fb.check = func(context.Context, string, string) (backend.PurchaseStatus, error) {
		return backend.PurchaseStatus{Purchased: true, LastPurchaseDate: &bought}, nil
	}
	o, tl := newTestOrchestrator(t, fb)

	s := o.Start(context.Background(), pixelPack, "  a@b.co ")

	assert.Equal(t, StatusAlreadyPurchased, s.Intent.Status)
	require.NotNil(t, s.Intent.LastPurchaseDate)
	assert.True(t, bought.Equal(*s.Intent.LastPurchaseDate))
	assert.Equal(t, "a@b.co", s.Intent.Email)
	assert.Equal(t, 0, fb.count(backend.ActionCreateOrder))
	assert.Equal(t, []Status{StatusValidating, StatusCheckingPurchase, StatusAlreadyPurchased}, tl.statuses())
}

func TestStart_HappyPath(t *testing.T) {
	fb := newFakeBackend()
	o, tl := newTestOrchestrator(t, fb)

	s := o.Start(context.Background(), pixelPack, "a@b.co")
	require.Equal(t, StatusAwaitingGateway, s.Intent.Status)
	require.NotNil(t, s.Widget)
	assert.Equal(t, gateway.ProviderRazorpay, s.Widget.Provider)
	assert.Equal(t, "order_1", s.Widget.Options["order_id"])
	require.NotNil(t, s.Intent.Order)
	assert.Equal(t, "order_1", s.Intent.Order.OrderID)

	s, err := o.Complete(context.Background(), razorpayPayload(t, "order_1", "pay_1"))
	require.NoError(t, err)

	assert.Equal(t, StatusFulfilled, s.Intent.Status)
	assert.Nil(t, s.Widget)
	assert.Equal(t, 1, fb.count(backend.ActionCreateOrder))
	require.Len(t, fb.verified, 1)
	assert.Equal(t, backend.Evidence{Provider: gateway.ProviderRazorpay, OrderID: "order_1", PaymentID: "pay_1", Signature: "sig_1"}, fb.verified[0])
	assert.Equal(t, []Status{
		StatusValidating, StatusCheckingPurchase, StatusCreatingOrder,
		StatusAwaitingGateway, StatusVerifying, StatusFulfilled,
	}, tl.statuses())
}

func TestStart_InvalidEmail(t *testing.T) {
	cases := []struct {
		name  string
		email string
		msg   string
	}{
		{"malformed", "not-an-email", msgInvalidEmail},
		{"empty", "   ", msgEmptyEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fb := newFakeBackend()
			o, _ := newTestOrchestrator(t, fb)

			s := o.Start(context.Background(), pixelPack, tc.email)

			assert.Equal(t, StatusFailed, s.Intent.Status)
			require.NotNil(t, s.Intent.Failure)
			assert.Equal(t, ReasonInvalidEmail, s.Intent.Failure.Reason)
			assert.Equal(t, tc.msg, s.Intent.Failure.Message)
			assert.Equal(t, 0, fb.count(backend.ActionCheckPurchase))
		})
	}
}

func TestStart_NoProduct(t *testing.T) {
	fb := newFakeBackend()
	o, _ := newTestOrchestrator(t, fb)

	s := o.Start(context.Background(), catalog.Product{}, "a@b.co")

	assert.Equal(t, StatusFailed, s.Intent.Status)
	assert.Equal(t, ReasonNoProductSelected, s.Intent.Failure.Reason)
	assert.Equal(t, 0, fb.count(backend.ActionCheckPurchase))
}

func TestStart_UsesSelection(t *testing.T) {
	fb := newFakeBackend()
	fb.check = func(context.Context, string, string) (backend.PurchaseStatus, error) {
		return backend.PurchaseStatus{Purchased: true}, nil
	}
	o, _ := newTestOrchestrator(t, fb)

	s, err := o.Select(pixelPack)
	require.NoError(t, err)
	require.NotNil(t, s.Selected)

	s = o.Start(context.Background(), catalog.Product{}, "a@b.co")
	assert.Equal(t, StatusAlreadyPurchased, s.Intent.Status)
	assert.Equal(t, pixelPack.ID, s.Intent.Product.ID)
	assert.Nil(t, s.Selected)
}

func TestDismiss_ReturnsToIdle(t *testing.T) {
	fb := newFakeBackend()
	o, _ := newTestOrchestrator(t, fb)

	s := o.Start(context.Background(), pixelPack, "a@b.co")
	require.Equal(t, StatusAwaitingGateway, s.Intent.Status)

	s = o.Dismiss()
	assert.Equal(t, StatusIdle, s.Intent.Status)
	assert.Nil(t, s.Widget)

	_, err := o.Complete(context.Background(), razorpayPayload(t, "order_1", "pay_1"))
	assert.ErrorIs(t, err, ErrNoPendingPayment)
	assert.Equal(t, 0, fb.count(backend.ActionVerifyPayment))

	s = o.Start(context.Background(), pixelPack, "a@b.co")
	assert.Equal(t, StatusAwaitingGateway, s.Intent.Status)
	assert.Equal(t, 2, fb.count(backend.ActionCreateOrder))
}

func TestVerify_Unreachable(t *testing.T) {
	fb := newFakeBackend()
	fb.verify = func(context.Context, backend.Evidence, string, string) (backend.Result, error) {
		return backend.Result{}, &backend.Error{Action: backend.ActionVerifyPayment, Message: "service unreachable", Err: context.DeadlineExceeded}
	}
	o, _ := newTestOrchestrator(t, fb)

	o.Start(context.Background(), pixelPack, "a@b.co")
	s, err := o.Complete(context.Background(), razorpayPayload(t, "order_1", "pay_9"))
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, s.Intent.Status)
	f := s.Intent.Failure
	require.NotNil(t, f)
	assert.Equal(t, ReasonVerificationUnreachable, f.Reason)
	assert.True(t, f.Reason.NeedsSupport())
	assert.Equal(t, "pay_9", f.PaymentRef)
	assert.Contains(t, f.Message, "pay_9")
	assert.NotEqual(t, StatusFulfilled, s.Intent.Status)
}

func TestVerify_Rejected(t *testing.T) {
	fb := newFakeBackend()
	fb.verify = func(context.Context, backend.Evidence, string, string) (backend.Result, error) {
		return backend.Result{Success: false, Message: "Signature mismatch"}, nil
	}
	o, _ := newTestOrchestrator(t, fb)

	o.Start(context.Background(), pixelPack, "a@b.co")
	s, err := o.Complete(context.Background(), razorpayPayload(t, "order_1", "pay_1"))
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, s.Intent.Status)
	assert.Equal(t, ReasonVerificationRejected, s.Intent.Failure.Reason)
	assert.Equal(t, "Signature mismatch", s.Intent.Failure.Message)
	assert.Equal(t, "pay_1", s.Intent.Failure.PaymentRef)
}

type flakyOrdersAPI struct {
	creates  int
	captures int
}

func (f *flakyOrdersAPI) CreateOrder(context.Context, decimal.Decimal, string, string, string) (string, error) {
	f.creates++
	return fmt.Sprintf("PP-%d", f.creates), nil
}

func (f *flakyOrdersAPI) CaptureOrder(context.Context, string, string) (gateway.Capture, error) {
	f.captures++
	return gateway.Capture{}, errors.Wrap(context.DeadlineExceeded, "paypal capture")
}

func TestComplete_UnknownCaptureOutcomeNeedsSupport(t *testing.T) {
	fb := newFakeBackend()
	api := &flakyOrdersAPI{}
	o := New(fb, gateway.PayPal{API: api}, WithCurrency("USD"))
	tl := &transitionLog{}
	o.Subscribe(tl.listen)

	o.Start(context.Background(), pixelPack, "a@b.co")
	s, err := o.Complete(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, s.Intent.Status)
	f := s.Intent.Failure
	require.NotNil(t, f)
	assert.Equal(t, ReasonVerificationUnreachable, f.Reason)
	assert.Equal(t, "PP-1", f.PaymentRef)
	assert.Contains(t, f.Message, "PP-1")
	require.NotNil(t, s.Intent.Evidence)
	assert.Equal(t, "PP-1", s.Intent.Evidence.OrderID)

	// nothing the buyer does afterwards reaches PayPal again
	_, err = o.Complete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoPendingPayment)
	assert.Equal(t, StatusFailed, o.Dismiss().Intent.Status)
	assert.Equal(t, 1, api.creates)
	assert.Equal(t, 1, api.captures)
	assert.Equal(t, 0, fb.count(backend.ActionVerifyPayment))
	assert.Equal(t, []Status{
		StatusValidating, StatusCheckingPurchase, StatusCreatingOrder,
		StatusAwaitingGateway, StatusVerifying, StatusFailed,
	}, tl.statuses())
}

func TestComplete_BadPayloadKeepsWaiting(t *testing.T) {
	fb := newFakeBackend()
	o, _ := newTestOrchestrator(t, fb)

	o.Start(context.Background(), pixelPack, "a@b.co")
	s, err := o.Complete(context.Background(), json.RawMessage(`{"razorpay_order_id":"order_1"}`))

	assert.ErrorIs(t, err, gateway.ErrMissingPayment)
	assert.Equal(t, StatusAwaitingGateway, s.Intent.Status)
	assert.Equal(t, 0, fb.count(backend.ActionVerifyPayment))
}

func TestCreateOrder_Failures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		msg  string
	}{
		{
			name: "refused",
			err:  &backend.Error{Action: backend.ActionCreateOrder, Message: "Product is not for sale", Err: backend.ErrRefused},
			msg:  "Product is not for sale",
		},
		{
			name: "refused with error status",
			err:  &backend.Error{Action: backend.ActionCreateOrder, Message: "Product is not for sale", Err: errors.Wrapf(backend.ErrRefused, "status %d", 400)},
			msg:  "Product is not for sale",
		},
		{
			name: "transport",
			err:  &backend.Error{Action: backend.ActionCreateOrder, Message: "service unreachable", Err: errors.New("dial tcp: refused")},
			msg:  msgOrderFallback,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fb := newFakeBackend()
			fb.create = func(context.Context, string, decimal.Decimal, string) (backend.OrderRef, error) {
				return backend.OrderRef{}, tc.err
			}
			o, _ := newTestOrchestrator(t, fb)

			s := o.Start(context.Background(), pixelPack, "a@b.co")

			assert.Equal(t, StatusFailed, s.Intent.Status)
			assert.Equal(t, ReasonOrderCreationFailed, s.Intent.Failure.Reason)
			assert.Equal(t, tc.msg, s.Intent.Failure.Message)
		})
	}
}

func TestCheckPurchase_Unreachable(t *testing.T) {
	fb := newFakeBackend()
	fb.check = func(context.Context, string, string) (backend.PurchaseStatus, error) {
		return backend.PurchaseStatus{}, &backend.Error{Action: backend.ActionCheckPurchase, Message: "status 404", Err: errors.New("non-2xx")}
	}
	o, _ := newTestOrchestrator(t, fb)

	s := o.Start(context.Background(), pixelPack, "a@b.co")

	assert.Equal(t, StatusFailed, s.Intent.Status)
	assert.Equal(t, ReasonBackendUnreachable, s.Intent.Failure.Reason)
	assert.Equal(t, msgBackendUnreachable, s.Intent.Failure.Message)
	assert.Equal(t, 0, fb.count(backend.ActionCreateOrder))
}

func TestGatewayOpenFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.create = func(context.Context, string, decimal.Decimal, string) (backend.OrderRef, error) {
		return backend.OrderRef{OrderID: "order_1"}, nil // no key id
	}
	o, _ := newTestOrchestrator(t, fb)

	s := o.Start(context.Background(), pixelPack, "a@b.co")

	assert.Equal(t, StatusFailed, s.Intent.Status)
	assert.Equal(t, ReasonGatewayUnavailable, s.Intent.Failure.Reason)
}

// blockingCheck parks CheckPurchase until release is closed or ctx ends.
func blockingCheck(entered chan<- struct{}, release <-chan struct{}) func(context.Context, string, string) (backend.PurchaseStatus, error) {
	return func(ctx context.Context, _, _ string) (backend.PurchaseStatus, error) {
		entered <- struct{}{}
		select {
		case <-release:
			return backend.PurchaseStatus{}, nil
		case <-ctx.Done():
			return backend.PurchaseStatus{}, ctx.Err()
		}
	}
}

func TestStart_IgnoredWhileInFlight(t *testing.T) {
	fb := newFakeBackend()
	entered, release := make(chan struct{}, 1), make(chan struct{})
	fb.check = blockingCheck(entered, release)
	o, _ := newTestOrchestrator(t, fb)

	done := make(chan Snapshot)
	go func() { done <- o.Start(context.Background(), pixelPack, "a@b.co") }()
	<-entered

	s := o.Start(context.Background(), pixelPack, "other@b.co")
	assert.Equal(t, StatusCheckingPurchase, s.Intent.Status)
	assert.Equal(t, "a@b.co", s.Intent.Email)

	close(release)
	final := <-done
	assert.Equal(t, StatusAwaitingGateway, final.Intent.Status)
	assert.Equal(t, 1, fb.count(backend.ActionCheckPurchase))
	assert.Equal(t, 1, fb.count(backend.ActionCreateOrder))
}

func TestCancel_DuringCheckDiscardsResult(t *testing.T) {
	fb := newFakeBackend()
	entered, release := make(chan struct{}, 1), make(chan struct{})
	fb.check = blockingCheck(entered, release)
	guard := NewMemoryGuard()
	o, _ := newTestOrchestrator(t, fb, WithGuard(guard))

	done := make(chan Snapshot)
	go func() { done <- o.Start(context.Background(), pixelPack, "a@b.co") }()
	<-entered

	s, err := o.Cancel()
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, s.Intent.Status)

	final := <-done
	assert.Equal(t, StatusIdle, final.Intent.Status)
	assert.Equal(t, 0, fb.count(backend.ActionCreateOrder))

	ok, err := guard.Acquire(context.Background(), GuardKey("a@b.co", "7"), "someone-else")
	require.NoError(t, err)
	assert.True(t, ok, "guard released on cancel")
}

func TestCancel_RefusedWhileCreatingOrder(t *testing.T) {
	fb := newFakeBackend()
	entered, release := make(chan struct{}, 1), make(chan struct{})
	fb.create = func(ctx context.Context, _ string, _ decimal.Decimal, _ string) (backend.OrderRef, error) {
		entered <- struct{}{}
		<-release
		return backend.OrderRef{OrderID: "order_1", Amount: decimal.NewFromInt(50000), Currency: "INR", KeyID: "k"}, nil
	}
	o, _ := newTestOrchestrator(t, fb)

	done := make(chan Snapshot)
	go func() { done <- o.Start(context.Background(), pixelPack, "a@b.co") }()
	<-entered

	s, err := o.Cancel()
	assert.ErrorIs(t, err, ErrNotCancellable)
	assert.Equal(t, StatusCreatingOrder, s.Intent.Status)

	close(release)
	assert.Equal(t, StatusAwaitingGateway, (<-done).Intent.Status)
}

func TestCancel_WhileAwaitingGatewayDismisses(t *testing.T) {
	fb := newFakeBackend()
	o, _ := newTestOrchestrator(t, fb)

	o.Start(context.Background(), pixelPack, "a@b.co")
	s, err := o.Cancel()

	require.NoError(t, err)
	assert.Equal(t, StatusIdle, s.Intent.Status)
	assert.Equal(t, "order_1", s.Intent.Order.OrderID)
}

func TestGuard_ConflictAcrossSessions(t *testing.T) {
	guard := NewMemoryGuard()
	fb := newFakeBackend()
	first, _ := newTestOrchestrator(t, fb, WithGuard(guard))
	second, _ := newTestOrchestrator(t, fb, WithGuard(guard), WithIDGenerator(func() string { return "other" }))

	s := first.Start(context.Background(), pixelPack, "a@b.co")
	require.Equal(t, StatusAwaitingGateway, s.Intent.Status)

	s = second.Start(context.Background(), pixelPack, "A@B.CO")
	assert.Equal(t, StatusFailed, s.Intent.Status)
	assert.Equal(t, ReasonCheckoutInProgress, s.Intent.Failure.Reason)

	first.Dismiss()
	s = second.Start(context.Background(), pixelPack, "A@B.CO")
	assert.Equal(t, StatusAwaitingGateway, s.Intent.Status)
}

type brokenGuard struct{}

func (brokenGuard) Acquire(context.Context, string, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (brokenGuard) Release(context.Context, string, string) error {
	return errors.New("redis: connection refused")
}

func TestGuard_UnavailableDoesNotBlock(t *testing.T) {
	fb := newFakeBackend()
	o, _ := newTestOrchestrator(t, fb, WithGuard(brokenGuard{}))

	s := o.Start(context.Background(), pixelPack, "a@b.co")
	assert.Equal(t, StatusAwaitingGateway, s.Intent.Status)
}

func TestResend(t *testing.T) {
	fb := newFakeBackend()
	fb.check = func(context.Context, string, string) (backend.PurchaseStatus, error) {
		return backend.PurchaseStatus{Purchased: true}, nil
	}
	o, _ := newTestOrchestrator(t, fb)

	_, err := o.Resend(context.Background())
	assert.ErrorIs(t, err, ErrResendUnavailable)

	before := o.Start(context.Background(), pixelPack, "a@b.co")
	for i := 0; i < 2; i++ {
		res, err := o.Resend(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "Email sent", res.Message)
	}
	after := o.Snapshot()

	assert.Equal(t, 2, fb.count(backend.ActionResendEmail))
	assert.Equal(t, before.Seq, after.Seq)
	assert.Equal(t, StatusAlreadyPurchased, after.Intent.Status)
}

func TestClose(t *testing.T) {
	fb := newFakeBackend()
	o, _ := newTestOrchestrator(t, fb)

	o.Start(context.Background(), pixelPack, "a@b.co")
	_, err := o.Close()
	assert.ErrorIs(t, err, ErrNotTerminal)

	_, err = o.Complete(context.Background(), razorpayPayload(t, "order_1", "pay_1"))
	require.NoError(t, err)

	s, err := o.Close()
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, s.Intent.Status)
	assert.Empty(t, s.Intent.ID)
	assert.Nil(t, s.Selected)
}

func TestSelect_RefusedWhileInFlight(t *testing.T) {
	fb := newFakeBackend()
	o, _ := newTestOrchestrator(t, fb)

	o.Start(context.Background(), pixelPack, "a@b.co")
	_, err := o.Select(catalog.Product{ID: "8", Name: "Other"})
	assert.ErrorIs(t, err, ErrInProgress)
}

func TestListener_SeqIncreases(t *testing.T) {
	fb := newFakeBackend()
	o, tl := newTestOrchestrator(t, fb)

	o.Start(context.Background(), pixelPack, "a@b.co")
	o.Dismiss()
	o.Start(context.Background(), pixelPack, "a@b.co")

	tl.mu.Lock()
	defer tl.mu.Unlock()
	require.NotEmpty(t, tl.all)
	for i := 1; i < len(tl.all); i++ {
		assert.Greater(t, tl.all[i].Snapshot.Seq, tl.all[i-1].Snapshot.Seq)
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusIdle, StatusValidating))
	assert.True(t, CanTransition(StatusAwaitingGateway, StatusIdle))
	assert.True(t, CanTransition(StatusVerifying, StatusFulfilled))
	assert.False(t, CanTransition(StatusAwaitingGateway, StatusFulfilled))
	assert.False(t, CanTransition(StatusCreatingOrder, StatusVerifying))
	assert.False(t, CanTransition(StatusIdle, StatusCreatingOrder))

	for _, s := range []Status{StatusAlreadyPurchased, StatusFulfilled, StatusFailed} {
		assert.True(t, s.IsTerminal())
		assert.Empty(t, validNext[s])
	}
	// Fulfilled is only reachable from Verifying.
	for from, next := range validNext {
		if next[StatusFulfilled] {
			assert.Equal(t, StatusVerifying, from)
		}
	}
}
