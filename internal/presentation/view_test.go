package presentation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/gateway"
)

var pixelPack = catalog.Product{ID: "7", Name: "Pixel Pack", Price: decimal.NewFromInt(500)}

func snap(status checkout.Status) checkout.Snapshot {
	return checkout.Snapshot{
		Seq: 3,
		Intent: checkout.Intent{
			ID:      "intent-1",
			Product: pixelPack,
			Email:   "a@b.co",
			Status:  status,
		},
	}
}

func failed(reason checkout.Reason, msg, ref string) checkout.Snapshot {
	s := snap(checkout.StatusFailed)
	s.Intent.Failure = &checkout.Failure{Reason: reason, Message: msg, PaymentRef: ref}
	return s
}

func TestProject(t *testing.T) {
	bought := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	already := snap(checkout.StatusAlreadyPurchased)
	already.Intent.LastPurchaseDate = &bought

	awaiting := snap(checkout.StatusAwaitingGateway)
	awaiting.Widget = &gateway.Widget{Provider: gateway.ProviderRazorpay}

	selected := checkout.Snapshot{Seq: 1, Selected: &pixelPack, Intent: checkout.Intent{Status: checkout.StatusIdle}}

	badEmail := failed(checkout.ReasonInvalidEmail, "Please enter a valid email address.", "")
	badEmail.Selected = &pixelPack

	cases := []struct {
		name    string
		in      checkout.Snapshot
		modal   Modal
		actions []Action
	}{
		{"idle", checkout.Snapshot{Intent: checkout.Intent{Status: checkout.StatusIdle}}, ModalNone, []Action{}},
		{"idle with selection", selected, ModalEmailCapture, []Action{ActionSubmit, ActionCancel}},
		{"checking", snap(checkout.StatusCheckingPurchase), ModalProcessing, []Action{ActionCancel}},
		{"creating order", snap(checkout.StatusCreatingOrder), ModalProcessing, []Action{}},
		{"verifying", snap(checkout.StatusVerifying), ModalProcessing, []Action{}},
		{"awaiting gateway", awaiting, ModalGateway, []Action{ActionCancel}},
		{"already purchased", already, ModalAlreadyPurchased, []Action{ActionResend, ActionClose}},
		{"fulfilled", snap(checkout.StatusFulfilled), ModalSuccess, []Action{ActionClose}},
		{"invalid email", badEmail, ModalEmailCapture, []Action{ActionSubmit, ActionCancel}},
		{"unreachable", failed(checkout.ReasonBackendUnreachable, "down", ""), ModalError, []Action{ActionRetry, ActionClose}},
		{"verification unreachable", failed(checkout.ReasonVerificationUnreachable, "call us", "pay_1"), ModalError, []Action{ActionContactSupport, ActionClose}},
		{"rejected", failed(checkout.ReasonVerificationRejected, "Signature mismatch", "pay_1"), ModalError, []Action{ActionContactSupport, ActionRetry, ActionClose}},
		{"in progress", failed(checkout.ReasonCheckoutInProgress, "busy", ""), ModalError, []Action{ActionClose}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Project(tc.in)
			assert.Equal(t, tc.modal, v.Modal)
			assert.Equal(t, tc.actions, v.Actions)
			assert.Equal(t, tc.in.Seq, v.Seq)
		})
	}
}

func TestProject_TerminalViewsCanClose(t *testing.T) {
	terminal := []checkout.Snapshot{
		snap(checkout.StatusAlreadyPurchased),
		snap(checkout.StatusFulfilled),
		failed(checkout.ReasonBackendUnreachable, "x", ""),
		failed(checkout.ReasonOrderCreationFailed, "x", ""),
		failed(checkout.ReasonGatewayUnavailable, "x", ""),
		failed(checkout.ReasonVerificationUnreachable, "x", "pay_1"),
		failed(checkout.ReasonVerificationRejected, "x", "pay_1"),
		failed(checkout.ReasonNoProductSelected, "x", ""),
	}
	for _, s := range terminal {
		v := Project(s)
		assert.Contains(t, v.Actions, ActionClose, "reason %s status %s", v.Reason, v.Status)
		assert.NotEmpty(t, v.Title)
	}
}

func TestProject_Details(t *testing.T) {
	v := Project(failed(checkout.ReasonVerificationRejected, "Signature mismatch", "pay_1"))
	assert.Equal(t, "Signature mismatch", v.Message)
	assert.Equal(t, "pay_1", v.PaymentRef)

	bought := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := snap(checkout.StatusAlreadyPurchased)
	s.Intent.LastPurchaseDate = &bought
	v = Project(s)
	require.NotNil(t, v.LastPurchaseDate)
	assert.Equal(t, bought, *v.LastPurchaseDate)
	assert.Contains(t, v.Message, "a@b.co")

	v = Project(snap(checkout.StatusFulfilled))
	assert.Contains(t, v.Message, "a@b.co")
	require.NotNil(t, v.Product)
	assert.Equal(t, pixelPack.ID, v.Product.ID)
}

type fakeSource struct {
	snapshot checkout.Snapshot
	listener checkout.Listener
}

func (f *fakeSource) Snapshot() checkout.Snapshot   { return f.snapshot }
func (f *fakeSource) Subscribe(l checkout.Listener) { f.listener = l }

func TestController_DropsStaleDeliveries(t *testing.T) {
	src := &fakeSource{snapshot: checkout.Snapshot{Seq: 0, Intent: checkout.Intent{Status: checkout.StatusIdle}}}
	var seen []Modal
	c := NewController(src, func(v View) { seen = append(seen, v.Modal) })
	require.NotNil(t, src.listener)
	assert.Equal(t, ModalNone, c.View().Modal)

	newer := snap(checkout.StatusFulfilled)
	newer.Seq = 5
	older := snap(checkout.StatusVerifying)
	older.Seq = 4

	src.listener(checkout.Transition{To: newer.Intent.Status, Snapshot: newer})
	src.listener(checkout.Transition{To: older.Intent.Status, Snapshot: older})

	assert.Equal(t, ModalSuccess, c.View().Modal)
	assert.Equal(t, []Modal{ModalNone, ModalSuccess}, seen)
}
