// Package presentation maps checkout snapshots to what the page shows.
// It holds no business rules: every view is recomputed from a snapshot.
package presentation

import (
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/gateway"
)

type Modal string

const (
	ModalNone             Modal = "none"
	ModalEmailCapture     Modal = "email_capture"
	ModalProcessing       Modal = "processing"
	ModalGateway          Modal = "gateway"
	ModalAlreadyPurchased Modal = "already_purchased"
	ModalSuccess          Modal = "success"
	ModalError            Modal = "error"
)

type Action string

const (
	ActionSubmit         Action = "submit"
	ActionCancel         Action = "cancel"
	ActionClose          Action = "close"
	ActionRetry          Action = "retry"
	ActionContactSupport Action = "contact_support"
	ActionResend         Action = "resend"
)

// View is a single modal. Modal is ModalNone when nothing is open.
type View struct {
	Seq              uint64           `json:"seq"`
	Status           checkout.Status  `json:"status"`
	Modal            Modal            `json:"modal"`
	Title            string           `json:"title,omitempty"`
	Message          string           `json:"message,omitempty"`
	Email            string           `json:"email,omitempty"`
	Product          *catalog.Product `json:"product,omitempty"`
	LastPurchaseDate *time.Time       `json:"lastPurchaseDate,omitempty"`
	Reason           checkout.Reason  `json:"reason,omitempty"`
	PaymentRef       string           `json:"paymentRef,omitempty"`
	Widget           *gateway.Widget  `json:"widget,omitempty"`
	Actions          []Action         `json:"actions"`
}

var processingTitles = map[checkout.Status]string{
	checkout.StatusValidating:       "Checking your details",
	checkout.StatusCheckingPurchase: "Checking your purchases",
	checkout.StatusCreatingOrder:    "Creating your order",
	checkout.StatusVerifying:        "Confirming your payment",
}

var errorTitles = map[checkout.Reason]string{
	checkout.ReasonNoProductSelected:       "No product selected",
	checkout.ReasonCheckoutInProgress:      "Checkout already open",
	checkout.ReasonBackendUnreachable:      "Service unavailable",
	checkout.ReasonOrderCreationFailed:     "Order not created",
	checkout.ReasonGatewayUnavailable:      "Payment window unavailable",
	checkout.ReasonVerificationUnreachable: "Payment not confirmed",
	checkout.ReasonVerificationRejected:    "Payment verification failed",
}

// Project returns the view for s.
func Project(s checkout.Snapshot) View {
	in := s.Intent
	v := View{Seq: s.Seq, Status: in.Status, Modal: ModalNone, Actions: []Action{}}

	switch in.Status {
	case checkout.StatusIdle:
		if s.Selected != nil {
			v.Modal = ModalEmailCapture
			v.Title = s.Selected.Name
			v.Product = s.Selected
			v.Actions = []Action{ActionSubmit, ActionCancel}
		}

	case checkout.StatusValidating, checkout.StatusCheckingPurchase,
		checkout.StatusCreatingOrder, checkout.StatusVerifying:
		v.Modal = ModalProcessing
		v.Title = processingTitles[in.Status]
		v.Product = product(in)
		v.Email = in.Email
		if in.Status.Cancellable() {
			v.Actions = []Action{ActionCancel}
		}

	case checkout.StatusAwaitingGateway:
		v.Modal = ModalGateway
		v.Title = "Complete your payment"
		v.Product = product(in)
		v.Email = in.Email
		v.Widget = s.Widget
		v.Actions = []Action{ActionCancel}

	case checkout.StatusAlreadyPurchased:
		v.Modal = ModalAlreadyPurchased
		v.Title = "Already purchased"
		v.Message = fmt.Sprintf("%s was already bought with %s. We can send the download link again.", in.Product.Name, in.Email)
		v.Product = product(in)
		v.Email = in.Email
		v.LastPurchaseDate = in.LastPurchaseDate
		v.Actions = []Action{ActionResend, ActionClose}

	case checkout.StatusFulfilled:
		v.Modal = ModalSuccess
		v.Title = "Payment successful"
		v.Message = fmt.Sprintf("Your download link for %s has been sent to %s.", in.Product.Name, in.Email)
		v.Product = product(in)
		v.Email = in.Email
		v.Actions = []Action{ActionClose}

	case checkout.StatusFailed:
		projectFailure(&v, s)
	}
	return v
}

func projectFailure(v *View, s checkout.Snapshot) {
	in := s.Intent
	f := in.Failure
	if f == nil {
		f = &checkout.Failure{Message: "Something went wrong."}
	}
	v.Reason = f.Reason
	v.Message = f.Message
	v.PaymentRef = f.PaymentRef
	v.Email = in.Email

	// A bad email is corrected in the capture dialog itself.
	if f.Reason == checkout.ReasonInvalidEmail && s.Selected != nil {
		v.Modal = ModalEmailCapture
		v.Title = s.Selected.Name
		v.Product = s.Selected
		v.Actions = []Action{ActionSubmit, ActionCancel}
		return
	}

	v.Modal = ModalError
	v.Title = errorTitles[f.Reason]
	if v.Title == "" {
		v.Title = "Checkout failed"
	}
	v.Product = product(in)

	switch {
	case f.Reason.NeedsSupport():
		v.Actions = []Action{ActionContactSupport, ActionClose}
	case f.Reason == checkout.ReasonVerificationRejected:
		v.Actions = []Action{ActionContactSupport, ActionRetry, ActionClose}
	case f.Reason.InvalidInput(), f.Reason == checkout.ReasonCheckoutInProgress:
		v.Actions = []Action{ActionClose}
	default:
		v.Actions = []Action{ActionRetry, ActionClose}
	}
}

func product(in checkout.Intent) *catalog.Product {
	if in.Product.ID == "" {
		return nil
	}
	p := in.Product
	return &p
}
