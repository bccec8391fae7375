package checkout

import "fmt"

type Reason string

const (
	ReasonInvalidEmail            Reason = "INVALID_EMAIL"
	ReasonNoProductSelected       Reason = "NO_PRODUCT_SELECTED"
	ReasonCheckoutInProgress      Reason = "CHECKOUT_IN_PROGRESS"
	ReasonBackendUnreachable      Reason = "BACKEND_UNREACHABLE"
	ReasonOrderCreationFailed     Reason = "ORDER_CREATION_FAILED"
	ReasonGatewayUnavailable      Reason = "GATEWAY_UNAVAILABLE"
	ReasonVerificationUnreachable Reason = "VERIFICATION_UNREACHABLE"
	ReasonVerificationRejected    Reason = "VERIFICATION_REJECTED"
)

// InvalidInput failures are fixed by the buyer in place, without a network call.
func (r Reason) InvalidInput() bool {
	return r == ReasonInvalidEmail || r == ReasonNoProductSelected
}

// NeedsSupport is true when money may have moved but delivery is unconfirmed.
func (r Reason) NeedsSupport() bool {
	return r == ReasonVerificationUnreachable
}

type Failure struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
	// PaymentRef is set once the provider produced evidence.
	PaymentRef string `json:"paymentRef,omitempty"`
	Err        error  `json:"-"`
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Reason, f.Message)
}

const (
	msgEmptyEmail         = "Please enter your email address."
	msgInvalidEmail       = "Please enter a valid email address."
	msgNoProduct          = "Please choose a product before checking out."
	msgInProgress         = "A checkout for this product and email is already in progress. Finish or close it before starting another."
	msgBackendUnreachable = "We could not reach the order service. This is a connection or configuration problem, not a payment problem, and you have not been charged. Please try again shortly."
	msgOrderFallback      = "We could not create your order. You have not been charged."
	msgGatewayUnavailable = "The payment window could not be opened. You have not been charged. Please try again."
	msgRejectedFallback   = "Payment verification failed."
)

func verificationUnreachableMessage(paymentRef string) string {
	return fmt.Sprintf("Your payment may have gone through, but we could not confirm it. "+
		"Please do not pay again. Contact support and quote payment ID %s so we can deliver your purchase.", paymentRef)
}
