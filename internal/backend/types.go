package backend

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ActionCheckPurchase = "checkPurchase"
	ActionCreateOrder   = "createOrder"
	ActionVerifyPayment = "verifyPayment"
	ActionResendEmail   = "resendEmail"
)

type PurchaseStatus struct {
	Purchased        bool
	LastPurchaseDate *time.Time
}

// OrderRef is what createOrder hands back; the orchestrator only passes it on.
type OrderRef struct {
	OrderID  string          `json:"orderId"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	KeyID    string          `json:"keyId"`
}

// Evidence is the provider's proof of a completed payment.
type Evidence struct {
	Provider  string `json:"provider,omitempty"`
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Reference is the id a buyer should quote to support.
func (e Evidence) Reference() string {
	if e.PaymentID != "" {
		return e.PaymentID
	}
	return e.OrderID
}

// Result is the outcome of verify and resend; Success=false is not an error.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ---- wire shapes ----

type checkPurchaseReq struct {
	Action    string `json:"action"`
	Email     string `json:"email"`
	ProductID string `json:"productId"`
}

type createOrderReq struct {
	Action    string      `json:"action"`
	ProductID string      `json:"productId"`
	Amount    json.Number `json:"amount"`
	Email     string      `json:"email"`
}

type verifyPaymentReq struct {
	Action    string `json:"action"`
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature,omitempty"`
	ProductID string `json:"productId"`
	Email     string `json:"email"`
}

type resendEmailReq struct {
	Action    string `json:"action"`
	Email     string `json:"email"`
	ProductID string `json:"productId"`
}

// envelope covers the fields every response may carry. Older script
// deployments report failures under "error" instead of "message".
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

type checkPurchaseResp struct {
	envelope
	Purchased        bool   `json:"purchased"`
	LastPurchaseDate string `json:"lastPurchaseDate"`
}

type createOrderResp struct {
	envelope
	OrderID  string          `json:"orderId"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	KeyID    string          `json:"keyId"`
}

type resultResp struct {
	envelope
}
