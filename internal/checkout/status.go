package checkout

type Status string

const (
	StatusIdle             Status = "IDLE"
	StatusValidating       Status = "VALIDATING"
	StatusCheckingPurchase Status = "CHECKING_PURCHASE"
	StatusAlreadyPurchased Status = "ALREADY_PURCHASED"
	StatusCreatingOrder    Status = "CREATING_ORDER"
	StatusAwaitingGateway  Status = "AWAITING_GATEWAY"
	StatusVerifying        Status = "VERIFYING"
	StatusFulfilled        Status = "FULFILLED"
	StatusFailed           Status = "FAILED"
)

// AwaitingGateway -> Idle is the only backward edge: the buyer closed the
// payment widget. Leaving a terminal status starts a fresh attempt instead.
var validNext = map[Status]map[Status]bool{
	StatusIdle:             {StatusValidating: true},
	StatusValidating:       {StatusCheckingPurchase: true, StatusFailed: true},
	StatusCheckingPurchase: {StatusAlreadyPurchased: true, StatusCreatingOrder: true, StatusFailed: true},
	StatusCreatingOrder:    {StatusAwaitingGateway: true, StatusFailed: true},
	StatusAwaitingGateway:  {StatusVerifying: true, StatusIdle: true},
	StatusVerifying:        {StatusFulfilled: true, StatusFailed: true},
	StatusAlreadyPurchased: {},
	StatusFulfilled:        {},
	StatusFailed:           {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) IsTerminal() bool {
	return s == StatusAlreadyPurchased || s == StatusFulfilled || s == StatusFailed
}

// InFlight reports whether an attempt owns the orchestrator.
func (s Status) InFlight() bool {
	return s != StatusIdle && !s.IsTerminal()
}

// Cancellable reports whether abandoning now cannot strand a request that
// changes purchase state.
func (s Status) Cancellable() bool {
	return s != StatusCreatingOrder && s != StatusVerifying
}

func (s Status) String() string { return string(s) }
