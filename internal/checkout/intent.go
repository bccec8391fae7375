package checkout

import (
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/backend"
	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/gateway"
)

// Intent is one checkout attempt. Pointer fields are set once and never
// mutated afterwards, so snapshots may share them.
type Intent struct {
	ID               string            `json:"id,omitempty"`
	Product          catalog.Product   `json:"product"`
	Email            string            `json:"email,omitempty"`
	Status           Status            `json:"status"`
	Order            *backend.OrderRef `json:"order,omitempty"`
	Evidence         *backend.Evidence `json:"evidence,omitempty"`
	Failure          *Failure          `json:"failure,omitempty"`
	LastPurchaseDate *time.Time        `json:"lastPurchaseDate,omitempty"`
	StartedAt        time.Time         `json:"startedAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Snapshot is a consistent copy of the orchestrator state. Seq grows with
// every transition so consumers can drop stale deliveries.
type Snapshot struct {
	Seq      uint64           `json:"seq"`
	Provider string           `json:"provider"`
	Selected *catalog.Product `json:"selected,omitempty"`
	Intent   Intent           `json:"intent"`
	Widget   *gateway.Widget  `json:"widget,omitempty"`
}

type Transition struct {
	From     Status
	To       Status
	Snapshot Snapshot
	// Dropped is the attempt a cancel or close discarded, if there was one.
	Dropped *Intent
}

// Listener observes transitions. Deliveries from different goroutines may
// interleave; use Snapshot.Seq to order them.
type Listener func(Transition)
