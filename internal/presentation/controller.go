package presentation

import (
	"sync"

	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
)

// Source is the part of an orchestrator the controller watches.
type Source interface {
	Snapshot() checkout.Snapshot
	Subscribe(checkout.Listener)
}

// Controller keeps the latest view of one orchestrator.
type Controller struct {
	mu       sync.Mutex
	view     View
	onChange func(View)
}

// NewController subscribes to src. onChange, if set, is called with every
// view that replaces the current one.
func NewController(src Source, onChange func(View)) *Controller {
	c := &Controller{onChange: onChange}
	src.Subscribe(func(t checkout.Transition) { c.apply(t.Snapshot) })
	c.apply(src.Snapshot())
	return c
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// apply drops snapshots older than the current view, so deliveries that
// raced each other settle on the newest one.
func (c *Controller) apply(s checkout.Snapshot) {
	c.mu.Lock()
	if s.Seq < c.view.Seq {
		c.mu.Unlock()
		return
	}
	v := Project(s)
	c.view = v
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(v)
	}
}
