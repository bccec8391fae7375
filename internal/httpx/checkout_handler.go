package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/gateway"
	"github.com/ariefcatur/go-storefront-checkout/internal/presentation"
)

const (
	HeaderSessionID = "X-Session-ID"
	CookieSessionID = "sid"

	maxSessionIDLen = 64
)

// SnapshotLoader finds the last stored snapshot of a session that is no
// longer in memory.
type SnapshotLoader interface {
	Load(ctx context.Context, sessionID string) (checkout.Snapshot, error)
}

type CheckoutHandler struct {
	Catalog   *catalog.Catalog
	Sessions  *Sessions
	Snapshots SnapshotLoader // optional
	CookieTTL time.Duration
}

type selectReq struct {
	ProductID catalog.ProductID `json:"productId"`
}

type startReq struct {
	ProductID catalog.ProductID `json:"productId"`
	Email     string            `json:"email"`
}

type completeReq struct {
	Payload json.RawMessage `json:"payload"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Route("/checkout", func(r chi.Router) {
		r.Get("/", h.getView)
		r.Post("/select", h.selectProduct)
		r.Post("/start", h.start)
		r.Post("/complete", h.complete)
		r.Post("/dismiss", h.dismiss)
		r.Post("/cancel", h.cancel)
		r.Post("/close", h.close)
		r.Post("/resend", h.resend)
	})
}

// session resolves the caller's session from the header or cookie, issuing
// a new id when neither carries a usable one.
func (h *CheckoutHandler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id := r.Header.Get(HeaderSessionID)
	if id == "" {
		if c, err := r.Cookie(CookieSessionID); err == nil {
			id = c.Value
		}
	}
	if id == "" || len(id) > maxSessionIDLen {
		id = uuid.NewString()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieSessionID,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.CookieTTL.Seconds()),
	})
	w.Header().Set(HeaderSessionID, id)
	return h.Sessions.Get(id)
}

func (h *CheckoutHandler) getView(w http.ResponseWriter, r *http.Request) {
	sess, created := h.session(w, r)
	if created && h.Snapshots != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if snap, err := h.Snapshots.Load(ctx, sess.ID); err == nil {
			writeJSON(w, http.StatusOK, presentation.Project(snap))
			return
		}
	}
	writeJSON(w, http.StatusOK, sess.View.View())
}

func (h *CheckoutHandler) selectProduct(w http.ResponseWriter, r *http.Request) {
	var req selectReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, ok := h.lookup(w, req.ProductID)
	if !ok {
		return
	}
	sess, _ := h.session(w, r)
	snap, err := sess.Checkout.Select(p)
	h.respond(w, snap, err)
}

func (h *CheckoutHandler) start(w http.ResponseWriter, r *http.Request) {
	var req startReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	var p catalog.Product
	if req.ProductID != "" {
		var ok bool
		if p, ok = h.lookup(w, req.ProductID); !ok {
			return
		}
	}
	sess, _ := h.session(w, r)
	snap := sess.Checkout.Start(r.Context(), p, req.Email)
	h.respond(w, snap, nil)
}

func (h *CheckoutHandler) complete(w http.ResponseWriter, r *http.Request) {
	var req completeReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}
	sess, _ := h.session(w, r)
	snap, err := sess.Checkout.Complete(r.Context(), req.Payload)
	h.respond(w, snap, err)
}

func (h *CheckoutHandler) dismiss(w http.ResponseWriter, r *http.Request) {
	sess, _ := h.session(w, r)
	h.respond(w, sess.Checkout.Dismiss(), nil)
}

func (h *CheckoutHandler) cancel(w http.ResponseWriter, r *http.Request) {
	sess, _ := h.session(w, r)
	snap, err := sess.Checkout.Cancel()
	h.respond(w, snap, err)
}

func (h *CheckoutHandler) close(w http.ResponseWriter, r *http.Request) {
	sess, _ := h.session(w, r)
	snap, err := sess.Checkout.Close()
	h.respond(w, snap, err)
}

func (h *CheckoutHandler) resend(w http.ResponseWriter, r *http.Request) {
	sess, _ := h.session(w, r)
	res, err := sess.Checkout.Resend(r.Context())
	switch {
	case errors.Is(err, checkout.ErrResendUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		log.WithError(err).WithField("session", sess.ID).Warn("resend email")
		writeError(w, http.StatusBadGateway, "We could not reach the order service. Please try again shortly.")
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *CheckoutHandler) lookup(w http.ResponseWriter, id catalog.ProductID) (catalog.Product, bool) {
	p, err := h.Catalog.Lookup(id.String())
	if err != nil {
		writeError(w, http.StatusNotFound, "Product not found")
		return catalog.Product{}, false
	}
	return p, true
}

// respond writes the projected view, or an error carrying it.
func (h *CheckoutHandler) respond(w http.ResponseWriter, snap checkout.Snapshot, err error) {
	v := presentation.Project(snap)
	if err == nil {
		writeJSON(w, http.StatusOK, v)
		return
	}
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), View: v})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, checkout.ErrInProgress),
		errors.Is(err, checkout.ErrNotCancellable),
		errors.Is(err, checkout.ErrNotTerminal),
		errors.Is(err, checkout.ErrNoPendingPayment),
		errors.Is(err, gateway.ErrBusy),
		errors.Is(err, gateway.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrMissingPayment),
		errors.Is(err, gateway.ErrOrderMismatch),
		errors.Is(err, gateway.ErrBadPayload):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
