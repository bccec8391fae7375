// Package audit records checkout events in Postgres so support can find an
// attempt by payment reference or email.
package audit

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront-checkout/internal/events"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
)

type Store interface {
	Insert(ctx context.Context, rec Record) (bool, error)
}

// Deduper is a fast path in front of the store; the store's primary key
// remains the source of truth.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

type Service struct {
	Store Store
	Dedup Deduper // optional
}

// HandleEvent is installed as the consumer handler.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.WithError(err).WithField("offset", m.Offset).Warn("audit: skipping undecodable message")
		return nil
	}
	if !strings.HasPrefix(env.EventType, "Checkout") {
		return nil
	}
	entry := log.WithFields(log.Fields{"event": env.EventType, "event_id": env.EventID})

	if s.Dedup != nil {
		seen, err := s.Dedup.Seen(ctx, env.EventID)
		if err != nil {
			entry.WithError(err).Warn("audit: dedup lookup failed")
		} else if seen {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[events.CheckoutPayload](env.Payload)
	if err != nil {
		entry.WithError(err).Warn("audit: skipping bad payload")
		return nil
	}

	inserted, err := s.Store.Insert(ctx, Record{
		EventID:    env.EventID,
		EventType:  env.EventType,
		IntentID:   p.IntentID,
		SessionID:  p.SessionID,
		ProductID:  p.ProductID,
		Email:      p.Email,
		Status:     p.Status,
		OrderID:    p.OrderID,
		PaymentRef: p.PaymentRef,
		Reason:     p.Reason,
		Message:    p.Message,
		Amount:     p.Amount,
		Currency:   p.Currency,
		OccurredAt: env.OccurredAt,
	})
	if err != nil {
		return errors.Wrapf(err, "audit %s", env.EventID)
	}

	if s.Dedup != nil {
		if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
			entry.WithError(err).Warn("audit: dedup mark failed")
		}
	}
	if p.Reason != "" {
		entry = entry.WithField("reason", p.Reason)
	}
	entry.WithFields(log.Fields{"intent": p.IntentID, "inserted": inserted}).Info("audit recorded")
	return nil
}
