package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Record is one checkout event as stored for support lookups.
type Record struct {
	EventID    string           `json:"event_id"`
	EventType  string           `json:"event_type"`
	IntentID   string           `json:"intent_id"`
	SessionID  string           `json:"session_id,omitempty"`
	ProductID  string           `json:"product_id,omitempty"`
	Email      string           `json:"email,omitempty"`
	Status     string           `json:"status"`
	OrderID    string           `json:"order_id,omitempty"`
	PaymentRef string           `json:"payment_ref,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Message    string           `json:"message,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Currency   string           `json:"currency,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS checkout_audit (
	event_id    uuid PRIMARY KEY,
	event_type  text NOT NULL,
	intent_id   text NOT NULL,
	session_id  text NOT NULL DEFAULT '',
	product_id  text NOT NULL DEFAULT '',
	email       text NOT NULL DEFAULT '',
	status      text NOT NULL,
	order_id    text NOT NULL DEFAULT '',
	payment_ref text NOT NULL DEFAULT '',
	reason      text NOT NULL DEFAULT '',
	message     text NOT NULL DEFAULT '',
	amount      numeric,
	currency    text NOT NULL DEFAULT '',
	occurred_at timestamptz NOT NULL,
	recorded_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS checkout_audit_payment_ref_idx ON checkout_audit (payment_ref) WHERE payment_ref <> '';
CREATE INDEX IF NOT EXISTS checkout_audit_email_idx ON checkout_audit (lower(email), occurred_at DESC);
`

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, schema)
	return errors.Wrap(err, "create checkout_audit")
}

// Insert stores rec once; a replayed event id is reported as not inserted.
func (r *Repo) Insert(ctx context.Context, rec Record) (bool, error) {
	var amount *string
	if rec.Amount != nil {
		s := rec.Amount.String()
		amount = &s
	}
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO checkout_audit(event_id, event_type, intent_id, session_id, product_id, email,
			status, order_id, payment_ref, reason, message, amount, currency, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::numeric,$13,$14)
		ON CONFLICT (event_id) DO NOTHING`,
		rec.EventID, rec.EventType, rec.IntentID, rec.SessionID, rec.ProductID, rec.Email,
		rec.Status, rec.OrderID, rec.PaymentRef, rec.Reason, rec.Message, amount, rec.Currency, rec.OccurredAt)
	if err != nil {
		return false, errors.Wrap(err, "insert checkout_audit")
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) FindByPaymentRef(ctx context.Context, ref string) ([]Record, error) {
	return r.query(ctx, `WHERE payment_ref = $1 OR order_id = $1 ORDER BY occurred_at`, ref)
}

func (r *Repo) FindByEmail(ctx context.Context, email string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.query(ctx, `WHERE lower(email) = lower($1) ORDER BY occurred_at DESC LIMIT $2`, email, limit)
}

func (r *Repo) query(ctx context.Context, where string, args ...any) ([]Record, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT event_id::text, event_type, intent_id, session_id, product_id, email, status,
			order_id, payment_ref, reason, message, amount::text, currency, occurred_at
		FROM checkout_audit `+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query checkout_audit")
	}
	out, err := pgx.CollectRows(rows, scanRecord)
	return out, errors.Wrap(err, "scan checkout_audit")
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var rec Record
	var amount *string
	err := row.Scan(&rec.EventID, &rec.EventType, &rec.IntentID, &rec.SessionID, &rec.ProductID,
		&rec.Email, &rec.Status, &rec.OrderID, &rec.PaymentRef, &rec.Reason, &rec.Message,
		&amount, &rec.Currency, &rec.OccurredAt)
	if err != nil {
		return rec, err
	}
	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return rec, errors.Wrapf(err, "amount of %s", rec.EventID)
		}
		rec.Amount = &d
	}
	return rec, nil
}
