package catalog

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ProductID accepts both numeric and string ids in catalog files.
type ProductID string

func (id *ProductID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ProductID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(err, "product id must be a string or a number")
	}
	*id = ProductID(n.String())
	return nil
}

func (id ProductID) String() string { return string(id) }

type Product struct {
	ID          ProductID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Featured    bool            `json:"featured"`
}

func (p Product) validate() error {
	if p.ID == "" {
		return errors.New("missing id")
	}
	if p.Price.IsNegative() {
		return errors.Errorf("product %s: negative price %s", p.ID, p.Price)
	}
	return nil
}
