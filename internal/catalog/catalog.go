package catalog

import (
	"context"

	"github.com/pkg/errors"
)

var ErrProductNotFound = errors.New("product not found")

// Source yields the product records once at startup.
type Source interface {
	Products(ctx context.Context) ([]Product, error)
}

// Catalog is read-only after Load.
type Catalog struct {
	products []Product
	byID     map[ProductID]int
}

func New(products []Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		byID:     make(map[ProductID]int, len(products)),
	}
	for i, p := range products {
		if err := p.validate(); err != nil {
			return nil, errors.Wrapf(err, "product #%d", i)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, errors.Errorf("duplicate product id %s", p.ID)
		}
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

func Load(ctx context.Context, src Source) (*Catalog, error) {
	products, err := src.Products(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	return New(products)
}

func (c *Catalog) Lookup(id string) (Product, error) {
	i, ok := c.byID[ProductID(id)]
	if !ok {
		return Product{}, errors.Wrapf(ErrProductNotFound, "id %s", id)
	}
	return c.products[i], nil
}

// All returns a copy in source order.
func (c *Catalog) All() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Catalog) Len() int { return len(c.products) }
