package catalog

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// FileSource reads a JSON array of products, e.g. data/products.json.
type FileSource struct{ Path string }

func (s FileSource) Products(_ context.Context) ([]Product, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}
	return decode(b)
}

// URLSource fetches the same JSON array over HTTP.
type URLSource struct {
	URL    string
	Client *resty.Client
}

func (s URLSource) Products(ctx context.Context) ([]Product, error) {
	client := s.Client
	if client == nil {
		client = resty.New().SetTimeout(10 * time.Second)
	}
	resp, err := client.R().SetContext(ctx).Get(s.URL)
	if err != nil {
		return nil, errors.Wrap(err, "fetch catalog")
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, errors.Errorf("fetch catalog: status %d", resp.StatusCode())
	}
	return decode(resp.Body())
}

func decode(b []byte) ([]Product, error) {
	var products []Product
	if err := json.Unmarshal(b, &products); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return products, nil
}

// PostgresSource reads the products table.
type PostgresSource struct{ DB *pgxpool.Pool }

func (s PostgresSource) Products(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT id, name, description, category, price::text, image, featured
                                FROM products ORDER BY featured DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var (
			p     Product
			id    string
			price string
		)
		if err := rows.Scan(&id, &p.Name, &p.Description, &p.Category, &price, &p.Image, &p.Featured); err != nil {
			return nil, err
		}
		p.ID = ProductID(id)
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, errors.Wrapf(err, "product %s price", id)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
