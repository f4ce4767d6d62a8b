package order

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CatalogProduct is what order creation needs to know about a product.
type CatalogProduct struct {
	ID        string
	Name      string
	Slug      string
	Thumbnail string
	Price     decimal.Decimal
	SalePrice decimal.NullDecimal
}

// EffectivePrice is the sale price when one is set, otherwise the list price.
func (p *CatalogProduct) EffectivePrice() decimal.Decimal {
	if p.SalePrice.Valid {
		return p.SalePrice.Decimal
	}
	return p.Price
}

// CatalogResolver looks up the current sellable state of a product.
// Unknown products yield an error wrapping ErrNotFound.
type CatalogResolver interface {
	ResolveProduct(ctx context.Context, productID string) (*CatalogProduct, error)
}

// IdentityResolver maps an authenticated email to the internal user id.
type IdentityResolver interface {
	ResolveUserID(ctx context.Context, email string) (string, error)
}

// productDTO mirrors the product service's JSON.
type productDTO struct {
	Name      string           `json:"name"`
	Slug      string           `json:"slug"`
	Thumbnail string           `json:"thumbnail"`
	Price     decimal.Decimal  `json:"price"`
	SalePrice *decimal.Decimal `json:"salePrice"`
}

// HTTPCatalog resolves products against the product service.
type HTTPCatalog struct {
	HTTP           *http.Client
	ProductBaseURL string
}

func NewHTTPCatalog(productBaseURL string) *HTTPCatalog {
	return &HTTPCatalog{
		HTTP:           &http.Client{Timeout: 5 * time.Second},
		ProductBaseURL: strings.TrimRight(productBaseURL, "/"),
	}
}

func (c *HTTPCatalog) ResolveProduct(ctx context.Context, id string) (*CatalogProduct, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/products/%s", c.ProductBaseURL, url.PathEscape(id)), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch product %s: %w", id, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, NewNotFoundError("product not found: " + id)
	default:
		return nil, fmt.Errorf("fetch product %s: %s", id, res.Status)
	}

	var p productDTO
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", id, err)
	}
	out := &CatalogProduct{
		ID:        id,
		Name:      p.Name,
		Slug:      p.Slug,
		Thumbnail: p.Thumbnail,
		Price:     p.Price,
	}
	if p.SalePrice != nil {
		out.SalePrice = decimal.NewNullDecimal(*p.SalePrice)
	}
	return out, nil
}
