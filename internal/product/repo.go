// Package product reads catalog products for order pricing. Catalog
// writes belong to the CMS and are not handled here.
package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/goimay/orders/internal/order"
)

var (
	ErrNotFound = errors.New("product not found")
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		p         Product
		price     string
		salePrice *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(slug, ''), COALESCE(thumbnail, ''),
		       price::text, sale_price::text, stock, updated_at
		FROM products WHERE id::text=$1
	`, id).Scan(&p.ID, &p.Name, &p.Slug, &p.Thumbnail, &price, &salePrice, &p.Stock, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("product %s: price: %w", id, err)
	}
	if salePrice != nil {
		sp, err := decimal.NewFromString(*salePrice)
		if err != nil {
			return nil, fmt.Errorf("product %s: sale_price: %w", id, err)
		}
		p.SalePrice = decimal.NewNullDecimal(sp)
	}
	return &p, nil
}

// Catalog adapts a Repository to order.CatalogResolver.
type Catalog struct{ Repo Repository }

func (c Catalog) ResolveProduct(ctx context.Context, id string) (*order.CatalogProduct, error) {
	p, err := c.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, order.NewNotFoundError("product not found: " + id)
		}
		return nil, err
	}
	return &order.CatalogProduct{
		ID:        p.ID,
		Name:      p.Name,
		Slug:      p.Slug,
		Thumbnail: p.Thumbnail,
		Price:     p.Price,
		SalePrice: p.SalePrice,
	}, nil
}
