package service

import (
	"context"
	"fmt"

	"storefront/api"
	models "storefront/model"
)

// Catalog passes product reads through to the backend. It holds no
// catalog state.
type Catalog struct {
	api     ProductAPI
	session *SessionManager
}

func NewCatalog(productAPI ProductAPI, session *SessionManager) *Catalog {
	return &Catalog{api: productAPI, session: session}
}

func (c *Catalog) Products(ctx context.Context, query string, page int) (models.ProductPage, error) {
	result, err := c.api.Products(ctx, query, page)
	if err != nil {
		return models.ProductPage{}, fmt.Errorf("list products: %w", err)
	}
	return result, nil
}

func (c *Catalog) Product(ctx context.Context, productID int64) (models.Product, error) {
	p, err := c.api.Product(ctx, productID)
	if err != nil {
		return models.Product{}, fmt.Errorf("get product %d: %w", productID, err)
	}
	return p, nil
}

// AddReview posts a review as the signed-in user.
func (c *Catalog) AddReview(ctx context.Context, productID int64, review models.Review) error {
	actx, s, err := c.session.authorized(ctx)
	if err != nil {
		return &api.Error{Kind: api.KindAuthentication, Message: "Please log in to write a review", RequiresAuth: true, Cause: err}
	}
	if err := validateStruct(review); err != nil {
		return err
	}
	if err := c.api.AddReview(actx, productID, review); err != nil {
		c.session.HandleError(s.AccessToken, err)
		return fmt.Errorf("add review: %w", err)
	}
	return nil
}
