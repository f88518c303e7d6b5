package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	models "storefront/model"
)

// Products lists the catalog, optionally filtered by a search query.
func (c *Client) Products(ctx context.Context, query string, page int) (models.ProductPage, error) {
	params := url.Values{}
	if query != "" {
		params.Set("query", query)
	}
	if page < 1 {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))

	var out models.ProductPage
	if err := c.do(ctx, "products.list", http.MethodGet, "products/?"+params.Encode(), nil, &out); err != nil {
		return models.ProductPage{}, err
	}
	return out, nil
}

// Product fetches a single product with its reviews. The backend answers
// {"product": {...}, "reviews": [...]}; a bare product is accepted too.
func (c *Client) Product(ctx context.Context, productID int64) (models.Product, error) {
	raw, err := c.doRaw(ctx, "products.get", http.MethodGet, fmt.Sprintf("products/product/%d/", productID), nil)
	if err != nil {
		return models.Product{}, err
	}
	payload := gjson.ParseBytes(raw)
	body, wrapped := payload, false
	if p := payload.Get("product"); p.Exists() && p.IsObject() {
		body, wrapped = p, true
	}
	var out models.Product
	if err := json.Unmarshal([]byte(body.Raw), &out); err != nil {
		return models.Product{}, &Error{Kind: KindNetwork, Message: "unexpected response from the store", Cause: fmt.Errorf("decode product: %w", err)}
	}
	if r := payload.Get("reviews"); wrapped && r.IsArray() {
		out.Reviews = nil
		if err := json.Unmarshal([]byte(r.Raw), &out.Reviews); err != nil {
			return models.Product{}, &Error{Kind: KindNetwork, Message: "unexpected response from the store", Cause: fmt.Errorf("decode reviews: %w", err)}
		}
	}
	if out.ID == 0 {
		return models.Product{}, &Error{Kind: KindDomain, Status: http.StatusNotFound, Message: "Product not found"}
	}
	return out, nil
}

// AddReview posts a review for a product.
func (c *Client) AddReview(ctx context.Context, productID int64, review models.Review) error {
	body := struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}{review.Rating, review.Comment}
	return c.do(ctx, "products.review", http.MethodPost, fmt.Sprintf("products/product/%d/", productID), body, nil)
}
