package models

import "time"

// Product is a catalog entry. Catalog state is never held by the client;
// these are pass-through reads.
type Product struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Price          Money    `json:"price"`
	CompareAtPrice *Money   `json:"compare_at_price,omitempty"`
	Image          string   `json:"image,omitempty"`
	Stock          int      `json:"stock"`
	Category       string   `json:"category,omitempty"`
	AvgRating      float64  `json:"avg_rating"`
	ReviewCount    int      `json:"review_count"`
	Reviews        []Review `json:"reviews,omitempty"`
}

// Review is a product review. Only Rating and Comment are written; the
// rest is filled in by the backend.
type Review struct {
	ID        int64     `json:"id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Rating    int       `json:"rating" validate:"required,min=1,max=5"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductPage is one page of a paginated product listing.
type ProductPage struct {
	Count    int       `json:"count"`
	Next     string    `json:"next,omitempty"`
	Previous string    `json:"previous,omitempty"`
	Results  []Product `json:"results"`
}
