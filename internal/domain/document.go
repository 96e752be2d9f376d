package domain

import (
	"math"
	"time"
)

// Document is the denormalized, query-optimized representation of a catalog
// record held in the search index. It is created and mutated only by the
// indexer; query-side components treat it as read-only.
type Document struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Price         float64       `json:"price"`
	OriginalPrice float64       `json:"originalPrice"`
	Discount      int           `json:"discount"`
	CategoryID    string        `json:"categoryId"`
	CategoryName  string        `json:"categoryName"`
	Stock         int           `json:"stock"`
	Rating        float64       `json:"rating"`
	ReviewCount   int           `json:"reviewCount"`
	ViewCount     int           `json:"viewCount"`
	Tags          []string      `json:"tags"`
	IsActive      bool          `json:"isActive"`
	IsFeatured    bool          `json:"isFeatured"`
	IsOnSale      bool          `json:"isOnSale"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	SuggestInputs SuggestInputs `json:"suggest"`
}

// SuggestInputs is the weighted input list for completion-style suggesters:
// the document name, its tags, and its category name.
type SuggestInputs struct {
	Input  []string `json:"input"`
	Weight int      `json:"weight"`
}

// FeaturedSuggestWeight is the suggest weight applied to featured documents.
const FeaturedSuggestWeight = 10

// DiscountPercent computes the rounded discount percentage, zero when the
// original price does not exceed the current price.
func DiscountPercent(price, originalPrice float64) int {
	if originalPrice <= price || originalPrice <= 0 {
		return 0
	}
	return int(math.Round((originalPrice - price) / originalPrice * 100))
}
