package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/shopizen/catalogsearch/pkg/errors"
)

// Sort options for search results. The default, applied when SortBy is
// empty, is SortNewest.
const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
	SortRating    = "rating"
	SortPopular   = "popular"
	SortName      = "name"
)

// Pagination limits.
const (
	DefaultLimit = 12
	MaxLimit     = 100
)

// MaxRating is the upper bound of the rating scale.
const MaxRating = 5

// ValidSortOptions returns the list of valid sort options.
func ValidSortOptions() []string {
	return []string{SortNewest, SortOldest, SortPriceLow, SortPriceHigh, SortRating, SortPopular, SortName}
}

// IsValidSort checks whether the given sort string is a valid sort option.
func IsValidSort(sort string) bool {
	for _, s := range ValidSortOptions() {
		if s == sort {
			return true
		}
	}
	return false
}

// FilterRequest holds all parameters for a search request. Pointer fields
// are tri-state: nil means "no constraint", which is distinct from an
// explicit false or zero.
type FilterRequest struct {
	Query      string   `json:"query"`
	CategoryID string   `json:"categoryId,omitempty"`
	PriceMin   *float64 `json:"priceMin,omitempty"`
	PriceMax   *float64 `json:"priceMax,omitempty"`
	RatingMin  *float64 `json:"ratingMin,omitempty"`
	RatingMax  *float64 `json:"ratingMax,omitempty"`
	OnSale     *bool    `json:"isOnSale,omitempty"`
	Featured   *bool    `json:"isFeatured,omitempty"`
	SortBy     string   `json:"sortBy"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
}

// Normalize trims the query and applies pagination and sort defaults.
// The limit is capped at MaxLimit.
func (f *FilterRequest) Normalize() {
	f.Query = strings.TrimSpace(f.Query)
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.SortBy == "" {
		f.SortBy = SortNewest
	}
}

// Validate checks filter invariants. Call Normalize first so that defaults
// do not trip the checks.
func (f *FilterRequest) Validate() error {
	if f.Page < 1 {
		return apperrors.InvalidFilter("page", "must be at least 1")
	}
	if f.Limit <= 0 {
		return apperrors.InvalidFilter("limit", "must be greater than 0")
	}
	if !IsValidSort(f.SortBy) {
		return apperrors.InvalidFilter("sortBy", fmt.Sprintf("must be one of: %s", strings.Join(ValidSortOptions(), ", ")))
	}
	if f.PriceMin != nil && *f.PriceMin < 0 {
		return apperrors.InvalidFilter("priceMin", "must not be negative")
	}
	if f.PriceMax != nil && *f.PriceMax < 0 {
		return apperrors.InvalidFilter("priceMax", "must not be negative")
	}
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		return apperrors.InvalidFilter("priceMin", "must not exceed priceMax")
	}
	if f.RatingMin != nil && (*f.RatingMin < 0 || *f.RatingMin > MaxRating) {
		return apperrors.InvalidFilter("ratingMin", "must be between 0 and 5")
	}
	if f.RatingMax != nil && (*f.RatingMax < 0 || *f.RatingMax > MaxRating) {
		return apperrors.InvalidFilter("ratingMax", "must be between 0 and 5")
	}
	if f.RatingMin != nil && f.RatingMax != nil && *f.RatingMin > *f.RatingMax {
		return apperrors.InvalidFilter("ratingMin", "must not exceed ratingMax")
	}
	return nil
}

// Offset returns the pagination offset for the current page.
func (f *FilterRequest) Offset() int {
	return (f.Page - 1) * f.Limit
}
