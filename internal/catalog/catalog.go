package catalog

import (
	"context"
	"time"
)

// Record is the authoritative catalog item, owned by the catalog service.
// The indexer converts records into index documents; it never writes back.
type Record struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Price         float64   `json:"price"`
	OriginalPrice float64   `json:"original_price"`
	Stock         int       `json:"stock"`
	Rating        float64   `json:"rating"`
	ReviewCount   int       `json:"review_count"`
	ViewCount     int       `json:"view_count"`
	Tags          []string  `json:"tags"`
	CategoryID    string    `json:"category_id"`
	IsActive      bool      `json:"is_active"`
	IsFeatured    bool      `json:"is_featured"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Category is the catalog's category reference.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListFilter narrows a paged record listing.
type ListFilter struct {
	CategoryID string
	Page       int
	PerPage    int
}

// RecordPage is one page of a record listing.
type RecordPage struct {
	Records    []Record
	Page       int
	TotalPages int
	TotalCount int
}

// Reader is the read interface this engine consumes from the catalog.
// Implementations must return pkg/errors.ErrNotFound (wrapped) for absent
// records and categories.
type Reader interface {
	GetRecord(ctx context.Context, id string) (*Record, error)
	ListRecords(ctx context.Context, filter ListFilter) (*RecordPage, error)
	GetCategory(ctx context.Context, id string) (*Category, error)
}
