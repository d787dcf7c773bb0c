package api

import (
	"math"
	"net/http"
	"strconv"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// Page is the list envelope: total count, neighbour page links and results.
type Page struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  any     `json:"results"`
}

// ParsePagination extracts page and page_size from query params with defaults.
// Malformed values fall back to the defaults.
func ParsePagination(r *http.Request) PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	// Keep (page-1)*limit from overflowing.
	if page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}

	return PaginationParams{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// NewPage builds the envelope, linking to neighbouring pages of r's URL.
func NewPage(r *http.Request, results any, params PaginationParams, total int) Page {
	p := Page{Count: total, Results: results}
	if params.Offset+params.Limit < total {
		next := pageURL(r, params.Page+1)
		p.Next = &next
	}
	if params.Page > 1 {
		prev := pageURL(r, params.Page-1)
		p.Previous = &prev
	}
	return p
}

func pageURL(r *http.Request, page int) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	u := *r.URL
	u.Scheme = scheme
	u.Host = r.Host
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
