package search

import "context"

// Result is a single normalized search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Provider is a text-search capability returning up to maxResults hits for a
// query, in provider order.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}
