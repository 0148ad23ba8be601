package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const defaultEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGo searches the DuckDuckGo HTML endpoint. The endpoint has no
// formal API; results are scraped from the rendered results page.
type DuckDuckGo struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

// DuckDuckGoOption configures a DuckDuckGo provider.
type DuckDuckGoOption func(*DuckDuckGo)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.client = client
	}
}

// WithEndpoint overrides the search endpoint, mainly for tests.
func WithEndpoint(endpoint string) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.endpoint = endpoint
	}
}

// WithUserAgent sets the User-Agent header sent with search requests.
func WithUserAgent(userAgent string) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.userAgent = userAgent
	}
}

// NewDuckDuckGo creates a DuckDuckGo search provider.
func NewDuckDuckGo(opts ...DuckDuckGoOption) *DuckDuckGo {
	d := &DuckDuckGo{
		client:    &http.Client{Timeout: 30 * time.Second},
		endpoint:  defaultEndpoint,
		userAgent: "pcbuild-agent/1.0 (+https://duckduckgo.com)",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Search fetches and parses the results page for query.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	reqURL := fmt.Sprintf("%s?q=%s", d.endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	results := parseResults(doc)
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// parseResults walks the document collecting one Result per result block.
// The HTML endpoint marks titles with class "result__a" and snippets with
// class "result__snippet".
func parseResults(doc *html.Node) []Result {
	var results []Result
	var current *Result

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result"):
				if current != nil && current.Title != "" {
					results = append(results, *current)
				}
				current = &Result{}
			case n.Data == "a" && hasClass(n, "result__a"):
				if current != nil {
					current.Title = strings.TrimSpace(textContent(n))
					current.URL = cleanURL(attr(n, "href"))
				}
			case hasClass(n, "result__snippet"):
				if current != nil && current.Snippet == "" {
					current.Snippet = strings.TrimSpace(textContent(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if current != nil && current.Title != "" {
		results = append(results, *current)
	}
	return results
}

// cleanURL decodes DuckDuckGo's redirect links ("/l/?uddg=<target>") back to
// the target URL.
func cleanURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return raw
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
