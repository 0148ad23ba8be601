package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const fixturePage = `<!DOCTYPE html>
<html><body>
<div id="links">
  <div class="result results_links results_links_deep web-result">
    <h2 class="result__title">
      <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.example.com%2Frtx4060&amp;rut=abc">RTX 4060 review</a>
    </h2>
    <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.example.com%2Frtx4060">The best budget <b>GPU</b> of the year.</a>
  </div>
  <div class="result results_links results_links_deep web-result">
    <h2 class="result__title">
      <a class="result__a" href="https://www.example.com/rx7600">RX 7600 review</a>
    </h2>
    <a class="result__snippet" href="https://www.example.com/rx7600">AMD's answer at the same price.</a>
  </div>
  <div class="result results_links results_links_deep web-result">
    <h2 class="result__title">
      <a class="result__a" href="https://www.example.com/arc">Intel Arc roundup</a>
    </h2>
    <a class="result__snippet" href="https://www.example.com/arc">A third option worth watching.</a>
  </div>
</div>
</body></html>`

func TestDuckDuckGoParsesResultsPage(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(fixturePage))
	}))
	defer srv.Close()

	ddg := NewDuckDuckGo(WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))
	results, err := ddg.Search(context.Background(), "budget gpu", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if gotQuery != "budget gpu" {
		t.Errorf("query not forwarded: %q", gotQuery)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	first := results[0]
	if first.Title != "RTX 4060 review" {
		t.Errorf("unexpected title: %q", first.Title)
	}
	if first.URL != "https://www.example.com/rtx4060" {
		t.Errorf("redirect URL not decoded: %q", first.URL)
	}
	if first.Snippet != "The best budget GPU of the year." {
		t.Errorf("unexpected snippet: %q", first.Snippet)
	}
	if results[1].URL != "https://www.example.com/rx7600" {
		t.Errorf("plain URL mangled: %q", results[1].URL)
	}
}

func TestDuckDuckGoHonorsMaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fixturePage))
	}))
	defer srv.Close()

	ddg := NewDuckDuckGo(WithEndpoint(srv.URL))
	results, err := ddg.Search(context.Background(), "gpu", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "RTX 4060 review" || results[1].Title != "RX 7600 review" {
		t.Errorf("truncation changed result order: %+v", results)
	}
}

func TestDuckDuckGoEmptyPageYieldsNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div id="links"></div></body></html>`))
	}))
	defer srv.Close()

	ddg := NewDuckDuckGo(WithEndpoint(srv.URL))
	results, err := ddg.Search(context.Background(), "no such part", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestDuckDuckGoReportsUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ddg := NewDuckDuckGo(WithEndpoint(srv.URL))
	if _, err := ddg.Search(context.Background(), "gpu", 5); err == nil {
		t.Fatal("expected error for non-200 upstream status")
	}
}

func TestCleanURLLeavesUnparseableInput(t *testing.T) {
	raw := "://not-a-url"
	if got := cleanURL(raw); got != raw {
		t.Errorf("expected passthrough, got %q", got)
	}
}
