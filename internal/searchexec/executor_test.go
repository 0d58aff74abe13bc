package searchexec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aipp-workbench/engine/internal/searchexec/engines"
)

func TestRunRequiresQueryOrURL(t *testing.T) {
	exec := NewExecutor(nil, nil)
	_, err := exec.Run(context.Background(), SearchRequest{})
	if err == nil {
		t.Fatal("Run() error = nil, want validation error")
	}
}

func TestRunFetchURLReturnsHTMLByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>page body</p></body></html>"))
	}))
	defer srv.Close()

	exec := NewExecutor(nil, nil)
	resp, err := exec.Run(context.Background(), SearchRequest{URL: srv.URL})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.HTML == "" {
		t.Error("Run() returned empty HTML")
	}
}

func TestRunKagiSessionURLParsesResultsFromRawHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "go modules" {
			t.Errorf("query param q = %q, want %q", r.URL.Query().Get("q"), "go modules")
		}
		w.Write([]byte(`<div class="_0_SR">
		  <a class="__sri_title_link" href="https://example.com/kagi">Kagi Result</a>
		  <div class="__sri-desc">Kagi snippet text.</div>
		</div>`))
	}))
	defer srv.Close()

	exec := NewExecutor(nil, nil)
	resp, err := exec.Run(context.Background(), SearchRequest{
		Query:      "go modules",
		Engine:     engines.Kagi,
		SessionURL: srv.URL + "?token=abc",
		ResultType: ResultItems,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].URL != "https://example.com/kagi" {
		t.Fatalf("Run() items = %+v", resp.Items)
	}
}
