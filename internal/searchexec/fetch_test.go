package searchexec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeWebview struct {
	navigated string
	err       error
}

func (f *fakeWebview) Navigate(ctx context.Context, url string) error {
	f.navigated = url
	return f.err
}

func TestFetchURLFallsBackToHTTPWhenNoPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>from http</p></body></html>"))
	}))
	defer srv.Close()

	exec := NewExecutor(nil, nil)
	outcome, err := exec.FetchURL(context.Background(), FetchRequest{URL: srv.URL, ResultType: ResultHTML})
	if err != nil {
		t.Fatalf("FetchURL() error = %v", err)
	}
	if outcome.Stage != "http" {
		t.Errorf("Stage = %q, want %q", outcome.Stage, "http")
	}
	if outcome.HTML == "" {
		t.Error("FetchURL() returned empty HTML")
	}
}

func TestFetchURLFallsBackToWebviewWhenHTTPFails(t *testing.T) {
	webview := &fakeWebview{}
	exec := NewExecutor(nil, webview)
	outcome, err := exec.FetchURL(context.Background(), FetchRequest{URL: "http://127.0.0.1:0/unreachable"})
	if err != nil {
		t.Fatalf("FetchURL() error = %v", err)
	}
	if outcome.Stage != "webview" {
		t.Errorf("Stage = %q, want %q", outcome.Stage, "webview")
	}
	if webview.navigated == "" {
		t.Error("webview.Navigate was never called")
	}
}

func TestFetchURLReturnsErrorWhenAllStagesFail(t *testing.T) {
	exec := NewExecutor(nil, nil)
	_, err := exec.FetchURL(context.Background(), FetchRequest{URL: "http://127.0.0.1:0/unreachable"})
	if err == nil {
		t.Fatal("FetchURL() error = nil, want failure when no stage succeeds")
	}
}

func TestSearchUnknownEngineReturnsValidationError(t *testing.T) {
	exec := NewExecutor(nil, nil)
	_, err := exec.Search(context.Background(), FetchRequest{Engine: "altavista", Query: "q"})
	if err == nil {
		t.Fatal("Search() error = nil, want validation error for unknown engine")
	}
}
