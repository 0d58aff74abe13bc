package searchexec

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aipp-workbench/engine/internal/engineerr"
	"github.com/aipp-workbench/engine/internal/searchexec/engines"
)

const (
	defaultWaitTimeout = 15 * time.Second
	minNavigationWait  = 30 * time.Second
)

// ResultType selects what Fetch/Search return.
type ResultType string

const (
	ResultHTML      ResultType = "html"
	ResultMarkdown  ResultType = "markdown"
	ResultItems     ResultType = "items"
	ResultItemsOnly ResultType = "items_only"
)

// FetchRequest parameterizes one URL fetch or engine search.
type FetchRequest struct {
	URL         string
	Query       string
	Engine      engines.Name
	ResultType  ResultType
	WaitTimeout time.Duration
}

// FetchOutcome is the normalized result of a fetch, independent of which
// cascade stage produced it.
type FetchOutcome struct {
	HTML    string
	Results engines.Results
	Stage   string // "browser" | "http" | "webview"
}

// Executor drives the three-stage fetch cascade: pooled/headless
// browser first, direct HTTP GET second, hidden webview navigation last.
type Executor struct {
	pool       *PagePool
	httpClient *http.Client
	webview    WebviewNavigator
}

// WebviewNavigator is the last-resort stage: it can navigate to a URL but
// extracts no content.
type WebviewNavigator interface {
	Navigate(ctx context.Context, url string) error
}

// NewExecutor builds an Executor. pool may be nil (no pooled browser stage);
// webview may be nil (no last-resort stage).
func NewExecutor(pool *PagePool, webview WebviewNavigator) *Executor {
	return &Executor{
		pool:       pool,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		webview:    webview,
	}
}

func waitTimeout(req FetchRequest, forNavigation bool) time.Duration {
	t := req.WaitTimeout
	if t <= 0 {
		t = defaultWaitTimeout
	}
	if forNavigation && t < minNavigationWait {
		t = minNavigationWait
	}
	return t
}

// FetchURL runs the three-stage cascade against req.URL. Only HTML-bearing
// stages (browser, HTTP) populate Stage "browser"/"http"; the webview stage
// never returns content, only a stage marker and an error if navigation
// itself failed.
func (e *Executor) FetchURL(ctx context.Context, req FetchRequest) (FetchOutcome, error) {
	html, stage, err := e.fetchURLRaw(ctx, req)
	if err != nil {
		return FetchOutcome{}, err
	}
	if stage == "webview" {
		return FetchOutcome{Stage: stage}, nil
	}
	return e.materialize(html, req, stage), nil
}

// fetchURLRaw runs the cascade and returns the raw page HTML (for stages
// that have any) without the html/markdown materialize step, so callers
// that need to parse the page (e.g. Kagi's session-URL mode) see real tags.
func (e *Executor) fetchURLRaw(ctx context.Context, req FetchRequest) (rawHTML, stage string, err error) {
	if e.pool != nil {
		if rawHTML, err = e.fetchViaBrowser(ctx, req); err == nil {
			return rawHTML, "browser", nil
		}
	}
	if rawHTML, err = e.fetchViaHTTP(ctx, req); err == nil {
		return rawHTML, "http", nil
	}
	if e.webview != nil {
		navCtx, cancel := context.WithTimeout(ctx, waitTimeout(req, true))
		defer cancel()
		if err := e.webview.Navigate(navCtx, req.URL); err != nil {
			return "", "", engineerr.Wrap(engineerr.KindNetwork, fmt.Sprintf("fetch %s", req.URL), err)
		}
		return "", "webview", nil
	}
	return "", "", engineerr.New(engineerr.KindNetwork, fmt.Sprintf("all fetch stages failed for %s", req.URL))
}

// Search runs req.Engine's query through the browser stage (when a pool is
// configured) and then the HTTP stage; searches have no webview stage.
func (e *Executor) Search(ctx context.Context, req FetchRequest) (FetchOutcome, error) {
	eng := engines.ByName(req.Engine)
	if eng == nil {
		return FetchOutcome{}, engineerr.New(engineerr.KindValidation, fmt.Sprintf("unknown search engine %q", req.Engine))
	}

	html, stage, err := e.fetchSearchHTML(ctx, eng, req)
	if err != nil {
		return FetchOutcome{}, err
	}

	outcome := e.materialize(html, req, stage)
	outcome.Results = eng.ParseSearchResults(html, req.Query)
	return outcome, nil
}

func (e *Executor) fetchSearchHTML(ctx context.Context, eng engines.Engine, req FetchRequest) (html, stage string, err error) {
	if e.pool != nil {
		if html, err = e.searchViaBrowser(ctx, eng, req); err == nil {
			return html, "browser", nil
		}
	}
	if html, err = e.fetchViaHTTP(ctx, req); err == nil {
		return html, "http", nil
	}
	return "", "", engineerr.New(engineerr.KindNetwork, fmt.Sprintf("all search stages failed for engine %q", req.Engine))
}

func (e *Executor) fetchViaHTTP(ctx context.Context, req FetchRequest) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, waitTimeout(req, false))
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return "", engineerr.Wrap(engineerr.KindInternal, "build request", err)
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (compatible; AIPPWorkbench/1.0)")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return "", engineerr.Wrap(engineerr.KindNetwork, fmt.Sprintf("GET %s", req.URL), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", engineerr.New(engineerr.KindNetwork, fmt.Sprintf("GET %s returned status %d", req.URL, resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return "", engineerr.Wrap(engineerr.KindNetwork, "read response body", err)
	}
	return string(body), nil
}

func (e *Executor) fetchViaBrowser(ctx context.Context, req FetchRequest) (string, error) {
	page, err := e.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer e.pool.Release(page)

	if _, err := page.Page.Goto(req.URL, playwrightGotoTimeout(waitTimeout(req, true))); err != nil {
		return "", engineerr.Wrap(engineerr.KindNetwork, fmt.Sprintf("navigate to %s", req.URL), err)
	}
	html, err := page.Page.Content()
	if err != nil {
		return "", engineerr.Wrap(engineerr.KindInternal, "read page content", err)
	}
	return html, nil
}

func (e *Executor) searchViaBrowser(ctx context.Context, eng engines.Engine, req FetchRequest) (string, error) {
	page, err := e.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer e.pool.Release(page)

	if _, err := page.Page.Goto(eng.HomepageURL(), playwrightGotoTimeout(waitTimeout(req, true))); err != nil {
		return "", engineerr.Wrap(engineerr.KindNetwork, "navigate to engine homepage", err)
	}

	var filled bool
	for _, selector := range eng.SearchInputSelectors() {
		if err := page.Page.Fill(selector, req.Query); err == nil {
			filled = true
			break
		}
	}
	if !filled {
		return "", engineerr.New(engineerr.KindParse, "no search input selector matched")
	}
	if err := page.Page.Keyboard().Press("Enter"); err != nil {
		return "", engineerr.Wrap(engineerr.KindInternal, "submit search", err)
	}

	for _, selector := range eng.WaitForResultsSelectors() {
		if _, err := page.Page.WaitForSelector(selector, playwrightWaitForSelectorTimeout(waitTimeout(req, true))); err == nil {
			break
		}
	}

	html, err := page.Page.Content()
	if err != nil {
		return "", engineerr.Wrap(engineerr.KindInternal, "read page content", err)
	}
	return html, nil
}

func (e *Executor) materialize(html string, req FetchRequest, stage string) FetchOutcome {
	outcome := FetchOutcome{Stage: stage}
	switch req.ResultType {
	case ResultMarkdown:
		outcome.HTML = HTMLToMarkdown(html)
	default:
		outcome.HTML = StripBoilerplate(html)
	}
	return outcome
}
