package searchexec

import (
	"context"
	"fmt"

	"github.com/aipp-workbench/engine/internal/engineerr"
	"github.com/aipp-workbench/engine/internal/searchexec/engines"
)

// SearchRequest is the tool-facing request shape for both search_web and
// fetch_url operations.
type SearchRequest struct {
	Query      string
	URL        string
	Engine     engines.Name
	ResultType ResultType
	SessionURL string // Kagi session-URL mode
}

// SearchResponse is the tool-facing response: exactly one of HTML or Items
// is populated, depending on ResultType.
type SearchResponse struct {
	HTML  string
	Items []engines.Item
	Total *int64
	Stage string
}

// Run dispatches req to Search or FetchURL depending on whether a query or a
// URL was supplied, and shapes the outcome according to req.ResultType.
func (e *Executor) Run(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	var outcome FetchOutcome
	var err error

	switch {
	case req.Engine == engines.Kagi && req.SessionURL != "":
		sessionURL, buildErr := engines.BuildSessionURL(req.SessionURL, req.Query)
		if buildErr != nil {
			return SearchResponse{}, engineerr.Wrap(engineerr.KindValidation, "build kagi session url", buildErr)
		}
		fetchReq := FetchRequest{URL: sessionURL, Query: req.Query, ResultType: req.ResultType}
		rawHTML, stage, rawErr := e.fetchURLRaw(ctx, fetchReq)
		if rawErr != nil {
			return SearchResponse{}, rawErr
		}
		outcome = e.materialize(rawHTML, fetchReq, stage)
		outcome.Results = engines.ByName(engines.Kagi).ParseSearchResults(rawHTML, req.Query)
	case req.Query != "":
		outcome, err = e.Search(ctx, FetchRequest{Query: req.Query, Engine: req.Engine, ResultType: req.ResultType})
	case req.URL != "":
		outcome, err = e.FetchURL(ctx, FetchRequest{URL: req.URL, ResultType: req.ResultType})
	default:
		return SearchResponse{}, engineerr.New(engineerr.KindValidation, "one of query or url is required")
	}
	if err != nil {
		return SearchResponse{}, err
	}

	resp := SearchResponse{Stage: outcome.Stage}
	switch req.ResultType {
	case ResultItems:
		resp.Items = outcome.Results.Items
		resp.Total = outcome.Results.TotalResults
	case ResultItemsOnly:
		resp.Items = outcome.Results.Items
	default:
		resp.HTML = outcome.HTML
	}
	if len(resp.Items) == 0 && resp.HTML == "" {
		return SearchResponse{}, engineerr.New(engineerr.KindInternal, fmt.Sprintf("empty content for %q", req.Query))
	}
	return resp, nil
}
