package engines

import "regexp"

type duckDuckGoEngine struct{}

func (duckDuckGoEngine) Name() Name          { return DuckDuckGo }
func (duckDuckGoEngine) DisplayName() string { return "DuckDuckGo" }
func (duckDuckGoEngine) HomepageURL() string { return "https://duckduckgo.com" }

func (duckDuckGoEngine) SearchInputSelectors() []string {
	return []string{`input#search_form_input_homepage`, `input[name="q"]`}
}

func (duckDuckGoEngine) SearchButtonSelectors() []string {
	return []string{`input#search_button_homepage`, `button[type="submit"]`}
}

func (duckDuckGoEngine) WaitForResultsSelectors() []string {
	return []string{`div#links`, `article[data-testid="result"]`}
}

var (
	ddgBlockPattern   = regexp.MustCompile(`(?is)<article[^>]+data-testid="result"[^>]*>`)
	ddgLinkPattern    = regexp.MustCompile(`(?is)<a[^>]+data-testid="result-title-a"[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	ddgSnippetPattern = regexp.MustCompile(`(?is)<div[^>]+data-result="snippet"[^>]*>(.*?)</div>`)
)

func (duckDuckGoEngine) ParseSearchResults(html, query string) Results {
	var items []Item
	blockStarts := ddgBlockPattern.FindAllStringIndex(html, -1)
	for i, loc := range blockStarts {
		end := len(html)
		if i+1 < len(blockStarts) {
			end = blockStarts[i+1][0]
		}
		block := html[loc[1]:end]

		link := ddgLinkPattern.FindStringSubmatch(block)
		if link == nil {
			continue
		}
		snippet := ""
		if m := ddgSnippetPattern.FindStringSubmatch(block); m != nil {
			snippet = stripTags(m[1])
		}
		items = append(items, Item{
			Rank:    len(items) + 1,
			Title:   stripTags(link[2]),
			URL:     link[1],
			Snippet: snippet,
		})
	}
	return Results{Query: query, Items: items}
}
