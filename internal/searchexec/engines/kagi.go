package engines

import (
	"net/url"
	"regexp"
	"strings"
)

type kagiEngine struct{}

func (kagiEngine) Name() Name          { return Kagi }
func (kagiEngine) DisplayName() string { return "Kagi" }
func (kagiEngine) HomepageURL() string { return "https://kagi.com/search" }

func (kagiEngine) SearchInputSelectors() []string {
	return []string{`input#search`, `input[name="q"]`}
}

func (kagiEngine) SearchButtonSelectors() []string {
	return []string{`button[type="submit"]`}
}

func (kagiEngine) WaitForResultsSelectors() []string {
	return []string{`div.results-box`, `div._0_SR`}
}

// BuildSessionURL appends query as q=<urlencoded> to a preconfigured Kagi
// session URL (one already carrying a `token=` query parameter); the
// query is appended rather than typed into a search box.
func BuildSessionURL(sessionURL, query string) (string, error) {
	parsed, err := url.Parse(sessionURL)
	if err != nil {
		return "", err
	}
	values := parsed.Query()
	values.Set("q", query)
	parsed.RawQuery = values.Encode()
	return parsed.String(), nil
}

var (
	kagiBlockPattern   = regexp.MustCompile(`(?is)<div class="_0_SR"[^>]*>`)
	kagiLinkPattern    = regexp.MustCompile(`(?is)<a[^>]+class="__sri_title_link"[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	kagiSnippetPattern = regexp.MustCompile(`(?is)<div[^>]+class="__sri-desc"[^>]*>(.*?)</div>`)
)

func (kagiEngine) ParseSearchResults(html, query string) Results {
	var items []Item
	blockStarts := kagiBlockPattern.FindAllStringIndex(html, -1)
	for i, loc := range blockStarts {
		end := len(html)
		if i+1 < len(blockStarts) {
			end = blockStarts[i+1][0]
		}
		block := html[loc[1]:end]

		link := kagiLinkPattern.FindStringSubmatch(block)
		if link == nil {
			continue
		}
		snippet := ""
		if m := kagiSnippetPattern.FindStringSubmatch(block); m != nil {
			snippet = stripTags(m[1])
		}
		href := strings.TrimSpace(link[1])
		items = append(items, Item{
			Rank:    len(items) + 1,
			Title:   stripTags(link[2]),
			URL:     href,
			Snippet: snippet,
		})
	}
	return Results{Query: query, Items: items}
}
