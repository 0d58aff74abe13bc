package engines

import "regexp"

type googleEngine struct{}

func (googleEngine) Name() Name        { return Google }
func (googleEngine) DisplayName() string { return "Google" }
func (googleEngine) HomepageURL() string { return "https://www.google.com" }

func (googleEngine) SearchInputSelectors() []string {
	return []string{`textarea[name="q"]`, `input[name="q"]`}
}

func (googleEngine) SearchButtonSelectors() []string {
	return []string{`input[name="btnK"]`, `button[type="submit"]`}
}

func (googleEngine) WaitForResultsSelectors() []string {
	return []string{`div#search`, `div.g`}
}

var (
	googleBlockPattern   = regexp.MustCompile(`(?is)<div class="g"[^>]*>`)
	googleLinkPattern    = regexp.MustCompile(`(?is)<div class="yuRUbf"[^>]*>\s*<a[^>]+href="([^"]+)"[^>]*>.*?<h3[^>]*>(.*?)</h3>`)
	googleSnippetPattern = regexp.MustCompile(`(?is)<div[^>]+class="[^"]*VwiC3b[^"]*"[^>]*>(.*?)</div>`)
	googleTotalPattern   = regexp.MustCompile(`(?i)About ([\d,]+) results`)
)

// ParseSearchResults extracts div.g result blocks, each expected to carry a
// .yuRUbf wrapper around the result's anchor/h3 pair and (optionally) a
// .VwiC3b snippet div.
func (e googleEngine) ParseSearchResults(html, query string) Results {
	var items []Item
	blockStarts := googleBlockPattern.FindAllStringIndex(html, -1)
	for i, loc := range blockStarts {
		end := len(html)
		if i+1 < len(blockStarts) {
			end = blockStarts[i+1][0]
		}
		block := html[loc[1]:end]

		link := googleLinkPattern.FindStringSubmatch(block)
		if link == nil {
			continue
		}
		href := decodeGoogleURL(link[1])
		title := stripTags(link[2])

		snippet := ""
		if m := googleSnippetPattern.FindStringSubmatch(block); m != nil {
			snippet = stripTags(m[1])
		}

		items = append(items, Item{
			Rank:    len(items) + 1,
			Title:   title,
			URL:     href,
			Snippet: snippet,
		})
	}

	results := Results{Query: query, Items: items}
	if m := googleTotalPattern.FindStringSubmatch(html); m != nil {
		results.TotalResults = extractTotalResults(m[0])
	}
	return results
}
