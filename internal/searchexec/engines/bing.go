package engines

import "regexp"

type bingEngine struct{}

func (bingEngine) Name() Name          { return Bing }
func (bingEngine) DisplayName() string { return "Bing" }
func (bingEngine) HomepageURL() string { return "https://www.bing.com" }

func (bingEngine) SearchInputSelectors() []string {
	return []string{`input#sb_form_q`, `textarea#sb_form_q`}
}

func (bingEngine) SearchButtonSelectors() []string {
	return []string{`input#sb_form_go`, `label#sb_form_go`}
}

func (bingEngine) WaitForResultsSelectors() []string {
	return []string{`ol#b_results`, `li.b_algo`}
}

var (
	bingBlockPattern   = regexp.MustCompile(`(?is)<li class="b_algo"[^>]*>`)
	bingLinkPattern    = regexp.MustCompile(`(?is)<h2[^>]*>\s*<a[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	bingSnippetPattern = regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`)
	bingTotalPattern   = regexp.MustCompile(`(?i)([\d,]+)\s+results`)
)

func (bingEngine) ParseSearchResults(html, query string) Results {
	var items []Item
	blockStarts := bingBlockPattern.FindAllStringIndex(html, -1)
	for i, loc := range blockStarts {
		end := len(html)
		if i+1 < len(blockStarts) {
			end = blockStarts[i+1][0]
		}
		block := html[loc[1]:end]

		link := bingLinkPattern.FindStringSubmatch(block)
		if link == nil {
			continue
		}
		snippet := ""
		if m := bingSnippetPattern.FindStringSubmatch(block); m != nil {
			snippet = stripTags(m[1])
		}
		items = append(items, Item{
			Rank:    len(items) + 1,
			Title:   stripTags(link[2]),
			URL:     link[1],
			Snippet: snippet,
		})
	}

	results := Results{Query: query, Items: items}
	if m := bingTotalPattern.FindStringSubmatch(html); m != nil {
		results.TotalResults = extractTotalResults(m[0])
	}
	return results
}
