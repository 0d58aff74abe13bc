package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aipp-workbench/engine/internal/searchexec"
	"github.com/aipp-workbench/engine/internal/searchexec/engines"
)

// buildSearchCmd exposes the built-in browser/HTTP/webview search-fetch
// cascade for manual testing outside the tool-call loop.
func buildSearchCmd() *cobra.Command {
	var query, url, engine, resultType, sessionURL string
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run the search_web/fetch_url cascade directly",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()
			if eng.search == nil {
				return fmt.Errorf("search executor unavailable: no browser page pool")
			}

			resp, err := eng.search.Run(cmd.Context(), searchexec.SearchRequest{
				Query:      query,
				URL:        url,
				Engine:     engines.Name(engine),
				ResultType: searchexec.ResultType(resultType),
				SessionURL: sessionURL,
			})
			if err != nil {
				return err
			}
			if resp.HTML != "" {
				fmt.Println(resp.HTML)
				return nil
			}
			out, err := json.MarshalIndent(resp.Items, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "search query (mutually exclusive with --url)")
	cmd.Flags().StringVar(&url, "url", "", "URL to fetch directly (mutually exclusive with --query)")
	cmd.Flags().StringVar(&engine, "engine", string(engines.Google), "search engine: google|bing|duckduckgo|kagi")
	cmd.Flags().StringVar(&resultType, "result-type", string(searchexec.ResultMarkdown), "html|markdown|items|items_only")
	cmd.Flags().StringVar(&sessionURL, "kagi-session-url", "", "Kagi session URL for authenticated search")
	return cmd
}
