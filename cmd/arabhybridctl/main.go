// Package main is the entry point for arabhybridctl, an operational CLI for
// the search orchestrator daemon (cache inspection/maintenance, ad-hoc
// search for smoke-testing).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// client talks to a running searchd over plain HTTP; unlike the daemon's
// Unix-socket control plane, searchd listens on a TCP address, so the
// client dials that address directly instead of a socket path.
type client struct {
	httpClient *http.Client
	baseURL    string
}

func newClient(addr string) *client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(base, "/"),
	}
}

func (c *client) get(path string) ([]byte, error) {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *client) post(path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}
	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

var addr string

func main() {
	rootCmd := &cobra.Command{
		Use:     "arabhybridctl",
		Short:   "Operational CLI for the hybrid search orchestrator daemon",
		Long:    `arabhybridctl talks to a running searchd over HTTP to inspect and manage the embedding cache, and to run ad-hoc searches for smoke-testing.`,
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}

	rootCmd.PersistentFlags().StringVar(&addr, "addr", "localhost:8080", "searchd HTTP listen address")

	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(searchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or maintain the embedding cache",
	}
	cmd.AddCommand(cacheStatsCmd())
	cmd.AddCommand(cacheWarmCmd())
	cmd.AddCommand(cacheClearCmd())
	return cmd
}

func cacheStatsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show embedding cache hit/miss/eviction counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(addr)
			data, err := c.get("/api/v1/cache/stats")
			if err != nil {
				return fmt.Errorf("daemon not reachable: %w", err)
			}
			if jsonOutput {
				fmt.Println(string(data))
				return nil
			}
			var stats struct {
				Hits      int64 `json:"hits"`
				Misses    int64 `json:"misses"`
				Evictions int64 `json:"evictions"`
				Size      int   `json:"size"`
			}
			if err := json.Unmarshal(data, &stats); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			fmt.Printf("hits:      %d\n", stats.Hits)
			fmt.Printf("misses:    %d\n", stats.Misses)
			fmt.Printf("evictions: %d\n", stats.Evictions)
			fmt.Printf("size:      %d\n", stats.Size)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output raw JSON")
	return cmd
}

func cacheWarmCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "warm <text>...",
		Short: "Pre-compute and cache embeddings for the given texts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(addr)
			data, err := c.post("/api/v1/cache/warm", map[string]interface{}{"texts": args})
			if err != nil {
				return fmt.Errorf("daemon not reachable: %w", err)
			}
			if jsonOutput {
				fmt.Println(string(data))
				return nil
			}
			var resp struct {
				Warmed int `json:"warmed"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			fmt.Printf("warmed %d text(s)\n", resp.Warmed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output raw JSON")
	return cmd
}

func cacheClearCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the in-memory embedding cache tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(addr)
			data, err := c.post("/api/v1/cache/clear", nil)
			if err != nil {
				return fmt.Errorf("daemon not reachable: %w", err)
			}
			if jsonOutput {
				fmt.Println(string(data))
				return nil
			}
			fmt.Println("cache cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output raw JSON")
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		mode       string
		limit      int
		reranker   string
		refine     bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run an ad-hoc search against the daemon, for smoke-testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(addr)
			body := map[string]interface{}{
				"query":    args[0],
				"mode":     mode,
				"limit":    limit,
				"reranker": reranker,
				"refine":   refine,
			}
			data, err := c.post("/api/v1/search", body)
			if err != nil {
				return fmt.Errorf("daemon not reachable: %w", err)
			}
			if jsonOutput {
				fmt.Println(string(data))
				return nil
			}
			var resp struct {
				Count   int `json:"count"`
				Results []struct {
					BookID      string `json:"bookId"`
					PageNumber  int    `json:"pageNumber"`
					TextSnippet string `json:"textSnippet"`
				} `json:"results"`
				Ayahs []struct {
					SurahNumber int    `json:"surahNumber"`
					AyahNumber  int    `json:"ayahNumber"`
					Text        string `json:"text"`
				} `json:"ayahs"`
				Hadiths []struct {
					CollectionSlug string `json:"collectionSlug"`
					HadithNumber   string `json:"hadithNumber"`
					Text           string `json:"text"`
				} `json:"hadiths"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				fmt.Println(string(data))
				return nil
			}
			fmt.Printf("%d book result(s)\n", resp.Count)
			for _, r := range resp.Results {
				fmt.Printf("  [%s p.%d] %s\n", r.BookID, r.PageNumber, r.TextSnippet)
			}
			for _, a := range resp.Ayahs {
				fmt.Printf("  [%d:%d] %s\n", a.SurahNumber, a.AyahNumber, a.Text)
			}
			for _, h := range resp.Hadiths {
				fmt.Printf("  [%s #%s] %s\n", h.CollectionSlug, h.HadithNumber, h.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "hybrid", "search mode: hybrid, semantic, keyword")
	cmd.Flags().IntVar(&limit, "limit", 10, "overall result cap")
	cmd.Flags().StringVar(&reranker, "reranker", "none", "reranker choice: none, small, large, fast")
	cmd.Flags().BoolVar(&refine, "refine", false, "enable query-expansion refine pipeline")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output raw JSON")
	return cmd
}
