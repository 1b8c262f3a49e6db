package tools

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/soyeahso/dealflow/internal/config"
	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/httpclient"
	"github.com/soyeahso/dealflow/internal/plugin"
	"github.com/soyeahso/dealflow/internal/tool"
	"github.com/soyeahso/dealflow/internal/version"
)

const (
	defaultResearchResults = 5
	maxResearchResults     = 20
	maxSnippet             = 500
)

// ResearchPlugin runs web research: general search through Tavily and
// company discovery through Exa. Missing keys leave the tools registered
// but reporting that they are not configured.
type ResearchPlugin struct {
	tavily config.ProviderEntry
	exa    config.ProviderEntry
	opts   httpclient.Options
	http   *retryablehttp.Client
}

// NewResearchPlugin creates the research plugin.
func NewResearchPlugin(providers config.ProvidersConfig, opts httpclient.Options) *ResearchPlugin {
	return &ResearchPlugin{tavily: providers.Tavily, exa: providers.Exa, opts: opts}
}

func (p *ResearchPlugin) ID() string      { return "research" }
func (p *ResearchPlugin) Name() string    { return "Research" }
func (p *ResearchPlugin) Version() string { return version.Version }
func (p *ResearchPlugin) Close() error    { return nil }

func (p *ResearchPlugin) Init(_ context.Context, api plugin.API) error {
	p.http = httpclient.New(api.Log, p.opts)

	for _, t := range []tool.Tool{
		tool.Func{
			Def: domain.ToolDefinition{
				Name:        "web_search",
				Description: "Search the web for recent news and information, e.g. funding rounds or market reports.",
				ParameterSchema: tool.ObjectSchema(map[string]any{
					"query":       tool.StringProp("Search query."),
					"max_results": tool.NumberProp("Number of results (default 5)."),
				}, "query"),
			},
			Fn: p.webSearch,
		},
		tool.Func{
			Def: domain.ToolDefinition{
				Name:        "find_similar_companies",
				Description: "Discover companies on the web matching a description, or similar to a company website.",
				ParameterSchema: tool.ObjectSchema(map[string]any{
					"query":       tool.StringProp("Description of the companies to find, e.g. \"seed-stage climate fintech\"."),
					"url":         tool.StringProp("Company website to find look-alikes for."),
					"max_results": tool.NumberProp("Number of results (default 5)."),
				}),
			},
			Fn: p.findSimilar,
		},
	} {
		if err := api.Tools.Register(t); err != nil {
			return err
		}
	}
	return nil
}

type tavilyRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (p *ResearchPlugin) webSearch(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	if p.tavily.APIKey == "" {
		return domain.Failed("web search is not configured (set TAVILY_API_KEY)"), nil
	}
	query := stringArg(args, "query", "q", "command")
	if query == "" {
		return domain.Failed("web_search needs a query"), nil
	}

	body := tavilyRequest{
		Query:         query,
		MaxResults:    intArg(args, defaultResearchResults, maxResearchResults, "max_results", "limit"),
		SearchDepth:   "basic",
		IncludeAnswer: true,
	}
	headers := map[string]string{"Authorization": "Bearer " + p.tavily.APIKey}

	var resp tavilyResponse
	endpoint := strings.TrimSuffix(p.tavily.BaseURL, "/") + "/search"
	if err := httpclient.DoJSON(ctx, p.http, "POST", endpoint, headers, body, &resp); err != nil {
		return domain.ToolResult{}, fmt.Errorf("tavily search: %w", err)
	}

	results := make([]map[string]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"snippet": truncate(r.Content, maxSnippet),
		})
	}

	msg := fmt.Sprintf("%d web results for %q", len(results), query)
	return domain.Succeeded(msg, map[string]any{
		"query":   query,
		"answer":  resp.Answer,
		"results": results,
	}), nil
}

type exaSearchRequest struct {
	Query      string `json:"query,omitempty"`
	URL        string `json:"url,omitempty"`
	NumResults int    `json:"numResults"`
	Type       string `json:"type,omitempty"`
	Category   string `json:"category,omitempty"`
}

type exaResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		PublishedDate string `json:"publishedDate"`
		Text          string `json:"text"`
	} `json:"results"`
}

func (p *ResearchPlugin) findSimilar(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	if p.exa.APIKey == "" {
		return domain.Failed("company discovery is not configured (set EXA_API_KEY)"), nil
	}

	n := intArg(args, defaultResearchResults, maxResearchResults, "max_results", "limit")
	base := strings.TrimSuffix(p.exa.BaseURL, "/")

	var (
		endpoint string
		body     exaSearchRequest
		subject  string
	)
	if u := stringArg(args, "url", "website"); u != "" {
		endpoint = base + "/findSimilar"
		body = exaSearchRequest{URL: u, NumResults: n}
		subject = u
	} else {
		query := stringArg(args, "query", "description", "entities", "command")
		if query == "" {
			return domain.Failed("find_similar_companies needs a query or url"), nil
		}
		endpoint = base + "/search"
		body = exaSearchRequest{Query: query, NumResults: n, Type: "auto", Category: "company"}
		subject = query
	}

	var resp exaResponse
	headers := map[string]string{"x-api-key": p.exa.APIKey}
	if err := httpclient.DoJSON(ctx, p.http, "POST", endpoint, headers, body, &resp); err != nil {
		return domain.ToolResult{}, fmt.Errorf("exa search: %w", err)
	}

	companies := make([]map[string]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		entry := map[string]any{"title": r.Title, "url": r.URL}
		if r.Text != "" {
			entry["summary"] = truncate(r.Text, maxSnippet)
		}
		companies = append(companies, entry)
	}

	return domain.Succeeded(fmt.Sprintf("%d companies found for %q", len(companies), subject), map[string]any{
		"subject":   subject,
		"companies": companies,
	}), nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "..."
}
