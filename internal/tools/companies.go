package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/logging"
	"github.com/soyeahso/dealflow/internal/plugin"
	"github.com/soyeahso/dealflow/internal/store"
	"github.com/soyeahso/dealflow/internal/tool"
	"github.com/soyeahso/dealflow/internal/version"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
	seedImportTimeout  = 30 * time.Second
)

// CompaniesPlugin exposes the company database. When a seed file is set it
// is imported at startup and, with watch enabled, again whenever it changes.
type CompaniesPlugin struct {
	store    *store.CompanyStore
	seedFile string
	watch    bool

	watcher *seedWatcher
	log     *logging.Logger
}

// NewCompaniesPlugin creates the companies plugin.
func NewCompaniesPlugin(cs *store.CompanyStore, seedFile string, watch bool) *CompaniesPlugin {
	return &CompaniesPlugin{store: cs, seedFile: seedFile, watch: watch}
}

func (p *CompaniesPlugin) ID() string      { return "companies" }
func (p *CompaniesPlugin) Name() string    { return "Companies" }
func (p *CompaniesPlugin) Version() string { return version.Version }

func (p *CompaniesPlugin) Init(ctx context.Context, api plugin.API) error {
	p.log = api.Log

	if p.seedFile != "" {
		if err := p.importSeed(ctx); err != nil {
			p.log.Warn().Err(err).Str("file", p.seedFile).Msg("company seed import failed")
		}
		if p.watch {
			w, err := watchFile(p.seedFile, func() {
				ctx, cancel := context.WithTimeout(context.Background(), seedImportTimeout)
				defer cancel()
				if err := p.importSeed(ctx); err != nil {
					p.log.Warn().Err(err).Msg("company seed re-import failed")
				}
			}, p.log)
			if err != nil {
				return fmt.Errorf("watching %s: %w", p.seedFile, err)
			}
			p.watcher = w
		}
	}

	for _, t := range []tool.Tool{
		tool.Func{
			Def: domain.ToolDefinition{
				Name: "search_companies",
				Description: "Search the deal-flow company database. Filter by sector or industry, " +
					"exclude sectors, restrict by country or stage. Results are ranked by market cap.",
				ParameterSchema: tool.ObjectSchema(map[string]any{
					"query":           tool.StringProp("Free-text keywords matched against name, description and industry."),
					"sectors":         tool.StringListProp("Sectors or industries to include, e.g. [\"biotech\"]."),
					"exclude_sectors": tool.StringListProp("Sectors to exclude, e.g. [\"healthcare\"]."),
					"country":         tool.StringProp("Country name or code, e.g. \"US\"."),
					"stage":           tool.StringProp("Funding stage, e.g. \"seed\", \"series a\", \"public\"."),
					"limit":           tool.NumberProp("Maximum results (default 10, max 100)."),
				}),
			},
			Fn: p.search,
		},
		tool.Func{
			Def: domain.ToolDefinition{
				Name:        "get_company",
				Description: "Look up one company by name and show its profile.",
				ParameterSchema: tool.ObjectSchema(map[string]any{
					"name": tool.StringProp("Company name."),
				}, "name"),
			},
			Fn: p.get,
		},
	} {
		if err := api.Tools.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func (p *CompaniesPlugin) Close() error {
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

func (p *CompaniesPlugin) importSeed(ctx context.Context) error {
	companies, err := store.LoadCompaniesFile(p.seedFile)
	if err != nil {
		return err
	}
	_, err = p.store.Import(ctx, companies)
	return err
}

func (p *CompaniesPlugin) search(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	q := store.CompanyQuery{
		Text:           stringArg(args, "query", "keywords"),
		Sectors:        stringsArg(args, "sectors", "sector", "industry"),
		ExcludeSectors: stringsArg(args, "exclude_sectors", "exclude_sector", "excludeSectors", "exclude"),
		Country:        stringArg(args, "country", "region", "location"),
		Stage:          stringArg(args, "stage"),
		Limit:          intArg(args, defaultSearchLimit, maxSearchLimit, "limit", "top", "count"),
	}
	if q.Text == "" && len(q.Sectors) == 0 {
		q.Sectors = stringsArg(args, "entities")
	}

	found, err := p.store.Search(ctx, q)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("company search: %w", err)
	}

	filters := describeQuery(q)
	data := map[string]any{
		"count":     len(found),
		"companies": found,
		"filters":   filters,
	}
	if len(found) == 0 {
		res := domain.Succeeded("No companies matched "+filters+".", data)
		return res, nil
	}

	rows := make([][]string, len(found))
	for i, c := range found {
		rows[i] = []string{
			fmt.Sprint(i + 1),
			c.Name,
			orDash(c.Ticker),
			orDash(c.Sector),
			orDash(c.Industry),
			orDash(c.Country),
			formatMoney(c.MarketCap),
		}
	}

	res := domain.Succeeded(fmt.Sprintf("Found %d companies matching %s.", len(found), filters), data)
	res.Display = fmt.Sprintf("Top %d companies (%s), ranked by market cap:\n\n%s",
		len(found), filters,
		renderTable([]string{"#", "Company", "Ticker", "Sector", "Industry", "Country", "Market Cap"}, rows))
	return res, nil
}

func describeQuery(q store.CompanyQuery) string {
	var parts []string
	if q.Text != "" {
		parts = append(parts, fmt.Sprintf("%q", q.Text))
	}
	if len(q.Sectors) > 0 {
		parts = append(parts, "sector "+strings.Join(q.Sectors, "/"))
	}
	if len(q.ExcludeSectors) > 0 {
		parts = append(parts, "excluding "+strings.Join(q.ExcludeSectors, "/"))
	}
	if q.Country != "" {
		parts = append(parts, "in "+q.Country)
	}
	if q.Stage != "" {
		parts = append(parts, "stage "+q.Stage)
	}
	if len(parts) == 0 {
		return "all companies"
	}
	return strings.Join(parts, ", ")
}

func (p *CompaniesPlugin) get(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	name := stringArg(args, "name", "company", "entities", "query")
	if name == "" {
		return domain.Failed("a company name is required"), nil
	}

	c, err := p.store.FindByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Failed(fmt.Sprintf("No company named %q in the database.", name)), nil
	}
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("company lookup: %w", err)
	}

	rows := [][]string{
		{"Name", c.Name},
		{"Ticker", orDash(c.Ticker)},
		{"Sector", orDash(c.Sector)},
		{"Industry", orDash(c.Industry)},
		{"Country", orDash(c.Country)},
		{"Stage", orDash(c.Stage)},
		{"Market cap", formatMoney(c.MarketCap)},
		{"Website", orDash(c.Website)},
	}
	res := domain.Succeeded(c.Name, map[string]any{"company": c})
	res.Display = renderTable([]string{"Field", "Value"}, rows)
	if c.Description != "" {
		res.Display += "\n\n" + c.Description
	}
	return res, nil
}
