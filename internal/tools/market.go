package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/soyeahso/dealflow/internal/config"
	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/httpclient"
	"github.com/soyeahso/dealflow/internal/plugin"
	"github.com/soyeahso/dealflow/internal/tool"
	"github.com/soyeahso/dealflow/internal/version"
)

// defaultQuoteProvider is the OpenBB data provider that needs no extra key.
const defaultQuoteProvider = "yfinance"

// MarketPlugin fetches public-market prices: equities through an OpenBB
// Platform API and crypto through CoinGecko.
type MarketPlugin struct {
	openbb    config.ProviderEntry
	coingecko config.ProviderEntry
	opts      httpclient.Options
	http      *retryablehttp.Client
}

// NewMarketPlugin creates the market plugin.
func NewMarketPlugin(providers config.ProvidersConfig, opts httpclient.Options) *MarketPlugin {
	return &MarketPlugin{openbb: providers.OpenBB, coingecko: providers.CoinGecko, opts: opts}
}

func (p *MarketPlugin) ID() string      { return "market" }
func (p *MarketPlugin) Name() string    { return "Market Data" }
func (p *MarketPlugin) Version() string { return version.Version }
func (p *MarketPlugin) Close() error    { return nil }

func (p *MarketPlugin) Init(_ context.Context, api plugin.API) error {
	p.http = httpclient.New(api.Log, p.opts)

	for _, t := range []tool.Tool{
		tool.Func{
			Def: domain.ToolDefinition{
				Name:        "get_stock_quote",
				Description: "Get the latest quote for one or more stock tickers.",
				ParameterSchema: tool.ObjectSchema(map[string]any{
					"symbols": tool.StringListProp("Tickers, e.g. [\"AAPL\", \"MSFT\"]."),
				}, "symbols"),
			},
			Fn: p.stockQuote,
		},
		tool.Func{
			Def: domain.ToolDefinition{
				Name:        "get_crypto_price",
				Description: "Get current crypto prices and 24h change.",
				ParameterSchema: tool.ObjectSchema(map[string]any{
					"coins":    tool.StringListProp("Coin symbols or CoinGecko ids, e.g. [\"BTC\", \"ethereum\"]."),
					"currency": tool.StringProp("Quote currency (default usd)."),
				}, "coins"),
			},
			Fn: p.cryptoPrice,
		},
	} {
		if err := api.Tools.Register(t); err != nil {
			return err
		}
	}
	return nil
}

type openbbQuoteResponse struct {
	Results []struct {
		Symbol        string   `json:"symbol"`
		Name          string   `json:"name"`
		LastPrice     *float64 `json:"last_price"`
		Change        *float64 `json:"change"`
		ChangePercent *float64 `json:"change_percent"`
		Volume        *float64 `json:"volume"`
		Currency      string   `json:"currency"`
	} `json:"results"`
}

func (p *MarketPlugin) stockQuote(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	symbols := stringsArg(args, "symbols", "symbol", "tickers", "ticker", "entities")
	if len(symbols) == 0 {
		return domain.Failed("get_stock_quote needs at least one ticker symbol"), nil
	}
	for i, s := range symbols {
		symbols[i] = strings.ToUpper(s)
	}

	q := url.Values{}
	q.Set("symbol", strings.Join(symbols, ","))
	q.Set("provider", defaultQuoteProvider)
	endpoint := strings.TrimSuffix(p.openbb.BaseURL, "/") + "/api/v1/equity/price/quote?" + q.Encode()

	headers := map[string]string{}
	if p.openbb.APIKey != "" {
		headers["Authorization"] = "Bearer " + p.openbb.APIKey
	}

	var resp openbbQuoteResponse
	if err := httpclient.DoJSON(ctx, p.http, "GET", endpoint, headers, nil, &resp); err != nil {
		return domain.ToolResult{}, fmt.Errorf("openbb quote: %w", err)
	}
	if len(resp.Results) == 0 {
		return domain.Failed("No quotes returned for " + strings.Join(symbols, ", ")), nil
	}

	quotes := make(map[string]any, len(resp.Results))
	var lines []string
	for _, r := range resp.Results {
		q := map[string]any{"name": r.Name, "currency": r.Currency}
		line := r.Symbol
		if r.LastPrice != nil {
			q["price"] = *r.LastPrice
			line += fmt.Sprintf(" %.2f %s", *r.LastPrice, r.Currency)
		}
		if r.Change != nil {
			q["change"] = *r.Change
		}
		if r.ChangePercent != nil {
			q["changePercent"] = *r.ChangePercent
			line += fmt.Sprintf(" (%+.2f%%)", *r.ChangePercent)
		}
		if r.Volume != nil {
			q["volume"] = *r.Volume
		}
		quotes[r.Symbol] = q
		lines = append(lines, line)
	}
	return domain.Succeeded(strings.Join(lines, "; "), map[string]any{"quotes": quotes}), nil
}

var coinIDs = map[string]string{
	"btc":   "bitcoin",
	"eth":   "ethereum",
	"sol":   "solana",
	"usdc":  "usd-coin",
	"usdt":  "tether",
	"bnb":   "binancecoin",
	"xrp":   "ripple",
	"ada":   "cardano",
	"doge":  "dogecoin",
	"avax":  "avalanche-2",
	"dot":   "polkadot",
	"link":  "chainlink",
	"matic": "matic-network",
}

func coinID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if id, ok := coinIDs[s]; ok {
		return id
	}
	return s
}

func (p *MarketPlugin) cryptoPrice(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	coins := stringsArg(args, "coins", "coin", "symbols", "symbol", "entities")
	if len(coins) == 0 {
		return domain.Failed("get_crypto_price needs at least one coin"), nil
	}
	currency := strings.ToLower(stringArg(args, "currency", "vs_currency"))
	if currency == "" {
		currency = "usd"
	}

	ids := make([]string, len(coins))
	for i, c := range coins {
		ids[i] = coinID(c)
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", currency)
	q.Set("include_24hr_change", "true")
	q.Set("include_market_cap", "true")
	endpoint := strings.TrimSuffix(p.coingecko.BaseURL, "/") + "/simple/price?" + q.Encode()

	headers := map[string]string{}
	if p.coingecko.APIKey != "" {
		headers["x-cg-demo-api-key"] = p.coingecko.APIKey
	}

	var resp map[string]map[string]float64
	if err := httpclient.DoJSON(ctx, p.http, "GET", endpoint, headers, nil, &resp); err != nil {
		return domain.ToolResult{}, fmt.Errorf("coingecko price: %w", err)
	}
	if len(resp) == 0 {
		return domain.Failed("No prices returned for " + strings.Join(coins, ", ")), nil
	}

	prices := make(map[string]any, len(resp))
	var lines []string
	for _, id := range ids {
		vals, ok := resp[id]
		if !ok {
			continue
		}
		price := vals[currency]
		change := vals[currency+"_24h_change"]
		prices[id] = map[string]any{
			"price":     price,
			"change24h": change,
			"marketCap": vals[currency+"_market_cap"],
			"currency":  currency,
		}
		lines = append(lines, fmt.Sprintf("%s %.2f %s (%+.2f%% 24h)", id, price, strings.ToUpper(currency), change))
	}
	return domain.Succeeded(strings.Join(lines, "; "), map[string]any{"prices": prices}), nil
}
