package tools

import (
	"context"
	"fmt"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/plugin"
	"github.com/soyeahso/dealflow/internal/store"
	"github.com/soyeahso/dealflow/internal/tool"
	"github.com/soyeahso/dealflow/internal/version"
)

// PortfolioPlugin manages tracked holdings. Adds and removes mutate state
// and are not idempotent.
type PortfolioPlugin struct {
	store *store.PortfolioStore
}

// NewPortfolioPlugin creates the portfolio plugin.
func NewPortfolioPlugin(ps *store.PortfolioStore) *PortfolioPlugin {
	return &PortfolioPlugin{store: ps}
}

func (p *PortfolioPlugin) ID() string      { return "portfolio" }
func (p *PortfolioPlugin) Name() string    { return "Portfolio" }
func (p *PortfolioPlugin) Version() string { return version.Version }
func (p *PortfolioPlugin) Close() error    { return nil }

func (p *PortfolioPlugin) Init(_ context.Context, api plugin.API) error {
	for _, t := range []tool.Tool{
		tool.Func{
			Def: domain.ToolDefinition{
				Name:            "portfolio_view",
				Description:     "Show all portfolio holdings with quantity and cost basis.",
				ParameterSchema: tool.ObjectSchema(nil),
			},
			Fn: p.view,
		},
		tool.Func{
			Def: domain.ToolDefinition{
				Name:        "portfolio_add",
				Description: "Add a position to the portfolio. Adding to an existing symbol increases the position.",
				ParameterSchema: tool.ObjectSchema(map[string]any{
					"symbol":     tool.StringProp("Ticker or coin symbol, e.g. \"NVDA\" or \"BTC\"."),
					"quantity":   tool.NumberProp("Units bought."),
					"price":      tool.NumberProp("Price per unit. Ignored when cost_basis is given."),
					"cost_basis": tool.NumberProp("Total cost of the purchase."),
					"name":       tool.StringProp("Display name."),
					"asset_type": map[string]any{
						"type": "string",
						"enum": []string{"equity", "crypto", "private"},
					},
				}, "symbol", "quantity"),
			},
			Fn: p.add,
		},
		tool.Func{
			Def: domain.ToolDefinition{
				Name:        "portfolio_remove",
				Description: "Remove a holding from the portfolio.",
				ParameterSchema: tool.ObjectSchema(map[string]any{
					"symbol": tool.StringProp("Ticker or coin symbol."),
				}, "symbol"),
			},
			Fn: p.remove,
		},
	} {
		if err := api.Tools.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func (p *PortfolioPlugin) view(ctx context.Context, _ map[string]any) (domain.ToolResult, error) {
	holdings, err := p.store.List(ctx)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("listing holdings: %w", err)
	}
	if len(holdings) == 0 {
		res := domain.Succeeded("The portfolio is empty.", map[string]any{"count": 0})
		res.Display = "The portfolio is empty. Add a position with e.g. \"add 10 NVDA at 120 to portfolio\"."
		return res, nil
	}

	var total float64
	rows := make([][]string, len(holdings))
	for i, h := range holdings {
		total += h.CostBasis
		avg := 0.0
		if h.Quantity > 0 {
			avg = h.CostBasis / h.Quantity
		}
		rows[i] = []string{h.Symbol, orDash(h.Name), h.AssetType, fmt.Sprintf("%g", h.Quantity), formatMoney(avg), formatMoney(h.CostBasis)}
	}

	res := domain.Succeeded(fmt.Sprintf("%d holdings, total cost %s", len(holdings), formatMoney(total)), map[string]any{
		"count":     len(holdings),
		"holdings":  holdings,
		"totalCost": total,
	})
	res.Display = renderTable([]string{"Symbol", "Name", "Type", "Quantity", "Avg Cost", "Cost Basis"}, rows) +
		fmt.Sprintf("\n\nTotal cost basis: %s", formatMoney(total))
	return res, nil
}

func (p *PortfolioPlugin) add(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	symbol := stringArg(args, "symbol", "ticker", "entities")
	qty, ok := floatArg(args, "quantity", "shares", "amount")
	if symbol == "" || !ok || qty <= 0 {
		return domain.Failed("portfolio_add needs a symbol and a positive quantity"), nil
	}

	cost, hasCost := floatArg(args, "cost_basis", "costBasis", "cost")
	if !hasCost {
		if price, ok := floatArg(args, "price"); ok {
			cost = price * qty
		}
	}

	h, err := p.store.Add(ctx, store.Holding{
		Symbol:    symbol,
		Name:      stringArg(args, "name"),
		AssetType: stringArg(args, "asset_type", "assetType"),
		Quantity:  qty,
		CostBasis: cost,
	})
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("adding %s: %w", symbol, err)
	}

	msg := fmt.Sprintf("Added %g %s. Position is now %g units, cost basis %s.", qty, h.Symbol, h.Quantity, formatMoney(h.CostBasis))
	res := domain.Succeeded(msg, map[string]any{"holding": h})
	res.Display = msg
	return res, nil
}

func (p *PortfolioPlugin) remove(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	symbol := stringArg(args, "symbol", "ticker", "entities")
	if symbol == "" {
		return domain.Failed("portfolio_remove needs a symbol"), nil
	}

	err := p.store.Remove(ctx, symbol)
	if store.IsNotFound(err) {
		return domain.Failed(fmt.Sprintf("%s is not in the portfolio", symbol)), nil
	}
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("removing %s: %w", symbol, err)
	}

	msg := fmt.Sprintf("Removed %s from the portfolio.", symbol)
	res := domain.Succeeded(msg, map[string]any{"symbol": symbol})
	res.Display = msg
	return res, nil
}
