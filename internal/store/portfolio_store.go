package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Holding is one position in the fund's tracked portfolio.
type Holding struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	AssetType string    `json:"assetType"` // "equity" | "crypto" | "private"
	Quantity  float64   `json:"quantity"`
	CostBasis float64   `json:"costBasis"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PortfolioStore manages portfolio holdings. Adding to an existing symbol
// accumulates quantity and cost, so repeated adds are not idempotent.
type PortfolioStore struct {
	db *DB
}

// NewPortfolioStore creates a portfolio store using the given database.
func NewPortfolioStore(db *DB) *PortfolioStore {
	return &PortfolioStore{db: db}
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Add records a purchase, creating the holding if needed, and returns the
// resulting position.
func (p *PortfolioStore) Add(ctx context.Context, h Holding) (*Holding, error) {
	h.Symbol = normalizeSymbol(h.Symbol)
	if h.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if h.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %g", h.Quantity)
	}
	if h.AssetType == "" {
		h.AssetType = "equity"
	}

	now := time.Now().UTC().Format(time.DateTime)
	_, err := p.db.sql.ExecContext(ctx,
		`INSERT INTO portfolio_holdings (symbol, name, asset_type, quantity, cost_basis, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET
		   quantity = quantity + excluded.quantity,
		   cost_basis = cost_basis + excluded.cost_basis,
		   name = CASE WHEN excluded.name != '' THEN excluded.name ELSE name END,
		   updated_at = excluded.updated_at`,
		h.Symbol, h.Name, h.AssetType, h.Quantity, h.CostBasis, now, now,
	)
	if err != nil {
		return nil, err
	}
	return p.Get(ctx, h.Symbol)
}

// Remove deletes a holding. It returns ErrNotFound if the symbol is not held.
func (p *PortfolioStore) Remove(ctx context.Context, symbol string) error {
	res, err := p.db.sql.ExecContext(ctx,
		`DELETE FROM portfolio_holdings WHERE symbol = ?`, normalizeSymbol(symbol))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one holding.
func (p *PortfolioStore) Get(ctx context.Context, symbol string) (*Holding, error) {
	rows, err := p.db.sql.QueryContext(ctx,
		`SELECT symbol, name, asset_type, quantity, cost_basis, created_at, updated_at
		 FROM portfolio_holdings WHERE symbol = ?`, normalizeSymbol(symbol))
	if err != nil {
		return nil, err
	}
	hs, err := scanHoldings(rows)
	if err != nil {
		return nil, err
	}
	if len(hs) == 0 {
		return nil, ErrNotFound
	}
	return &hs[0], nil
}

// List returns all holdings ordered by symbol.
func (p *PortfolioStore) List(ctx context.Context) ([]Holding, error) {
	rows, err := p.db.sql.QueryContext(ctx,
		`SELECT symbol, name, asset_type, quantity, cost_basis, created_at, updated_at
		 FROM portfolio_holdings ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	return scanHoldings(rows)
}

func scanHoldings(rows *sql.Rows) ([]Holding, error) {
	defer rows.Close()
	var out []Holding
	for rows.Next() {
		var h Holding
		var createdAt, updatedAt string
		if err := rows.Scan(&h.Symbol, &h.Name, &h.AssetType, &h.Quantity, &h.CostBasis, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		h.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		h.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

// IsNotFound reports whether err means a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
