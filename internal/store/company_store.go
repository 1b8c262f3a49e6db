package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Company is a tracked company in the deal-flow CRM.
type Company struct {
	ID          string    `json:"id" yaml:"id,omitempty"`
	Name        string    `json:"name" yaml:"name"`
	Ticker      string    `json:"ticker,omitempty" yaml:"ticker,omitempty"`
	Sector      string    `json:"sector,omitempty" yaml:"sector,omitempty"`
	Industry    string    `json:"industry,omitempty" yaml:"industry,omitempty"`
	Country     string    `json:"country,omitempty" yaml:"country,omitempty"`
	Stage       string    `json:"stage,omitempty" yaml:"stage,omitempty"`
	MarketCap   float64   `json:"marketCap,omitempty" yaml:"marketCap,omitempty"`
	Website     string    `json:"website,omitempty" yaml:"website,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"-"`
}

// CompanyQuery filters a company search. Sector filters match the sector
// or industry by case-insensitive substring; exclusions match the sector
// only.
type CompanyQuery struct {
	Text           string
	Sectors        []string
	ExcludeSectors []string
	Country        string
	Stage          string
	Limit          int
}

// CompanyStore manages companies with full-text search via SQLite FTS5.
type CompanyStore struct {
	db *DB
}

// NewCompanyStore creates a company store using the given database.
func NewCompanyStore(db *DB) *CompanyStore {
	return &CompanyStore{db: db}
}

const companyColumns = `c.id, c.name, c.ticker, c.sector, c.industry, c.country, c.stage,
	c.market_cap, c.website, c.description, c.created_at, c.updated_at`

// Upsert inserts a company or updates the existing one with the same name.
func (s *CompanyStore) Upsert(ctx context.Context, c Company) (*Company, error) {
	return upsertCompany(ctx, s.db.sql, c)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertCompany(ctx context.Context, q execer, c Company) (*Company, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, fmt.Errorf("company name is required")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	err := q.QueryRowContext(ctx,
		`INSERT INTO companies (id, name, name_key, ticker, sector, industry, country, stage,
		                        market_cap, website, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name_key) DO UPDATE SET
		   name = excluded.name,
		   ticker = excluded.ticker,
		   sector = excluded.sector,
		   industry = excluded.industry,
		   country = excluded.country,
		   stage = excluded.stage,
		   market_cap = excluded.market_cap,
		   website = excluded.website,
		   description = excluded.description,
		   updated_at = excluded.updated_at
		 RETURNING id`,
		c.ID, c.Name, strings.ToLower(c.Name), c.Ticker, c.Sector, c.Industry, c.Country, c.Stage,
		c.MarketCap, c.Website, c.Description,
		now.Format(time.DateTime), now.Format(time.DateTime),
	).Scan(&c.ID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Import upserts many companies in one transaction.
func (s *CompanyStore) Import(ctx context.Context, companies []Company) (int, error) {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	for i, c := range companies {
		if _, err := upsertCompany(ctx, tx, c); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("company %d (%s): %w", i, c.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.db.log.Info().Int("count", len(companies)).Msg("companies imported")
	return len(companies), nil
}

// FindByName returns the company whose name matches exactly
// (case-insensitive), falling back to the best full-text match.
func (s *CompanyStore) FindByName(ctx context.Context, name string) (*Company, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+companyColumns+` FROM companies c WHERE c.name_key = ?`,
		strings.ToLower(strings.TrimSpace(name)),
	)
	if err != nil {
		return nil, err
	}
	found, err := scanCompanies(rows)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return &found[0], nil
	}

	found, err = s.Search(ctx, CompanyQuery{Text: name, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return &found[0], nil
}

// Search finds companies matching q. Results are ordered by market cap,
// largest first, then by text relevance. Limit of 0 defaults to 20.
func (s *CompanyStore) Search(ctx context.Context, q CompanyQuery) ([]Company, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}

	var (
		where []string
		args  []any
		from  = "companies c"
		order = "c.market_cap DESC, c.name"
	)

	if match := ftsQuery(q.Text); match != "" {
		from = "companies_fts JOIN companies c ON c.rowid = companies_fts.rowid"
		where = append(where, "companies_fts MATCH ?")
		args = append(args, match)
		order = "c.market_cap DESC, rank"
	}
	if len(q.Sectors) > 0 {
		var ors []string
		for _, sec := range q.Sectors {
			ors = append(ors, "(lower(c.sector) LIKE ? OR lower(c.industry) LIKE ?)")
			like := "%" + strings.ToLower(strings.TrimSpace(sec)) + "%"
			args = append(args, like, like)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	for _, sec := range q.ExcludeSectors {
		where = append(where, "lower(c.sector) NOT LIKE ?")
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(sec))+"%")
	}
	if q.Country != "" {
		names := countryNames(q.Country)
		where = append(where, "lower(c.country) IN ("+placeholders(len(names))+")")
		for _, n := range names {
			args = append(args, n)
		}
	}
	if q.Stage != "" {
		where = append(where, "lower(c.stage) = lower(?)")
		args = append(args, q.Stage)
	}

	query := "SELECT " + companyColumns + " FROM " + from
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + order + " LIMIT ?"
	args = append(args, q.Limit)

	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanCompanies(rows)
}

// Count returns the number of stored companies.
func (s *CompanyStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`).Scan(&n)
	return n, err
}

// Delete removes a company by ID.
func (s *CompanyStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.sql.ExecContext(ctx, `DELETE FROM companies WHERE id = ?`, id)
	return err
}

// LoadCompaniesFile reads a YAML (or JSON) list of companies.
func LoadCompaniesFile(path string) ([]Company, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var companies []Company
	if err := yaml.Unmarshal(data, &companies); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return companies, nil
}

// ftsQuery turns free text into an FTS5 query of quoted prefix terms so
// user input cannot inject FTS syntax.
func ftsQuery(text string) string {
	var terms []string
	for _, f := range strings.Fields(text) {
		f = strings.Trim(f, `"'*()^:-+,.;`)
		if f == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"*`)
	}
	return strings.Join(terms, " ")
}

var countryAliases = map[string][]string{
	"us":             {"us", "usa", "united states", "united states of america"},
	"usa":            {"us", "usa", "united states", "united states of america"},
	"united states":  {"us", "usa", "united states", "united states of america"},
	"uk":             {"uk", "gb", "united kingdom", "great britain"},
	"united kingdom": {"uk", "gb", "united kingdom", "great britain"},
}

func countryNames(country string) []string {
	c := strings.ToLower(strings.TrimSpace(country))
	if names, ok := countryAliases[c]; ok {
		return names
	}
	return []string{c}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scanCompanies(rows *sql.Rows) ([]Company, error) {
	defer rows.Close()
	var out []Company
	for rows.Next() {
		var c Company
		var createdAt, updatedAt string
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Ticker, &c.Sector, &c.Industry, &c.Country, &c.Stage,
			&c.MarketCap, &c.Website, &c.Description, &createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		c.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}
