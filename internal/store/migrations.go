package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions",
		SQL: `
			CREATE TABLE sessions (
				id          TEXT PRIMARY KEY,
				record      TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_sessions_updated ON sessions (updated_at);
		`,
	},
	{
		Version: 2,
		Name:    "create companies with FTS5",
		SQL: `
			CREATE TABLE companies (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				name_key    TEXT NOT NULL UNIQUE,
				ticker      TEXT NOT NULL DEFAULT '',
				sector      TEXT NOT NULL DEFAULT '',
				industry    TEXT NOT NULL DEFAULT '',
				country     TEXT NOT NULL DEFAULT '',
				stage       TEXT NOT NULL DEFAULT '',
				market_cap  REAL NOT NULL DEFAULT 0,
				website     TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_companies_sector ON companies (sector);
			CREATE INDEX idx_companies_cap ON companies (market_cap DESC);

			CREATE VIRTUAL TABLE companies_fts USING fts5(
				name,
				description,
				sector,
				industry,
				content='companies',
				content_rowid='rowid'
			);

			CREATE TRIGGER companies_ai AFTER INSERT ON companies BEGIN
				INSERT INTO companies_fts(rowid, name, description, sector, industry)
				VALUES (new.rowid, new.name, new.description, new.sector, new.industry);
			END;

			CREATE TRIGGER companies_ad AFTER DELETE ON companies BEGIN
				INSERT INTO companies_fts(companies_fts, rowid, name, description, sector, industry)
				VALUES ('delete', old.rowid, old.name, old.description, old.sector, old.industry);
			END;

			CREATE TRIGGER companies_au AFTER UPDATE ON companies BEGIN
				INSERT INTO companies_fts(companies_fts, rowid, name, description, sector, industry)
				VALUES ('delete', old.rowid, old.name, old.description, old.sector, old.industry);
				INSERT INTO companies_fts(rowid, name, description, sector, industry)
				VALUES (new.rowid, new.name, new.description, new.sector, new.industry);
			END;
		`,
	},
	{
		Version: 3,
		Name:    "create portfolio holdings",
		SQL: `
			CREATE TABLE portfolio_holdings (
				symbol      TEXT PRIMARY KEY,
				name        TEXT NOT NULL DEFAULT '',
				asset_type  TEXT NOT NULL DEFAULT 'equity',
				quantity    REAL NOT NULL,
				cost_basis  REAL NOT NULL DEFAULT 0,
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
}
