package tools

import (
	"github.com/soyeahso/dealflow/internal/config"
	"github.com/soyeahso/dealflow/internal/httpclient"
	"github.com/soyeahso/dealflow/internal/plugin"
	"github.com/soyeahso/dealflow/internal/store"
)

// Deps are the resources the built-in plugins need.
type Deps struct {
	Config    config.Config
	Companies *store.CompanyStore
	Portfolio *store.PortfolioStore
}

// Builtin returns the built-in plugins in registration order.
func Builtin(d Deps) []plugin.Plugin {
	httpOpts := httpclient.Options{
		Timeout:  d.Config.Tools.Timeout(),
		RetryMax: 2,
	}
	return []plugin.Plugin{
		NewSystemPlugin(d.Config),
		NewCompaniesPlugin(d.Companies, d.Config.Companies.SeedFile, d.Config.Companies.Watch),
		NewPortfolioPlugin(d.Portfolio),
		NewMarketPlugin(d.Config.Providers, httpOpts),
		NewResearchPlugin(d.Config.Providers, httpOpts),
		NewFilesPlugin(d.Config.Files.Roots, d.Config.Files.MaxBytes),
	}
}
