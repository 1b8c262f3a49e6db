package intent

import (
	"regexp"
	"strings"
)

// Handler names that are not tools.
const (
	HandlerAgent = "agent"
	HandlerHelp  = "help"
)

// Rule maps keywords straight to a handler. A rule matches when the
// lowercased command contains any of its keywords.
type Rule struct {
	Name     string
	Keywords []string
	Handler  string
}

func (r Rule) matches(text string) bool {
	return containsAny(text, r.Keywords)
}

// Pattern maps keywords to an action when the AI tier is unavailable.
type Pattern struct {
	Keywords []string
	Action   string
}

// Topic is a keyword bucket used when an action has no handler.
type Topic struct {
	Name     string
	Keywords []string
	Handler  string
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// normalize lowercases text, collapses whitespace and pads it with spaces
// so keywords can anchor on word boundaries, e.g. " eth ".
func normalize(text string) string {
	return " " + strings.Join(strings.Fields(strings.ToLower(text)), " ") + " "
}

// DefaultRules are the explicit system commands. Order matters: the first
// matching rule wins.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "api_keys", Keywords: []string{"check api keys", "check api key", "api key status", "check keys"}, Handler: "check_api_keys"},
		{Name: "show_config", Keywords: []string{"show config", "show configuration", "show settings"}, Handler: "show_config"},
		{Name: "list_tools", Keywords: []string{"list tools", "available tools", "show tools"}, Handler: "list_tools"},
		{Name: "view_portfolio", Keywords: []string{"show portfolio", "view portfolio", "show my portfolio", "portfolio summary"}, Handler: "portfolio_view"},
		{Name: "list_files", Keywords: []string{"list files", "show data room", "list data room"}, Handler: "list_files"},
		{Name: "help", Keywords: []string{"/help", "what can you do", "list commands", "show commands"}, Handler: HandlerHelp},
	}
}

// DefaultPatterns is the reduced keyword map used when AI classification
// raised. Order matters.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Keywords: []string{"api key", "apikey"}, Action: "check_api_keys"},
		{Keywords: []string{"to my portfolio", "to the portfolio", "to portfolio"}, Action: "portfolio_add"},
		{Keywords: []string{"portfolio", "holdings", "positions"}, Action: "portfolio_view"},
		{Keywords: []string{"bitcoin", " btc ", "ethereum", " eth ", "solana", "crypto"}, Action: "get_crypto_price"},
		{Keywords: []string{"stock", "quote", "share price", "ticker"}, Action: "get_stock_quote"},
		{Keywords: []string{"similar to", "look-alike", "lookalike", "competitors"}, Action: "find_similar_companies"},
		{Keywords: []string{"compan", "startup", "biotech", "fintech", "sector"}, Action: "search_companies"},
		{Keywords: []string{"news", "search the web", "latest", "funding round"}, Action: "web_search"},
		{Keywords: []string{"file", "document", "memo", "data room"}, Action: "list_files"},
		{Keywords: []string{"config", "settings"}, Action: "show_config"},
		{Keywords: []string{"help", "how do i"}, Action: HandlerHelp},
	}
}

// DefaultTopics are the keyword buckets of the generic tier.
func DefaultTopics() []Topic {
	return []Topic{
		{Name: "market", Keywords: []string{"market", "stock", "price", "crypto", "ticker", "trading", "valuation"}, Handler: HandlerAgent},
		{Name: "system", Keywords: []string{"system", "status", "api", "key", "provider"}, Handler: "check_api_keys"},
		{Name: "config", Keywords: []string{"config", "setting", "option"}, Handler: "show_config"},
		{Name: "project", Keywords: []string{"project", "file", "document", "folder", "memo"}, Handler: "list_files"},
		{Name: "portfolio", Keywords: []string{"portfolio", "holding", "position", "investment"}, Handler: "portfolio_view"},
		{Name: "help", Keywords: []string{"help", "command", "usage", "how to"}, Handler: HandlerHelp},
	}
}

var (
	tickerRe = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

	coinWords = map[string]string{
		"bitcoin":  "bitcoin",
		"btc":      "bitcoin",
		"ethereum": "ethereum",
		"eth":      "ethereum",
		"solana":   "solana",
		"sol":      "solana",
		"dogecoin": "dogecoin",
		"doge":     "dogecoin",
		"xrp":      "ripple",
		"cardano":  "cardano",
	}

	// words that look like tickers in upper-case commands
	tickerStopwords = map[string]bool{
		"API": true, "AI": true, "US": true, "USA": true, "UK": true, "EU": true,
		"CEO": true, "IPO": true, "VC": true, "USD": true, "ETF": true, "AND": true,
		"THE": true, "FOR": true, "OF": true, "IN": true, "TO": true, "ME": true,
	}
)

// extractEntities pulls the entities a pattern-matched action needs from
// the raw command: coin names for crypto and upper-case tickers for stocks.
func extractEntities(action, raw string) []string {
	switch action {
	case "get_crypto_price":
		var out []string
		seen := map[string]bool{}
		for _, w := range strings.FieldsFunc(strings.ToLower(raw), isWordBreak) {
			if id, ok := coinWords[w]; ok && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
		return out
	case "get_stock_quote", "portfolio_add", "portfolio_remove":
		var out []string
		for _, m := range tickerRe.FindAllString(raw, -1) {
			if !tickerStopwords[m] {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func isWordBreak(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}
