// Package tools contains the deal-flow tools, grouped into plugins:
// system, companies, portfolio, market, research and files.
package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// stringArg returns the first non-empty string among keys.
func stringArg(args map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := args[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		case []string:
			if len(v) > 0 && strings.TrimSpace(v[0]) != "" {
				return strings.TrimSpace(v[0])
			}
		}
	}
	return ""
}

// stringsArg collects a list from the first key present. Lists may arrive
// as JSON arrays or comma-separated strings.
func stringsArg(args map[string]any, keys ...string) []string {
	for _, k := range keys {
		var out []string
		switch v := args[k].(type) {
		case string:
			for _, part := range strings.Split(v, ",") {
				if p := strings.TrimSpace(part); p != "" {
					out = append(out, p)
				}
			}
		case []string:
			for _, s := range v {
				if p := strings.TrimSpace(s); p != "" {
					out = append(out, p)
				}
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// floatArg reads a number that may arrive as float64, int, json.Number or a
// numeric string.
func floatArg(args map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := args[k].(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		case string:
			s := strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(v), ",", ""), "$")
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// intArg reads an integer argument bounded to [1, max], or def.
func intArg(args map[string]any, def, max int, keys ...string) int {
	f, ok := floatArg(args, keys...)
	if !ok || f < 1 {
		return def
	}
	if n := int(f); n < max {
		return n
	}
	return max
}

// formatMoney renders large amounts compactly, e.g. $1.23T or $450.0M.
func formatMoney(v float64) string {
	switch {
	case v == 0:
		return "-"
	case v >= 1e12:
		return fmt.Sprintf("$%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
