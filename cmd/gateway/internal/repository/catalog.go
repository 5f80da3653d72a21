package repository

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	_ SymbolRegistry = StaticRegistry(nil)
	_ SymbolRegistry = (*CatalogRegistry)(nil)
)

// StaticRegistry is a fixed symbol list, normally from config.
type StaticRegistry []string

func (s StaticRegistry) Symbols(ctx context.Context) ([]string, error) {
	return normalizeSymbols(s), nil
}

// CatalogEntry is one stock in the catalog file.
type CatalogEntry struct {
	Symbol    string  `yaml:"symbol"`
	Name      string  `yaml:"name"`
	Sector    string  `yaml:"sector"`
	BasePrice float64 `yaml:"base_price"`
	Disabled  bool    `yaml:"disabled"`
}

type catalogFile struct {
	Stocks []CatalogEntry `yaml:"stocks"`
}

// CatalogRegistry reads the stock catalog YAML file on every call, so edits
// take effect on the next tick without a restart.
type CatalogRegistry struct {
	path string
}

func NewCatalogRegistry(path string) *CatalogRegistry {
	return &CatalogRegistry{path: path}
}

func (c *CatalogRegistry) Symbols(ctx context.Context) ([]string, error) {
	entries, err := LoadCatalog(c.path)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Disabled {
			symbols = append(symbols, e.Symbol)
		}
	}
	return normalizeSymbols(symbols), nil
}

// LoadCatalog parses the catalog file.
func LoadCatalog(path string) ([]CatalogEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return f.Stocks, nil
}

// BasePrices returns symbol -> base price for entries that set one.
func BasePrices(entries []CatalogEntry) map[string]float64 {
	out := make(map[string]float64, len(entries))
	for _, e := range entries {
		if e.BasePrice > 0 {
			out[strings.ToUpper(strings.TrimSpace(e.Symbol))] = e.BasePrice
		}
	}
	return out
}

// normalizeSymbols upper-cases, trims and de-duplicates, keeping first-seen order.
func normalizeSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
