/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// DefaultServiceRate is the service fee as a fraction of the amount (0.5%).
var DefaultServiceRate = decimal.RequireFromString("0.005")

// EVMAddressPattern matches a hex-encoded 20-byte account address.
var EVMAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Currency is the policy for one supported asset.
type Currency struct {
	Symbol                string
	Kind                  string
	Network               string
	GasFee                decimal.Decimal
	FeeCurrency           string
	HourlyCap             decimal.Decimal
	DailyCap              decimal.Decimal
	EstimatedConfirmation time.Duration
	// AddressPattern, when set, is the accepted format of destination addresses.
	AddressPattern *regexp.Regexp
}

// ValidAddress reports whether address is an acceptable destination on the currency's network.
func (c Currency) ValidAddress(address string) bool {
	if address == "" {
		return false
	}
	return c.AddressPattern == nil || c.AddressPattern.MatchString(address)
}

// Table holds the configured currencies and the service rate.
type Table struct {
	currencies  map[string]Currency
	serviceRate decimal.Decimal
}

func DefaultTable() *Table {
	return &Table{
		serviceRate: DefaultServiceRate,
		currencies: map[string]Currency{
			"ETH": {
				Symbol:                "ETH",
				Kind:                  "native",
				Network:               "ethereum-mainnet",
				GasFee:                decimal.RequireFromString("0.01"),
				FeeCurrency:           "ETH",
				HourlyCap:             decimal.NewFromInt(10),
				DailyCap:              decimal.NewFromInt(50),
				EstimatedConfirmation: 5 * time.Minute,
				AddressPattern:        EVMAddressPattern,
			},
			"USDC": {
				Symbol:                "USDC",
				Kind:                  "stable",
				Network:               "ethereum-mainnet",
				GasFee:                decimal.RequireFromString("0.005"),
				FeeCurrency:           "ETH",
				HourlyCap:             decimal.NewFromInt(10000),
				DailyCap:              decimal.NewFromInt(50000),
				EstimatedConfirmation: 5 * time.Minute,
				AddressPattern:        EVMAddressPattern,
			},
		},
	}
}

func (t *Table) Lookup(symbol string) (Currency, bool) {
	c, ok := t.currencies[symbol]
	return c, ok
}

func (t *Table) ServiceRate() decimal.Decimal {
	return t.serviceRate
}

// Symbols returns the configured currency symbols in sorted order.
func (t *Table) Symbols() []string {
	symbols := make([]string, 0, len(t.currencies))
	for s := range t.currencies {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

type currencyFile struct {
	ServiceRate string          `yaml:"service_rate"`
	Currencies  []currencyEntry `yaml:"currencies"`
}

type currencyEntry struct {
	Symbol                string `yaml:"symbol"`
	Kind                  string `yaml:"kind"`
	Network               string `yaml:"network"`
	GasFee                string `yaml:"gas_fee"`
	FeeCurrency           string `yaml:"fee_currency"`
	HourlyCap             string `yaml:"hourly_cap"`
	DailyCap              string `yaml:"daily_cap"`
	EstimatedConfirmation string `yaml:"estimated_confirmation"`
	AddressPattern        string `yaml:"address_pattern"`
}

// LoadTable reads a currency table from YAML. An empty path returns the defaults.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}

	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return ParseTable(data)
}

func ParseTable(data []byte) (*Table, error) {
	var file currencyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse currency table: %w", err)
	}
	if len(file.Currencies) == 0 {
		return nil, fmt.Errorf("currency table defines no currencies")
	}

	table := &Table{currencies: make(map[string]Currency, len(file.Currencies)), serviceRate: DefaultServiceRate}
	if file.ServiceRate != "" {
		rate, err := decimal.NewFromString(file.ServiceRate)
		if err != nil || rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("invalid service_rate %q", file.ServiceRate)
		}
		table.serviceRate = rate
	}

	for i, e := range file.Currencies {
		c, err := e.toCurrency()
		if err != nil {
			return nil, fmt.Errorf("currency at index %d: %w", i, err)
		}
		if _, dup := table.currencies[c.Symbol]; dup {
			return nil, fmt.Errorf("currency %s defined twice", c.Symbol)
		}
		table.currencies[c.Symbol] = c
	}

	for _, c := range table.currencies {
		if _, ok := table.currencies[c.FeeCurrency]; !ok {
			return nil, fmt.Errorf("currency %s pays fees in unknown currency %s", c.Symbol, c.FeeCurrency)
		}
	}
	return table, nil
}

func (e currencyEntry) toCurrency() (Currency, error) {
	if e.Symbol == "" {
		return Currency{}, fmt.Errorf("missing symbol")
	}
	if e.Network == "" {
		return Currency{}, fmt.Errorf("%s missing network", e.Symbol)
	}

	c := Currency{
		Symbol:      e.Symbol,
		Kind:        e.Kind,
		Network:     e.Network,
		FeeCurrency: e.FeeCurrency,
	}
	if c.FeeCurrency == "" {
		c.FeeCurrency = c.Symbol
	}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"gas_fee", e.GasFee, &c.GasFee},
		{"hourly_cap", e.HourlyCap, &c.HourlyCap},
		{"daily_cap", e.DailyCap, &c.DailyCap},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return Currency{}, fmt.Errorf("%s invalid %s %q", e.Symbol, f.name, f.raw)
		}
		if v.IsNegative() {
			return Currency{}, fmt.Errorf("%s %s cannot be negative", e.Symbol, f.name)
		}
		*f.dst = v
	}
	if c.HourlyCap.GreaterThan(c.DailyCap) {
		return Currency{}, fmt.Errorf("%s hourly_cap exceeds daily_cap", e.Symbol)
	}

	if e.EstimatedConfirmation != "" {
		d, err := time.ParseDuration(e.EstimatedConfirmation)
		if err != nil {
			return Currency{}, fmt.Errorf("%s invalid estimated_confirmation: %w", e.Symbol, err)
		}
		c.EstimatedConfirmation = d
	}

	if e.AddressPattern != "" {
		re, err := regexp.Compile(e.AddressPattern)
		if err != nil {
			return Currency{}, fmt.Errorf("%s invalid address_pattern: %w", e.Symbol, err)
		}
		c.AddressPattern = re
	}
	return c, nil
}
