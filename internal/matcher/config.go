// Package matcher resolves parsed mapa lines against the internal client
// and sale registries and classifies each line.
//
// Identity is ambiguous on purpose: the mapa is transcribed from paper, so
// codes carry typos and names vary in spelling, case and spacing. The code
// is the authoritative join key; a normalized-name fallback tolerates code
// typos. Classification follows a fixed priority: no client, then no sale,
// then value mismatch; only a full match within tolerance corresponds.
// After the line pass, internal sales never referenced by the mapa surface
// as synthetic VENDA_EXTRA items rather than being silently ignored.
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MultiSalePolicy decides how to aggregate when a client has more than one
// sale recorded in the reconciliation period. The persisted item links a
// single vendaId, so the policy also decides which sale carries the link.
type MultiSalePolicy string

const (
	// MultiSaleSum compares the mapa line against the sum of all period
	// sales; the latest sale carries the vendaId link.
	MultiSaleSum MultiSalePolicy = "sum"
	// MultiSaleLatest compares against the most recent sale only.
	MultiSaleLatest MultiSalePolicy = "latest"
)

// IsValid checks the policy value.
func (p MultiSalePolicy) IsValid() bool {
	return p == MultiSaleSum || p == MultiSaleLatest
}

// MatchConfig holds configuration parameters for line matching.
type MatchConfig struct {
	// ValueTolerance is the epsilon for value equality. Both sides are
	// fixed-point decimals, but they were rounded independently, so exact
	// equality would flag sub-cent drift as discrepancies.
	ValueTolerance decimal.Decimal `json:"value_tolerance"`

	// MultiSalePolicy selects the aggregation when a client has several
	// sales in the period.
	MultiSalePolicy MultiSalePolicy `json:"multi_sale_policy"`

	// EnableNameFallback enables the normalized-name lookup when the code
	// resolves no client.
	EnableNameFallback bool `json:"enable_name_fallback"`
}

// DefaultMatchConfig returns a configuration with sensible defaults.
func DefaultMatchConfig() *MatchConfig {
	return &MatchConfig{
		ValueTolerance:     decimal.NewFromFloat(0.01),
		MultiSalePolicy:    MultiSaleSum,
		EnableNameFallback: true,
	}
}

// StrictMatchConfig disables every forgiving behavior: exact values only,
// code-only identity. Useful when auditing a suspicious mapa.
func StrictMatchConfig() *MatchConfig {
	return &MatchConfig{
		ValueTolerance:     decimal.Zero,
		MultiSalePolicy:    MultiSaleLatest,
		EnableNameFallback: false,
	}
}

// Validate checks if the matching configuration is valid.
func (c *MatchConfig) Validate() error {
	if c.ValueTolerance.IsNegative() {
		return fmt.Errorf("value tolerance cannot be negative: %s", c.ValueTolerance)
	}
	if !c.MultiSalePolicy.IsValid() {
		return fmt.Errorf("invalid multi-sale policy: %s", c.MultiSalePolicy)
	}
	return nil
}

// Clone creates a copy of the matching configuration.
func (c *MatchConfig) Clone() *MatchConfig {
	if c == nil {
		return nil
	}
	return &MatchConfig{
		ValueTolerance:     c.ValueTolerance,
		MultiSalePolicy:    c.MultiSalePolicy,
		EnableNameFallback: c.EnableNameFallback,
	}
}

// String returns a human-readable description of the configuration.
func (c *MatchConfig) String() string {
	return fmt.Sprintf("MatchConfig{Tolerance: %s, MultiSale: %s, NameFallback: %t}",
		c.ValueTolerance, c.MultiSalePolicy, c.EnableNameFallback)
}
